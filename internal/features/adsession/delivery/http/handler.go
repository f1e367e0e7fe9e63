package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	apperrors "videogate-backend/internal/common/errors"
	"videogate-backend/internal/common/logger"
	"videogate-backend/internal/common/middleware"
	"videogate-backend/internal/features/adsession/repository"
	"videogate-backend/internal/features/adsession/service"
	gatingservice "videogate-backend/internal/features/gating/service"

	"github.com/gin-gonic/gin"
)

// AdSessionHandler exposes the ad verification endpoints hit by the bot,
// the shortlink provider and the user's browser.
type AdSessionHandler struct {
	sessions service.SessionService
	gating   gatingservice.GatingService
	// targetURL is the external ad host /ad/redirect forwards to.
	targetURL string
}

func NewAdSessionHandler(sessions service.SessionService, gating gatingservice.GatingService, targetURL string) *AdSessionHandler {
	return &AdSessionHandler{
		sessions:  sessions,
		gating:    gating,
		targetURL: targetURL,
	}
}

func (h *AdSessionHandler) RegisterRoutes(router *gin.Engine) {
	ad := router.Group("/ad")
	{
		ad.POST("/create", h.createSession)
		ad.GET("/redirect", h.redirect)
		ad.POST("/callback", h.providerCallback)
		ad.GET("/status/:token", h.status)
		ad.GET("/return", h.adReturn)
	}
}

type createSessionRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

type createSessionResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

func (h *AdSessionHandler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.SendError(c, apperrors.New(apperrors.ErrCodeBadRequest, "user_id required"))
		return
	}

	session, err := h.sessions.Create(c.Request.Context(), req.UserID)
	if err != nil {
		middleware.SendError(c, apperrors.NewStoreError("create ad session", err))
		return
	}

	c.JSON(http.StatusCreated, createSessionResponse{
		Token:       session.Token,
		RedirectURL: session.ShortURL,
	})
}

// redirect records the click and forwards the user to the ad host, carrying
// the token so the host can call back on completion.
func (h *AdSessionHandler) redirect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		middleware.SendError(c, apperrors.New(apperrors.ErrCodeBadRequest, "token required"))
		return
	}

	if err := h.sessions.MarkClicked(c.Request.Context(), token); err != nil {
		logger.Warn().Err(err).Str("token", token).Msg("Mark clicked failed")
	}

	session, err := h.sessions.Status(c.Request.Context(), token)
	if errors.Is(err, repository.ErrSessionNotFound) {
		middleware.SendError(c, apperrors.NewAdSessionNotFoundError(token))
		return
	}
	if err != nil {
		middleware.SendError(c, apperrors.NewStoreError("read ad session", err))
		return
	}

	dest := session.VerifyURL
	if h.targetURL != "" {
		dest = fmt.Sprintf("%s?token=%s", h.targetURL, url.QueryEscape(token))
	}
	c.Redirect(http.StatusFound, dest)
}

type providerCallbackRequest struct {
	Token  string `json:"token" binding:"required"`
	Status string `json:"status"`
}

// providerCallback is the asynchronous completion signal from the ad
// provider. It may be retried; the completion path is idempotent.
func (h *AdSessionHandler) providerCallback(c *gin.Context) {
	var req providerCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.SendError(c, apperrors.New(apperrors.ErrCodeBadRequest, "token required"))
		return
	}

	if req.Status != "completed" {
		c.String(http.StatusOK, "ignored")
		return
	}

	outcome, err := h.gating.HandleProviderCompletion(c.Request.Context(), req.Token)
	if err != nil {
		middleware.SendError(c, apperrors.NewStoreError("complete ad session", err))
		return
	}
	if outcome == gatingservice.OutcomeSessionNotFound {
		middleware.SendError(c, apperrors.NewAdSessionNotFoundError(req.Token))
		return
	}
	c.String(http.StatusOK, "ok")
}

type statusResponse struct {
	Token     string `json:"token"`
	UserID    int64  `json:"user_id"`
	Status    string `json:"status"`
	Completed bool   `json:"completed"`
	ShortURL  string `json:"short_url"`
}

func (h *AdSessionHandler) status(c *gin.Context) {
	token := c.Param("token")

	session, err := h.sessions.Status(c.Request.Context(), token)
	if errors.Is(err, repository.ErrSessionNotFound) {
		middleware.SendError(c, apperrors.NewAdSessionNotFoundError(token))
		return
	}
	if err != nil {
		middleware.SendError(c, apperrors.NewStoreError("read ad session", err))
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		Token:     session.Token,
		UserID:    session.UserID,
		Status:    session.Status,
		Completed: session.Completed(),
		ShortURL:  session.ShortURL,
	})
}

// adReturn is the landing the shortlink ultimately resolves to after the ad
// is viewed. It completes the session and thanks the user.
func (h *AdSessionHandler) adReturn(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8",
			[]byte("<h3>Missing token</h3>"))
		return
	}

	outcome, err := h.gating.HandleProviderCompletion(c.Request.Context(), token)
	if err != nil {
		logger.Error().Err(err).Str("token", token).Msg("Ad return completion failed")
		c.Data(http.StatusOK, "text/html; charset=utf-8",
			[]byte("<h3>Thanks</h3><p>We couldn't verify your session right now. Please go back to the bot and try again.</p>"))
		return
	}
	if outcome == gatingservice.OutcomeSessionNotFound {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8",
			[]byte("<h3>Invalid or expired session</h3>"))
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(
		"<html><head><meta charset='utf-8'><title>Thanks</title></head><body>"+
			"<h2>Ad verified</h2><p>You may now return to the bot.</p>"+
			"<script>setTimeout(function(){window.close && window.close();},1500);</script>"+
			"</body></html>"))
}
