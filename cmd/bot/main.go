package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"videogate-backend/internal/bot"
	"videogate-backend/internal/common/config"
	"videogate-backend/internal/common/logger"
	adhttp "videogate-backend/internal/features/adsession/delivery/http"
	adredis "videogate-backend/internal/features/adsession/repository/redis"
	adservice "videogate-backend/internal/features/adsession/service"
	catalogredis "videogate-backend/internal/features/catalog/repository/redis"
	catalogservice "videogate-backend/internal/features/catalog/service"
	gatingservice "videogate-backend/internal/features/gating/service"
	userredis "videogate-backend/internal/features/user/repository/redis"
	userservice "videogate-backend/internal/features/user/service"
	apphttp "videogate-backend/internal/http"
	redisplatform "videogate-backend/internal/platform/redis"
	"videogate-backend/internal/platform/shortlink"
	"videogate-backend/internal/platform/telegram"
)

func main() {
	// Cancellable root context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger.Init("videogate", cfg.Debug)

	rdb, err := redisplatform.Open(ctx, cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis open")
	}
	defer rdb.Close()

	userRepo := userredis.NewUserRepository(rdb.Client)
	videoRepo := catalogredis.NewVideoRepository(rdb.Client)
	sessionRepo := adredis.NewSessionRepository(rdb.Client)

	ledger := userservice.NewLedgerService(userRepo, cfg.Quota.FreeLimit)
	catalog := catalogservice.NewCatalogService(videoRepo, userRepo)
	provider := shortlink.New(cfg.Shortlink.APIURL, cfg.Shortlink.APIKey)
	sessions := adservice.NewSessionService(sessionRepo, provider, cfg.Server.Domain)
	gating := gatingservice.NewGatingService(ledger, catalog, sessions)

	adHandler := adhttp.NewAdSessionHandler(sessions, gating, cfg.Shortlink.TargetURL)
	router := apphttp.NewRouter(cfg, adHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	tg := telegram.NewClient(cfg.Telegram.BotToken)
	dispatcher := bot.NewDispatcher(tg, gating, ledger, catalog, cfg)
	go dispatcher.Run(ctx)

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	logger.Info().Msg("server stopped")
}
