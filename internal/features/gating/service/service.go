package service

import (
	"context"
	"errors"
	"time"

	"videogate-backend/internal/common/logger"
	admodels "videogate-backend/internal/features/adsession/models"
	adrepository "videogate-backend/internal/features/adsession/repository"
	catalogmodels "videogate-backend/internal/features/catalog/models"
	usermodels "videogate-backend/internal/features/user/models"
)

// UserLedger is the slice of the user ledger the orchestrator drives.
type UserLedger interface {
	Ensure(ctx context.Context, id int64, username string) (*usermodels.User, error)
	IsPremiumActive(user *usermodels.User) bool
	TryConsumeFreeUnit(ctx context.Context, id int64) (usermodels.ConsumeResult, error)
	ResetFreeCycle(ctx context.Context, id int64) error
	AdvanceCursor(ctx context.Context, id int64) error
	MarkSeen(ctx context.Context, id int64, itemID string) error
}

// CatalogCursor selects the next item for a user, nil when none remains.
type CatalogCursor interface {
	Next(ctx context.Context, user *usermodels.User) (*catalogmodels.Video, error)
}

// AdSessions is the ad verification lifecycle the orchestrator gates on.
type AdSessions interface {
	Create(ctx context.Context, userID int64) (*admodels.AdSession, error)
	Complete(ctx context.Context, token string) (alreadyCompleted bool, err error)
	Status(ctx context.Context, token string) (*admodels.AdSession, error)
}

// DeliveryKind classifies the outcome of a delivery request.
type DeliveryKind string

const (
	OutcomeDelivered           DeliveryKind = "delivered"
	OutcomeAdRequired          DeliveryKind = "ad_required"
	OutcomeCatalogExhausted    DeliveryKind = "catalog_exhausted"
	OutcomeProviderUnavailable DeliveryKind = "provider_unavailable"
)

// DeliveryOutcome carries the item to send or the ad session to present.
type DeliveryOutcome struct {
	Kind    DeliveryKind
	Item    *catalogmodels.Video
	Session *admodels.AdSession
	// User is the ledger state after the request's mutations.
	User *usermodels.User
}

// ConfirmKind classifies the outcome of an ad confirmation.
type ConfirmKind string

const (
	OutcomeUnlocked        ConfirmKind = "unlocked"
	OutcomeNotYetVerified  ConfirmKind = "not_yet_verified"
	OutcomeSessionNotFound ConfirmKind = "session_not_found"
)

// GatingService is the entry point for every inbound delivery or
// verification event. It is invoked concurrently, one call per event, with
// no ordering guarantees even across duplicates for the same user; the
// cross-request invariants live in the two conditional store writes it
// delegates to (TryConsumeFreeUnit, Complete).
type GatingService interface {
	HandleDeliveryRequest(ctx context.Context, userID int64, username string) (*DeliveryOutcome, error)
	HandleAdConfirmation(ctx context.Context, token string, claimedUserID int64) (ConfirmKind, error)
	// HandleProviderCompletion is the inbound callback path: it performs
	// the pending → completed transition and credits the quota reset to
	// the single call that won it.
	HandleProviderCompletion(ctx context.Context, token string) (ConfirmKind, error)
}

type gatingService struct {
	ledger   UserLedger
	cursor   CatalogCursor
	sessions AdSessions
}

func NewGatingService(ledger UserLedger, cursor CatalogCursor, sessions AdSessions) GatingService {
	return &gatingService{ledger: ledger, cursor: cursor, sessions: sessions}
}

func (s *gatingService) HandleDeliveryRequest(ctx context.Context, userID int64, username string) (*DeliveryOutcome, error) {
	user, err := s.ledger.Ensure(ctx, userID, username)
	if err != nil {
		return nil, err
	}

	if s.ledger.IsPremiumActive(user) {
		return s.deliverPremium(ctx, user)
	}
	return s.deliverFree(ctx, user)
}

func (s *gatingService) deliverPremium(ctx context.Context, user *usermodels.User) (*DeliveryOutcome, error) {
	item, err := s.cursor.Next(ctx, user)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return &DeliveryOutcome{Kind: OutcomeCatalogExhausted, User: user}, nil
	}

	if err := s.ledger.MarkSeen(ctx, user.ID, item.ID); err != nil {
		return nil, err
	}
	return &DeliveryOutcome{Kind: OutcomeDelivered, Item: item, User: user}, nil
}

func (s *gatingService) deliverFree(ctx context.Context, user *usermodels.User) (*DeliveryOutcome, error) {
	res, err := s.ledger.TryConsumeFreeUnit(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if !res.Granted {
		// Quota exhausted is a normal branch, not an error: gate on an ad.
		session, err := s.sessions.Create(ctx, user.ID)
		if err != nil {
			logger.Error().Err(err).Int64("user_id", user.ID).Msg("Ad session creation failed")
			return &DeliveryOutcome{Kind: OutcomeProviderUnavailable, User: user}, nil
		}
		return &DeliveryOutcome{Kind: OutcomeAdRequired, Session: session, User: user}, nil
	}

	user.FreeUsed = res.FreeUsed
	item, err := s.cursor.Next(ctx, user)
	if err != nil {
		return nil, err
	}
	if item == nil {
		// The consumed unit is deliberately not refunded: an empty catalog
		// is a content-availability condition, not a quota one.
		return &DeliveryOutcome{Kind: OutcomeCatalogExhausted, User: user}, nil
	}

	if err := s.ledger.AdvanceCursor(ctx, user.ID); err != nil {
		return nil, err
	}
	user.Cursor++
	return &DeliveryOutcome{Kind: OutcomeDelivered, Item: item, User: user}, nil
}

func (s *gatingService) HandleAdConfirmation(ctx context.Context, token string, claimedUserID int64) (ConfirmKind, error) {
	session, err := s.sessions.Status(ctx, token)
	if errors.Is(err, adrepository.ErrSessionNotFound) {
		return OutcomeSessionNotFound, nil
	}
	if err != nil {
		return "", err
	}

	if claimedUserID != 0 && claimedUserID != session.UserID {
		// Tokens are single-owner; a mismatch is suspicious but the token
		// itself is authoritative, matching the provider callback path.
		logger.Warn().Str("token", token).
			Int64("claimed", claimedUserID).
			Int64("owner", session.UserID).
			Msg("Ad confirmation user mismatch")
	}

	if !session.Completed() {
		// Never guess: require the provider (or the landing page) to have
		// reported completion first.
		return OutcomeNotYetVerified, nil
	}

	// Reconcile: the transition usually already happened on the callback
	// path, but whichever call performs it owns the single quota reset.
	if _, err := s.completeAndReset(ctx, token, session.UserID); err != nil {
		return "", err
	}
	return OutcomeUnlocked, nil
}

func (s *gatingService) HandleProviderCompletion(ctx context.Context, token string) (ConfirmKind, error) {
	session, err := s.sessions.Status(ctx, token)
	if errors.Is(err, adrepository.ErrSessionNotFound) {
		return OutcomeSessionNotFound, nil
	}
	if err != nil {
		return "", err
	}

	if _, err := s.completeAndReset(ctx, token, session.UserID); err != nil {
		return "", err
	}
	return OutcomeUnlocked, nil
}

// completeAndReset performs the idempotent completion and fires the quota
// reset exactly once per session, on the call that won the transition.
func (s *gatingService) completeAndReset(ctx context.Context, token string, userID int64) (bool, error) {
	alreadyCompleted, err := s.sessions.Complete(ctx, token)
	if err != nil {
		return false, err
	}
	if alreadyCompleted {
		return false, nil
	}

	if err := s.ledger.ResetFreeCycle(ctx, userID); err != nil {
		return false, err
	}
	logger.Info().Str("token", token).Int64("user_id", userID).Msg("Quota unlocked after verified ad")
	return true, nil
}

// ExpiresInfo is a small helper for presentation layers that want to show
// how long a premium window still runs.
func ExpiresInfo(user *usermodels.User, now time.Time) time.Duration {
	if user.PremiumUntil == nil || !user.PremiumUntil.After(now) {
		return 0
	}
	return user.PremiumUntil.Sub(now)
}
