package bot

import (
	"context"
	"time"

	"videogate-backend/internal/common/config"
	"videogate-backend/internal/common/logger"
	catalogservice "videogate-backend/internal/features/catalog/service"
	gatingservice "videogate-backend/internal/features/gating/service"
	userservice "videogate-backend/internal/features/user/service"
	"videogate-backend/internal/platform/telegram"
)

const pollTimeoutSeconds = 30

// API is the outbound transport surface the dispatcher uses. Sends may fail
// (permissions, malformed payloads) and are reported, never fatal.
type API interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error
	SendVideo(ctx context.Context, chatID int64, fileID, caption string, keyboard *telegram.InlineKeyboardMarkup) error
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, keyboard *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string, showAlert bool) error
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error)
}

// Dispatcher consumes Bot API updates and routes them to the gating engine.
// Each update is handled on its own goroutine; there is no per-user ordering
// here, the store-side conditional writes carry the invariants.
type Dispatcher struct {
	api     API
	gating  gatingservice.GatingService
	ledger  userservice.LedgerService
	catalog catalogservice.CatalogService
	cfg     *config.Config
}

func NewDispatcher(api API, gating gatingservice.GatingService, ledger userservice.LedgerService, catalog catalogservice.CatalogService, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		api:     api,
		gating:  gating,
		ledger:  ledger,
		catalog: catalog,
		cfg:     cfg,
	}
}

// Run long-polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	logger.Info().Msg("Bot dispatcher started")
	var offset int64

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Bot dispatcher stopped")
			return
		default:
		}

		updates, err := d.api.GetUpdates(ctx, offset, pollTimeoutSeconds)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error().Err(err).Msg("getUpdates failed")
			time.Sleep(3 * time.Second)
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			go d.handleUpdate(ctx, update)
		}
	}
}

func (d *Dispatcher) handleUpdate(ctx context.Context, update telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Int64("update_id", update.UpdateID).Msg("Update handler panicked")
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		d.handleCallback(ctx, update.CallbackQuery)
	case update.ChannelPost != nil:
		d.handleChannelPost(ctx, update.ChannelPost)
	case update.Message != nil:
		d.handleMessage(ctx, update.Message)
	default:
		logger.Debug().Int64("update_id", update.UpdateID).Msg("Ignoring unknown update type")
	}
}
