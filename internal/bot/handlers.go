package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"videogate-backend/internal/common/logger"
	catalogmodels "videogate-backend/internal/features/catalog/models"
	gatingservice "videogate-backend/internal/features/gating/service"
	"videogate-backend/internal/platform/telegram"
)

// timeNow is swapped in tests.
var timeNow = time.Now

func (d *Dispatcher) handleMessage(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if _, err := d.ledger.Ensure(ctx, userID, msg.From.Username); err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Ensure user failed")
		d.reply(ctx, chatID, "Something went wrong. Try again later.", nil)
		return
	}

	text := strings.TrimSpace(msg.Text)
	switch {
	case text == "/start":
		d.reply(ctx, chatID,
			fmt.Sprintf("Welcome. Get %d free videos to start. Subscribe for unlimited access.", d.cfg.Quota.FreeLimit),
			startKeyboard())

	case strings.HasPrefix(text, "/grant_premium"):
		d.handleGrantPremium(ctx, msg)

	case text == "/list_videos":
		d.handleListVideos(ctx, msg)

	case strings.HasPrefix(text, "/broadcast"):
		d.handleBroadcast(ctx, msg)

	case text == "/import" || msg.Video != nil || msg.Document != nil:
		d.handleImport(ctx, msg)

	default:
		d.reply(ctx, chatID, "Please use the menu buttons below 👇", startKeyboard())
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	userID := cb.From.ID
	chatID := cb.Message.Chat.ID

	if err := d.api.AnswerCallbackQuery(ctx, cb.ID, "", false); err != nil {
		logger.Warn().Err(err).Msg("answerCallbackQuery failed")
	}

	switch {
	case cb.Data == callbackFreeVideo:
		d.handleFreeVideo(ctx, userID, cb.From.Username, chatID)

	case strings.HasPrefix(cb.Data, callbackAdCheckPfx):
		token := strings.TrimPrefix(cb.Data, callbackAdCheckPfx)
		d.handleAdCheck(ctx, userID, chatID, token)

	case cb.Data == callbackSubscribe:
		d.reply(ctx, chatID, "To subscribe: contact the admin to activate a premium plan.", nil)

	case cb.Data == callbackHelp:
		d.reply(ctx, chatID,
			fmt.Sprintf("Help:\nFree %d videos, then watch an ad to unlock the next %d. Subscribe for unlimited.",
				d.cfg.Quota.FreeLimit, d.cfg.Quota.FreeLimit), nil)
	}
}

func (d *Dispatcher) handleFreeVideo(ctx context.Context, userID int64, username string, chatID int64) {
	outcome, err := d.gating.HandleDeliveryRequest(ctx, userID, username)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Delivery request failed")
		d.reply(ctx, chatID, "Something went wrong. Try again later.", nil)
		return
	}

	switch outcome.Kind {
	case gatingservice.OutcomeDelivered:
		d.deliver(ctx, chatID, outcome)

	case gatingservice.OutcomeAdRequired:
		d.reply(ctx, chatID,
			fmt.Sprintf("You've used %d free videos. Watch a short ad to unlock more.", outcome.User.FreeLimit),
			adKeyboard(outcome.Session.ShortURL, outcome.Session.Token))

	case gatingservice.OutcomeCatalogExhausted:
		d.reply(ctx, chatID, "No videos available right now. Check back later.", nil)

	case gatingservice.OutcomeProviderUnavailable:
		d.reply(ctx, chatID, "Failed to create ad session. Try again later.", nil)
	}
}

// deliver sends the item and the follow-up progress message. Ledger state is
// already committed at this point: a failed send is logged, never retried,
// so counters cannot drift.
func (d *Dispatcher) deliver(ctx context.Context, chatID int64, outcome *gatingservice.DeliveryOutcome) {
	item := outcome.Item
	if err := d.api.SendVideo(ctx, chatID, item.FileID, item.Caption, nil); err != nil {
		logger.Error().Err(err).
			Int64("chat_id", chatID).
			Str("video_id", item.ID).
			Msg("Video delivery failed after state commit")
		d.reply(ctx, chatID, "Failed to deliver video. Try later.", nil)
		return
	}

	user := outcome.User
	if user.IsPremiumActive(timeNow()) {
		left := gatingservice.ExpiresInfo(user, timeNow())
		d.reply(ctx, chatID,
			fmt.Sprintf("Premium (%d days left): play next or browse.", int(left.Hours()/24)+1),
			startKeyboard())
		return
	}
	d.reply(ctx, chatID,
		fmt.Sprintf("Free videos used: %d / %d", user.FreeUsed, user.FreeLimit),
		nextVideoKeyboard())
}

func (d *Dispatcher) handleAdCheck(ctx context.Context, userID, chatID int64, token string) {
	outcome, err := d.gating.HandleAdConfirmation(ctx, token, userID)
	if err != nil {
		logger.Error().Err(err).Str("token", token).Msg("Ad confirmation failed")
		d.reply(ctx, chatID, "Could not verify ad. Try again later.", nil)
		return
	}

	switch outcome {
	case gatingservice.OutcomeUnlocked:
		d.reply(ctx, chatID, "Ad verified, next free batch unlocked. Press Free Video.", startKeyboard())
	case gatingservice.OutcomeNotYetVerified:
		d.reply(ctx, chatID, "Ad not verified yet. Finish the ad, wait a few seconds and press the button again.", nil)
	case gatingservice.OutcomeSessionNotFound:
		d.reply(ctx, chatID, "Session not found or expired. Press Free Video to get a fresh link.", startKeyboard())
	}
}

func (d *Dispatcher) handleChannelPost(ctx context.Context, post *telegram.Message) {
	if post.Video == nil {
		return
	}
	_, err := d.catalog.Import(ctx, &catalogmodels.Video{
		FileID:    post.Video.FileID,
		Caption:   post.Caption,
		ChannelID: post.Chat.ID,
		MessageID: post.MessageID,
	})
	if err != nil {
		logger.Error().Err(err).Int64("channel_id", post.Chat.ID).Msg("Channel import failed")
	}
}

func (d *Dispatcher) handleGrantPremium(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID
	if !d.cfg.IsAdmin(msg.From.ID) {
		d.reply(ctx, chatID, "Unauthorized.", nil)
		return
	}

	args := strings.Fields(msg.Text)
	if len(args) < 3 {
		d.reply(ctx, chatID, "Usage: /grant_premium <user_id> <days>", nil)
		return
	}
	target, err1 := strconv.ParseInt(args[1], 10, 64)
	days, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil || days <= 0 {
		d.reply(ctx, chatID, "Usage: /grant_premium <user_id> <days>", nil)
		return
	}

	until, err := d.ledger.GrantPremium(ctx, target, days)
	if err != nil {
		logger.Error().Err(err).Int64("target", target).Msg("Grant premium failed")
		d.reply(ctx, chatID, "Failed to grant premium. Try again later.", nil)
		return
	}
	d.reply(ctx, chatID, fmt.Sprintf("Granted premium to %d until %s", target, until.Format("2006-01-02")), nil)
}

func (d *Dispatcher) handleImport(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID
	if !d.cfg.IsAdmin(msg.From.ID) {
		return
	}

	source := msg
	if msg.Video == nil && msg.Document == nil && msg.ReplyToMessage != nil {
		source = msg.ReplyToMessage
	}

	var fileID string
	switch {
	case source.Video != nil:
		fileID = source.Video.FileID
	case source.Document != nil:
		fileID = source.Document.FileID
	default:
		d.reply(ctx, chatID, "Send/forward a message that contains a video file/document.", nil)
		return
	}

	video, err := d.catalog.Import(ctx, &catalogmodels.Video{
		FileID:     fileID,
		Caption:    source.Caption,
		UploaderID: msg.From.ID,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Import failed")
		d.reply(ctx, chatID, "Import failed. Try again later.", nil)
		return
	}
	d.reply(ctx, chatID, fmt.Sprintf("Imported video id=%s", video.ID), nil)
}

func (d *Dispatcher) handleListVideos(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID
	if !d.cfg.IsAdmin(msg.From.ID) {
		d.reply(ctx, chatID, "Unauthorized.", nil)
		return
	}

	videos, err := d.catalog.Latest(ctx, 100)
	if err != nil {
		logger.Error().Err(err).Msg("List videos failed")
		d.reply(ctx, chatID, "Failed to list videos.", nil)
		return
	}
	if len(videos) == 0 {
		d.reply(ctx, chatID, "No videos.", nil)
		return
	}

	var b strings.Builder
	b.WriteString("Videos:\n")
	for _, v := range videos {
		caption := v.Caption
		if len(caption) > 40 {
			caption = caption[:40]
		}
		fmt.Fprintf(&b, "%s | %s\n", v.ID, caption)
	}
	d.reply(ctx, chatID, b.String(), nil)
}

func (d *Dispatcher) handleBroadcast(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID
	if !d.cfg.IsAdmin(msg.From.ID) {
		d.reply(ctx, chatID, "Unauthorized.", nil)
		return
	}

	args := strings.Fields(msg.Text)
	if len(args) < 3 {
		d.reply(ctx, chatID, "Usage: /broadcast <video_id> <chat_id1> <chat_id2> ...", nil)
		return
	}

	video, err := d.catalog.Get(ctx, args[1])
	if err != nil {
		d.reply(ctx, chatID, "Video not found.", nil)
		return
	}

	var sent, failed int
	for _, raw := range args[2:] {
		target, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			failed++
			continue
		}
		if err := d.api.SendVideo(ctx, target, video.FileID, video.Caption, nil); err != nil {
			logger.Warn().Err(err).Int64("target", target).Msg("Broadcast send failed")
			failed++
			continue
		}
		sent++
	}
	d.reply(ctx, chatID, fmt.Sprintf("Broadcast complete. sent=%d, failed=%d", sent, failed), nil)
}

// reply is a best-effort outbound send; failures are logged and swallowed so
// the dispatcher never crashes on transport errors.
func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) {
	if err := d.api.SendMessage(ctx, chatID, text, keyboard); err != nil {
		logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Send message failed")
	}
}
