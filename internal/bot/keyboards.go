package bot

import "videogate-backend/internal/platform/telegram"

const (
	callbackFreeVideo  = "free_video"
	callbackSubscribe  = "subscribe"
	callbackHelp       = "help"
	callbackAdCheckPfx = "ad_check:"
)

func startKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "Free Video 🎁", CallbackData: callbackFreeVideo}},
		{{Text: "Subscribe (premium)", CallbackData: callbackSubscribe}},
		{{Text: "Help", CallbackData: callbackHelp}},
	}}
}

func adKeyboard(shortURL, token string) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "Open Short Ad 🔗", URL: shortURL}},
		{{Text: "I watched the ad ✅", CallbackData: callbackAdCheckPfx + token}},
		{{Text: "Subscribe (no ads)", CallbackData: callbackSubscribe}},
	}}
}

func nextVideoKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "Next Free Video ▶️", CallbackData: callbackFreeVideo}},
	}}
}
