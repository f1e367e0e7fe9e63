package models

import "time"

// Video is an immutable catalog item. The FileID is an opaque Telegram file
// reference handed back to the transport when the item is delivered.
type Video struct {
	ID         string    `json:"id"`
	FileID     string    `json:"file_id"`
	Caption    string    `json:"caption"`
	UploaderID int64     `json:"uploader_id,omitempty"`
	ChannelID  int64     `json:"channel_id,omitempty"`
	MessageID  int       `json:"message_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
