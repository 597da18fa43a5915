package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const DefaultMaxContentLength = 2000

type MessageID string

type MessageType string

const (
	TextMessage   MessageType = "text"
	SystemMessage MessageType = "system"
)

type Message struct {
	ID        MessageID   `json:"id"`
	RoomID    RoomID      `json:"roomId"`
	SenderID  UserID      `json:"senderId"`
	Username  string      `json:"username"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	CreatedAt time.Time   `json:"createdAt"`
}

// MessageRecord is what persistence hands back after storing a message.
type MessageRecord struct {
	ID        MessageID
	CreatedAt time.Time
}

// NormalizeContent trims the content and checks it against maxLen runes.
func NormalizeContent(content string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyContent
	}
	if maxLen > 0 && utf8.RuneCountInString(trimmed) > maxLen {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}
