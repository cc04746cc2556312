package model

import "time"

// OffensiveMessage is a message that triggered a filter but was left in place.
// It is deleted once DeleteAt passes.
type OffensiveMessage struct {
	ID        int64     `db:"id"`
	MessageID string    `db:"message_id"`
	ChannelID string    `db:"channel_id"`
	DeleteAt  time.Time `db:"delete_at"`
}
