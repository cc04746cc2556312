package model

import "time"

// InfractionRecord is an infraction the filters applied to a user.
// The database table is named 'infractions'.
type InfractionRecord struct {
	ID        int64     `db:"id"` // Primary Key, Auto-increment
	UserID    string    `db:"user_id"`
	GuildID   string    `db:"guild_id"`
	ChannelID string    `db:"channel_id"`
	Type      string    `db:"type"` // e.g. "TIMEOUT", "BAN"
	Reason    string    `db:"reason"`
	Duration  int64     `db:"duration"` // seconds, 0 when permanent
	CreatedAt time.Time `db:"created_at"`
}
