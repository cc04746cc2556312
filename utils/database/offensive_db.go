package database

import (
	"context"
	"fmt"

	"filterbot/model"

	"github.com/jmoiron/sqlx"
)

// InitOffensiveTable ensures the table of messages awaiting deletion exists.
func InitOffensiveTable(db *sqlx.DB) error {
	schema := `
    CREATE TABLE IF NOT EXISTS offensive_messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        message_id TEXT NOT NULL UNIQUE,
        channel_id TEXT NOT NULL,
        delete_at DATETIME NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create offensive_messages table: %w", err)
	}
	return nil
}

// AddOffensiveMessage records a message for later deletion. Recording the same message again moves its deadline.
func AddOffensiveMessage(ctx context.Context, db *sqlx.DB, msg model.OffensiveMessage) error {
	msg.DeleteAt = msg.DeleteAt.UTC()
	query := `INSERT INTO offensive_messages (message_id, channel_id, delete_at)
              VALUES (:message_id, :channel_id, :delete_at)
              ON CONFLICT (message_id) DO UPDATE SET delete_at = excluded.delete_at`
	if _, err := db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("failed to insert offensive message %s: %w", msg.MessageID, err)
	}
	return nil
}

// GetOffensiveMessages returns every message awaiting deletion, soonest first.
func GetOffensiveMessages(ctx context.Context, db *sqlx.DB) ([]model.OffensiveMessage, error) {
	var msgs []model.OffensiveMessage
	if err := db.SelectContext(ctx, &msgs, "SELECT * FROM offensive_messages ORDER BY delete_at"); err != nil {
		return nil, fmt.Errorf("failed to get offensive messages: %w", err)
	}
	return msgs, nil
}

// DeleteOffensiveMessage forgets a message, whether or not it was pending.
func DeleteOffensiveMessage(ctx context.Context, db *sqlx.DB, messageID string) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM offensive_messages WHERE message_id = ?", messageID); err != nil {
		return fmt.Errorf("failed to delete offensive message %s: %w", messageID, err)
	}
	return nil
}
