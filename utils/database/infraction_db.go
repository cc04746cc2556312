package database

import (
	"context"
	"fmt"
	"time"

	"filterbot/model"

	"github.com/jmoiron/sqlx"
)

// InitInfractionTable ensures the infractions table exists.
func InitInfractionTable(db *sqlx.DB) error {
	schema := `CREATE TABLE IF NOT EXISTS infractions (
	          id INTEGER PRIMARY KEY AUTOINCREMENT,
	          user_id TEXT NOT NULL,
	          guild_id TEXT NOT NULL,
	          channel_id TEXT NOT NULL DEFAULT '',
	          type TEXT NOT NULL,
	          reason TEXT NOT NULL DEFAULT '',
	          duration INTEGER NOT NULL DEFAULT 0,
	          created_at DATETIME NOT NULL
	      );
	      CREATE INDEX IF NOT EXISTS idx_infractions_user ON infractions (user_id);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create infractions table: %w", err)
	}
	return nil
}

// AddInfractionRecord stores an applied infraction and returns its id.
func AddInfractionRecord(ctx context.Context, db *sqlx.DB, record model.InfractionRecord) (int64, error) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO infractions (user_id, guild_id, channel_id, type, reason, duration, created_at)
	          VALUES (:user_id, :guild_id, :channel_id, :type, :reason, :duration, :created_at)`
	result, err := db.NamedExecContext(ctx, query, record)
	if err != nil {
		return 0, fmt.Errorf("failed to insert infraction record: %w", err)
	}
	return result.LastInsertId()
}

// GetInfractionRecordsByUserID retrieves a user's infractions, newest first, optionally since a time.
func GetInfractionRecordsByUserID(ctx context.Context, db *sqlx.DB, userID string, since *time.Time) ([]model.InfractionRecord, error) {
	var records []model.InfractionRecord
	query := "SELECT * FROM infractions WHERE user_id = ?"
	args := []interface{}{userID}

	if since != nil {
		query += " AND created_at >= ?"
		args = append(args, since.UTC())
	}
	query += " ORDER BY created_at DESC, id DESC"

	if err := db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get infraction records for user %s: %w", userID, err)
	}
	return records, nil
}
