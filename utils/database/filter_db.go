package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"filterbot/model"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// ErrFilterNotFound is returned when a filter id does not exist.
var ErrFilterNotFound = errors.New("filter not found")

type filterListRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	ListType  int       `db:"list_type"`
	Settings  string    `db:"settings"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type filterRow struct {
	ID              int64     `db:"id"`
	FilterListID    int64     `db:"filter_list_id"`
	Content         string    `db:"content"`
	Description     string    `db:"description"`
	Settings        string    `db:"settings"`
	AdditionalField string    `db:"additional_field"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Open connects to the sqlite database at dbPath.
func Open(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %s: %w", dbPath, err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)
	return db, nil
}

// InitFilterTables ensures the filter list tables exist.
func InitFilterTables(db *sqlx.DB) error {
	schema := `
    CREATE TABLE IF NOT EXISTS filter_lists (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        list_type INTEGER NOT NULL,
        settings TEXT NOT NULL DEFAULT '{}',
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL,
        UNIQUE (name, list_type)
    );
    CREATE TABLE IF NOT EXISTS filters (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        filter_list_id INTEGER NOT NULL REFERENCES filter_lists(id) ON DELETE CASCADE,
        content TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        settings TEXT NOT NULL DEFAULT '{}',
        additional_field TEXT NOT NULL DEFAULT '{}',
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create filter tables: %w", err)
	}
	return nil
}

// GetFilterLists loads every filter list with its filters.
func GetFilterLists(ctx context.Context, db *sqlx.DB) ([]model.FilterListRecord, error) {
	var listRows []filterListRow
	if err := db.SelectContext(ctx, &listRows, "SELECT * FROM filter_lists ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to get filter lists: %w", err)
	}
	var rows []filterRow
	if err := db.SelectContext(ctx, &rows, "SELECT * FROM filters ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to get filters: %w", err)
	}

	byList := make(map[int64][]model.FilterRecord)
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		byList[r.FilterListID] = append(byList[r.FilterListID], rec)
	}

	records := make([]model.FilterListRecord, 0, len(listRows))
	for _, lr := range listRows {
		settings, err := decodeJSON(lr.Settings)
		if err != nil {
			return nil, fmt.Errorf("filter list %d has malformed settings: %w", lr.ID, err)
		}
		records = append(records, model.FilterListRecord{
			ID:        lr.ID,
			Name:      lr.Name,
			ListType:  lr.ListType,
			Settings:  settings,
			Filters:   byList[lr.ID],
			CreatedAt: lr.CreatedAt,
			UpdatedAt: lr.UpdatedAt,
		})
	}
	return records, nil
}

// GetFilterListID returns the id of the (name, list type) list.
func GetFilterListID(ctx context.Context, db *sqlx.DB, name string, listType int) (int64, error) {
	var id int64
	err := db.GetContext(ctx, &id, "SELECT id FROM filter_lists WHERE name = ? AND list_type = ?", name, listType)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("no %s list of type %d: %w", name, listType, ErrFilterNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get filter list %s: %w", name, err)
	}
	return id, nil
}

// AddFilter inserts a filter into a list and returns it with its new id.
func AddFilter(ctx context.Context, db *sqlx.DB, listID int64, rec model.FilterRecord) (model.FilterRecord, error) {
	settings, err := encodeJSON(rec.Settings)
	if err != nil {
		return rec, err
	}
	extra, err := encodeJSON(rec.AdditionalField)
	if err != nil {
		return rec, err
	}
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx,
		`INSERT INTO filters (filter_list_id, content, description, settings, additional_field, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		listID, rec.Content, rec.Description, settings, extra, now, now)
	if err != nil {
		return rec, fmt.Errorf("failed to insert filter: %w", err)
	}
	if rec.ID, err = result.LastInsertId(); err != nil {
		return rec, fmt.Errorf("failed to read new filter id: %w", err)
	}
	rec.CreatedAt, rec.UpdatedAt = now, now
	return rec, nil
}

// DeleteFilter deletes a filter by its id.
func DeleteFilter(ctx context.Context, db *sqlx.DB, id int64) error {
	result, err := db.ExecContext(ctx, "DELETE FROM filters WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete filter %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected for filter %d: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("filter %d: %w", id, ErrFilterNotFound)
	}
	return nil
}

// ReplaceFilterLists swaps every stored list for lists, in one transaction.
// Ids in the input are ignored.
func ReplaceFilterLists(ctx context.Context, db *sqlx.DB, lists []model.FilterListRecord) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM filters"); err != nil {
		return fmt.Errorf("failed to clear filters: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM filter_lists"); err != nil {
		return fmt.Errorf("failed to clear filter lists: %w", err)
	}

	now := time.Now().UTC()
	for _, list := range lists {
		settings, err := encodeJSON(list.Settings)
		if err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx,
			"INSERT INTO filter_lists (name, list_type, settings, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			list.Name, list.ListType, settings, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert filter list %s: %w", list.Name, err)
		}
		listID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read filter list id: %w", err)
		}
		for _, f := range list.Filters {
			fs, err := encodeJSON(f.Settings)
			if err != nil {
				return err
			}
			extra, err := encodeJSON(f.AdditionalField)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO filters (filter_list_id, content, description, settings, additional_field, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				listID, f.Content, f.Description, fs, extra, now, now); err != nil {
				return fmt.Errorf("failed to insert filter %q of %s: %w", f.Content, list.Name, err)
			}
		}
	}
	return tx.Commit()
}

func (r filterRow) record() (model.FilterRecord, error) {
	settings, err := decodeJSON(r.Settings)
	if err != nil {
		return model.FilterRecord{}, fmt.Errorf("filter %d has malformed settings: %w", r.ID, err)
	}
	extra, err := decodeJSON(r.AdditionalField)
	if err != nil {
		return model.FilterRecord{}, fmt.Errorf("filter %d has malformed additional fields: %w", r.ID, err)
	}
	return model.FilterRecord{
		ID:              r.ID,
		Content:         r.Content,
		Description:     r.Description,
		Settings:        settings,
		AdditionalField: extra,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}

func decodeJSON(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeJSON(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode settings: %w", err)
	}
	return string(b), nil
}
