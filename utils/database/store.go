package database

import (
	"context"

	"filterbot/model"

	"github.com/jmoiron/sqlx"
)

// Store exposes the filtering tables through the interfaces the filtering engine consumes.
type Store struct {
	DB *sqlx.DB
}

// NewStore creates every filtering table on db.
func NewStore(db *sqlx.DB) (*Store, error) {
	for _, initTable := range []func(*sqlx.DB) error{InitFilterTables, InitInfractionTable, InitOffensiveTable} {
		if err := initTable(db); err != nil {
			return nil, err
		}
	}
	return &Store{DB: db}, nil
}

func (s *Store) FilterLists(ctx context.Context) ([]model.FilterListRecord, error) {
	return GetFilterLists(ctx, s.DB)
}

func (s *Store) AddFilter(ctx context.Context, name string, listType int, rec model.FilterRecord) (model.FilterRecord, error) {
	listID, err := GetFilterListID(ctx, s.DB, name, listType)
	if err != nil {
		return rec, err
	}
	return AddFilter(ctx, s.DB, listID, rec)
}

func (s *Store) DeleteFilter(ctx context.Context, id int64) error {
	return DeleteFilter(ctx, s.DB, id)
}

func (s *Store) ReplaceFilterLists(ctx context.Context, lists []model.FilterListRecord) error {
	return ReplaceFilterLists(ctx, s.DB, lists)
}

func (s *Store) AddOffensive(ctx context.Context, msg model.OffensiveMessage) error {
	return AddOffensiveMessage(ctx, s.DB, msg)
}

func (s *Store) PendingOffensive(ctx context.Context) ([]model.OffensiveMessage, error) {
	return GetOffensiveMessages(ctx, s.DB)
}

func (s *Store) DeleteOffensive(ctx context.Context, messageID string) error {
	return DeleteOffensiveMessage(ctx, s.DB, messageID)
}

func (s *Store) AddInfraction(ctx context.Context, rec model.InfractionRecord) (int64, error) {
	return AddInfractionRecord(ctx, s.DB, rec)
}

func (s *Store) Infractions(ctx context.Context, userID string) ([]model.InfractionRecord, error) {
	return GetInfractionRecordsByUserID(ctx, s.DB, userID, nil)
}
