package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"filterbot/bot"
	"filterbot/config"
	"filterbot/handlers"
	"filterbot/utils/database"
)

func main() {
	cfg, err := config.Load(config.DefaultFilteringPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Filtering.DBPath), os.ModePerm); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	db, err := database.Open(cfg.Filtering.DBPath)
	if err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}

	b, err := bot.New(cfg, db)
	if err != nil {
		log.Fatalf("Error creating bot: %v", err)
	}
	defer b.Close()

	if err := seedFilterLists(b); err != nil {
		log.Printf("Error seeding filter lists: %v", err)
	}

	handlers.Register(b)

	b.Run()
}

// seedFilterLists fills an empty database from the filter list seed file.
func seedFilterLists(b *bot.Bot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stored, err := b.Store.FilterLists(ctx)
	if err != nil {
		return err
	}
	path := b.GetConfig().Filtering.FilterListsPath
	if len(stored) > 0 || path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("No filter lists stored and no seed file at %s, starting empty", path)
		return nil
	}
	records, err := config.LoadFilterLists(path)
	if err != nil {
		return err
	}
	log.Printf("Seeding %d filter lists from %s", len(records), path)
	return b.Store.ReplaceFilterLists(ctx, records)
}
