package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"filterbot/model"

	"github.com/stretchr/testify/require"
)

func TestLoadFilteringDefaults(t *testing.T) {
	cfg, err := LoadFiltering(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, 6*time.Second, cfg.AlertDelay)
	require.Equal(t, 1000, cfg.MessageCacheSize)
	require.Equal(t, 7*24*time.Hour, cfg.OffensiveDeleteAfter)
	require.Equal(t, "data/filtering.db", cfg.DBPath)
}

func TestLoadFilteringFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filtering.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
alert_delay: 10s
message_cache_size: 250
nickname_alert_interval: 1h30m
paste_url: https://paste.example.com
`), 0o644))

	cfg, err := LoadFiltering(path)
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.AlertDelay)
	require.Equal(t, 250, cfg.MessageCacheSize)
	require.Equal(t, 90*time.Minute, cfg.NicknameAlertInterval)
	require.Equal(t, "https://paste.example.com", cfg.PasteURL)

	require.NoError(t, os.WriteFile(path, []byte("message_cache_size: 0\n"), 0o644))
	_, err = LoadFiltering(path)
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("GUILD_ID", "g1")
	t.Setenv("MOD_ALERTS_CHANNEL_ID", "c1")
	t.Setenv("ADMIN_ROLE_IDS", "a1, a2,,")
	t.Setenv("DEVELOPER_USER_IDS", "")
	t.Setenv("FILTER_WEBHOOK_URL", "")

	cfg, err := Load("filtering.yaml")
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "a2"}, cfg.AdminRoleIDs)
	require.Nil(t, cfg.DeveloperUserIDs)
	require.Equal(t, 1000, cfg.Filtering.MessageCacheSize)

	t.Setenv("MOD_ALERTS_CHANNEL_ID", "")
	_, err = Load("filtering.yaml")
	require.Error(t, err)
}

func TestWatcherReloadsChangedLists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter_lists.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))

	var mu sync.Mutex
	var got [][]model.FilterListRecord
	w, err := NewFilterListWatcher(path, 20*time.Millisecond, func(_ context.Context, records []model.FilterListRecord) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, records)
		return nil
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Malformed content is ignored.
	require.NoError(t, os.WriteFile(path, []byte(`[{`), 0o644))
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	require.Empty(t, got)
	mu.Unlock()

	require.NoError(t, os.WriteFile(path, []byte(`[{"id": 1, "name": "token", "list_type": 0, "settings": {"enabled": true}, "filters": [{"id": 3, "content": "bad"}]}]`), 0o644))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "token", got[0][0].Name)
	require.Equal(t, "bad", got[0][0].Filters[0].Content)
}
