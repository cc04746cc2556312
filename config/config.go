package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"filterbot/model"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultFilteringPath is where the filtering tunables are read from.
const DefaultFilteringPath = "data/filtering.yaml"

// Load loads the configuration from environment variables and the filtering tunables file.
func Load(filteringPath string) (*model.Config, error) {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Info: .env file not found, relying on environment variables")
	}

	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		return nil, errors.New("BOT_TOKEN environment variable not set")
	}

	guildID := os.Getenv("GUILD_ID")
	if guildID == "" {
		return nil, errors.New("GUILD_ID environment variable not set")
	}

	logChannelID := os.Getenv("LOG_CHANNEL_ID")
	if logChannelID == "" {
		log.Println("Warning: LOG_CHANNEL_ID not set, logging will be disabled")
	}

	webhookURL := os.Getenv("FILTER_WEBHOOK_URL")
	modAlerts := os.Getenv("MOD_ALERTS_CHANNEL_ID")
	if webhookURL == "" && modAlerts == "" {
		return nil, errors.New("either FILTER_WEBHOOK_URL or MOD_ALERTS_CHANNEL_ID must be set")
	}

	filtering, err := LoadFiltering(filteringPath)
	if err != nil {
		return nil, err
	}

	return &model.Config{
		BotToken:                 token,
		AppID:                    os.Getenv("APP_ID"),
		GuildID:                  guildID,
		LogChannelID:             logChannelID,
		ModAlertsChannelID:       modAlerts,
		FilterWebhookURL:         webhookURL,
		AttachmentLogChannelID:   os.Getenv("ATTACHMENT_LOG_CHANNEL_ID"),
		AdminRoleIDs:             splitIDs(os.Getenv("ADMIN_ROLE_IDS")),
		SuperAdminRoleIDs:        splitIDs(os.Getenv("SUPER_ADMIN_ROLE_IDS")),
		DeveloperUserIDs:         splitIDs(os.Getenv("DEVELOPER_USER_IDS")),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		MetricsAddr:              os.Getenv("METRICS_ADDR"),
		DisableCommandUnregister: os.Getenv("DISABLE_COMMAND_UNREGISTER") == "true",
		Filtering:                filtering,
	}, nil
}

// LoadFiltering reads the filtering tunables. A missing file leaves every default in place.
func LoadFiltering(path string) (model.FilteringConfig, error) {
	v := viper.New()
	v.SetDefault("alert_delay", 6*time.Second)
	v.SetDefault("message_cache_size", 1000)
	v.SetDefault("offensive_msg_delete_time", 7*24*time.Hour)
	v.SetDefault("nickname_alert_interval", 3*time.Hour)
	v.SetDefault("paste_url", "https://paste.pythondiscord.com")
	v.SetDefault("meta_channel_id", "")
	v.SetDefault("db_path", "data/filtering.db")
	v.SetDefault("filter_lists_path", "data/filter_lists.json")
	v.SetEnvPrefix("FILTERING")
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return model.FilteringConfig{}, fmt.Errorf("failed to read %s: %w", path, err)
			}
		}
		log.Printf("Warning: Config file not found at %s, using defaults.", path)
	}

	var cfg model.FilteringConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if cfg.MessageCacheSize <= 0 {
		return cfg, fmt.Errorf("message_cache_size must be positive, got %d", cfg.MessageCacheSize)
	}
	return cfg, nil
}

// LoadFilterLists reads the filter list seed file.
func LoadFilterLists(path string) ([]model.FilterListRecord, error) {
	var records []model.FilterListRecord
	if err := loadJSON(path, &records); err != nil {
		return nil, fmt.Errorf("failed to load filter lists from %s: %w", path, err)
	}
	return records, nil
}

func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
