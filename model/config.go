package model

import "time"

// FilteringConfig holds the tunables of the filtering engine, read from data/filtering.yaml.
type FilteringConfig struct {
	AlertDelay            time.Duration `mapstructure:"alert_delay"`
	MessageCacheSize      int           `mapstructure:"message_cache_size"`
	OffensiveDeleteAfter  time.Duration `mapstructure:"offensive_msg_delete_time"`
	NicknameAlertInterval time.Duration `mapstructure:"nickname_alert_interval"`
	PasteURL              string        `mapstructure:"paste_url"`
	MetaChannelID         string        `mapstructure:"meta_channel_id"`
	DBPath                string        `mapstructure:"db_path"`
	// FilterListsPath is the JSON seed file the filter lists are reloaded from when it changes.
	FilterListsPath string `mapstructure:"filter_lists_path"`
}

// Config holds the configuration of the application.
type Config struct {
	BotToken                 string
	AppID                    string
	GuildID                  string
	LogChannelID             string
	ModAlertsChannelID       string
	FilterWebhookURL         string
	AttachmentLogChannelID   string
	AdminRoleIDs             []string
	SuperAdminRoleIDs        []string
	DeveloperUserIDs         []string
	RedisAddr                string
	MetricsAddr              string
	DisableCommandUnregister bool
	Filtering                FilteringConfig
}
