package bot

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"filterbot/commands"
	"filterbot/config"
	"filterbot/filtering"
	"filterbot/filtering/alert"
	"filterbot/model"
	"filterbot/utils/database"

	"github.com/bwmarrin/discordgo"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type Bot struct {
	Session            *discordgo.Session
	RegisteredCommands []*discordgo.ApplicationCommand
	config             atomic.Value // *model.Config
	CommandHandlers    map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate)
	DB                 *sqlx.DB
	Store              *database.Store
	Client             *filtering.DiscordClient
	Filtering          *filtering.Filtering
	redis              *redis.Client
	scheduler          *Scheduler
}

func (b *Bot) GetConfig() *model.Config {
	return b.config.Load().(*model.Config)
}

func (b *Bot) GetDB() *sqlx.DB {
	return b.DB
}

func (b *Bot) GetSession() *discordgo.Session {
	return b.Session
}

// New wires the gateway session, the stores and the filtering engine together.
// Nothing talks to Discord until Run is called.
func New(cfg *model.Config, db *sqlx.DB) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent |
		discordgo.IntentsGuildVoiceStates | discordgo.IntentsGuildMembers
	// Channel, member and role lookups are served from the state cache first.
	dg.StateEnabled = true

	store, err := database.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare filtering tables: %w", err)
	}

	sink, err := newAlertSink(dg, cfg)
	if err != nil {
		return nil, err
	}

	b := &Bot{
		Session: dg,
		DB:      db,
		Store:   store,
	}
	b.config.Store(cfg)

	var nameAlerts filtering.NameAlertStore
	if cfg.RedisAddr != "" {
		b.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		nameAlerts = filtering.NewRedisNameAlerts(b.redis, cfg.Filtering.NicknameAlertInterval)
	}

	b.Client = filtering.NewDiscordClient(dg, filtering.DiscordClientConfig{
		GuildID:                cfg.GuildID,
		ModAlertsChannelID:     cfg.ModAlertsChannelID,
		AttachmentLogChannelID: cfg.AttachmentLogChannelID,
	}, store)

	b.Filtering, err = filtering.New(filtering.Config{
		GuildID:              cfg.GuildID,
		AlertDelay:           cfg.Filtering.AlertDelay,
		MessageCacheSize:     cfg.Filtering.MessageCacheSize,
		OffensiveDeleteAfter: cfg.Filtering.OffensiveDeleteAfter,
		NameAlertInterval:    cfg.Filtering.NicknameAlertInterval,
		PasteURL:             cfg.Filtering.PasteURL,
		MetaChannelID:        cfg.Filtering.MetaChannelID,
	}, filtering.Deps{
		Client:     b.Client,
		Resolver:   b.Client,
		Alerts:     sink,
		Rules:      store,
		Offensive:  store,
		NameAlerts: nameAlerts,
	})
	if err != nil {
		b.Client.Close()
		return nil, fmt.Errorf("failed to create filtering: %w", err)
	}
	b.scheduler = NewScheduler(b)
	return b, nil
}

// newAlertSink prefers the filter webhook, falling back to posting in the mod alerts channel.
func newAlertSink(s *discordgo.Session, cfg *model.Config) (alert.Sink, error) {
	if cfg.FilterWebhookURL != "" {
		sink, err := alert.NewWebhookSink(s, cfg.FilterWebhookURL)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	return alert.NewChannelSink(s, cfg.ModAlertsChannelID), nil
}

func (b *Bot) Close() {
	log.Println("Gracefully shutting down.")
	b.scheduler.Stop()
	b.Filtering.Close()
	b.Client.Close()
	if err := b.Session.Close(); err != nil {
		log.Printf("Error closing session: %v", err)
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			log.Printf("Error closing redis client: %v", err)
		}
	}
	if err := b.DB.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

func (b *Bot) RefreshCommands(guildID string) {
	log.Printf("Updating commands for guild %s", guildID)

	cmds := commands.GenerateCommands()
	log.Printf("Registering %d new commands for guild %s...", len(cmds), guildID)
	registeredCmds, err := b.Session.ApplicationCommandBulkOverwrite(b.Session.State.User.ID, guildID, cmds)
	if err != nil {
		log.Printf("cannot update commands for guild '%s': %v", guildID, err)
		return
	}
	b.RegisteredCommands = append(b.RegisteredCommands, registeredCmds...)
}

// UnregisterCommands removes every command the application registered in a guild.
func (b *Bot) UnregisterCommands(guildID string) {
	registered, err := b.Session.ApplicationCommands(b.Session.State.User.ID, guildID)
	if err != nil {
		log.Printf("Could not fetch registered commands for guild %s: %v", guildID, err)
		return
	}
	for _, cmd := range registered {
		if err := b.Session.ApplicationCommandDelete(b.Session.State.User.ID, guildID, cmd.ID); err != nil {
			log.Printf("Cannot delete '%v' command in guild %s: %v", cmd.Name, guildID, err)
		}
	}
}

// ReloadFilterLists replaces the stored filter lists with records and rebuilds the engine from the store.
func (b *Bot) ReloadFilterLists(ctx context.Context, records []model.FilterListRecord) error {
	if err := b.Store.ReplaceFilterLists(ctx, records); err != nil {
		return fmt.Errorf("failed to store filter lists: %w", err)
	}
	return b.Filtering.Load(ctx)
}

// ReloadFilterListsFromFile reads the seed file and applies it like ReloadFilterLists.
func (b *Bot) ReloadFilterListsFromFile(ctx context.Context) error {
	log.Println("Reloading filter lists...")
	records, err := config.LoadFilterLists(b.GetConfig().Filtering.FilterListsPath)
	if err != nil {
		return err
	}
	if err := b.ReloadFilterLists(ctx, records); err != nil {
		return err
	}
	log.Printf("Reloaded %d filter lists.", len(records))
	return nil
}
