package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filterbot/utils"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) Run() {
	err := b.Session.Open()
	if err != nil {
		log.Fatalf("Error opening connection: %v", err)
	}
	cfg := b.GetConfig()

	if !cfg.DisableCommandUnregister {
		log.Println("Unregistering all commands from the home guild...")
		b.UnregisterCommands(cfg.GuildID)
	}

	log.Println("Registering commands...")
	b.RegisteredCommands = make([]*discordgo.ApplicationCommand, 0)
	b.RefreshCommands(cfg.GuildID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if err := b.Filtering.Load(ctx); err != nil {
		log.Printf("Error loading filter lists: %v", err)
		b.logError("Load", err)
	}
	if err := b.Filtering.RescheduleOffensive(ctx); err != nil {
		log.Printf("Error rescheduling offensive messages: %v", err)
		b.logError("RescheduleOffensive", err)
	}
	cancel()

	b.scheduler.Start()

	fmt.Println("Bot is now running. Press CTRL-C to exit.")
	if err := utils.LogInfo(b.Session, cfg.LogChannelID, "System", "Startup", "Bot has started successfully."); err != nil {
		log.Printf("Failed to send startup log: %v", err)
	}
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
}

// logError posts a filtering failure to the log channel.
func (b *Bot) logError(operation string, err error) {
	if lerr := utils.LogError(b.Session, b.GetConfig().LogChannelID, "Filtering", operation, err.Error()); lerr != nil {
		log.Printf("Failed to send error log: %v", lerr)
	}
}
