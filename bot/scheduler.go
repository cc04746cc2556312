package bot

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"filterbot/config"
	"filterbot/model"
	"filterbot/utils"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const offensiveSweepInterval = time.Hour

// Scheduler manages the background tasks of the bot.
type Scheduler struct {
	bot    *Bot
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler.
func NewScheduler(bot *Bot) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		bot:    bot,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins all scheduled tasks.
func (s *Scheduler) Start() {
	cfg := s.bot.GetConfig()

	s.wg.Add(1)
	go s.startScheduledTasks()

	if cfg.Filtering.FilterListsPath != "" {
		watcher, err := config.NewFilterListWatcher(cfg.Filtering.FilterListsPath, 0, s.reloadFilterLists)
		if err != nil {
			log.Printf("Filter list hot reload disabled: %v", err)
		} else {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				watcher.Run(s.ctx)
			}()
		}
	}

	if cfg.MetricsAddr != "" {
		s.wg.Add(1)
		go s.serveMetrics(cfg.MetricsAddr)
	}
}

// reloadFilterLists applies an edited seed file. A bad edit keeps the running lists, so it is only a warning.
func (s *Scheduler) reloadFilterLists(ctx context.Context, records []model.FilterListRecord) error {
	err := s.bot.ReloadFilterLists(ctx, records)
	if err != nil {
		if lerr := utils.LogWarn(s.bot.Session, s.bot.GetConfig().LogChannelID, "Filtering", "Hot reload", err.Error()); lerr != nil {
			log.Printf("Failed to send warning log: %v", lerr)
		}
	}
	return err
}

// Stop terminates all scheduled tasks gracefully.
func (s *Scheduler) Stop() {
	log.Println("Stopping scheduler...")
	s.cancel()
	s.wg.Wait()
	log.Println("Scheduler stopped.")
}

func (s *Scheduler) startScheduledTasks() {
	defer s.wg.Done()
	offensiveTicker := time.NewTicker(offensiveSweepInterval)
	defer offensiveTicker.Stop()

	for {
		select {
		case <-offensiveTicker.C:
			// Rows whose timers were lost, e.g. after a failed delete, are picked up again.
			if err := s.bot.Filtering.RescheduleOffensive(s.ctx); err != nil {
				log.Printf("Offensive message sweep failed: %v", err)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) serveMetrics(addr string) {
	defer s.wg.Done()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-s.ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Metrics server shutdown failed: %v", err)
		}
	}()

	log.Printf("Serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Metrics server stopped: %v", err)
	}
}
