// Command renew-channels runs one channel renewal sweep and exits. It is
// meant for external cron or a one-off operator invocation; the daemon runs
// the same sweep on its own schedule.
package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/sitecrew/sitesync/config"
	"github.com/sitecrew/sitesync/internal/clients/gcal"
	"github.com/sitecrew/sitesync/internal/notify"
	"github.com/sitecrew/sitesync/internal/service"
	"github.com/sitecrew/sitesync/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Provider != "google" {
		log.Printf("Provider %s has no push channels, nothing to renew", cfg.Provider)
		return
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	client, err := gcal.New(ctx, cfg.GoogleCredentialsFile)
	if err != nil {
		log.Fatalf("Failed to init google provider: %v", err)
	}

	notifier, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.OpsChatID)
	if err != nil {
		log.Fatalf("Failed to init telegram notifier: %v", err)
	}

	mgr := service.NewChannelManager(store, client, cfg.WebhookURL(), cfg.ChannelTTL, notifier)

	summary, err := mgr.RenewExpiring(ctx)
	if err != nil {
		log.Fatalf("Renewal sweep failed: %v", err)
	}

	// Individual channel failures are already logged and alerted; the sweep
	// itself completing is a clean exit even when some channels failed.
	log.Printf("Renewal sweep done: checked=%d renewed=%d skipped=%d failed=%d",
		summary.Checked, summary.Renewed, summary.Skipped, summary.Failed)

	if err := mgr.CheckDeadChannels(ctx); err != nil {
		log.Printf("Dead channel check failed: %v", err)
	}
}
