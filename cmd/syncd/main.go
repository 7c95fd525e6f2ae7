package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sitecrew/sitesync/config"
	"github.com/sitecrew/sitesync/internal/clients/caldav"
	"github.com/sitecrew/sitesync/internal/clients/gcal"
	"github.com/sitecrew/sitesync/internal/notify"
	"github.com/sitecrew/sitesync/internal/provider"
	"github.com/sitecrew/sitesync/internal/scheduler"
	"github.com/sitecrew/sitesync/internal/service"
	"github.com/sitecrew/sitesync/internal/storage"
	"github.com/sitecrew/sitesync/internal/webhook"
)

// channelValidator adapts storage channel lookup to the webhook server.
type channelValidator struct {
	store *storage.Storage
}

func (v *channelValidator) ValidateNotification(channelID, resourceID string) (string, bool, error) {
	ch, err := v.store.ValidateChannel(channelID, resourceID, time.Now())
	if err != nil {
		return "", false, err
	}
	if ch == nil {
		return "", false, nil
	}
	return ch.CalendarID, true, nil
}

// syncTrigger runs push-then-pull reconciliation for one calendar.
type syncTrigger struct {
	events *service.EventService
	sync   *service.SyncService
}

func (t *syncTrigger) TriggerSync(ctx context.Context, calendarID string) {
	if _, _, err := t.events.Resync(ctx, calendarID); err != nil {
		log.Printf("sync: outbound resync of %s failed: %v", calendarID, err)
	}
	result, err := t.sync.PullSync(ctx, calendarID)
	if err != nil {
		log.Printf("sync: pull of %s failed: %v", calendarID, err)
		return
	}
	if result.Added+result.Updated+result.Deleted > 0 {
		log.Printf("sync: pull of %s added=%d updated=%d deleted=%d",
			calendarID, result.Added, result.Updated, result.Deleted)
	}
}

func buildProvider(ctx context.Context, cfg *config.Config) (provider.Interface, error) {
	if cfg.Provider == "caldav" {
		return caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword), nil
	}
	if cfg.GoogleCredentialsFile != "" {
		return gcal.New(ctx, cfg.GoogleCredentialsFile)
	}
	token, err := gcal.LoadToken(cfg.GoogleTokenFile)
	if err != nil {
		return nil, err
	}
	oauthCfg := gcal.OAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	return gcal.NewWithToken(ctx, oauthCfg, token)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := buildProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to init %s provider: %v", cfg.Provider, err)
	}

	notifier, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.OpsChatID)
	if err != nil {
		log.Fatalf("Failed to init telegram notifier: %v", err)
	}

	mapper := service.NewMapper(cfg.Timezone)
	accessSvc := service.NewAccessService(store)
	eventSvc := service.NewEventService(store, client, mapper, accessSvc)
	syncSvc := service.NewSyncService(store, client, mapper)
	channelMgr := service.NewChannelManager(store, client, cfg.WebhookURL(), cfg.ChannelTTL, notifier)

	// Open a push channel per calendar up front. Providers without push
	// support fall back to the scheduled pull.
	if cfg.Provider == "google" {
		for _, calendarID := range cfg.CalendarIDs {
			if _, err := channelMgr.EnsureChannel(ctx, calendarID); err != nil {
				log.Printf("Failed to open channel for %s: %v", calendarID, err)
			}
		}
	}

	sched := scheduler.New(channelMgr, syncSvc, eventSvc, cfg.CalendarIDs, cfg.RenewalCron, cfg.PullCron)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	server := webhook.NewServer(
		&channelValidator{store: store},
		&syncTrigger{events: eventSvc, sync: syncSvc},
	)
	go func() {
		if err := server.Start(ctx, ":"+cfg.ServerPort); err != nil {
			log.Printf("Webhook server error: %v", err)
		}
	}()

	log.Printf("SiteSync started, provider=%s calendars=%d", cfg.Provider, len(cfg.CalendarIDs))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	cancel()
	sched.Stop()

	log.Println("SiteSync stopped")
}
