package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabasePath string
	Timezone     *time.Location

	// Provider selects the calendar adapter: "google" or "caldav".
	Provider              string
	GoogleCredentialsFile string
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURL     string
	GoogleTokenFile       string
	CalDAVURL             string
	CalDAVUsername        string
	CalDAVPassword        string

	CalendarIDs []string

	WebhookBaseURL string
	ServerPort     string

	ChannelTTL   time.Duration
	RenewalCron  string
	PullCron     string
	WorkdayHours float64

	TelegramBotToken string
	OpsChatID        int64
}

func Load() (*Config, error) {
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/sitesync.db"
	}

	tzName := os.Getenv("TIMEZONE")
	if tzName == "" {
		tzName = "America/Chicago"
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	prov := os.Getenv("PROVIDER")
	if prov == "" {
		prov = "google"
	}
	if prov != "google" && prov != "caldav" {
		return nil, fmt.Errorf("PROVIDER must be \"google\" or \"caldav\", got %q", prov)
	}

	var calendarIDs []string
	for _, id := range strings.Split(os.Getenv("CALENDAR_IDS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			calendarIDs = append(calendarIDs, id)
		}
	}
	if len(calendarIDs) == 0 {
		return nil, fmt.Errorf("CALENDAR_IDS is required (comma-separated)")
	}

	webhookBase := os.Getenv("WEBHOOK_BASE_URL")
	if prov == "google" && webhookBase == "" {
		return nil, fmt.Errorf("WEBHOOK_BASE_URL is required for the google provider")
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	ttl := 7 * 24 * time.Hour
	if v := os.Getenv("CHANNEL_TTL"); v != "" {
		ttl, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CHANNEL_TTL: %w", err)
		}
	}

	renewalCron := os.Getenv("RENEWAL_CRON")
	if renewalCron == "" {
		renewalCron = "0 3 * * *"
	}

	pullCron := os.Getenv("PULL_CRON")
	if pullCron == "" && prov == "caldav" {
		// No push channels on CalDAV, scheduled pulls are the only trigger.
		pullCron = "*/15 * * * *"
	}

	workday := 8.0
	if v := os.Getenv("WORKDAY_HOURS"); v != "" {
		workday, err = strconv.ParseFloat(v, 64)
		if err != nil || workday <= 0 {
			return nil, fmt.Errorf("invalid WORKDAY_HOURS: %q", v)
		}
	}

	var opsChatID int64
	if v := os.Getenv("OPS_CHAT_ID"); v != "" {
		opsChatID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid OPS_CHAT_ID: %w", err)
		}
	}

	cfg := &Config{
		DatabasePath:          dbPath,
		Timezone:              tz,
		Provider:              prov,
		GoogleCredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		GoogleClientID:        os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:    os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:     os.Getenv("GOOGLE_REDIRECT_URL"),
		GoogleTokenFile:       os.Getenv("GOOGLE_TOKEN_FILE"),
		CalDAVURL:             os.Getenv("CALDAV_URL"),
		CalDAVUsername:        os.Getenv("CALDAV_USERNAME"),
		CalDAVPassword:        os.Getenv("CALDAV_PASSWORD"),
		CalendarIDs:           calendarIDs,
		WebhookBaseURL:        webhookBase,
		ServerPort:            serverPort,
		ChannelTTL:            ttl,
		RenewalCron:           renewalCron,
		PullCron:              pullCron,
		WorkdayHours:          workday,
		TelegramBotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		OpsChatID:             opsChatID,
	}

	if prov == "caldav" && (cfg.CalDAVUsername == "" || cfg.CalDAVPassword == "") {
		return nil, fmt.Errorf("CALDAV_USERNAME and CALDAV_PASSWORD are required for the caldav provider")
	}

	return cfg, nil
}

// WebhookURL is the full callback address registered with push channels.
func (c *Config) WebhookURL() string {
	return strings.TrimRight(c.WebhookBaseURL, "/") + "/webhook/calendar"
}
