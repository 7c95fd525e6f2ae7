// Package scheduler runs the periodic jobs: channel renewal, dead-channel
// detection, and scheduled pull syncs for calendars without push support.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sitecrew/sitesync/internal/service"
)

// Scheduler wires the sync engine's background jobs onto cron schedules.
type Scheduler struct {
	cron        *cron.Cron
	channels    *service.ChannelManager
	sync        *service.SyncService
	events      *service.EventService
	calendarIDs []string
	renewalSpec string
	pullSpec    string
}

func New(channels *service.ChannelManager, sync *service.SyncService, events *service.EventService, calendarIDs []string, renewalSpec, pullSpec string) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		channels:    channels,
		sync:        sync,
		events:      events,
		calendarIDs: calendarIDs,
		renewalSpec: renewalSpec,
		pullSpec:    pullSpec,
	}
}

// Start registers the jobs and starts the cron loop. Jobs stop when ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.renewalSpec, func() { s.renewChannels(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 * * * *", func() { s.checkDeadChannels(ctx) }); err != nil {
		return err
	}
	if s.pullSpec != "" {
		if _, err := s.cron.AddFunc(s.pullSpec, func() { s.pullAll(ctx) }); err != nil {
			return err
		}
	}

	s.cron.Start()
	log.Printf("scheduler: started, renewal=%q pull=%q", s.renewalSpec, s.pullSpec)
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		log.Printf("scheduler: jobs still running after stop timeout")
	}
}

func (s *Scheduler) renewChannels(ctx context.Context) {
	summary, err := s.channels.RenewExpiring(ctx)
	if err != nil {
		log.Printf("scheduler: channel renewal sweep failed: %v", err)
		return
	}
	if summary.Checked > 0 {
		log.Printf("scheduler: renewal sweep checked=%d renewed=%d skipped=%d failed=%d",
			summary.Checked, summary.Renewed, summary.Skipped, summary.Failed)
	}
}

func (s *Scheduler) checkDeadChannels(ctx context.Context) {
	if err := s.channels.CheckDeadChannels(ctx); err != nil {
		log.Printf("scheduler: dead channel check failed: %v", err)
	}
}

// pullAll reconciles every configured calendar: push the pending outbound
// events first, then pull remote changes. This is the only sync path for
// providers without push channels.
func (s *Scheduler) pullAll(ctx context.Context) {
	for _, calendarID := range s.calendarIDs {
		if pushed, failed, err := s.events.Resync(ctx, calendarID); err != nil {
			log.Printf("scheduler: resync of %s failed: %v", calendarID, err)
		} else if pushed+failed > 0 {
			log.Printf("scheduler: resync of %s pushed=%d failed=%d", calendarID, pushed, failed)
		}

		result, err := s.sync.PullSync(ctx, calendarID)
		if err != nil {
			log.Printf("scheduler: pull of %s failed: %v", calendarID, err)
			continue
		}
		if result.Added+result.Updated+result.Deleted > 0 {
			log.Printf("scheduler: pull of %s added=%d updated=%d deleted=%d skipped=%d",
				calendarID, result.Added, result.Updated, result.Deleted, result.Skipped)
		}
	}
}
