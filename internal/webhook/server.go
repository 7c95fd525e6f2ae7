// Package webhook receives push notifications from the calendar provider
// and turns them into pull syncs. The handler never trusts notification
// content: it only validates the channel and triggers a cursor-based pull.
package webhook

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Notification header names used by the provider's push protocol.
const (
	headerChannelID     = "X-Goog-Channel-ID"
	headerResourceID    = "X-Goog-Resource-ID"
	headerResourceState = "X-Goog-Resource-State"
	headerResourceURI   = "X-Goog-Resource-URI"
	headerMessageNumber = "X-Goog-Message-Number"
)

// ChannelValidator resolves a notification's channel to the calendar it
// watches. A nil channel with nil error means the channel is unknown.
type ChannelValidator interface {
	ValidateNotification(channelID, resourceID string) (calendarID string, ok bool, err error)
}

// Syncer runs a pull for one calendar.
type Syncer interface {
	TriggerSync(ctx context.Context, calendarID string)
}

// Server handles provider webhook callbacks over HTTP.
type Server struct {
	validator ChannelValidator
	syncer    Syncer
	mux       *http.ServeMux
}

func NewServer(validator ChannelValidator, syncer Syncer) *Server {
	s := &Server{validator: validator, syncer: syncer, mux: http.NewServeMux()}
	s.mux.HandleFunc("/webhook/calendar", s.handleNotification)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("webhook: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleNotification processes one push notification. The contract with the
// provider is to acknowledge with 200 in nearly every case: a non-200 makes
// the provider retry and eventually kill the channel. Only a request missing
// the protocol headers is rejected.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	channelID := r.Header.Get(headerChannelID)
	resourceID := r.Header.Get(headerResourceID)
	state := r.Header.Get(headerResourceState)
	msgNum := r.Header.Get(headerMessageNumber)
	if channelID == "" || resourceID == "" || state == "" ||
		r.Header.Get(headerResourceURI) == "" || msgNum == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing notification headers"})
		return
	}

	switch state {
	case "sync":
		// First message after channel creation, nothing changed yet.
		log.Printf("webhook: channel %s confirmed (message %s)", channelID, msgNum)
		writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
		return

	case "exists", "not_exists":
		calendarID, ok, err := s.validator.ValidateNotification(channelID, resourceID)
		if err != nil {
			log.Printf("webhook: channel validation failed for %s: %v", channelID, err)
			writeJSON(w, http.StatusOK, map[string]string{"status": "error"})
			return
		}
		if !ok {
			// Stale channel the provider hasn't fully stopped yet, or a
			// forged request. Either way there is nothing to sync.
			log.Printf("webhook: ignoring notification for unknown channel %s", channelID)
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		// Ack immediately; the pull runs in the background with its own
		// deadline so slow provider calls never back up the webhook.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			s.syncer.TriggerSync(ctx, calendarID)
		}()
		writeJSON(w, http.StatusOK, map[string]string{"status": "syncing"})
		return

	default:
		log.Printf("webhook: unknown resource state %q on channel %s", state, channelID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("webhook: write response: %v", err)
	}
}
