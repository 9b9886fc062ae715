// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/pdfbot/internal/session"
	"github.com/user/pdfbot/internal/types"
)

// Sweeper periodically drains sessions that have sat idle past their
// TTL and tells the affected chats their files were discarded. Keeps
// memory bounded for chats that upload and never issue a command.
type Sweeper struct {
	store *session.Store
	gw    types.ConversationGateway
	ttl   time.Duration
	cron  *cron.Cron
}

// New creates a Sweeper expiring sessions idle for longer than ttl.
func New(store *session.Store, gw types.ConversationGateway, ttl time.Duration) *Sweeper {
	return &Sweeper{
		store: store,
		gw:    gw,
		ttl:   ttl,
		cron:  cron.New(),
	}
}

// Start registers the sweep as a cron entry and starts the ticker.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc("@every 1m", s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop stops the cron ticker.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}

// Sweep runs one expiry pass.
func (s *Sweeper) Sweep() {
	for _, chatID := range s.store.ExpireIdle(s.ttl) {
		slog.Info("expired idle session", "chat_id", chatID)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.gw.SendText(ctx, chatID, "⏱ Your buffered PDFs sat idle too long and were discarded. Send them again when you're ready.")
		cancel()
		if err != nil {
			slog.Warn("notify expired session failed", "chat_id", chatID, "error", err)
		}
	}
}
