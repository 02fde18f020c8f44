package service

import (
	"log"
	"time"

	"golang.org/x/net/context"

	"GoCDN/internal/repo"
)

// Sweeper reaps chunk sessions older than the TTL. The periodic sweep is
// authoritative; Redis expiry events only make individual reaps prompt.
type Sweeper struct {
	sessions repo.SessionStore
	chunks   *ChunkManager
	ttl      time.Duration
	interval time.Duration
}

// NewSweeper builds a Sweeper over the session table and chunk manager.
func NewSweeper(sessions repo.SessionStore, chunks *ChunkManager, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		chunks:   chunks,
		ttl:      ttl,
		interval: interval,
	}
}

// Run sweeps on a ticker until ctx is done. One sweep runs at startup so a
// restart does not wait a full interval to clear a backlog.
func (s *Sweeper) Run(ctx context.Context) {
	s.SweepOnce(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce destroys every session past the TTL.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.ttl)
	expired, err := s.sessions.ListExpired(ctx, cutoff)
	if err != nil {
		log.Printf("list expired sessions failed: %v", err)
		return
	}
	for _, session := range expired {
		log.Printf("reaping stale session %s (%s)", session.UploadID, session.LogicalName)
		s.chunks.destroySession(session.UploadID)
	}
}

// Reap destroys one session, invoked from Redis expiry events.
func (s *Sweeper) Reap(uploadID string) {
	log.Printf("reaping expired session %s", uploadID)
	s.chunks.destroySession(uploadID)
}
