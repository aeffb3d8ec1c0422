// Package actionstore is the single source of truth for issued actions and
// their lifecycle flags. It is dual-backed: an in-memory map serves the
// watcher and the read API, a durable row store survives restarts. The memory
// copy is authoritative for the life of the process; durable-write failures
// are logged and absorbed.
package actionstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fixstream/fixstream/internal/models"
)

var (
	ErrNotFound   = errors.New("action not found")
	ErrNoActionID = errors.New("record has no action id")
)

// Durable is the row-store side of the dual write.
type Durable interface {
	Insert(ctx context.Context, rec models.ActionRecord) error
	MarkNotified(ctx context.Context, actionID string) error
	LoadPending(ctx context.Context) ([]models.ActionRecord, error)
	DeleteNotifiedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Store struct {
	mu      sync.RWMutex
	records map[string]models.ActionRecord
	lastID  string
	durable Durable
}

// New constructs a Store around a durable backend. A nil backend is allowed
// for tests and degraded single-process operation.
func New(durable Durable) *Store {
	return &Store{
		records: map[string]models.ActionRecord{},
		durable: durable,
	}
}

// Recover loads every durable row still pending notification into memory.
// It must run before the watcher's first tick so records that were in flight
// at crash time are picked up again.
func (s *Store) Recover(ctx context.Context) error {
	if s.durable == nil {
		return nil
	}
	recs, err := s.durable.LoadPending(ctx)
	if err != nil {
		return fmt.Errorf("load pending actions: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if _, ok := s.records[rec.ActionID]; !ok {
			s.records[rec.ActionID] = rec
		}
	}
	log.Printf("[actionstore] recovered %d pending action(s) from durable storage", len(recs))
	return nil
}

// Insert records a freshly-submitted action in memory and attempts the durable
// write. A record without an action id is rejected outright; a durable failure
// is logged but does not fail the triggering request.
func (s *Store) Insert(ctx context.Context, rec models.ActionRecord) error {
	if rec.ActionID == "" {
		return ErrNoActionID
	}
	s.mu.Lock()
	if _, exists := s.records[rec.ActionID]; !exists {
		s.records[rec.ActionID] = rec
	}
	s.lastID = rec.ActionID
	s.mu.Unlock()

	if s.durable != nil {
		if err := s.durable.Insert(ctx, rec); err != nil {
			log.Printf("[actionstore] durable insert for action %s failed (memory copy kept): %v", rec.ActionID, err)
		}
	}
	return nil
}

// Get returns a copy of the record for an action id.
func (s *Store) Get(actionID string) (models.ActionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[actionID]
	return rec, ok
}

// LastID returns the most recently inserted action id, or "".
func (s *Store) LastID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID
}

// Pending returns copies of every record still awaiting its post-completion
// notification.
func (s *Store) Pending() []models.ActionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ActionRecord, 0, len(s.records))
	for _, rec := range s.records {
		if !rec.PostNotifySent {
			out = append(out, rec)
		}
	}
	return out
}

// All returns copies of every record currently held in memory.
func (s *Store) All() []models.ActionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ActionRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}

// MarkNotified flips the post-notify flag for an action, memory first, then
// durable. The flag only ever transitions false to true. A durable failure is
// logged; memory stays authoritative until the next restart.
func (s *Store) MarkNotified(ctx context.Context, actionID string) error {
	s.mu.Lock()
	rec, ok := s.records[actionID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	rec.PostNotifySent = true
	s.records[actionID] = rec
	s.mu.Unlock()

	if s.durable != nil {
		if err := s.durable.MarkNotified(ctx, actionID); err != nil {
			log.Printf("[actionstore] durable finalize for action %s failed (memory copy kept): %v", actionID, err)
		}
	}
	return nil
}

// PruneNotifiedBefore durably deletes finalized rows older than cutoff. The
// in-memory map is left alone: finalized entries are already excluded from
// watcher iteration.
func (s *Store) PruneNotifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.durable == nil {
		return 0, nil
	}
	return s.durable.DeleteNotifiedBefore(ctx, cutoff)
}
