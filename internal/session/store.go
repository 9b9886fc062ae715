// Package session holds the in-memory registry of buffered uploads,
// keyed by chat. Everything here is lost on restart by design.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/pdfbot/internal/types"
)

// ErrSessionFull is returned by Append when a per-session cap is hit.
// Callers surface it to the user instead of silently truncating.
var ErrSessionFull = errors.New("session full")

// Limits bounds the memory one chat can pin.
type Limits struct {
	MaxDocuments  int
	MaxTotalBytes int64
}

// DefaultLimits returns the stock caps: 50 documents, 25 MiB aggregate.
func DefaultLimits() Limits {
	return Limits{MaxDocuments: 50, MaxTotalBytes: 25 << 20}
}

// Store maps a chat to its ordered list of pending documents. The store
// mutex guards only the map; each entry carries its own mutex, so
// operations on different chats contend only for map lookup and
// append/drain on the same chat serialize strictly.
type Store struct {
	mu       sync.Mutex
	sessions map[types.ChatID]*entry
	limits   Limits
}

type entry struct {
	mu       sync.Mutex
	docs     []types.PendingDocument
	total    int64
	lastSeen time.Time
	drained  bool
}

// New creates an empty Store with the given limits. Zero-valued limits
// fall back to DefaultLimits.
func New(limits Limits) *Store {
	if limits.MaxDocuments <= 0 {
		limits.MaxDocuments = DefaultLimits().MaxDocuments
	}
	if limits.MaxTotalBytes <= 0 {
		limits.MaxTotalBytes = DefaultLimits().MaxTotalBytes
	}
	return &Store{
		sessions: make(map[types.ChatID]*entry),
		limits:   limits,
	}
}

// resolve returns the live entry for chatID, creating one if absent.
func (s *Store) resolve(chatID types.ChatID) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[chatID]
	if !ok {
		e = &entry{}
		s.sessions[chatID] = e
	}
	return e
}

// Append buffers one document for chatID, preserving arrival order.
// The session is created on first upload. Returns ErrSessionFull
// (wrapped, with detail) when a cap would be exceeded; the rejected
// document is not stored and earlier documents are untouched.
func (s *Store) Append(chatID types.ChatID, name string, data []byte) error {
	for {
		e := s.resolve(chatID)
		e.mu.Lock()
		if e.drained {
			// Lost the race against a drain; the map entry is gone.
			// Re-resolve to get a fresh session.
			e.mu.Unlock()
			continue
		}
		if len(e.docs) >= s.limits.MaxDocuments {
			err := fmt.Errorf("%w: %d documents already buffered", ErrSessionFull, len(e.docs))
			s.rejectLocked(chatID, e)
			return err
		}
		if e.total+int64(len(data)) > s.limits.MaxTotalBytes {
			err := fmt.Errorf("%w: adding %d bytes would exceed the %d byte limit", ErrSessionFull, len(data), s.limits.MaxTotalBytes)
			s.rejectLocked(chatID, e)
			return err
		}
		e.docs = append(e.docs, types.PendingDocument{
			Name: name,
			Data: data,
			Seq:  len(e.docs),
		})
		e.total += int64(len(data))
		e.lastSeen = time.Now()
		e.mu.Unlock()
		return nil
	}
}

// rejectLocked finishes a failed Append. A session that holds zero
// documents is equivalent to absence and must not linger in the map.
// Called with e.mu held; releases it.
func (s *Store) rejectLocked(chatID types.ChatID, e *entry) {
	empty := len(e.docs) == 0
	if empty {
		e.drained = true
	}
	e.mu.Unlock()
	if !empty {
		return
	}
	s.mu.Lock()
	if s.sessions[chatID] == e {
		delete(s.sessions, chatID)
	}
	s.mu.Unlock()
}

// Drain atomically removes and returns the session for chatID, in
// arrival order. Returns nil if no session exists. A concurrent Append
// lands either wholly before the drain (included) or wholly after it
// (starts a fresh session); it is never split.
func (s *Store) Drain(chatID types.ChatID) []types.PendingDocument {
	s.mu.Lock()
	e, ok := s.sessions[chatID]
	if ok {
		delete(s.sessions, chatID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	e.drained = true
	docs := e.docs
	e.docs = nil
	e.total = 0
	e.mu.Unlock()
	return docs
}

// Size reports how many documents chatID has buffered. Read-only; never
// creates an entry.
func (s *Store) Size(chatID types.ChatID) int {
	s.mu.Lock()
	e, ok := s.sessions[chatID]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.docs)
}

// ExpireIdle drains every session whose last append is older than ttl
// and returns the affected chat IDs so callers can notify them.
func (s *Store) ExpireIdle(ttl time.Duration) []types.ChatID {
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	var stale []types.ChatID
	for chatID, e := range s.sessions {
		e.mu.Lock()
		idle := e.lastSeen.Before(cutoff)
		e.mu.Unlock()
		if idle {
			stale = append(stale, chatID)
		}
	}
	s.mu.Unlock()

	var expired []types.ChatID
	for _, chatID := range stale {
		if docs := s.Drain(chatID); len(docs) > 0 {
			expired = append(expired, chatID)
		}
	}
	return expired
}
