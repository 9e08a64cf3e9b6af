// Package session holds per-user conversation state in memory.
//
// A Store keeps, for every user id, the current step, the form buffer, the
// candidate list shown by the last prompt, and a bounded history stack used to
// implement "back". State is not persisted: a process restart drops every
// in-flight form and users start again from the root menu.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/WorkLog/internal/fuzzy"
	"github.com/BTreeMap/WorkLog/internal/models"
)

// Buffer accumulates the answers of the in-progress flow.
type Buffer map[models.DataKey]string

// Clone returns a deep copy of b. A nil buffer clones to an empty one.
func (b Buffer) Clone() Buffer {
	out := make(Buffer, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Session is a snapshot of one user's conversation state. Values returned by
// the Store never alias its internal state.
type Session struct {
	UserID    string
	Step      models.StepID
	Buffer    Buffer
	Choices   []fuzzy.Candidate
	UpdatedAt time.Time
}

// Idle reports whether the session has no in-flight form.
func (s Session) Idle() bool {
	return s.Step == models.StepIdle
}

type entry struct {
	// turn serializes whole turns for one user.
	turn sync.Mutex

	step      models.StepID
	buffer    Buffer
	choices   []fuzzy.Candidate
	history   []Entry
	restoring bool
	updatedAt time.Time
}

// Store is the keyed session table. The map and every entry's fields are
// guarded by mu; the per-entry turn mutex is held by callers for the duration
// of a turn and never while mu is held.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// entryFor returns the entry for userID, creating an idle one if absent.
// Caller must hold s.mu for writing.
func (s *Store) entryFor(userID string) *entry {
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{buffer: Buffer{}, updatedAt: s.now()}
		s.entries[userID] = e
		slog.Debug("Store.entryFor: created idle session", "userID", userID)
	}
	return e
}

// Lock acquires the per-user turn lock and returns its release function.
// Turns for different users proceed independently.
func (s *Store) Lock(userID string) func() {
	s.mu.Lock()
	e := s.entryFor(userID)
	s.mu.Unlock()

	e.turn.Lock()
	return e.turn.Unlock
}

// Get returns a copy of the user's session, creating an idle one if absent.
func (s *Store) Get(userID string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryFor(userID)
	return Session{
		UserID:    userID,
		Step:      e.step,
		Buffer:    e.buffer.Clone(),
		Choices:   append([]fuzzy.Candidate(nil), e.choices...),
		UpdatedAt: e.updatedAt,
	}
}

// SetStep moves the session to step. A non-nil buf replaces the buffer with a
// copy of it; nil keeps the current buffer. Moving to the idle step is a Clear.
func (s *Store) SetStep(userID string, step models.StepID, buf Buffer) {
	if step == models.StepIdle {
		s.Clear(userID)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryFor(userID)
	e.step = step
	if buf != nil {
		e.buffer = buf.Clone()
	}
	e.updatedAt = s.now()
}

// Merge overwrites buffer keys with values. Keys are never removed.
func (s *Store) Merge(userID string, values Buffer) {
	if len(values) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryFor(userID)
	for k, v := range values {
		e.buffer[k] = v
	}
	e.updatedAt = s.now()
}

// SetChoices records the candidate list shown by the last prompt.
func (s *Store) SetChoices(userID string, choices []fuzzy.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryFor(userID)
	e.choices = append([]fuzzy.Candidate(nil), choices...)
}

// Clear resets the session to idle with an empty buffer and drops its history.
func (s *Store) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryFor(userID)
	e.step = models.StepIdle
	e.buffer = Buffer{}
	e.choices = nil
	e.history = nil
	e.updatedAt = s.now()
	slog.Debug("Store.Clear: session cleared", "userID", userID)
}

// ActiveCount returns how many sessions currently have an in-flight form.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.step != models.StepIdle {
			n++
		}
	}
	return n
}
