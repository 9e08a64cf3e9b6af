package session

import (
	"log/slog"

	"github.com/BTreeMap/WorkLog/internal/models"
)

// MaxHistory is the number of history entries retained per user.
const MaxHistory = 10

// Entry is a snapshot that lets "back" return to an earlier screen.
type Entry struct {
	Step   models.StepID
	Buffer Buffer
	// Resume names the step whose render routine re-enters this screen.
	Resume models.StepID
}

// Push appends e to the user's history, keeping only the newest MaxHistory
// entries. It is a no-op while the user's session is being restored.
func (s *Store) Push(userID string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	en := s.entryFor(userID)
	if en.restoring {
		slog.Debug("Store.Push: skipped while restoring", "userID", userID, "step", e.Step)
		return
	}
	e.Buffer = e.Buffer.Clone()
	en.history = append(en.history, e)
	if over := len(en.history) - MaxHistory; over > 0 {
		en.history = append([]Entry(nil), en.history[over:]...)
	}
}

// Pop removes and returns the newest history entry.
func (s *Store) Pop(userID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popLocked(s.entryFor(userID))
}

func (s *Store) popLocked(en *entry) (Entry, bool) {
	n := len(en.history)
	if n == 0 {
		return Entry{}, false
	}
	e := en.history[n-1]
	en.history = en.history[:n-1]
	return e, true
}

// Depth returns the number of history entries held for userID.
func (s *Store) Depth(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if en, ok := s.entries[userID]; ok {
		return len(en.history)
	}
	return 0
}

// ClearHistory drops the user's history without touching the session.
func (s *Store) ClearHistory(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryFor(userID).history = nil
}

// Restoring reports whether a Restore is in progress for userID.
func (s *Store) Restoring(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if en, ok := s.entries[userID]; ok {
		return en.restoring
	}
	return false
}

// Restore pops the newest history entry, puts its step and a copy of its buffer
// back into the session and calls resume with the entry while pushes are
// suppressed. It returns false when the history is empty. The restoring flag is
// cleared when resume returns, including when it fails or panics.
func (s *Store) Restore(userID string, resume func(Entry) error) (bool, error) {
	s.mu.Lock()
	en := s.entryFor(userID)
	e, ok := s.popLocked(en)
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	en.step = e.Step
	en.buffer = e.Buffer.Clone()
	en.updatedAt = s.now()
	en.restoring = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		en.restoring = false
		s.mu.Unlock()
	}()

	slog.Debug("Store.Restore: resuming", "userID", userID, "step", e.Step, "resume", e.Resume)
	return true, resume(Entry{Step: e.Step, Buffer: e.Buffer.Clone(), Resume: e.Resume})
}
