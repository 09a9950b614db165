package consultation

import (
	"sync"

	"github.com/pkg/errors"
)

var ErrMalformedTurn = errors.New("malformed turn")

// Log is the append-only turn history of a single consultation together with
// its in-flight flag.
type Log struct {
	mu      sync.RWMutex
	turns   []Turn
	pending bool
}

// NewLog creates a log, optionally pre-seeded with earlier turns.
func NewLog(seed ...Turn) (*Log, error) {
	l := &Log{turns: make([]Turn, 0, len(seed))}
	for _, t := range seed {
		if _, err := l.Append(t); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Append adds a turn to the end of the log and returns the new history.
func (l *Log) Append(t Turn) ([]Turn, error) {
	if !t.valid() {
		return nil, errors.Wrapf(ErrMalformedTurn, "turn %q role %q", t.ID, t.Role)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, t.clone())
	return l.snapshotLocked(), nil
}

func (l *Log) Snapshot() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Log) IsPending() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pending
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// begin marks the log pending and appends the user turn in one step. It
// reports false without touching the log when a request is already in flight.
func (l *Log) begin(t Turn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending {
		return false
	}
	l.pending = true
	l.turns = append(l.turns, t.clone())
	return true
}

// finish appends the resolving turn (when non-nil) and clears the pending flag.
func (l *Log) finish(t *Turn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t != nil {
		l.turns = append(l.turns, t.clone())
	}
	l.pending = false
}

func (l *Log) snapshotLocked() []Turn {
	out := make([]Turn, len(l.turns))
	for i, t := range l.turns {
		out[i] = t.clone()
	}
	return out
}
