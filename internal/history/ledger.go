package history

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/ngat/internal/ids"
)

// Mode tags a historical event with how real it is.
type Mode string

const (
	ModeCanon Mode = "CANON"
	ModeTest  Mode = "TEST"
	ModeDream Mode = "DREAM"
)

// ParseMode accepts a mode name in any case.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case ModeCanon, ModeTest, ModeDream:
		return m, nil
	}
	return "", fmt.Errorf("unknown history mode %q (want CANON, TEST or DREAM)", s)
}

// Event is one committed historical event.
type Event struct {
	ID        string         `json:"event_id"`
	Seq       int64          `json:"seq"`
	Scene     string         `json:"scene_id"`
	Data      map[string]any `json:"event_data"`
	Before    map[string]any `json:"snapshot_before"`
	After     map[string]any `json:"snapshot_after"`
	Cause     string         `json:"cause"`
	Mode      Mode           `json:"mode"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink mirrors ledger appends to durable storage.
type Sink interface {
	AppendHistory(evt Event) error
	AppendShadow(entry Entry) error
	ClearHistoryMode(mode Mode) error
	ClearShadow() error
}

// Filter selects events. Zero fields match everything.
type Filter struct {
	Scene string
	Mode  Mode
}

func (f Filter) match(e Event) bool {
	return (f.Scene == "" || e.Scene == f.Scene) && (f.Mode == "" || e.Mode == f.Mode)
}

// Ledger is the append-only history of committed events.
type Ledger struct {
	mu     sync.RWMutex
	events []Event
	seq    int64
	idGen  ids.Generator
	now    func() time.Time
	sink   Sink
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithIDGenerator sets how missing event ids are filled.
func WithIDGenerator(g ids.Generator) LedgerOption {
	return func(l *Ledger) { l.idGen = g }
}

// WithNow sets the clock for missing timestamps.
func WithNow(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithSink mirrors appends to s.
func WithSink(s Sink) LedgerOption {
	return func(l *Ledger) { l.sink = s }
}

// NewLedger returns an empty ledger.
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{idGen: ids.UUIDv7Generator{}, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Commit appends evt, filling ID, Timestamp and Mode (CANON) when empty.
// The stored event is returned.
func (l *Ledger) Commit(evt Event) (Event, error) {
	if evt.Mode == "" {
		evt.Mode = ModeCanon
	}
	if _, err := ParseMode(string(evt.Mode)); err != nil {
		return Event{}, err
	}
	if evt.ID == "" {
		evt.ID = l.idGen.Generate()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = l.now().UTC()
	}
	evt = cloneEvent(evt)

	l.mu.Lock()
	defer l.mu.Unlock()
	evt.Seq = l.seq + 1
	if l.sink != nil {
		if err := l.sink.AppendHistory(evt); err != nil {
			return Event{}, fmt.Errorf("persist history event %s: %w", evt.ID, err)
		}
	}
	l.seq = evt.Seq
	l.events = append(l.events, evt)
	return cloneEvent(evt), nil
}

// Query returns copies of the events matching f, in commit order.
func (l *Ledger) Query(f Filter) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, e := range l.events {
		if f.match(e) {
			out = append(out, cloneEvent(e))
		}
	}
	return out
}

// ByScene returns all events of scene in commit order.
func (l *Ledger) ByScene(scene string) []Event {
	return l.Query(Filter{Scene: scene})
}

// Canonical returns every CANON event.
func (l *Ledger) Canonical() []Event {
	return l.Query(Filter{Mode: ModeCanon})
}

// ClearMode removes every event of mode. Clearing CANON is refused:
// canonical history is append-only.
func (l *Ledger) ClearMode(mode Mode) (int, error) {
	if mode == ModeCanon {
		return 0, fmt.Errorf("canonical history cannot be cleared")
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink != nil {
		if err := l.sink.ClearHistoryMode(mode); err != nil {
			return 0, fmt.Errorf("clear %s history: %w", mode, err)
		}
	}
	before := len(l.events)
	l.events = slices.DeleteFunc(l.events, func(e Event) bool { return e.Mode == mode })
	return before - len(l.events), nil
}

// Len is the number of stored events.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Reset drops every event, canonical included. It exists for test
// isolation of a whole runtime and is not mirrored to the sink.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
	l.seq = 0
}
