package history

import (
	"fmt"
	"sync"
	"time"
)

// Entry is one rejected command attempt.
type Entry struct {
	Seq       int64          `json:"seq"`
	Issuer    string         `json:"issuer"`
	Command   map[string]any `json:"command"`
	Reason    string         `json:"reason"`
	Stage     string         `json:"stage"`
	Scene     string         `json:"scene_id"`
	Timestamp time.Time      `json:"timestamp"`
}

// ShadowLedger is the append-only record of rejected attempts.
type ShadowLedger struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
	sink    Sink
}

// NewShadowLedger returns an empty shadow ledger. now and sink may be nil.
func NewShadowLedger(now func() time.Time, sink Sink) *ShadowLedger {
	if now == nil {
		now = time.Now
	}
	return &ShadowLedger{now: now, sink: sink}
}

// Record appends e, stamping Seq and, when empty, Timestamp.
func (s *ShadowLedger) Record(e Entry) (Entry, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	e.Command = cloneMap(e.Command)

	s.mu.Lock()
	defer s.mu.Unlock()
	e.Seq = int64(len(s.entries)) + 1
	if s.sink != nil {
		if err := s.sink.AppendShadow(e); err != nil {
			return Entry{}, fmt.Errorf("persist shadow entry: %w", err)
		}
	}
	s.entries = append(s.entries, e)
	return e, nil
}

// Entries returns copies of all entries in order.
func (s *ShadowLedger) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		e.Command = cloneMap(e.Command)
		out[i] = e
	}
	return out
}

// ForIssuer returns the entries recorded for issuer.
func (s *ShadowLedger) ForIssuer(issuer string) []Entry {
	var out []Entry
	for _, e := range s.Entries() {
		if e.Issuer == issuer {
			out = append(out, e)
		}
	}
	return out
}

// Len is the number of entries.
func (s *ShadowLedger) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear drops every entry, including the sink's copy.
func (s *ShadowLedger) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink != nil {
		if err := s.sink.ClearShadow(); err != nil {
			return fmt.Errorf("clear shadow ledger: %w", err)
		}
	}
	s.entries = nil
	return nil
}
