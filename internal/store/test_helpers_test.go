package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/ngat/internal/authority"
	"github.com/roach88/ngat/internal/history"
	"github.com/roach88/ngat/internal/kernel"
)

var testTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestEvent(id string, seq int64, scene string, mode history.Mode) history.Event {
	return history.Event{
		ID:        id,
		Seq:       seq,
		Scene:     scene,
		Data:      map[string]any{"type": "storm", "level": float64(3)},
		Before:    map[string]any{"weather": map[string]any{"sky": "clear"}},
		After:     map[string]any{"weather": map[string]any{"sky": "storm"}},
		Cause:     "gm/direct/weather",
		Mode:      mode,
		Timestamp: testTime,
	}
}

func createTestCommand(id string, seq int64) authority.LoggedCommand {
	return authority.LoggedCommand{
		Seq: seq,
		Command: authority.Command{
			ID:       id,
			Issuer:   "gm",
			Level:    authority.HardOverride,
			System:   "weather",
			Events:   []kernel.Event{{"type": "storm"}},
			Metadata: map[string]any{"source": "console"},
		},
		Timestamp: testTime,
	}
}
