package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/ngat/internal/canon"
)

// LedgerWriter appends tick records as canonical JSON, one record per line.
type LedgerWriter struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// OpenLedger opens path for appending, creating it if needed.
func OpenLedger(path string) (*LedgerWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &LedgerWriter{w: f, closer: f}, nil
}

// NewLedgerWriter appends to w. Closing the writer does not close w.
func NewLedgerWriter(w io.Writer) *LedgerWriter {
	return &LedgerWriter{w: w}
}

// Append writes rec as a single newline-terminated line.
func (l *LedgerWriter) Append(rec TickRecord) error {
	line, err := canon.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode tick %d: %w", rec.Tick, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(line); err != nil {
		return fmt.Errorf("write tick %d: %w", rec.Tick, err)
	}
	return nil
}

// Close closes the underlying file when the writer opened it.
func (l *LedgerWriter) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// LedgerReader reads a ledger file that may still be growing. It consumes
// only complete, newline-terminated lines and remembers how far it got.
type LedgerReader struct {
	path   string
	offset int64
}

// NewLedgerReader reads path from the beginning.
func NewLedgerReader(path string) *LedgerReader {
	return &LedgerReader{path: path}
}

// Offset is the byte offset just past the last consumed line.
func (r *LedgerReader) Offset() int64 { return r.offset }

// Next returns the records completed since the previous call. A missing
// file yields no records. A trailing partial line is left for later.
func (r *LedgerReader) Next() ([]TickRecord, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(r.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek ledger: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil, nil
	}

	var out []TickRecord
	start := r.offset
	for _, line := range bytes.Split(data[:end], []byte{'\n'}) {
		lineOffset := start
		start += int64(len(line)) + 1
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec TickRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return out, fmt.Errorf("ledger line at offset %d: %w", lineOffset, err)
		}
		out = append(out, rec)
		r.offset = start
	}
	r.offset = start
	return out, nil
}

// Follow delivers every complete record to fn, then waits for the file to
// grow and delivers new records as they complete. It returns when ctx is
// done, fn fails, or the watcher fails.
func (r *LedgerReader) Follow(ctx context.Context, fn func(TickRecord) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so creation of the file is seen too.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(r.path), err)
	}
	target := filepath.Clean(r.path)

	drain := func() error {
		recs, err := r.Next()
		for _, rec := range recs {
			if ferr := fn(rec); ferr != nil {
				return ferr
			}
		}
		return err
	}

	if err := drain(); err != nil {
		return err
	}
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := drain(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch ledger: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReadLedger reads every complete record in path.
func ReadLedger(path string) ([]TickRecord, error) {
	return NewLedgerReader(path).Next()
}
