package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/ngat/internal/authority"
	"github.com/roach88/ngat/internal/history"
)

// ReadHistory returns stored events matching f in insertion order.
func (s *Store) ReadHistory(ctx context.Context, f history.Filter) ([]history.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.Scene != "" {
		where = append(where, "scene_id = ?")
		args = append(args, f.Scene)
	}
	if f.Mode != "" {
		where = append(where, "mode = ?")
		args = append(args, string(f.Mode))
	}
	query := `
		SELECT event_id, seq, scene_id, mode, cause, event_data, snapshot_before, snapshot_after, created_at
		FROM history_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	var events []history.Event
	for rows.Next() {
		var (
			evt                       history.Event
			mode, data, before, after string
			createdAt                 string
		)
		if err := rows.Scan(&evt.ID, &evt.Seq, &evt.Scene, &mode, &evt.Cause, &data, &before, &after, &createdAt); err != nil {
			return nil, fmt.Errorf("read history: scan: %w", err)
		}
		evt.Mode = history.Mode(mode)
		if evt.Data, err = unmarshalObject("event data", data); err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		if evt.Before, err = unmarshalObject("snapshot before", before); err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		if evt.After, err = unmarshalObject("snapshot after", after); err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		if evt.Timestamp, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return events, nil
}

// ReadShadow returns stored shadow entries, all of them when issuer is
// empty, in insertion order.
func (s *Store) ReadShadow(ctx context.Context, issuer string) ([]history.Entry, error) {
	query := `
		SELECT seq, issuer, command, reason, stage, scene_id, created_at
		FROM shadow_entries`
	var args []any
	if issuer != "" {
		query += " WHERE issuer = ?"
		args = append(args, issuer)
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read shadow: %w", err)
	}
	defer rows.Close()

	var entries []history.Entry
	for rows.Next() {
		var (
			e              history.Entry
			cmd, createdAt string
		)
		if err := rows.Scan(&e.Seq, &e.Issuer, &cmd, &e.Reason, &e.Stage, &e.Scene, &createdAt); err != nil {
			return nil, fmt.Errorf("read shadow: scan: %w", err)
		}
		if e.Command, err = unmarshalObject("command", cmd); err != nil {
			return nil, fmt.Errorf("read shadow: %w", err)
		}
		if e.Timestamp, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("read shadow: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read shadow: %w", err)
	}
	return entries, nil
}

// ReadCommands returns the stored command log in insertion order.
func (s *Store) ReadCommands(ctx context.Context) ([]authority.LoggedCommand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, command, created_at
		FROM command_log
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read commands: %w", err)
	}
	defer rows.Close()

	var out []authority.LoggedCommand
	for rows.Next() {
		var (
			entry          authority.LoggedCommand
			cmd, createdAt string
		)
		if err := rows.Scan(&entry.Seq, &cmd, &createdAt); err != nil {
			return nil, fmt.Errorf("read commands: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(cmd), &entry.Command); err != nil {
			return nil, fmt.Errorf("read commands: unmarshal command: %w", err)
		}
		if entry.Timestamp, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("read commands: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read commands: %w", err)
	}
	return out, nil
}
