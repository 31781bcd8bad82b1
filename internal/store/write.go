package store

import (
	"context"
	"fmt"

	"github.com/roach88/ngat/internal/authority"
	"github.com/roach88/ngat/internal/history"
)

// WriteHistory inserts a committed historical event.
func (s *Store) WriteHistory(ctx context.Context, evt history.Event) error {
	data, err := marshalJSON("event data", evt.Data)
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	before, err := marshalJSON("snapshot before", evt.Before)
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	after, err := marshalJSON("snapshot after", evt.After)
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO history_events
		(event_id, seq, scene_id, mode, cause, event_data, snapshot_before, snapshot_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		evt.ID,
		evt.Seq,
		evt.Scene,
		string(evt.Mode),
		evt.Cause,
		data,
		before,
		after,
		formatTime(evt.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// WriteShadow inserts a rejected command attempt.
func (s *Store) WriteShadow(ctx context.Context, e history.Entry) error {
	cmd, err := marshalJSON("command", e.Command)
	if err != nil {
		return fmt.Errorf("write shadow: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shadow_entries
		(seq, issuer, command, reason, stage, scene_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.Seq,
		e.Issuer,
		cmd,
		e.Reason,
		e.Stage,
		e.Scene,
		formatTime(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("write shadow: %w", err)
	}
	return nil
}

// WriteCommand inserts one command-log entry.
func (s *Store) WriteCommand(ctx context.Context, entry authority.LoggedCommand) error {
	cmd, err := marshalJSON("command", entry.Command)
	if err != nil {
		return fmt.Errorf("write command: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO command_log
		(seq, command_id, issuer, authority_level, system, command, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.Seq,
		entry.Command.ID,
		entry.Command.Issuer,
		int(entry.Command.Level),
		entry.Command.System,
		cmd,
		formatTime(entry.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// DeleteHistoryMode removes every event of a non-canonical mode and
// returns how many rows went. CANON rows are protected by a trigger.
func (s *Store) DeleteHistoryMode(ctx context.Context, mode history.Mode) (int64, error) {
	if mode == history.ModeCanon {
		return 0, fmt.Errorf("delete history: %s events cannot be deleted", mode)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM history_events WHERE mode = ?`, string(mode))
	if err != nil {
		return 0, fmt.Errorf("delete history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete history: %w", err)
	}
	return n, nil
}

// DeleteShadow removes every shadow entry.
func (s *Store) DeleteShadow(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM shadow_entries`); err != nil {
		return fmt.Errorf("delete shadow: %w", err)
	}
	return nil
}
