package cli

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ngat/internal/canon"
	"github.com/roach88/ngat/internal/rules"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	State  string
	Ledger string
}

// ReplayMismatch is one tick whose re-execution differs from the ledger.
type ReplayMismatch struct {
	Tick     int64  `json:"tick"`
	Recorded string `json:"recorded"`
	Replayed string `json:"replayed"`
}

// ReplayResult reports whether a ledger is reproducible.
type ReplayResult struct {
	Ledger        string           `json:"ledger"`
	Ticks         int              `json:"ticks"`
	Deterministic bool             `json:"deterministic"`
	Mismatches    []ReplayMismatch `json:"mismatches,omitempty"`
}

// WriteText renders the result for the text format.
func (r ReplayResult) WriteText(w io.Writer) error {
	for _, m := range r.Mismatches {
		fmt.Fprintf(w, "Tick %d diverged\n  recorded: %s\n  replayed: %s\n", m.Tick, m.Recorded, m.Replayed)
	}
	verdict := "deterministic"
	if !r.Deterministic {
		verdict = fmt.Sprintf("%d mismatch(es)", len(r.Mismatches))
	}
	_, err := fmt.Fprintf(w, "Replayed %d tick(s) from %s: %s\n", r.Ticks, r.Ledger, verdict)
	return err
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [rules]",
		Short: "Re-execute a ledger and check it reproduces",
		Long: `Re-execute every tick recorded in a ledger, starting from the given
snapshot with the recorded tick contexts, and compare the applied rules,
blocks, conflicts and delta of each tick with the recorded ones.

Exits 1 when any tick diverges.

Examples:
  ngat replay rules.yaml --state world.json --ledger ticks.jsonl`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.State, "state", "", "snapshot JSON the ledger started from")
	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "JSONL ledger to replay (defaults to the configured ledger_path)")
	return cmd
}

func runReplay(opts *ReplayOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	path, err := rulesPathArg(args, cfg)
	if err != nil {
		return err
	}
	ledgerPath := opts.Ledger
	if ledgerPath == "" {
		ledgerPath = cfg.LedgerPath
	}
	if ledgerPath == "" {
		return NewExitError(ExitCommandError, "no ledger given and ledger_path is not configured")
	}
	recorded, err := rules.ReadLedger(ledgerPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read ledger", err)
	}
	state, err := loadState(opts.State)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeState, "failed to load state", err)
	}
	engine, err := loadEngine(path, state, newEngineLogger(opts.RootOptions, cmd))
	if err != nil {
		return failRules(formatter, path, err)
	}

	result := ReplayResult{Ledger: ledgerPath, Ticks: len(recorded), Deterministic: true}
	for _, want := range recorded {
		got, err := engine.ExecuteTick(want.Context)
		if err != nil {
			return WrapExitError(ExitFailure, "replay failed", err)
		}
		wantJSON, err := tickOutcome(want)
		if err != nil {
			return WrapExitError(ExitFailure, "encode recorded tick", err)
		}
		gotJSON, err := tickOutcome(got)
		if err != nil {
			return WrapExitError(ExitFailure, "encode replayed tick", err)
		}
		if !bytes.Equal(wantJSON, gotJSON) {
			result.Deterministic = false
			result.Mismatches = append(result.Mismatches, ReplayMismatch{
				Tick:     want.Tick,
				Recorded: string(wantJSON),
				Replayed: string(gotJSON),
			})
		}
	}

	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Deterministic {
		return NewExitError(ExitFailure, "replay diverged from the ledger")
	}
	return nil
}

// tickOutcome is the canonical form of everything a tick decided, without
// its wall-clock timestamp.
func tickOutcome(rec rules.TickRecord) ([]byte, error) {
	return canon.Marshal(map[string]any{
		"tick":          rec.Tick,
		"applied_rules": rec.Applied,
		"blocked_rules": rec.Blocked,
		"conflicts":     rec.Conflicts,
		"state_delta":   rec.Delta,
	})
}
