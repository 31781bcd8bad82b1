package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ngat/internal/rules"
	"github.com/roach88/ngat/internal/world"
)

// TickOptions holds flags for the tick command.
type TickOptions struct {
	*RootOptions
	TickFlags
	Ledger   string
	Count    int
	OutState string
}

// TickResult is the outcome of a tick run.
type TickResult struct {
	Ledger  string             `json:"ledger,omitempty"`
	Records []rules.TickRecord `json:"records"`
	Final   world.State        `json:"final_state"`
}

// WriteText renders the result for the text format.
func (r TickResult) WriteText(w io.Writer) error {
	for _, rec := range r.Records {
		fmt.Fprintf(w, "Tick %d: applied %s, blocked %d\n", rec.Tick, joinOrDash(rec.Applied), len(rec.Blocked))
		writeDelta(w, rec.Delta)
	}
	if r.Ledger != "" {
		fmt.Fprintf(w, "%d record(s) appended to %s\n", len(r.Records), r.Ledger)
	}
	return nil
}

// NewTickCommand creates the tick command.
func NewTickCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TickOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tick [rules]",
		Short: "Execute ticks and append them to the ledger",
		Long: `Execute one or more ticks against a snapshot. Every executed tick is
appended to the JSONL ledger as canonical JSON.

When the ledger already holds records and --tick is 0, numbering continues
after the last recorded tick.

--out-state writes the input snapshot with each entity's flags, stats,
location and inventory replaced by the final state. The world block and
kinematic fields are copied through unchanged.

Examples:
  ngat tick rules.yaml --state world.json --ledger ticks.jsonl
  ngat tick rules.yaml --state world.json --ledger ticks.jsonl --ticks 5 --out-state next.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTick(opts, args, cmd)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "JSONL ledger to append to (defaults to the configured ledger_path)")
	cmd.Flags().IntVar(&opts.Count, "ticks", 1, "number of ticks to execute")
	cmd.Flags().StringVar(&opts.OutState, "out-state", "", "write the input snapshot updated with the final state")
	return cmd
}

func runTick(opts *TickOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if opts.Count < 1 {
		return NewExitError(ExitCommandError, "--ticks must be at least 1")
	}
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	path, err := rulesPathArg(args, cfg)
	if err != nil {
		return err
	}
	raw, state, err := loadSnapshot(opts.State)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeState, "failed to load state", err)
	}
	tc, err := opts.context(cfg.Scene)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --var", err)
	}

	ledgerPath := opts.Ledger
	if ledgerPath == "" {
		ledgerPath = cfg.LedgerPath
	}
	engineOpts := []rules.Option{newEngineLogger(opts.RootOptions, cmd)}
	if ledgerPath != "" {
		if tc.Tick == 0 {
			last, err := lastLedgerTick(ledgerPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read ledger", err)
			}
			if last > 0 {
				tc.Tick = last + 1
			}
		}
		lw, err := rules.OpenLedger(ledgerPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open ledger", err)
		}
		defer lw.Close()
		engineOpts = append(engineOpts, rules.WithLedger(lw))
	}

	engine, err := loadEngine(path, state, engineOpts...)
	if err != nil {
		return failRules(formatter, path, err)
	}

	result := TickResult{Ledger: ledgerPath, Records: []rules.TickRecord{}}
	for i := 0; i < opts.Count; i++ {
		rec, err := engine.ExecuteTick(tc)
		if err != nil {
			return WrapExitError(ExitFailure, "tick failed", err)
		}
		formatter.VerboseLog("Executed tick %d (%d applied)", rec.Tick, len(rec.Applied))
		result.Records = append(result.Records, rec)
		tc.Tick = 0
	}
	result.Final = engine.World().Snapshot()

	if opts.OutState != "" {
		if err := writeState(opts.OutState, raw, result.Final); err != nil {
			return WrapExitError(ExitCommandError, "failed to write state", err)
		}
	}
	return formatter.Success(result)
}

// lastLedgerTick returns the highest tick recorded in path, or 0 when the
// ledger does not exist yet.
func lastLedgerTick(path string) (int64, error) {
	recs, err := rules.ReadLedger(path)
	if err != nil {
		return 0, err
	}
	var last int64
	for _, rec := range recs {
		last = max(last, rec.Tick)
	}
	return last, nil
}
