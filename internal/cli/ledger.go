package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/ngat/internal/canon"
	"github.com/roach88/ngat/internal/rules"
)

// LedgerOptions holds flags for the ledger command.
type LedgerOptions struct {
	*RootOptions
	Follow bool
}

// LedgerResult lists the complete records of a ledger file.
type LedgerResult struct {
	Path    string             `json:"path"`
	Records []rules.TickRecord `json:"records"`
}

// WriteText renders the result for the text format.
func (r LedgerResult) WriteText(w io.Writer) error {
	for _, rec := range r.Records {
		writeRecordLine(w, rec)
	}
	_, err := fmt.Fprintf(w, "%d record(s) in %s\n", len(r.Records), r.Path)
	return err
}

func writeRecordLine(w io.Writer, rec rules.TickRecord) {
	fmt.Fprintf(w, "Tick %d [%s] scene=%s applied=%s blocked=%d changes=%d\n",
		rec.Tick, rec.Timestamp.Format("2006-01-02T15:04:05Z07:00"), rec.Context.Scene,
		joinOrDash(rec.Applied), len(rec.Blocked), len(rec.Delta))
}

// NewLedgerCommand creates the ledger command.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger [file]",
		Short: "Print the records of a tick ledger",
		Long: `Print every complete record of a JSONL tick ledger. A partially written
last line is skipped until it is complete.

With --follow the command keeps running and prints records as they are
appended, until interrupted. In JSON format each followed record is
written as one canonical JSON line.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(opts, args, cmd)
		},
	}
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "wait for new records")
	return cmd
}

func runLedger(opts *LedgerOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	path := ""
	if len(args) > 0 {
		path = args[0]
	} else {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			return err
		}
		path = cfg.LedgerPath
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no ledger given and ledger_path is not configured")
	}

	if !opts.Follow {
		if _, err := os.Stat(path); err != nil {
			return WrapExitError(ExitCommandError, "failed to open ledger", err)
		}
		recs, err := rules.ReadLedger(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read ledger", err)
		}
		if recs == nil {
			recs = []rules.TickRecord{}
		}
		return formatter.Success(LedgerResult{Path: path, Records: recs})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	err := rules.NewLedgerReader(path).Follow(ctx, func(rec rules.TickRecord) error {
		if opts.Format == "json" {
			line, err := canon.Marshal(rec)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "%s\n", line)
			return err
		}
		writeRecordLine(out, rec)
		return nil
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "follow ledger", err)
	}
	return nil
}
