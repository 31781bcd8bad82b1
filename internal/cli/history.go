package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ngat/internal/authority"
	"github.com/roach88/ngat/internal/history"
	"github.com/roach88/ngat/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Scene    string
	Mode     string
	Shadow   bool
	Commands bool
}

// HistoryResult holds whatever the flags selected.
type HistoryResult struct {
	Events   []history.Event           `json:"events,omitempty"`
	Shadow   []history.Entry           `json:"shadow,omitempty"`
	Commands []authority.LoggedCommand `json:"commands,omitempty"`
}

// WriteText renders the result for the text format.
func (r HistoryResult) WriteText(w io.Writer) error {
	for _, e := range r.Events {
		fmt.Fprintf(w, "#%d %s [%s] scene=%s cause=%s\n", e.Seq, e.ID, e.Mode, e.Scene, e.Cause)
	}
	for _, e := range r.Shadow {
		fmt.Fprintf(w, "#%d rejected %s at %s: %s\n", e.Seq, e.Issuer, e.Stage, e.Reason)
	}
	for _, c := range r.Commands {
		fmt.Fprintf(w, "#%d %s %s level=%d system=%s events=%d\n",
			c.Seq, c.Command.ID, c.Command.Issuer, c.Command.Level, c.Command.System, len(c.Command.Events))
	}
	_, err := fmt.Fprintf(w, "%d event(s), %d rejection(s), %d command(s)\n",
		len(r.Events), len(r.Shadow), len(r.Commands))
	return err
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List committed history from the database",
		Long: `List the historical events a runtime persisted to SQLite, optionally
filtered by scene and mode. --shadow lists rejected command attempts
instead; --commands lists the authority command log.

Examples:
  ngat history --db ./ngat.db
  ngat history --db ./ngat.db --scene harbor --mode canon
  ngat history --db ./ngat.db --shadow --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the configured database_path)")
	cmd.Flags().StringVar(&opts.Scene, "scene", "", "only events of this scene")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "only events of this mode (canon|test|dream)")
	cmd.Flags().BoolVar(&opts.Shadow, "shadow", false, "list rejected attempts")
	cmd.Flags().BoolVar(&opts.Commands, "commands", false, "list the command log")
	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	dbPath := opts.Database
	if dbPath == "" {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			return err
		}
		dbPath = cfg.DatabasePath
	}
	if dbPath == "" {
		return NewExitError(ExitCommandError, "no --db given and database_path is not configured")
	}

	filter := history.Filter{Scene: opts.Scene}
	if opts.Mode != "" {
		mode, err := history.ParseMode(opts.Mode)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --mode", err)
		}
		filter.Mode = mode
	}

	// Open would create an empty database; a typo should fail instead.
	if _, err := os.Stat(dbPath); err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := context.Background()
	var result HistoryResult
	switch {
	case opts.Shadow:
		result.Shadow, err = st.ReadShadow(ctx, "")
	case opts.Commands:
		result.Commands, err = st.ReadCommands(ctx)
	default:
		result.Events, err = st.ReadHistory(ctx, filter)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read database", err)
	}
	formatter.VerboseLog("Read %s", dbPath)
	return formatter.Success(result)
}
