package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// RuleReport describes one loaded rule.
type RuleReport struct {
	ID       string   `json:"id"`
	Priority int      `json:"priority"`
	Tags     []string `json:"tags,omitempty"`
	ReadSet  []string `json:"read_set"`
	WriteSet []string `json:"write_set"`
	Invalid  []string `json:"invalid,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Path  string       `json:"path"`
	Valid bool         `json:"valid"`
	Rules []RuleReport `json:"rules"`
}

// WriteText renders the result for the text format.
func (r ValidationResult) WriteText(w io.Writer) error {
	for _, rule := range r.Rules {
		fmt.Fprintf(w, "%s (priority %d)\n", rule.ID, rule.Priority)
		fmt.Fprintf(w, "  reads:  %s\n", joinOrDash(rule.ReadSet))
		fmt.Fprintf(w, "  writes: %s\n", joinOrDash(rule.WriteSet))
		for _, expr := range rule.Invalid {
			fmt.Fprintf(w, "  invalid: %s\n", expr)
		}
	}
	status := "valid"
	if !r.Valid {
		status = "INVALID"
	}
	_, err := fmt.Fprintf(w, "%s: %d rule(s), %s\n", r.Path, len(r.Rules), status)
	return err
}

func joinOrDash(keys []string) string {
	if len(keys) == 0 {
		return "-"
	}
	return strings.Join(keys, ", ")
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [rules]",
		Short: "Load rules and print their read/write sets",
		Long: `Load a YAML or CUE rule file and report each rule's read and write sets.

Malformed predicates and effects still load (they evaluate false or do
nothing at runtime); validate lists them and exits 1 so they are caught
before a tick ever runs.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	path, err := rulesPathArg(args, cfg)
	if err != nil {
		return err
	}

	engine, err := loadEngine(path, nil, newEngineLogger(opts, cmd))
	if err != nil {
		return failRules(formatter, path, err)
	}

	result := ValidationResult{Path: path, Valid: true, Rules: []RuleReport{}}
	for _, r := range engine.Rules() {
		formatter.VerboseLog("Loaded rule: %s", r.ID)
		report := RuleReport{
			ID:       r.ID,
			Priority: r.Priority,
			Tags:     r.Tags,
			ReadSet:  r.ReadSet(),
			WriteSet: r.WriteSet(),
			Invalid:  r.Invalid(),
		}
		if len(report.Invalid) > 0 {
			result.Valid = false
		}
		result.Rules = append(result.Rules, report)
	}

	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "rules contain invalid expressions")
	}
	return nil
}
