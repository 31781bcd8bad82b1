package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ngat/internal/boundary"
	"github.com/roach88/ngat/internal/canon"
	"github.com/roach88/ngat/internal/protocol"
)

// EnvelopeOptions holds flags for the envelope subcommands.
type EnvelopeOptions struct {
	*RootOptions
	Type string
	Tick int64
	Out  string
}

// wrapResult carries a wrapped envelope. Text output is the canonical
// envelope itself so it can be piped to a file.
type wrapResult struct {
	protocol.Envelope
	encoded []byte
}

func (r wrapResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s\n", r.encoded)
	return err
}

// VerifyResult describes an envelope that passed verification.
type VerifyResult struct {
	Protocol string   `json:"protocol"`
	Version  string   `json:"version"`
	Type     string   `json:"type"`
	Tick     int64    `json:"tick"`
	Epoch    string   `json:"epoch"`
	Hash     string   `json:"hash,omitempty"`
	Keys     []string `json:"payload_keys"`
}

// WriteText renders the result for the text format.
func (r VerifyResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "%s %s %s envelope, tick %d, epoch %s\n", r.Protocol, r.Version, r.Type, r.Tick, r.Epoch)
	if r.Hash != "" {
		fmt.Fprintf(w, "  hash: %s\n", r.Hash)
	}
	_, err := fmt.Fprintf(w, "  payload: %s\n", joinOrDash(r.Keys))
	return err
}

// NewEnvelopeCommand creates the envelope command group.
func NewEnvelopeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "envelope",
		Short: "Wrap and verify NGAT-RT envelopes",
	}
	cmd.AddCommand(newEnvelopeWrapCommand(rootOpts))
	cmd.AddCommand(newEnvelopeVerifyCommand(rootOpts))
	return cmd
}

func newEnvelopeWrapCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnvelopeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "wrap <payload.json>",
		Short: "Wrap a JSON payload in an envelope",
		Long: `Wrap a JSON object in an NGAT-RT envelope using the configured protocol
version and epoch. Snapshot and delta envelopes carry the SHA-256 of the
canonical payload; command envelopes are checked for their mandatory keys.

Examples:
  ngat envelope wrap world.json --tick 42
  ngat envelope wrap cmd.json --type command --out cmd.env.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnvelopeWrap(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Type, "type", protocol.TypeSnapshot, "envelope type (snapshot|delta|command)")
	cmd.Flags().Int64Var(&opts.Tick, "tick", 0, "tick number")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the envelope to a file instead of stdout")
	return cmd
}

func newEnvelopeVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnvelopeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <envelope.json>",
		Short: "Verify an envelope's header, hash and payload",
		Long: `Verify an NGAT-RT envelope: required fields, protocol name, major
version, type, payload hash and payload structure. Exits 1 with the
rejection code when any check fails.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnvelopeVerify(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Type, "type", "", "expected envelope type (any when empty)")
	return cmd
}

func newCodec(opts *RootOptions) (protocol.Codec, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return protocol.Codec{}, err
	}
	codec, err := protocol.NewCodec(cfg.ProtocolVersion, cfg.Epoch)
	if err != nil {
		return protocol.Codec{}, WrapExitError(ExitCommandError, "invalid protocol version", err)
	}
	return codec, nil
}

func runEnvelopeWrap(opts *EnvelopeOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	codec, err := newCodec(opts.RootOptions)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read payload", err)
	}
	raw, err := boundary.Parse(data)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeState, "payload is not a JSON object", err)
	}

	var env protocol.Envelope
	switch opts.Type {
	case protocol.TypeSnapshot:
		env, err = codec.WrapSnapshot(raw, opts.Tick)
	case protocol.TypeDelta:
		env, err = codec.WrapDelta(raw, opts.Tick)
	case protocol.TypeCommand:
		env, err = codec.WrapCommand(raw, opts.Tick)
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown envelope type %q", opts.Type))
	}
	if err != nil {
		return failEnvelope(formatter, "payload rejected", err)
	}
	encoded, err := env.Encode()
	if err != nil {
		return WrapExitError(ExitFailure, "encode envelope", err)
	}

	if opts.Out != "" {
		if err := os.WriteFile(opts.Out, append(encoded, '\n'), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write envelope", err)
		}
		formatter.VerboseLog("Wrote %s envelope to %s", env.Type, opts.Out)
		return nil
	}
	return formatter.Success(wrapResult{Envelope: env, encoded: encoded})
}

func runEnvelopeVerify(opts *EnvelopeOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	codec, err := newCodec(opts.RootOptions)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read envelope", err)
	}
	env, payload, err := codec.Decode(data, opts.Type)
	if err != nil {
		return failEnvelope(formatter, "envelope rejected", err)
	}
	return formatter.Success(VerifyResult{
		Protocol: env.Protocol,
		Version:  env.Version,
		Type:     env.Type,
		Tick:     env.Tick,
		Epoch:    env.Epoch,
		Hash:     env.Hash,
		Keys:     canon.SortedKeys(payload),
	})
}

// failEnvelope reports a rejection with the protocol error code when there
// is one.
func failEnvelope(f *OutputFormatter, message string, err error) error {
	code := ErrCodeEnvelope
	var pe *protocol.ProtocolError
	if errors.As(err, &pe) {
		code = string(pe.Code)
	}
	return f.Fail(ExitFailure, code, message, err)
}
