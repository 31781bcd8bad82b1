package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/ngat/internal/authority"
	"github.com/roach88/ngat/internal/boundary"
	"github.com/roach88/ngat/internal/history"
	"github.com/roach88/ngat/internal/ids"
	"github.com/roach88/ngat/internal/kernel"
	"github.com/roach88/ngat/internal/telemetry"
)

// ErrGatewayNotInitialized is returned by Submit on a nil or shut down
// gateway.
var ErrGatewayNotInitialized = errors.New("gateway not initialized")

// Stages a command passes through.
const (
	StageEditMode   = "edit_mode"
	StageRules      = "rules"
	StageValidation = "validation"
	StageAuthority  = "authority"
	StageExecution  = "execution"
	StageExecuted   = "executed"
)

// Decision is the gateway's verdict on one command.
type Decision struct {
	Accepted   bool            `json:"accepted"`
	Reason     string          `json:"reason,omitempty"`
	CommandID  string          `json:"command_id"`
	Issuer     string          `json:"issuer"`
	Level      authority.Level `json:"authority_level"`
	Timestamp  time.Time       `json:"timestamp"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Stage      string          `json:"stage"`
	EventID    string          `json:"event_id,omitempty"`
	Alerts     []kernel.Alert  `json:"alerts,omitempty"`
	Violations []Violation     `json:"violations,omitempty"`
}

// Gateway serializes command submission for one authority model.
type Gateway struct {
	mu             sync.Mutex
	ready          bool
	model          *authority.Model
	history        *history.Ledger
	shadow         *history.ShadowLedger
	edit           EditPolicy
	checker        RuleChecker
	mode           history.Mode
	recordNonCanon bool
	scene          string
	logger         *slog.Logger
	now            func() time.Time
	metrics        *telemetry.Metrics
	idGen          ids.Generator
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithEditPolicy sets the edit-mode policy. Default AlwaysMutable.
func WithEditPolicy(p EditPolicy) Option {
	return func(g *Gateway) { g.edit = p }
}

// WithRuleChecker sets the rule-veto checker. Default NoViolations.
func WithRuleChecker(c RuleChecker) Option {
	return func(g *Gateway) { g.checker = c }
}

// WithMode sets the history mode accepted commands are committed under.
func WithMode(m history.Mode) Option {
	return func(g *Gateway) { g.mode = m }
}

// WithRecordNonCanon commits TEST and DREAM commands to history too.
func WithRecordNonCanon(on bool) Option {
	return func(g *Gateway) { g.recordNonCanon = on }
}

// WithScene sets the scene id stamped on history and shadow records.
func WithScene(scene string) Option {
	return func(g *Gateway) { g.scene = scene }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithNow sets the decision clock.
func WithNow(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithMetrics records each decision.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithIDGenerator sets how missing command ids are filled.
func WithIDGenerator(gen ids.Generator) Option {
	return func(g *Gateway) { g.idGen = gen }
}

// New returns a gateway in CANON mode over model, committing to hist and
// recording rejections in shadow. Nil ledgers are replaced with empty
// in-memory ones.
func New(model *authority.Model, hist *history.Ledger, shadow *history.ShadowLedger, opts ...Option) *Gateway {
	if hist == nil {
		hist = history.NewLedger()
	}
	if shadow == nil {
		shadow = history.NewShadowLedger(nil, nil)
	}
	g := &Gateway{
		ready:   true,
		model:   model,
		history: hist,
		shadow:  shadow,
		edit:    AlwaysMutable{},
		checker: NoViolations{},
		mode:    history.ModeCanon,
		scene:   "default",
		logger:  slog.Default(),
		now:     time.Now,
		idGen:   ids.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mode returns the current history mode.
func (g *Gateway) Mode() history.Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}

// SetMode switches the history mode for subsequent commands.
func (g *Gateway) SetMode(m history.Mode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mode = m
}

// SetEditPolicy swaps the edit-mode policy.
func (g *Gateway) SetEditPolicy(p EditPolicy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edit = p
}

// Close marks the gateway uninitialized. Later Submit calls fail with
// ErrGatewayNotInitialized.
func (g *Gateway) Close() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready = false
}

// Submit runs cmd through every stage. A rejection is a Decision with
// Accepted false, not an error. Errors are reserved for an unusable
// gateway, raw snapshot data leaking into command events, and storage
// failures; a storage failure also rejects the command.
func (g *Gateway) Submit(cmd authority.Command) (Decision, error) {
	if g == nil {
		return Decision{}, ErrGatewayNotInitialized
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ready || g.model == nil {
		return Decision{}, ErrGatewayNotInitialized
	}

	cmd = cmd.Clone()
	if cmd.ID == "" {
		cmd.ID = g.idGen.Generate()
	}
	dec := Decision{
		CommandID: cmd.ID,
		Issuer:    cmd.Issuer,
		Level:     cmd.Level,
		Timestamp: g.now().UTC(),
		Metadata:  kernel.CloneState(cmd.Metadata),
	}

	if ok, reason := g.edit.AllowMutation(cmd); !ok {
		return g.reject(dec, cmd, StageEditMode, reason, nil)
	}

	if violations := g.checker.Check(cmd, g.model.State()); len(violations) > 0 {
		dec.Violations = violations
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = v.Message
		}
		return g.reject(dec, cmd, StageRules, strings.Join(msgs, "; "), nil)
	}

	before := g.model.State()
	staged, err := g.model.Prepare(cmd)
	if err != nil {
		var ce *authority.CommandError
		switch {
		case errors.As(err, &ce):
			return g.reject(dec, cmd, stageOf(ce.Code), ce.Error(), nil)
		case boundary.IsContamination(err):
			return g.reject(dec, cmd, StageValidation, err.Error(), err)
		default:
			return g.reject(dec, cmd, StageExecution, err.Error(), err)
		}
	}
	cmd = staged.Command()

	// A failed history write must leave the model untouched.
	if g.mode == history.ModeCanon || g.recordNonCanon {
		evt, err := g.history.Commit(history.Event{
			Scene:  g.scene,
			Data:   commandMap(cmd),
			Before: before,
			After:  staged.State(),
			Cause:  Cause(cmd),
			Mode:   g.mode,
		})
		if err != nil {
			err = fmt.Errorf("commit command %s: %w", cmd.ID, err)
			return g.reject(dec, cmd, StageExecution, err.Error(), err)
		}
		dec.EventID = evt.ID
	}

	res, err := g.model.Commit(staged)
	if err != nil {
		// The history event is append-only; it stays as an orphan.
		g.logger.Error("command log append failed after history commit",
			"command_id", cmd.ID,
			"event_id", dec.EventID,
			"error", err)
		return g.reject(dec, cmd, StageExecution, err.Error(), err)
	}

	dec.Accepted = true
	dec.Stage = StageExecuted
	dec.Alerts = res.Alerts

	g.metrics.RecordCommand(context.Background(), telemetry.OutcomeAccepted, StageExecuted)
	g.logger.Info("command accepted",
		"command_id", cmd.ID,
		"issuer", cmd.Issuer,
		"level", cmd.Level.String(),
		"system", cmd.System,
		"mode", string(g.mode),
		"event_id", dec.EventID)
	return dec, nil
}

// reject records cmd in the shadow ledger. cause, when non-nil, is
// returned alongside the decision.
func (g *Gateway) reject(dec Decision, cmd authority.Command, stage, reason string, cause error) (Decision, error) {
	dec.Accepted = false
	dec.Stage = stage
	dec.Reason = reason

	g.metrics.RecordCommand(context.Background(), telemetry.OutcomeRejected, stage)
	g.logger.Warn("command rejected",
		"command_id", cmd.ID,
		"issuer", cmd.Issuer,
		"level", cmd.Level.String(),
		"system", cmd.System,
		"stage", stage,
		"reason", reason)

	if _, err := g.shadow.Record(history.Entry{
		Issuer:  cmd.Issuer,
		Command: commandMap(cmd),
		Reason:  reason,
		Stage:   stage,
		Scene:   g.scene,
	}); err != nil {
		return dec, errors.Join(cause, fmt.Errorf("record rejection of %s: %w", cmd.ID, err))
	}
	return dec, cause
}

func stageOf(code authority.ErrorCode) string {
	switch code {
	case authority.ErrCodeInvalidCommand:
		return StageValidation
	case authority.ErrCodeDenied:
		return StageAuthority
	}
	return StageExecution
}

// Cause is "<issuer>/<source>/<system>".
func Cause(cmd authority.Command) string {
	return cmd.Issuer + "/" + cmd.Source() + "/" + cmd.System
}

// commandMap is the JSON-shaped record of cmd kept in history and shadow.
func commandMap(cmd authority.Command) map[string]any {
	events := make([]any, len(cmd.Events))
	for i, e := range cmd.Events {
		events[i] = kernel.CloneState(e)
	}
	m := map[string]any{
		"command_id":      cmd.ID,
		"issuer":          cmd.Issuer,
		"authority_level": int(cmd.Level),
		"system":          cmd.System,
		"events":          events,
	}
	if len(cmd.Metadata) > 0 {
		m["metadata"] = kernel.CloneState(cmd.Metadata)
	}
	return m
}
