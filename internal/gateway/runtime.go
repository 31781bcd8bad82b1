package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/ngat/internal/authority"
	"github.com/roach88/ngat/internal/config"
	"github.com/roach88/ngat/internal/history"
	"github.com/roach88/ngat/internal/ids"
	"github.com/roach88/ngat/internal/kernel"
	"github.com/roach88/ngat/internal/protocol"
	"github.com/roach88/ngat/internal/rules"
	"github.com/roach88/ngat/internal/store"
	"github.com/roach88/ngat/internal/telemetry"
	"github.com/roach88/ngat/internal/world"
)

// Runtime is one running world: the gateway plus everything it drives.
// There is no package-level runtime; callers pass this around.
type Runtime struct {
	Config  config.Config
	Gateway *Gateway
	Model   *authority.Model
	History *history.Ledger
	Shadow  *history.ShadowLedger
	Rules   *rules.Engine
	World   *world.Provider
	Codec   protocol.Codec

	initialWorld world.State
	store        *store.Store
	ledger       *rules.LedgerWriter
	logger       *slog.Logger
}

type runtimeOptions struct {
	world         world.State
	logger        *slog.Logger
	now           func() time.Time
	idGen         ids.Generator
	meterProvider metric.MeterProvider
	policies      []authority.Option
}

// RuntimeOption configures NewRuntime.
type RuntimeOption func(*runtimeOptions)

// WithWorld sets the initial rule-engine world.
func WithWorld(s world.State) RuntimeOption {
	return func(o *runtimeOptions) { o.world = s }
}

// WithRuntimeLogger sets the logger handed to every component.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(o *runtimeOptions) { o.logger = l }
}

// WithClock sets the wall clock handed to every component.
func WithClock(now func() time.Time) RuntimeOption {
	return func(o *runtimeOptions) { o.now = now }
}

// WithIDs sets the id generator for commands and events.
func WithIDs(g ids.Generator) RuntimeOption {
	return func(o *runtimeOptions) { o.idGen = g }
}

// WithMeterProvider routes metrics to p instead of the global provider.
func WithMeterProvider(p metric.MeterProvider) RuntimeOption {
	return func(o *runtimeOptions) { o.meterProvider = p }
}

// WithModelOptions passes extra options, such as policy hooks, to the
// authority model.
func WithModelOptions(opts ...authority.Option) RuntimeOption {
	return func(o *runtimeOptions) { o.policies = append(o.policies, opts...) }
}

// NewRuntime builds a runtime from cfg. When cfg.DatabasePath is set the
// history, shadow and command log are mirrored to SQLite; when
// cfg.LedgerPath is set tick records are appended there; when
// cfg.RulesPath is set the rules are loaded and their veto-tagged rules
// screen every command.
func NewRuntime(cfg config.Config, registry *kernel.Registry, initial map[string]any, opts ...RuntimeOption) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := runtimeOptions{
		logger: slog.Default(),
		now:    time.Now,
		idGen:  ids.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	codec, err := protocol.NewCodec(cfg.ProtocolVersion, cfg.Epoch)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}
	metrics, err := telemetry.New(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}

	rt := &Runtime{
		Config:       cfg,
		Codec:        codec,
		initialWorld: o.world.Clone(),
		logger:       o.logger,
	}

	histOpts := []history.LedgerOption{history.WithIDGenerator(o.idGen), history.WithNow(o.now)}
	modelOpts := []authority.Option{
		authority.WithLogger(o.logger),
		authority.WithIDGenerator(o.idGen),
		authority.WithNow(o.now),
	}
	if cfg.MergeMode == config.MergeReplace {
		modelOpts = append(modelOpts, authority.WithMergeMode(authority.MergeReplace))
	}
	var sink history.Sink
	if cfg.DatabasePath != "" {
		if rt.store, err = store.Open(cfg.DatabasePath); err != nil {
			return nil, fmt.Errorf("runtime: %w", err)
		}
		sink = rt.store
		histOpts = append(histOpts, history.WithSink(rt.store))
		modelOpts = append(modelOpts, authority.WithCommandSink(rt.store))
	}
	modelOpts = append(modelOpts, o.policies...)

	rt.History = history.NewLedger(histOpts...)
	rt.Shadow = history.NewShadowLedger(o.now, sink)
	rt.Model = authority.New(registry, initial, modelOpts...)
	rt.World = world.NewProvider(o.world)

	engineOpts := []rules.Option{
		rules.WithLogger(o.logger),
		rules.WithNow(o.now),
		rules.WithMetrics(metrics),
	}
	if cfg.LedgerPath != "" {
		if rt.ledger, err = rules.OpenLedger(cfg.LedgerPath); err != nil {
			rt.closeStores()
			return nil, fmt.Errorf("runtime: %w", err)
		}
		engineOpts = append(engineOpts, rules.WithLedger(rt.ledger))
	}
	rt.Rules = rules.NewEngine(rt.World, engineOpts...)
	if cfg.RulesPath != "" {
		specs, err := rules.LoadFile(cfg.RulesPath)
		if err != nil {
			rt.closeStores()
			return nil, fmt.Errorf("runtime: %w", err)
		}
		if err := rt.Rules.Load(specs...); err != nil {
			rt.closeStores()
			return nil, fmt.Errorf("runtime: %w", err)
		}
	}

	var edit EditPolicy = AlwaysMutable{}
	if cfg.EditMode == config.EditFrozen {
		edit = Frozen{Reason: fmt.Sprintf("scene %s is frozen", cfg.Scene)}
	}
	rt.Gateway = New(rt.Model, rt.History, rt.Shadow,
		WithEditPolicy(edit),
		WithRuleChecker(RuleEngineChecker{Engine: rt.Rules, Scene: cfg.Scene}),
		WithMode(cfg.Mode()),
		WithRecordNonCanon(cfg.RecordNonCanon),
		WithScene(cfg.Scene),
		WithLogger(o.logger),
		WithNow(o.now),
		WithMetrics(metrics),
		WithIDGenerator(o.idGen),
	)

	o.logger.Info("runtime started",
		"protocol_version", cfg.ProtocolVersion,
		"epoch", cfg.Epoch,
		"mode", cfg.HistoryMode,
		"edit_mode", cfg.EditMode,
		"rules", len(rt.Rules.Rules()),
		"database", cfg.DatabasePath != "")
	return rt, nil
}

// Submit passes cmd to the gateway.
func (rt *Runtime) Submit(cmd authority.Command) (Decision, error) {
	if rt == nil {
		return Decision{}, ErrGatewayNotInitialized
	}
	return rt.Gateway.Submit(cmd)
}

// SubmitEnvelope unwraps a command envelope and submits its command.
func (rt *Runtime) SubmitEnvelope(env protocol.Envelope) (Decision, error) {
	if rt == nil {
		return Decision{}, ErrGatewayNotInitialized
	}
	payload, err := rt.Codec.Unwrap(env, protocol.TypeCommand)
	if err != nil {
		return Decision{}, err
	}
	cmd, err := CommandFromPayload(payload)
	if err != nil {
		return Decision{}, err
	}
	return rt.Gateway.Submit(cmd)
}

// Tick executes one rule-engine tick in the configured scene when tc has
// none.
func (rt *Runtime) Tick(tc rules.TickContext) (rules.TickRecord, error) {
	if tc.Scene == "" {
		tc.Scene = rt.Config.Scene
	}
	return rt.Rules.ExecuteTick(tc)
}

// DeltaEnvelope wraps a tick record's state delta for the wire.
func (rt *Runtime) DeltaEnvelope(rec rules.TickRecord) (protocol.Envelope, error) {
	changes := make([]any, 0, len(rec.Delta))
	for _, c := range rec.Delta {
		changes = append(changes, map[string]any{"key": c.Key, "before": c.Before, "after": c.After})
	}
	applied := make([]any, len(rec.Applied))
	for i, id := range rec.Applied {
		applied[i] = id
	}
	return rt.Codec.WrapDelta(map[string]any{
		"applied_rules": applied,
		"changes":       changes,
	}, rec.Tick)
}

// Reset clears the in-memory ledgers, the shadow store, the model and the
// engine's tick records, and restores the initial world. Durable CANON
// history and the tick ledger file are kept.
func (rt *Runtime) Reset() error {
	rt.Model.Reset()
	rt.Rules.Reset()
	rt.History.Reset()
	if err := rt.Shadow.Clear(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	rt.World.Restore(rt.initialWorld)
	rt.logger.Info("runtime reset")
	return nil
}

// Shutdown closes the gateway and every open file. The runtime is unusable
// afterwards.
func (rt *Runtime) Shutdown() error {
	if rt == nil {
		return nil
	}
	rt.Gateway.Close()
	err := rt.closeStores()
	rt.logger.Info("runtime shut down")
	return err
}

func (rt *Runtime) closeStores() error {
	var errs []error
	if rt.ledger != nil {
		errs = append(errs, rt.ledger.Close())
		rt.ledger = nil
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
		rt.store = nil
	}
	return errors.Join(errs...)
}
