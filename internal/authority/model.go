package authority

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/ngat/internal/boundary"
	"github.com/roach88/ngat/internal/canon"
	"github.com/roach88/ngat/internal/ids"
	"github.com/roach88/ngat/internal/kernel"
)

// AlertsKey is the world-state key under which kernel alerts accumulate.
const AlertsKey = "alerts"

// PolicyHook decides whether a tier-1 or tier-2 command may execute. It
// returns false and a reason to deny. Hooks may read m but must not
// execute commands on it.
type PolicyHook func(cmd Command, m *Model) (allowed bool, reason string)

// AllowAll is the default policy hook.
func AllowAll(Command, *Model) (bool, string) { return true, "" }

// MergeMode selects how a kernel's returned state enters the world.
type MergeMode int

const (
	// MergeKeyed replaces world[system] with the kernel's state. The
	// kernel sees only world[system].
	MergeKeyed MergeMode = iota

	// MergeReplace replaces the whole world with the kernel's state. The
	// kernel sees the whole world.
	MergeReplace
)

func (m MergeMode) String() string {
	if m == MergeReplace {
		return "replace"
	}
	return "keyed"
}

// CommandSink receives every command-log append. An error from the sink
// fails the command.
type CommandSink interface {
	AppendCommand(entry LoggedCommand) error
}

// Model is the authority model. It is single-threaded: one command is
// fully executed and logged before the next starts.
type Model struct {
	registry *kernel.Registry
	initial  map[string]any
	state    map[string]any
	log      []LoggedCommand
	pending  []Command
	clock    *Clock

	actorPolicy    PolicyHook
	overridePolicy PolicyHook
	merge          MergeMode
	logger         *slog.Logger
	idGen          ids.Generator
	now            func() time.Time
	sink           CommandSink
}

// Option configures a Model.
type Option func(*Model)

// WithActorPolicy sets the tier-1 hook.
func WithActorPolicy(h PolicyHook) Option {
	return func(m *Model) { m.actorPolicy = h }
}

// WithOverridePolicy sets the tier-2 hook.
func WithOverridePolicy(h PolicyHook) Option {
	return func(m *Model) { m.overridePolicy = h }
}

// WithMergeMode sets how kernel state is merged. Default MergeKeyed.
func WithMergeMode(mode MergeMode) Option {
	return func(m *Model) { m.merge = mode }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// WithIDGenerator sets how missing command ids are filled.
func WithIDGenerator(g ids.Generator) Option {
	return func(m *Model) { m.idGen = g }
}

// WithNow sets the wall clock used for command-log timestamps.
func WithNow(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithCommandSink mirrors every command-log append to s.
func WithCommandSink(s CommandSink) Option {
	return func(m *Model) { m.sink = s }
}

// New creates a model over a deep copy of initial.
func New(registry *kernel.Registry, initial map[string]any, opts ...Option) *Model {
	if initial == nil {
		initial = map[string]any{}
	}
	m := &Model{
		registry:       registry,
		initial:        kernel.CloneState(initial),
		state:          kernel.CloneState(initial),
		clock:          NewClock(),
		actorPolicy:    AllowAll,
		overridePolicy: AllowAll,
		logger:         slog.Default(),
		idGen:          ids.UUIDv7Generator{},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the kernel registry.
func (m *Model) Registry() *kernel.Registry { return m.registry }

// State returns a deep copy of the world state.
func (m *Model) State() map[string]any { return kernel.CloneState(m.state) }

// SystemState returns a deep copy of world[system] when it is a map.
func (m *Model) SystemState(system string) map[string]any {
	sub, _ := m.state[system].(map[string]any)
	return kernel.CloneState(sub)
}

// InitialState returns a deep copy of the state the model started from.
func (m *Model) InitialState() map[string]any { return kernel.CloneState(m.initial) }

// CommandLog returns copies of the executed commands in order.
func (m *Model) CommandLog() []LoggedCommand {
	out := make([]LoggedCommand, len(m.log))
	for i, e := range m.log {
		e.Command = e.Command.Clone()
		out[i] = e
	}
	return out
}

// Authorize reports whether cmd passes the authority check.
func (m *Model) Authorize(cmd Command) (bool, string) {
	switch cmd.Level {
	case PhysicalLaw, HardOverride, Debug:
		return true, ""
	case AutonomousActor:
		return m.actorPolicy(cmd, m)
	case SoftOverride:
		return m.overridePolicy(cmd, m)
	}
	return false, fmt.Sprintf("unknown authority level %d", int(cmd.Level))
}

// Execute runs cmd: authority check, kernel lookup, kernel invocation on a
// copy of the relevant state, merge, then command-log append. Any failure
// leaves the model unchanged.
func (m *Model) Execute(cmd Command) (Result, error) {
	staged, err := m.Prepare(cmd)
	if err != nil {
		return Result{}, err
	}
	return m.Commit(staged)
}

// Staged is a command that passed every check and ran its kernel but has
// not yet been applied. Callers inspect it, then Commit or drop it.
type Staged struct {
	entry  LoggedCommand
	next   map[string]any
	alerts []kernel.Alert
}

// Command returns the staged command with its id filled.
func (s *Staged) Command() Command { return s.entry.Command.Clone() }

// Seq is the sequence number the command will take on commit.
func (s *Staged) Seq() int64 { return s.entry.Seq }

// State returns a copy of the world as it will be after commit.
func (s *Staged) State() map[string]any { return kernel.CloneState(s.next) }

// Prepare runs every check and the kernel for cmd without changing the
// model. The result is valid until the next Commit or Reset.
func (m *Model) Prepare(cmd Command) (*Staged, error) {
	return m.prepare(cmd, true)
}

func (m *Model) prepare(cmd Command, checkAuthority bool) (*Staged, error) {
	cmd = cmd.Clone()
	if cmd.ID == "" {
		cmd.ID = m.idGen.Generate()
	}
	fail := func(code ErrorCode, msg string, err error) (*Staged, error) {
		return nil, &CommandError{Code: code, CommandID: cmd.ID, System: cmd.System, Message: msg, Err: err}
	}

	if err := cmd.Validate(); err != nil {
		return fail(ErrCodeInvalidCommand, "invalid command", err)
	}
	if checkAuthority {
		if ok, reason := m.Authorize(cmd); !ok {
			if reason == "" {
				reason = "denied by policy"
			}
			return fail(ErrCodeDenied, fmt.Sprintf("%s: %s", cmd.Level, reason), ErrAuthorityDenied)
		}
	}
	for i, evt := range cmd.Events {
		if err := boundary.GuardRaw(fmt.Sprintf("authority.execute[%s].events[%d]", cmd.System, i), evt); err != nil {
			return nil, err
		}
	}

	k, ok := m.registry.Lookup(cmd.System)
	if !ok {
		return fail(ErrCodeUnknownSystem, fmt.Sprintf("no kernel registered for %q", cmd.System), ErrUnknownSystem)
	}

	var input map[string]any
	if m.merge == MergeReplace {
		input = kernel.CloneState(m.state)
	} else {
		input = m.SystemState(cmd.System)
		if input == nil {
			input = map[string]any{}
		}
	}
	out, err := k.Apply(input, kernel.CloneEvents(cmd.Events))
	if err != nil {
		return fail(ErrCodeKernelFailed, "kernel failed", err)
	}

	alerts := slices.Clone(out.Alerts)
	for i := range alerts {
		if alerts[i].System == "" {
			alerts[i].System = cmd.System
		}
	}
	return &Staged{
		entry:  LoggedCommand{Seq: m.clock.Current() + 1, Command: cmd, Timestamp: m.now().UTC()},
		next:   m.merged(cmd.System, out),
		alerts: alerts,
	}, nil
}

// Commit applies a staged command: command-sink append, then state and
// log. A sink failure or a stale s leaves the model unchanged.
func (m *Model) Commit(s *Staged) (Result, error) {
	if s == nil {
		return Result{}, errors.New("commit: nil staged command")
	}
	cmd := s.entry.Command
	if s.entry.Seq != m.clock.Current()+1 {
		return Result{}, fmt.Errorf("commit %s: %w: staged at seq %d, model at seq %d",
			cmd.ID, ErrStaleCommand, s.entry.Seq, m.clock.Current())
	}
	if m.sink != nil {
		if err := m.sink.AppendCommand(s.entry); err != nil {
			return Result{}, fmt.Errorf("append command %s: %w", cmd.ID, err)
		}
	}
	m.clock.Next()
	m.state = kernel.CloneState(s.next)
	m.log = append(m.log, s.entry)

	m.logger.Debug("command executed",
		"seq", s.entry.Seq,
		"command_id", cmd.ID,
		"issuer", cmd.Issuer,
		"level", cmd.Level.String(),
		"system", cmd.System,
		"events", len(cmd.Events),
		"alerts", len(s.alerts))

	return Result{
		CommandID: cmd.ID,
		Seq:       s.entry.Seq,
		Issuer:    cmd.Issuer,
		Level:     cmd.Level,
		System:    cmd.System,
		Alerts:    slices.Clone(s.alerts),
		State:     kernel.CloneState(s.next),
	}, nil
}

// merged builds the post-command world without touching m.state.
func (m *Model) merged(system string, out kernel.Result) map[string]any {
	var next map[string]any
	switch {
	case out.Snapshot != nil:
		next = kernel.CloneState(out.Snapshot)
	case m.merge == MergeReplace:
		next = kernel.CloneState(out.State)
		if next == nil {
			next = map[string]any{}
		}
	default:
		next = kernel.CloneState(m.state)
		if out.State != nil {
			next[system] = kernel.CloneState(out.State)
		}
	}

	if len(out.Alerts) > 0 {
		existing, _ := next[AlertsKey].([]any)
		alerts := slices.Clone(existing)
		for _, a := range out.Alerts {
			if a.System == "" {
				a.System = system
			}
			alerts = append(alerts, a.Map())
		}
		next[AlertsKey] = alerts
	}
	return next
}

// Enqueue adds commands to the pending batch for the next TickWorld.
func (m *Model) Enqueue(cmds ...Command) {
	for _, c := range cmds {
		m.pending = append(m.pending, c.Clone())
	}
}

// Pending returns the number of queued commands.
func (m *Model) Pending() int { return len(m.pending) }

// TickWorld executes the pending batch followed by cmds, ordered by
// authority level descending. Commands of equal level keep their
// submission order. A failing command does not stop the batch.
func (m *Model) TickWorld(cmds ...Command) []TickOutcome {
	batch := append(m.pending, cmds...)
	m.pending = nil

	slices.SortStableFunc(batch, func(a, b Command) int {
		return cmp.Compare(b.Level, a.Level)
	})

	outcomes := make([]TickOutcome, 0, len(batch))
	for _, c := range batch {
		res, err := m.Execute(c)
		outcomes = append(outcomes, TickOutcome{Command: c, Result: res, Err: err})
	}
	return outcomes
}

// ReplayFromStart builds a fresh model from the initial state and
// re-executes the command log in order. Authority was checked when each
// command first ran, so replay does not consult the policy hooks again.
// The replica has no command sink.
func (m *Model) ReplayFromStart() (*Model, error) {
	replica := &Model{
		registry:       m.registry,
		initial:        kernel.CloneState(m.initial),
		state:          kernel.CloneState(m.initial),
		clock:          NewClock(),
		actorPolicy:    m.actorPolicy,
		overridePolicy: m.overridePolicy,
		merge:          m.merge,
		logger:         m.logger,
		idGen:          m.idGen,
		now:            m.now,
	}
	for _, entry := range m.log {
		staged, err := replica.prepare(entry.Command, false)
		if err == nil {
			_, err = replica.Commit(staged)
		}
		if err != nil {
			return nil, fmt.Errorf("replay seq %d: %w", entry.Seq, err)
		}
	}
	return replica, nil
}

// StateHash is the canonical replay-domain hash of the world state.
func (m *Model) StateHash() (string, error) {
	return canon.DomainHash(canon.DomainReplay, m.state)
}

// VerifyReplay replays the command log and compares the result with the
// live state by canonical hash.
func (m *Model) VerifyReplay() error {
	replica, err := m.ReplayFromStart()
	if err != nil {
		return err
	}
	live, err := m.StateHash()
	if err != nil {
		return fmt.Errorf("hash live state: %w", err)
	}
	replayed, err := replica.StateHash()
	if err != nil {
		return fmt.Errorf("hash replayed state: %w", err)
	}
	if live != replayed {
		return &ReplayMismatchError{LiveHash: live, ReplayedHash: replayed, Commands: len(m.log)}
	}
	return nil
}

// Reset discards all executed and pending commands and restores the
// initial state.
func (m *Model) Reset() {
	m.state = kernel.CloneState(m.initial)
	m.log = nil
	m.pending = nil
	m.clock = NewClock()
}
