package rules

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/ngat/internal/telemetry"
	"github.com/roach88/ngat/internal/world"
)

// TickContext is the external input to one tick.
type TickContext struct {
	// Tick is the tick number. Zero means "the tick after the last
	// executed one".
	Tick  int64          `json:"tick" yaml:"tick"`
	Scene string         `json:"scene,omitempty" yaml:"scene,omitempty"`
	Vars  map[string]any `json:"vars,omitempty" yaml:"vars,omitempty"`
}

// Block records an eligible rule excluded from a tick because at least one
// of its write keys was already reserved. A blocked rule applies none of its
// effects.
type Block struct {
	RuleID string `json:"rule_id"`

	// Keys are the contested write keys, sorted.
	Keys []string `json:"keys"`

	// BlockedBy is the rule holding the first contested key.
	BlockedBy string `json:"blocked_by"`
}

// Conflict is one contested key between a winner and a loser.
type Conflict struct {
	Key    string `json:"key"`
	Winner string `json:"winner"`
	Loser  string `json:"loser"`
}

// Resolution is the outcome of arbitrating a candidate set.
type Resolution struct {
	Apply     []*Rule
	Blocked   []Block
	Conflicts []Conflict
}

// Simulation describes what a tick would do without doing it.
type Simulation struct {
	Tick         int64             `json:"tick"`
	WouldApply   []string          `json:"would_apply"`
	WouldBlock   []Block           `json:"would_block"`
	Conflicts    []Conflict        `json:"conflicts"`
	Explanations map[string]string `json:"explanations"`

	// Delta is the diff the tick would produce.
	Delta world.Delta `json:"state_delta"`
}

// TickRecord is one executed tick, as written to the ledger.
type TickRecord struct {
	Tick      int64       `json:"tick"`
	Timestamp time.Time   `json:"timestamp"`
	Context   TickContext `json:"context"`
	Applied   []string    `json:"applied_rules"`
	Blocked   []Block     `json:"blocked_rules"`
	Conflicts []Conflict  `json:"conflicts"`
	Delta     world.Delta `json:"state_delta"`
}

// Appender receives every executed tick record.
type Appender interface {
	Append(rec TickRecord) error
}

// Engine evaluates loaded rules against a world provider.
//
// Engine is not safe for concurrent use; ticks are turn-based.
type Engine struct {
	world   *world.Provider
	rules   []*Rule
	byID    map[string]*Rule
	logger  *slog.Logger
	now     func() time.Time
	ledger  Appender
	metrics *telemetry.Metrics
	records []TickRecord
	tick    int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for evaluation warnings.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNow sets the wall clock used for record timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLedger sets where executed tick records are appended.
func WithLedger(a Appender) Option {
	return func(e *Engine) { e.ledger = a }
}

// WithMetrics sets the tick counters.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine over w with no rules loaded.
func NewEngine(w *world.Provider, opts ...Option) *Engine {
	e := &Engine{
		world:  w,
		byID:   make(map[string]*Rule),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// World returns the provider the engine evaluates against.
func (e *Engine) World() *world.Provider { return e.world }

// Load compiles and appends rules in order. Load is all-or-nothing: on any
// error (invalid spec, duplicate id) no rule from this call is kept.
func (e *Engine) Load(specs ...RuleSpec) error {
	seen := make(map[string]bool, len(specs))
	compiled := make([]*Rule, 0, len(specs))
	for _, spec := range specs {
		if _, exists := e.byID[spec.ID]; exists || seen[spec.ID] {
			return fmt.Errorf("duplicate rule id %q", spec.ID)
		}
		seen[spec.ID] = true

		r, err := Compile(spec)
		if err != nil {
			return err
		}
		for _, src := range r.Invalid() {
			e.logger.Warn("rule has malformed expression", "rule", r.ID, "expr", src)
		}
		compiled = append(compiled, r)
	}
	for _, r := range compiled {
		r.order = len(e.rules)
		e.rules = append(e.rules, r)
		e.byID[r.ID] = r
	}
	return nil
}

// Rules returns the loaded rules in load order.
func (e *Engine) Rules() []*Rule {
	return slices.Clone(e.rules)
}

// Rule returns the rule with id.
func (e *Engine) Rule(id string) (*Rule, bool) {
	r, ok := e.byID[id]
	return r, ok
}

// IsEligible reports whether every declared input is present in tc, every
// requires predicate holds, and no conflicts predicate holds.
func (e *Engine) IsEligible(r *Rule, tc TickContext) bool {
	ok, _ := e.explain(r, tc)
	return ok
}

func (e *Engine) explain(r *Rule, tc TickContext) (bool, string) {
	for _, in := range r.Inputs {
		if !inputSatisfied(in, tc) {
			return false, fmt.Sprintf("missing input %s", in)
		}
	}
	for _, p := range r.Requires {
		if !e.eval(r, p) {
			return false, fmt.Sprintf("requires %s is false", p.Source)
		}
	}
	for _, p := range r.Conflicts {
		if e.eval(r, p) {
			return false, fmt.Sprintf("conflicts %s is true", p.Source)
		}
	}
	return true, "eligible"
}

func (e *Engine) eval(r *Rule, p Predicate) bool {
	if p.Kind == PredInvalid {
		e.logger.Warn("rule evaluation warning",
			"rule", r.ID,
			"expr", p.Source,
			"error", p.Err)
		return false
	}
	return p.Eval(e.world)
}

func (e *Engine) apply(r *Rule) {
	for _, eff := range r.Effects {
		if eff.Kind == EffInvalid {
			e.logger.Warn("rule evaluation warning",
				"rule", r.ID,
				"expr", eff.Source,
				"error", eff.Err)
			continue
		}
		if err := eff.Apply(e.world); err != nil {
			e.logger.Warn("rule effect skipped",
				"rule", r.ID,
				"expr", eff.Source,
				"error", err)
		}
	}
}

// ResolveConflicts arbitrates candidates by descending priority, ties in
// candidate order. Each rule reserves its write keys; a rule any of whose
// keys is already reserved is blocked entirely.
func ResolveConflicts(candidates []*Rule) Resolution {
	ordered := slices.Clone(candidates)
	slices.SortStableFunc(ordered, func(a, b *Rule) int {
		return cmp.Compare(b.Priority, a.Priority)
	})

	res := Resolution{Blocked: []Block{}, Conflicts: []Conflict{}}
	reserved := make(map[string]string)
	for _, r := range ordered {
		var contested []string
		for _, k := range r.writeSet {
			if _, taken := reserved[k]; taken {
				contested = append(contested, k)
			}
		}
		if len(contested) > 0 {
			for _, k := range contested {
				res.Conflicts = append(res.Conflicts, Conflict{Key: k, Winner: reserved[k], Loser: r.ID})
			}
			res.Blocked = append(res.Blocked, Block{RuleID: r.ID, Keys: contested, BlockedBy: reserved[contested[0]]})
			continue
		}
		for _, k := range r.writeSet {
			reserved[k] = r.ID
		}
		res.Apply = append(res.Apply, r)
	}
	return res
}

func (e *Engine) tickNumber(tc TickContext) int64 {
	if tc.Tick != 0 {
		return tc.Tick
	}
	return e.tick + 1
}

// evaluate selects eligible rules and arbitrates them.
func (e *Engine) evaluate(tc TickContext) (Resolution, map[string]string) {
	explanations := make(map[string]string, len(e.rules))
	var candidates []*Rule
	for _, r := range e.rules {
		ok, why := e.explain(r, tc)
		explanations[r.ID] = why
		if ok {
			candidates = append(candidates, r)
		}
	}
	res := ResolveConflicts(candidates)
	for _, r := range res.Apply {
		explanations[r.ID] = "applied"
	}
	for _, b := range res.Blocked {
		explanations[b.RuleID] = fmt.Sprintf("blocked by %s on %s", b.BlockedBy, strings.Join(b.Keys, ", "))
	}
	return res, explanations
}

// SimulateTick reports what ExecuteTick(tc) would do. The world is left
// exactly as it was, whatever happens during evaluation.
func (e *Engine) SimulateTick(tc TickContext) (Simulation, error) {
	sim := Simulation{Tick: e.tickNumber(tc)}
	err := world.Speculate(e.world, func() error {
		before := e.world.Snapshot()
		res, explanations := e.evaluate(tc)
		for _, r := range res.Apply {
			e.apply(r)
		}
		sim.WouldApply = ruleIDs(res.Apply)
		sim.WouldBlock = res.Blocked
		sim.Conflicts = res.Conflicts
		sim.Explanations = explanations
		sim.Delta = nonNilDelta(world.Diff(before, e.world.Snapshot()))
		return nil
	})
	if err != nil {
		return Simulation{}, err
	}
	return sim, nil
}

// ExecuteTick applies the rules SimulateTick would apply, records the
// resulting diff and appends the record to the ledger. If the ledger append
// fails the world is restored and the tick is not counted.
func (e *Engine) ExecuteTick(tc TickContext) (TickRecord, error) {
	tc.Tick = e.tickNumber(tc)
	before := e.world.Snapshot()

	res, _ := e.evaluate(tc)
	for _, r := range res.Apply {
		e.apply(r)
	}
	after := e.world.Snapshot()

	rec := TickRecord{
		Tick:      tc.Tick,
		Timestamp: e.now().UTC(),
		Context:   tc,
		Applied:   ruleIDs(res.Apply),
		Blocked:   res.Blocked,
		Conflicts: res.Conflicts,
		Delta:     nonNilDelta(world.Diff(before, after)),
	}
	if e.ledger != nil {
		if err := e.ledger.Append(rec); err != nil {
			e.world.Restore(before)
			return TickRecord{}, fmt.Errorf("append tick %d to ledger: %w", rec.Tick, err)
		}
	}

	e.tick = rec.Tick
	e.records = append(e.records, rec)
	e.metrics.RecordTick(context.Background(), len(rec.Applied), len(rec.Blocked))
	e.logger.Debug("tick executed",
		"tick", rec.Tick,
		"applied", len(rec.Applied),
		"blocked", len(rec.Blocked),
		"changes", len(rec.Delta))
	return rec, nil
}

// ApplyRules applies the effects of the named rules, in the given order,
// without arbitration or ledger writes, and returns the resulting diff.
func (e *Engine) ApplyRules(ids []string) (world.Delta, error) {
	rs := make([]*Rule, 0, len(ids))
	for _, id := range ids {
		r, ok := e.byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown rule %q", id)
		}
		rs = append(rs, r)
	}
	before := e.world.Snapshot()
	for _, r := range rs {
		e.apply(r)
	}
	return nonNilDelta(world.Diff(before, e.world.Snapshot())), nil
}

// Records returns the executed tick records in order.
func (e *Engine) Records() []TickRecord {
	return slices.Clone(e.records)
}

// LastTick is the number of the most recently executed tick.
func (e *Engine) LastTick() int64 { return e.tick }

// Reset forgets executed ticks so numbering restarts at 1. Loaded rules,
// the world and the ledger sink are left alone.
func (e *Engine) Reset() {
	e.tick = 0
	e.records = nil
}

func ruleIDs(rs []*Rule) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}

func nonNilDelta(d world.Delta) world.Delta {
	if d == nil {
		return world.Delta{}
	}
	return d
}
