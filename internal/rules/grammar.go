package rules

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/ngat/internal/world"
)

// PredicateKind is the tokenized form of a predicate's function name.
type PredicateKind int

const (
	PredInvalid PredicateKind = iota
	PredFlag
	PredStat
	PredLocation
	PredInventory
)

func (k PredicateKind) String() string {
	switch k {
	case PredFlag:
		return "flag"
	case PredStat:
		return "stat"
	case PredLocation:
		return "location"
	case PredInventory:
		return "inventory_has"
	}
	return "invalid"
}

// EffectKind is the tokenized form of an effect's function name.
type EffectKind int

const (
	EffInvalid EffectKind = iota
	EffSetFlag
	EffSetStat
	EffChangeStat
	EffSetLocation
	EffAddInventory
)

func (k EffectKind) String() string {
	switch k {
	case EffSetFlag:
		return "set_flag"
	case EffSetStat:
		return "set_stat"
	case EffChangeStat:
		return "change_stat"
	case EffSetLocation:
		return "set_location"
	case EffAddInventory:
		return "add_inventory"
	}
	return "invalid"
}

// Op is a comparison operator.
type Op string

const (
	OpGT Op = ">"
	OpLT Op = "<"
	OpGE Op = ">="
	OpLE Op = "<="
	OpEQ Op = "=="
	OpNE Op = "!="
)

// Two-character operators first so ">=" is not read as ">".
var opsByLength = []Op{OpGE, OpLE, OpEQ, OpNE, OpGT, OpLT}

func (o Op) compare(a, b float64) bool {
	switch o {
	case OpGT:
		return a > b
	case OpLT:
		return a < b
	case OpGE:
		return a >= b
	case OpLE:
		return a <= b
	case OpEQ:
		return a == b
	case OpNE:
		return a != b
	}
	return false
}

// Predicate is a tokenized condition.
type Predicate struct {
	Kind   PredicateKind
	Negate bool
	Entity string
	Name   string // flag, stat or item name; empty for location
	Op     Op
	Number float64 // right-hand side of stat and inventory comparisons
	Text   string  // right-hand side of location comparisons

	// Source is the original expression text.
	Source string

	// Err is set when Kind is PredInvalid.
	Err error
}

// Key returns the dotted state key the predicate reads, or "" when invalid.
func (p Predicate) Key() string {
	switch p.Kind {
	case PredFlag:
		return world.FlagKey(p.Entity, p.Name)
	case PredStat:
		return world.StatKey(p.Entity, p.Name)
	case PredLocation:
		return world.LocationKey(p.Entity)
	case PredInventory:
		return world.InventoryKey(p.Entity, p.Name)
	}
	return ""
}

// Eval evaluates p against the provider. Invalid predicates are false.
func (p Predicate) Eval(w *world.Provider) bool {
	switch p.Kind {
	case PredFlag:
		return w.Flag(p.Entity, p.Name) != p.Negate
	case PredStat:
		return p.Op.compare(w.Stat(p.Entity, p.Name), p.Number)
	case PredLocation:
		loc, ok := w.Location(p.Entity)
		eq := ok && loc == p.Text
		if p.Op == OpNE {
			return !eq
		}
		return eq
	case PredInventory:
		return p.Op.compare(float64(w.InventoryCount(p.Entity, p.Name)), p.Number)
	}
	return false
}

// Effect is a tokenized state mutation.
type Effect struct {
	Kind   EffectKind
	Entity string
	Name   string // flag, stat or item name; empty for set_location
	Bool   bool
	Number float64
	Count  int
	Text   string

	// Source is the original expression text.
	Source string

	// Err is set when Kind is EffInvalid.
	Err error
}

// Key returns the dotted state key the effect writes, or "" when invalid.
func (e Effect) Key() string {
	switch e.Kind {
	case EffSetFlag:
		return world.FlagKey(e.Entity, e.Name)
	case EffSetStat, EffChangeStat:
		return world.StatKey(e.Entity, e.Name)
	case EffSetLocation:
		return world.LocationKey(e.Entity)
	case EffAddInventory:
		return world.InventoryKey(e.Entity, e.Name)
	}
	return ""
}

// ErrNonFinite is returned when a stat would become NaN or infinite.
var ErrNonFinite = errors.New("stat value is not finite")

// Apply performs the effect on the provider. Invalid effects do nothing.
// A change_stat whose result is not finite is skipped with ErrNonFinite.
func (e Effect) Apply(w *world.Provider) error {
	switch e.Kind {
	case EffSetFlag:
		w.SetFlag(e.Entity, e.Name, e.Bool)
	case EffSetStat:
		w.SetStat(e.Entity, e.Name, e.Number)
	case EffChangeStat:
		v := w.Stat(e.Entity, e.Name) + e.Number
		if !finite(v) {
			return fmt.Errorf("%s: %w", world.StatKey(e.Entity, e.Name), ErrNonFinite)
		}
		w.SetStat(e.Entity, e.Name, v)
	case EffSetLocation:
		w.SetLocation(e.Entity, e.Text)
	case EffAddInventory:
		w.AddInventory(e.Entity, e.Name, e.Count)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// parseNumber accepts finite decimal numbers only.
func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(v) {
		return 0, false
	}
	return v, true
}

var errEmpty = errors.New("empty expression")

// ParsePredicate tokenizes one predicate. It never fails: malformed text
// yields a PredInvalid predicate carrying the parse error.
func ParsePredicate(src string) Predicate {
	p, err := parsePredicate(src)
	if err != nil {
		return Predicate{Kind: PredInvalid, Source: src, Err: err}
	}
	p.Source = src
	return p
}

func parsePredicate(src string) (Predicate, error) {
	s := strings.TrimSpace(src)
	if s == "" {
		return Predicate{}, errEmpty
	}

	negate := false
	switch {
	case strings.HasPrefix(s, "not "):
		negate, s = true, strings.TrimSpace(s[len("not "):])
	case strings.HasPrefix(s, "!"):
		negate, s = true, strings.TrimSpace(s[1:])
	}

	name, args, rest, err := splitCall(s)
	if err != nil {
		return Predicate{}, err
	}

	switch name {
	case "flag":
		if err := wantArgs(name, args, 2); err != nil {
			return Predicate{}, err
		}
		if rest != "" {
			return Predicate{}, fmt.Errorf("unexpected %q after flag(...)", rest)
		}
		return Predicate{Kind: PredFlag, Negate: negate, Entity: args[0], Name: args[1]}, nil

	case "stat", "inventory_has":
		if negate {
			return Predicate{}, fmt.Errorf("negation applies only to flag predicates")
		}
		if err := wantArgs(name, args, 2); err != nil {
			return Predicate{}, err
		}
		op, rhs, err := splitComparison(rest)
		if err != nil {
			return Predicate{}, err
		}
		v, ok := parseNumber(rhs)
		if !ok {
			return Predicate{}, fmt.Errorf("%s comparison value %q is not a finite number", name, rhs)
		}
		kind := PredStat
		if name == "inventory_has" {
			kind = PredInventory
		}
		return Predicate{Kind: kind, Entity: args[0], Name: args[1], Op: op, Number: v}, nil

	case "location":
		if negate {
			return Predicate{}, fmt.Errorf("negation applies only to flag predicates")
		}
		if err := wantArgs(name, args, 1); err != nil {
			return Predicate{}, err
		}
		op, rhs, err := splitComparison(rest)
		if err != nil {
			return Predicate{}, err
		}
		if op != OpEQ && op != OpNE {
			return Predicate{}, fmt.Errorf("location supports only == and !=, got %s", op)
		}
		loc, ok := unquote(rhs)
		if !ok {
			return Predicate{}, fmt.Errorf("location value %q must be quoted", rhs)
		}
		return Predicate{Kind: PredLocation, Entity: args[0], Op: op, Text: loc}, nil
	}
	return Predicate{}, fmt.Errorf("unknown predicate %q", name)
}

// ParseEffect tokenizes one effect. Malformed text yields EffInvalid.
func ParseEffect(src string) Effect {
	e, err := parseEffect(src)
	if err != nil {
		return Effect{Kind: EffInvalid, Source: src, Err: err}
	}
	e.Source = src
	return e
}

func parseEffect(src string) (Effect, error) {
	s := strings.TrimSpace(src)
	if s == "" {
		return Effect{}, errEmpty
	}
	name, args, rest, err := splitCall(s)
	if err != nil {
		return Effect{}, err
	}
	if rest != "" {
		return Effect{}, fmt.Errorf("unexpected %q after %s(...)", rest, name)
	}

	switch name {
	case "set_flag":
		if err := wantArgs(name, args, 3); err != nil {
			return Effect{}, err
		}
		b, err := strconv.ParseBool(args[2])
		if err != nil {
			return Effect{}, fmt.Errorf("set_flag value %q is not a bool", args[2])
		}
		return Effect{Kind: EffSetFlag, Entity: args[0], Name: args[1], Bool: b}, nil

	case "set_stat", "change_stat":
		if err := wantArgs(name, args, 3); err != nil {
			return Effect{}, err
		}
		v, ok := parseNumber(args[2])
		if !ok {
			return Effect{}, fmt.Errorf("%s value %q is not a finite number", name, args[2])
		}
		kind := EffSetStat
		if name == "change_stat" {
			kind = EffChangeStat
		}
		return Effect{Kind: kind, Entity: args[0], Name: args[1], Number: v}, nil

	case "set_location":
		if err := wantArgs(name, args, 2); err != nil {
			return Effect{}, err
		}
		return Effect{Kind: EffSetLocation, Entity: args[0], Text: args[1]}, nil

	case "add_inventory":
		if err := wantArgs(name, args, 3); err != nil {
			return Effect{}, err
		}
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return Effect{}, fmt.Errorf("add_inventory count %q is not an integer", args[2])
		}
		return Effect{Kind: EffAddInventory, Entity: args[0], Name: args[1], Count: n}, nil
	}
	return Effect{}, fmt.Errorf("unknown effect %q", name)
}

// splitCall splits `name(a, "b", c) rest` into its parts. Arguments are
// unquoted; commas and parentheses inside quotes are literal.
func splitCall(s string) (name string, args []string, rest string, err error) {
	open := strings.IndexByte(s, '(')
	if open <= 0 {
		return "", nil, "", fmt.Errorf("expected name(args) in %q", s)
	}
	name = strings.TrimSpace(s[:open])
	if !isIdent(name) {
		return "", nil, "", fmt.Errorf("invalid function name %q", name)
	}

	var (
		cur   strings.Builder
		quote byte
		raw   []string
		end   = -1
	)
	for i := open + 1; i < len(s) && end < 0; i++ {
		c := s[i]
		if quote != 0 {
			cur.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
			cur.WriteByte(c)
		case ',':
			raw = append(raw, cur.String())
			cur.Reset()
		case ')':
			raw = append(raw, cur.String())
			end = i
		case '(':
			return "", nil, "", fmt.Errorf("nested call in %q", s)
		default:
			cur.WriteByte(c)
		}
	}
	if end < 0 {
		if quote != 0 {
			return "", nil, "", fmt.Errorf("unterminated string in %q", s)
		}
		return "", nil, "", fmt.Errorf("missing ')' in %q", s)
	}

	for _, a := range raw {
		a = strings.TrimSpace(a)
		if a == "" {
			return "", nil, "", fmt.Errorf("empty argument in %q", s)
		}
		if u, ok := unquote(a); ok {
			a = u
		} else if strings.ContainsAny(a, `"'`) {
			return "", nil, "", fmt.Errorf("malformed quoted argument %q", a)
		}
		args = append(args, a)
	}
	return name, args, strings.TrimSpace(s[end+1:]), nil
}

func splitComparison(rest string) (Op, string, error) {
	for _, op := range opsByLength {
		if strings.HasPrefix(rest, string(op)) {
			rhs := strings.TrimSpace(rest[len(op):])
			if rhs == "" {
				return "", "", fmt.Errorf("missing value after %s", op)
			}
			return op, rhs, nil
		}
	}
	if rest == "" {
		return "", "", fmt.Errorf("missing comparison")
	}
	return "", "", fmt.Errorf("unknown comparison %q", rest)
}

func wantArgs(name string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s takes %d arguments, got %d", name, n, len(args))
	}
	return nil
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 {
		q := s[0]
		if (q == '"' || q == '\'') && s[len(s)-1] == q && !strings.ContainsRune(s[1:len(s)-1], rune(q)) {
			return s[1 : len(s)-1], true
		}
	}
	return "", false
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '_' && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (i == 0 || c < '0' || c > '9') {
			return false
		}
	}
	return true
}
