package authority

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ngat/internal/boundary"
	"github.com/roach88/ngat/internal/ids"
	"github.com/roach88/ngat/internal/kernel"
)

// journal appends every event's "tag" to state["order"].
func journal(state kernel.SystemState, events []kernel.Event) (kernel.Result, error) {
	order, _ := state["order"].([]any)
	for _, e := range events {
		order = append(order, e["tag"])
	}
	return kernel.Result{State: kernel.SystemState{"order": order}}, nil
}

// ledger adds each event's "amount" to state["balance"] and alerts when it
// goes negative.
func ledger(state kernel.SystemState, events []kernel.Event) (kernel.Result, error) {
	balance, _ := state["balance"].(float64)
	for _, e := range events {
		amt, ok := e["amount"].(float64)
		if !ok {
			return kernel.Result{}, errors.New("amount must be a number")
		}
		balance += amt
	}
	res := kernel.Result{State: kernel.SystemState{"balance": balance}}
	if balance < 0 {
		res.Alerts = []kernel.Alert{{Severity: "warn", Message: "overdrawn"}}
	}
	return res, nil
}

func newRegistry(t *testing.T) *kernel.Registry {
	t.Helper()
	r := kernel.NewRegistry()
	require.NoError(t, r.Register("journal", kernel.KernelFunc(journal)))
	require.NoError(t, r.Register("ledger", kernel.KernelFunc(ledger)))
	return r
}

func newModel(t *testing.T, opts ...Option) *Model {
	t.Helper()
	base := []Option{
		WithIDGenerator(ids.NewSequenceGenerator("cmd")),
		WithNow(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }),
	}
	return New(newRegistry(t), map[string]any{"ledger": map[string]any{"balance": 10.0}}, append(base, opts...)...)
}

func cmd(level Level, system string, events ...kernel.Event) Command {
	return Command{Issuer: "tester", Level: level, System: system, Events: events}
}

func tagged(level Level, tag string) Command {
	return cmd(level, "journal", kernel.Event{"tag": tag})
}

func TestTickWorldOrdersByLevelStable(t *testing.T) {
	m := newModel(t)

	outcomes := m.TickWorld(
		tagged(AutonomousActor, "a1"),
		tagged(HardOverride, "h3"),
		tagged(SoftOverride, "s2"),
		tagged(Debug, "d4"),
		tagged(AutonomousActor, "b1"),
	)

	var levels []Level
	for _, o := range outcomes {
		require.NoError(t, o.Err)
		levels = append(levels, o.Command.Level)
	}
	assert.Equal(t, []Level{4, 3, 2, 1, 1}, levels)
	assert.Equal(t, []any{"d4", "h3", "s2", "a1", "b1"}, m.SystemState("journal")["order"])

	log := m.CommandLog()
	require.Len(t, log, 5)
	for i, e := range log {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestEnqueueThenTick(t *testing.T) {
	m := newModel(t)
	m.Enqueue(tagged(AutonomousActor, "queued"))
	assert.Equal(t, 1, m.Pending())

	m.TickWorld(tagged(HardOverride, "direct"))
	assert.Equal(t, 0, m.Pending())
	assert.Equal(t, []any{"direct", "queued"}, m.SystemState("journal")["order"])
}

func TestReplayReproducesState(t *testing.T) {
	m := newModel(t)
	_, err := m.Execute(cmd(PhysicalLaw, "ledger", kernel.Event{"amount": -25.0}))
	require.NoError(t, err)
	m.TickWorld(tagged(AutonomousActor, "x"), tagged(Debug, "y"))
	_, err = m.Execute(cmd(HardOverride, "ledger", kernel.Event{"amount": 3.5}, kernel.Event{"amount": 1.0}))
	require.NoError(t, err)

	replica, err := m.ReplayFromStart()
	require.NoError(t, err)
	assert.Equal(t, m.State(), replica.State())
	assert.Equal(t, len(m.CommandLog()), len(replica.CommandLog()))
	assert.NoError(t, m.VerifyReplay())

	h1, err := m.StateHash()
	require.NoError(t, err)
	h2, err := replica.StateHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestVerifyReplayDetectsImpureKernel(t *testing.T) {
	calls := 0
	r := kernel.NewRegistry()
	r.MustRegister("clock", kernel.KernelFunc(func(kernel.SystemState, []kernel.Event) (kernel.Result, error) {
		calls++
		return kernel.Result{State: kernel.SystemState{"calls": calls}}, nil
	}))
	m := New(r, nil)
	_, err := m.Execute(cmd(Debug, "clock"))
	require.NoError(t, err)

	err = m.VerifyReplay()
	var mismatch *ReplayMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1, mismatch.Commands)
	assert.NotEqual(t, mismatch.LiveHash, mismatch.ReplayedHash)
}

func TestPolicyHooks(t *testing.T) {
	deny := func(Command, *Model) (bool, string) { return false, "on cooldown" }
	m := newModel(t, WithActorPolicy(deny), WithOverridePolicy(deny))
	before := m.State()

	for _, lvl := range []Level{AutonomousActor, SoftOverride} {
		_, err := m.Execute(tagged(lvl, "nope"))
		require.Error(t, err)
		assert.True(t, IsDenied(err))
		assert.ErrorIs(t, err, ErrAuthorityDenied)
		assert.Equal(t, ErrCodeDenied, CodeOf(err))
		assert.Contains(t, err.Error(), "on cooldown")
	}
	assert.Equal(t, before, m.State())
	assert.Empty(t, m.CommandLog())

	for _, lvl := range []Level{PhysicalLaw, HardOverride, Debug} {
		_, err := m.Execute(tagged(lvl, lvl.String()))
		require.NoError(t, err)
	}
	assert.Len(t, m.CommandLog(), 3)
}

func TestPolicyHookSeesModel(t *testing.T) {
	// Allow at most one actor command.
	oncePerLog := func(_ Command, m *Model) (bool, string) {
		for _, e := range m.CommandLog() {
			if e.Command.Level == AutonomousActor {
				return false, "actor quota used"
			}
		}
		return true, ""
	}
	m := newModel(t, WithActorPolicy(oncePerLog))

	_, err := m.Execute(tagged(AutonomousActor, "first"))
	require.NoError(t, err)
	_, err = m.Execute(tagged(AutonomousActor, "second"))
	assert.True(t, IsDenied(err))
}

func TestExecuteFailuresLeaveStateUntouched(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		code ErrorCode
		is   error
	}{
		{"unknown system", cmd(Debug, "weather"), ErrCodeUnknownSystem, ErrUnknownSystem},
		{"invalid level", cmd(Level(7), "journal"), ErrCodeInvalidCommand, nil},
		{"missing issuer", Command{Level: Debug, System: "journal"}, ErrCodeInvalidCommand, nil},
		{"missing system", Command{Issuer: "x", Level: Debug}, ErrCodeInvalidCommand, nil},
		{"kernel error", cmd(Debug, "ledger", kernel.Event{"amount": "lots"}), ErrCodeKernelFailed, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newModel(t)
			before := m.State()

			_, err := m.Execute(tt.cmd)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			assert.Equal(t, before, m.State())
			assert.Empty(t, m.CommandLog())
		})
	}
}

func TestExecuteRejectsRawContainerEvents(t *testing.T) {
	m := newModel(t)
	_, err := m.Execute(cmd(Debug, "journal", kernel.Event{"entities": map[string]any{}, "world": map[string]any{}}))
	require.Error(t, err)
	assert.True(t, boundary.IsContamination(err))
	assert.Empty(t, m.CommandLog())
}

func TestAlertsAccumulate(t *testing.T) {
	m := newModel(t)
	res, err := m.Execute(cmd(PhysicalLaw, "ledger", kernel.Event{"amount": -15.0}))
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "ledger", res.Alerts[0].System)

	_, err = m.Execute(cmd(PhysicalLaw, "ledger", kernel.Event{"amount": -1.0}))
	require.NoError(t, err)

	state := m.State()
	assert.Equal(t, map[string]any{"balance": -6.0}, state["ledger"])
	assert.Equal(t, []any{
		map[string]any{"system": "ledger", "severity": "warn", "message": "overdrawn"},
		map[string]any{"system": "ledger", "severity": "warn", "message": "overdrawn"},
	}, state[AlertsKey])
}

func TestMergeReplace(t *testing.T) {
	r := kernel.NewRegistry()
	r.MustRegister("reset", kernel.KernelFunc(func(state kernel.SystemState, _ []kernel.Event) (kernel.Result, error) {
		_, sawWorld := state["ledger"]
		return kernel.Result{State: kernel.SystemState{"fresh": true, "saw_world": sawWorld}}, nil
	}))
	m := New(r, map[string]any{"ledger": map[string]any{"balance": 1.0}}, WithMergeMode(MergeReplace))

	_, err := m.Execute(cmd(Debug, "reset"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"fresh": true, "saw_world": true}, m.State())
	assert.NoError(t, m.VerifyReplay())
}

func TestSnapshotReplacesWholeWorld(t *testing.T) {
	r := kernel.NewRegistry()
	r.MustRegister("load", kernel.KernelFunc(func(kernel.SystemState, []kernel.Event) (kernel.Result, error) {
		return kernel.Result{
			State:    kernel.SystemState{"ignored": true},
			Snapshot: kernel.SystemState{"scene": "two"},
		}, nil
	}))
	m := New(r, map[string]any{"scene": "one", "other": 1.0})

	_, err := m.Execute(cmd(Debug, "load"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"scene": "two"}, m.State())
}

func TestKernelCannotMutateLiveState(t *testing.T) {
	r := kernel.NewRegistry()
	r.MustRegister("vandal", kernel.KernelFunc(func(state kernel.SystemState, events []kernel.Event) (kernel.Result, error) {
		state["balance"] = -999.0
		events[0]["tag"] = "mutated"
		return kernel.Result{}, errors.New("refuse")
	}))
	m := New(r, map[string]any{"vandal": map[string]any{"balance": 1.0}})
	c := cmd(Debug, "vandal", kernel.Event{"tag": "orig"})

	_, err := m.Execute(c)
	require.Error(t, err)
	assert.Equal(t, map[string]any{"balance": 1.0}, m.SystemState("vandal"))
	assert.Equal(t, "orig", c.Events[0]["tag"])
}

type failingSink struct{ calls int }

func (s *failingSink) AppendCommand(LoggedCommand) error {
	s.calls++
	return errors.New("db locked")
}

func TestSinkFailureRollsBack(t *testing.T) {
	sink := &failingSink{}
	m := newModel(t, WithCommandSink(sink))
	before := m.State()

	_, err := m.Execute(tagged(Debug, "x"))
	require.Error(t, err)
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, before, m.State())
	assert.Empty(t, m.CommandLog())

	ok := &recordingSink{}
	m2 := newModel(t, WithCommandSink(ok))
	res, err := m2.Execute(tagged(Debug, "y"))
	require.NoError(t, err)
	require.Len(t, ok.entries, 1)
	assert.Equal(t, res.Seq, ok.entries[0].Seq)
	assert.Equal(t, "cmd-1", ok.entries[0].Command.ID)
}

func TestPrepareDoesNotApply(t *testing.T) {
	sink := &recordingSink{}
	m := newModel(t, WithCommandSink(sink))
	before := m.State()

	staged, err := m.Prepare(cmd(Debug, "ledger", kernel.Event{"amount": -15.0}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), staged.Seq())
	assert.Equal(t, "cmd-1", staged.Command().ID)
	assert.Equal(t, map[string]any{"balance": -5.0}, staged.State()["ledger"])
	assert.Equal(t, before, m.State())
	assert.Empty(t, m.CommandLog())
	assert.Empty(t, sink.entries)

	res, err := m.Commit(staged)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Seq)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "ledger", res.Alerts[0].System)
	assert.Equal(t, staged.State(), m.State())
	assert.Len(t, m.CommandLog(), 1)
	assert.Len(t, sink.entries, 1)
}

func TestCommitRejectsStaleStaged(t *testing.T) {
	m := newModel(t)
	first, err := m.Prepare(tagged(Debug, "a"))
	require.NoError(t, err)
	second, err := m.Prepare(tagged(Debug, "b"))
	require.NoError(t, err)

	_, err = m.Commit(first)
	require.NoError(t, err)
	after := m.State()

	_, err = m.Commit(second)
	require.ErrorIs(t, err, ErrStaleCommand)
	assert.Equal(t, after, m.State())
	assert.Len(t, m.CommandLog(), 1)

	_, err = m.Commit(nil)
	assert.Error(t, err)
}

type recordingSink struct{ entries []LoggedCommand }

func (s *recordingSink) AppendCommand(e LoggedCommand) error {
	s.entries = append(s.entries, e)
	return nil
}

func TestResetRestoresInitialState(t *testing.T) {
	m := newModel(t)
	initial := m.State()
	m.TickWorld(tagged(Debug, "a"))
	m.Enqueue(tagged(Debug, "b"))

	m.Reset()
	assert.Equal(t, initial, m.State())
	assert.Empty(t, m.CommandLog())
	assert.Equal(t, 0, m.Pending())

	res, err := m.Execute(tagged(Debug, "c"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Seq)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "physical_law", PhysicalLaw.String())
	assert.Equal(t, "debug", Debug.String())
	assert.Equal(t, "level(9)", Level(9).String())
	assert.True(t, SoftOverride.Valid())
	assert.False(t, Level(-1).Valid())
}

func TestCommandSource(t *testing.T) {
	assert.Equal(t, "direct", Command{}.Source())
	assert.Equal(t, "narrator", Command{Metadata: map[string]any{"source": "narrator"}}.Source())
	assert.Equal(t, "direct", Command{Metadata: map[string]any{"source": 3}}.Source())
}
