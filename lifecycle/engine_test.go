package lifecycle

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type change struct {
	from, to State
}

// fakeSubject records notifications and runs configurable hooks
type fakeSubject struct {
	mu        sync.Mutex
	changes   []change
	rejected  []error
	settled   []Action
	calls     atomic.Int32
	hook      func(ctx context.Context, action Action) error
	wrongHits atomic.Int32
}

func (f *fakeSubject) Name() string { return "fake" }

func (f *fakeSubject) RunAction(ctx context.Context, action Action) error {
	f.calls.Add(1)
	if f.hook == nil {
		return nil
	}
	return f.hook(ctx, action)
}

func (f *fakeSubject) RejectWrongState(action Action, current State) error {
	f.wrongHits.Add(1)
	return fmt.Errorf("fake: %s from %s: %w", action, current, errors.ErrIllegalTransition)
}

func (f *fakeSubject) StateChanged(old, current State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, change{old, current})
}

func (f *fakeSubject) TransitionRejected(reason error, _ State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, reason)
}

func (f *fakeSubject) TransitionSettled(t *Transition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, t.Action)
}

func (f *fakeSubject) recorded() ([]change, []error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]change(nil), f.changes...), append([]error(nil), f.rejected...)
}

func TestEngine_StartFromStopped(t *testing.T) {
	subject := &fakeSubject{}
	engine := NewEngine(subject, DefaultActions(time.Second), StateStopped)

	require.NoError(t, engine.Perform(context.Background(), ActionStart))

	assert.Equal(t, StateRunning, engine.State())
	changes, rejected := subject.recorded()
	assert.Equal(t, []change{{StateStopped, StateStarting}, {StateStarting, StateRunning}}, changes)
	assert.Empty(t, rejected)
	assert.Equal(t, []Action{ActionStart}, subject.settled)
	assert.Nil(t, engine.InFlight())
}

func TestEngine_UnknownAction(t *testing.T) {
	subject := &fakeSubject{}
	engine := NewEngine(subject, DefaultActions(time.Second), StateStopped)

	err := engine.Perform(context.Background(), Action("explode"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownAction)
	assert.Equal(t, StateStopped, engine.State())
	assert.Zero(t, subject.calls.Load())
}

func TestEngine_IllegalTransitionLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		initial State
		action  Action
	}{
		{"stop while stopped", StateStopped, ActionStop},
		{"restart while stopped", StateStopped, ActionRestart},
		{"start while running", StateRunning, ActionStart},
		{"start while failed", StateFailed, ActionStart},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			subject := &fakeSubject{}
			engine := NewEngine(subject, DefaultActions(time.Second), test.initial)

			err := engine.Perform(context.Background(), test.action)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrIllegalTransition)
			assert.Equal(t, test.initial, engine.State())
			assert.Equal(t, int32(1), subject.wrongHits.Load())

			changes, rejected := subject.recorded()
			assert.Empty(t, changes, "no notification when nothing changed")
			assert.Empty(t, rejected)
		})
	}
}

func TestEngine_ConcurrentStartsShareOneTransition(t *testing.T) {
	release := make(chan struct{})
	subject := &fakeSubject{
		hook: func(_ context.Context, _ Action) error {
			<-release
			return nil
		},
	}
	engine := NewEngine(subject, DefaultActions(time.Second), StateStopped)

	first, err := engine.Begin(ActionStart)
	require.NoError(t, err)
	second, err := engine.Begin(ActionStart)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, StateStarting, engine.State())

	close(release)

	ctx := context.Background()
	assert.NoError(t, first.Wait(ctx))
	assert.NoError(t, second.Wait(ctx))
	assert.Equal(t, int32(1), subject.calls.Load())

	changes, _ := subject.recorded()
	assert.Equal(t, []change{{StateStopped, StateStarting}, {StateStarting, StateRunning}}, changes)
}

func TestEngine_JoinObservesFirstOutcome(t *testing.T) {
	release := make(chan struct{})
	subject := &fakeSubject{
		hook: func(_ context.Context, action Action) error {
			<-release
			return nil
		},
	}
	engine := NewEngine(subject, DefaultActions(time.Second), StateRunning)

	stopping, err := engine.Begin(ActionStop)
	require.NoError(t, err)

	// restart has no entry for "stopping" but joins the stop in flight
	joined, err := engine.Begin(ActionRestart)
	require.NoError(t, err)
	assert.Same(t, stopping, joined)

	close(release)
	require.NoError(t, joined.Wait(context.Background()))
	assert.Equal(t, StateStopped, engine.State())
}

func TestEngine_HookFailureMovesToRejectedState(t *testing.T) {
	boom := stderrors.New("boom")
	subject := &fakeSubject{
		hook: func(_ context.Context, _ Action) error { return boom },
	}
	engine := NewEngine(subject, DefaultActions(time.Second), StateStopped)

	err := engine.Perform(context.Background(), ActionStart)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, engine.State())

	changes, rejected := subject.recorded()
	assert.Equal(t, []change{{StateStopped, StateStarting}, {StateStarting, StateFailed}}, changes)
	require.Len(t, rejected, 1)
	assert.ErrorIs(t, rejected[0], boom)

	// failed services can always be retired
	subject.hook = nil
	require.NoError(t, engine.Perform(context.Background(), ActionStop))
	assert.Equal(t, StateStopped, engine.State())
}

func TestEngine_TimeoutAbandonsHook(t *testing.T) {
	never := make(chan struct{})
	defer close(never)

	subject := &fakeSubject{
		hook: func(_ context.Context, _ Action) error {
			<-never
			return nil
		},
	}
	timeout := 50 * time.Millisecond
	engine := NewEngine(subject, DefaultActions(timeout), StateStopped)

	start := time.Now()
	err := engine.Perform(context.Background(), ActionStart)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransitionTimeout)
	assert.True(t, errors.IsTransient(err))
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, 20*timeout)
	assert.Equal(t, StateFailed, engine.State())
}

func TestEngine_TimeoutWithoutRejectedStateKeepsInFlight(t *testing.T) {
	subject := &fakeSubject{
		hook: func(ctx context.Context, _ Action) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	table := ActionTable{
		Action("warm"): {StateStopped: {Target: State("warm"), InFlight: State("warming"), Timeout: 20 * time.Millisecond}},
	}
	engine := NewEngine(subject, table, StateStopped)

	err := engine.Perform(context.Background(), Action("warm"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransitionTimeout)
	assert.Equal(t, State("warming"), engine.State())

	changes, _ := subject.recorded()
	assert.Equal(t, []change{{StateStopped, State("warming")}}, changes)
}

func TestEngine_HookPanicIsRecovered(t *testing.T) {
	subject := &fakeSubject{
		hook: func(_ context.Context, _ Action) error { panic("kaboom") },
	}
	engine := NewEngine(subject, DefaultActions(time.Second), StateStopped)

	err := engine.Perform(context.Background(), ActionStart)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, StateFailed, engine.State())
}

func TestEngine_CallerContextOnlyBoundsWait(t *testing.T) {
	release := make(chan struct{})
	subject := &fakeSubject{
		hook: func(_ context.Context, _ Action) error {
			<-release
			return nil
		},
	}
	engine := NewEngine(subject, DefaultActions(time.Second), StateStopped)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := engine.Perform(ctx, ActionStart)
	assert.ErrorIs(t, err, context.Canceled)

	inflight := engine.InFlight()
	require.NotNil(t, inflight)
	close(release)
	require.NoError(t, inflight.Wait(context.Background()))
	assert.Equal(t, StateRunning, engine.State())
}

func TestEngine_SetTable(t *testing.T) {
	engine := NewEngine(&fakeSubject{}, DefaultActions(time.Second), StateStopped)

	assert.Error(t, engine.SetTable(ActionTable{}))
	require.NoError(t, engine.SetTable(DefaultActions(time.Minute)))
	assert.Equal(t, time.Minute, engine.Table()[ActionStart][StateStopped].Timeout)
}
