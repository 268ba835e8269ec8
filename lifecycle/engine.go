package lifecycle

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kronos-Integration/service-sub000/errors"
)

// Subject is the entity whose state an Engine governs
type Subject interface {
	Name() string

	// RunAction executes the implementation hook for action. The context
	// carries the entry timeout as its deadline.
	RunAction(ctx context.Context, action Action) error

	// RejectWrongState builds the error returned when action has no entry
	// for the current state. It must wrap errors.ErrIllegalTransition.
	RejectWrongState(action Action, current State) error

	// StateChanged is called once per actual state change
	StateChanged(old, current State)

	// TransitionRejected is called when a hook fails or times out
	TransitionRejected(reason error, target State)
}

// Observer is an optional Subject extension notified after every settled transition
type Observer interface {
	TransitionSettled(t *Transition)
}

// Transition is the shared handle of one in-flight action
type Transition struct {
	Action   Action
	From     State
	InFlight State
	Target   State
	Timeout  time.Duration

	started  time.Time
	finished time.Time
	done     chan struct{}
	err      error
	settled  atomic.Bool
}

// Done is closed when the transition settles
func (t *Transition) Done() <-chan struct{} {
	return t.done
}

// Err returns the outcome, nil while the transition is still running
func (t *Transition) Err() error {
	if !t.settled.Load() {
		return nil
	}
	return t.err
}

// Duration is the time between hook invocation and settlement
func (t *Transition) Duration() time.Duration {
	if !t.settled.Load() {
		return time.Since(t.started)
	}
	return t.finished.Sub(t.started)
}

// Wait blocks until the transition settles or ctx is done. Cancelling ctx
// only abandons the wait; the transition itself keeps running.
func (t *Transition) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Engine serializes the transitions of one Subject against an ActionTable
type Engine struct {
	mu      sync.Mutex
	subject Subject
	table   ActionTable
	state   State
	current *Transition
}

// NewEngine creates an engine for subject starting in the initial state
func NewEngine(subject Subject, table ActionTable, initial State) *Engine {
	return &Engine{
		subject: subject,
		table:   table,
		state:   initial,
	}
}

// State returns the current state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Table returns a copy of the action table
func (e *Engine) Table() ActionTable {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.Clone()
}

// SetTable replaces the action table. A transition already in flight keeps
// the entry it started with.
func (e *Engine) SetTable(table ActionTable) error {
	if err := table.Validate(); err != nil {
		return errors.Wrap(err, "Engine", "SetTable", "table validation")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.table = table.Clone()
	return nil
}

// InFlight returns the running transition or nil
func (e *Engine) InFlight() *Transition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Perform runs action and waits for its outcome
func (e *Engine) Perform(ctx context.Context, action Action) error {
	t, err := e.Begin(action)
	if err != nil {
		return err
	}
	return t.Wait(ctx)
}

// Begin starts action, or joins the transition already in flight.
// Only one transition runs at a time; a second caller observes the first's outcome.
func (e *Engine) Begin(action Action) (*Transition, error) {
	e.mu.Lock()

	entry, knownAction, legal := e.table.Lookup(action, e.state)
	if !knownAction {
		e.mu.Unlock()
		return nil, errors.WrapInvalid(errors.ErrUnknownAction, e.subject.Name(), "Begin",
			fmt.Sprintf("action %q lookup", action))
	}

	if e.current != nil {
		t := e.current
		e.mu.Unlock()
		return t, nil
	}

	if !legal {
		current := e.state
		e.mu.Unlock()
		if err := e.subject.RejectWrongState(action, current); err != nil {
			return nil, err
		}
		return nil, errors.WrapInvalid(errors.ErrIllegalTransition, e.subject.Name(), "Begin",
			fmt.Sprintf("%s from %s", action, current))
	}

	t := &Transition{
		Action:   action,
		From:     e.state,
		InFlight: entry.InFlight,
		Target:   entry.Target,
		Timeout:  entry.Timeout,
		started:  time.Now(),
		done:     make(chan struct{}),
	}
	e.state = entry.InFlight
	e.current = t
	e.mu.Unlock()

	if t.From != t.InFlight {
		e.subject.StateChanged(t.From, t.InFlight)
	}

	go e.run(t, entry)

	return t, nil
}

// run races the hook against the entry timeout and settles the transition
func (e *Engine) run(t *Transition, entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), entry.Timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("%s hook panicked: %v\n%s", t.Action, r, debug.Stack())
			}
		}()
		result <- e.subject.RunAction(ctx, t.Action)
	}()

	var err error
	select {
	case err = <-result:
		if err != nil && stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = e.timeoutError(t)
		} else if err != nil {
			err = errors.Wrap(err, e.subject.Name(), string(t.Action), "hook")
		}
	case <-ctx.Done():
		// the hook is abandoned; its late result goes to the buffered channel
		err = e.timeoutError(t)
	}

	e.settle(t, entry, err)
}

func (e *Engine) timeoutError(t *Transition) error {
	return errors.WrapTransient(errors.ErrTransitionTimeout, e.subject.Name(), string(t.Action),
		fmt.Sprintf("settle within %s", t.Timeout))
}

// settle publishes the outcome. The transition stays current until its
// notifications are delivered so a later transition cannot overtake them;
// callbacks therefore must not wait on this subject's transitions.
func (e *Engine) settle(t *Transition, entry Entry, err error) {
	e.mu.Lock()
	next := e.state
	if err == nil {
		next = entry.Target
	} else if entry.Rejected != "" {
		next = entry.Rejected
	}
	e.state = next
	t.err = err
	t.finished = time.Now()
	t.settled.Store(true)
	e.mu.Unlock()

	if next != t.InFlight {
		e.subject.StateChanged(t.InFlight, next)
	}
	if err != nil {
		e.subject.TransitionRejected(err, entry.Target)
	}

	if observer, ok := e.subject.(Observer); ok {
		observer.TransitionSettled(t)
	}

	e.mu.Lock()
	e.current = nil
	e.mu.Unlock()

	close(t.done)
}
