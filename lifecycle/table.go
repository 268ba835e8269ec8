package lifecycle

import (
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/Kronos-Integration/service-sub000/errors"
)

// DefaultTimeout bounds every transition of the default action table
const DefaultTimeout = 20 * time.Second

// Entry describes one legal transition of an action from a source state
type Entry struct {
	Target   State         `json:"target"`
	InFlight State         `json:"during"`
	Rejected State         `json:"rejected,omitempty"` // empty leaves the in-flight state on failure
	Timeout  time.Duration `json:"timeout"`
}

// ActionTable maps action name -> source state -> transition entry
type ActionTable map[Action]map[State]Entry

// DefaultActions returns the standard start/stop/restart table.
// A non-positive timeout selects DefaultTimeout.
func DefaultActions(timeout time.Duration) ActionTable {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return ActionTable{
		ActionStart: {
			StateStopped: {Target: StateRunning, InFlight: StateStarting, Rejected: StateFailed, Timeout: timeout},
		},
		ActionStop: {
			StateRunning: {Target: StateStopped, InFlight: StateStopping, Rejected: StateFailed, Timeout: timeout},
			StateFailed:  {Target: StateStopped, InFlight: StateStopping, Rejected: StateFailed, Timeout: timeout},
		},
		ActionRestart: {
			StateRunning: {Target: StateRunning, InFlight: StateRestarting, Rejected: StateFailed, Timeout: timeout},
		},
	}
}

// Lookup returns the entry for action from state.
// knownAction is false when the table has no such action at all.
func (t ActionTable) Lookup(action Action, from State) (entry Entry, knownAction, legal bool) {
	states, knownAction := t[action]
	if !knownAction {
		return Entry{}, false, false
	}
	entry, legal = states[from]
	return entry, true, legal
}

// Actions returns the action names in sorted order
func (t ActionTable) Actions() []Action {
	actions := make([]Action, 0, len(t))
	for action := range t {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// States returns every state named as a source, target, in-flight or rejected state
func (t ActionTable) States() []State {
	seen := make(map[State]struct{})
	for _, states := range t {
		for from, entry := range states {
			seen[from] = struct{}{}
			seen[entry.Target] = struct{}{}
			seen[entry.InFlight] = struct{}{}
			if entry.Rejected != "" {
				seen[entry.Rejected] = struct{}{}
			}
		}
	}

	result := make([]State, 0, len(seen))
	for state := range seen {
		result = append(result, state)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Clone returns a deep copy of the table
func (t ActionTable) Clone() ActionTable {
	clone := make(ActionTable, len(t))
	for action, states := range t {
		clone[action] = maps.Clone(states)
	}
	return clone
}

// WithTimeout returns a copy of the table where every entry of action uses timeout
func (t ActionTable) WithTimeout(action Action, timeout time.Duration) ActionTable {
	clone := t.Clone()
	for from, entry := range clone[action] {
		entry.Timeout = timeout
		clone[action][from] = entry
	}
	return clone
}

// Validate checks that every entry names its states, that every timeout is
// positive, and that a failed state can always be retired with stop.
func (t ActionTable) Validate() error {
	if len(t) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ActionTable", "Validate", "empty table")
	}

	for _, action := range t.Actions() {
		for from, entry := range t[action] {
			where := fmt.Sprintf("%s from %s", action, from)
			if from == "" {
				return errors.WrapInvalid(errors.ErrInvalidConfig, "ActionTable", "Validate", where+" source state")
			}
			if entry.Target == "" {
				return errors.WrapInvalid(errors.ErrInvalidConfig, "ActionTable", "Validate", where+" target state")
			}
			if entry.InFlight == "" {
				return errors.WrapInvalid(errors.ErrInvalidConfig, "ActionTable", "Validate", where+" in-flight state")
			}
			if entry.Timeout <= 0 {
				return errors.WrapInvalid(errors.ErrInvalidConfig, "ActionTable", "Validate", where+" timeout")
			}
		}
	}

	for _, state := range t.States() {
		if state != StateFailed {
			continue
		}
		if _, _, legal := t.Lookup(ActionStop, StateFailed); !legal {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "ActionTable", "Validate", "stop from failed")
		}
	}

	return nil
}
