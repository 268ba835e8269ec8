package lifecycle

import (
	"testing"
	"time"

	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultActions(t *testing.T) {
	table := DefaultActions(0)
	require.NoError(t, table.Validate())

	entry, known, legal := table.Lookup(ActionStart, StateStopped)
	assert.True(t, known)
	assert.True(t, legal)
	assert.Equal(t, Entry{Target: StateRunning, InFlight: StateStarting, Rejected: StateFailed, Timeout: DefaultTimeout}, entry)

	_, known, legal = table.Lookup(ActionStart, StateRunning)
	assert.True(t, known)
	assert.False(t, legal)

	_, known, _ = table.Lookup(Action("explode"), StateRunning)
	assert.False(t, known)

	entry, _, legal = table.Lookup(ActionStop, StateFailed)
	assert.True(t, legal, "a failed service must be retirable")
	assert.Equal(t, StateStopped, entry.Target)

	assert.Equal(t, []State{StateFailed, StateRestarting, StateRunning, StateStarting, StateStopped, StateStopping}, table.States())
	assert.Equal(t, []Action{ActionRestart, ActionStart, ActionStop}, table.Actions())
}

func TestActionTable_Validate(t *testing.T) {
	tests := []struct {
		name  string
		table ActionTable
	}{
		{"empty", ActionTable{}},
		{"missing target", ActionTable{ActionStart: {StateStopped: {InFlight: StateStarting, Timeout: time.Second}}}},
		{"missing in-flight", ActionTable{ActionStart: {StateStopped: {Target: StateRunning, Timeout: time.Second}}}},
		{"zero timeout", ActionTable{ActionStart: {StateStopped: {Target: StateRunning, InFlight: StateStarting}}}},
		{"failed without stop", ActionTable{
			ActionStart: {StateStopped: {Target: StateRunning, InFlight: StateStarting, Rejected: StateFailed, Timeout: time.Second}},
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.table.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestActionTable_WithTimeout(t *testing.T) {
	table := DefaultActions(time.Second)
	changed := table.WithTimeout(ActionStop, 3*time.Second)

	assert.Equal(t, 3*time.Second, changed[ActionStop][StateRunning].Timeout)
	assert.Equal(t, 3*time.Second, changed[ActionStop][StateFailed].Timeout)
	assert.Equal(t, time.Second, changed[ActionStart][StateStopped].Timeout)
	assert.Equal(t, time.Second, table[ActionStop][StateRunning].Timeout, "original table must be untouched")
}
