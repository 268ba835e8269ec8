package lifecycle

// State is a lifecycle state name. The predefined states cover the standard
// service lifecycle; action tables may name additional custom states.
type State string

// Predefined lifecycle states
const (
	StateStopped    State = "stopped"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateRestarting State = "restarting"
	StateFailed     State = "failed"
)

// String returns the state name
func (s State) String() string {
	return string(s)
}

// Action names a lifecycle operation looked up in an ActionTable
type Action string

// Predefined actions
const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// String returns the action name
func (a Action) String() string {
	return string(a)
}
