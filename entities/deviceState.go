package entities

type DeviceState string

const (
	StateInitializing DeviceState = "Initializing"
	StateReady        DeviceState = "Ready"
	StatePrinting     DeviceState = "Printing"
	StateCalling      DeviceState = "Calling"
	StateError        DeviceState = "Error"
	StateMaintenance  DeviceState = "Maintenance"
)

// IsBusy reports whether the state represents an in-flight command.
func (s DeviceState) IsBusy() bool {
	return s == StatePrinting || s == StateCalling
}

// BusyState maps a command type to the state it runs in.
func BusyState(t CommandType) (DeviceState, bool) {
	switch t {
	case CommandPrint:
		return StatePrinting, true
	case CommandCall:
		return StateCalling, true
	}
	return "", false
}

// StateChange is broadcast to subscribers after every transition.
type StateChange struct {
	From   DeviceState `json:"from"`
	To     DeviceState `json:"to"`
	Reason string      `json:"reason"`
}
