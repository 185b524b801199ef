// Package state owns the kiosk's operational mode and decides command admission.
package state

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
)

var (
	ErrNotAdmitted       = errors.New("command not admitted in current state")
	ErrInvalidTransition = errors.New("busy states can only be entered through admission")
)

// CanAdmit is the admission table. It looks only at the reported state; the
// machine additionally refuses a type whose own command is still running.
func CanAdmit(s entities.DeviceState, t entities.CommandType) bool {
	switch s {
	case entities.StateReady, entities.StateInitializing:
		return true
	case entities.StatePrinting:
		return t == entities.CommandCall
	case entities.StateCalling:
		return t == entities.CommandPrint
	case entities.StateError:
		return t == entities.CommandReset
	default:
		return false
	}
}

// Machine is the single owner of the device state. All admission decisions
// and transitions happen under one mutex, and subscribers are notified before
// the mutating call returns.
//
// Print and call run on independent peripherals, so the machine tracks a busy
// flag per command type next to the base mode (Initializing, Ready, Error,
// Maintenance). The reported state is the base mode, or, while the mode is
// Ready, the busy state of the most recently admitted command.
type Machine struct {
	mu       sync.Mutex
	mode     entities.DeviceState
	current  entities.DeviceState
	busy     map[entities.CommandType]bool
	lastBusy entities.CommandType
	subs     map[int]chan entities.StateChange
	nextSub  int
	log      *zap.SugaredLogger
}

func NewMachine() *Machine {
	return &Machine{
		mode:    entities.StateInitializing,
		current: entities.StateInitializing,
		busy:    make(map[entities.CommandType]bool),
		subs:    make(map[int]chan entities.StateChange),
		log:     logging.For("statemachine"),
	}
}

func (m *Machine) Current() entities.DeviceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsBusy reports whether a command of type t is currently executing.
func (m *Machine) IsBusy(t entities.CommandType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy[t]
}

func (m *Machine) CanAdmit(t entities.CommandType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admissibleLocked(t)
}

func (m *Machine) admissibleLocked(t entities.CommandType) bool {
	if !CanAdmit(m.current, t) {
		return false
	}
	return !m.busy[t]
}

// Admit atomically checks admission for t and, for PRINT and CALL, marks the
// type busy. The returned error wraps ErrNotAdmitted and carries DEVICE_NOT_READY.
func (m *Machine) Admit(t entities.CommandType, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.admissibleLocked(t) {
		return entities.NewCommandError(entities.ErrDeviceNotReady,
			fmt.Sprintf("%s rejected while %s", t, m.current), ErrNotAdmitted)
	}
	if _, ok := entities.BusyState(t); !ok {
		return nil
	}
	if m.mode == entities.StateInitializing {
		m.mode = entities.StateReady
	}
	m.busy[t] = true
	m.lastBusy = t
	m.transitionLocked(reason)
	return nil
}

// Release ends the busy period of t. A fault moves the base mode to Error,
// which only the health monitor or a reset can clear.
func (m *Machine) Release(t entities.CommandType, fault bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.busy[t] {
		m.log.Warnw("Release without matching admission", "type", t, "reason", reason)
		return
	}
	delete(m.busy, t)
	if fault {
		m.mode = entities.StateError
	}
	m.transitionLocked(reason)
}

// ChangeState sets the base mode. It is a no-op when the reported state does
// not change. Busy states cannot be set directly.
func (m *Machine) ChangeState(next entities.DeviceState, reason string) error {
	if next.IsBusy() {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, next)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mode = next
	m.transitionLocked(reason)
	return nil
}

// ApplyHealth moves the base mode to Ready or Error after a health check. It
// never overrides a running command or Maintenance, and reports whether the
// state changed.
func (m *Machine) ApplyHealth(healthy bool, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.anyBusyLocked() || m.mode == entities.StateMaintenance {
		return false
	}
	m.mode = entities.StateError
	if healthy {
		m.mode = entities.StateReady
	}
	return m.transitionLocked(reason)
}

// Subscribe registers a buffered listener. A listener that falls behind loses
// changes instead of blocking transitions. The returned func unsubscribes and
// closes the channel.
func (m *Machine) Subscribe(buffer int) (<-chan entities.StateChange, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan entities.StateChange, buffer)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

func (m *Machine) anyBusyLocked() bool {
	return len(m.busy) > 0
}

func (m *Machine) derivedLocked() entities.DeviceState {
	if m.mode != entities.StateReady || !m.anyBusyLocked() {
		return m.mode
	}
	t := m.lastBusy
	if !m.busy[t] {
		for other := range m.busy {
			t = other
		}
	}
	s, _ := entities.BusyState(t)
	return s
}

func (m *Machine) transitionLocked(reason string) bool {
	next := m.derivedLocked()
	if next == m.current {
		return false
	}
	change := entities.StateChange{From: m.current, To: next, Reason: reason}
	m.current = next
	m.log.Infow("State changed", "from", change.From, "to", change.To, "reason", reason)

	for id, ch := range m.subs {
		select {
		case ch <- change:
		default:
			m.log.Warnw("State subscriber is full, dropping change", "subscriber", id, "to", next)
		}
	}
	return true
}
