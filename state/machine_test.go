package state

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk-gateway/entities"
)

func readyMachine(t *testing.T) *Machine {
	t.Helper()
	m := NewMachine()
	require.NoError(t, m.ChangeState(entities.StateReady, "test"))
	return m
}

func TestCanAdmitTable(t *testing.T) {
	cases := []struct {
		state entities.DeviceState
		print bool
		call  bool
		reset bool
	}{
		{entities.StateReady, true, true, true},
		{entities.StateInitializing, true, true, true},
		{entities.StatePrinting, false, true, false},
		{entities.StateCalling, true, false, false},
		{entities.StateError, false, false, true},
		{entities.StateMaintenance, false, false, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.state), func(t *testing.T) {
			assert.Equal(t, tc.print, CanAdmit(tc.state, entities.CommandPrint))
			assert.Equal(t, tc.call, CanAdmit(tc.state, entities.CommandCall))
			assert.Equal(t, tc.reset, CanAdmit(tc.state, entities.CommandReset))
		})
	}
}

func TestAdmitAndRelease(t *testing.T) {
	m := readyMachine(t)

	require.NoError(t, m.Admit(entities.CommandPrint, "print A001"))
	assert.Equal(t, entities.StatePrinting, m.Current())
	assert.True(t, m.IsBusy(entities.CommandPrint))

	err := m.Admit(entities.CommandPrint, "print A002")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAdmitted))
	assert.Equal(t, entities.ErrDeviceNotReady, entities.KindOf(err))

	m.Release(entities.CommandPrint, false, "done")
	assert.Equal(t, entities.StateReady, m.Current())
	assert.False(t, m.IsBusy(entities.CommandPrint))
}

func TestReleaseWithFaultMovesToError(t *testing.T) {
	m := readyMachine(t)
	require.NoError(t, m.Admit(entities.CommandCall, "call"))

	m.Release(entities.CommandCall, true, "panic")
	assert.Equal(t, entities.StateError, m.Current())
	assert.False(t, m.CanAdmit(entities.CommandPrint))
	assert.True(t, m.CanAdmit(entities.CommandReset))
}

func TestPrintAndCallRunConcurrently(t *testing.T) {
	m := readyMachine(t)

	require.NoError(t, m.Admit(entities.CommandPrint, "print"))
	require.NoError(t, m.Admit(entities.CommandCall, "call"))
	assert.Equal(t, entities.StateCalling, m.Current())

	m.Release(entities.CommandCall, false, "call done")
	assert.Equal(t, entities.StatePrinting, m.Current())

	m.Release(entities.CommandPrint, false, "print done")
	assert.Equal(t, entities.StateReady, m.Current())
}

func TestConcurrentAdmissionsExactlyOneWins(t *testing.T) {
	m := readyMachine(t)

	const n = 64
	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		rejected atomic.Int32
		start    = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := m.Admit(entities.CommandPrint, "race"); err != nil {
				rejected.Add(1)
				return
			}
			admitted.Add(1)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, int32(n-1), rejected.Load())
	assert.Equal(t, entities.StatePrinting, m.Current())
}

func TestChangeStateIsIdempotentAndPublishes(t *testing.T) {
	m := NewMachine()
	ch, cancel := m.Subscribe(8)
	defer cancel()

	require.NoError(t, m.ChangeState(entities.StateReady, "boot"))
	require.NoError(t, m.ChangeState(entities.StateReady, "again"))

	// The change is already buffered when ChangeState returns.
	require.Len(t, ch, 1)
	change := <-ch
	assert.Equal(t, entities.StateInitializing, change.From)
	assert.Equal(t, entities.StateReady, change.To)
	assert.Equal(t, "boot", change.Reason)
}

func TestChangeStateRejectsBusyStates(t *testing.T) {
	m := readyMachine(t)
	err := m.ChangeState(entities.StatePrinting, "direct")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, entities.StateReady, m.Current())
}

func TestFullSubscriberDoesNotBlock(t *testing.T) {
	m := NewMachine()
	_, cancel := m.Subscribe(1)
	defer cancel()

	require.NoError(t, m.ChangeState(entities.StateReady, "1"))
	require.NoError(t, m.ChangeState(entities.StateMaintenance, "2"))
	require.NoError(t, m.ChangeState(entities.StateReady, "3"))
	assert.Equal(t, entities.StateReady, m.Current())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := NewMachine()
	ch, cancel := m.Subscribe(1)
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, m.ChangeState(entities.StateReady, "after"))
}

func TestApplyHealthNeverOverridesBusyOrMaintenance(t *testing.T) {
	m := readyMachine(t)
	require.NoError(t, m.Admit(entities.CommandPrint, "print"))

	assert.False(t, m.ApplyHealth(false, "Failed components: printer"))
	assert.Equal(t, entities.StatePrinting, m.Current())

	m.Release(entities.CommandPrint, false, "done")
	require.NoError(t, m.ChangeState(entities.StateMaintenance, "operator"))

	assert.False(t, m.ApplyHealth(true, "healthy"))
	assert.False(t, m.ApplyHealth(false, "unhealthy"))
	assert.Equal(t, entities.StateMaintenance, m.Current())
}

func TestApplyHealthDrivesErrorAndRecovery(t *testing.T) {
	m := NewMachine()

	assert.True(t, m.ApplyHealth(true, "healthy"))
	assert.Equal(t, entities.StateReady, m.Current())

	assert.True(t, m.ApplyHealth(false, "Failed components: printer"))
	assert.Equal(t, entities.StateError, m.Current())

	assert.False(t, m.ApplyHealth(false, "still failing"))
	assert.True(t, m.ApplyHealth(true, "recovered"))
	assert.Equal(t, entities.StateReady, m.Current())
}

func TestAdmissionFromInitializingPromotesToReady(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Admit(entities.CommandCall, "early call"))
	assert.Equal(t, entities.StateCalling, m.Current())

	m.Release(entities.CommandCall, false, "done")
	assert.Equal(t, entities.StateReady, m.Current())
}
