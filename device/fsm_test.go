package device

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// trace runs a sequence of events through the transition table and returns
// the visited states and emitted actions.
func trace(t *testing.T, start State, events []Event) ([]State, []Action) {
	t.Helper()

	var states []State
	var actions []Action
	s := start
	for _, e := range events {
		var a Action
		s, a = Transition(s, e)
		states = append(states, s)
		actions = append(actions, a)
	}
	return states, actions
}

func TestTransitionJoinHappyPath(t *testing.T) {
	assert := require.New(t)

	states, actions := trace(t, StateIdle, []Event{
		EventJoinRequested,
		EventTxDone,
		EventPreambleDetected,
		EventFrameAccepted,
	})

	assert.Equal([]State{
		StateSendingJoinRequest,
		StateWaitingJoinRx1,
		StateReceivingJoinRx1,
		StateReady,
	}, states)
	assert.Equal([]Action{
		ActionTxJoinRequest,
		ActionScheduleRx1,
		ActionHoldWindow,
		ActionCompleteJoin,
	}, actions)
}

func TestTransitionJoinBothWindowsEmpty(t *testing.T) {
	assert := require.New(t)

	states, actions := trace(t, StateIdle, []Event{
		EventJoinRequested,
		EventTxDone,
		EventWindowExpired,
		EventWindowExpired,
	})

	assert.Equal(StateIdle, states[len(states)-1])
	assert.Equal(ActionFailJoin, actions[len(actions)-1])
}

// RX2 is never armed when RX1 delivered a valid frame.
func TestTransitionRX2SkippedAfterRX1(t *testing.T) {
	assert := require.New(t)

	states, actions := trace(t, StateReady, []Event{
		EventSendRequested,
		EventTxDone,
		EventPreambleDetected,
		EventFrameAccepted,
	})

	assert.Equal(StateReady, states[len(states)-1])
	assert.Equal(ActionCompleteExchange, actions[len(actions)-1])
	assert.NotContains(actions, ActionScheduleRx2)
}

func TestTransitionRejectedFrameFallsToRX2(t *testing.T) {
	assert := require.New(t)

	states, actions := trace(t, StateReady, []Event{
		EventSendRequested,
		EventTxDone,
		EventPreambleDetected,
		EventFrameRejected, // failed MIC closes the window silently
		EventWindowExpired,
	})

	assert.Equal([]State{
		StateSendingUplink,
		StateWaitingRx1,
		StateReceivingRx1,
		StateWaitingRx2,
		StateReady,
	}, states)
	assert.Equal(ActionScheduleRx2, actions[3])
	assert.Equal(ActionCompleteExchange, actions[4])
}

func TestTransitionClassCOverlay(t *testing.T) {
	assert := require.New(t)

	states, actions := trace(t, StateReady, []Event{
		EventPreambleDetected,
		EventFrameAccepted,
		EventPreambleDetected,
		EventFrameRejected,
	})

	assert.Equal([]State{
		StateReceivingRxC,
		StateReady,
		StateReceivingRxC,
		StateReady,
	}, states)
	assert.Equal(ActionDeliverDownlink, actions[1])
	assert.Equal(ActionNone, actions[3])
}

func TestTransitionRadioErrorRecovers(t *testing.T) {
	assert := require.New(t)

	// during a join the recovery target is Idle
	s, a := Transition(StateWaitingJoinRx1, EventRadioError)
	assert.Equal(StateIdle, s)
	assert.Equal(ActionRecover, a)

	// during a data exchange it is Ready
	s, a = Transition(StateWaitingRx2, EventRadioError)
	assert.Equal(StateReady, s)
	assert.Equal(ActionRecover, a)
}

// events that have no meaning in a state leave it unchanged
func TestTransitionIgnoresUnexpectedEvents(t *testing.T) {
	assert := require.New(t)

	s, a := Transition(StateIdle, EventTxDone)
	assert.Equal(StateIdle, s)
	assert.Equal(ActionNone, a)

	s, a = Transition(StateReady, EventTxDone)
	assert.Equal(StateReady, s)
	assert.Equal(ActionNone, a)
}
