package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

const (
	eventSubmit   = "submit"
	eventApprove  = "approve"
	eventComplete = "complete"
	eventReject   = "reject"
	eventCancel   = "cancel"
	eventUpdate   = "update"
	eventRefresh  = "refresh"
)

var lifecycleEvents = fsm.Events{
	{Name: eventSubmit, Src: []string{string(StateDraft)}, Dst: string(StatePending)},
	{Name: eventApprove, Src: []string{string(StatePending)}, Dst: string(StatePending)},
	{Name: eventComplete, Src: []string{string(StatePending)}, Dst: string(StateApproved)},
	{Name: eventReject, Src: []string{string(StatePending)}, Dst: string(StateRejected)},
	{Name: eventCancel, Src: []string{string(StatePending)}, Dst: string(StateCancelled)},
	{Name: eventUpdate, Src: []string{string(StatePending)}, Dst: string(StatePending)},
	{Name: eventRefresh, Src: []string{string(StateDraft), string(StatePending)}, Dst: string(StatePending)},
}

func newLifecycle(from State) *fsm.FSM {
	return fsm.NewFSM(string(from), lifecycleEvents, fsm.Callbacks{})
}

// allow checks that event may fire from state without firing it.
func allow(from State, event string) error {
	if newLifecycle(from).Can(event) {
		return nil
	}
	if from.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, from)
	}
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, from)
}

// fire moves from along event and returns the resulting state. Self
// transitions are not errors.
func fire(from State, event string) (State, error) {
	m := newLifecycle(from)
	err := m.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	var invalid fsm.InvalidEventError
	switch {
	case err == nil, errors.As(err, &noTransition):
		return State(m.Current()), nil
	case errors.As(err, &invalid):
		if from.Terminal() {
			return from, fmt.Errorf("%w: %s", ErrTerminal, from)
		}
		return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, from)
	default:
		return from, err
	}
}
