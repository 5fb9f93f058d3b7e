package process

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is a market process lifecycle state.
type State string

const (
	StatePending             State = "pending"
	StateSentToHub           State = "sent_to_hub"
	StateAcknowledged        State = "acknowledged"
	StateRejected            State = "rejected"
	StateEffectuationPending State = "effectuation_pending"
	StateCompleted           State = "completed"
	StateOffboarding         State = "offboarding"
	StateFinalSettled        State = "final_settled"
	StateCancelled           State = "cancelled"
)

// Event drives a lifecycle transition.
type Event string

const (
	EventSend              Event = "send"
	EventAcknowledge       Event = "acknowledge"
	EventReject            Event = "reject"
	EventAwaitEffectuation Event = "await_effectuation"
	EventComplete          Event = "complete"
	EventBeginOffboarding  Event = "begin_offboarding"
	EventSettleFinal       Event = "settle_final"
	EventCancel            Event = "cancel"
)

// ErrInvalidTransition is returned for an event not allowed in the current state.
var ErrInvalidTransition = errors.New("process: invalid transition")

type transitionKey struct {
	from  State
	event Event
}

var transitions = map[transitionKey]State{
	{StatePending, EventSend}:                   StateSentToHub,
	{StatePending, EventCancel}:                 StateCancelled,
	{StateSentToHub, EventAcknowledge}:          StateAcknowledged,
	{StateSentToHub, EventReject}:               StateRejected,
	{StateAcknowledged, EventAwaitEffectuation}: StateEffectuationPending,
	{StateAcknowledged, EventComplete}:          StateCompleted,
	{StateAcknowledged, EventCancel}:            StateCancelled,
	{StateEffectuationPending, EventComplete}:   StateCompleted,
	{StateEffectuationPending, EventCancel}:     StateCancelled,
	{StateCompleted, EventBeginOffboarding}:     StateOffboarding,
	{StateOffboarding, EventSettleFinal}:        StateFinalSettled,
}

// Transition returns the state reached from `from` on event.
func Transition(from State, event Event) (State, error) {
	to, ok := transitions[transitionKey{from: from, event: event}]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
	}
	return to, nil
}

// TriggersSettlement reports whether a metering point in this state should be settled.
func TriggersSettlement(state State) bool {
	return state == StateCompleted || state == StateOffboarding
}

// IsTerminal reports whether no event leaves the state.
func IsTerminal(state State) bool {
	switch state {
	case StateRejected, StateFinalSettled, StateCancelled:
		return true
	default:
		return false
	}
}

// ParseEvent normalizes an event name.
func ParseEvent(value string) (Event, error) {
	event := Event(strings.ToLower(strings.TrimSpace(value)))
	switch event {
	case EventSend, EventAcknowledge, EventReject, EventAwaitEffectuation,
		EventComplete, EventBeginOffboarding, EventSettleFinal, EventCancel:
		return event, nil
	default:
		return "", fmt.Errorf("process: unknown event %q", value)
	}
}

// MarketProcess is a supplier switch, move-in or move-out for one metering point.
type MarketProcess struct {
	ID              string
	MeteringPointID string
	ProcessType     string
	State           State
	UpdatedAt       time.Time
}

// Apply moves the process to its next state.
func (p *MarketProcess) Apply(event Event, at time.Time) (State, error) {
	if p == nil {
		return "", errors.New("process: nil process")
	}
	to, err := Transition(p.State, event)
	if err != nil {
		return "", err
	}
	previous := p.State
	p.State = to
	p.UpdatedAt = at
	return previous, nil
}
