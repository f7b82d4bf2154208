// Package debounce implements the button-debounce state machine (§4.4):
// one instance per physical button code currently in flight, suppressing
// spurious press/release pairs caused by mechanical contact bounce.
package debounce

// State is one of the ten debounce states (§4.4). Disabled is a terminal
// entry state for devices the quirk database marks bouncing-keys.
type State int

const (
	StateUp State = iota
	StateDown
	StateDownWaiting
	StateUpDelaying
	StateUpDelayingSpurious
	StateUpDetectingSpurious
	StateDownDetectingSpurious
	StateUpWaiting
	StateDownDelaying
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateUp:
		return "up"
	case StateDown:
		return "down"
	case StateDownWaiting:
		return "down-waiting"
	case StateUpDelaying:
		return "up-delaying"
	case StateUpDelayingSpurious:
		return "up-delaying-spurious"
	case StateUpDetectingSpurious:
		return "up-detecting-spurious"
	case StateDownDetectingSpurious:
		return "down-detecting-spurious"
	case StateUpWaiting:
		return "up-waiting"
	case StateDownDelaying:
		return "down-delaying"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Event is one of the five inputs the state machine reacts to (§4.4).
type Event int

const (
	EventPress Event = iota
	EventRelease
	EventTimeout
	EventTimeoutShort
	EventOtherButton
)

func (e Event) String() string {
	switch e {
	case EventPress:
		return "press"
	case EventRelease:
		return "release"
	case EventTimeout:
		return "timeout"
	case EventTimeoutShort:
		return "timeout-short"
	case EventOtherButton:
		return "other-button"
	default:
		return "unknown"
	}
}

// ActionKind enumerates the side effects a transition can request (§9:
// "separate state transition from side effects").
type ActionKind int

const (
	ActionNotifyPress ActionKind = iota
	ActionNotifyRelease
	ActionSetTimer
	ActionSetTimerShort
	ActionCancelTimer
	ActionCancelTimerShort
	ActionEnableSpurious
)

// Action is one side effect emitted by a transition, carrying the
// button-press/release timestamp to use for Notify actions.
type Action struct {
	Kind ActionKind
	Time uint64
}

// Transition runs one (state, event) through the debounce table (§4.4),
// returning the next state, the button timestamp to remember (unchanged
// unless the transition updates it), the side effects to perform, and
// whether the event was illegal in the current state (a "libinput bug":
// the event is discarded and state does not change).
//
// StateDown's Release arm depends on the device's spurious_enabled latch,
// which this table has no room for, so it is handled by the caller before
// reaching here (§4.4 "self-enables spurious-debounce mode"): callers must
// route StateDown+Release through TransitionDown instead.
func Transition(state State, event Event, time, buttonTime uint64) (next State, nextButtonTime uint64, actions []Action, bug bool) {
	illegal := func() (State, uint64, []Action, bool) {
		return state, buttonTime, nil, true
	}

	switch state {
	case StateUp:
		switch event {
		case EventPress:
			return StateDownWaiting, time, []Action{{Kind: ActionSetTimer, Time: time}, {Kind: ActionNotifyPress, Time: time}}, false
		case EventOtherButton:
			return StateUp, buttonTime, nil, false
		default:
			return illegal()
		}

	case StateDown:
		switch event {
		case EventPress:
			// A repeated press while already down: the kernel's release
			// event for the previous press was lost. Quietly ignored,
			// not a state-machine bug.
			return StateDown, buttonTime, nil, false
		case EventOtherButton:
			return StateDown, buttonTime, nil, false
		default:
			return illegal()
		}

	case StateDownWaiting:
		switch event {
		case EventRelease:
			return StateUpDelaying, time, nil, false
		case EventTimeout:
			return StateDown, buttonTime, nil, false
		case EventOtherButton:
			return StateDown, buttonTime, nil, false
		default:
			return illegal()
		}

	case StateUpDelaying:
		switch event {
		case EventPress:
			return StateDownWaiting, buttonTime, nil, false
		case EventTimeout, EventOtherButton:
			return StateUp, buttonTime, []Action{{Kind: ActionNotifyRelease, Time: buttonTime}}, false
		default:
			return illegal()
		}

	case StateUpDelayingSpurious:
		switch event {
		case EventPress:
			return StateDown, buttonTime, []Action{{Kind: ActionCancelTimer}, {Kind: ActionCancelTimerShort}}, false
		case EventTimeoutShort:
			return StateUpWaiting, buttonTime, []Action{{Kind: ActionNotifyRelease, Time: buttonTime}}, false
		case EventOtherButton:
			return StateUp, buttonTime, []Action{{Kind: ActionNotifyRelease, Time: buttonTime}}, false
		default:
			return illegal()
		}

	case StateUpDetectingSpurious:
		switch event {
		case EventPress:
			return StateDownDetectingSpurious, time, []Action{{Kind: ActionSetTimer, Time: time}, {Kind: ActionSetTimerShort, Time: time}}, false
		case EventTimeout:
			return StateUp, buttonTime, nil, false
		case EventTimeoutShort:
			return StateUpWaiting, buttonTime, nil, false
		case EventOtherButton:
			return StateUp, buttonTime, nil, false
		default:
			return illegal()
		}

	case StateDownDetectingSpurious:
		switch event {
		case EventRelease:
			return StateUpDetectingSpurious, buttonTime, []Action{{Kind: ActionSetTimer, Time: time}, {Kind: ActionSetTimerShort, Time: time}}, false
		case EventTimeoutShort:
			return StateDown, buttonTime, []Action{{Kind: ActionCancelTimer}, {Kind: ActionEnableSpurious}, {Kind: ActionNotifyPress, Time: buttonTime}}, false
		case EventTimeout, EventOtherButton:
			return StateDown, buttonTime, []Action{{Kind: ActionNotifyPress, Time: buttonTime}}, false
		default:
			return illegal()
		}

	case StateUpWaiting:
		switch event {
		case EventPress:
			return StateDownDelaying, time, nil, false
		case EventTimeout, EventOtherButton:
			return StateUp, buttonTime, nil, false
		default:
			return illegal()
		}

	case StateDownDelaying:
		switch event {
		case EventRelease:
			return StateUpWaiting, buttonTime, nil, false
		case EventTimeout, EventOtherButton:
			return StateDown, buttonTime, []Action{{Kind: ActionNotifyPress, Time: buttonTime}}, false
		default:
			return illegal()
		}

	case StateDisabled:
		switch event {
		case EventPress:
			return StateDisabled, time, []Action{{Kind: ActionNotifyPress, Time: time}}, false
		case EventRelease:
			return StateDisabled, time, []Action{{Kind: ActionNotifyRelease, Time: time}}, false
		case EventOtherButton:
			return StateDisabled, buttonTime, nil, false
		default:
			return illegal()
		}
	}

	return illegal()
}

// TransitionDown handles StateDown+Release, the one transition whose
// outcome depends on the device's spurious_enabled latch rather than
// purely on (state, event): once spurious-button debouncing has been
// enabled for this device, the release is held back until the short
// timer confirms it (§4.4).
func TransitionDown(time, buttonTime uint64, spuriousEnabled bool) (next State, nextButtonTime uint64, actions []Action) {
	if spuriousEnabled {
		return StateUpDelayingSpurious, time, []Action{{Kind: ActionSetTimer, Time: time}, {Kind: ActionSetTimerShort, Time: time}}
	}
	return StateUpDetectingSpurious, time, []Action{
		{Kind: ActionSetTimer, Time: time},
		{Kind: ActionSetTimerShort, Time: time},
		{Kind: ActionNotifyRelease, Time: time},
	}
}
