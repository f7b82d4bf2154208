// Package tfd implements the three-finger drag state machine (§4.9): three
// fingers landing and staying briefly stationary synthesizes a left-button
// press, letting a clickpad user drag by moving three fingers instead of
// holding a physical button down; lifting to one or zero fingers opens a
// short drag-lock window during which reapplying three fingers resumes the
// same drag instead of releasing it.
package tfd

// State is one of the five three-finger-drag states (§4.9).
type State int

const (
	StateIdle State = iota
	StatePossibleDrag
	StateDrag
	StateAwaitResume
	StatePossibleResume
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePossibleDrag:
		return "possible-drag"
	case StateDrag:
		return "drag"
	case StateAwaitResume:
		return "await-resume"
	case StatePossibleResume:
		return "possible-resume"
	default:
		return "unknown"
	}
}

// Event is one of the seven events the machine reacts to (§4.9). Motion is
// pre-filtered by the caller: it is only raised once the relevant
// state-dependent distance threshold (1.3mm in PossibleDrag, 2mm cumulative
// in AwaitResume) has been exceeded, so the machine itself never compares
// coordinates.
type Event int

const (
	EventMotion Event = iota
	EventTouchCountIncrease
	EventTouchCountDecrease
	EventButton
	EventTap
	EventTimeout
	EventResumeTimeout
)

func (e Event) String() string {
	switch e {
	case EventMotion:
		return "motion"
	case EventTouchCountIncrease:
		return "touch-count-increase"
	case EventTouchCountDecrease:
		return "touch-count-decrease"
	case EventButton:
		return "button"
	case EventTap:
		return "tap"
	case EventTimeout:
		return "timeout"
	case EventResumeTimeout:
		return "resume-timeout"
	default:
		return "unknown"
	}
}

// Action is a bitmask of side effects a transition requests, matching §9's
// "(next_state, actions[])" pattern. Multiple bits may be set at once.
type Action uint16

const (
	// ActionSetPressTimer arms the initial 350ms press-delay timer.
	ActionSetPressTimer Action = 1 << iota
	// ActionSetDisambiguationTimer arms the 50ms await-more-fingers timer.
	ActionSetDisambiguationTimer
	// ActionCancelTimer cancels whichever of the above is running.
	ActionCancelTimer
	// ActionSetResumeTimer arms the 720ms drag-lock resume window.
	ActionSetResumeTimer
	// ActionCancelResumeTimer cancels the resume window timer.
	ActionCancelResumeTimer
	// ActionPinCentroid freezes the reference point motion is measured
	// against (entering AwaitResume, and again on each re-entry to
	// PossibleResume).
	ActionPinCentroid
	// ActionUnpinCentroid releases the pinned reference point.
	ActionUnpinCentroid
	// ActionEmitButtonPress synthesizes a BTN_LEFT down.
	ActionEmitButtonPress
	// ActionEmitButtonRelease synthesizes a BTN_LEFT up.
	ActionEmitButtonRelease
)

func (a Action) has(bit Action) bool { return a&bit != 0 }

// Transition runs one (state, event, nfingers) through the three-finger-drag
// table (§4.9). nfingers is the up-to-date active touch count, needed only
// by the touch-count events; bug reports an event that should never occur
// in this state (a library bug, logged and otherwise ignored by the
// caller). Only the behaviors documented in §4.9 and §8 are implemented;
// the commented-out break-out/pinning edge cases in the original are
// deliberately not carried over (§9 open question).
func Transition(state State, event Event, nfingers int) (next State, actions Action, bug bool) {
	noop := func() (State, Action, bool) { return state, 0, false }
	illegal := func() (State, Action, bool) { return state, 0, true }

	switch state {
	case StateIdle:
		switch event {
		case EventTouchCountIncrease, EventTouchCountDecrease:
			if nfingers == 3 {
				return StatePossibleDrag, ActionSetPressTimer, false
			}
			return noop()
		case EventMotion, EventButton, EventTap:
			return noop()
		case EventTimeout, EventResumeTimeout:
			return illegal()
		}

	case StatePossibleDrag:
		switch event {
		case EventTouchCountIncrease, EventTouchCountDecrease:
			if nfingers == 3 {
				return illegal()
			}
			return StateIdle, ActionCancelTimer, false
		case EventMotion:
			return StateDrag, ActionCancelTimer | ActionEmitButtonPress, false
		case EventTimeout:
			return StateDrag, ActionEmitButtonPress, false
		case EventButton, EventTap:
			return noop()
		case EventResumeTimeout:
			return illegal()
		}

	case StateDrag:
		switch event {
		case EventTouchCountIncrease, EventTouchCountDecrease:
			// Dropping to 0 or 1 fingers opens the resume window; dropping
			// to exactly 2 is a deliberate no-op in the original
			// (tp_tfd_drag_handle_event's nfingers_down switch only has
			// cases for 0 and 1, falling through to default for 2) so the
			// drag rides out a momentary 3->2 finger count.
			if nfingers <= 1 {
				return StateAwaitResume, ActionPinCentroid | ActionSetResumeTimer, false
			}
			return noop()
		case EventMotion, EventTap:
			return noop()
		case EventButton:
			return StateIdle, ActionUnpinCentroid | ActionCancelResumeTimer | ActionEmitButtonRelease, false
		case EventTimeout, EventResumeTimeout:
			return illegal()
		}

	case StateAwaitResume:
		switch event {
		case EventTouchCountIncrease:
			switch {
			case nfingers == 3:
				return StatePossibleResume, ActionPinCentroid | ActionSetDisambiguationTimer, false
			case nfingers > 3:
				return StateIdle, ActionUnpinCentroid | ActionCancelResumeTimer | ActionEmitButtonRelease, false
			default:
				return noop()
			}
		case EventTouchCountDecrease:
			return noop()
		case EventMotion:
			return StateIdle, ActionUnpinCentroid | ActionCancelResumeTimer | ActionEmitButtonRelease, false
		case EventResumeTimeout:
			return StateIdle, ActionUnpinCentroid | ActionEmitButtonRelease, false
		case EventButton, EventTap:
			return StateIdle, ActionUnpinCentroid | ActionCancelResumeTimer | ActionEmitButtonRelease, false
		case EventTimeout:
			return illegal()
		}

	case StatePossibleResume:
		switch event {
		case EventTimeout:
			return StateDrag, ActionUnpinCentroid | ActionCancelResumeTimer, false
		case EventTouchCountDecrease:
			if nfingers == 3 {
				return noop()
			}
			return StateAwaitResume, ActionCancelTimer, false
		case EventTouchCountIncrease:
			if nfingers > 3 {
				return StateIdle, ActionUnpinCentroid | ActionCancelResumeTimer | ActionCancelTimer | ActionEmitButtonRelease, false
			}
			return noop()
		case EventMotion:
			return noop()
		case EventResumeTimeout:
			return StateIdle, ActionUnpinCentroid | ActionCancelTimer | ActionEmitButtonRelease, false
		case EventButton, EventTap:
			return StateIdle, ActionUnpinCentroid | ActionCancelResumeTimer | ActionCancelTimer | ActionEmitButtonRelease, false
		}
	}

	return illegal()
}
