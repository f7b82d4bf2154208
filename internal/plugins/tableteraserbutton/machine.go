// Package tableteraserbutton implements the tablet eraser-button virtualizer
// (§4.6): tablets whose eraser end is a separate tool rather than a button
// get a synthesized button press/release in its place, so policy can bind
// the eraser end to an ordinary button action.
package tableteraserbutton

// State is one of the four eraser-button states (§4.6).
type State int

const (
	StateNeutral State = iota
	StatePenPendingEraser
	StateButtonHeldDown
	StateButtonReleased
)

func (s State) String() string {
	switch s {
	case StateNeutral:
		return "neutral"
	case StatePenPendingEraser:
		return "pen-pending-eraser"
	case StateButtonHeldDown:
		return "button-held-down"
	case StateButtonReleased:
		return "button-released"
	default:
		return "unknown"
	}
}

// Event is one of the five proximity/timeout events the machine reacts to.
type Event int

const (
	EventPenEnteringProx Event = iota
	EventPenLeavingProx
	EventEraserEnteringProx
	EventEraserLeavingProx
	EventTimeout
)

func (e Event) String() string {
	switch e {
	case EventPenEnteringProx:
		return "pen-entering-prox"
	case EventPenLeavingProx:
		return "pen-leaving-prox"
	case EventEraserEnteringProx:
		return "eraser-entering-prox"
	case EventEraserLeavingProx:
		return "eraser-leaving-prox"
	case EventTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// FilterFlag mirrors the original's tool_filter bitmask: which tool/button
// events an inserted frame skips from the source frame or adds synthetically.
type FilterFlag uint16

const (
	SkipPen FilterFlag = 1 << iota
	SkipEraser
	PenInProx
	PenOutOfProx
	EraserInProx
	EraserOutOfProx
	ButtonDown
	ButtonUp
	SkipBtnTouch
)

// FrameSource selects which frame an InsertFrame op rebuilds from: the
// frame currently being processed, or the last clean frame remembered
// before the eraser started reporting (used once the button is already
// held down and the "leaving prox" frame's tool data is unreliable).
type FrameSource int

const (
	SourceCurrent FrameSource = iota
	SourceLast
)

// InsertFrame is one libinput_plugin_prepend_evdev_frame call the
// transition table requests.
type InsertFrame struct {
	Filter    FilterFlag
	UseButton bool
	Source    FrameSource
}

// FilterResult reports what the driver should do with the frame that
// triggered this transition.
type FilterResult int

const (
	Process FilterResult = iota
	Discard
)

// TimerAction is a timer side effect the transition requests.
type TimerAction int

const (
	TimerNone TimerAction = iota
	TimerSet
	TimerCancel
)

// Transition runs one (state, event) through the eraser-button table
// (eraser_button_handle_state and its per-state helpers). bug reports an
// event that should never occur in this state; the C source logs it and
// falls through with no state change and Process.
func Transition(state State, event Event) (next State, inserts []InsertFrame, result FilterResult, timer TimerAction, bug bool) {
	noop := func() (State, []InsertFrame, FilterResult, TimerAction, bool) {
		return state, nil, Process, TimerNone, false
	}
	illegal := func() (State, []InsertFrame, FilterResult, TimerAction, bool) {
		return state, nil, Process, TimerNone, true
	}

	switch state {
	case StateNeutral:
		switch event {
		case EventPenEnteringProx:
			return noop()
		case EventPenLeavingProx:
			return StatePenPendingEraser, nil, Discard, TimerSet, false
		case EventEraserEnteringProx:
			return StateButtonHeldDown,
				[]InsertFrame{{Filter: PenInProx | SkipEraser | ButtonDown, UseButton: true, Source: SourceCurrent}},
				Discard, TimerNone, false
		case EventEraserLeavingProx:
			return illegal()
		case EventTimeout:
			return noop()
		}

	case StatePenPendingEraser:
		switch event {
		case EventPenEnteringProx:
			return StateNeutral, nil, Process, TimerCancel, false
		case EventPenLeavingProx:
			return illegal()
		case EventEraserEnteringProx:
			return StateButtonHeldDown,
				[]InsertFrame{{Filter: SkipEraser | SkipPen | ButtonDown, UseButton: true, Source: SourceCurrent}},
				Discard, TimerCancel, false
		case EventEraserLeavingProx:
			return illegal()
		case EventTimeout:
			return StateNeutral,
				[]InsertFrame{{Filter: SkipEraser | PenOutOfProx, Source: SourceCurrent}},
				Process, TimerNone, false
		}

	case StateButtonHeldDown:
		switch event {
		case EventPenEnteringProx, EventPenLeavingProx, EventEraserEnteringProx:
			return illegal()
		case EventEraserLeavingProx:
			return StateButtonReleased,
				[]InsertFrame{{Filter: SkipEraser | SkipPen | ButtonUp, UseButton: true, Source: SourceLast}},
				Discard, TimerSet, false
		case EventTimeout:
			return illegal()
		}

	case StateButtonReleased:
		switch event {
		case EventPenEnteringProx:
			return StateNeutral,
				[]InsertFrame{{Filter: SkipPen | SkipEraser, Source: SourceCurrent}},
				Discard, TimerCancel, false
		case EventPenLeavingProx:
			return illegal()
		case EventEraserEnteringProx:
			return noop()
		case EventEraserLeavingProx:
			return illegal()
		case EventTimeout:
			return StateNeutral,
				[]InsertFrame{
					{Filter: SkipPen | SkipEraser | ButtonUp, UseButton: true, Source: SourceCurrent},
					{Filter: PenOutOfProx, Source: SourceCurrent},
				},
				Process, TimerNone, false
		}
	}

	return illegal()
}
