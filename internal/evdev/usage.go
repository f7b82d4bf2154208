// Package evdev implements the data model that the plugin pipeline moves
// around: packed event usages, (usage, value) pairs, and SYN_REPORT-delimited
// frames. All code outside this package refers to Usage values, never to
// raw (type, code) pairs.
package evdev

import "fmt"

// Usage packs a kernel input event type and code into a single opaque value:
// upper 16 bits are the type class (EV_KEY, EV_REL, EV_ABS, EV_SW, EV_SYN,
// EV_MSC, ...), lower 16 bits are the code within that class. Usage values
// are bit-exact with the wire format libinput itself uses and must round-trip
// through the kernel unmodified.
type Usage uint32

// NewUsage packs a type/code pair into a Usage. Both type and code are
// truncated to 16 bits, matching the kernel's struct input_event layout.
func NewUsage(evType, code uint16) Usage {
	return Usage(uint32(evType)<<16 | uint32(code))
}

// Type returns the event type class (EV_KEY, EV_REL, ...).
func (u Usage) Type() uint16 {
	return uint16(u >> 16)
}

// Code returns the code within the type class (e.g. BTN_LEFT, ABS_X).
func (u Usage) Code() uint16 {
	return uint16(u & 0xffff)
}

func (u Usage) String() string {
	if name, ok := usageNames[u]; ok {
		return name
	}
	return fmt.Sprintf("usage(0x%04x, 0x%04x)", u.Type(), u.Code())
}

// Event types, numerically identical to the Linux kernel's EV_* constants.
const (
	EV_SYN uint16 = 0x00
	EV_KEY uint16 = 0x01
	EV_REL uint16 = 0x02
	EV_ABS uint16 = 0x03
	EV_MSC uint16 = 0x04
	EV_SW  uint16 = 0x05
)

// Sync codes, under EV_SYN.
const (
	SYN_REPORT  uint16 = 0
	SYN_CONFIG  uint16 = 1
	SYN_MT_REPORT uint16 = 2
	SYN_DROPPED uint16 = 3
)

// Button codes, under EV_KEY, that the pipeline inspects directly. This is
// not an exhaustive transcription of the kernel's input-event-codes.h (that
// lives in andrieee44-mylib/linux/input/eventCodes.go, 2300+ lines of table);
// only the usages the state machines in this module reference are named
// here, the same way libinput's own sources only #define what they use.
const (
	BTN_LEFT    uint16 = 0x110
	BTN_RIGHT   uint16 = 0x111
	BTN_MIDDLE  uint16 = 0x112
	BTN_SIDE    uint16 = 0x113
	BTN_EXTRA   uint16 = 0x114
	BTN_FORWARD uint16 = 0x115
	BTN_BACK    uint16 = 0x116
	BTN_TASK    uint16 = 0x117

	BTN_TOUCH uint16 = 0x14a

	BTN_TOOL_PEN      uint16 = 0x140
	BTN_TOOL_RUBBER   uint16 = 0x141
	BTN_TOOL_BRUSH    uint16 = 0x142
	BTN_TOOL_PENCIL   uint16 = 0x143
	BTN_TOOL_AIRBRUSH uint16 = 0x144
	BTN_TOOL_FINGER   uint16 = 0x145
	BTN_TOOL_MOUSE    uint16 = 0x146
	BTN_TOOL_LENS     uint16 = 0x147

	BTN_STYLUS  uint16 = 0x14b
	BTN_STYLUS2 uint16 = 0x14c
	BTN_STYLUS3 uint16 = 0x149
)

// Relative/absolute axis codes the tablet plugins inspect.
const (
	REL_WHEEL     uint16 = 0x08
	REL_HWHEEL    uint16 = 0x06
	REL_WHEEL_HI_RES  uint16 = 0x0b
	REL_HWHEEL_HI_RES uint16 = 0x0c

	ABS_X        uint16 = 0x00
	ABS_Y        uint16 = 0x01
	ABS_Z        uint16 = 0x02
	ABS_RZ       uint16 = 0x05
	ABS_PRESSURE uint16 = 0x18
	ABS_TILT_X   uint16 = 0x1a
	ABS_TILT_Y   uint16 = 0x1b
	ABS_WHEEL    uint16 = 0x08
	ABS_MT_SLOT        uint16 = 0x2f
	ABS_MT_POSITION_X  uint16 = 0x35
	ABS_MT_POSITION_Y  uint16 = 0x36
	ABS_MT_TRACKING_ID uint16 = 0x39
)

// Usage is the packed (type, code) pair for each of the above constants,
// precomputed so call sites never pack raw ints themselves.
var (
	UsageSynReport = NewUsage(EV_SYN, SYN_REPORT)

	UsageBtnLeft   = NewUsage(EV_KEY, BTN_LEFT)
	UsageBtnRight  = NewUsage(EV_KEY, BTN_RIGHT)
	UsageBtnMiddle = NewUsage(EV_KEY, BTN_MIDDLE)

	UsageBtnTouch = NewUsage(EV_KEY, BTN_TOUCH)

	UsageToolPen      = NewUsage(EV_KEY, BTN_TOOL_PEN)
	UsageToolRubber   = NewUsage(EV_KEY, BTN_TOOL_RUBBER)
	UsageToolBrush    = NewUsage(EV_KEY, BTN_TOOL_BRUSH)
	UsageToolPencil   = NewUsage(EV_KEY, BTN_TOOL_PENCIL)
	UsageToolAirbrush = NewUsage(EV_KEY, BTN_TOOL_AIRBRUSH)
	UsageToolFinger   = NewUsage(EV_KEY, BTN_TOOL_FINGER)
	UsageToolMouse    = NewUsage(EV_KEY, BTN_TOOL_MOUSE)
	UsageToolLens     = NewUsage(EV_KEY, BTN_TOOL_LENS)

	UsageStylus  = NewUsage(EV_KEY, BTN_STYLUS)
	UsageStylus2 = NewUsage(EV_KEY, BTN_STYLUS2)
	UsageStylus3 = NewUsage(EV_KEY, BTN_STYLUS3)

	UsageAbsX        = NewUsage(EV_ABS, ABS_X)
	UsageAbsY        = NewUsage(EV_ABS, ABS_Y)
	UsageAbsZ        = NewUsage(EV_ABS, ABS_Z)
	UsageAbsRZ       = NewUsage(EV_ABS, ABS_RZ)
	UsageAbsPressure = NewUsage(EV_ABS, ABS_PRESSURE)
	UsageAbsTiltX    = NewUsage(EV_ABS, ABS_TILT_X)
	UsageAbsTiltY    = NewUsage(EV_ABS, ABS_TILT_Y)
	UsageAbsWheel    = NewUsage(EV_ABS, ABS_WHEEL)
	UsageAbsMtSlot       = NewUsage(EV_ABS, ABS_MT_SLOT)
	UsageAbsMtPositionX  = NewUsage(EV_ABS, ABS_MT_POSITION_X)
	UsageAbsMtPositionY  = NewUsage(EV_ABS, ABS_MT_POSITION_Y)
	UsageAbsMtTrackingID = NewUsage(EV_ABS, ABS_MT_TRACKING_ID)

	UsageSynMtReport = NewUsage(EV_SYN, SYN_MT_REPORT)

	UsageRelWheel       = NewUsage(EV_REL, REL_WHEEL)
	UsageRelHWheel      = NewUsage(EV_REL, REL_HWHEEL)
	UsageRelWheelHiRes  = NewUsage(EV_REL, REL_WHEEL_HI_RES)
	UsageRelHWheelHiRes = NewUsage(EV_REL, REL_HWHEEL_HI_RES)
)

// usageNames backs Usage.String() and UsageNames() for the usages named
// above: debug output, the script host's evdev table and the real-device
// capability query read it; no state machine consults it.
var usageNames = map[Usage]string{
	UsageSynReport:   "SYN_REPORT",
	UsageBtnLeft:     "BTN_LEFT",
	UsageBtnRight:    "BTN_RIGHT",
	UsageBtnMiddle:   "BTN_MIDDLE",
	UsageBtnTouch:    "BTN_TOUCH",
	UsageToolPen:     "BTN_TOOL_PEN",
	UsageToolRubber:  "BTN_TOOL_RUBBER",
	UsageToolBrush:   "BTN_TOOL_BRUSH",
	UsageToolPencil:  "BTN_TOOL_PENCIL",
	UsageToolAirbrush: "BTN_TOOL_AIRBRUSH",
	UsageToolFinger:  "BTN_TOOL_FINGER",
	UsageToolMouse:   "BTN_TOOL_MOUSE",
	UsageToolLens:    "BTN_TOOL_LENS",
	UsageStylus:      "BTN_STYLUS",
	UsageStylus2:     "BTN_STYLUS2",
	UsageStylus3:     "BTN_STYLUS3",
	UsageAbsX:        "ABS_X",
	UsageAbsY:        "ABS_Y",
	UsageAbsZ:        "ABS_Z",
	UsageAbsRZ:       "ABS_RZ",
	UsageAbsPressure: "ABS_PRESSURE",
	UsageAbsTiltX:    "ABS_TILT_X",
	UsageAbsTiltY:    "ABS_TILT_Y",
	UsageAbsWheel:    "ABS_WHEEL",
	UsageAbsMtSlot:   "ABS_MT_SLOT",
	UsageAbsMtPositionX:  "ABS_MT_POSITION_X",
	UsageAbsMtPositionY:  "ABS_MT_POSITION_Y",
	UsageAbsMtTrackingID: "ABS_MT_TRACKING_ID",
	UsageRelWheel:       "REL_WHEEL",
	UsageRelHWheel:      "REL_HWHEEL",
	UsageRelWheelHiRes:  "REL_WHEEL_HI_RES",
	UsageRelHWheelHiRes: "REL_HWHEEL_HI_RES",
}

// UsageNames returns a copy of the Usage->name table backing String(), for
// callers (e.g. the scripted plugin host's `evdev` table) that need to
// enumerate every usage this package names rather than look up one at a
// time.
func UsageNames() map[Usage]string {
	out := make(map[Usage]string, len(usageNames))
	for u, name := range usageNames {
		out[u] = name
	}
	return out
}

// ToolUsages lists the tool-bit usages tracked by the tablet plugins, in the
// order the forced-tool synthesizer (§4.7) and the double-tool disambiguator
// (§4.5) expect: pen, eraser, brush, pencil, airbrush, mouse, lens.
var ToolUsages = []Usage{
	UsageToolPen,
	UsageToolRubber,
	UsageToolBrush,
	UsageToolPencil,
	UsageToolAirbrush,
	UsageToolMouse,
	UsageToolLens,
}

// IsAxisUsage reports whether u is one of the axis usages the forced-tool
// synthesizer treats as "tool activity" (§4.7): X, Y, rotation (ABS_Z, the
// original's EVDEV_ABS_Z), pressure, tilt X/Y, slider wheel, or the
// relative wheel.
func IsAxisUsage(u Usage) bool {
	switch u {
	case UsageAbsX, UsageAbsY, UsageAbsZ, UsageAbsPressure, UsageAbsTiltX, UsageAbsTiltY, UsageAbsWheel, UsageRelWheel:
		return true
	default:
		return false
	}
}

// IsButtonUsage reports whether u is one of the pointer button codes the
// debounce state machine tracks (§4.4): BTN_LEFT through BTN_TASK.
func IsButtonUsage(u Usage) bool {
	if u.Type() != EV_KEY {
		return false
	}
	code := u.Code()
	return code >= BTN_LEFT && code <= BTN_TASK
}
