package tableteraserbutton

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
)

// TestTransitionNeutralEraserEnteringProxSynthesizesButtonDown covers the
// direct neutral->button-held-down path: an eraser entering prox with no
// preceding pen-out reports a button press immediately, no timer armed.
func TestTransitionNeutralEraserEnteringProxSynthesizesButtonDown(t *testing.T) {
	next, inserts, result, timerAction, bug := Transition(StateNeutral, EventEraserEnteringProx)

	require.False(t, bug)
	require.Equal(t, StateButtonHeldDown, next)
	require.Equal(t, Discard, result)
	require.Equal(t, TimerNone, timerAction)
	require.Equal(t, []InsertFrame{{Filter: PenInProx | SkipEraser | ButtonDown, UseButton: true, Source: SourceCurrent}}, inserts)
}

// TestIdempotentRoundTripReturnsToNeutralWithOneDownOneUp covers invariant
// #5: pen-in -> pen-out -> eraser-in -> eraser-out -> pen-in returns to
// Neutral and synthesizes exactly one button-down and one button-up.
func TestIdempotentRoundTripReturnsToNeutralWithOneDownOneUp(t *testing.T) {
	st := StateNeutral
	var downs, ups int

	next, inserts, _, _, bug := Transition(st, EventPenEnteringProx)
	require.False(t, bug)
	st = next
	require.Empty(t, inserts)

	next, inserts, _, _, bug = Transition(st, EventPenLeavingProx)
	require.False(t, bug)
	st = next
	require.Empty(t, inserts)

	next, inserts, _, _, bug = Transition(st, EventEraserEnteringProx)
	require.False(t, bug)
	st = next
	for _, ins := range inserts {
		if ins.Filter&ButtonDown != 0 {
			downs++
		}
	}

	next, inserts, _, _, bug = Transition(st, EventEraserLeavingProx)
	require.False(t, bug)
	st = next
	for _, ins := range inserts {
		if ins.Filter&ButtonUp != 0 {
			ups++
		}
	}

	next, inserts, _, _, bug = Transition(st, EventPenEnteringProx)
	require.False(t, bug)
	st = next
	// The returning pen-in is forwarded with its tool bits stripped and no
	// button event.
	require.Equal(t, []InsertFrame{{Filter: SkipPen | SkipEraser, Source: SourceCurrent}}, inserts)

	require.Equal(t, StateNeutral, st)
	require.Equal(t, 1, downs)
	require.Equal(t, 1, ups)
}

type capture struct {
	usage evdev.Usage
	value int32
	time  uint64
}

func capturesOf(f *evdev.Frame) []capture {
	var out []capture
	for _, e := range f.Payload() {
		out = append(out, capture{usage: e.Usage, value: e.Value, time: f.Time()})
	}
	return out
}

// TestPluginIntegrationDrivesScenarioT1 drives the live pipeline through
// scenario T1: pen-in@0, pen-out@100ms, eraser-in@110ms, eraser-out@300ms,
// pen-in@320ms, pen-out@500ms. The observer must see pen-in@0, a
// synthesized button press at 110ms, a synthesized button release at
// 300ms, and (once the trailing pen-pending-eraser timer expires with no
// further eraser activity) a synthesized pen-out at 500ms -- the
// timestamp of the event that armed the timer, not the flush time.
func TestPluginIntegrationDrivesScenarioT1(t *testing.T) {
	sys := pipeline.NewSystem(logging.New("test"), 32)
	var frames [][]capture

	Register(sys, logging.New("tablet-eraser-button"), DefaultConfig())
	sys.Register("observer", pipeline.Hooks{
		DeviceNew: func(p *pipeline.Plugin, d *device.Device) { p.OptIn(d.ID()) },
		EvdevFrame: func(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
			frames = append(frames, capturesOf(f))
		},
	})

	d := device.New(1, "tablet", device.Identity{}, []evdev.Usage{evdev.UsageToolPen, evdev.UsageToolRubber}, nil)
	sys.AddDevice(d)
	sys.ConfigureTool(d, pipeline.ToolConfig{
		Tool:   evdev.UsageToolRubber,
		Mode:   pipeline.ToolConfigModeButton,
		Button: evdev.UsageStylus2,
	})

	dispatch := func(usage evdev.Usage, value int32, when uint64) {
		require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: usage, Value: value}}, when))
	}

	dispatch(evdev.UsageToolPen, 1, 0)
	dispatch(evdev.UsageToolPen, 0, 100_000)
	dispatch(evdev.UsageToolRubber, 1, 110_000)
	dispatch(evdev.UsageToolRubber, 0, 300_000)
	dispatch(evdev.UsageToolPen, 1, 320_000)
	dispatch(evdev.UsageToolPen, 0, 500_000)

	// No further real input arrives; the driver's poll wakes up on the
	// pending-eraser timeout armed by the last pen-out, with no device fd
	// readable.
	sys.FlushTimers(530_000)

	require.Equal(t, [][]capture{
		{{usage: evdev.UsageToolPen, value: 1, time: 0}},
		nil,
		{{usage: evdev.UsageStylus2, value: 1, time: 110_000}},
		nil,
		{{usage: evdev.UsageStylus2, value: 0, time: 300_000}},
		nil,
		nil,
		nil,
		nil,
		{{usage: evdev.UsageToolPen, value: 0, time: 500_000}},
	}, frames)
}
