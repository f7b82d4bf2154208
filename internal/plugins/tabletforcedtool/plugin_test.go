package tabletforcedtool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
)

// TestF1AxisEventWithNoToolBitSynthesizesPenProxIn covers F1: a frame
// carrying only an ABS_X delta, no tool bit ever set on this device, gets
// BTN_TOOL_PEN=1 appended.
func TestF1AxisEventWithNoToolBitSynthesizesPenProxIn(t *testing.T) {
	sys := pipeline.NewSystem(logging.New("test"), 32)
	var lastPayload []evdev.Event

	Register(sys, logging.New("tablet-forced-tool"))
	sys.Register("observer", pipeline.Hooks{
		DeviceNew: func(p *pipeline.Plugin, d *device.Device) { p.OptIn(d.ID()) },
		EvdevFrame: func(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
			lastPayload = append([]evdev.Event(nil), f.Payload()...)
		},
	})

	d := device.New(1, "tablet", device.Identity{}, []evdev.Usage{evdev.UsageAbsX, evdev.UsageToolMouse}, nil)
	sys.AddDevice(d)

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageAbsX, Value: 5}}, 1000))

	require.Equal(t, []evdev.Event{
		{Usage: evdev.UsageAbsX, Value: 5},
		{Usage: evdev.UsageToolPen, Value: 1},
	}, lastPayload)
}

// TestToolBitToggleLeavesFrameUntouched covers the early-return path: a
// real tool bit toggling updates the bitmask but the frame is not
// rewritten, and a subsequent axis-only frame while a tool is on is left
// alone too.
func TestToolBitToggleLeavesFrameUntouched(t *testing.T) {
	sys := pipeline.NewSystem(logging.New("test"), 32)
	var lastPayload []evdev.Event

	Register(sys, logging.New("tablet-forced-tool"))
	sys.Register("observer", pipeline.Hooks{
		DeviceNew: func(p *pipeline.Plugin, d *device.Device) { p.OptIn(d.ID()) },
		EvdevFrame: func(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
			lastPayload = append([]evdev.Event(nil), f.Payload()...)
		},
	})

	d := device.New(1, "tablet", device.Identity{}, []evdev.Usage{evdev.UsageAbsX, evdev.UsageToolPen}, nil)
	sys.AddDevice(d)

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageToolPen, Value: 1}}, 1000))
	require.Equal(t, []evdev.Event{{Usage: evdev.UsageToolPen, Value: 1}}, lastPayload)

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageAbsX, Value: 7}}, 2000))
	require.Equal(t, []evdev.Event{{Usage: evdev.UsageAbsX, Value: 7}}, lastPayload)
}
