package wheellowres

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
)

func TestLowResWheelGetsHiResCompanionEvent(t *testing.T) {
	sys := pipeline.NewSystem(logging.New("test"), 32)
	var lastPayload []evdev.Event

	Register(sys, logging.New("mouse-wheel-lowres"))
	sys.Register("observer", pipeline.Hooks{
		DeviceNew: func(p *pipeline.Plugin, d *device.Device) { p.OptIn(d.ID()) },
		EvdevFrame: func(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
			lastPayload = append([]evdev.Event(nil), f.Payload()...)
		},
	})

	d := device.New(1, "mouse", device.Identity{}, []evdev.Usage{evdev.UsageRelWheel}, nil)
	sys.AddDevice(d)

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageRelWheel, Value: 1}}, 1000))

	require.Equal(t, []evdev.Event{
		{Usage: evdev.UsageRelWheel, Value: 1},
		{Usage: evdev.UsageRelWheelHiRes, Value: 120},
	}, lastPayload)
}

func TestNativeHiResDeviceIsLeftAlone(t *testing.T) {
	sys := pipeline.NewSystem(logging.New("test"), 32)
	var frames [][]evdev.Event

	Register(sys, logging.New("mouse-wheel-lowres"))
	sys.Register("observer", pipeline.Hooks{
		DeviceNew: func(p *pipeline.Plugin, d *device.Device) { p.OptIn(d.ID()) },
		EvdevFrame: func(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
			frames = append(frames, append([]evdev.Event(nil), f.Payload()...))
		},
	})

	d := device.New(1, "mouse", device.Identity{}, []evdev.Usage{evdev.UsageRelWheel, evdev.UsageRelWheelHiRes}, nil)
	sys.AddDevice(d)

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageRelWheelHiRes, Value: 60}}, 1000))

	require.Equal(t, [][]evdev.Event{{{Usage: evdev.UsageRelWheelHiRes, Value: 60}}}, frames)
}
