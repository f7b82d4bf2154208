package mtslot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
)

func newHarness(t *testing.T, caps []evdev.Usage) (*pipeline.System, *device.Device, *[][]evdev.Event) {
	sys := pipeline.NewSystem(logging.New("test"), 32)
	var frames [][]evdev.Event

	Register(sys, logging.New("mtdev"))
	sys.Register("observer", pipeline.Hooks{
		DeviceNew: func(p *pipeline.Plugin, d *device.Device) { p.OptIn(d.ID()) },
		EvdevFrame: func(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
			frames = append(frames, append([]evdev.Event(nil), f.Payload()...))
		},
	})

	d := device.New(1, "touchscreen", device.Identity{}, caps, nil)
	sys.AddDevice(d)
	return sys, d, &frames
}

func TestFirstPositionDataAssignsSlotZero(t *testing.T) {
	sys, d, frames := newHarness(t, []evdev.Usage{
		evdev.UsageAbsMtPositionX, evdev.UsageAbsMtPositionY, evdev.UsageBtnTouch,
	})

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{
		{Usage: evdev.UsageBtnTouch, Value: 1},
		{Usage: evdev.UsageAbsMtPositionX, Value: 100},
		{Usage: evdev.UsageAbsMtPositionY, Value: 200},
	}, 1000))

	require.Equal(t, [][]evdev.Event{{
		{Usage: evdev.UsageAbsMtSlot, Value: 0},
		{Usage: evdev.UsageAbsMtTrackingID, Value: 0},
		{Usage: evdev.UsageBtnTouch, Value: 1},
		{Usage: evdev.UsageAbsMtPositionX, Value: 100},
		{Usage: evdev.UsageAbsMtPositionY, Value: 200},
	}}, *frames)
}

func TestTouchReleaseEndsTrackingIDAndNextTouchGetsNewID(t *testing.T) {
	sys, d, frames := newHarness(t, []evdev.Usage{
		evdev.UsageAbsMtPositionX, evdev.UsageAbsMtPositionY, evdev.UsageBtnTouch,
	})

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{
		{Usage: evdev.UsageBtnTouch, Value: 1},
		{Usage: evdev.UsageAbsMtPositionX, Value: 100},
		{Usage: evdev.UsageAbsMtPositionY, Value: 200},
	}, 1000))

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{
		{Usage: evdev.UsageBtnTouch, Value: 0},
	}, 2000))

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{
		{Usage: evdev.UsageBtnTouch, Value: 1},
		{Usage: evdev.UsageAbsMtPositionX, Value: 50},
		{Usage: evdev.UsageAbsMtPositionY, Value: 60},
	}, 3000))

	require.Len(t, *frames, 3)
	require.Equal(t, []evdev.Event{
		{Usage: evdev.UsageBtnTouch, Value: 0},
		{Usage: evdev.UsageAbsMtTrackingID, Value: -1},
	}, (*frames)[1])
	require.Equal(t, []evdev.Event{
		{Usage: evdev.UsageAbsMtSlot, Value: 0},
		{Usage: evdev.UsageAbsMtTrackingID, Value: 1},
		{Usage: evdev.UsageBtnTouch, Value: 1},
		{Usage: evdev.UsageAbsMtPositionX, Value: 50},
		{Usage: evdev.UsageAbsMtPositionY, Value: 60},
	}, (*frames)[2])
}

func TestDeviceWithNativeSlotsIsLeftAlone(t *testing.T) {
	sys, d, frames := newHarness(t, []evdev.Usage{
		evdev.UsageAbsMtPositionX, evdev.UsageAbsMtPositionY, evdev.UsageAbsMtSlot,
	})

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{
		{Usage: evdev.UsageAbsMtPositionX, Value: 5},
	}, 1000))

	require.Equal(t, [][]evdev.Event{{{Usage: evdev.UsageAbsMtPositionX, Value: 5}}}, *frames)
}
