package pluginhost

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
)

func newHarness(t *testing.T) (*pipeline.System, *device.Device, *[][]evdev.Event) {
	sys := pipeline.NewSystem(logging.New("test"), 32)
	d := device.New(1, "script-test-device", device.Identity{BusType: 0x03}, []evdev.Usage{
		evdev.UsageBtnLeft, evdev.UsageAbsX, evdev.UsageAbsY,
	}, map[string]string{"ID_INPUT_MOUSE": "1"})
	return sys, d, new([][]evdev.Event)
}

// addObserver registers a frame-recording plugin after every script the
// test has already loaded, since TimerQueue-delivered frames (§4.2) only
// reach plugins ordered after the timer's owner.
func addObserver(sys *pipeline.System, frames *[][]evdev.Event) {
	sys.Register("observer", pipeline.Hooks{
		DeviceNew: func(p *pipeline.Plugin, d *device.Device) { p.OptIn(d.ID()) },
		EvdevFrame: func(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
			*frames = append(*frames, append([]evdev.Event(nil), f.Payload()...))
		},
	})
}

// TestScriptRegistersAndConnectsToFrames exercises the minimal lifecycle a
// real script uses: register, receive the new-evdev-device signal, connect
// to evdev-frame, and rewrite the frame by returning a replacement table.
func TestScriptRegistersAndConnectsToFrames(t *testing.T) {
	sys, d, frames := newHarness(t)

	script := `
		libinput.register({"1.0"})
		libinput.connect("new-evdev-device", function(dev)
			dev:connect("evdev-frame", function(dev, frame)
				for _, e in ipairs(frame) do
					if e.usage == evdev.BTN_LEFT then
						e.value = 1 - e.value
					end
				end
				return frame
			end)
		end)
	`
	_, err := Load(sys, logging.New("script"), "invert.lua", script)
	require.NoError(t, err)
	addObserver(sys, frames)

	sys.AddDevice(d)
	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 0}}, 1000))

	require.Len(t, *frames, 1)
	require.Equal(t, []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, (*frames)[0])
}

// TestScriptWithoutRegisterIsRejected covers §4.10: a script that returns
// without calling libinput.register() is unloaded rather than silently
// left in the pipeline.
func TestScriptWithoutRegisterIsRejected(t *testing.T) {
	sys, _, _ := newHarness(t)

	_, err := Load(sys, logging.New("script"), "broken.lua", `-- does nothing`)
	require.Error(t, err)
	require.Len(t, sys.Plugins(), 0, "the unregistered script must not remain in the pipeline")
}

// TestScriptTimerAppendsFrame exercises the per-device timer adaptation:
// a script arms a relative timer from within its evdev-frame handler and,
// when it fires, appends a synthesized frame.
func TestScriptTimerAppendsFrame(t *testing.T) {
	sys, d, frames := newHarness(t)

	script := `
		libinput.register({"1.0"})
		libinput.connect("new-evdev-device", function(dev)
			dev:connect("evdev-frame", function(dev, frame)
				libinput.timer_set_relative(500)
				return frame
			end)
		end)
		libinput.connect("timer-expired", function(dev, now)
			dev:append_frame({{usage = evdev.BTN_LEFT, value = 1}})
		end)
	`
	_, err := Load(sys, logging.New("script"), "armtimer.lua", script)
	require.NoError(t, err)
	addObserver(sys, frames)

	sys.AddDevice(d)
	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageAbsX, Value: 5}}, 1000))
	sys.FlushTimers(1500)

	require.Len(t, *frames, 2)
	require.Equal(t, []evdev.Event{{Usage: evdev.UsageAbsX, Value: 5}}, (*frames)[0])
	require.Equal(t, []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, (*frames)[1])
}
