package tabletproximity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
)

type capture struct {
	usage evdev.Usage
	value int32
	time  uint64
}

func newHarness(t *testing.T, cfg Config) (*pipeline.System, *device.Device, *[][]capture) {
	t.Helper()
	sys := pipeline.NewSystem(logging.New("test"), 32)
	frames := &[][]capture{}

	Register(sys, logging.New("tablet-proximity-timer"), cfg)
	sys.Register("observer", pipeline.Hooks{
		DeviceNew: func(p *pipeline.Plugin, d *device.Device) { p.OptIn(d.ID()) },
		EvdevFrame: func(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
			var fr []capture
			for _, e := range f.Payload() {
				fr = append(fr, capture{usage: e.Usage, value: e.Value, time: f.Time()})
			}
			*frames = append(*frames, fr)
		},
	})

	d := device.New(1, "tablet", device.Identity{}, []evdev.Usage{evdev.UsageToolPen, evdev.UsageStylus}, nil)
	sys.AddDevice(d)
	return sys, d, frames
}

// TestP1SilenceAfterProxInForcesProxOutAtTimeout covers P1: pen-in at t=0,
// then silence; the next driver tick at the 50ms mark synthesizes a
// pen-prox-out stamped with that tick's time.
func TestP1SilenceAfterProxInForcesProxOutAtTimeout(t *testing.T) {
	sys, d, frames := newHarness(t, DefaultConfig())

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageToolPen, Value: 1}}, 0))
	// No real input for 50ms; the driver's poll wakes up on the timer
	// deadline alone, with no device fd readable.
	sys.FlushTimers(50_000)

	require.Equal(t, [][]capture{
		{{usage: evdev.UsageToolPen, value: 1, time: 0}},
		{{usage: evdev.UsageToolPen, value: 0, time: 50_000}},
	}, *frames)
}

// TestInvariant6HeldButtonSuppressesProxOut covers invariant #6: a held
// tablet button pushes the timer out instead of letting it force a
// spurious prox-out.
func TestInvariant6HeldButtonSuppressesProxOut(t *testing.T) {
	sys, d, frames := newHarness(t, DefaultConfig())

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageToolPen, Value: 1}}, 1_000))
	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageStylus, Value: 1}}, 20_000))
	// Tick right at the original 51ms expiry: the timer must push out
	// rather than fire, since the stylus button is still held.
	sys.FlushTimers(51_000)

	for _, fr := range *frames {
		for _, c := range fr {
			require.Falsef(t, c.usage == evdev.UsageToolPen && c.value == 0,
				"unexpected synthesized prox-out while button held: %+v", c)
		}
	}
}

// TestRealToolBitRetiresPlugin covers the trustworthy-tablet path: any
// tool bit other than the pen being announced makes the plugin step aside
// for this device, and a subsequent 60ms silence produces no synthesized
// prox-out at all.
func TestRealToolBitRetiresPlugin(t *testing.T) {
	sys, d, frames := newHarness(t, DefaultConfig())

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageToolPen, Value: 1}}, 0))
	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageToolRubber, Value: 1}}, 10_000))
	sys.FlushTimers(70_000)

	for _, fr := range *frames {
		for _, c := range fr {
			require.Falsef(t, c.usage == evdev.UsageToolPen && c.value == 0,
				"plugin should have retired for this device: %+v", c)
		}
	}
}
