package debounce

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
	"github.com/zaolin/libinput-plugin-pipeline/internal/quirks"
)

type capture struct {
	usage evdev.Usage
	value int32
	time  uint64
}

func newHarness(t *testing.T) (*pipeline.System, *device.Device, *[]capture) {
	t.Helper()
	sys := pipeline.NewSystem(logging.New("test"), 32)
	var seen []capture

	Register(sys, logging.New("debounce"), quirks.Empty(), DefaultConfig())
	sys.Register("observer", pipeline.Hooks{
		DeviceNew: func(p *pipeline.Plugin, d *device.Device) { p.OptIn(d.ID()) },
		EvdevFrame: func(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
			for _, e := range f.Payload() {
				seen = append(seen, capture{usage: e.Usage, value: e.Value, time: f.Time()})
			}
		},
	})

	d := device.New(1, "test-mouse", device.Identity{}, []evdev.Usage{evdev.UsageBtnLeft}, nil)
	sys.AddDevice(d)
	return sys, d, &seen
}

// TestFastBounceIsFiltered covers D1: press@0, release@5ms, press@10ms,
// release@100ms must collapse to press@0, release@100ms.
func TestFastBounceIsFiltered(t *testing.T) {
	sys, d, seen := newHarness(t)

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, 0))
	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 0}}, 5_000))
	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, 10_000))
	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 0}}, 100_000))

	require.Equal(t, []capture{
		{usage: evdev.UsageBtnLeft, value: 1, time: 0},
		{usage: evdev.UsageBtnLeft, value: 0, time: 100_000},
	}, *seen)
}

// TestSlowClicksPassThroughUnchanged covers D2: inter-event gaps all above
// the 25ms bounce window, so every event is forwarded as-is.
func TestSlowClicksPassThroughUnchanged(t *testing.T) {
	sys, d, seen := newHarness(t)

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, 0))
	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 0}}, 40_000))
	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, 100_000))
	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 0}}, 140_000))

	require.Equal(t, []capture{
		{usage: evdev.UsageBtnLeft, value: 1, time: 0},
		{usage: evdev.UsageBtnLeft, value: 0, time: 40_000},
		{usage: evdev.UsageBtnLeft, value: 1, time: 100_000},
		{usage: evdev.UsageBtnLeft, value: 0, time: 140_000},
	}, *seen)
}

// TestDisabledStateForwardsEverythingImmediately covers the bouncing-keys
// quirk: the machine starts in Disabled and never filters.
func TestDisabledStateForwardsEverythingImmediately(t *testing.T) {
	sys := pipeline.NewSystem(logging.New("test"), 32)
	var seen []capture

	q := &quirksStub{tag: quirks.TagBouncingKeys}
	Register(sys, logging.New("debounce"), q, DefaultConfig())
	sys.Register("observer", pipeline.Hooks{
		DeviceNew: func(p *pipeline.Plugin, d *device.Device) { p.OptIn(d.ID()) },
		EvdevFrame: func(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
			for _, e := range f.Payload() {
				seen = append(seen, capture{usage: e.Usage, value: e.Value, time: f.Time()})
			}
		},
	})

	d := device.New(1, "bouncing-mouse", device.Identity{}, []evdev.Usage{evdev.UsageBtnLeft}, nil)
	sys.AddDevice(d)

	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, 0))
	require.NoError(t, sys.Dispatch(d.ID(), []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 0}}, 1_000))

	require.Equal(t, []capture{
		{usage: evdev.UsageBtnLeft, value: 1, time: 0},
		{usage: evdev.UsageBtnLeft, value: 0, time: 1_000},
	}, seen)
}

// TestSpuriousDetectingBounceRefreshesTimers covers the StateUpDetectingSpurious
// <-> StateDownDetectingSpurious bounce: each hop must re-arm both the bounce
// and bounce-short timers from the hop's own timestamp, not just the first
// one, or the spurious-vs-genuine timeout ends up measured from a stale start
// time.
func TestSpuriousDetectingBounceRefreshesTimers(t *testing.T) {
	cases := []struct {
		name  string
		state State
		event Event
		time  uint64
		next  State
	}{
		{"press-while-up-detecting", StateUpDetectingSpurious, EventPress, 10_000, StateDownDetectingSpurious},
		{"release-while-down-detecting", StateDownDetectingSpurious, EventRelease, 20_000, StateUpDetectingSpurious},
		{"press-while-up-detecting-again", StateUpDetectingSpurious, EventPress, 30_000, StateDownDetectingSpurious},
		{"release-while-down-detecting-again", StateDownDetectingSpurious, EventRelease, 40_000, StateUpDetectingSpurious},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			next, _, actions, bug := Transition(c.state, c.event, c.time, 0)
			require.False(t, bug)
			require.Equal(t, c.next, next)
			require.Equal(t, []Action{
				{Kind: ActionSetTimer, Time: c.time},
				{Kind: ActionSetTimerShort, Time: c.time},
			}, actions)
		})
	}
}

type quirksStub struct{ tag quirks.Tag }

func (q *quirksStub) HasTag(deviceName string, tag quirks.Tag) bool { return tag == q.tag }
