package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
)

func newTestDevice(id device.ID) *device.Device {
	return device.New(id, "test-device", device.Identity{}, []evdev.Usage{evdev.UsageBtnLeft}, nil)
}

func TestDispatchFrameIsAlwaysSynTerminated(t *testing.T) {
	s := NewSystem(logging.New("test"), 32)
	d := newTestDevice(1)

	var seen *evdev.Frame
	s.Register("observer", Hooks{
		DeviceNew: func(p *Plugin, dev *device.Device) { p.OptIn(dev.ID()) },
		EvdevFrame: func(p *Plugin, dev *device.Device, f *evdev.Frame, q *Queue) {
			seen = f
		},
	})
	s.AddDevice(d)

	require.NoError(t, s.Dispatch(1, []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, 100))
	require.NotNil(t, seen)
	require.True(t, seen.Events()[seen.Len()-1].IsSynReport())
}

// TestAppendDeliveredAfterCurrentFrameFinishesTraversal covers invariant #8:
// three plugins P1, P2, P3 in order; P2 appends a frame Q while handling F.
// P3 must see F before it sees Q.
func TestAppendDeliveredAfterCurrentFrameFinishesTraversal(t *testing.T) {
	s := NewSystem(logging.New("test"), 32)
	d := newTestDevice(1)

	var seenByP3 []string
	appended := evdev.NewFrame(8)
	require.NoError(t, appended.Set([]evdev.Event{{Usage: evdev.UsageBtnRight, Value: 1}}, 1))

	s.Register("p1", Hooks{DeviceNew: func(p *Plugin, dev *device.Device) { p.OptIn(dev.ID()) }})

	s.Register("p2", Hooks{
		DeviceNew: func(p *Plugin, dev *device.Device) { p.OptIn(dev.ID()) },
		EvdevFrame: func(p *Plugin, dev *device.Device, f *evdev.Frame, q *Queue) {
			if f != appended {
				q.Append(appended)
			}
		},
	})
	s.Register("p3", Hooks{
		DeviceNew: func(p *Plugin, dev *device.Device) { p.OptIn(dev.ID()) },
		EvdevFrame: func(p *Plugin, dev *device.Device, f *evdev.Frame, q *Queue) {
			if f == appended {
				seenByP3 = append(seenByP3, "Q")
			} else {
				seenByP3 = append(seenByP3, "F")
			}
		},
	})

	s.AddDevice(d)
	require.NoError(t, s.Dispatch(1, []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, 5))

	require.Equal(t, []string{"F", "Q"}, seenByP3)
}

// TestPrependDeliveredBeforeCurrentFrameContinues covers invariant #9: P2
// prepends Q while handling F. P3 must see Q before F. P1, already passed
// over before P2 ran, must never see Q.
func TestPrependDeliveredBeforeCurrentFrameContinues(t *testing.T) {
	s := NewSystem(logging.New("test"), 32)
	d := newTestDevice(1)

	prepended := evdev.NewFrame(8)
	require.NoError(t, prepended.Set([]evdev.Event{{Usage: evdev.UsageBtnRight, Value: 1}}, 1))

	var seenByP1, seenByP3 []string

	s.Register("p1", Hooks{
		DeviceNew: func(p *Plugin, dev *device.Device) { p.OptIn(dev.ID()) },
		EvdevFrame: func(p *Plugin, dev *device.Device, f *evdev.Frame, q *Queue) {
			if f == prepended {
				seenByP1 = append(seenByP1, "Q")
			} else {
				seenByP1 = append(seenByP1, "F")
			}
		},
	})
	s.Register("p2", Hooks{
		DeviceNew: func(p *Plugin, dev *device.Device) { p.OptIn(dev.ID()) },
		EvdevFrame: func(p *Plugin, dev *device.Device, f *evdev.Frame, q *Queue) {
			if f != prepended {
				q.Prepend(prepended)
			}
		},
	})
	s.Register("p3", Hooks{
		DeviceNew: func(p *Plugin, dev *device.Device) { p.OptIn(dev.ID()) },
		EvdevFrame: func(p *Plugin, dev *device.Device, f *evdev.Frame, q *Queue) {
			if f == prepended {
				seenByP3 = append(seenByP3, "Q")
			} else {
				seenByP3 = append(seenByP3, "F")
			}
		},
	})

	s.AddDevice(d)
	require.NoError(t, s.Dispatch(1, []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, 5))

	require.Equal(t, []string{"F"}, seenByP1, "P1 ran before P2 prepended Q and must never see it")
	require.Equal(t, []string{"Q", "F"}, seenByP3)
}

func TestInjectRestartsFromFirstPlugin(t *testing.T) {
	s := NewSystem(logging.New("test"), 32)
	d := newTestDevice(1)

	injected := evdev.NewFrame(8)
	require.NoError(t, injected.Set([]evdev.Event{{Usage: evdev.UsageBtnRight, Value: 1}}, 1))

	var seenByP1 []string
	injectedOnce := false

	s.Register("p1", Hooks{
		DeviceNew: func(p *Plugin, dev *device.Device) { p.OptIn(dev.ID()) },
		EvdevFrame: func(p *Plugin, dev *device.Device, f *evdev.Frame, q *Queue) {
			if f == injected {
				seenByP1 = append(seenByP1, "Q")
			} else {
				seenByP1 = append(seenByP1, "F")
			}
		},
	})
	s.Register("p2", Hooks{
		DeviceNew: func(p *Plugin, dev *device.Device) { p.OptIn(dev.ID()) },
		EvdevFrame: func(p *Plugin, dev *device.Device, f *evdev.Frame, q *Queue) {
			if f != injected && !injectedOnce {
				injectedOnce = true
				q.Inject(injected)
			}
		},
	})

	s.AddDevice(d)
	require.NoError(t, s.Dispatch(1, []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, 5))

	require.Equal(t, []string{"F", "Q"}, seenByP1, "injected frame restarts delivery at plugin 0")
}

func TestUnregisterRemovesPluginFromFutureDispatch(t *testing.T) {
	s := NewSystem(logging.New("test"), 32)
	d := newTestDevice(1)

	calls := 0
	var self *Plugin
	self = s.Register("p1", Hooks{
		DeviceNew: func(p *Plugin, dev *device.Device) { p.OptIn(dev.ID()) },
		EvdevFrame: func(p *Plugin, dev *device.Device, f *evdev.Frame, q *Queue) {
			calls++
			self.Unregister()
		},
	})

	s.AddDevice(d)
	require.NoError(t, s.Dispatch(1, []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, 1))
	require.NoError(t, s.Dispatch(1, []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, 2))

	require.Equal(t, 1, calls)
	require.Empty(t, s.Plugins())
}

func TestPanicInPluginHookUnregistersOnlyThatPlugin(t *testing.T) {
	s := NewSystem(logging.New("test"), 32)
	d := newTestDevice(1)

	s.Register("bad", Hooks{
		DeviceNew: func(p *Plugin, dev *device.Device) { p.OptIn(dev.ID()) },
		EvdevFrame: func(p *Plugin, dev *device.Device, f *evdev.Frame, q *Queue) {
			panic("boom")
		},
	})
	goodCalls := 0
	s.Register("good", Hooks{
		DeviceNew: func(p *Plugin, dev *device.Device) { p.OptIn(dev.ID()) },
		EvdevFrame: func(p *Plugin, dev *device.Device, f *evdev.Frame, q *Queue) {
			goodCalls++
		},
	})

	s.AddDevice(d)
	require.NoError(t, s.Dispatch(1, []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, 1))

	require.Equal(t, 1, goodCalls)
	require.Len(t, s.Plugins(), 1)
	require.Equal(t, "good", s.Plugins()[0].Name())
}

func TestTimerQueuedFrameDrainsBeforeNextInboundFrame(t *testing.T) {
	s := NewSystem(logging.New("test"), 32)
	d := newTestDevice(1)

	timerFrame := evdev.NewFrame(8)
	require.NoError(t, timerFrame.Set([]evdev.Event{{Usage: evdev.UsageBtnRight, Value: 1}}, 1))

	var seen []string
	s.Register("p1", Hooks{
		DeviceNew: func(p *Plugin, dev *device.Device) {
			p.OptIn(dev.ID())
			p.NewTimer(dev.ID(), "fire", func(now uint64, q *TimerQueue) {
				q.Append(timerFrame)
			}).Set(10)
		},
	})
	// Timer-queued frames start at the plugin after the timer's owner, so
	// the recorder is a second plugin.
	s.Register("p2", Hooks{
		DeviceNew: func(p *Plugin, dev *device.Device) { p.OptIn(dev.ID()) },
		EvdevFrame: func(p *Plugin, dev *device.Device, f *evdev.Frame, q *Queue) {
			if f == timerFrame {
				seen = append(seen, "timer")
			} else {
				seen = append(seen, "inbound")
			}
		},
	})

	s.AddDevice(d)
	require.NoError(t, s.Dispatch(1, []evdev.Event{{Usage: evdev.UsageBtnLeft, Value: 1}}, 10))

	require.Equal(t, []string{"timer", "inbound"}, seen)
}

func TestDeviceRemovedCancelsOwnedTimers(t *testing.T) {
	s := NewSystem(logging.New("test"), 32)
	d := newTestDevice(1)

	fired := false
	s.Register("p1", Hooks{
		DeviceNew: func(p *Plugin, dev *device.Device) {
			p.OptIn(dev.ID())
			p.NewTimer(dev.ID(), "fire", func(now uint64, q *TimerQueue) {
				fired = true
			}).Set(10)
		},
	})

	s.AddDevice(d)
	require.NoError(t, s.RemoveDevice(1))
	s.timers.Flush(100)

	require.False(t, fired, "timer owned by the removed device must not fire")
}
