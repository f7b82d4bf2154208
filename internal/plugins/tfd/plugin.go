package tfd

import (
	"math"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
	"github.com/zaolin/libinput-plugin-pipeline/internal/timer"
)

// Config holds the machine's durations and the unit-to-millimeter scale
// used to evaluate its motion thresholds. The device model in this pipeline
// carries no absinfo resolution, unlike the original's
// evdev_device_unit_delta_to_mm; UnitsPerMM is this port's stand-in, a flat
// device-independent scale rather than a per-axis resolution lookup.
type Config struct {
	PressDelayUs         uint64
	AwaitMoreFingersUs   uint64
	ResumeWindowUs       uint64
	PossibleDragThreshMM float64
	UnpinThreshMM        float64
	UnitsPerMM           float64
}

// DefaultConfig returns the original's DEFAULT_DRAG3_* durations and
// thresholds (§4.9).
func DefaultConfig() Config {
	return Config{
		PressDelayUs:         350_000,
		AwaitMoreFingersUs:   50_000,
		ResumeWindowUs:       720_000,
		PossibleDragThreshMM: 1.3,
		UnpinThreshMM:        2.0,
		UnitsPerMM:           10,
	}
}

type touch struct {
	active bool
	x, y   int32
}

type deviceState struct {
	touches map[int32]*touch
	curSlot int32

	state       State
	fingerCount int

	timer       *timer.Timer
	resumeTimer *timer.Timer

	pinned       bool
	pinnedX      float64
	pinnedY      float64
	lastX        float64
	lastY        float64
	haveLastSeen bool
}

func (ds *deviceState) touch(slot int32) *touch {
	t := ds.touches[slot]
	if t == nil {
		t = &touch{}
		ds.touches[slot] = t
	}
	return t
}

func (ds *deviceState) centroid() (x, y float64, n int) {
	for _, t := range ds.touches {
		if !t.active {
			continue
		}
		n++
		x += float64(t.x)
		y += float64(t.y)
	}
	if n > 0 {
		x /= float64(n)
		y /= float64(n)
	}
	return x, y, n
}

func (ds *deviceState) activeCount() int {
	n := 0
	for _, t := range ds.touches {
		if t.active {
			n++
		}
	}
	return n
}

type pluginImpl struct {
	cfg     Config
	log     hclog.Logger
	devices map[device.ID]*deviceState
}

// Register wires the three-finger-drag machine into sys, opting in to
// every device reporting multitouch position data.
func Register(sys *pipeline.System, log hclog.Logger, cfg Config) *pipeline.Plugin {
	impl := &pluginImpl{cfg: cfg, log: log, devices: make(map[device.ID]*deviceState)}
	return sys.Register("three-finger-drag", pipeline.Hooks{
		DeviceAdded:   impl.deviceAdded,
		DeviceRemoved: impl.deviceRemoved,
		EvdevFrame:    impl.evdevFrame,
	})
}

func (pl *pluginImpl) deviceAdded(p *pipeline.Plugin, d *device.Device) {
	if !d.HasCapability(evdev.UsageAbsMtPositionX) || !d.HasCapability(evdev.UsageAbsMtPositionY) {
		return
	}
	p.OptIn(d.ID())
	ds := &deviceState{touches: make(map[int32]*touch), state: StateIdle}
	ds.timer = p.NewTimer(d.ID(), "tfd", func(now uint64, q *pipeline.TimerQueue) {
		pl.stepTimer(d, ds, EventTimeout, now, q)
	})
	ds.resumeTimer = p.NewTimer(d.ID(), "tfd resume", func(now uint64, q *pipeline.TimerQueue) {
		pl.stepTimer(d, ds, EventResumeTimeout, now, q)
	})
	pl.devices[d.ID()] = ds
}

func (pl *pluginImpl) deviceRemoved(p *pipeline.Plugin, d *device.Device) {
	delete(pl.devices, d.ID())
}

// evdevFrame tracks per-slot touch state from the type-B multitouch stream,
// derives the events tp_tfd_handle_state computes from touch count deltas,
// button presses, and centroid motion, and feeds them through Transition in
// the same order the original evaluates them: touch count, then button,
// then motion.
func (pl *pluginImpl) evdevFrame(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
	ds := pl.devices[d.ID()]
	if ds == nil {
		return
	}

	buttonPressed := false
	for _, e := range f.Payload() {
		switch e.Usage {
		case evdev.UsageAbsMtSlot:
			ds.curSlot = e.Value
		case evdev.UsageAbsMtTrackingID:
			t := ds.touch(ds.curSlot)
			t.active = e.Value >= 0
		case evdev.UsageAbsMtPositionX:
			ds.touch(ds.curSlot).x = e.Value
		case evdev.UsageAbsMtPositionY:
			ds.touch(ds.curSlot).y = e.Value
		case evdev.UsageBtnLeft:
			if e.Value == 1 {
				buttonPressed = true
			}
		}
	}

	n := ds.activeCount()
	if n > ds.fingerCount {
		pl.step(p, d, ds, f, EventTouchCountIncrease, n, q)
	} else if n < ds.fingerCount {
		pl.step(p, d, ds, f, EventTouchCountDecrease, n, q)
	}
	ds.fingerCount = n

	if buttonPressed {
		pl.step(p, d, ds, f, EventButton, n, q)
	}

	if ev, ok := pl.motionEvent(ds, n); ok {
		pl.step(p, d, ds, f, ev, n, q)
	}
}

// motionEvent computes whether this frame's centroid movement crosses the
// threshold relevant to the current state: 1.3mm of raw movement while
// PossibleDrag is deciding whether to commit, or 2mm of cumulative movement
// away from the pinned point while a drag is suspended (AwaitResume).
// Other states don't evaluate motion at all.
func (pl *pluginImpl) motionEvent(ds *deviceState, n int) (Event, bool) {
	x, y, active := ds.centroid()
	if active == 0 {
		return 0, false
	}

	switch ds.state {
	case StatePossibleDrag:
		defer func() { ds.lastX, ds.lastY, ds.haveLastSeen = x, y, true }()
		if !ds.haveLastSeen {
			return 0, false
		}
		return EventMotion, pl.mm(x-ds.lastX, y-ds.lastY) > pl.cfg.PossibleDragThreshMM
	case StateAwaitResume:
		if !ds.pinned {
			return 0, false
		}
		return EventMotion, pl.mm(x-ds.pinnedX, y-ds.pinnedY) > pl.cfg.UnpinThreshMM
	default:
		return 0, false
	}
}

func (pl *pluginImpl) mm(dx, dy float64) float64 {
	return math.Hypot(dx, dy) / pl.cfg.UnitsPerMM
}

func (pl *pluginImpl) step(p *pipeline.Plugin, d *device.Device, ds *deviceState, f *evdev.Frame, ev Event, n int, q *pipeline.Queue) {
	prev := ds.state
	next, actions, bug := Transition(prev, ev, n)
	if bug {
		logging.LibinputBug(pl.log, "tfd: invalid event %s with %d fingers in state %s on device %s", ev, n, prev, d.Name())
		return
	}
	ds.state = next
	pl.apply(d, ds, actions, f.Time(), q)

	if prev != next {
		pl.log.Debug("tfd transition", "device", d.Name(), "event", ev, "from", prev, "to", next)
	}
}

func (pl *pluginImpl) stepTimer(d *device.Device, ds *deviceState, ev Event, now uint64, q *pipeline.TimerQueue) {
	prev := ds.state
	next, actions, bug := Transition(prev, ev, ds.fingerCount)
	if bug {
		logging.LibinputBug(pl.log, "tfd: invalid %s with %d fingers in state %s on device %s", ev, ds.fingerCount, prev, d.Name())
		return
	}
	ds.state = next
	pl.applyTimer(d, ds, actions, now, q)

	if prev != next {
		pl.log.Debug("tfd transition", "device", d.Name(), "event", ev, "from", prev, "to", next)
	}
}

func (pl *pluginImpl) apply(d *device.Device, ds *deviceState, actions Action, now uint64, q *pipeline.Queue) {
	pl.applyTimers(ds, actions, now)
	if actions.has(ActionPinCentroid) {
		ds.pinnedX, ds.pinnedY, _ = ds.centroid()
		ds.pinned = true
	}
	if actions.has(ActionUnpinCentroid) {
		ds.pinned = false
	}
	if actions.has(ActionEmitButtonPress) {
		q.Append(buttonFrame(1, now))
	}
	if actions.has(ActionEmitButtonRelease) {
		q.Append(buttonFrame(0, now))
	}
}

func (pl *pluginImpl) applyTimer(d *device.Device, ds *deviceState, actions Action, now uint64, q *pipeline.TimerQueue) {
	pl.applyTimers(ds, actions, now)
	if actions.has(ActionPinCentroid) {
		ds.pinnedX, ds.pinnedY, _ = ds.centroid()
		ds.pinned = true
	}
	if actions.has(ActionUnpinCentroid) {
		ds.pinned = false
	}
	if actions.has(ActionEmitButtonPress) {
		q.Append(buttonFrame(1, now))
	}
	if actions.has(ActionEmitButtonRelease) {
		q.Append(buttonFrame(0, now))
	}
}

func (pl *pluginImpl) applyTimers(ds *deviceState, actions Action, now uint64) {
	if actions.has(ActionSetPressTimer) {
		ds.timer.Set(now + pl.cfg.PressDelayUs)
	}
	if actions.has(ActionSetDisambiguationTimer) {
		ds.timer.Set(now + pl.cfg.AwaitMoreFingersUs)
	}
	if actions.has(ActionCancelTimer) {
		ds.timer.Cancel()
	}
	if actions.has(ActionSetResumeTimer) {
		ds.resumeTimer.Set(now + pl.cfg.ResumeWindowUs)
	}
	if actions.has(ActionCancelResumeTimer) {
		ds.resumeTimer.Cancel()
	}
}

func buttonFrame(value int32, time uint64) *evdev.Frame {
	f := evdev.NewFrame(2)
	_ = f.Set([]evdev.Event{{Usage: evdev.UsageBtnLeft, Value: value}}, time)
	return f
}
