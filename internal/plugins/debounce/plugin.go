package debounce

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
	"github.com/zaolin/libinput-plugin-pipeline/internal/quirks"
	"github.com/zaolin/libinput-plugin-pipeline/internal/timer"
)

// Config holds the two debounce window durations, expressed in the same
// microsecond units as evdev.Event/Frame timestamps (§4.4; config fields
// Debounce.BounceTimeoutMs/SpuriousTimeoutMs).
type Config struct {
	BounceTimeoutUs   uint64
	SpuriousTimeoutUs uint64
}

// DefaultConfig returns the spec's 25ms/12ms windows.
func DefaultConfig() Config {
	return Config{BounceTimeoutUs: 25_000, SpuriousTimeoutUs: 12_000}
}

type deviceState struct {
	state           State
	buttonCode      evdev.Usage
	hasButton       bool
	buttonTime      uint64
	spuriousEnabled bool
	timer           *timer.Timer
	timerShort      *timer.Timer
}

// pluginImpl holds the per-device machine table.
type pluginImpl struct {
	cfg     Config
	quirks  quirks.Provider
	log     hclog.Logger
	devices map[device.ID]*deviceState
}

// Register wires the debounce state machine into sys as a named plugin
// (§4.4). It opts in only to devices exposing a pointer button usage.
func Register(sys *pipeline.System, log hclog.Logger, q quirks.Provider, cfg Config) *pipeline.Plugin {
	impl := &pluginImpl{
		cfg:     cfg,
		quirks:  q,
		log:     log,
		devices: make(map[device.ID]*deviceState),
	}

	return sys.Register("debounce", pipeline.Hooks{
		DeviceNew:     impl.deviceNew,
		DeviceRemoved: impl.deviceRemoved,
		EvdevFrame:    impl.evdevFrame,
	})
}

func (pl *pluginImpl) deviceNew(p *pipeline.Plugin, d *device.Device) {
	hasButton := false
	for _, u := range d.Capabilities() {
		if evdev.IsButtonUsage(u) {
			hasButton = true
			break
		}
	}
	if !hasButton {
		return
	}
	p.OptIn(d.ID())

	ds := &deviceState{state: StateUp}
	if pl.quirks != nil && pl.quirks.HasTag(d.Name(), quirks.TagBouncingKeys) {
		ds.state = StateDisabled
	}
	ds.timer = p.NewTimer(d.ID(), "debounce", func(now uint64, q *pipeline.TimerQueue) {
		pl.fireTimer(d, ds, EventTimeout, now, q)
	})
	ds.timerShort = p.NewTimer(d.ID(), "debounce-short", func(now uint64, q *pipeline.TimerQueue) {
		pl.fireTimer(d, ds, EventTimeoutShort, now, q)
	})
	pl.devices[d.ID()] = ds
}

func (pl *pluginImpl) deviceRemoved(p *pipeline.Plugin, d *device.Device) {
	delete(pl.devices, d.ID())
}

// evdevFrame implements debounce_handle_state (evdev-debounce.c): scan the
// frame for button usages whose value changed, flush the state machine with
// OtherButton whenever more than one button changed or the changed button
// differs from the one currently tracked, then drive Press/Release through
// the table for each changed button in turn. Only a button whose transition
// actually produces an immediate Notify action survives into the outgoing
// frame, carrying the transition's chosen timestamp; a filtered event is
// dropped outright, and a delayed one will arrive later as a
// timer-synthesized frame via fireTimer (§4.4 "Emission contract").
func (pl *pluginImpl) evdevFrame(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
	ds := pl.devices[d.ID()]
	if ds == nil {
		return
	}

	type change struct {
		usage evdev.Usage
		down  bool
	}
	var changed []change
	var rest []evdev.Event
	for _, e := range f.Payload() {
		if !evdev.IsButtonUsage(e.Usage) {
			rest = append(rest, e)
			continue
		}
		// "more than 16 buttons in the same frame, quietly ignore the rest" (§9).
		if len(changed) == 16 {
			continue
		}
		changed = append(changed, change{usage: e.Usage, down: e.Value != 0})
	}
	if len(changed) == 0 {
		return
	}

	arrivalTime := f.Time()
	out := rest
	frameTime := arrivalTime

	flushed := false
	if len(changed) > 1 || !ds.hasButton || changed[0].usage != ds.buttonCode {
		pl.apply(d, ds, EventOtherButton, arrivalTime)
		flushed = true
	}

	for _, c := range changed {
		if flushed && ds.state != StateDisabled {
			if c.down {
				ds.state = StateUp
			} else {
				ds.state = StateDown
			}
			flushed = false
		}

		ds.buttonCode = c.usage
		ds.hasButton = true

		ev := EventRelease
		if c.down {
			ev = EventPress
		}
		actions := pl.apply(d, ds, ev, arrivalTime)
		for _, a := range actions {
			if a.Kind != ActionNotifyPress && a.Kind != ActionNotifyRelease {
				continue
			}
			value := int32(0)
			if a.Kind == ActionNotifyPress {
				value = 1
			}
			out = append(out, evdev.Event{Usage: ds.buttonCode, Value: value})
			frameTime = a.Time
		}

		if len(changed) > 1 {
			pl.apply(d, ds, EventOtherButton, arrivalTime)
			flushed = true
		}
	}

	if err := f.Set(out, frameTime); err != nil {
		logging.LibinputBug(pl.log, "debounce: rewriting frame for device %s: %v", d.Name(), err)
	}
}

// fireTimer is the timer callback entry point, equivalent to
// debounce_timeout / debounce_timeout_short: the resulting notification (if
// any) has no current frame to ride along in, so it is synthesized and
// appended (§4.3 "there is no current frame").
func (pl *pluginImpl) fireTimer(d *device.Device, ds *deviceState, ev Event, now uint64, q *pipeline.TimerQueue) {
	actions := pl.apply(d, ds, ev, now)
	for _, a := range actions {
		if a.Kind != ActionNotifyPress && a.Kind != ActionNotifyRelease {
			continue
		}
		value := int32(0)
		if a.Kind == ActionNotifyPress {
			value = 1
		}
		frame := evdev.NewFrame(2)
		if err := frame.Set([]evdev.Event{{Usage: ds.buttonCode, Value: value}}, a.Time); err != nil {
			logging.LibinputBug(pl.log, "debounce: synthesizing notification frame: %v", err)
			continue
		}
		q.Append(frame)
	}
}

// apply runs one event through the table, performs its timer/logging
// actions, and returns the emitted actions (Notify* only matter to the
// caller; timer/spurious actions are already applied here).
func (pl *pluginImpl) apply(d *device.Device, ds *deviceState, ev Event, now uint64) []Action {
	if ev == EventOtherButton {
		ds.timer.Cancel()
		ds.timerShort.Cancel()
	}

	var (
		next    State
		nextBT  uint64
		actions []Action
		bug     bool
	)
	if ds.state == StateDown && ev == EventRelease {
		next, nextBT, actions = TransitionDown(now, ds.buttonTime, ds.spuriousEnabled)
	} else {
		next, nextBT, actions, bug = Transition(ds.state, ev, now, ds.buttonTime)
	}

	if bug {
		logging.LibinputBug(pl.log, "debounce: illegal event %s in state %s on device %s", ev, ds.state, d.Name())
		return nil
	}

	prev := ds.state
	ds.state = next
	ds.buttonTime = nextBT

	for _, a := range actions {
		switch a.Kind {
		case ActionSetTimer:
			ds.timer.Set(a.Time + pl.cfg.BounceTimeoutUs)
		case ActionSetTimerShort:
			ds.timerShort.Set(a.Time + pl.cfg.SpuriousTimeoutUs)
		case ActionCancelTimer:
			ds.timer.Cancel()
		case ActionCancelTimerShort:
			ds.timerShort.Cancel()
		case ActionEnableSpurious:
			ds.spuriousEnabled = true
			pl.log.Info("enabling spurious button debouncing", "device", d.Name())
		}
	}

	pl.log.Debug("debounce transition", "device", d.Name(), "event", ev, "from", prev, "to", next)
	return actions
}
