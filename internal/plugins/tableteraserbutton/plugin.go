package tableteraserbutton

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
	"github.com/zaolin/libinput-plugin-pipeline/internal/timer"
)

// Config holds the eraser-release recovery delay (§4.6; config field
// Tablet.EraserButtonDelayMs).
type Config struct {
	DelayUs uint64
}

// DefaultConfig returns the original's 30ms delay.
func DefaultConfig() Config {
	return Config{DelayUs: 30_000}
}

type deviceState struct {
	mode         string
	button       evdev.Usage
	penInProx    bool
	eraserInProx bool
	state        State
	lastFrame    *evdev.Frame
	timer        *timer.Timer
	// pendingTime is the timestamp of the prox event that most recently
	// armed the recovery timer; a frame synthesized on EventTimeout
	// carries this time rather than the timer-flush time, so a delayed
	// synthesis reports when the real event happened. Frames synthesized
	// in response to a real frame carry that frame's time.
	pendingTime uint64
}

type pluginImpl struct {
	cfg     Config
	log     hclog.Logger
	devices map[device.ID]*deviceState
}

// Register wires the eraser-button virtualizer into sys. It opts in only to
// devices reporting a pen or eraser tool usage (device_added, not
// device_new: a device with neither tool bit is left alone entirely).
func Register(sys *pipeline.System, log hclog.Logger, cfg Config) *pipeline.Plugin {
	impl := &pluginImpl{cfg: cfg, log: log, devices: make(map[device.ID]*deviceState)}
	return sys.Register("tablet-eraser-button", pipeline.Hooks{
		DeviceAdded:    impl.deviceAdded,
		DeviceRemoved:  impl.deviceRemoved,
		EvdevFrame:     impl.evdevFrame,
		ToolConfigured: impl.toolConfigured,
	})
}

func (pl *pluginImpl) deviceAdded(p *pipeline.Plugin, d *device.Device) {
	if !d.HasCapability(evdev.UsageToolPen) && !d.HasCapability(evdev.UsageToolRubber) {
		return
	}
	p.OptIn(d.ID())
	ds := &deviceState{
		mode:      pipeline.ToolConfigModeDefault,
		lastFrame: evdev.NewFrame(64),
		state:     StateNeutral,
	}
	ds.timer = p.NewTimer(d.ID(), "eraser-button", func(now uint64, q *pipeline.TimerQueue) {
		pl.fire(d, ds, now, q)
	})
	pl.devices[d.ID()] = ds
}

func (pl *pluginImpl) deviceRemoved(p *pipeline.Plugin, d *device.Device) {
	delete(pl.devices, d.ID())
}

func (pl *pluginImpl) toolConfigured(p *pipeline.Plugin, d *device.Device, cfg pipeline.ToolConfig) {
	ds := pl.devices[d.ID()]
	if ds == nil {
		return
	}
	ds.mode = cfg.Mode
	ds.button = cfg.Button
}

// evdevFrame implements eraser_button_handle_frame: derive which of
// pen/eraser toggled this frame, run the corresponding event(s) through the
// state table (eraser-first when the pen is also entering prox, pen-first
// when the pen is leaving), then either keep the frame as the new "last
// clean frame" or drop it per the table's verdict.
func (pl *pluginImpl) evdevFrame(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
	ds := pl.devices[d.ID()]
	if ds == nil || ds.mode == pipeline.ToolConfigModeDefault {
		return
	}

	var penToggled, eraserToggled bool
	for _, e := range f.Payload() {
		switch e.Usage {
		case evdev.UsageToolPen:
			penToggled = true
			ds.penInProx = e.Value != 0
		case evdev.UsageToolRubber:
			eraserToggled = true
			ds.eraserInProx = e.Value != 0
		}
	}

	eraserEvent := EventEraserLeavingProx
	if ds.eraserInProx {
		eraserEvent = EventEraserEnteringProx
	}
	penEvent := EventPenLeavingProx
	if ds.penInProx {
		penEvent = EventPenEnteringProx
	}

	result := Process
	switch {
	case eraserToggled && penToggled:
		if ds.penInProx {
			pl.step(p, d, ds, f, eraserEvent, q)
			result = pl.step(p, d, ds, f, penEvent, q)
		} else {
			pl.step(p, d, ds, f, penEvent, q)
			result = pl.step(p, d, ds, f, eraserEvent, q)
		}
	case eraserToggled:
		result = pl.step(p, d, ds, f, eraserEvent, q)
	case penToggled:
		result = pl.step(p, d, ds, f, penEvent, q)
	}

	switch result {
	case Process:
		_ = ds.lastFrame.Set(append([]evdev.Event(nil), f.Payload()...), f.Time())
	case Discard:
		f.Reset()
	}
}

func (pl *pluginImpl) fire(d *device.Device, ds *deviceState, now uint64, q *pipeline.TimerQueue) {
	if ds.lastFrame == nil {
		logging.LibinputBug(pl.log, "eraser button: timer fired without a frame in state %s on device %s", ds.state, d.Name())
		return
	}
	pl.stepTimer(d, ds, now, q)
}

// step runs one event through Transition, performs its timer/logging side
// effects, synthesizes any requested prepend frames stamped with the
// triggering frame's time, and returns the verdict for the caller to apply
// to the triggering frame.
func (pl *pluginImpl) step(p *pipeline.Plugin, d *device.Device, ds *deviceState, f *evdev.Frame, ev Event, q *pipeline.Queue) FilterResult {
	prev := ds.state
	next, inserts, result, timerAction, bug := Transition(prev, ev)
	if bug {
		logging.LibinputBug(pl.log, "eraser button: invalid event %s in state %s on device %s", ev, prev, d.Name())
		return Process
	}
	ds.state = next

	switch timerAction {
	case TimerSet:
		ds.pendingTime = f.Time()
		ds.timer.Set(f.Time() + pl.cfg.DelayUs)
	case TimerCancel:
		ds.timer.Cancel()
	}

	for _, ins := range inserts {
		src := f
		if ins.Source == SourceLast {
			src = ds.lastFrame
		}
		q.Prepend(buildFrame(src, ins.Filter, ins.UseButton, ds.button, f.Time()))
	}

	if prev != next {
		pl.log.Debug("eraser button transition", "device", d.Name(), "event", ev, "from", prev, "to", next)
	}
	return result
}

// stepTimer is step's counterpart for the Timeout event, which has no
// triggering frame: any synthesized frame borrows its axis payload from the
// remembered last-clean frame and is stamped with pendingTime, the time of
// the prox event that armed the timer, not the flush time.
func (pl *pluginImpl) stepTimer(d *device.Device, ds *deviceState, now uint64, q *pipeline.TimerQueue) {
	prev := ds.state
	next, inserts, _, timerAction, bug := Transition(prev, EventTimeout)
	if bug {
		logging.LibinputBug(pl.log, "eraser button: invalid timeout in state %s on device %s", prev, d.Name())
		return
	}
	ds.state = next

	switch timerAction {
	case TimerSet:
		ds.pendingTime = now
		ds.timer.Set(now + pl.cfg.DelayUs)
	case TimerCancel:
		ds.timer.Cancel()
	}

	for _, ins := range inserts {
		q.Append(buildFrame(ds.lastFrame, ins.Filter, ins.UseButton, ds.button, ds.pendingTime))
	}

	if prev != next {
		pl.log.Debug("eraser button transition", "device", d.Name(), "event", "timeout", "from", prev, "to", next)
	}
}

// buildFrame implements eraser_button_insert_frame: copy every event from
// orig except the raw pen/eraser tool bits (always dropped), optionally
// drop an explicit button event matching the virtual button usage, then
// append whichever synthesized pen/eraser/button events the filter asks
// for. The caller supplies the frame's time explicitly rather than reusing
// orig's, since orig may be the remembered last-clean frame.
func buildFrame(orig *evdev.Frame, filter FilterFlag, useButton bool, button evdev.Usage, time uint64) *evdev.Frame {
	events := orig.Payload()
	out := evdev.NewFrame(len(events) + 3)

	var kept []evdev.Event
	for _, e := range events {
		switch e.Usage {
		case evdev.UsageToolPen, evdev.UsageToolRubber:
			continue
		case evdev.UsageBtnTouch:
			if filter&SkipBtnTouch != 0 {
				continue
			}
			kept = append(kept, e)
		default:
			if useButton && e.Usage == button {
				continue
			}
			kept = append(kept, e)
		}
	}

	if filter&(PenInProx|PenOutOfProx) != 0 {
		v := int32(0)
		if filter&PenInProx != 0 {
			v = 1
		}
		kept = append(kept, evdev.Event{Usage: evdev.UsageToolPen, Value: v})
	}
	if filter&(EraserInProx|EraserOutOfProx) != 0 {
		v := int32(0)
		if filter&EraserInProx != 0 {
			v = 1
		}
		kept = append(kept, evdev.Event{Usage: evdev.UsageToolRubber, Value: v})
	}
	if filter&(ButtonDown|ButtonUp) != 0 {
		v := int32(0)
		if filter&ButtonDown != 0 {
			v = 1
		}
		kept = append(kept, evdev.Event{Usage: button, Value: v})
	}

	_ = out.Set(kept, time)
	return out
}
