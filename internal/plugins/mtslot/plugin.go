// Package mtslot implements a deliberately minimal type-A to type-B
// multitouch translator: devices that report anonymous ABS_MT_POSITION_X/Y
// coordinates with no ABS_MT_SLOT of their own get a single synthesized
// slot, so everything downstream only ever has to deal with slotted
// protocol. Unlike the original's libmtdev-backed plugin, which reassembles
// an arbitrary number of concurrent anonymous contacts, this only tracks
// one: multi-finger type-A devices are rare enough, and out of scope for
// this pipeline's contract (§2), that a single-slot tracker is sufficient.
package mtslot

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
)

type deviceState struct {
	active bool
	nextID int32
}

type pluginImpl struct {
	log     hclog.Logger
	devices map[device.ID]*deviceState
}

// Register wires the translator into sys, opting in only to devices that
// need it (mtdevNeeded).
func Register(sys *pipeline.System, log hclog.Logger) *pipeline.Plugin {
	impl := &pluginImpl{log: log, devices: make(map[device.ID]*deviceState)}
	return sys.Register("mtdev", pipeline.Hooks{
		DeviceAdded:   impl.deviceAdded,
		DeviceRemoved: impl.deviceRemoved,
		EvdevFrame:    impl.evdevFrame,
	})
}

// mtdevNeeded ports mtdev_needed: a device reports anonymous multitouch
// coordinates but has no slot protocol of its own.
func mtdevNeeded(d *device.Device) bool {
	return d.HasCapability(evdev.UsageAbsMtPositionX) &&
		d.HasCapability(evdev.UsageAbsMtPositionY) &&
		!d.HasCapability(evdev.UsageAbsMtSlot)
}

func (pl *pluginImpl) deviceAdded(p *pipeline.Plugin, d *device.Device) {
	if !mtdevNeeded(d) {
		return
	}
	p.OptIn(d.ID())
	pl.devices[d.ID()] = &deviceState{}
}

func (pl *pluginImpl) deviceRemoved(p *pipeline.Plugin, d *device.Device) {
	delete(pl.devices, d.ID())
}

// evdevFrame assigns tracking id 0 to the single slot the first time
// position data arrives with no contact currently active, and ends it
// (ABS_MT_TRACKING_ID -1) the moment BTN_TOUCH reports released. Position
// and other axis events pass through untouched; only the slot/tracking-id
// bookkeeping is synthesized.
func (pl *pluginImpl) evdevFrame(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
	st := pl.devices[d.ID()]
	if st == nil {
		return
	}

	payload := f.Payload()
	sawPosition := false
	released := false
	for _, e := range payload {
		switch e.Usage {
		case evdev.UsageAbsMtPositionX, evdev.UsageAbsMtPositionY:
			sawPosition = true
		case evdev.UsageBtnTouch:
			released = e.Value == 0
		}
	}

	var out []evdev.Event
	if !st.active && sawPosition {
		st.active = true
		out = append(out,
			evdev.Event{Usage: evdev.UsageAbsMtSlot, Value: 0},
			evdev.Event{Usage: evdev.UsageAbsMtTrackingID, Value: st.nextID},
		)
		st.nextID++
	}
	out = append(out, payload...)
	if st.active && released {
		st.active = false
		out = append(out, evdev.Event{Usage: evdev.UsageAbsMtTrackingID, Value: -1})
	}

	if len(out) == len(payload) {
		return
	}
	if err := f.Set(out, f.Time()); err != nil {
		pl.log.Debug("mtdev: could not synthesize slot/tracking-id events, frame full", "device", d.Name())
	}
}
