// Package tabletforcedtool implements the forced-tool synthesizer (§4.7):
// tablets that never set BTN_TOOL_PEN and only ever report axis data get a
// synthesized pen-in-proximity appended to every frame that carries axis
// data while no tool bit is on; the synthesized pen is not recorded as an
// on tool bit.
package tabletforcedtool

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
)

// toolState is the bitmask of currently-on tool usages, indexed by position
// in evdev.ToolUsages.
type toolState uint8

func (t toolState) any() bool { return t != 0 }

func bitFor(u evdev.Usage) (toolState, bool) {
	for i, tu := range evdev.ToolUsages {
		if tu == u {
			return 1 << uint(i), true
		}
	}
	return 0, false
}

type pluginImpl struct {
	log     hclog.Logger
	devices map[device.ID]*toolState
}

// Register wires the synthesizer into sys, opting in to every
// tablet-tool-capable device.
func Register(sys *pipeline.System, log hclog.Logger) *pipeline.Plugin {
	impl := &pluginImpl{log: log, devices: make(map[device.ID]*toolState)}
	return sys.Register("tablet-forced-tool", pipeline.Hooks{
		DeviceAdded:   impl.deviceAdded,
		DeviceRemoved: impl.deviceRemoved,
		EvdevFrame:    impl.evdevFrame,
	})
}

func (pl *pluginImpl) deviceAdded(p *pipeline.Plugin, d *device.Device) {
	hasTool := false
	for _, u := range evdev.ToolUsages {
		if d.HasCapability(u) {
			hasTool = true
			break
		}
	}
	if !hasTool {
		return
	}
	p.OptIn(d.ID())
	var st toolState
	pl.devices[d.ID()] = &st
}

func (pl *pluginImpl) deviceRemoved(p *pipeline.Plugin, d *device.Device) {
	delete(pl.devices, d.ID())
}

// evdevFrame ports forced_tool_plugin_device_handle_frame: a toggling tool
// bit updates the bitmask and the frame is left alone (nothing to do, it is
// already correct); otherwise, an axis change seen while the bitmask is
// empty gets a synthesized pen-prox-in appended.
func (pl *pluginImpl) evdevFrame(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
	st := pl.devices[d.ID()]
	if st == nil {
		return
	}

	var axisChange, toolToggled bool
	for _, e := range f.Payload() {
		if bit, ok := bitFor(e.Usage); ok {
			if e.Value == 1 {
				*st |= bit
			} else {
				*st &^= bit
			}
			toolToggled = true
			continue
		}
		if evdev.IsAxisUsage(e.Usage) {
			axisChange = true
		}
	}

	if toolToggled || !axisChange || st.any() {
		return
	}

	events := append(append([]evdev.Event(nil), f.Payload()...), evdev.Event{Usage: evdev.UsageToolPen, Value: 1})
	if err := f.Set(events, f.Time()); err != nil {
		pl.log.Debug("forced tool: could not append synthesized prox-in, frame full", "device", d.Name())
	}
}
