// Package wheellowres implements the low-resolution scroll wheel emulator:
// devices that only report REL_WHEEL/REL_HWHEEL get a synthesized
// REL_WHEEL_HI_RES/REL_HWHEEL_HI_RES companion event at the kernel's fixed
// 120-units-per-detent scale, so downstream consumers can treat every wheel
// as high-resolution.
package wheellowres

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
)

// hiResUnitsPerDetent is the kernel's fixed low-res to hi-res scroll ratio.
const hiResUnitsPerDetent = 120

type pluginImpl struct {
	log hclog.Logger
}

// Register wires the emulator into sys. It opts in only to devices that
// lack native hi-res wheel reporting.
func Register(sys *pipeline.System, log hclog.Logger) *pipeline.Plugin {
	impl := &pluginImpl{log: log}
	return sys.Register("mouse-wheel-lowres", pipeline.Hooks{
		DeviceNew:  impl.deviceNew,
		EvdevFrame: impl.evdevFrame,
	})
}

func (pl *pluginImpl) deviceNew(p *pipeline.Plugin, d *device.Device) {
	if d.HasCapability(evdev.UsageRelWheelHiRes) || d.HasCapability(evdev.UsageRelHWheelHiRes) {
		return
	}
	if d.HasCapability(evdev.UsageRelWheel) || d.HasCapability(evdev.UsageRelHWheel) {
		pl.log.Info("emulating high-resolution scroll wheel events", "device", d.Name())
	}

	p.OptIn(d.ID())

	// The device may have these disabled via a quirk; re-enable them and
	// also re-enable the hi-res axes so any stray hi-res event from the
	// device itself still reaches us to be filtered out.
	_ = d.EnableUsage(evdev.UsageRelWheel)
	_ = d.EnableUsage(evdev.UsageRelHWheel)
	_ = d.EnableUsage(evdev.UsageRelWheelHiRes)
	_ = d.EnableUsage(evdev.UsageRelHWheelHiRes)
}

// evdevFrame ports wheel_plugin_evdev_frame: drop any native hi-res event
// (duplicate of what we are about to synthesize), and append a synthesized
// hi-res companion event right after every low-res wheel event.
func (pl *pluginImpl) evdevFrame(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
	var kept []evdev.Event
	for _, e := range f.Payload() {
		switch e.Usage {
		case evdev.UsageRelWheelHiRes, evdev.UsageRelHWheelHiRes:
			continue
		case evdev.UsageRelWheel:
			kept = append(kept, e, evdev.Event{Usage: evdev.UsageRelWheelHiRes, Value: e.Value * hiResUnitsPerDetent})
		case evdev.UsageRelHWheel:
			kept = append(kept, e, evdev.Event{Usage: evdev.UsageRelHWheelHiRes, Value: e.Value * hiResUnitsPerDetent})
		default:
			kept = append(kept, e)
		}
	}
	_ = f.Set(kept, f.Time())
}
