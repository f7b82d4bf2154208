// Package tabletdoubletool implements the tablet double-tool disambiguator
// (§4.5): some tablets assert both the pen and eraser tool-in-proximity
// bits in the same frame due to firmware/kernel bugs. The plugin biases
// toward the eraser and, for well-behaved hardware, unregisters itself
// once it has observed a clean pen/eraser cycle.
package tabletdoubletool

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
)

type pluginImpl struct {
	log     hclog.Logger
	devices map[device.ID]*State
}

// Register wires the disambiguator into sys, opting in to tablet devices
// that report both a pen and an eraser tool bit.
func Register(sys *pipeline.System, log hclog.Logger) *pipeline.Plugin {
	impl := &pluginImpl{log: log, devices: make(map[device.ID]*State)}
	return sys.Register("tablet-double-tool", pipeline.Hooks{
		DeviceNew:     impl.deviceNew,
		DeviceRemoved: impl.deviceRemoved,
		EvdevFrame:    impl.evdevFrame,
	})
}

func (pl *pluginImpl) deviceNew(p *pipeline.Plugin, d *device.Device) {
	if !d.HasCapability(evdev.UsageToolPen) || !d.HasCapability(evdev.UsageToolRubber) {
		return
	}
	p.OptIn(d.ID())
	pl.devices[d.ID()] = &State{}
}

func (pl *pluginImpl) deviceRemoved(p *pipeline.Plugin, d *device.Device) {
	delete(pl.devices, d.ID())
}

func (pl *pluginImpl) evdevFrame(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
	st := pl.devices[d.ID()]
	if st == nil {
		return
	}

	var penToggled, eraserToggled bool
	penValue, eraserValue := st.PenValue, st.EraserValue
	for _, e := range f.Payload() {
		switch e.Usage {
		case evdev.UsageToolPen:
			penToggled = true
			penValue = e.Value
		case evdev.UsageToolRubber:
			eraserToggled = true
			eraserValue = e.Value
		}
	}

	next, actions := Step(*st, penToggled, eraserToggled, penValue, eraserValue)

	for _, a := range actions {
		if a == ActionUnregister {
			pl.log.Debug("device is fine, unregistering", "device", d.Name())
			p.OptOut(d.ID())
			delete(pl.devices, d.ID())
			return
		}
	}

	*st = next

	for _, a := range actions {
		switch a {
		case ActionPrependPenOut:
			q.Prepend(pl.filter(f, filterOpts{skipEraser: true, setPen: int32Ptr(0)}))
		case ActionPrependEraserIn:
			q.Prepend(pl.filter(f, filterOpts{skipPen: true, setEraser: int32Ptr(1)}))
		case ActionPrependEraserOut:
			q.Prepend(pl.filter(f, filterOpts{skipPen: true, setEraser: int32Ptr(0)}))
		case ActionPrependPenIn:
			q.Prepend(pl.filter(f, filterOpts{skipEraser: true, setPen: int32Ptr(1)}))
		case ActionDropFrame:
			f.Reset()
		case ActionFilterPenInPlace:
			out := pl.filter(f, filterOpts{skipPen: true})
			_ = f.Set(out.Payload(), f.Time())
		case ActionReassertPenInPlace:
			out := pl.filter(f, filterOpts{setPen: int32Ptr(1)})
			_ = f.Set(out.Payload(), f.Time())
		}
	}
}

type filterOpts struct {
	skipPen    bool
	skipEraser bool
	setPen     *int32
	setEraser  *int32
}

// filter rebuilds a frame from orig, dropping the pen and/or eraser tool
// events and optionally appending a synthesized pen/eraser toggle, which
// replaces any event orig carries for the same tool
// (double_tool_plugin_filter_frame).
func (pl *pluginImpl) filter(orig *evdev.Frame, opts filterOpts) *evdev.Frame {
	out := evdev.NewFrame(orig.Len() + 2)
	var kept []evdev.Event
	for _, e := range orig.Payload() {
		if (opts.skipPen || opts.setPen != nil) && e.Usage == evdev.UsageToolPen {
			continue
		}
		if (opts.skipEraser || opts.setEraser != nil) && e.Usage == evdev.UsageToolRubber {
			continue
		}
		kept = append(kept, e)
	}
	if opts.setPen != nil {
		kept = append(kept, evdev.Event{Usage: evdev.UsageToolPen, Value: *opts.setPen})
	}
	if opts.setEraser != nil {
		kept = append(kept, evdev.Event{Usage: evdev.UsageToolRubber, Value: *opts.setEraser})
	}
	_ = out.Set(kept, orig.Time())
	return out
}

func int32Ptr(v int32) *int32 { return &v }
