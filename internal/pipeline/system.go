package pipeline

import (
	"fmt"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/timer"
)

// System is the ordered plugin list, the per-device frame-delivery registry,
// and the driver loop that walks plugins for each frame (§4.2). Pipeline
// order is load order: the canonical ordering for frame delivery and for
// the append/prepend semantics.
type System struct {
	log                hclog.Logger
	plugins            []*Plugin
	devices            map[device.ID]*device.Device
	timers             *timer.Service
	frameCapacity      int
	pendingTimerFrames []queuedFrame
}

// NewSystem creates an empty pipeline. frameCapacity bounds every frame
// created by Dispatch (§4.1 "new(max_size)").
func NewSystem(log hclog.Logger, frameCapacity int) *System {
	if frameCapacity < 1 {
		frameCapacity = 32
	}
	return &System{
		log:           log,
		devices:       make(map[device.ID]*device.Device),
		timers:        timer.NewService(),
		frameCapacity: frameCapacity,
	}
}

// Register adds a new plugin at the end of the pipeline (load order is
// delivery order) and fires its Run hook.
func (s *System) Register(name string, hooks Hooks) *Plugin {
	p := &Plugin{sys: s, name: name, hooks: hooks, refcount: 1}
	s.plugins = append(s.plugins, p)
	s.safeCall(p, "run", func() {
		if p.hooks.Run != nil {
			p.hooks.Run(p)
		}
	})
	return p
}

// Plugins returns the current pipeline in delivery order. Unregistered
// plugins are never included.
func (s *System) Plugins() []*Plugin {
	out := make([]*Plugin, len(s.plugins))
	copy(out, s.plugins)
	return out
}

// Devices returns the currently tracked devices, for cmd/list-devices.
func (s *System) Devices() []*device.Device {
	out := make([]*device.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out
}

// unregisterPlugin removes p from the pipeline, cancels its timers, and
// fires Destroy. Idempotent (§4.2 "Failure semantics").
func (s *System) unregisterPlugin(p *Plugin) {
	if p.removed {
		return
	}
	p.removed = true
	for id := range p.optedIn {
		s.timers.CancelOwner(TimerOwner{Plugin: p, Device: id})
	}
	s.safeCall(p, "destroy", func() {
		if p.hooks.Destroy != nil {
			p.hooks.Destroy(p)
		}
	})

	kept := s.plugins[:0]
	for _, q := range s.plugins {
		if q != p {
			kept = append(kept, q)
		}
	}
	s.plugins = kept
}

// safeCall invokes fn, treating a panic as a plugin bug: the plugin is
// unregistered, its timers cancelled, its per-device records destroyed by
// virtue of never being called again (§7 "Plugin bug", §4.2 "Failure
// semantics").
func (s *System) safeCall(p *Plugin, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.PluginBug(s.log, "plugin %q panicked in %s: %v", p.name, hook, r)
			// unregisterPlugin is safe to call re-entrantly from here:
			// recover happens after the panic has already unwound fn,
			// so we are not inside the plugin's own stack frame anymore.
			s.unregisterPlugin(p)
		}
	}()
	fn()
}

// AddDevice announces a newly discovered device to every registered plugin
// via DeviceNew, then immediately accepts it (DeviceAdded). Device
// acceptance/rejection is an external-layer decision (§1 "out of scope:
// raw device discovery"); this module's Source either calls AddDevice or
// IgnoreDevice, never both, for a given device (§3 lifecycle monotonicity).
func (s *System) AddDevice(d *device.Device) {
	s.devices[d.ID()] = d
	for _, p := range s.snapshotPlugins() {
		s.safeCall(p, "device_new", func() {
			if p.hooks.DeviceNew != nil {
				p.hooks.DeviceNew(p, d)
			}
		})
	}
	d.MarkAdded()
	for _, p := range s.snapshotPlugins() {
		s.safeCall(p, "device_added", func() {
			if p.hooks.DeviceAdded != nil {
				p.hooks.DeviceAdded(p, d)
			}
		})
	}
}

// IgnoreDevice announces a device that the external layer decided not to
// accept into the pipeline (§3: device_new -> device_ignored).
func (s *System) IgnoreDevice(d *device.Device) {
	s.devices[d.ID()] = d
	for _, p := range s.snapshotPlugins() {
		s.safeCall(p, "device_new", func() {
			if p.hooks.DeviceNew != nil {
				p.hooks.DeviceNew(p, d)
			}
		})
	}
	for _, p := range s.snapshotPlugins() {
		s.safeCall(p, "device_ignored", func() {
			if p.hooks.DeviceIgnored != nil {
				p.hooks.DeviceIgnored(p, d)
			}
		})
	}
}

// RemoveDevice fires DeviceRemoved on every plugin, cancels every
// (plugin, device) timer for this device, and forgets the device (§3).
func (s *System) RemoveDevice(id device.ID) error {
	d, ok := s.devices[id]
	if !ok {
		return fmt.Errorf("pipeline: unknown device %d", id)
	}
	d.MarkRemoved()
	for _, p := range s.snapshotPlugins() {
		s.timers.CancelOwner(TimerOwner{Plugin: p, Device: id})
		p.OptOut(id)
		s.safeCall(p, "device_removed", func() {
			if p.hooks.DeviceRemoved != nil {
				p.hooks.DeviceRemoved(p, d)
			}
		})
	}
	delete(s.devices, id)
	return nil
}

// ConfigureTool fires ToolConfigured on every plugin for device d (§4.6).
func (s *System) ConfigureTool(d *device.Device, cfg ToolConfig) {
	for _, p := range s.snapshotPlugins() {
		s.safeCall(p, "tool_configured", func() {
			if p.hooks.ToolConfigured != nil {
				p.hooks.ToolConfigured(p, d, cfg)
			}
		})
	}
}

func (s *System) snapshotPlugins() []*Plugin {
	out := make([]*Plugin, len(s.plugins))
	copy(out, s.plugins)
	return out
}

// Dispatch is the driver loop entry point: it flushes expired timers, then
// assembles and delivers one inbound frame for device id (§4.2 step 1-2).
func (s *System) Dispatch(id device.ID, events []evdev.Event, t uint64) error {
	d, ok := s.devices[id]
	if !ok {
		return fmt.Errorf("pipeline: dispatch on unknown device %d", id)
	}

	s.flushTimers(t)

	frame := evdev.NewFrame(s.frameCapacity)
	if err := frame.Append(events, t); err != nil {
		return fmt.Errorf("pipeline: assembling frame for device %d: %w", id, err)
	}
	s.dispatchFrame(d, frame, 0)
	return nil
}

// FlushTimers services due timers without an inbound frame: the driver loop
// calls this when its poll wakes up on a timer deadline with no device fd
// readable, rather than synthesizing an empty Dispatch call (§4.2 step 1;
// §4.3).
func (s *System) FlushTimers(t uint64) {
	s.flushTimers(t)
}

func (s *System) flushTimers(t uint64) {
	s.timers.Flush(t)
	for _, qf := range s.drainGlobalTimerQueue() {
		idx := 0
		if !qf.restart {
			idx = s.indexAfter(qf.afterPlugin)
		}
		s.dispatchFrame(s.devices[qf.device], qf.frame, idx)
	}
}

// drainTimerQueue moves the frames a timer callback queued into the
// system-wide pending list, drained by Dispatch before it builds the next
// inbound frame (§4.3: timer-queued frames have no current frame context).
func (s *System) drainTimerQueue(q *TimerQueue) {
	s.pendingTimerFrames = append(s.pendingTimerFrames, q.frames...)
}

func (s *System) drainGlobalTimerQueue() []queuedFrame {
	out := s.pendingTimerFrames
	s.pendingTimerFrames = nil
	return out
}

// indexAfter resolves the plugin index right after owner in the current
// plugin list, the delivery starting point for a timer-queued frame (§4.2:
// "the next plugin and those after it"). If owner has since unregistered
// (and so no longer appears in the list), the frame is delivered to every
// remaining plugin from the start.
func (s *System) indexAfter(owner *Plugin) int {
	for i, p := range s.plugins {
		if p == owner {
			return i + 1
		}
	}
	return 0
}

type deferredAppend struct {
	frame     *evdev.Frame
	fromIndex int
}

// dispatchFrame delivers frame to every opted-in plugin starting at
// pluginIndex, implementing the prepend/append/inject queue semantics of
// §4.2: a prepend is delivered immediately (recursively) starting right
// after the current plugin; an inject restarts from the first plugin; an
// append is collected, tagged with the index right after the enqueuing
// plugin, and delivered, in enqueue order, only after this call's own
// traversal finishes (§8 invariants #8, #9).
func (s *System) dispatchFrame(d *device.Device, frame *evdev.Frame, pluginIndex int) {
	var deferred []deferredAppend

	for idx := pluginIndex; idx < len(s.plugins); idx++ {
		p := s.plugins[idx]
		if p.removed || !p.WantsDevice(d.ID()) || p.hooks.EvdevFrame == nil {
			continue
		}

		q := &Queue{}
		s.safeCall(p, "evdev_frame", func() {
			p.hooks.EvdevFrame(p, d, frame, q)
		})
		if idx >= len(s.plugins) || s.plugins[idx] != p {
			// p was unregistered during the call and the list compacted:
			// the next plugin now sits at idx.
			idx--
		}

		for _, pf := range q.prepends {
			s.dispatchFrame(d, pf, idx+1)
		}
		for _, inj := range q.injects {
			s.dispatchFrame(d, inj, 0)
		}
		for _, af := range q.appends {
			deferred = append(deferred, deferredAppend{frame: af, fromIndex: idx + 1})
		}
	}

	for _, da := range deferred {
		s.dispatchFrame(d, da.frame, da.fromIndex)
	}
}
