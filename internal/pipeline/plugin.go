// Package pipeline implements the per-device event-frame dispatch pipeline
// (§4.2): the ordered plugin list, the per-device frame opt-in bitmap, the
// inject/prepend/append queue semantics, and the driver loop that walks
// plugins for each frame.
package pipeline

import (
	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/timer"
)

// Hooks is a plugin's vtable (§3, §4.2). Every field is optional; a plugin
// registers whichever subset of callbacks it needs.
type Hooks struct {
	// Run is called once, immediately after the plugin finishes
	// registering.
	Run func(p *Plugin)

	// Destroy is called when the plugin is unregistered or torn down
	// after a bug.
	Destroy func(p *Plugin)

	// DeviceNew is called for every device the pipeline discovers,
	// whether or not the plugin ultimately opts in to it. This is where
	// a plugin typically calls p.OptIn(d.ID()).
	DeviceNew func(p *Plugin, d *device.Device)

	// DeviceIgnored is called if the device was not accepted into the
	// pipeline after device_new.
	DeviceIgnored func(p *Plugin, d *device.Device)

	// DeviceAdded is called once the device is accepted into the
	// pipeline.
	DeviceAdded func(p *Plugin, d *device.Device)

	// DeviceRemoved is called when the device leaves the pipeline. A
	// plugin must destroy its own per-device state here; the System
	// separately cancels any timers the plugin created for this device
	// through TimerOwner.
	DeviceRemoved func(p *Plugin, d *device.Device)

	// EvdevFrame is called for every frame on every device this plugin
	// has opted in for (§4.2). The plugin may mutate f in place, reset
	// it to drop it, or use q to prepend/append/inject further frames.
	EvdevFrame func(p *Plugin, d *device.Device, f *evdev.Frame, q *Queue)

	// ToolConfigured is called when policy configures a tablet tool's
	// synthesized-button behavior (§4.6).
	ToolConfigured func(p *Plugin, d *device.Device, cfg ToolConfig)
}

// ToolConfig is the per-tool configuration a tool_configured callback
// delivers (§4.6). Mode "default" disables eraser-button rewriting
// entirely.
type ToolConfig struct {
	Tool   evdev.Usage
	Mode   string
	Button evdev.Usage
}

const ToolConfigModeDefault = "default"
const ToolConfigModeButton = "button"

// Plugin is a named unit holding a vtable, a refcount, user data, and the
// set of devices it has opted in to receive frames for (§3). Plugins are
// owned by the PluginSystem's list; callbacks receive a *Plugin as a weak
// reference.
type Plugin struct {
	sys      *System
	name     string
	hooks    Hooks
	refcount int
	optedIn  map[device.ID]bool
	userData any
	removed  bool
}

// Name returns the plugin's registered name.
func (p *Plugin) Name() string { return p.name }

// UserData returns the opaque value the plugin stored with SetUserData.
func (p *Plugin) UserData() any { return p.userData }

// SetUserData stores an opaque value on the plugin, e.g. a per-device state
// map.
func (p *Plugin) SetUserData(v any) { p.userData = v }

// OptIn marks the plugin as wanting frame events for device id (§4.2).
func (p *Plugin) OptIn(id device.ID) {
	if p.optedIn == nil {
		p.optedIn = make(map[device.ID]bool)
	}
	p.optedIn[id] = true
}

// OptOut withdraws interest in frame events for device id.
func (p *Plugin) OptOut(id device.ID) {
	delete(p.optedIn, id)
}

// WantsDevice reports whether the plugin currently opts in to device id.
func (p *Plugin) WantsDevice(id device.ID) bool {
	return p.optedIn[id]
}

// Unregister removes the plugin from the pipeline. Its pending timers are
// cancelled, its per-device records' teardown hook (DeviceRemoved) is not
// re-invoked (the plugin is simply dropped from future dispatch), and
// Destroy fires if present. Idempotent.
func (p *Plugin) Unregister() {
	p.sys.unregisterPlugin(p)
}

// NewTimer creates a timer owned by (plugin, device) so that DeviceRemoved
// or Unregister can cancel exactly this plugin's timers for this device
// without affecting other plugins (§4.3, §5).
func (p *Plugin) NewTimer(d device.ID, name string, callback func(now uint64, q *TimerQueue)) *timer.Timer {
	owner := TimerOwner{Plugin: p, Device: d}
	return p.sys.timers.New(owner, name, func(now uint64) {
		q := &TimerQueue{sys: p.sys, device: d, owner: p}
		callback(now, q)
		p.sys.drainTimerQueue(q)
	})
}

// TimerOwner identifies the (plugin, device) pair a timer belongs to, used
// to selectively cancel timers on device_removed or plugin unregister.
type TimerOwner struct {
	Plugin *Plugin
	Device device.ID
}
