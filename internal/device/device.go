// Package device models the handle the pipeline and its plugins hold for a
// physical input device (§3): a stable name, bus/vendor/product IDs, a
// capability set, the enabled-usage set, and udev-style string properties.
package device

import (
	"fmt"
	"sort"

	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
)

// ID uniquely identifies a device for the lifetime of the process.
type ID uint64

// Identity carries the bus/vendor/product/version quadruple reported by
// EVIOCGID, mirroring andrieee44-mylib's Input_id layout.
type Identity struct {
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// Device is the opaque reference to an input device known to the pipeline.
// Plugins key their per-device records by the device's ID while registered
// and drop them on device_removed.
type Device struct {
	id           ID
	name         string
	identity     Identity
	capabilities map[evdev.Usage]bool
	enabled      map[evdev.Usage]bool
	properties   map[string]string
	added        bool
	removed      bool
}

// New creates a device handle in the device_new state: not yet added to the
// pipeline, capabilities fixed, enabled-usage set mutable until Add.
func New(id ID, name string, identity Identity, capabilities []evdev.Usage, properties map[string]string) *Device {
	d := &Device{
		id:           id,
		name:         name,
		identity:     identity,
		capabilities: make(map[evdev.Usage]bool, len(capabilities)),
		enabled:      make(map[evdev.Usage]bool, len(capabilities)),
		properties:   make(map[string]string, len(properties)),
	}
	for _, u := range capabilities {
		d.capabilities[u] = true
		d.enabled[u] = true
	}
	for k, v := range properties {
		d.properties[k] = v
	}
	return d
}

// ID returns the device's stable identifier.
func (d *Device) ID() ID { return d.id }

// Name returns the device's stable system name.
func (d *Device) Name() string { return d.name }

// Identity returns the bus/vendor/product/version quadruple.
func (d *Device) Identity() Identity { return d.identity }

// HasCapability reports whether the device can produce events for usage.
func (d *Device) HasCapability(u evdev.Usage) bool {
	return d.capabilities[u]
}

// Capabilities returns the full capability set, sorted for deterministic
// output (cmd/list-devices relies on this).
func (d *Device) Capabilities() []evdev.Usage {
	out := make([]evdev.Usage, 0, len(d.capabilities))
	for u := range d.capabilities {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EnableUsage enables usage for event delivery. Only valid before the
// device has been fully added to the pipeline (§3).
func (d *Device) EnableUsage(u evdev.Usage) error {
	if d.added {
		return fmt.Errorf("device %s: cannot enable usage %s after device_added", d.name, u)
	}
	if !d.capabilities[u] {
		return fmt.Errorf("device %s: usage %s is not a device capability", d.name, u)
	}
	d.enabled[u] = true
	return nil
}

// DisableUsage disables usage. Only valid before device_added.
func (d *Device) DisableUsage(u evdev.Usage) error {
	if d.added {
		return fmt.Errorf("device %s: cannot disable usage %s after device_added", d.name, u)
	}
	d.enabled[u] = false
	return nil
}

// UsageEnabled reports whether usage is currently enabled.
func (d *Device) UsageEnabled(u evdev.Usage) bool {
	return d.enabled[u]
}

// Property returns a udev-style string property and whether it was present.
// Only keys beginning with "ID_INPUT_" (and similar documented prefixes)
// are guaranteed to be visible to scripted plugins (§6).
func (d *Device) Property(key string) (string, bool) {
	v, ok := d.properties[key]
	return v, ok
}

// Properties returns a copy of the full property map.
func (d *Device) Properties() map[string]string {
	out := make(map[string]string, len(d.properties))
	for k, v := range d.properties {
		out[k] = v
	}
	return out
}

// MarkAdded transitions the device into the added state, freezing the
// enabled-usage set.
func (d *Device) MarkAdded() {
	d.added = true
}

// Added reports whether device_added has fired for this device.
func (d *Device) Added() bool { return d.added }

// MarkRemoved transitions the device into the removed state. Lifecycle is
// strictly monotonic: device_new -> (device_added | device_ignored) ->
// device_removed (§3).
func (d *Device) MarkRemoved() {
	d.removed = true
}

// Removed reports whether device_removed has fired for this device.
func (d *Device) Removed() bool { return d.removed }
