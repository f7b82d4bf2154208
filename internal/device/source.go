package device

import "github.com/zaolin/libinput-plugin-pipeline/internal/evdev"

// Source is the external collaborator that discovers and opens physical
// input devices and hands frames up to the pipeline (§1 "out of scope":
// raw device discovery). This module only depends on the interface; the
// real udev/evdev-backed implementation, which the CLI tools use, lives in
// internal/ioctlevdev, and FakeSource below is an in-memory alternative.
type Source interface {
	// Open begins discovery. newDevices receives devices in device_new
	// state; frames receives (deviceID, raw kernel frame, absolute time)
	// tuples as they arrive from the kernel.
	Open(newDevices func(*Device), frames func(ID, []evdev.Event, uint64), removed func(ID)) error
	Close() error
}

// FakeSource is an in-memory Source for code that has no real /dev/input
// fd. Frames are fed in with Inject/Remove rather than read from the kernel.
type FakeSource struct {
	newDevices func(*Device)
	frames     func(ID, []evdev.Event, uint64)
	removed    func(ID)
}

// Open implements Source.
func (f *FakeSource) Open(newDevices func(*Device), frames func(ID, []evdev.Event, uint64), removed func(ID)) error {
	f.newDevices = newDevices
	f.frames = frames
	f.removed = removed
	return nil
}

// Close implements Source.
func (f *FakeSource) Close() error { return nil }

// AnnounceDevice feeds d through as a device_new notification.
func (f *FakeSource) AnnounceDevice(d *Device) {
	if f.newDevices != nil {
		f.newDevices(d)
	}
}

// PushFrame feeds a raw frame for id as if it had just arrived from the
// kernel.
func (f *FakeSource) PushFrame(id ID, events []evdev.Event, t uint64) {
	if f.frames != nil {
		f.frames(id, events, t)
	}
}

// RemoveDevice feeds a device_removed notification for id.
func (f *FakeSource) RemoveDevice(id ID) {
	if f.removed != nil {
		f.removed(id)
	}
}
