package pipeline

import (
	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
)

// Queue is handed to a plugin's EvdevFrame callback and records the
// prepend/append/inject requests it makes during that single call (§4.2).
//
//   - Prepend: f becomes visible to plugins after the current one, before
//     the current frame continues down the pipeline.
//   - Append: f becomes visible to later plugins after the current frame
//     finishes its traversal.
//   - Inject: f restarts delivery from the first plugin in the pipeline,
//     as if it had just arrived from the kernel. This can recurse into the
//     injecting plugin; the injecting plugin is responsible for guarding
//     against re-entry (§4.2, §9).
type Queue struct {
	prepends []*evdev.Frame
	appends  []*evdev.Frame
	injects  []*evdev.Frame
}

// Prepend queues f for delivery before the current frame continues.
func (q *Queue) Prepend(f *evdev.Frame) {
	q.prepends = append(q.prepends, f)
}

// Append queues f for delivery after the current frame's traversal ends.
func (q *Queue) Append(f *evdev.Frame) {
	q.appends = append(q.appends, f)
}

// Inject queues f to restart delivery from the first plugin.
func (q *Queue) Inject(f *evdev.Frame) {
	q.injects = append(q.injects, f)
}

// TimerQueue is handed to a timer callback, bound to the device and plugin
// the timer was created for. There is no "current frame" in a timer
// context, so append and prepend are functionally equivalent: both deliver
// the queued frame starting at the next plugin after the timer's owner,
// the same as every other plugin already past the owner would have seen it
// on the usual evdev_frame path (§4.2, §4.3).
type TimerQueue struct {
	sys    *System
	device device.ID
	owner  *Plugin
	frames []queuedFrame
}

type queuedFrame struct {
	device      device.ID
	frame       *evdev.Frame
	afterPlugin *Plugin
	restart     bool
}

// Append queues f for delivery starting after the timer's owning plugin.
func (q *TimerQueue) Append(f *evdev.Frame) {
	q.frames = append(q.frames, queuedFrame{device: q.device, frame: f, afterPlugin: q.owner})
}

// Prepend is an alias for Append in a timer context (§4.2): timers have no
// "current frame" to insert ahead of, so both deliver the queued frame
// starting at the next plugin after the timer's owner.
func (q *TimerQueue) Prepend(f *evdev.Frame) {
	q.Append(f)
}

// Inject queues f to restart delivery from the first plugin, same as the
// in-frame Queue.Inject (§4.2): unlike Prepend/Append, a restart does not
// depend on a "current plugin" position, so it is well-defined even from a
// timer callback.
func (q *TimerQueue) Inject(f *evdev.Frame) {
	q.frames = append(q.frames, queuedFrame{device: q.device, frame: f, restart: true})
}
