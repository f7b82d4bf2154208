// Package logging wires the pipeline's error taxonomy (§7) onto
// github.com/hashicorp/go-hclog: every plugin and state machine gets its
// own Named() logger, so a "plugin bug" or "libinput bug" entry is always
// tagged with its origin the way hashicorp-nomad tags its device/driver
// plugin logs.
package logging

import (
	"os"
	"time"

	hclog "github.com/hashicorp/go-hclog"
)

// New creates a named logger. DisableTime mirrors the teacher's
// `log.SetFlags(0)` in cmd/framework-powerd/main.go: under systemd,
// journald supplies its own timestamps.
func New(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.Debug,
		Output:     os.Stderr,
		DisableTime: true,
	})
}

// kernelBugLimiter backs LibinputBug: at most one "libinput bug" message
// per distinct format string per second, so a state machine stuck
// replaying the same illegal transition every frame can't flood journald.
var kernelBugLimiter = NewRateLimiter(time.Second, 1)

// LibinputBug logs an invariant violation: a state machine received an
// event illegal in its current state (§7). The event is discarded, state
// is not changed, and this is never surfaced as an error to the plugin's
// caller. Rate-limited via RateLimiter, keyed by the format string.
func LibinputBug(log hclog.Logger, format string, args ...any) {
	kernelBugLimiter.KernelBug(log, format, "libinput bug: "+format, args...)
}

// PluginBug logs that a plugin misbehaved (script error, malformed frame
// return, injecting mid-frame-callback, duplicate registration, ...). The
// caller is responsible for actually unregistering the plugin; this only
// records the reason (§7).
func PluginBug(log hclog.Logger, format string, args ...any) {
	log.Error("plugin bug: "+format, args...)
}
