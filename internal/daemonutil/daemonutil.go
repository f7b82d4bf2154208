// Package daemonutil sends systemd service-manager notifications from the
// pipeline driver loop, the same systemd-aware posture the teacher's
// main.go documents (journald owns timestamps; READY/WATCHDOG notify the
// manager directly rather than through log lines).
package daemonutil

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	hclog "github.com/hashicorp/go-hclog"
)

// NotifyReady tells systemd the daemon has finished starting up. A no-op
// (and not an error) outside a systemd unit, matching sd_notify's own
// NOTIFY_SOCKET-unset behavior.
func NotifyReady(log hclog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warn("sd_notify READY failed", "error", err)
		return
	}
	if sent {
		log.Debug("sd_notify READY sent")
	}
}

// NotifyStopping tells systemd the daemon is shutting down cleanly.
func NotifyStopping(log hclog.Logger) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Warn("sd_notify STOPPING failed", "error", err)
	}
}

// WatchdogLoop pings the systemd watchdog at half its configured interval
// until the stop channel is closed, the way a long-running driver loop
// proves liveness without folding watchdog timing into its own select.
// If the watchdog isn't enabled for this unit (WATCHDOG_USEC unset),
// it returns immediately.
func WatchdogLoop(log hclog.Logger, stop <-chan struct{}) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Warn("sd_notify WATCHDOG failed", "error", err)
			}
		}
	}
}
