// Package monitor listens for kernel input hotplug activity over the udev
// netlink socket; internal/ioctlevdev uses it to attach udev properties to
// the devices it discovers.
package monitor

import (
	"bytes"
	"fmt"
	"strings"

	hclog "github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"

	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
)

// Monitor reads raw udev events off the kernel's uevent netlink multicast
// group. It reports every subsystem's events, not just "input" — callers
// filter by UdevEvent.Subsystem.
type Monitor struct {
	fd     int
	log    hclog.Logger
	stop   chan struct{}
	events chan UdevEvent
}

// UdevEvent is one ADD/REMOVE/CHANGE notification plus whatever
// KEY=VALUE properties the kernel attached to it.
type UdevEvent struct {
	Action     string
	Subsystem  string
	DevPath    string
	Properties map[string]string
}

// NewMonitor opens and binds the netlink uevent socket. log defaults to
// logging.New("monitor") if nil.
func NewMonitor(log hclog.Logger) (*Monitor, error) {
	if log == nil {
		log = logging.New("monitor")
	}

	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %v", err)
	}

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: 1, // Multicast group 1 for Udev events
		Pid:    0, // Kernel listens to Pid 0
	}

	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind socket: %v", err)
	}

	return &Monitor{
		fd:     fd,
		log:    log,
		stop:   make(chan struct{}),
		events: make(chan UdevEvent),
	}, nil
}

// Start begins listening for events
func (m *Monitor) Start() (<-chan UdevEvent, error) {
	go m.listen()
	return m.events, nil
}

// Stop closes the monitor
func (m *Monitor) Stop() {
	close(m.stop)
	unix.Close(m.fd)
	close(m.events)
}

func (m *Monitor) listen() {
	buf := make([]byte, 4096) // Buffer for netlink messages
	for {
		select {
		case <-m.stop:
			return
		default:
			n, _, err := unix.Recvfrom(m.fd, buf, 0)
			if err != nil {
				// If socket is closed manually, this will error, so we handle it gracefully if stopped
				select {
				case <-m.stop:
					return
				default:
					m.log.Warn("recvfrom failed", "error", err)
					continue
				}
			}

			if n > 0 {
				event, err := parseUdevEvent(buf[:n])
				if err == nil {
					m.events <- event
				}
			}
		}
	}
}

func parseUdevEvent(data []byte) (UdevEvent, error) {
	// Udev events are null-terminated strings
	// First string is "ACTION@DEVPATH"
	// Rest are "KEY=VALUE"
	parts := bytes.Split(data, []byte{0x00})
	if len(parts) == 0 {
		return UdevEvent{}, fmt.Errorf("empty event")
	}

	header := string(parts[0])
	headerParts := strings.SplitN(header, "@", 2)
	if len(headerParts) != 2 {
		return UdevEvent{}, fmt.Errorf("invalid header: %s", header)
	}

	event := UdevEvent{
		Action:     headerParts[0],
		DevPath:    headerParts[1],
		Properties: make(map[string]string),
	}

	for _, part := range parts[1:] {
		if len(part) == 0 {
			continue
		}
		kv := strings.SplitN(string(part), "=", 2)
		if len(kv) == 2 {
			event.Properties[kv[0]] = kv[1]
		}
	}

	// Helper to fill top info
	if val, ok := event.Properties["SUBSYSTEM"]; ok {
		event.Subsystem = val
	}

	return event, nil
}
