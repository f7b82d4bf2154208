// Package ioctlevdev implements device.Source against real kernel
// /dev/input/eventN nodes: EVIOCG* ioctls for identity/name/capabilities,
// a blocking per-device read loop decoding struct input_event, and
// hotplug discovery via fsnotify plus udev netlink property enrichment.
package ioctlevdev

import (
	"bytes"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
)

// ioctlStruct issues req against fd with arg's address as the argument
// pointer, the same raw unix.SYS_IOCTL call andrieee44-mylib's
// ioctl.Any wraps generically; reproduced here without generics since the
// two call shapes needed (fixed struct, byte buffer) are both trivial.
func ioctlStruct(fd uintptr, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlBytes(fd uintptr, req uint, buf []byte) error {
	return ioctlStruct(fd, req, unsafe.Pointer(&buf[0]))
}

// queryIdentity reads the bus/vendor/product/version quadruple via
// EVIOCGID.
func queryIdentity(fd uintptr) (device.Identity, error) {
	var id inputID
	if err := ioctlStruct(fd, eviocgid, unsafe.Pointer(&id)); err != nil {
		return device.Identity{}, err
	}
	return device.Identity{
		BusType: id.Bustype,
		Vendor:  id.Vendor,
		Product: id.Product,
		Version: id.Version,
	}, nil
}

// queryName reads the device's kernel name via EVIOCGNAME.
func queryName(fd uintptr) (string, error) {
	buf := make([]byte, 256)
	if err := ioctlBytes(fd, eviocgname(uint(len(buf))), buf); err != nil {
		return "", err
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

// queryCapabilities reports which of this package's named evdev.Usage
// values the device actually supports. Unlike andrieee44-mylib's Codes,
// which walks the kernel's full per-type code table, this only tests the
// usages internal/evdev names (the vocabulary every plugin in this
// pipeline actually consumes) — one EVIOCGBIT call per event type that
// vocabulary touches, rather than one per EV_* type in the kernel.
func queryCapabilities(fd uintptr) map[evdev.Usage]bool {
	byType := make(map[uint16][]evdev.Usage)
	for u := range evdev.UsageNames() {
		byType[u.Type()] = append(byType[u.Type()], u)
	}

	caps := make(map[evdev.Usage]bool)
	for evType, usages := range byType {
		maxCode := uint(0)
		for _, u := range usages {
			if c := uint(u.Code()); c > maxCode {
				maxCode = c
			}
		}
		buf := make([]byte, maxCode/8+1)
		if err := ioctlBytes(fd, eviocgbit(uint(evType), uint(len(buf))), buf); err != nil {
			continue // device does not support this event type at all
		}
		for _, u := range usages {
			if testBit(buf, uint(u.Code())) {
				caps[u] = true
			}
		}
	}
	return caps
}
