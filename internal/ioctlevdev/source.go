package ioctlevdev

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	hclog "github.com/hashicorp/go-hclog"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/monitor"
)

// rawEventSize is sizeof(struct input_event) on a 64-bit kernel: two
// 8-byte timeval fields plus a u16 type, u16 code, s32 value.
const rawEventSize = 24

// Source implements device.Source against real /dev/input/eventN nodes.
// Discovery scans the existing event nodes and watches /dev/input with
// fsnotify for new ones; property enrichment uses internal/monitor's
// netlink Monitor, filtered to the "input" subsystem.
type Source struct {
	log hclog.Logger

	newDevices func(*device.Device)
	frames     func(device.ID, []evdev.Event, uint64)
	removed    func(device.ID)

	udev *monitor.Monitor

	mu         sync.Mutex
	watched    map[string]*os.File
	udevProps  map[string]map[string]string // "eventN" -> udev properties
	nextID     uint64
	closed     bool
}

// New creates a Source that will log under log.
func New(log hclog.Logger) *Source {
	return &Source{
		log:       log,
		watched:   make(map[string]*os.File),
		udevProps: make(map[string]map[string]string),
	}
}

// Open implements device.Source: it starts udev enrichment, scans the
// devices already present, and watches /dev/input for new ones.
func (s *Source) Open(newDevices func(*device.Device), frames func(device.ID, []evdev.Event, uint64), removed func(device.ID)) error {
	s.newDevices = newDevices
	s.frames = frames
	s.removed = removed

	if m, err := monitor.NewMonitor(s.log.Named("udev")); err != nil {
		s.log.Warn("udev property enrichment disabled", "error", err)
	} else {
		s.udev = m
		ch, err := m.Start()
		if err != nil {
			s.log.Warn("udev property enrichment disabled", "error", err)
			m.Stop()
			s.udev = nil
		} else {
			go s.consumeUdevEvents(ch)
		}
	}

	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return fmt.Errorf("ioctlevdev: glob /dev/input: %w", err)
	}
	for _, p := range paths {
		go s.watchDevice(p)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ioctlevdev: fsnotify: %w", err)
	}
	if err := w.Add("/dev/input"); err != nil {
		w.Close()
		return fmt.Errorf("ioctlevdev: watch /dev/input: %w", err)
	}
	go s.handleHotplug(w)

	return nil
}

// Close stops the udev listener and closes every device file currently
// being watched, which unblocks each device's blocking Read and lets its
// goroutine exit via the removed callback.
func (s *Source) Close() error {
	s.mu.Lock()
	s.closed = true
	for path, f := range s.watched {
		f.Close()
		delete(s.watched, path)
	}
	s.mu.Unlock()

	if s.udev != nil {
		s.udev.Stop()
	}
	return nil
}

func (s *Source) consumeUdevEvents(ch <-chan monitor.UdevEvent) {
	for ev := range ch {
		if ev.Subsystem != "input" {
			continue
		}
		devname, ok := ev.Properties["DEVNAME"]
		if !ok {
			continue
		}
		base := filepath.Base(devname)
		s.mu.Lock()
		s.udevProps[base] = ev.Properties
		s.mu.Unlock()
	}
}

// handleHotplug watches for new event nodes under /dev/input through
// fsnotify Create events, limited to evdev event nodes (this pipeline has
// no joydev path).
func (s *Source) handleHotplug(w *fsnotify.Watcher) {
	defer w.Close()
	for {
		ev, ok := <-w.Events
		if !ok {
			return
		}
		if ev.Op&(fsnotify.Create) == 0 {
			continue
		}
		name := filepath.Base(ev.Name)
		if match, _ := filepath.Match("event*", name); !match {
			continue
		}
		go s.watchDevice(ev.Name)
	}
}

// watchDevice opens path, queries it, announces it as device_new, then
// blocks decoding frames until the file errors out (device removed or
// Close was called).
func (s *Source) watchDevice(path string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, already := s.watched[path]; already {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		s.log.Debug("open failed", "path", path, "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		file.Close()
		return
	}
	s.watched[path] = file
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.watched, path)
		s.mu.Unlock()
		file.Close()
	}()

	fd := file.Fd()
	identity, err := queryIdentity(fd)
	if err != nil {
		s.log.Warn("EVIOCGID failed", "path", path, "error", err)
		return
	}
	name, err := queryName(fd)
	if err != nil {
		s.log.Warn("EVIOCGNAME failed", "path", path, "error", err)
		return
	}
	caps := queryCapabilities(fd)
	capList := make([]evdev.Usage, 0, len(caps))
	for u := range caps {
		capList = append(capList, u)
	}

	base := filepath.Base(path)
	s.mu.Lock()
	props := s.udevProps[base]
	s.mu.Unlock()

	id := device.ID(atomic.AddUint64(&s.nextID, 1))
	d := device.New(id, name, identity, capList, props)
	s.newDevices(d)

	s.readLoop(file, id)

	s.removed(id)
}

// readLoop decodes struct input_event records off file, batching events
// until a SYN_REPORT terminator and handing each batch to frames.
func (s *Source) readLoop(file *os.File, id device.ID) {
	buf := make([]byte, rawEventSize)
	var batch []evdev.Event
	for {
		n, err := file.Read(buf)
		if err != nil {
			return
		}
		if n != rawEventSize {
			continue
		}
		ev, t := decodeRawEvent(buf)
		batch = append(batch, ev)
		if ev.IsSynReport() {
			s.frames(id, batch, t)
			batch = nil
		}
	}
}

func decodeRawEvent(buf []byte) (evdev.Event, uint64) {
	sec := binary.LittleEndian.Uint64(buf[0:8])
	usec := binary.LittleEndian.Uint64(buf[8:16])
	typ := binary.LittleEndian.Uint16(buf[16:18])
	code := binary.LittleEndian.Uint16(buf[18:20])
	value := int32(binary.LittleEndian.Uint32(buf[20:24]))
	return evdev.Event{Usage: evdev.NewUsage(typ, code), Value: value}, sec*1_000_000 + usec
}
