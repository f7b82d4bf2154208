package pluginhost

import (
	"fmt"
	"strings"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	lua "github.com/yuin/gopher-lua"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
	"github.com/zaolin/libinput-plugin-pipeline/internal/timer"
)

// A script stuck logging errors in a tight loop never throws, so
// log.error has its own burst guard: logErrorBurstLimit errors within
// logErrorBurstWindow auto-unregisters the plugin, the same defense the
// original's embedding host relies on systemd/watchdog timeouts for.
const (
	logErrorBurstLimit  = 3
	logErrorBurstWindow = time.Second
)

// unregisteringSentinel is the marker message libinput.unregister() raises
// as a Lua error purely to unwind the script's call stack; the outer pcall
// wrapper checks for it to tell a voluntary unregistration apart from a
// genuine script bug (§4.10, original's "@@unregistering@@").
const unregisteringSentinel = "@@unregistering@@"

// supportedAPIVersion is the single version this host's libinput.register()
// accepts.
const supportedAPIVersion = "1.0"

// scriptPlugin is the live state behind one loaded Lua script: the plugin
// handle, its dedicated Lua VM, the device objects it has seen, and the
// per-device timers its own libinput.timer_set_* calls manage.
//
// The original gives a script one global timer, tied to the libinput
// object itself rather than any device. This pipeline's timer service
// scopes every timer to a (plugin, device) pair (§4.3), so this host
// adapts the API by keying timer_set_absolute/timer_set_relative/
// timer_cancel off whichever device's callback is currently executing;
// a script that calls them outside a device callback gets a Lua error
// rather than a silently-dropped timer.
type scriptPlugin struct {
	p    *pipeline.Plugin
	sys  *pipeline.System
	log  hclog.Logger
	name string
	L    *lua.LState

	registered bool

	devices      map[device.ID]*luaDevice
	deviceTimers map[device.ID]*timer.Timer

	curQueue  *queueContext
	curDevice device.ID
	now       uint64

	newDeviceHandler    *lua.LFunction
	timerExpiredHandler *lua.LFunction

	errorCount       int
	errorWindowStart time.Time
}

// ErrorCount reports how many log.error calls this script has made inside
// its current burst window, for cmd/debug-events --verbose.
func (sp *scriptPlugin) ErrorCount() int { return sp.errorCount }

// noteScriptError is called from the log.error Lua binding. It never
// inspects what was logged, only how often — three calls inside one
// second is treated as a script stuck in a hot error loop and the plugin
// is unregistered without waiting for it to throw.
func (sp *scriptPlugin) noteScriptError() {
	now := time.Now()
	if now.Sub(sp.errorWindowStart) > logErrorBurstWindow {
		sp.errorWindowStart = now
		sp.errorCount = 0
	}
	sp.errorCount++
	if sp.errorCount >= logErrorBurstLimit {
		logging.PluginBug(sp.log, "script %q: log.error called %d times within %s, unregistering", sp.name, sp.errorCount, logErrorBurstWindow)
		sp.p.Unregister()
	}
}

// Load parses and runs src as a named scripted plugin against sys. The
// script's top-level code runs immediately (as the original does during
// libinput_lua_plugin_init_lua) and must call libinput.register() exactly
// once; if it doesn't, or it errors without the unregister sentinel, the
// plugin is logged as buggy and torn down.
func Load(sys *pipeline.System, log hclog.Logger, name, src string) (*pipeline.Plugin, error) {
	L, err := newSandboxState()
	if err != nil {
		return nil, fmt.Errorf("pluginhost: building sandbox for %q: %w", name, err)
	}
	registerDeviceType(L)

	sp := &scriptPlugin{
		sys:          sys,
		log:          log,
		name:         name,
		L:            L,
		devices:      make(map[device.ID]*luaDevice),
		deviceTimers: make(map[device.ID]*timer.Timer),
	}

	L.SetGlobal("evdev", buildEvdevTable(L))
	L.SetGlobal("log", buildLogTable(L, log, sp))
	L.SetGlobal("libinput", buildLibinputTable(L, sp))

	p := sys.Register(name, pipeline.Hooks{
		DeviceNew:     sp.onDeviceNew,
		DeviceRemoved: sp.onDeviceRemoved,
		EvdevFrame:    sp.onEvdevFrame,
		Destroy:       sp.onDestroy,
	})
	sp.p = p
	p.SetUserData(sp)

	if err := L.DoString(src); err != nil {
		sp.fail(err)
		return nil, fmt.Errorf("pluginhost: loading %q: %w", name, err)
	}
	if !sp.registered {
		logging.PluginBug(log, "script %q returned without calling libinput.register()", name)
		p.Unregister()
		return nil, fmt.Errorf("pluginhost: %q never registered", name)
	}
	return p, nil
}

// fail distinguishes a voluntary libinput.unregister() from a real bug and
// tears the plugin down either way.
func (sp *scriptPlugin) fail(err error) {
	if strings.Contains(err.Error(), unregisteringSentinel) {
		sp.log.Debug("script unregistered itself", "plugin", sp.name)
	} else {
		logging.PluginBug(sp.log, "script %q: %v", sp.name, err)
	}
	sp.p.Unregister()
}

// call invokes fn with args inside ctx, translating a Lua error through
// fail the same way the top-level load does (§4.10: "a script error at any
// point unregisters the plugin").
func (sp *scriptPlugin) call(ctx *queueContext, fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, bool) {
	prevQueue, prevDevice := sp.curQueue, sp.curDevice
	sp.curQueue = ctx
	if ctx != nil {
		sp.curDevice = ctx.device
	}
	defer func() { sp.curQueue, sp.curDevice = prevQueue, prevDevice }()

	top := sp.L.GetTop()
	sp.L.Push(fn)
	for _, a := range args {
		sp.L.Push(a)
	}
	if err := sp.L.PCall(len(args), lua.MultRet, nil); err != nil {
		sp.fail(err)
		return nil, false
	}
	var rets []lua.LValue
	for i := top + 1; i <= sp.L.GetTop(); i++ {
		rets = append(rets, sp.L.Get(i))
	}
	sp.L.SetTop(top)
	return rets, true
}

func (sp *scriptPlugin) onDeviceNew(p *pipeline.Plugin, d *device.Device) {
	ld := &luaDevice{sp: sp, d: d}
	sp.devices[d.ID()] = ld
	if sp.newDeviceHandler == nil {
		return
	}
	ud := pushLuaDevice(sp.L, ld)
	sp.call(&queueContext{device: d.ID()}, sp.newDeviceHandler, ud)
}

func (sp *scriptPlugin) onDeviceRemoved(p *pipeline.Plugin, d *device.Device) {
	ld, ok := sp.devices[d.ID()]
	if !ok {
		return
	}
	if fn, ok := ld.handlers["device-removed"]; ok {
		ud := pushLuaDevice(sp.L, ld)
		sp.call(&queueContext{device: d.ID()}, fn, ud)
	}
	delete(sp.devices, d.ID())
	delete(sp.deviceTimers, d.ID())
}

func (sp *scriptPlugin) onEvdevFrame(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, q *pipeline.Queue) {
	ld, ok := sp.devices[d.ID()]
	if !ok {
		return
	}
	fn, ok := ld.handlers["evdev-frame"]
	if !ok {
		return
	}
	sp.now = f.Time()
	ud := pushLuaDevice(sp.L, ld)
	tbl := pushFrame(sp.L, f)
	rets, ok := sp.call(&queueContext{frameQueue: q, device: d.ID()}, fn, ud, tbl)
	if !ok || len(rets) == 0 {
		return
	}
	newF, has, err := popFrame(rets[0], f.Time())
	if err != nil {
		logging.PluginBug(sp.log, "script %q: evdev-frame handler returned a malformed frame: %v", sp.name, err)
		sp.p.Unregister()
		return
	}
	if has {
		_ = f.Set(newF.Payload(), newF.Time())
	}
}

func (sp *scriptPlugin) onDestroy(p *pipeline.Plugin) {
	for _, t := range sp.deviceTimers {
		t.Cancel()
	}
	sp.L.Close()
}

// deviceTimer lazily creates the single timer this script gets for device
// id, the adaptation described on scriptPlugin.
func (sp *scriptPlugin) deviceTimer(id device.ID) *timer.Timer {
	if t, ok := sp.deviceTimers[id]; ok {
		return t
	}
	t := sp.p.NewTimer(id, "lua", func(now uint64, q *pipeline.TimerQueue) {
		sp.onTimerExpired(id, now, q)
	})
	sp.deviceTimers[id] = t
	return t
}

func (sp *scriptPlugin) onTimerExpired(id device.ID, now uint64, q *pipeline.TimerQueue) {
	sp.now = now
	if sp.timerExpiredHandler == nil {
		return
	}
	ld, ok := sp.devices[id]
	if !ok {
		return
	}
	ud := pushLuaDevice(sp.L, ld)
	sp.call(&queueContext{timerQueue: q, device: id}, sp.timerExpiredHandler, ud, lua.LNumber(now))
}
