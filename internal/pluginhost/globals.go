package pluginhost

import (
	hclog "github.com/hashicorp/go-hclog"
	lua "github.com/yuin/gopher-lua"

	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
)

// busTypeConstants mirrors the handful of Linux BUS_* constants the
// original's evdev table exposes; this is not the exhaustive kernel list,
// only the bus types any example device in this pipeline's tests or quirks
// actually names.
var busTypeConstants = map[string]int{
	"BUS_PCI":       0x01,
	"BUS_USB":       0x03,
	"BUS_BLUETOOTH": 0x05,
	"BUS_VIRTUAL":   0x06,
	"BUS_I2C":       0x18,
	"BUS_SPI":       0x1c,
}

// buildEvdevTable builds the `evdev` global: every named usage this
// package knows about, keyed by its kernel name and holding its packed
// 32-bit value, plus the bus-type constants.
func buildEvdevTable(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	for usage, name := range evdev.UsageNames() {
		tbl.RawSetString(name, lua.LNumber(uint32(usage)))
	}
	for name, v := range busTypeConstants {
		tbl.RawSetString(name, lua.LNumber(v))
	}
	// evdev.usage(type, code) covers any (type, code) pair this package
	// doesn't name, mirroring the original's
	// libinput_evdev_usage_from_code fallback.
	tbl.RawSetString("usage", L.NewFunction(func(L *lua.LState) int {
		evType := uint16(L.CheckNumber(1))
		code := uint16(L.CheckNumber(2))
		L.Push(lua.LNumber(uint32(evdev.NewUsage(evType, code))))
		return 1
	}))
	return tbl
}

func buildLogTable(L *lua.LState, log hclog.Logger, sp *scriptPlugin) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("debug", L.NewFunction(func(L *lua.LState) int {
		log.Debug(L.CheckString(1))
		return 0
	}))
	tbl.RawSetString("info", L.NewFunction(func(L *lua.LState) int {
		log.Info(L.CheckString(1))
		return 0
	}))
	tbl.RawSetString("error", L.NewFunction(func(L *lua.LState) int {
		log.Error(L.CheckString(1))
		sp.noteScriptError()
		return 0
	}))
	return tbl
}

func buildLibinputTable(L *lua.LState, sp *scriptPlugin) *lua.LTable {
	tbl := L.NewTable()

	tbl.RawSetString("now", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(sp.now))
		return 1
	}))
	tbl.RawSetString("version", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(supportedAPIVersion))
		return 1
	}))
	tbl.RawSetString("register", L.NewFunction(func(L *lua.LState) int {
		if sp.registered {
			L.RaiseError("libinput.register: called more than once")
		}
		versions := L.CheckTable(1)
		ok := false
		for i := 1; i <= versions.Len(); i++ {
			if s, isStr := versions.RawGetInt(i).(lua.LString); isStr && string(s) == supportedAPIVersion {
				ok = true
				break
			}
		}
		if !ok {
			L.RaiseError("libinput.register: no supported API version in request (have %s)", supportedAPIVersion)
		}
		sp.registered = true
		return 0
	}))
	tbl.RawSetString("unregister", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError(unregisteringSentinel)
		return 0
	}))
	tbl.RawSetString("connect", L.NewFunction(func(L *lua.LState) int {
		signal := L.CheckString(1)
		fn := L.CheckFunction(2)
		switch signal {
		case "new-evdev-device":
			sp.newDeviceHandler = fn
		case "timer-expired":
			sp.timerExpiredHandler = fn
		default:
			L.RaiseError("libinput.connect: unknown signal %q", signal)
		}
		return 0
	}))
	tbl.RawSetString("timer_set_absolute", L.NewFunction(func(L *lua.LState) int {
		t := uint64(L.CheckNumber(1))
		sp.requireDeviceContext(L, "timer_set_absolute").Set(t)
		return 0
	}))
	tbl.RawSetString("timer_set_relative", L.NewFunction(func(L *lua.LState) int {
		d := uint64(L.CheckNumber(1))
		sp.requireDeviceContext(L, "timer_set_relative").Set(sp.now + d)
		return 0
	}))
	tbl.RawSetString("timer_cancel", L.NewFunction(func(L *lua.LState) int {
		sp.requireDeviceContext(L, "timer_cancel").Cancel()
		return 0
	}))

	return tbl
}

// requireDeviceContext resolves (creating if needed) the timer for
// whichever device's callback is currently executing, raising a Lua error
// if none is active.
func (sp *scriptPlugin) requireDeviceContext(L *lua.LState, fn string) interface {
	Set(uint64)
	Cancel()
} {
	if sp.curQueue == nil {
		L.RaiseError("libinput.%s: no device callback is active", fn)
	}
	return sp.deviceTimer(sp.curQueue.device)
}
