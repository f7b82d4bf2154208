package pluginhost

import (
	"errors"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
)

var errMalformedFrame = errors.New("pluginhost: malformed frame table")

// absOverride is this host's shadow absinfo: the device model underlying
// this pipeline carries no per-axis resolution/min/max (unlike the
// original's struct libevdev_absinfo), so set_absinfo/absinfos() operate on
// a script-local table rather than a real device property.
type absOverride struct {
	minimum, maximum, fuzz, flat, resolution int32
}

// luaDevice is the per-device userdata exposed to scripts as the argument
// to a "new-evdev-device" handler: the original's EvdevDevice object.
type luaDevice struct {
	sp       *scriptPlugin
	d        *device.Device
	handlers map[string]*lua.LFunction
	abs      map[evdev.Usage]absOverride
}

const luaDeviceTypeName = "EvdevDevice"

func registerDeviceType(L *lua.LState) {
	mt := L.NewTypeMetatable(luaDeviceTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"info":               ldInfo,
		"name":               ldName,
		"usages":             ldUsages,
		"absinfos":           ldAbsinfos,
		"udev_properties":    ldUdevProperties,
		"enable_evdev_usage": ldEnableUsage,
		"disable_evdev_usage": ldDisableUsage,
		"set_absinfo":        ldSetAbsinfo,
		"connect":            ldConnect,
		"disconnect":         ldDisconnect,
		"inject_frame":       ldInjectFrame,
		"prepend_frame":      ldPrependFrame,
		"append_frame":       ldAppendFrame,
	}))
}

func pushLuaDevice(L *lua.LState, ld *luaDevice) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = ld
	L.SetMetatable(ud, L.GetTypeMetatable(luaDeviceTypeName))
	return ud
}

func checkLuaDevice(L *lua.LState) *luaDevice {
	ud := L.CheckUserData(1)
	ld, ok := ud.Value.(*luaDevice)
	if !ok {
		L.RaiseError("not an EvdevDevice")
	}
	return ld
}

func ldInfo(L *lua.LState) int {
	ld := checkLuaDevice(L)
	id := ld.d.Identity()
	tbl := L.NewTable()
	tbl.RawSetString("bustype", lua.LNumber(id.BusType))
	tbl.RawSetString("vendor", lua.LNumber(id.Vendor))
	tbl.RawSetString("product", lua.LNumber(id.Product))
	tbl.RawSetString("version", lua.LNumber(id.Version))
	L.Push(tbl)
	return 1
}

func ldName(L *lua.LState) int {
	ld := checkLuaDevice(L)
	L.Push(lua.LString(ld.d.Name()))
	return 1
}

func ldUsages(L *lua.LState) int {
	ld := checkLuaDevice(L)
	tbl := L.NewTable()
	for _, u := range ld.d.Capabilities() {
		tbl.RawSetInt(int(uint32(u)), lua.LTrue)
	}
	L.Push(tbl)
	return 1
}

func ldAbsinfos(L *lua.LState) int {
	ld := checkLuaDevice(L)
	tbl := L.NewTable()
	for usage, a := range ld.abs {
		entry := L.NewTable()
		entry.RawSetString("minimum", lua.LNumber(a.minimum))
		entry.RawSetString("maximum", lua.LNumber(a.maximum))
		entry.RawSetString("fuzz", lua.LNumber(a.fuzz))
		entry.RawSetString("flat", lua.LNumber(a.flat))
		entry.RawSetString("resolution", lua.LNumber(a.resolution))
		tbl.RawSetInt(int(uint32(usage)), entry)
	}
	L.Push(tbl)
	return 1
}

// ldUdevProperties mirrors the original's filter: only ID_INPUT_* prefixed
// properties are visible to scripts, and the physical-size properties are
// always excluded.
func ldUdevProperties(L *lua.LState) int {
	ld := checkLuaDevice(L)
	tbl := L.NewTable()
	keys := make([]string, 0)
	props := ld.d.Properties()
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !strings.HasPrefix(k, "ID_INPUT_") {
			continue
		}
		if strings.HasSuffix(k, "_WIDTH_MM") || strings.HasSuffix(k, "_HEIGHT_MM") {
			continue
		}
		tbl.RawSetString(k, lua.LString(props[k]))
	}
	L.Push(tbl)
	return 1
}

func ldEnableUsage(L *lua.LState) int {
	ld := checkLuaDevice(L)
	usage := evdev.Usage(uint32(L.CheckNumber(2)))
	if err := ld.d.EnableUsage(usage); err != nil {
		L.RaiseError("enable_evdev_usage: %v", err)
	}
	return 0
}

func ldDisableUsage(L *lua.LState) int {
	ld := checkLuaDevice(L)
	usage := evdev.Usage(uint32(L.CheckNumber(2)))
	if err := ld.d.DisableUsage(usage); err != nil {
		L.RaiseError("disable_evdev_usage: %v", err)
	}
	return 0
}

func ldSetAbsinfo(L *lua.LState) int {
	ld := checkLuaDevice(L)
	usage := evdev.Usage(uint32(L.CheckNumber(2)))
	tbl := L.CheckTable(3)
	a := absOverride{
		minimum:    int32(lua.LVAsNumber(tbl.RawGetString("minimum"))),
		maximum:    int32(lua.LVAsNumber(tbl.RawGetString("maximum"))),
		fuzz:       int32(lua.LVAsNumber(tbl.RawGetString("fuzz"))),
		flat:       int32(lua.LVAsNumber(tbl.RawGetString("flat"))),
		resolution: int32(lua.LVAsNumber(tbl.RawGetString("resolution"))),
	}
	if ld.abs == nil {
		ld.abs = make(map[evdev.Usage]absOverride)
	}
	ld.abs[usage] = a
	return 0
}

func ldConnect(L *lua.LState) int {
	ld := checkLuaDevice(L)
	signal := L.CheckString(2)
	fn := L.CheckFunction(3)
	switch signal {
	case "device-removed", "evdev-frame":
	default:
		L.RaiseError("device:connect: unknown signal %q", signal)
	}
	if ld.handlers == nil {
		ld.handlers = make(map[string]*lua.LFunction)
	}
	ld.handlers[signal] = fn
	if signal == "evdev-frame" {
		ld.sp.p.OptIn(ld.d.ID())
	}
	return 0
}

func ldDisconnect(L *lua.LState) int {
	ld := checkLuaDevice(L)
	signal := L.CheckString(2)
	delete(ld.handlers, signal)
	if signal == "evdev-frame" {
		ld.sp.p.OptOut(ld.d.ID())
	}
	return 0
}

// ldInjectFrame is only valid from within a timer-expired callback: the
// original restricts inject_frame to that context because injecting
// straight back into the Lua call stack mid evdev-frame handler is unsafe.
// Here that restriction maps onto whether the active queue context is a
// pipeline.TimerQueue.
func ldInjectFrame(L *lua.LState) int {
	ld := checkLuaDevice(L)
	tbl := L.CheckAny(2)
	ctx := ld.sp.curQueue
	if ctx == nil || ctx.timerQueue == nil {
		L.RaiseError("inject_frame is only valid inside a timer-expired callback")
	}
	f, ok, err := popFrame(tbl, ld.sp.now)
	if err != nil {
		L.RaiseError("inject_frame: %v", err)
	}
	if ok {
		ctx.timerQueue.Inject(f)
	}
	return 0
}

func ldPrependFrame(L *lua.LState) int {
	ld := checkLuaDevice(L)
	tbl := L.CheckAny(2)
	f, ok, err := popFrame(tbl, ld.sp.now)
	if err != nil {
		L.RaiseError("prepend_frame: %v", err)
	}
	if !ok {
		return 0
	}
	ctx := ld.sp.curQueue
	switch {
	case ctx == nil:
		L.RaiseError("prepend_frame called outside a device callback")
	case ctx.frameQueue != nil:
		ctx.frameQueue.Prepend(f)
	case ctx.timerQueue != nil:
		ctx.timerQueue.Prepend(f)
	}
	return 0
}

func ldAppendFrame(L *lua.LState) int {
	ld := checkLuaDevice(L)
	tbl := L.CheckAny(2)
	f, ok, err := popFrame(tbl, ld.sp.now)
	if err != nil {
		L.RaiseError("append_frame: %v", err)
	}
	if !ok {
		return 0
	}
	ctx := ld.sp.curQueue
	switch {
	case ctx == nil:
		L.RaiseError("append_frame called outside a device callback")
	case ctx.frameQueue != nil:
		ctx.frameQueue.Append(f)
	case ctx.timerQueue != nil:
		ctx.timerQueue.Append(f)
	}
	return 0
}

// queueContext tracks which pipeline queue (if any) is active for the
// duration of a single Lua callback invocation, so device methods called
// from within that callback know where a frame they build should go.
type queueContext struct {
	frameQueue *pipeline.Queue
	timerQueue *pipeline.TimerQueue
	device     device.ID
}
