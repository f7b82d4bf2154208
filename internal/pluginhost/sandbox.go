// Package pluginhost implements the sandboxed scripted plugin host (§4.10):
// Lua scripts are loaded as ordinary pipeline plugins, given a restricted
// global environment, and can subscribe to device and frame signals through
// a small `libinput`/per-device API surface instead of Go code.
package pluginhost

import (
	lua "github.com/yuin/gopher-lua"
)

// baseAllow is the subset of the base library a sandboxed script keeps,
// matching the original's allowed-globals list in
// libinput_lua_plugin_init_lua: assert, error, ipairs, next, pcall, pairs,
// print, tonumber, tostring, type, unpack, xpcall. Everything else OpenBase
// registers (loadstring, dofile, require, setmetatable, rawset, ...) is
// stripped back out immediately after opening the library, since
// gopher-lua has no equivalent of the original's per-function setfenv
// trick; isolation here instead comes from every script owning its own
// *lua.LState with only these libraries opened.
var baseAllow = map[string]bool{
	"assert":   true,
	"error":    true,
	"ipairs":   true,
	"next":     true,
	"pcall":    true,
	"pairs":    true,
	"print":    true,
	"tonumber": true,
	"tostring": true,
	"type":     true,
	"unpack":   true,
	"xpcall":   true,
}

// newSandboxState creates a fresh Lua state with only base (trimmed),
// math, string and table opened. No io, os, debug, package or coroutine
// library is ever loaded, so a script has no filesystem or process access.
func newSandboxState() (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	openers := []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, o := range openers {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(o.fn), NRet: 0, Protect: true}, lua.LString(o.name)); err != nil {
			L.Close()
			return nil, err
		}
	}

	keep := map[string]bool{lua.TabLibName: true, lua.StringLibName: true, lua.MathLibName: true}
	var toStrip []string
	L.G.Global.ForEach(func(k, _ lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok {
			return
		}
		if !baseAllow[string(name)] && !keep[string(name)] {
			toStrip = append(toStrip, string(name))
		}
	})
	for _, name := range toStrip {
		L.SetGlobal(name, lua.LNil)
	}

	return L, nil
}
