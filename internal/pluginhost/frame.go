package pluginhost

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
)

// maxScriptFrameEvents bounds how many {usage, value} records a script's
// returned/injected frame table may hold, matching the original's
// lua_pop_evdev_frame fixed-size array (it used 64).
const maxScriptFrameEvents = 64

// pushFrame builds the {usage=.., value=..} array lua_push_evdev_frame
// hands to a script's evdev-frame handler. The trailing SYN_REPORT is
// never included; scripts only ever see the payload.
func pushFrame(L *lua.LState, f *evdev.Frame) *lua.LTable {
	tbl := L.NewTable()
	for _, e := range f.Payload() {
		rec := L.NewTable()
		rec.RawSetString("usage", lua.LNumber(uint32(e.Usage)))
		rec.RawSetString("value", lua.LNumber(e.Value))
		tbl.Append(rec)
	}
	return tbl
}

// popFrame parses a value a script returned or passed to
// inject_frame/prepend_frame/append_frame back into a Frame. A nil value
// means "no frame" (the caller decides what that means for its call site);
// a table with no entries produces a SYN_REPORT-only frame, matching the
// original's behaviour for an empty returned table. A non-table,
// non-nil value is a malformed return and is reported as an error rather
// than silently ignored.
func popFrame(v lua.LValue, t uint64) (*evdev.Frame, bool, error) {
	if v == lua.LNil || v == nil {
		return nil, false, nil
	}
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, false, errMalformedFrame
	}

	var events []evdev.Event
	n := tbl.Len()
	if n > maxScriptFrameEvents {
		n = maxScriptFrameEvents
	}
	for i := 1; i <= n; i++ {
		rec, ok := tbl.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, false, errMalformedFrame
		}
		usage, ok := rec.RawGetString("usage").(lua.LNumber)
		if !ok {
			return nil, false, errMalformedFrame
		}
		value, ok := rec.RawGetString("value").(lua.LNumber)
		if !ok {
			return nil, false, errMalformedFrame
		}
		events = append(events, evdev.Event{Usage: evdev.Usage(uint32(usage)), Value: int32(value)})
	}

	f := evdev.NewFrame(maxScriptFrameEvents + 1)
	if err := f.Set(events, t); err != nil {
		return nil, false, err
	}
	return f, true, nil
}
