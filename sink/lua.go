package sink

import (
	"crypto/sha1"
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/raniellyferreira/redis-event-stream/replication"
)

// LuaFilter decides per event with a Lua script. The script sees KEYS
// (the event keys), ARGV (the command arguments after the name) and EVENT
// (kind, name, db, offset); a truthy return value lets the event through.
//
//	return EVENT.db == 0 and string.sub(KEYS[1] or "", 1, 5) == "user:"
type LuaFilter struct {
	next  replication.Handler
	proto *lua.FunctionProto
	sha   string

	mu sync.Mutex
	L  *lua.LState
}

// NewLuaFilter compiles script and puts the filter in front of next
func NewLuaFilter(next replication.Handler, script string) (*LuaFilter, error) {
	chunk, err := parse.Parse(strings.NewReader(script), "filter")
	if err != nil {
		return nil, fmt.Errorf("script parse error: %w", err)
	}
	proto, err := lua.Compile(chunk, "filter")
	if err != nil {
		return nil, fmt.Errorf("script compile error: %w", err)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	return &LuaFilter{
		next:  next,
		proto: proto,
		sha:   fmt.Sprintf("%x", sha1.Sum([]byte(script))),
		L:     L,
	}, nil
}

// SHA returns the SHA1 of the script, as SCRIPT LOAD would
func (f *LuaFilter) SHA() string { return f.sha }

// Handle implements replication.Handler
func (f *LuaFilter) Handle(ev replication.Event) error {
	ok, err := f.Allow(ev)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return f.next.Handle(ev)
}

// Allow runs the script for ev
func (f *LuaFilter) Allow(ev replication.Event) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	L := f.L
	f.setupEventAPI(L, ev)

	L.Push(L.NewFunctionFromProto(f.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		return false, fmt.Errorf("script execution error: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret), nil
}

// Close releases the Lua state
func (f *LuaFilter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.L.Close()
}

// setupEventAPI exposes ev to the script as globals
func (f *LuaFilter) setupEventAPI(L *lua.LState, ev replication.Event) {
	keysTable := L.NewTable()
	for i, key := range ev.Keys() {
		keysTable.RawSetInt(i+1, lua.LString(key)) // Lua arrays are 1-indexed
	}
	L.SetGlobal("KEYS", keysTable)

	argvTable := L.NewTable()
	if len(ev.Args) > 1 {
		for i, arg := range ev.Args[1:] {
			argvTable.RawSetInt(i+1, lua.LString(arg))
		}
	}
	L.SetGlobal("ARGV", argvTable)

	event := L.NewTable()
	event.RawSetString("kind", lua.LString(ev.Kind.String()))
	event.RawSetString("name", lua.LString(ev.Name()))
	event.RawSetString("db", lua.LNumber(ev.DB))
	event.RawSetString("offset", lua.LNumber(ev.Offset))
	L.SetGlobal("EVENT", event)
}
