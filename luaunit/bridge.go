package luaunit

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/logicflow/action"
)

// actionToLua converts an action into a Lua table with type, payload,
// meta, and err fields.
func actionToLua(L *lua.LState, a action.Action) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("type", lua.LString(a.Type))
	t.RawSetString("payload", goToLua(L, a.Payload))
	if len(a.Meta) > 0 {
		meta := L.NewTable()
		for k, v := range a.Meta {
			meta.RawSetString(k, goToLua(L, v))
		}
		t.RawSetString("meta", meta)
	}
	if a.Err {
		t.RawSetString("err", lua.LTrue)
	}
	return t
}

// luaToAction converts a Lua value into an action. Nil or a table
// without a type field yields the zero action.
func luaToAction(lv lua.LValue) action.Action {
	t, ok := lv.(*lua.LTable)
	if !ok {
		return action.Action{}
	}

	var a action.Action
	if typ, ok := t.RawGetString("type").(lua.LString); ok {
		a.Type = string(typ)
	}
	a.Payload = luaToGo(t.RawGetString("payload"))
	if meta, ok := t.RawGetString("meta").(*lua.LTable); ok {
		m := make(map[string]any)
		meta.ForEach(func(k, v lua.LValue) {
			m[k.String()] = luaToGo(v)
		})
		a.Meta = m
	}
	if b, ok := t.RawGetString("err").(lua.LBool); ok {
		a.Err = bool(b)
	}
	return a
}

// goToLua converts a Go value into a Lua value.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case error:
		return lua.LString(val.Error())
	case []any:
		arr := L.NewTable()
		for i, item := range val {
			arr.RawSetInt(i+1, goToLua(L, item))
		}
		return arr
	case map[string]any:
		t := L.NewTable()
		for k, item := range val {
			t.RawSetString(k, goToLua(L, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaToGo converts a Lua value into a Go value. Tables with contiguous
// integer keys become slices; other tables become maps. Functions and
// userdata convert to nil.
func luaToGo(lv lua.LValue) any {
	return luaToGoVisited(lv, make(map[*lua.LTable]bool))
}

func luaToGoVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		return tableToGo(v, visited)
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

// tableToGo converts a table into a slice or a map.
func tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	isArray := true
	maxN := 0
	count := 0
	t.ForEach(func(k, _ lua.LValue) {
		count++
		kn, ok := k.(lua.LNumber)
		if !ok {
			isArray = false
			return
		}
		n := int(kn)
		if float64(n) != float64(kn) || n < 1 {
			isArray = false
			return
		}
		if n > maxN {
			maxN = n
		}
	})

	if isArray && maxN > 0 && count == maxN {
		arr := make([]any, maxN)
		for i := 1; i <= maxN; i++ {
			arr[i-1] = luaToGoVisited(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = luaToGoVisited(v, visited)
	})
	return m
}
