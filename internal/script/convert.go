// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// toGo converts a Lua value to the host's value model.
func toGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	case *lua.LTable:
		if isArray(val) {
			return tableToSlice(val)
		}
		return tableToMap(val)
	case *lua.LNilType:
		return nil
	default:
		return opaque{v}
	}
}

// opaque carries a Lua value with no host representation, such as a
// function, so type checks can name it.
type opaque struct {
	lua.LValue
}

// TypeName implements addonapi.TypeNamer.
func (o opaque) TypeName() string { return o.Type().String() }

// isArray reports whether tbl has only the keys 1..n. The empty table is
// an array.
func isArray(tbl *lua.LTable) bool {
	n := tbl.MaxN()
	count := 0
	tbl.ForEach(func(_, _ lua.LValue) { count++ })
	return count == n
}

func tableToSlice(tbl *lua.LTable) []any {
	n := tbl.MaxN()
	out := make([]any, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, toGo(tbl.RawGetInt(i)))
	}
	return out
}

func tableToMap(tbl *lua.LTable) map[string]any {
	out := make(map[string]any)
	tbl.ForEach(func(k, v lua.LValue) {
		out[k.String()] = toGo(v)
	})
	return out
}

// toLua converts a host value to a Lua value.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case opaque:
		return val.LValue
	case lua.LValue:
		return val
	case string:
		return lua.LString(val)
	case float64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case bool:
		return lua.LBool(val)
	case []any:
		tbl := L.CreateTable(len(val), 0)
		for _, e := range val {
			tbl.Append(toLua(L, e))
		}
		return tbl
	case []string:
		tbl := L.CreateTable(len(val), 0)
		for _, e := range val {
			tbl.Append(lua.LString(e))
		}
		return tbl
	case map[string]any:
		tbl := L.CreateTable(0, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tbl.RawSetString(k, toLua(L, val[k]))
		}
		return tbl
	default:
		return lua.LNil
	}
}
