// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/pkg/addonapi"
)

const objectMetatable = "addonhost.addon"

// objectRef is the value behind an addon object or one of its nested
// namespaces.
type objectRef struct {
	addon  *addon.Addon
	prefix string
}

func (o *objectRef) qualify(key string) string {
	if o.prefix == "" {
		return key
	}
	return o.prefix + "." + key
}

func (r *Runtime) registerObjectType(L *lua.LState) {
	mt := L.NewTypeMetatable(objectMetatable)
	L.SetField(mt, "__index", L.NewFunction(r.objectIndex))
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("addon objects are read-only")
		return 0
	}))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		ref := checkObject(L, 1)
		if ref.prefix != "" {
			L.Push(lua.LString(fmt.Sprintf("addon<%s>.%s", ref.addon.Name(), ref.prefix)))
		} else {
			L.Push(lua.LString(fmt.Sprintf("addon<%s@%s>", ref.addon.Name(), ref.addon.Version())))
		}
		return 1
	}))
}

// object returns the userdata for a, reusing it across loads of the same
// path.
func (r *Runtime) object(L *lua.LState, a *addon.Addon) *lua.LUserData {
	if ud, ok := r.objects[a.Path()]; ok {
		if ref, ok := ud.Value.(*objectRef); ok && ref.addon == a {
			return ud
		}
	}
	ud := r.newObject(L, &objectRef{addon: a})
	r.objects[a.Path()] = ud
	return ud
}

func (r *Runtime) newObject(L *lua.LState, ref *objectRef) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = ref
	L.SetMetatable(ud, L.GetTypeMetatable(objectMetatable))
	return ud
}

func checkObject(L *lua.LState, n int) *objectRef {
	ud := L.CheckUserData(n)
	ref, ok := ud.Value.(*objectRef)
	if !ok {
		L.ArgError(n, "addon object expected")
		return nil
	}
	return ref
}

// objectIndex resolves obj[key]: capabilities first, then nested
// namespaces, then the built-in members of the root object.
func (r *Runtime) objectIndex(L *lua.LState) int {
	ref := checkObject(L, 1)
	key := L.CheckString(2)
	name := ref.qualify(key)
	a := ref.addon

	c, lookupErr := a.Lookup(name)
	if lookupErr == nil {
		switch c.Kind {
		case addonapi.KindProperty:
			v, err := a.Get(name)
			if err != nil {
				return raise(L, err)
			}
			L.Push(toLua(L, v))
		case addonapi.KindTask:
			L.Push(L.NewFunction(r.taskProxy(ref, name)))
		default:
			L.Push(L.NewFunction(r.functionProxy(ref, name)))
		}
		return 1
	}

	if a.Binding().IsNamespace(name) {
		L.Push(r.newObject(L, &objectRef{addon: a, prefix: name}))
		return 1
	}

	if ref.prefix == "" {
		switch key {
		case "onEvent":
			L.Push(L.NewFunction(r.onEvent(ref)))
			return 1
		case "name":
			L.Push(lua.LString(a.Name()))
			return 1
		case "path":
			L.Push(lua.LString(a.Path()))
			return 1
		case "version":
			L.Push(lua.LString(a.Version()))
			return 1
		}
	}
	return raise(L, lookupErr)
}

// firstArg skips the receiver when a proxy is called with method syntax.
func firstArg(L *lua.LState, ref *objectRef) int {
	if ud, ok := L.Get(1).(*lua.LUserData); ok {
		if self, ok := ud.Value.(*objectRef); ok && self.addon == ref.addon {
			return 2
		}
	}
	return 1
}

func argsFrom(L *lua.LState, from, to int) []any {
	if to < from {
		return nil
	}
	args := make([]any, 0, to-from+1)
	for i := from; i <= to; i++ {
		args = append(args, toGo(L.Get(i)))
	}
	return args
}

func (r *Runtime) functionProxy(ref *objectRef, name string) lua.LGFunction {
	return func(L *lua.LState) int {
		args := argsFrom(L, firstArg(L, ref), L.GetTop())
		result, err := ref.addon.Call(r.ctx, name, args...)
		if err != nil {
			return raise(L, err)
		}
		L.Push(toLua(L, result))
		return 1
	}
}

// taskProxy starts a task. The callback is the last argument; the
// returned function stops delivery to it.
func (r *Runtime) taskProxy(ref *objectRef, name string) lua.LGFunction {
	return func(L *lua.LState) int {
		from, top := firstArg(L, ref), L.GetTop()
		fn, ok := L.Get(top).(*lua.LFunction)
		if top < from || !ok {
			return raiseCode(L, "TypeMismatch", fmt.Sprintf("%s.%s expects a callback as its last argument", ref.addon.Name(), name))
		}

		reg, err := ref.addon.Start(r.ctx, name, r.callback(fn), argsFrom(L, from, top-1)...)
		if err != nil {
			return raise(L, err)
		}
		L.Push(r.offFunction(L, ref.addon, reg))
		return 1
	}
}

// onEvent implements obj.onEvent([event,] callback).
func (r *Runtime) onEvent(ref *objectRef) lua.LGFunction {
	return func(L *lua.LState) int {
		from := firstArg(L, ref)
		event := ""
		var fn *lua.LFunction
		switch L.GetTop() - from + 1 {
		case 1:
			fn = L.CheckFunction(from)
		case 2:
			event = L.CheckString(from)
			fn = L.CheckFunction(from + 1)
		default:
			L.RaiseError("onEvent expects ([event,] callback)")
			return 0
		}

		reg, err := ref.addon.OnEvent(event, r.callback(fn))
		if err != nil {
			return raise(L, err)
		}
		L.Push(r.offFunction(L, ref.addon, reg))
		return 1
	}
}

func (r *Runtime) offFunction(L *lua.LState, a *addon.Addon, reg *addon.Registration) *lua.LFunction {
	r.registrations[reg] = a
	return L.NewFunction(func(L *lua.LState) int {
		a.Off(reg)
		delete(r.registrations, reg)
		return 0
	})
}

// callback adapts a Lua function to an event callback. It runs on the
// scripting goroutine when the event bridge is drained.
func (r *Runtime) callback(fn *lua.LFunction) addon.Callback {
	return func(payload any) error {
		L := r.L
		if L == nil {
			return nil
		}
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, toLua(L, payload)); err != nil {
			return scriptError(err)
		}
		return nil
	}
}

// raiseCode throws an error table that does not originate from the addon
// layer.
func raiseCode(L *lua.LState, code, message string) int {
	tbl := L.NewTable()
	tbl.RawSetString("code", lua.LString(code))
	tbl.RawSetString("message", lua.LString(message))
	L.SetMetatable(tbl, L.GetTypeMetatable(errorMetatable))
	L.Error(tbl, 1)
	return 0
}
