// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/addonhost/internal/addon"
)

// errorNames maps error codes to the names scripts see in error.code.
var errorNames = map[string]string{
	addon.CodeNotFound:          "NotFound",
	addon.CodeLoadFailure:       "LoadFailure",
	addon.CodeAlreadyLoaded:     "AlreadyLoaded",
	addon.CodeMalformedModule:   "MalformedModule",
	addon.CodeUnknownCapability: "UnknownCapability",
	addon.CodeTypeMismatch:      "TypeMismatch",
	addon.CodeNativeError:       "NativeError",
	addon.CodeInvalidHandle:     "InvalidHandle",
	addon.CodeBusy:              "Busy",
	addon.CodeUnloading:         "AddonUnloading",
}

// ErrorName returns the script-visible name for an error code.
func ErrorName(code string) string {
	if name, ok := errorNames[code]; ok {
		return name
	}
	return "Error"
}

// errorContextKeys are the oops context entries copied into error tables.
var errorContextKeys = []string{"addon", "capability", "index", "expected", "actual", "detail", "event"}

const errorMetatable = "addonhost.error"

func registerErrorType(L *lua.LState) {
	mt := L.NewTypeMetatable(errorMetatable)
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		L.Push(lua.LString(fmt.Sprintf("%s: %s", tbl.RawGetString("code").String(), tbl.RawGetString("message").String())))
		return 1
	}))
}

// errorTable builds the table raised for err: {code, message, ...context}.
func errorTable(L *lua.LState, err error) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("code", lua.LString(ErrorName(addon.Code(err))))

	msg := err.Error()
	if oopsErr, ok := oops.AsOops(err); ok {
		msg = oopsErr.Error()
		ctx := oopsErr.Context()
		for _, key := range errorContextKeys {
			if v, ok := ctx[key]; ok {
				tbl.RawSetString(key, toLua(L, v))
			}
		}
	}
	tbl.RawSetString("message", lua.LString(msg))
	L.SetMetatable(tbl, L.GetTypeMetatable(errorMetatable))
	return tbl
}

// raise throws err into the running script as a catchable error table.
func raise(L *lua.LState, err error) int {
	L.Error(errorTable(L, err), 1)
	return 0
}

// ScriptError is returned when a script fails outside any protected call.
type ScriptError struct {
	// Code is the script-visible error name, or "" for plain Lua errors.
	Code    string
	Message string
	Err     error
}

func (e *ScriptError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func (e *ScriptError) Unwrap() error { return e.Err }

// scriptError converts an error from a protected Lua call.
func scriptError(err error) error {
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return err
	}
	se := &ScriptError{Message: apiErr.Error(), Err: err}
	if tbl, ok := apiErr.Object.(*lua.LTable); ok {
		if code, ok := tbl.RawGetString("code").(lua.LString); ok {
			se.Code = string(code)
		}
		if msg, ok := tbl.RawGetString("message").(lua.LString); ok {
			se.Message = string(msg)
		}
	} else if apiErr.Object != nil && apiErr.Object != lua.LNil {
		se.Message = apiErr.Object.String()
	}
	return se
}
