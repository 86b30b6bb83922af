// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addon

import (
	"errors"

	"github.com/samber/oops"

	"github.com/holomush/addonhost/pkg/addonapi"
)

// Error codes attached to every error returned by this package.
const (
	CodeNotFound          = "ADDON_NOT_FOUND"
	CodeLoadFailure       = "ADDON_LOAD_FAILURE"
	CodeAlreadyLoaded     = "ADDON_ALREADY_LOADED"
	CodeMalformedModule   = "ADDON_MALFORMED"
	CodeUnknownCapability = "ADDON_UNKNOWN_CAPABILITY"
	CodeTypeMismatch      = "ADDON_TYPE_MISMATCH"
	CodeNativeError       = "ADDON_NATIVE_ERROR"
	CodeInvalidHandle     = "ADDON_INVALID_HANDLE"
	CodeBusy              = "ADDON_BUSY"
	CodeUnloading         = "ADDON_UNLOADING"
)

// Code returns the error code carried by err, or "" if it has none.
func Code(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok {
			return code
		}
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && Code(err) == code
}

// LoadTime reports whether err is a load-time failure. Those are reported to
// scripts as a nil result rather than raised.
func LoadTime(err error) bool {
	switch Code(err) {
	case CodeNotFound, CodeLoadFailure, CodeMalformedModule, CodeAlreadyLoaded:
		return true
	default:
		return false
	}
}

func errorf(code string) oops.OopsErrorBuilder {
	return oops.In("addon").Code(code)
}

func malformed(name string) oops.OopsErrorBuilder {
	return errorf(CodeMalformedModule).With("addon", name)
}

func typeMismatch(c *Capability, index int, expected addonapi.Type, actual any) error {
	return errorf(CodeTypeMismatch).
		With("addon", c.addonName).
		With("capability", c.Name).
		With("index", index).
		With("expected", string(expected)).
		With("actual", addonapi.Describe(actual)).
		Errorf("argument %d: expected %s, got %s", index, expected, addonapi.Describe(actual))
}

func nativeError(addonName, capability string, cause error) error {
	detail := "native call failed"
	if cause != nil {
		detail = cause.Error()
	}
	return errorf(CodeNativeError).
		With("addon", addonName).
		With("capability", capability).
		With("detail", detail).
		Errorf("%s.%s: %s", addonName, capability, detail)
}

// NativeFailure is returned by a Module when the addon itself signals a failure,
// as opposed to a transport or host error.
type NativeFailure struct {
	Detail string
}

func (e *NativeFailure) Error() string { return e.Detail }

// IsNativeFailure reports whether err wraps a NativeFailure.
func IsNativeFailure(err error) bool {
	var nf *NativeFailure
	return errors.As(err, &nf)
}
