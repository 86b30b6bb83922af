// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package addonapi defines the capability description exchanged between the
// host and an addon at bind time.
//
// The description is JSON-encoded at every module boundary, whether the addon
// is a native shared library or a go-plugin executable.
package addonapi

import (
	"encoding/json"
	"fmt"
)

// ABIVersion is the descriptor format version produced by this package.
const ABIVersion = "1.0"

// DefaultEvent is the event stream used when no event name is given.
const DefaultEvent = "default"

// Type is a semantic value type.
type Type string

// Semantic types understood by the host.
const (
	TypeNumber Type = "number"
	TypeString Type = "string"
	TypeBool   Type = "bool"
	TypeArray  Type = "array"
	TypeObject Type = "object"
	TypeAny    Type = "any"
	// TypeVoid is only valid as a return type.
	TypeVoid Type = "void"
)

// Valid reports whether t is a known type usable as a parameter.
func (t Type) Valid() bool {
	switch t {
	case TypeNumber, TypeString, TypeBool, TypeArray, TypeObject, TypeAny:
		return true
	default:
		return false
	}
}

// Kind tags a capability.
type Kind string

// Capability kinds.
const (
	KindFunction Kind = "function"
	KindProperty Kind = "property"
	// KindTask starts background work that emits on an event stream.
	KindTask Kind = "task"
)

// Capability describes one exported function, property, or task.
type Capability struct {
	Name    string `json:"name" yaml:"name" jsonschema:"minLength=1"`
	Kind    Kind   `json:"kind" yaml:"kind" jsonschema:"enum=function,enum=property,enum=task"`
	Params  []Type `json:"params,omitempty" yaml:"params,omitempty"`
	Returns Type   `json:"returns,omitempty" yaml:"returns,omitempty"`
	// Value holds the static value of a property.
	Value any `json:"value,omitempty" yaml:"value,omitempty"`
	// Event names the stream a task emits on.
	Event string `json:"event,omitempty" yaml:"event,omitempty"`
	// Symbol overrides the native symbol name of a function or task.
	Symbol string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
}

// Descriptor is the static description returned by an addon's entry point.
type Descriptor struct {
	ABI          string       `json:"abi" yaml:"abi" jsonschema:"minLength=1"`
	Name         string       `json:"name" yaml:"name" jsonschema:"minLength=1"`
	Version      string       `json:"version" yaml:"version" jsonschema:"minLength=1"`
	Capabilities []Capability `json:"capabilities" yaml:"capabilities"`
	Events       []string     `json:"events,omitempty" yaml:"events,omitempty"`
}

// Encode marshals the descriptor for the wire.
func (d *Descriptor) Encode() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}
	return data, nil
}

// Decode parses a descriptor from its wire form. It does not validate.
func Decode(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	return &d, nil
}

// TypeOf returns the semantic type of a scripting value.
// Values outside the supported set report an empty Type.
func TypeOf(v any) Type {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint32, uint64:
		return TypeNumber
	case string:
		return TypeString
	case bool:
		return TypeBool
	case []any:
		return TypeArray
	case map[string]any:
		return TypeObject
	default:
		return ""
	}
}

// Accepts reports whether a value of type actual satisfies declared type t.
func (t Type) Accepts(v any) bool {
	if t == TypeAny {
		return v != nil && TypeOf(v) != ""
	}
	return TypeOf(v) == t
}

// TypeNamer lets values from a scripting environment name their own type
// in error messages.
type TypeNamer interface {
	TypeName() string
}

// Describe returns a display name for the runtime type of v.
func Describe(v any) string {
	if v == nil {
		return "nil"
	}
	if t := TypeOf(v); t != "" {
		return string(t)
	}
	if n, ok := v.(TypeNamer); ok {
		return n.TypeName()
	}
	return fmt.Sprintf("%T", v)
}

// Normalize converts Go numeric types to float64, recursively, so values
// coming from different backends compare equal.
func Normalize(v any) any {
	switch x := v.(type) {
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Normalize(e)
		}
		return out
	default:
		return v
	}
}
