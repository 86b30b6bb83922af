// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addonrpc

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/holomush/addonhost/pkg/addonapi"
)

// Struct field names used on the wire.
const (
	fieldSymbol  = "symbol"
	fieldArgs    = "args"
	fieldResult  = "result"
	fieldError   = "error"
	fieldEvent   = "event"
	fieldPayload = "payload"
)

// NewInvokeRequest encodes a call of symbol with args.
func NewInvokeRequest(symbol string, args []any) (*structpb.Struct, error) {
	list, err := structpb.NewList(normalizeList(args))
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldSymbol: structpb.NewStringValue(symbol),
		fieldArgs:   structpb.NewListValue(list),
	}}, nil
}

// ParseInvokeRequest decodes a request built by NewInvokeRequest.
func ParseInvokeRequest(req *structpb.Struct) (symbol string, args []any) {
	fields := req.GetFields()
	symbol = fields[fieldSymbol].GetStringValue()
	for _, v := range fields[fieldArgs].GetListValue().GetValues() {
		args = append(args, v.AsInterface())
	}
	return symbol, args
}

// NewResult encodes a successful invocation result.
func NewResult(v any) (*structpb.Struct, error) {
	val, err := structpb.NewValue(addonapi.Normalize(v))
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{fieldResult: val}}, nil
}

// NewFailure encodes a failure raised by the addon.
func NewFailure(detail string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldError: structpb.NewStringValue(detail),
	}}
}

// ParseInvokeResponse decodes an invocation response. failed is true when
// the addon reported a failure, described by detail.
func ParseInvokeResponse(resp *structpb.Struct) (result any, detail string, failed bool) {
	fields := resp.GetFields()
	if e, ok := fields[fieldError]; ok {
		return nil, e.GetStringValue(), true
	}
	return fields[fieldResult].AsInterface(), "", false
}

// NewEvent encodes one emitted event.
func NewEvent(event string, payload any) (*structpb.Struct, error) {
	val, err := structpb.NewValue(addonapi.Normalize(payload))
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldEvent:   structpb.NewStringValue(event),
		fieldPayload: val,
	}}, nil
}

// ParseEvent decodes an event built by NewEvent.
func ParseEvent(msg *structpb.Struct) (event string, payload any) {
	fields := msg.GetFields()
	return fields[fieldEvent].GetStringValue(), fields[fieldPayload].AsInterface()
}

func normalizeList(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = addonapi.Normalize(v)
	}
	return out
}
