// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addonsdk

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/holomush/addonhost/pkg/addonrpc"
)

// server adapts an Addon to addonrpc.AddonServer.
type server struct {
	addonrpc.UnimplementedAddonServer
	addon *Addon
}

// Describe implements addonrpc.AddonServer.
func (s *server) Describe(_ context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	data, err := s.addon.desc.Encode()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode descriptor: %v", err)
	}
	return wrapperspb.String(string(data)), nil
}

// Invoke implements addonrpc.AddonServer.
func (s *server) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol, args := addonrpc.ParseInvokeRequest(req)
	fn, ok := s.addon.funcs[symbol]
	if !ok {
		return addonrpc.NewFailure(fmt.Sprintf("unknown capability %q", symbol)), nil
	}

	result, err := s.call(ctx, fn, args)
	if err != nil {
		return addonrpc.NewFailure(err.Error()), nil
	}
	resp, err := addonrpc.NewResult(result)
	if err != nil {
		return addonrpc.NewFailure(err.Error()), nil
	}
	return resp, nil
}

func (s *server) call(ctx context.Context, fn Func, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, Args(args))
}

// Events implements addonrpc.AddonServer.
func (s *server) Events(_ *emptypb.Empty, stream addonrpc.EventStream) error {
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.addon.done:
			return nil
		case e := <-s.addon.events:
			msg, err := addonrpc.NewEvent(e.event, e.payload)
			if err != nil {
				// Delivered with a nil payload so the event still reaches the host.
				s.addon.logger.Error("event payload cannot be encoded", "event", e.event, "error", err)
				if msg, err = addonrpc.NewEvent(e.event, nil); err != nil {
					return err
				}
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// Shutdown implements addonrpc.AddonServer.
func (s *server) Shutdown(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.addon.shutdown()
	return &emptypb.Empty{}, nil
}
