// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addonrpc_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/holomush/addonhost/pkg/addonrpc"
)

// fakeServer streams a fixed set of events and echoes invocations.
type fakeServer struct {
	addonrpc.UnimplementedAddonServer
	events [][2]any
}

func (f *fakeServer) Describe(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(`{"name":"fake"}`), nil
}

func (f *fakeServer) Invoke(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol, args := addonrpc.ParseInvokeRequest(req)
	if symbol == "fail" {
		return addonrpc.NewFailure("failed on purpose"), nil
	}
	return addonrpc.NewResult(map[string]any{"symbol": symbol, "args": args})
}

func (f *fakeServer) Events(_ *emptypb.Empty, stream addonrpc.EventStream) error {
	for _, e := range f.events {
		msg, err := addonrpc.NewEvent(e[0].(string), e[1])
		if err != nil {
			return err
		}
		if err := stream.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func dial(t *testing.T, impl addonrpc.AddonServer) addonrpc.AddonClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	addonrpc.RegisterAddonServer(srv, impl)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
	})
	return addonrpc.NewAddonClient(conn)
}

func TestService_Unary(t *testing.T) {
	client := dial(t, &fakeServer{})
	ctx := context.Background()

	desc, err := client.Describe(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"fake"}`, desc.GetValue())

	req, err := addonrpc.NewInvokeRequest("utils.ping", []any{1, "two", true, []any{3}, nil})
	require.NoError(t, err)
	resp, err := client.Invoke(ctx, req)
	require.NoError(t, err)
	result, _, failed := addonrpc.ParseInvokeResponse(resp)
	assert.False(t, failed)
	assert.Equal(t, map[string]any{
		"symbol": "utils.ping",
		"args":   []any{1.0, "two", true, []any{3.0}, nil},
	}, result)

	req, err = addonrpc.NewInvokeRequest("fail", nil)
	require.NoError(t, err)
	resp, err = client.Invoke(ctx, req)
	require.NoError(t, err)
	_, detail, failed := addonrpc.ParseInvokeResponse(resp)
	assert.True(t, failed)
	assert.Equal(t, "failed on purpose", detail)

	_, err = client.Shutdown(ctx, &emptypb.Empty{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestService_Events(t *testing.T) {
	client := dial(t, &fakeServer{events: [][2]any{
		{"usage", 12.5},
		{"default", map[string]any{"msg": "hi"}},
		{"default", nil},
	}})

	stream, err := client.Events(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)

	var got [][2]any
	for {
		msg, err := stream.Recv()
		if err != nil {
			break
		}
		event, payload := addonrpc.ParseEvent(msg)
		got = append(got, [2]any{event, payload})
	}
	assert.Equal(t, [][2]any{
		{"usage", 12.5},
		{"default", map[string]any{"msg": "hi"}},
		{"default", nil},
	}, got)
}

func TestParseInvokeResponse_NullResult(t *testing.T) {
	resp, err := addonrpc.NewResult(nil)
	require.NoError(t, err)
	result, _, failed := addonrpc.ParseInvokeResponse(resp)
	assert.False(t, failed)
	assert.Nil(t, result)
}

func TestNewResult_Unencodable(t *testing.T) {
	_, err := addonrpc.NewResult(make(chan int))
	require.Error(t, err)
}
