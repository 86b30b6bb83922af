// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package goplugin_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/internal/addon/addontest"
	"github.com/holomush/addonhost/internal/addon/goplugin"
	"github.com/holomush/addonhost/pkg/addonapi"
	"github.com/holomush/addonhost/pkg/addonrpc"
	"github.com/holomush/addonhost/pkg/addonsdk"
	"github.com/holomush/addonhost/pkg/errutil"
)

// mockClientProtocol implements hashiplug.ClientProtocol for testing.
type mockClientProtocol struct {
	client      any
	dispenseErr error
}

func (m *mockClientProtocol) Close() error { return nil }
func (m *mockClientProtocol) Ping() error  { return nil }
func (m *mockClientProtocol) Dispense(_ string) (interface{}, error) {
	if m.dispenseErr != nil {
		return nil, m.dispenseErr
	}
	return m.client, nil
}

// mockPluginClient implements goplugin.PluginClient for testing.
type mockPluginClient struct {
	protocol  *mockClientProtocol
	clientErr error
	killed    atomic.Bool
}

func (m *mockPluginClient) Client() (hashiplug.ClientProtocol, error) {
	if m.clientErr != nil {
		return nil, m.clientErr
	}
	return m.protocol, nil
}

func (m *mockPluginClient) Kill() { m.killed.Store(true) }

type mockClientFactory struct {
	client *mockPluginClient
}

func (f *mockClientFactory) NewClient(_ string) goplugin.PluginClient { return f.client }

// serve runs a's service on an in-memory listener and returns a client.
func serve(t *testing.T, a *addonsdk.Addon) addonrpc.AddonClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	addonrpc.RegisterAddonServer(srv, a.Server())
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

func calculator(unloaded *atomic.Bool) *addonsdk.Addon {
	num, str := addonapi.TypeNumber, addonapi.TypeString
	a := addonsdk.New("calc", "1.2.0")
	a.Property("pi", 3.14).
		Property("info.tags", []any{"a", "b"}).
		Func("sum", addonsdk.Sig(num, num, num), func(_ context.Context, args addonsdk.Args) (any, error) {
			return args.Number(0) + args.Number(1), nil
		}).
		Func("shout", addonsdk.Sig(str, str), func(_ context.Context, args addonsdk.Args) (any, error) {
			return strings.ToUpper(args.String(0)), nil
		}).
		Func("fail", addonsdk.Sig(addonapi.TypeVoid), func(context.Context, addonsdk.Args) (any, error) {
			return nil, errors.New("boom")
		}).
		Task("ticks", "tick", nil, func(context.Context, addonsdk.Args) (any, error) {
			go func() {
				for i := range 3 {
					a.Emit("tick", i)
				}
			}()
			return nil, nil
		}).
		OnUnload(func() { unloaded.Store(true) })
	return a
}

func newRegistry(t *testing.T, client *mockPluginClient) (*addon.Registry, string) {
	t.Helper()
	opener := goplugin.NewOpener(goplugin.WithClientFactory(&mockClientFactory{client: client}))
	reg := addon.NewRegistry(addon.NewLoader(opener))
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	return reg, addontest.WriteFile(t, t.TempDir(), "calc")
}

func TestOpener_EndToEnd(t *testing.T) {
	var unloaded atomic.Bool
	client := &mockPluginClient{protocol: &mockClientProtocol{client: serve(t, calculator(&unloaded))}}
	reg, path := newRegistry(t, client)
	ctx := context.Background()

	a, err := reg.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "calc", a.Name())
	assert.Equal(t, "1.2.0", a.Version())
	assert.True(t, a.Binding().IsNamespace("info"))

	pi, err := a.Get("pi")
	require.NoError(t, err)
	assert.Equal(t, 3.14, pi)

	sum, err := a.Call(ctx, "sum", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5.0, sum)

	loud, err := a.Call(ctx, "shout", "hi")
	require.NoError(t, err)
	assert.Equal(t, "HI", loud)

	_, err = a.Call(ctx, "fail")
	errutil.AssertErrorCode(t, err, addon.CodeNativeError)
	errutil.AssertErrorContext(t, err, "detail", "boom")

	var ticks []any
	_, err = a.Start(ctx, "ticks", func(p any) error {
		ticks = append(ticks, p)
		return nil
	})
	require.NoError(t, err)

	events := reg.Events()
	require.Eventually(t, func() bool {
		events.Drain()
		return len(ticks) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []any{0.0, 1.0, 2.0}, ticks)

	require.NoError(t, reg.Unload(ctx, path))
	assert.True(t, unloaded.Load())
	assert.True(t, client.killed.Load())
}

func TestOpener_ClientError(t *testing.T) {
	client := &mockPluginClient{clientErr: errors.New("handshake failed")}
	reg, path := newRegistry(t, client)

	_, err := reg.Load(context.Background(), path)
	errutil.AssertErrorCode(t, err, addon.CodeLoadFailure)
	assert.True(t, client.killed.Load())
}

func TestOpener_DispenseError(t *testing.T) {
	client := &mockPluginClient{protocol: &mockClientProtocol{dispenseErr: errors.New("no such plugin")}}
	reg, path := newRegistry(t, client)

	_, err := reg.Load(context.Background(), path)
	errutil.AssertErrorCode(t, err, addon.CodeLoadFailure)
	assert.True(t, client.killed.Load())
}

func TestOpener_WrongClientType(t *testing.T) {
	client := &mockPluginClient{protocol: &mockClientProtocol{client: "not a client"}}
	reg, path := newRegistry(t, client)

	_, err := reg.Load(context.Background(), path)
	errutil.AssertErrorCode(t, err, addon.CodeLoadFailure)
	assert.True(t, client.killed.Load())
}

func TestNewOpener_NilFactory(t *testing.T) {
	assert.Panics(t, func() { goplugin.NewOpener(goplugin.WithClientFactory(nil)) })
}

func TestGRPCPlugin_NilImpl(t *testing.T) {
	p := &goplugin.GRPCPlugin{}
	err := p.GRPCServer(nil, grpc.NewServer())
	require.Error(t, err)
}
