// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package goplugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/pkg/addonrpc"
)

// shutdownTimeout bounds the addon's unload hook.
const shutdownTimeout = 2 * time.Second

// module is an addon running in another process.
type module struct {
	path   string
	rpc    addonrpc.AddonClient
	kill   func()
	logger *slog.Logger

	streamCtx    context.Context
	cancelStream context.CancelFunc
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

func newModule(path string, rpc addonrpc.AddonClient, kill func(), logger *slog.Logger) *module {
	ctx, cancel := context.WithCancel(context.Background())
	return &module{
		path:         path,
		rpc:          rpc,
		kill:         kill,
		logger:       logger,
		streamCtx:    ctx,
		cancelStream: cancel,
	}
}

// Describe implements addon.Module.
func (m *module) Describe(ctx context.Context) ([]byte, error) {
	resp, err := m.rpc.Describe(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", m.path, err)
	}
	return []byte(resp.GetValue()), nil
}

// Call implements addon.Module.
func (m *module) Call(ctx context.Context, symbol string, args []any) (any, error) {
	req, err := addonrpc.NewInvokeRequest(symbol, args)
	if err != nil {
		return nil, err
	}
	resp, err := m.rpc.Invoke(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", symbol, err)
	}
	result, detail, failed := addonrpc.ParseInvokeResponse(resp)
	if failed {
		return nil, &addon.NativeFailure{Detail: detail}
	}
	return result, nil
}

// SetEmitter implements addon.Module. It opens the event stream and forwards
// every received event to e until Close.
func (m *module) SetEmitter(e addon.Emitter) {
	stream, err := m.rpc.Events(m.streamCtx, &emptypb.Empty{})
	if err != nil {
		m.logger.Warn("addon event stream unavailable",
			"path", m.path,
			"error", err)
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			msg, err := stream.Recv()
			if err != nil {
				if !endOfStream(err) {
					m.logger.Warn("addon event stream failed",
						"path", m.path,
						"error", err)
				}
				return
			}
			e.Emit(addonrpc.ParseEvent(msg))
		}
	}()
}

// Close implements addon.Module. It runs the addon's unload hook, stops the
// event stream and terminates the process.
func (m *module) Close(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if _, serr := m.rpc.Shutdown(sctx, &emptypb.Empty{}); serr != nil {
			err = fmt.Errorf("shutdown %s: %w", m.path, serr)
		}
		m.cancelStream()
		m.wg.Wait()
		if m.kill != nil {
			m.kill()
		}
	})
	return err
}

func endOfStream(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return true
	}
	return status.Code(err) == codes.Canceled
}
