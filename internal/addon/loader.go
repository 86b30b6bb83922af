// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Loader maps addon files into the process and unmaps them. It tracks which
// normalized paths are open and refuses duplicate loads; deciding whether a
// duplicate is an error is left to the caller.
type Loader struct {
	fallback Opener
	backends map[string]Opener
	open     map[string]*Handle
	logger   *slog.Logger
	mu       sync.Mutex
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithBackend routes files with the given extension (for example ".so") to o.
func WithBackend(ext string, o Opener) LoaderOption {
	return func(l *Loader) {
		l.backends[strings.ToLower(ext)] = o
	}
}

// WithLoaderLogger sets the logger used for failures the loader reports
// but does not return.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a loader. Files with no registered backend go to fallback.
// Panics if fallback is nil.
func NewLoader(fallback Opener, opts ...LoaderOption) *Loader {
	if fallback == nil {
		panic("addon.NewLoader: fallback opener cannot be nil")
	}
	l := &Loader{
		fallback: fallback,
		backends: make(map[string]Opener),
		open:     make(map[string]*Handle),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load opens the addon at path.
//
// Errors: NotFound when the path is not a regular file, AlreadyLoaded when
// an active handle exists for the normalized path, LoadFailure when the
// backend rejects the file.
func (l *Loader) Load(ctx context.Context, path string) (*Handle, error) {
	key, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.open[key]; ok {
		return nil, errorf(CodeAlreadyLoaded).With("path", key).Errorf("addon already loaded")
	}

	info, err := os.Stat(key)
	if err != nil {
		return nil, errorf(CodeNotFound).With("path", key).Hint("addon file does not exist or is unreadable").Wrap(err)
	}
	if !info.Mode().IsRegular() {
		return nil, errorf(CodeNotFound).With("path", key).Errorf("addon path is not a regular file")
	}

	module, err := l.opener(key).Open(ctx, key)
	if err != nil {
		if Code(err) != "" {
			return nil, err
		}
		return nil, errorf(CodeLoadFailure).With("path", key).Wrap(err)
	}

	h := newHandle(key, module)
	l.open[key] = h
	return h, nil
}

// Unload unmaps the module behind h.
//
// Errors: InvalidHandle when h is unknown or already unloaded, Busy while
// capability sets, registrations, or calls still reference it.
func (l *Loader) Unload(ctx context.Context, h *Handle) error {
	if h == nil {
		return errorf(CodeInvalidHandle).Errorf("nil addon handle")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.open[h.path]; !ok || cur != h || h.State() == StateUnloaded {
		return errorf(CodeInvalidHandle).With("path", h.path).Errorf("addon handle is not loaded")
	}
	if refs, inflight := h.Refs(), h.InFlight(); refs > 0 || inflight > 0 {
		return errorf(CodeBusy).
			With("path", h.path).
			With("refs", refs).
			With("inflight", inflight).
			Errorf("addon still referenced")
	}

	h.state.Store(int32(StateUnloaded))
	delete(l.open, h.path)

	// The mapping is gone from our table either way; a failing unload hook
	// is reported but does not resurrect the handle.
	if err := h.module.Close(ctx); err != nil {
		l.logger.Warn("addon close failed",
			"path", h.path,
			"error", err)
	}
	return nil
}

// Loaded reports whether an active handle exists for path.
func (l *Loader) Loaded(path string) bool {
	key, err := NormalizePath(path)
	if err != nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.open[key]
	return ok
}

func (l *Loader) opener(path string) Opener {
	if o, ok := l.backends[strings.ToLower(filepath.Ext(path))]; ok {
		return o
	}
	return l.fallback
}
