// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads host configuration. Values are layered: flag
// defaults, then the YAML config file, then flags set on the command line.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/internal/addon/goplugin"
)

// Config is the host configuration.
type Config struct {
	LogFormat     string        `koanf:"log_format"`
	LogLevel      string        `koanf:"log_level"`
	MetricsAddr   string        `koanf:"metrics_addr"`
	UnloadTimeout time.Duration `koanf:"unload_timeout"`
	CallTimeout   time.Duration `koanf:"call_timeout"`
	StartTimeout  time.Duration `koanf:"start_timeout"`
	// Allow lists glob patterns of loadable addon paths. Empty allows all.
	Allow []string `koanf:"allow"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogFormat:     "text",
		LogLevel:      "info",
		UnloadTimeout: addon.DefaultUnloadTimeout,
		CallTimeout:   addon.DefaultCallTimeout,
		StartTimeout:  goplugin.DefaultStartTimeout,
	}
}

// RegisterFlags adds the configuration flags with defaults from Default.
// Flag names use dashes; config keys use underscores.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("log-format", d.LogFormat, "log format (json|text)")
	fs.String("log-level", d.LogLevel, "log level (debug|info|warn|error)")
	fs.String("metrics-addr", d.MetricsAddr, "serve /metrics and /healthz on this address (empty disables)")
	fs.Duration("unload-timeout", d.UnloadTimeout, "how long unload waits for in-flight calls")
	fs.Duration("call-timeout", d.CallTimeout, "deadline applied to each addon call")
	fs.Duration("start-timeout", d.StartTimeout, "how long to wait for an addon executable to start")
	fs.StringSlice("allow", d.Allow, "glob patterns of loadable addon paths (repeatable)")
}

func flagKey(f *pflag.Flag) string {
	return strings.ReplaceAll(f.Name, "-", "_")
}

// Load builds the configuration from flags and the YAML file at path. A
// missing file is not an error when optional is true.
func Load(flags *pflag.FlagSet, path string, optional bool) (Config, error) {
	k := koanf.New(".")

	if path != "" && (!optional || Exists(path)) {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.In("config").With("path", path).Hint("failed to read config file").Wrap(err)
		}
	}

	// Unchanged flags only fill keys the file did not set.
	if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
		return flagKey(f), posflag.FlagVal(flags, f)
	}), nil); err != nil {
		return Config{}, oops.In("config").Hint("failed to read flags").Wrap(err)
	}

	return unmarshal(k, path)
}

func unmarshal(k *koanf.Koanf, path string) (Config, error) {
	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.In("config").With("path", path).Hint("invalid configuration").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WatchAllow calls fn with the file's allow list each time the file at
// path changes. Reload failures are passed to onError. The returned
// function stops watching.
func WatchAllow(path string, fn func([]string), onError func(error)) (func() error, error) {
	provider := file.Provider(path)
	err := provider.Watch(func(_ any, err error) {
		if err != nil {
			onError(oops.In("config").With("path", path).Hint("config watch failed").Wrap(err))
			return
		}
		k := koanf.New(".")
		if err := k.Load(provider, yaml.Parser()); err != nil {
			onError(oops.In("config").With("path", path).Hint("failed to reload config file").Wrap(err))
			return
		}
		fn(k.Strings("allow"))
	})
	if err != nil {
		return nil, oops.In("config").With("path", path).Hint("failed to watch config file").Wrap(err)
	}
	return provider.Unwatch, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch c.LogFormat {
	case "json", "text":
	default:
		return oops.In("config").With("log_format", c.LogFormat).Errorf("log_format must be json or text")
	}
	if c.UnloadTimeout <= 0 {
		return oops.In("config").With("unload_timeout", c.UnloadTimeout).Errorf("unload_timeout must be positive")
	}
	if c.CallTimeout <= 0 {
		return oops.In("config").With("call_timeout", c.CallTimeout).Errorf("call_timeout must be positive")
	}
	if c.StartTimeout <= 0 {
		return oops.In("config").With("start_timeout", c.StartTimeout).Errorf("start_timeout must be positive")
	}
	return nil
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
