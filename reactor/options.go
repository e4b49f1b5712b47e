// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"runtime"
	"time"

	"github.com/joeycumines/go-reactor/ratelimit"
	"github.com/joeycumines/go-reactor/rlog"
)

// Config is the resolved, immutable configuration threaded through a
// SelectorManager, its ManagedSelectors and the Endpoints they construct.
// It is never built directly; use Options and Resolve.
type Config struct {
	Selectors       int
	AcceptQueue     int
	IdleTimeout     time.Duration
	BufferMin       int
	BufferMax       int
	DirectBuffers   bool
	ConnectTimeout  time.Duration
	DispatchIO      bool
	Logger          rlog.Logger
	AcceptLimiter   *ratelimit.Policy
	Executor        func(func())
}

// Option configures a Config instance.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(cfg *Config) { f(cfg) }

// WithSelectors sets the number of Managed Selectors in the pool. Defaults
// to runtime.GOMAXPROCS(0).
func WithSelectors(n int) Option {
	return optionFunc(func(cfg *Config) { cfg.Selectors = n })
}

// WithAcceptQueue sets Config.AcceptQueue, the server-side backlog value.
// The reactor creates no listening sockets and nothing in it reads this
// value.
func WithAcceptQueue(n int) Option {
	return optionFunc(func(cfg *Config) { cfg.AcceptQueue = n })
}

// WithIdleTimeout sets the default per-Endpoint idle timeout. Zero disables
// idle timeout scanning for Endpoints that don't override it.
func WithIdleTimeout(d time.Duration) Option {
	return optionFunc(func(cfg *Config) { cfg.IdleTimeout = d })
}

// WithBufferRange sets the pool's minimum and maximum buffer sizes.
func WithBufferRange(min, max int) Option {
	return optionFunc(func(cfg *Config) {
		cfg.BufferMin = min
		cfg.BufferMax = max
	})
}

// WithDirectBuffers controls whether the buffer pool serves off-heap
// buffers. The default allocator only ever serves heap buffers; this flag
// is carried for embedders supplying their own Pool.
func WithDirectBuffers(enabled bool) Option {
	return optionFunc(func(cfg *Config) { cfg.DirectBuffers = enabled })
}

// WithConnectTimeout sets the time budget for pending outbound connects.
func WithConnectTimeout(d time.Duration) Option {
	return optionFunc(func(cfg *Config) { cfg.ConnectTimeout = d })
}

// WithDispatchIO sets Config.DispatchIO. Defaults to false. No component
// reads it: fillable/writable notifications always run inline on the
// selector goroutine and are never handed to the Executor, whatever its
// value.
func WithDispatchIO(enabled bool) Option {
	return optionFunc(func(cfg *Config) { cfg.DispatchIO = enabled })
}

// WithLogger sets the structured logger used for selector, endpoint and
// listener diagnostics. Defaults to rlog.NoOp().
func WithLogger(logger rlog.Logger) Option {
	return optionFunc(func(cfg *Config) { cfg.Logger = logger })
}

// WithAcceptLimiter sets the accept-rate policy consulted by
// SelectorManager.Accept before a channel is routed to a selector. A nil
// policy (the default) always allows.
func WithAcceptLimiter(policy *ratelimit.Policy) Option {
	return optionFunc(func(cfg *Config) { cfg.AcceptLimiter = policy })
}

// WithExecutor sets Config.Executor, the worker-pool capability. Defaults
// to spawning a goroutine per callback. The reactor itself never calls it
// (see WithDispatchIO).
func WithExecutor(exec func(func())) Option {
	return optionFunc(func(cfg *Config) { cfg.Executor = exec })
}

// Resolve applies opts over the default configuration.
func Resolve(opts []Option) *Config {
	cfg := &Config{
		Selectors:      runtime.GOMAXPROCS(0),
		AcceptQueue:    128,
		IdleTimeout:    0,
		BufferMin:      512,
		BufferMax:      64 * 1024,
		ConnectTimeout: 10 * time.Second,
		DispatchIO:     false,
		Logger:         rlog.NoOp(),
		Executor:       func(f func()) { go f() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	if cfg.Selectors < 1 {
		cfg.Selectors = 1
	}
	return cfg
}
