package promise

import "github.com/menchan-Rub/AeroJS-sub002/internal/jsvalue"

// UnhandledRejectionHook is invoked at microtask-drain end for every
// promise that settled Rejected and never had a reaction scheduled against
// it. It does not crash the engine; the host decides what to do with the
// report. Simplified from per-promise debug-stack tracking (out of scope
// here) to the bare (promise, reason) pair.
type UnhandledRejectionHook func(p *Promise, reason jsvalue.Value)

// Config holds microtask-queue-level settings applied via functional
// options.
type Config struct {
	onUnhandledRejection UnhandledRejectionHook
}

// Option configures a Config.
type Option func(*Config)

// WithUnhandledRejectionHook installs the host hook for unhandled
// rejections.
func WithUnhandledRejectionHook(hook UnhandledRejectionHook) Option {
	return func(c *Config) { c.onUnhandledRejection = hook }
}

func defaultConfig() Config {
	return Config{onUnhandledRejection: func(*Promise, jsvalue.Value) {}}
}

// NewConfig applies opts over the defaults.
func NewConfig(opts ...Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
