// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose

import "time"

// Config holds Dispatcher construction knobs. Built via Option functions
// applied to DefaultConfig, the same fluent-functional-option idiom this
// package's upstream queue Builder used for queue construction.
type Config struct {
	Workers      int
	RingCapacity int
	WheelTick    time.Duration
	WheelSize    int
	ErrorHandler ErrorHandler
}

// DefaultConfig returns the recognised defaults from spec: 4 workers,
// 65536-slot ring, 10ms wheel tick, 512 wheel buckets, and no error
// handler (callers must supply one — see Option/WithErrorHandler).
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		RingCapacity: 65536,
		WheelTick:    10 * time.Millisecond,
		WheelSize:    512,
	}
}

// Option mutates a Config in place; NewDispatcher applies a sequence of
// Options over DefaultConfig.
type Option func(*Config)

// WithWorkers sets the worker-pool size.
// Panics at NewDispatcher time if n < 1.
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

// WithRingCapacity sets the Ring Handoff capacity (rounded up to the next
// power of 2, with a minimum of 2, by the ring itself).
func WithRingCapacity(n int) Option {
	return func(c *Config) { c.RingCapacity = n }
}

// WithWheelTick sets the Timing Wheel's tick resolution.
func WithWheelTick(d time.Duration) Option {
	return func(c *Config) { c.WheelTick = d }
}

// WithWheelSize sets the Timing Wheel's bucket count.
func WithWheelSize(n int) Option {
	return func(c *Config) { c.WheelSize = n }
}

// WithErrorHandler sets the callback that receives every recovered
// ConsumerFailure, DispatchFailure, BackpressureInterruption and
// TimerCallbackFailure. Required: NewDispatcher panics if the resulting
// Config has a nil ErrorHandler, rather than silently discarding every
// failure for the Dispatcher's lifetime.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Config) { c.ErrorHandler = h }
}
