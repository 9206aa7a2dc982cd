// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package enrich

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Config holds configuration for enrichment workers.
type Config struct {
	// BatchSize is the number of chunks claimed and embedded per cycle.
	BatchSize int

	// MaxAttempts is how many times a chunk may fail before it stays failed.
	MaxAttempts int

	// StaleAfter is how long a claim may be held before another worker
	// may take the chunk over.
	StaleAfter time.Duration

	// Interval is the wait between cycles that found nothing to do.
	Interval time.Duration

	// RequestTimeout bounds one embedding call.
	RequestTimeout time.Duration

	// RequestsPerSecond throttles embedding calls. Zero disables throttling.
	RequestsPerSecond float64

	// Burst is the number of calls allowed at once when throttling.
	Burst int

	// EmbedRetries is the number of attempts for transient embedding errors.
	EmbedRetries int

	// RetryDelay is the base delay for exponential backoff.
	RetryDelay time.Duration

	// RecentWindow limits inline workers to chunks created within it.
	RecentWindow time.Duration

	// ReportInterval is how often Drain reports progress (number of chunks).
	ReportInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      32,
		MaxAttempts:    3,
		StaleAfter:     5 * time.Minute,
		Interval:       5 * time.Second,
		RequestTimeout: 60 * time.Second,
		Burst:          1,
		EmbedRetries:   3,
		RetryDelay:     time.Second,
		RecentWindow:   time.Hour,
		ReportInterval: 100,
	}
}

// Option is a functional option for configuring a Config.
type Option func(*Config)

// WithBatchSize sets the number of chunks per cycle.
func WithBatchSize(n int) Option {
	return func(c *Config) {
		c.BatchSize = n
	}
}

// WithMaxAttempts sets the per-chunk failure budget.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// WithStaleAfter sets the claim timeout.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Config) {
		c.StaleAfter = d
	}
}

// WithInterval sets the idle polling interval.
func WithInterval(d time.Duration) Option {
	return func(c *Config) {
		c.Interval = d
	}
}

// WithRequestTimeout bounds one embedding call.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// WithRateLimit throttles embedding calls to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Config) {
		c.RequestsPerSecond = rps
		c.Burst = burst
	}
}

// WithEmbedRetries sets the attempts and base backoff for transient errors.
func WithEmbedRetries(attempts int, delay time.Duration) Option {
	return func(c *Config) {
		c.EmbedRetries = attempts
		c.RetryDelay = delay
	}
}

// WithRecentWindow sets how far back inline workers look.
func WithRecentWindow(d time.Duration) Option {
	return func(c *Config) {
		c.RecentWindow = d
	}
}

// WithReportInterval sets how often Drain reports progress.
func WithReportInterval(n int) Option {
	return func(c *Config) {
		c.ReportInterval = n
	}
}

// NewConfig creates a Config from defaults and options.
func NewConfig(opts ...Option) *Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch {
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be positive", ErrInvalidConfig)
	case c.StaleAfter <= 0:
		return fmt.Errorf("%w: stale timeout must be positive", ErrInvalidConfig)
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	case c.EmbedRetries < 1:
		return fmt.Errorf("%w: embed retries must be positive", ErrInvalidConfig)
	case c.RequestsPerSecond < 0:
		return fmt.Errorf("%w: requests per second cannot be negative", ErrInvalidConfig)
	case c.RequestsPerSecond > 0 && c.Burst < 1:
		return fmt.Errorf("%w: burst must be positive when throttling", ErrInvalidConfig)
	}
	return nil
}

// NewLimiter builds the limiter described by RequestsPerSecond and Burst.
func (c *Config) NewLimiter() *rate.Limiter {
	if c.RequestsPerSecond > 0 {
		return rate.NewLimiter(rate.Limit(c.RequestsPerSecond), c.Burst)
	}
	return rate.NewLimiter(rate.Inf, 0)
}
