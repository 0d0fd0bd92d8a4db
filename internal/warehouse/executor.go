// Package warehouse runs export queries against the configured warehouse.
//
// An Executor owns one lazily opened adapter. The handle is pinged before
// reuse, concurrent opens are collapsed into one, and transient connection
// failures tear the handle down and retry according to a RetryPolicy.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/leapstack-labs/leapsheets/pkg/adapter"
	"github.com/leapstack-labs/leapsheets/pkg/core"
)

// ErrNotConfigured is returned when no warehouse target is configured.
var ErrNotConfigured = errors.New("warehouse target not configured")

// RetryPolicy decides how often a failed statement is retried.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries uint64
	// Backoff is the constant wait between attempts.
	Backoff time.Duration
	// Classify reports whether an error is worth retrying. Defaults to IsTransient.
	Classify func(error) bool
}

// DefaultRetryPolicy retries a transient failure once.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 1, Backoff: 200 * time.Millisecond, Classify: IsTransient}
}

func (p RetryPolicy) backoff() retry.Backoff {
	wait := p.Backoff
	if wait <= 0 {
		wait = time.Millisecond
	}
	return retry.WithMaxRetries(p.MaxRetries, retry.NewConstant(wait))
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Classify == nil {
		return IsTransient(err)
	}
	return p.Classify(err)
}

// Opener creates a connected adapter.
type Opener func(ctx context.Context, cfg core.AdapterConfig, logger *slog.Logger) (adapter.Adapter, error)

// OpenAdapter is the default Opener: it looks the adapter up in the registry
// and connects it.
func OpenAdapter(ctx context.Context, cfg core.AdapterConfig, logger *slog.Logger) (adapter.Adapter, error) {
	a, err := adapter.NewAdapter(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// Option configures an Executor.
type Option func(*Executor)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithOpener replaces the adapter opener.
func WithOpener(o Opener) Option {
	return func(e *Executor) { e.open = o }
}

// Executor executes statements over a single shared adapter handle.
type Executor struct {
	cfg    core.AdapterConfig
	logger *slog.Logger
	policy RetryPolicy
	open   Opener

	mu    sync.Mutex
	conn  adapter.Adapter
	group singleflight.Group
}

// New creates an Executor for cfg. Nothing is opened until first use.
func New(cfg core.AdapterConfig, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Executor{
		cfg:    cfg,
		logger: logger,
		policy: DefaultRetryPolicy(),
		open:   OpenAdapter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Configured reports whether a warehouse target is set.
func (e *Executor) Configured() bool {
	return e.cfg.Type != ""
}

// Target returns the warehouse configuration.
func (e *Executor) Target() core.AdapterConfig {
	return e.cfg
}

// Query runs a statement and returns its rows.
func (e *Executor) Query(ctx context.Context, sql string) (*core.ResultSet, error) {
	var rs *core.ResultSet
	err := e.run(ctx, func(a adapter.Adapter) error {
		var err error
		rs, err = a.Query(ctx, sql)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// Exec runs a statement that returns no rows.
func (e *Executor) Exec(ctx context.Context, sql string) error {
	return e.run(ctx, func(a adapter.Adapter) error {
		return a.Exec(ctx, sql)
	})
}

// Ping opens the handle if needed and verifies it.
func (e *Executor) Ping(ctx context.Context) error {
	return e.run(ctx, func(a adapter.Adapter) error {
		return a.Ping(ctx)
	})
}

// Close releases the handle. The Executor may be used again afterwards.
func (e *Executor) Close() error {
	e.mu.Lock()
	a := e.conn
	e.conn = nil
	e.mu.Unlock()
	if a == nil {
		return nil
	}
	return a.Close()
}

func (e *Executor) run(ctx context.Context, fn func(adapter.Adapter) error) error {
	if !e.Configured() {
		return ErrNotConfigured
	}
	attempt := 0
	return retry.Do(ctx, e.policy.backoff(), func(ctx context.Context) error {
		attempt++
		a, err := e.handle(ctx)
		if err != nil {
			if e.policy.retryable(err) {
				e.logger.Warn("warehouse connect failed, retrying", "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		err = fn(a)
		if err != nil && e.policy.retryable(err) {
			e.logger.Warn("warehouse connection lost, reconnecting", "attempt", attempt, "error", err)
			e.discard(a)
			return retry.RetryableError(err)
		}
		return err
	})
}

// handle returns a live adapter, opening one when there is none or the
// current one fails its ping.
func (e *Executor) handle(ctx context.Context) (adapter.Adapter, error) {
	e.mu.Lock()
	a := e.conn
	e.mu.Unlock()

	if a != nil {
		err := a.Ping(ctx)
		if err == nil {
			return a, nil
		}
		e.logger.Debug("warehouse ping failed, reopening", "error", err)
		e.discard(a)
	}

	v, err, _ := e.group.Do("open", func() (any, error) {
		e.mu.Lock()
		if e.conn != nil {
			c := e.conn
			e.mu.Unlock()
			return c, nil
		}
		e.mu.Unlock()

		e.logger.Debug("opening warehouse connection", "type", e.cfg.Type)
		c, err := e.open(ctx, e.cfg, e.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", e.cfg.Type, err)
		}
		e.mu.Lock()
		e.conn = c
		e.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(adapter.Adapter), nil
}

func (e *Executor) discard(a adapter.Adapter) {
	e.mu.Lock()
	if e.conn == a {
		e.conn = nil
	}
	e.mu.Unlock()
	if err := a.Close(); err != nil {
		e.logger.Debug("closing stale connection", "error", err)
	}
}
