package filestore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling the store while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open; fast-fail")

type BreakerConfig struct {
	MaxFailures  int           `koanf:"max_failures" yaml:"max_failures"`
	ResetTimeout time.Duration `koanf:"reset_timeout" yaml:"reset_timeout"`
}

// Breaker stops calling a failing dependency for ResetTimeout after MaxFailures
// consecutive failures, then lets a single call through to probe it.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    BreakerState
	fails    int
	openedAt time.Time
	probing  bool
}

func NewBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{name: name, cfg: cfg, logger: logger, now: time.Now}
}

func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := op(ctx)
	b.record(err)
	return err
}

// admit decides whether a call may go through, moving Open to HalfOpen once the reset
// timeout has passed. Only one probe runs at a time.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrOpen
		}
		b.state = HalfOpen
		b.probing = true
		b.logger.Info("breaker_probe_start", "name", b.name, "previous_failures", b.fails)
		return nil
	case HalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	// a cancelled caller says nothing about the dependency
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		if b.state == HalfOpen {
			b.state = Open
		}
		return
	}
	if err == nil {
		if b.state != Closed {
			b.logger.Info("breaker_state_to_closed", "name", b.name, "from", b.state.String())
		}
		b.state = Closed
		b.fails = 0
		return
	}
	b.fails++
	b.logger.Warn("operation_failure", "name", b.name, "failures", b.fails, "error", err.Error())
	if b.state == HalfOpen || b.fails >= b.cfg.MaxFailures {
		b.state = Open
		b.openedAt = b.now()
		b.logger.Error("breaker_opened", "name", b.name, "maxFailures", b.cfg.MaxFailures)
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
