// internal/chaos/chaos.go
package chaos

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"gymdesk/internal/membership"
)

// ErrInjected is returned by reads the store was told to fail.
var ErrInjected = errors.New("chaos: injected store failure")

// Faults describes what to inject into member store reads.
type Faults struct {
	// FailureRate is the probability, 0 to 1, that a read fails.
	FailureRate float64
	// Latency is added before every read.
	Latency time.Duration
}

func (f Faults) active() bool {
	return f.FailureRate > 0 || f.Latency > 0
}

// Store wraps a membership.Store and injects latency and failures into its
// reads. Writes pass through untouched.
type Store struct {
	membership.Store

	tracer trace.Tracer
	log    *zap.Logger

	mu     sync.Mutex
	faults Faults
	rng    *rand.Rand
}

// Wrap returns next with faults injected into its reads. seed fixes the
// failure sequence.
func Wrap(next membership.Store, faults Faults, seed int64, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		Store:  next,
		tracer: otel.Tracer("gymdesk/chaos"),
		log:    logger,
		faults: faults,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Inject replaces the active faults.
func (s *Store) Inject(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
	s.log.Warn("store faults injected",
		zap.Float64("failure_rate", f.FailureRate),
		zap.Duration("latency", f.Latency))
}

// Rollback removes every fault.
func (s *Store) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = Faults{}
	s.log.Info("store faults rolled back")
}

// ListMembers reads the roster through the active faults.
func (s *Store) ListMembers(ctx context.Context, owner uuid.UUID, fields []string) ([]membership.Member, error) {
	if err := s.disturb(ctx, "list_members"); err != nil {
		return nil, err
	}
	return s.Store.ListMembers(ctx, owner, fields)
}

// GetMember reads one member through the active faults.
func (s *Store) GetMember(ctx context.Context, owner, id uuid.UUID) (*membership.Member, error) {
	if err := s.disturb(ctx, "get_member"); err != nil {
		return nil, err
	}
	return s.Store.GetMember(ctx, owner, id)
}

func (s *Store) disturb(ctx context.Context, op string) error {
	s.mu.Lock()
	f := s.faults
	fail := f.FailureRate > 0 && s.rng.Float64() < f.FailureRate
	s.mu.Unlock()

	if !f.active() {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "chaos.disturb",
		trace.WithAttributes(
			attribute.String("chaos.operation", op),
			attribute.Int64("chaos.latency_ms", f.Latency.Milliseconds()),
			attribute.Bool("chaos.fail", fail),
		),
	)
	defer span.End()

	if f.Latency > 0 {
		timer := time.NewTimer(f.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		span.RecordError(ErrInjected)
		return ErrInjected
	}
	return nil
}
