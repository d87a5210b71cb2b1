package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/supplyvend/api/internal/domain"
)

const orderNumberPrefix = "SV"

// ErrNumberingInvalidInput signals the caller provided invalid data.
var ErrNumberingInvalidInput = errors.New("numbering: invalid input")

// CounterNext issues the next value of a named counter.
type CounterNext interface {
	Next(ctx context.Context, counterID string) (int64, error)
}

// NumberingServiceDeps bundles collaborators for the numbering service.
type NumberingServiceDeps struct {
	Counters CounterNext
	Entropy  func() string
}

type numberingService struct {
	counters CounterNext
	entropy  func() string
}

// NewNumberingService wires dependencies into a NumberingService.
func NewNumberingService(deps NumberingServiceDeps) (NumberingService, error) {
	if deps.Counters == nil {
		return nil, errors.New("numbering service: counter repository is required")
	}
	entropy := deps.Entropy
	if entropy == nil {
		entropy = func() string { return ulid.Make().String() }
	}
	return &numberingService{counters: deps.Counters, entropy: entropy}, nil
}

// NextOrderNumber issues the next customer-facing order number. Sequences
// are bucketed per day so each day restarts at 0001.
func (s *numberingService) NextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	day := now.UTC().Format("060102")
	seq, err := s.counters.Next(ctx, "orders:"+day)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", orderNumberPrefix, day, seq), nil
}

// NextTransactionID issues a transaction identifier carrying the method
// prefix, the trailing digits of the millisecond timestamp, and a random
// suffix to break same-millisecond collisions.
func (s *numberingService) NextTransactionID(method domain.PaymentMethod, now time.Time) (string, error) {
	if !method.Valid() {
		return "", fmt.Errorf("%w: unknown payment method %q", ErrNumberingInvalidInput, method)
	}
	millis := fmt.Sprintf("%d", now.UTC().UnixMilli())
	if len(millis) > 8 {
		millis = millis[len(millis)-8:]
	}
	suffix := s.entropy()
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return fmt.Sprintf("%s-%s-%s", method.Prefix(), millis, suffix), nil
}
