package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vedran77/pulsecore/internal/logger"
	"github.com/vedran77/pulsecore/internal/metrics"
	"github.com/vedran77/pulsecore/internal/repository"
)

// Storage bounds every repository call with a timeout and retries a timed
// out call once when the operation is safe to repeat.
type Storage struct {
	timeout    time.Duration
	retryDelay time.Duration
	metrics    *metrics.Metrics
	log        *logger.Logger
}

func NewStorage(timeout, retryDelay time.Duration, m *metrics.Metrics, log *logger.Logger) *Storage {
	return &Storage{timeout: timeout, retryDelay: retryDelay, metrics: m, log: log.With("component", "storage")}
}

func call[T any](ctx context.Context, st *Storage, op string, retry bool, fn func(context.Context) (T, error)) (T, error) {
	attempt := func() (T, error) {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		callCtx, cancel := context.WithTimeout(ctx, st.timeout)
		defer cancel()
		v, err := fn(callCtx)
		return v, st.classify(ctx, op, err)
	}
	if !retry {
		return attempt()
	}

	tries := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		tries++
		if tries > 1 {
			st.metrics.StorageRetry(op)
			st.log.Warn("retrying storage call", "op", op)
		}
		v, err := attempt()
		if err != nil && !errors.Is(err, ErrStorageTimeout) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(&backoff.ConstantBackOff{Interval: st.retryDelay}),
		backoff.WithMaxTries(2),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return v, err
}

func exec(ctx context.Context, st *Storage, op string, retry bool, fn func(context.Context) error) error {
	_, err := call(ctx, st, op, retry, func(c context.Context) (struct{}, error) {
		return struct{}{}, fn(c)
	})
	return err
}

func (st *Storage) classify(parent context.Context, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case parent.Err() != nil:
		return parent.Err()
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		st.metrics.StorageFailure(op, "timeout")
		return fmt.Errorf("%w: %s: %v", ErrStorageTimeout, op, err)
	default:
		st.metrics.StorageFailure(op, "unavailable")
		return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
	}
}
