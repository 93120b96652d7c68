package reliability

import (
	"context"
	"errors"
	"fmt"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/pkg/circuitbreaker"
	"streamcast/pkg/retry"
	"streamcast/pkg/tracing"

	"go.uber.org/zap"
)

// StoreWrapper guards a ports.Store with a circuit breaker, retries the
// idempotent operations and traces every call. While the breaker is open
// calls fail fast with domain.ErrStoreUnavailable so a disconnect teardown
// never waits on a dead database.
type StoreWrapper struct {
	store   ports.Store
	breaker *circuitbreaker.CircuitBreaker
	retry   retry.Config
	logger  *zap.SugaredLogger
}

func NewStoreWrapper(
	store ports.Store,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *StoreWrapper {
	w := &StoreWrapper{
		store:   store,
		breaker: circuitbreaker.New(cbConfig),
		retry:   retryConfig,
		logger:  logger,
	}

	w.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return w
}

var _ ports.Store = (*StoreWrapper)(nil)

// CreateStream is not retried: a lost reply would leave a duplicate row.
func (w *StoreWrapper) CreateStream(ctx context.Context, userID domain.UserID, title, thumbnail string) (domain.StreamID, error) {
	return guard(ctx, w, "create_stream", "streams", false, func(ctx context.Context) (domain.StreamID, error) {
		tracing.AddSpanAttributes(ctx, tracing.UserIDKey.Int64(int64(userID)))
		return w.store.CreateStream(ctx, userID, title, thumbnail)
	})
}

func (w *StoreWrapper) MarkStreamsEnded(ctx context.Context, userID domain.UserID) error {
	_, err := guard(ctx, w, "mark_streams_ended", "streams", true, func(ctx context.Context) (struct{}, error) {
		tracing.AddSpanAttributes(ctx, tracing.UserIDKey.Int64(int64(userID)))
		return struct{}{}, w.store.MarkStreamsEnded(ctx, userID)
	})
	return err
}

func (w *StoreWrapper) MarkStreamEnded(ctx context.Context, streamID domain.StreamID) error {
	_, err := guard(ctx, w, "mark_stream_ended", "streams", true, func(ctx context.Context) (struct{}, error) {
		tracing.AddSpanAttributes(ctx, tracing.StreamIDKey.Int64(int64(streamID)))
		return struct{}{}, w.store.MarkStreamEnded(ctx, streamID)
	})
	return err
}

func (w *StoreWrapper) ListLive(ctx context.Context) ([]*domain.Stream, error) {
	return guard(ctx, w, "list_live", "streams", true, w.store.ListLive)
}

func (w *StoreWrapper) SearchByTitle(ctx context.Context, prefix string, limit int) ([]*domain.Stream, error) {
	return guard(ctx, w, "search_by_title", "streams", true, func(ctx context.Context) ([]*domain.Stream, error) {
		return w.store.SearchByTitle(ctx, prefix, limit)
	})
}

func (w *StoreWrapper) Insert(ctx context.Context, chat *domain.Chat) error {
	_, err := guard(ctx, w, "insert_chat", "chats", false, func(ctx context.Context) (struct{}, error) {
		tracing.AddSpanAttributes(ctx, tracing.StreamIDKey.Int64(int64(chat.StreamID)))
		return struct{}{}, w.store.Insert(ctx, chat)
	})
	return err
}

func (w *StoreWrapper) Latest(ctx context.Context, streamID domain.StreamID, limit int) ([]*domain.Chat, error) {
	return guard(ctx, w, "latest_chats", "chats", true, func(ctx context.Context) ([]*domain.Chat, error) {
		return w.store.Latest(ctx, streamID, limit)
	})
}

// Ping bypasses the breaker so readiness reflects the real backend.
func (w *StoreWrapper) Ping(ctx context.Context) error {
	return w.store.Ping(ctx)
}

func (w *StoreWrapper) Close() {
	w.store.Close()
}

func (w *StoreWrapper) BreakerStats() circuitbreaker.Stats {
	return w.breaker.Stats()
}

// isCallerError reports errors that describe the request rather than the
// health of the backend. They are neither retried nor counted by the breaker.
func isCallerError(err error) bool {
	return errors.Is(err, domain.ErrStreamNotFound)
}

func guard[T any](
	ctx context.Context,
	w *StoreWrapper,
	operation, table string,
	idempotent bool,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T

	ctx, span := tracing.TraceStoreOperation(ctx, operation, table)
	defer span.End()

	var callerErr error
	attempt := func(ctx context.Context) (T, error) {
		return circuitbreaker.Execute(ctx, w.breaker, func(ctx context.Context) (T, error) {
			result, err := fn(ctx)
			if err != nil && isCallerError(err) {
				callerErr = err
				return zero, nil
			}
			return result, err
		})
	}

	cfg := w.retry
	cfg.Enabled = cfg.Enabled && idempotent
	cfg.NonRetryableErrors = append([]error{circuitbreaker.ErrOpen}, w.retry.NonRetryableErrors...)

	result, err := retry.DoWithResult(ctx, cfg, attempt)
	if callerErr != nil {
		return zero, callerErr
	}
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			err = fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		tracing.RecordError(ctx, err)
		w.logger.Debugw("store call failed",
			"operation", operation,
			"error", err,
		)
		return zero, err
	}
	return result, nil
}
