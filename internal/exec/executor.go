package exec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hl-mm-bot/internal/state"
	"hl-mm-bot/internal/venue"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
)

// Executor wraps a venue client with retry and exactly-once-intent
// placement. Placements are keyed by client order id and deduped through
// the state store, so a retried call after a crash returns the order id the
// venue already assigned instead of placing twice.
type Executor struct {
	client venue.Client
	store  state.Store
	log    *zap.Logger
}

func New(client venue.Client, store state.Store, log *zap.Logger) *Executor {
	return &Executor{client: client, store: store, log: log}
}

func (e *Executor) Venue() string {
	return e.client.Name()
}

func (e *Executor) PlaceOrder(ctx context.Context, req venue.OrderRequest) (string, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}
	cacheKey := "cloid:" + e.client.Name() + ":" + req.ClientOrderID
	if e.store != nil {
		if oid, ok, err := e.store.Get(ctx, cacheKey); err != nil {
			return "", err
		} else if ok {
			return oid, nil
		}
	}
	var orderID string
	err := e.retry(ctx, func() error {
		var placeErr error
		orderID, placeErr = e.client.PlaceOrder(ctx, req)
		return venue.Classify(placeErr)
	})
	if err != nil {
		return "", err
	}
	if orderID == "" {
		return "", errors.New("empty order id from venue")
	}
	if e.store != nil {
		if err := e.store.Set(ctx, cacheKey, orderID); err != nil {
			e.log.Warn("failed to persist order id", zap.Error(err))
		}
	}
	return orderID, nil
}

func (e *Executor) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if orderID == "" {
		return errors.New("cancel order id is required")
	}
	return e.retry(ctx, func() error {
		_, err := e.client.CancelOrder(ctx, symbol, orderID)
		return venue.Classify(err)
	})
}

func (e *Executor) CancelAll(ctx context.Context, symbol string) (int, error) {
	var count int
	err := e.retry(ctx, func() error {
		var cancelErr error
		count, cancelErr = e.client.CancelAll(ctx, symbol)
		return venue.Classify(cancelErr)
	})
	return count, err
}

// retry repeats on connectivity errors only. Rejections and balance errors
// return immediately; the caller decides whether a recomputed price or the
// risk guard is the right response.
func (e *Executor) retry(ctx context.Context, fn func() error) error {
	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !venue.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return fmt.Errorf("retries exhausted: %w", lastErr)
}
