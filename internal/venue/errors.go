package venue

import (
	"context"
	"errors"
	"net"
	"strings"
)

var (
	// ErrConnectivity marks network and timeout failures. Callers retry
	// with backoff before escalating.
	ErrConnectivity = errors.New("venue connectivity error")

	// ErrInsufficientBalance is never retried; it means the engine's view
	// of its own balance is wrong.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrOrderRejected marks a venue-side rejection of an otherwise
	// deliverable request.
	ErrOrderRejected = errors.New("order rejected")
)

// Classify folds transport-level failures into the taxonomy. Errors that
// already carry a taxonomy sentinel pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConnectivity) || errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrOrderRejected) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrConnectivity, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Join(ErrConnectivity, err)
	}
	return err
}

// ClassifyResponse maps a venue rejection message onto the taxonomy, the
// way the venues actually phrase them.
func ClassifyResponse(message string) error {
	if message == "" {
		return nil
	}
	lower := strings.ToLower(message)
	if strings.Contains(lower, "insufficient") && strings.Contains(lower, "balance") {
		return errors.Join(ErrInsufficientBalance, errors.New(message))
	}
	return errors.Join(ErrOrderRejected, errors.New(message))
}

// IsRetryable reports whether an error is worth a local retry with backoff.
// Only connectivity failures qualify; rejections and balance errors need a
// changed request or the risk guard, not a repeat.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnectivity)
}
