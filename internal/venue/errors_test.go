package venue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("nil should stay nil")
	}
	if err := Classify(context.DeadlineExceeded); !errors.Is(err, ErrConnectivity) {
		t.Fatalf("deadline = %v, want ErrConnectivity", err)
	}
	if err := Classify(timeoutErr{}); !errors.Is(err, ErrConnectivity) {
		t.Fatalf("net error = %v, want ErrConnectivity", err)
	}

	// Taxonomy sentinels pass through unchanged, even wrapped.
	wrapped := fmt.Errorf("place: %w", ErrInsufficientBalance)
	if err := Classify(wrapped); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("wrapped sentinel = %v", err)
	}

	other := errors.New("something else")
	if err := Classify(other); !errors.Is(err, other) || errors.Is(err, ErrConnectivity) {
		t.Fatalf("unknown error reclassified: %v", err)
	}
}

func TestClassifyResponse(t *testing.T) {
	if err := ClassifyResponse(""); err != nil {
		t.Fatalf("empty message = %v, want nil", err)
	}
	err := ClassifyResponse("Insufficient spot balance asset=150")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("balance message = %v, want ErrInsufficientBalance", err)
	}
	err = ClassifyResponse("Order price must be divisible by tick size")
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("reject message = %v, want ErrOrderRejected", err)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("post: %w", ErrConnectivity)) {
		t.Fatal("connectivity errors should be retryable")
	}
	if IsRetryable(ErrOrderRejected) || IsRetryable(ErrInsufficientBalance) {
		t.Fatal("rejections and balance errors must not be retryable")
	}
}
