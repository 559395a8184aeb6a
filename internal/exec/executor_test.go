package exec

import (
	"context"
	"errors"
	"testing"

	"hl-mm-bot/internal/market"
	"hl-mm-bot/internal/venue"

	"go.uber.org/zap"
)

type fakeClient struct {
	placeFn     func(ctx context.Context, req venue.OrderRequest) (string, error)
	cancelFn    func(ctx context.Context, symbol, orderID string) (bool, error)
	cancelAllFn func(ctx context.Context, symbol string) (int, error)
}

func (f *fakeClient) Name() string { return "hl-main" }

func (f *fakeClient) GetSnapshot(ctx context.Context, symbol string) (market.Snapshot, error) {
	return market.Snapshot{}, errors.New("not implemented")
}

func (f *fakeClient) PlaceOrder(ctx context.Context, req venue.OrderRequest) (string, error) {
	return f.placeFn(ctx, req)
}

func (f *fakeClient) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	return f.cancelFn(ctx, symbol, orderID)
}

func (f *fakeClient) CancelAll(ctx context.Context, symbol string) (int, error) {
	return f.cancelAllFn(ctx, symbol)
}

func (f *fakeClient) OpenOrders(ctx context.Context, symbol string) ([]venue.OpenOrder, error) {
	return nil, nil
}

func (f *fakeClient) Balances(ctx context.Context) (map[string]venue.Balance, error) {
	return nil, nil
}

func (f *fakeClient) Positions(ctx context.Context) ([]venue.Position, error) {
	return nil, nil
}

type memStore struct {
	kv    map[string]string
	blobs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{kv: make(map[string]string), blobs: make(map[string][]byte)}
}

func (s *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *memStore) Set(ctx context.Context, key, value string) error {
	s.kv[key] = value
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	delete(s.kv, key)
	delete(s.blobs, key)
	return nil
}

func (s *memStore) GetBlob(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := s.blobs[key]
	return v, ok, nil
}

func (s *memStore) SetBlob(ctx context.Context, key string, value []byte) error {
	s.blobs[key] = value
	return nil
}

func (s *memStore) Close() error { return nil }

func TestPlaceOrderAssignsClientOrderID(t *testing.T) {
	var seen venue.OrderRequest
	client := &fakeClient{placeFn: func(ctx context.Context, req venue.OrderRequest) (string, error) {
		seen = req
		return "1001", nil
	}}
	ex := New(client, newMemStore(), zap.NewNop())

	oid, err := ex.PlaceOrder(context.Background(), venue.OrderRequest{Symbol: "ETH/USDC", Side: venue.SideBuy, Price: 3255.12, Size: 0.5})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if oid != "1001" {
		t.Fatalf("order id = %s, want 1001", oid)
	}
	if seen.ClientOrderID == "" {
		t.Fatal("client order id was not assigned")
	}
}

func TestPlaceOrderDedupesThroughStore(t *testing.T) {
	calls := 0
	client := &fakeClient{placeFn: func(ctx context.Context, req venue.OrderRequest) (string, error) {
		calls++
		return "1001", nil
	}}
	store := newMemStore()
	ex := New(client, store, zap.NewNop())

	req := venue.OrderRequest{Symbol: "ETH/USDC", Side: venue.SideBuy, Price: 3255.12, Size: 0.5, ClientOrderID: "abc"}
	first, err := ex.PlaceOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("first place: %v", err)
	}
	second, err := ex.PlaceOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("second place: %v", err)
	}
	if first != second {
		t.Fatalf("ids differ: %s vs %s", first, second)
	}
	if calls != 1 {
		t.Fatalf("venue called %d times, want 1", calls)
	}
}

func TestPlaceOrderRetriesConnectivityOnly(t *testing.T) {
	attempts := 0
	client := &fakeClient{placeFn: func(ctx context.Context, req venue.OrderRequest) (string, error) {
		attempts++
		if attempts < 3 {
			return "", venue.ErrConnectivity
		}
		return "1001", nil
	}}
	ex := New(client, newMemStore(), zap.NewNop())

	oid, err := ex.PlaceOrder(context.Background(), venue.OrderRequest{Symbol: "ETH/USDC", Side: venue.SideBuy, Price: 1, Size: 1})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if oid != "1001" || attempts != 3 {
		t.Fatalf("oid=%s attempts=%d, want 1001 after 3 attempts", oid, attempts)
	}
}

func TestPlaceOrderDoesNotRetryRejections(t *testing.T) {
	attempts := 0
	client := &fakeClient{placeFn: func(ctx context.Context, req venue.OrderRequest) (string, error) {
		attempts++
		return "", venue.ErrOrderRejected
	}}
	ex := New(client, newMemStore(), zap.NewNop())

	_, err := ex.PlaceOrder(context.Background(), venue.OrderRequest{Symbol: "ETH/USDC", Side: venue.SideBuy, Price: 1, Size: 1})
	if !errors.Is(err, venue.ErrOrderRejected) {
		t.Fatalf("err = %v, want ErrOrderRejected", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestPlaceOrderExhaustsRetries(t *testing.T) {
	client := &fakeClient{placeFn: func(ctx context.Context, req venue.OrderRequest) (string, error) {
		return "", venue.ErrConnectivity
	}}
	ex := New(client, newMemStore(), zap.NewNop())

	_, err := ex.PlaceOrder(context.Background(), venue.OrderRequest{Symbol: "ETH/USDC", Side: venue.SideBuy, Price: 1, Size: 1})
	if !errors.Is(err, venue.ErrConnectivity) {
		t.Fatalf("err = %v, want ErrConnectivity after exhausted retries", err)
	}
}

func TestCancelOrderRequiresID(t *testing.T) {
	ex := New(&fakeClient{}, newMemStore(), zap.NewNop())
	if err := ex.CancelOrder(context.Background(), "ETH/USDC", ""); err == nil {
		t.Fatal("empty order id accepted")
	}
}

func TestCancelAllPassesThrough(t *testing.T) {
	client := &fakeClient{cancelAllFn: func(ctx context.Context, symbol string) (int, error) {
		return 2, nil
	}}
	ex := New(client, newMemStore(), zap.NewNop())

	count, err := ex.CancelAll(context.Background(), "ETH/USDC")
	if err != nil {
		t.Fatalf("CancelAll returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}
