package venue

import (
	"context"
	"time"

	"hl-mm-bot/internal/market"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderRequest struct {
	Symbol        string
	Side          Side
	Price         float64
	Size          float64
	ReduceOnly    bool
	ClientOrderID string
}

type OpenOrder struct {
	OrderID  string
	Symbol   string
	Side     Side
	Price    float64
	Size     float64
	PlacedAt time.Time
}

type Balance struct {
	Asset     string
	Available float64
	InOrders  float64
}

type Position struct {
	Symbol string
	Size   float64
	Entry  float64
}

// Client is the exchange-connector collaborator boundary. Implementations
// own authentication and the wire protocol; every call is synchronous with
// a bounded timeout taken from the context or the client's own config.
type Client interface {
	Name() string
	GetSnapshot(ctx context.Context, symbol string) (market.Snapshot, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (bool, error)
	CancelAll(ctx context.Context, symbol string) (int, error)
	OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
	Balances(ctx context.Context) (map[string]Balance, error)
	Positions(ctx context.Context) ([]Position, error)
}

// LeverageSetter is implemented by perp venues that expose a per-symbol
// leverage control. Spot venues need not implement it.
type LeverageSetter interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}
