package state

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"
)

const RunSnapshotKey = "run:last_snapshot"

// RunSnapshot is the compact record of the last completed cycle, persisted
// so an operator can inspect where a run left off after a crash or fault.
type RunSnapshot struct {
	Strategy      string  `msgpack:"strategy"`
	Venue         string  `msgpack:"venue"`
	Symbol        string  `msgpack:"symbol"`
	Status        string  `msgpack:"status"`
	MidPrice      float64 `msgpack:"mid_price"`
	BidPrice      float64 `msgpack:"bid_price"`
	AskPrice      float64 `msgpack:"ask_price"`
	HasBuyOrder   bool    `msgpack:"has_buy_order"`
	HasSellOrder  bool    `msgpack:"has_sell_order"`
	FaultReason   string  `msgpack:"fault_reason,omitempty"`
	LastRefreshMS int64   `msgpack:"last_refresh_ms"`
	UpdatedAtMS   int64   `msgpack:"updated_at_ms"`
}

func LoadRunSnapshot(ctx context.Context, store Store) (RunSnapshot, bool, error) {
	if store == nil {
		return RunSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.GetBlob(ctx, RunSnapshotKey)
	if err != nil || !ok || len(raw) == 0 {
		return RunSnapshot{}, false, err
	}
	var snapshot RunSnapshot
	if err := msgpack.Unmarshal(raw, &snapshot); err != nil {
		return RunSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveRunSnapshot(ctx context.Context, store Store, snapshot RunSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := msgpack.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.SetBlob(ctx, RunSnapshotKey, payload)
}
