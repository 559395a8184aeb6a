package hl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"hl-mm-bot/internal/config"
	"hl-mm-bot/internal/market"
	"hl-mm-bot/internal/venue"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	spotAssetOffset = 10000
	metaRefresh     = 5 * time.Minute
	midMaxAge       = 10 * time.Second
)

type assetInfo struct {
	ID         int
	Coin       string
	SzDecimals int
	Spot       bool
}

// Client is the Hyperliquid connector. Market data comes from the public
// info endpoint plus an allMids websocket feed; order actions go through
// the exchange gateway configured per venue.
type Client struct {
	name    string
	cfg     config.VenueConfig
	rest    *restClient
	ws      *wsClient
	log     *zap.Logger
	limiter *rate.Limiter

	mu     sync.RWMutex
	mids   map[string]float64
	midsAt time.Time
	assets map[string]assetInfo
	metaAt time.Time
}

func New(name string, cfg config.VenueConfig, log *zap.Logger) *Client {
	var ws *wsClient
	if cfg.WSURL != "" {
		ws = newWSClient(cfg.WSURL, cfg.ReconnectDelay, cfg.PingInterval, log)
	}
	return &Client{
		name:    name,
		cfg:     cfg,
		rest:    newRESTClient(cfg.RESTURL, cfg.ExchangeURL, cfg.Timeout, log),
		ws:      ws,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.OrdersPerSec), cfg.OrderBurst),
		mids:    make(map[string]float64),
		assets:  make(map[string]assetInfo),
	}
}

func (c *Client) Name() string {
	return c.name
}

// Start primes the asset metadata and brings up the mid-price feed. The
// feed goroutine lives until ctx ends; REST paths keep working without it.
func (c *Client) Start(ctx context.Context) error {
	if err := c.refreshMeta(ctx); err != nil {
		return fmt.Errorf("refresh meta: %w", venue.Classify(err))
	}
	if c.ws == nil {
		return nil
	}
	if err := c.ws.Connect(ctx); err != nil {
		return venue.Classify(err)
	}
	sub := map[string]any{"method": "subscribe", "subscription": map[string]any{"type": "allMids"}}
	if err := c.ws.Subscribe(ctx, sub); err != nil {
		return venue.Classify(err)
	}
	go func() {
		if err := c.ws.Run(ctx, c.handleMessage); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn("mid feed stopped", zap.Error(err))
		}
	}()
	return nil
}

func (c *Client) handleMessage(raw json.RawMessage) {
	var msg struct {
		Channel string `json:"channel"`
		Data    struct {
			Mids map[string]string `json:"mids"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Channel != "allMids" {
		return
	}
	c.mu.Lock()
	for coin, px := range msg.Data.Mids {
		if v, err := strconv.ParseFloat(px, 64); err == nil && v > 0 {
			c.mids[coin] = v
		}
	}
	c.midsAt = time.Now()
	c.mu.Unlock()
}

func (c *Client) GetSnapshot(ctx context.Context, symbol string) (market.Snapshot, error) {
	asset, err := c.resolve(ctx, symbol)
	if err != nil {
		return market.Snapshot{}, err
	}
	data, err := c.rest.Info(ctx, map[string]any{"type": "l2Book", "coin": asset.Coin})
	if err != nil {
		return market.Snapshot{}, venue.Classify(err)
	}
	bid, ask, err := parseL2Book(data)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("%s l2 book: %w", symbol, errors.Join(market.ErrInvalidSnapshot, err))
	}
	mid := c.cachedMid(asset.Coin)
	if mid <= 0 {
		mid = (bid + ask) / 2
	}
	return market.Snapshot{
		Venue:     c.name,
		Symbol:    symbol,
		MidPrice:  mid,
		BestBid:   bid,
		BestAsk:   ask,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (c *Client) cachedMid(coin string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if time.Since(c.midsAt) > midMaxAge {
		return 0
	}
	return c.mids[coin]
}

func (c *Client) PlaceOrder(ctx context.Context, req venue.OrderRequest) (string, error) {
	asset, err := c.resolve(ctx, req.Symbol)
	if err != nil {
		return "", err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", venue.Classify(err)
	}
	wire := map[string]any{
		"a": asset.ID,
		"b": req.Side == venue.SideBuy,
		"p": formatNum(req.Price),
		"s": formatSize(req.Size, asset.SzDecimals),
		"r": req.ReduceOnly,
		"t": map[string]any{"limit": map[string]any{"tif": "Gtc"}},
	}
	if req.ClientOrderID != "" {
		wire["c"] = cloidHex(req.ClientOrderID)
	}
	action := map[string]any{"type": "order", "orders": []any{wire}, "grouping": "na"}
	resp, err := c.rest.Exchange(ctx, action)
	if err != nil {
		return "", venue.Classify(err)
	}
	status, err := firstStatus(resp)
	if err != nil {
		return "", err
	}
	if msg, ok := status.(string); ok {
		return "", venue.ClassifyResponse(msg)
	}
	entry, ok := status.(map[string]any)
	if !ok {
		return "", fmt.Errorf("unexpected order status shape %T", status)
	}
	for _, key := range []string{"resting", "filled"} {
		if inner, ok := entry[key].(map[string]any); ok {
			return formatOID(inner["oid"]), nil
		}
	}
	if msg, ok := entry["error"].(string); ok {
		return "", venue.ClassifyResponse(msg)
	}
	return "", fmt.Errorf("unexpected order status: %v", entry)
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	asset, err := c.resolve(ctx, symbol)
	if err != nil {
		return false, err
	}
	oid, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("bad order id %q: %w", orderID, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return false, venue.Classify(err)
	}
	action := map[string]any{
		"type":    "cancel",
		"cancels": []any{map[string]any{"a": asset.ID, "o": oid}},
	}
	resp, err := c.rest.Exchange(ctx, action)
	if err != nil {
		return false, venue.Classify(err)
	}
	status, err := firstStatus(resp)
	if err != nil {
		return false, err
	}
	if msg, ok := status.(string); ok {
		if msg == "success" {
			return true, nil
		}
		// Racing a fill or an earlier cancel is not an error.
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "never placed") || strings.Contains(lower, "already") || strings.Contains(lower, "filled") {
			return false, nil
		}
		return false, venue.ClassifyResponse(msg)
	}
	if entry, ok := status.(map[string]any); ok {
		if msg, ok := entry["error"].(string); ok {
			return false, venue.ClassifyResponse(msg)
		}
	}
	return true, nil
}

// CancelAll cancels open orders one by one; the venue has no bulk cancel.
// An empty symbol means every market, which is what the risk guard uses.
func (c *Client) CancelAll(ctx context.Context, symbol string) (int, error) {
	orders, err := c.OpenOrders(ctx, symbol)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	var errs []error
	for _, order := range orders {
		ok, err := c.CancelOrder(ctx, order.Symbol, order.OrderID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			cancelled++
		}
	}
	return cancelled, errors.Join(errs...)
}

// OpenOrders lists this account's resting orders. An empty symbol returns
// every market, with Symbol set to the venue's coin key.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]venue.OpenOrder, error) {
	coin := ""
	if symbol != "" {
		asset, err := c.resolve(ctx, symbol)
		if err != nil {
			return nil, err
		}
		coin = asset.Coin
	}
	data, err := c.rest.Info(ctx, map[string]any{"type": "openOrders", "user": c.cfg.AccountAddress})
	if err != nil {
		return nil, venue.Classify(err)
	}
	entries, ok := data.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected openOrders shape %T", data)
	}
	var orders []venue.OpenOrder
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		entryCoin := stringField(entry, "coin")
		if coin != "" && entryCoin != coin {
			continue
		}
		name := symbol
		if name == "" {
			name = entryCoin
		}
		side := venue.SideSell
		if stringField(entry, "side") == "B" {
			side = venue.SideBuy
		}
		orders = append(orders, venue.OpenOrder{
			OrderID:  formatOID(entry["oid"]),
			Symbol:   name,
			Side:     side,
			Price:    floatField(entry, "limitPx"),
			Size:     floatField(entry, "sz"),
			PlacedAt: time.UnixMilli(int64(floatField(entry, "timestamp"))).UTC(),
		})
	}
	return orders, nil
}

// Balances reads the spot clearinghouse. A venue traded only on perps has
// no spot rows; its margin then surfaces as a single USDC balance.
func (c *Client) Balances(ctx context.Context) (map[string]venue.Balance, error) {
	data, err := c.rest.Info(ctx, map[string]any{"type": "spotClearinghouseState", "user": c.cfg.AccountAddress})
	if err != nil {
		return nil, venue.Classify(err)
	}
	result := make(map[string]venue.Balance)
	if state, ok := data.(map[string]any); ok {
		if rows, ok := state["balances"].([]any); ok {
			for _, raw := range rows {
				entry, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				asset := stringField(entry, "coin")
				if asset == "" {
					continue
				}
				total := floatField(entry, "total")
				hold := floatField(entry, "hold")
				result[asset] = venue.Balance{
					Asset:     asset,
					Available: total - hold,
					InOrders:  hold,
				}
			}
		}
	}
	if len(result) > 0 {
		return result, nil
	}
	data, err = c.rest.Info(ctx, map[string]any{"type": "clearinghouseState", "user": c.cfg.AccountAddress})
	if err != nil {
		return nil, venue.Classify(err)
	}
	if state, ok := data.(map[string]any); ok {
		withdrawable := floatField(state, "withdrawable")
		if withdrawable > 0 {
			result["USDC"] = venue.Balance{Asset: "USDC", Available: withdrawable}
		}
	}
	return result, nil
}

func (c *Client) Positions(ctx context.Context) ([]venue.Position, error) {
	data, err := c.rest.Info(ctx, map[string]any{"type": "clearinghouseState", "user": c.cfg.AccountAddress})
	if err != nil {
		return nil, venue.Classify(err)
	}
	state, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected clearinghouseState shape %T", data)
	}
	rows, _ := state["assetPositions"].([]any)
	var positions []venue.Position
	for _, raw := range rows {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		pos, ok := entry["position"].(map[string]any)
		if !ok {
			continue
		}
		size := floatField(pos, "szi")
		if size == 0 {
			continue
		}
		positions = append(positions, venue.Position{
			Symbol: stringField(pos, "coin"),
			Size:   size,
			Entry:  floatField(pos, "entryPx"),
		})
	}
	return positions, nil
}

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	asset, err := c.resolve(ctx, symbol)
	if err != nil {
		return err
	}
	action := map[string]any{
		"type":     "updateLeverage",
		"asset":    asset.ID,
		"isCross":  true,
		"leverage": leverage,
	}
	resp, err := c.rest.Exchange(ctx, action)
	if err != nil {
		return venue.Classify(err)
	}
	if status := stringField(resp, "status"); status != "" && status != "ok" {
		return venue.ClassifyResponse(status)
	}
	return nil
}

// resolve maps a configured symbol onto the venue's asset id and l2 coin
// key, refreshing cached metadata when it ages out.
func (c *Client) resolve(ctx context.Context, symbol string) (assetInfo, error) {
	c.mu.RLock()
	asset, ok := c.assets[symbol]
	fresh := time.Since(c.metaAt) < metaRefresh
	c.mu.RUnlock()
	if ok && fresh {
		return asset, nil
	}
	if err := c.refreshMeta(ctx); err != nil {
		if ok {
			return asset, nil
		}
		return assetInfo{}, venue.Classify(err)
	}
	c.mu.RLock()
	asset, ok = c.assets[symbol]
	c.mu.RUnlock()
	if !ok {
		return assetInfo{}, fmt.Errorf("unknown symbol %q on %s", symbol, c.name)
	}
	return asset, nil
}

func (c *Client) refreshMeta(ctx context.Context) error {
	assets := make(map[string]assetInfo)
	perp, err := c.rest.Info(ctx, map[string]any{"type": "meta"})
	if err != nil {
		return err
	}
	if err := parsePerpMeta(perp, assets); err != nil {
		return err
	}
	spot, err := c.rest.Info(ctx, map[string]any{"type": "spotMeta"})
	if err != nil {
		return err
	}
	if err := parseSpotMeta(spot, assets); err != nil {
		return err
	}
	c.mu.Lock()
	c.assets = assets
	c.metaAt = time.Now()
	c.mu.Unlock()
	return nil
}
