package hl

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

// parseL2Book pulls the best level from each side of an l2Book response.
// The payload nests levels as [bids, asks], best first.
func parseL2Book(payload any) (bid, ask float64, err error) {
	book, ok := payload.(map[string]any)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected l2Book shape %T", payload)
	}
	levels, ok := book["levels"].([]any)
	if !ok || len(levels) < 2 {
		return 0, 0, errors.New("l2Book missing levels")
	}
	bid = bestPrice(levels[0])
	ask = bestPrice(levels[1])
	if bid <= 0 || ask <= 0 {
		return 0, 0, errors.New("l2Book side empty")
	}
	return bid, ask, nil
}

func bestPrice(side any) float64 {
	rows, ok := side.([]any)
	if !ok || len(rows) == 0 {
		return 0
	}
	level, ok := rows[0].(map[string]any)
	if !ok {
		return 0
	}
	return floatField(level, "px")
}

func parsePerpMeta(payload any, assets map[string]assetInfo) error {
	meta, ok := payload.(map[string]any)
	if !ok {
		return fmt.Errorf("unexpected meta shape %T", payload)
	}
	universe, ok := meta["universe"].([]any)
	if !ok {
		return errors.New("meta missing universe")
	}
	for i, raw := range universe {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := stringField(entry, "name")
		if name == "" {
			continue
		}
		assets[name] = assetInfo{
			ID:         i,
			Coin:       name,
			SzDecimals: int(floatField(entry, "szDecimals")),
		}
	}
	return nil
}

// parseSpotMeta keys spot pairs two ways: by the venue's raw pair name and
// by the BASE/QUOTE form the config uses. The l2 coin key is always the
// raw name.
func parseSpotMeta(payload any, assets map[string]assetInfo) error {
	meta, ok := payload.(map[string]any)
	if !ok {
		return fmt.Errorf("unexpected spotMeta shape %T", payload)
	}
	universe, ok := meta["universe"].([]any)
	if !ok {
		return errors.New("spotMeta missing universe")
	}
	tokens, _ := meta["tokens"].([]any)
	type tokenMeta struct {
		name       string
		szDecimals int
	}
	tokenByIndex := make(map[int]tokenMeta)
	for _, raw := range tokens {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		idx := int(floatField(entry, "index"))
		tokenByIndex[idx] = tokenMeta{
			name:       stringField(entry, "name"),
			szDecimals: int(floatField(entry, "szDecimals")),
		}
	}
	for _, raw := range universe {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rawName := stringField(entry, "name")
		pairTokens, _ := entry["tokens"].([]any)
		index := int(floatField(entry, "index"))
		info := assetInfo{
			ID:   spotAssetOffset + index,
			Coin: rawName,
			Spot: true,
		}
		if len(pairTokens) == 2 {
			base := tokenByIndex[intFromAny(pairTokens[0])]
			quote := tokenByIndex[intFromAny(pairTokens[1])]
			info.SzDecimals = base.szDecimals
			if base.name != "" && quote.name != "" {
				assets[base.name+"/"+quote.name] = info
			}
		}
		if rawName != "" {
			assets[rawName] = info
		}
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// floatField tolerates both JSON numbers and the string-encoded decimals
// the venue favors.
func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func intFromAny(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatSize(v float64, szDecimals int) string {
	if szDecimals < 0 {
		szDecimals = 0
	}
	return strconv.FormatFloat(v, 'f', szDecimals, 64)
}

func formatOID(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatInt(int64(n), 10)
	case string:
		return n
	default:
		return fmt.Sprintf("%v", v)
	}
}

// cloidHex derives the venue's 16-byte client order id from an arbitrary
// idempotency key.
func cloidHex(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "0x" + hex.EncodeToString(sum[:16])
}

// firstStatus digs the single order/cancel status out of an exchange
// response, surfacing top-level errors first.
func firstStatus(resp map[string]any) (any, error) {
	if status := stringField(resp, "status"); status != "" && status != "ok" {
		return nil, fmt.Errorf("exchange request failed: %s", status)
	}
	response, ok := resp["response"].(map[string]any)
	if !ok {
		return nil, errors.New("exchange response missing body")
	}
	data, ok := response["data"].(map[string]any)
	if !ok {
		return nil, errors.New("exchange response missing data")
	}
	statuses, ok := data["statuses"].([]any)
	if !ok || len(statuses) == 0 {
		return nil, errors.New("exchange response missing statuses")
	}
	return statuses[0], nil
}
