package hl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"hl-mm-bot/internal/venue"

	"go.uber.org/zap"
)

type restClient struct {
	infoURL     string
	exchangeURL string
	http        *http.Client
	log         *zap.Logger
}

func newRESTClient(infoURL, exchangeURL string, timeout time.Duration, log *zap.Logger) *restClient {
	return &restClient{
		infoURL:     infoURL,
		exchangeURL: exchangeURL,
		http:        &http.Client{Timeout: timeout},
		log:         log,
	}
}

func (c *restClient) Info(ctx context.Context, req any) (any, error) {
	return c.post(ctx, c.infoURL+"/info", req)
}

// Exchange posts a signed-upstream action to the order gateway. The gateway
// owns key custody and signing; this process only ever sees the action
// payload and the gateway's response.
func (c *restClient) Exchange(ctx context.Context, req any) (map[string]any, error) {
	data, err := c.post(ctx, c.exchangeURL+"/exchange", req)
	if err != nil {
		return nil, err
	}
	result, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected exchange response shape %T", data)
	}
	return result, nil
}

func (c *restClient) post(ctx context.Context, url string, req any) (any, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		statusErr := fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
		if retryableStatus(resp.StatusCode) {
			return nil, errors.Join(venue.ErrConnectivity, statusErr)
		}
		return nil, statusErr
	}
	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// retryableStatus marks transient upstream failures as connectivity errors
// so the executor retries them locally instead of tripping the guard.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
