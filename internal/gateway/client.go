package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"alert-executor/pkg/exchanges/common"
)

const (
	DefaultTimeout  = 10 * time.Second
	maxResponseBody = 1 << 20
)

// Client submits one order request per call: a single POST, no retry.
type Client struct {
	registry *Registry
	manager  *Manager
	http     *http.Client
	timeout  time.Duration
	log      *zap.Logger
}

// NewClient creates a Client. A nil manager disables health tracking.
func NewClient(registry *Registry, manager *Manager, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		registry: registry,
		manager:  manager,
		http:     &http.Client{},
		timeout:  timeout,
		log:      log.Named("gateway"),
	}
}

// Timeout returns the per-call deadline.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Execute POSTs req to the exchange. Transport failures and timeouts return
// *common.NetworkError; non-2xx answers return *common.HTTPError with the body.
func (c *Client) Execute(ctx context.Context, req common.OrderRequest, creds common.Credentials, testMode bool) (common.RawResponse, error) {
	adapter, err := c.registry.Lookup(req.Exchange)
	if err != nil {
		return common.RawResponse{}, err
	}
	name := adapter.Name

	base := adapter.Endpoints.Resolve(testMode)
	if base == "" {
		return common.RawResponse{}, common.Invalid("%s: no endpoint configured", name)
	}
	if testMode && !adapter.Endpoints.SandboxVerified {
		c.log.Warn("sandbox endpoint not verified",
			zap.String("exchange", name), zap.String("endpoint", base))
	}

	body, err := json.Marshal(req.Body)
	if err != nil {
		return common.RawResponse{}, common.Invalid("%s: encode order body: %v", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := strings.TrimRight(base, "/") + req.Path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return common.RawResponse{}, common.Invalid("%s: build request: %v", name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if err := adapter.SignerFor().Sign(httpReq, body, creds); err != nil {
		return common.RawResponse{}, common.Invalid("%s: sign request: %v", name, err)
	}

	if c.manager != nil {
		if err := c.manager.Allow(name); err != nil {
			return common.RawResponse{}, &common.NetworkError{Exchange: name, Err: err}
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		netErr := &common.NetworkError{Exchange: name, Err: err}
		c.recordFailure(name, netErr)
		c.log.Warn("order submission failed", zap.String("exchange", name),
			zap.String("client_order_id", req.ClientOrderID), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return common.RawResponse{}, netErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		netErr := &common.NetworkError{Exchange: name, Err: fmt.Errorf("read body: %w", err)}
		c.recordFailure(name, netErr)
		return common.RawResponse{}, netErr
	}

	if c.manager != nil && adapter.UsageHeader != "" {
		c.manager.RecordUsage(name, resp.Header.Get(adapter.UsageHeader), adapter.UsageLimit)
	}

	c.log.Debug("order submitted", zap.String("exchange", name), zap.String("url", url),
		zap.Int("status", resp.StatusCode), zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &common.HTTPError{Exchange: name, StatusCode: resp.StatusCode, Body: string(data)}
		// 4xx means the exchange is up and refused this request.
		if resp.StatusCode >= 500 {
			c.recordFailure(name, httpErr)
		} else {
			c.recordSuccess(name)
		}
		return common.RawResponse{}, httpErr
	}

	c.recordSuccess(name)
	return common.RawResponse{
		Exchange:   name,
		StatusCode: resp.StatusCode,
		Body:       data,
		ReceivedAt: time.Now(),
	}, nil
}

func (c *Client) recordFailure(exchange string, err error) {
	if c.manager != nil {
		c.manager.RecordFailure(exchange, err)
	}
}

func (c *Client) recordSuccess(exchange string) {
	if c.manager != nil {
		c.manager.RecordSuccess(exchange)
	}
}
