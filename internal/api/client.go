// Package api implements the low-level HTTP transport against the
// ticketing backend: URL joining, JSON codec, bearer injection and
// normalization of transport failures.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-client/internal/config"
	"github.com/spec-kit/ticket-client/internal/observability"
	"github.com/spec-kit/ticket-client/pkg/util"
)

// Client issues JSON requests against a fixed base URL.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewClient builds a transport with the configured timeout. The
// timeout bounds every call so an unresponsive backend cannot leave a
// store loading forever.
func NewClient(cfg config.APIConfig, logger *zap.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.RequestTimeout()},
		logger:  logger,
		metrics: metrics,
	}
}

// Response is a fully-read backend response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Err maps a non-2xx response to an APIError, or nil for success.
func (r *Response) Err() *util.APIError {
	if r.OK() {
		return nil
	}
	return util.FromResponse(r.StatusCode, r.Body)
}

// Do issues one request. body is JSON-encoded when non-nil; bearer is
// attached as an Authorization header when non-empty. Transport
// failures come back as *util.APIError of kind network; HTTP-level
// failures are returned as a Response for the caller to interpret.
func (c *Client) Do(ctx context.Context, method, path, bearer string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, util.NewNetworkError(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, util.NewNetworkError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordError(path, method, string(util.KindNetwork))
		c.logger.Error("api request error", zap.String("path", path), zap.Error(err))
		return nil, util.NewNetworkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordError(path, method, string(util.KindNetwork))
		return nil, util.NewNetworkError(err)
	}

	c.metrics.RecordRequest(path, method, resp.StatusCode, time.Since(start))
	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// EncodeQuery renders filters as a query-string suffix, empty when no
// filters are set.
func EncodeQuery(filters map[string]string) string {
	if len(filters) == 0 {
		return ""
	}
	values := url.Values{}
	for key, val := range filters {
		values.Set(key, val)
	}
	return "?" + values.Encode()
}
