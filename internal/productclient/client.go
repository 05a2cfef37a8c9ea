// Package productclient calls the product directory's internal endpoints on
// behalf of the order lifecycle.
package productclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iippk/PersonalWorks/internal/httpx"
	"github.com/iippk/PersonalWorks/internal/orders"
)

const DefaultTimeout = 3 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	tracer  trace.Tracer
}

var _ orders.ProductDirectory = (*Client)(nil)

// New returns a client for baseURL. Every call is bounded by timeout; a
// non-positive timeout falls back to DefaultTimeout.
func New(baseURL string, timeout time.Duration, hc *http.Client) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		timeout: timeout,
		tracer:  otel.Tracer("github.com/iippk/PersonalWorks/internal/productclient"),
	}
}

func (c *Client) Get(ctx context.Context, id int64) (orders.Product, error) {
	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/product/internal/%d", id), nil)
	if err != nil {
		return orders.Product{}, err
	}
	if len(data) == 0 || string(data) == "null" {
		return orders.Product{}, fmt.Errorf("%w: empty product payload for %d", orders.ErrRemoteRejected, id)
	}
	var p orders.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return orders.Product{}, fmt.Errorf("%w: decode product %d: %v", orders.ErrRemoteRejected, id, err)
	}
	return p, nil
}

func (c *Client) SetStatus(ctx context.Context, id int64, status int) error {
	_, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/product/internal/%d/status", id),
		url.Values{"status": {strconv.Itoa(status)}})
	return err
}

func (c *Client) SetShipped(ctx context.Context, id int64, shipped int) error {
	_, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/product/internal/%d/shipped", id),
		url.Values{"shipped": {strconv.Itoa(shipped)}})
	return err
}

// do sends one request and returns the envelope data. Transport failures,
// timeouts and 5xx map to ErrRemoteUnavailable; any other non-success,
// including a well-formed error envelope, maps to ErrRemoteRejected. A 404
// envelope on GET maps to ErrNotFound.
func (c *Client) do(ctx context.Context, method, path string, q url.Values) (data json.RawMessage, err error) {
	ctx, span := c.tracer.Start(ctx, "productclient "+method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", orders.ErrRemoteUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %s timed out after %s", orders.ErrRemoteUnavailable, method, path, c.timeout)
		}
		return nil, fmt.Errorf("%w: %s %s: %v", orders.ErrRemoteUnavailable, method, path, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %v", orders.ErrRemoteUnavailable, method, path, err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %s %s returned %d", orders.ErrRemoteUnavailable, method, path, resp.StatusCode)
	}

	var env httpx.Response
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %s %s returned %d with undecodable body", orders.ErrRemoteRejected, method, path, resp.StatusCode)
	}
	if env.Code != httpx.CodeOK {
		if method == http.MethodGet && env.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", orders.ErrNotFound, env.Message)
		}
		return nil, fmt.Errorf("%w: %s %s: code %d: %s", orders.ErrRemoteRejected, method, path, env.Code, env.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s returned %d", orders.ErrRemoteRejected, method, path, resp.StatusCode)
	}
	return env.Data, nil
}
