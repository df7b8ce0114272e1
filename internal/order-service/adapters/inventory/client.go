// Package inventory is the HTTP client for the inventory service stock lookup.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/order-placement/internal/order-service/ports"
)

// LookupSpanName names the span bracketing each remote stock lookup.
const LookupSpanName = "InventoryServiceLookUp"

const lookupPath = "/api/inventory"

var (
	// ErrNoResponse means the inventory replied without a body (or with JSON null).
	ErrNoResponse = errors.New("inventory: no stock response")

	// ErrMalformedResponse means the body could not be decoded or did not
	// carry one entry per queried SKU.
	ErrMalformedResponse = errors.New("inventory: malformed stock response")

	ErrUnexpectedStatus = errors.New("inventory: unexpected status")
)

// StatusError carries a non-200 status code from the inventory.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inventory: unexpected status %d", e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// IsTransient reports whether a lookup failure is worth retrying. Client
// errors other than 408 and 429 are not.
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusRequestTimeout || se.Code == http.StatusTooManyRequests
	}
	return true
}

// StockResponse is one entry of the inventory answer.
type StockResponse struct {
	SkuCode string `json:"skuCode"`
	InStock bool   `json:"inStock"`
}

var _ ports.StockVerifier = (*Client)(nil)

type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewClient returns a Client for the inventory service at baseURL. The
// httpClient transport is expected to propagate trace headers (otelhttp).
func NewClient(baseURL string, httpClient *http.Client, tracer trace.Tracer) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tracer:     tracer,
	}
}

// Verify issues one batched lookup for skuCodes and reports whether all of
// them are in stock. It blocks until the inventory answers or ctx is done.
func (c *Client) Verify(ctx context.Context, skuCodes []string) (bool, error) {
	ctx, span := c.tracer.Start(ctx, LookupSpanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.StringSlice("inventory.sku_codes", skuCodes),
		attribute.Int("inventory.sku_count", len(skuCodes)),
	)

	responses, err := c.lookup(ctx, skuCodes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	inStock := AllInStock(responses)
	span.SetAttributes(attribute.Bool("inventory.all_in_stock", inStock))
	span.SetStatus(codes.Ok, "")
	return inStock, nil
}

func (c *Client) lookup(ctx context.Context, skuCodes []string) ([]StockResponse, error) {
	u, err := url.Parse(c.baseURL + lookupPath)
	if err != nil {
		return nil, fmt.Errorf("inventory: parse url: %w", err)
	}
	q := url.Values{}
	for _, sku := range skuCodes {
		q.Add("skuCode", sku)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("inventory: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inventory: lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var out []StockResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoResponse
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if out == nil {
		return nil, ErrNoResponse
	}
	if len(out) != len(skuCodes) {
		return nil, fmt.Errorf("%w: %d entries for %d sku codes", ErrMalformedResponse, len(out), len(skuCodes))
	}
	return out, nil
}

// AllInStock is true iff every entry reports in stock. An empty list is
// vacuously true, which makes an order without line items pass the check.
func AllInStock(responses []StockResponse) bool {
	for _, r := range responses {
		if !r.InStock {
			return false
		}
	}
	return true
}
