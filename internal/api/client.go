// Package api implements the HTTP client for the backend credits ledger
// service. All endpoints live under {baseURL}/api/v1/consumables and wrap
// their responses in a {data, error} envelope.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"credits/internal/models"
)

const basePath = "/api/v1/consumables"

// Client calls the credits ledger backend with bearer-token authentication.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a ledger client. Trailing slashes on baseURL are
// normalized away before path construction.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordPurchaseInput is the request body for recording a completed platform
// purchase against the ledger.
type RecordPurchaseInput struct {
	Credits          int     `json:"credits"`
	Source           string  `json:"source"`
	TransactionRefID *string `json:"transaction_ref_id,omitempty"`
	ProductID        *string `json:"product_id,omitempty"`
	PriceCents       *int64  `json:"price_cents,omitempty"`
	Currency         *string `json:"currency,omitempty"`
}

type recordUsageInput struct {
	Filename *string `json:"filename,omitempty"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// GetBalance fetches the current user's balance snapshot.
func (c *Client) GetBalance(ctx context.Context) (*models.CreditBalance, error) {
	var balance models.CreditBalance
	if err := c.do(ctx, http.MethodGet, "/balance", nil, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// RecordPurchase records a platform purchase and returns the server's
// authoritative balance.
func (c *Client) RecordPurchase(ctx context.Context, in RecordPurchaseInput) (*models.CreditBalance, error) {
	var balance models.CreditBalance
	if err := c.do(ctx, http.MethodPost, "/purchase", in, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// RecordUsage records a credit usage, optionally tagged with a filename.
func (c *Client) RecordUsage(ctx context.Context, filename *string) (*models.UsageResult, error) {
	var result models.UsageResult
	if err := c.do(ctx, http.MethodPost, "/use", recordUsageInput{Filename: filename}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPurchases fetches the purchase history page, most recent first.
func (c *Client) GetPurchases(ctx context.Context, limit, offset int) ([]models.PurchaseRecord, error) {
	var records []models.PurchaseRecord
	if err := c.do(ctx, http.MethodGet, "/purchases"+pageQuery(limit, offset), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetUsages fetches the usage history page, most recent first.
func (c *Client) GetUsages(ctx context.Context, limit, offset int) ([]models.UsageRecord, error) {
	var records []models.UsageRecord
	if err := c.do(ctx, http.MethodGet, "/usages"+pageQuery(limit, offset), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func pageQuery(limit, offset int) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+basePath+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		// A non-success status with an unparseable body still surfaces as a
		// backend error rather than a decode error.
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &BackendError{Status: resp.StatusCode, Message: "request failed"}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	// len covers a missing data field; RawMessage keeps a JSON null verbatim,
	// so "null" is just as absent.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || len(env.Data) == 0 || string(env.Data) == "null" {
		msg := env.Error
		if msg == "" {
			msg = "request failed"
		}
		log.Debug().Int("status", resp.StatusCode).Str("path", path).Str("error", msg).
			Msg("ledger request failed")
		return &BackendError{Status: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
