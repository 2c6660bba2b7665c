// Package revenuecat implements the mobile purchase adapter over the
// RevenueCat REST API. The catalog comes from the subscriber offerings
// endpoint; purchases are recorded by posting the device receipt to
// /receipts. The store payment sheet itself runs on the device, so the host
// app supplies a ReceiptFunc that resolves the receipt for a purchase.
//
// Store pricing is resolved by the mobile SDK on the device; the REST
// catalog carries identifiers only, so the credit quantity is encoded in the
// store product identifier (for example "credits_5").
package revenuecat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"credits/internal/adapter"
	"credits/internal/models"
)

const defaultBaseURL = "https://api.revenuecat.com/v1"

// ReceiptFunc resolves the device receipt (fetch token) for a purchase. It
// typically bridges to the running mobile app.
type ReceiptFunc func(ctx context.Context, params adapter.PurchaseParams) (string, error)

// Adapter is the RevenueCat-backed mobile adapter. Platform is "apple" or
// "google" and doubles as the reported purchase source.
type Adapter struct {
	apiKey   string
	platform string
	baseURL  string
	http     *http.Client
	receipt  ReceiptFunc

	mu        sync.Mutex
	appUserID string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL overrides the RevenueCat API base URL.
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Adapter) { a.http = hc }
}

// WithReceiptFunc installs the device receipt resolver required by Purchase.
func WithReceiptFunc(fn ReceiptFunc) Option {
	return func(a *Adapter) { a.receipt = fn }
}

// New creates a mobile adapter. platform must be adapter.SourceApple or
// adapter.SourceGoogle.
func New(apiKey, platform string, opts ...Option) *Adapter {
	a := &Adapter{
		apiKey:   apiKey,
		platform: platform,
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type offeringsResponse struct {
	CurrentOfferingID string `json:"current_offering_id"`
	Offerings         []struct {
		Identifier  string `json:"identifier"`
		Description string `json:"description"`
		Packages    []struct {
			Identifier                string `json:"identifier"`
			PlatformProductIdentifier string `json:"platform_product_identifier"`
		} `json:"packages"`
	} `json:"offerings"`
}

// GetOfferings fetches the subscriber's offerings. A subscriber with no
// configured offerings yields an empty map, not an error.
func (a *Adapter) GetOfferings(ctx context.Context) (*adapter.Offerings, error) {
	userID := a.boundUser()
	if userID == "" {
		return nil, adapter.ErrNoBoundUser
	}

	var resp offeringsResponse
	path := "/subscribers/" + userID + "/offerings"
	if err := a.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	offerings := make(map[string]adapter.Offering, len(resp.Offerings))
	for _, off := range resp.Offerings {
		packages := make([]models.CreditPackage, 0, len(off.Packages))
		for _, pkg := range off.Packages {
			packages = append(packages, models.CreditPackage{
				PackageID: pkg.Identifier,
				ProductID: pkg.PlatformProductIdentifier,
				Title:     off.Description,
				Credits:   creditsFromProductID(pkg.PlatformProductIdentifier),
			})
		}
		offerings[off.Identifier] = adapter.Offering{
			Identifier: off.Identifier,
			Metadata:   map[string]interface{}{"current": off.Identifier == resp.CurrentOfferingID},
			Packages:   packages,
		}
	}
	return &adapter.Offerings{All: offerings}, nil
}

type receiptRequest struct {
	AppUserID  string `json:"app_user_id"`
	FetchToken string `json:"fetch_token"`
	ProductID  string `json:"product_id"`
}

// Purchase resolves the device receipt for the package and records it with
// RevenueCat.
func (a *Adapter) Purchase(ctx context.Context, params adapter.PurchaseParams) (*adapter.PurchaseResult, error) {
	userID := a.boundUser()
	if userID == "" {
		return nil, adapter.ErrNoBoundUser
	}
	if a.receipt == nil {
		return nil, &adapter.PurchaseError{Err: fmt.Errorf("no receipt resolver configured")}
	}

	offerings, err := a.GetOfferings(ctx)
	if err != nil {
		return nil, &adapter.PurchaseError{Err: fmt.Errorf("resolve offerings: %w", err)}
	}
	off, ok := offerings.All[params.OfferingID]
	if !ok {
		return nil, adapter.ErrPackageNotFound
	}
	var pkg *models.CreditPackage
	for i := range off.Packages {
		if off.Packages[i].PackageID == params.PackageID {
			pkg = &off.Packages[i]
			break
		}
	}
	if pkg == nil {
		return nil, adapter.ErrPackageNotFound
	}

	fetchToken, err := a.receipt(ctx, params)
	if err != nil {
		return nil, &adapter.PurchaseError{Err: fmt.Errorf("resolve receipt: %w", err)}
	}

	req := receiptRequest{AppUserID: userID, FetchToken: fetchToken, ProductID: pkg.ProductID}
	if err := a.do(ctx, http.MethodPost, "/receipts", req, nil); err != nil {
		return nil, &adapter.PurchaseError{Err: err}
	}

	return &adapter.PurchaseResult{
		TransactionID: fetchToken,
		ProductID:     pkg.ProductID,
		Credits:       pkg.Credits,
		PriceCents:    int64(pkg.Price * 100),
		Currency:      pkg.CurrencyCode,
		Source:        a.platform,
	}, nil
}

// SetUserID re-scopes the adapter to a new subscriber. The email attribute
// update is best-effort.
func (a *Adapter) SetUserID(ctx context.Context, userID string, email string) error {
	a.mu.Lock()
	a.appUserID = userID
	a.mu.Unlock()

	if userID == "" || email == "" {
		return nil
	}
	body := map[string]map[string]string{
		"attributes": {"$email": email},
	}
	if err := a.do(ctx, http.MethodPost, "/subscribers/"+userID+"/attributes", body, nil); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("setting subscriber email failed")
	}
	return nil
}

func (a *Adapter) boundUser() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.appUserID
}

func (a *Adapter) do(ctx context.Context, method, path string, body, out interface{}) error {
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

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Platform", a.platform)

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return fmt.Errorf("revenuecat %s %s: %s", method, path, apiErr.Message)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// creditsFromProductID extracts the credit quantity encoded as the trailing
// integer of a store product identifier, e.g. "credits_5" -> 5.
func creditsFromProductID(productID string) int {
	idx := strings.LastIndexByte(productID, '_')
	if idx < 0 || idx == len(productID)-1 {
		return 0
	}
	n, err := strconv.Atoi(productID[idx+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
