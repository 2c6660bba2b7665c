// Package stripeadapter implements the web purchase adapter on top of
// Stripe. Active Prices (with their Products expanded) form the catalog;
// purchases are off-session PaymentIntents charged to the bound customer.
//
// Catalog conventions: a Price is a credit package when its Product carries a
// "credits" metadata value. The Product's optional "offering" metadata value
// groups packages into offerings; packages without one land in "default".
// Package ids are Stripe price ids.
package stripeadapter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/customer"
	"github.com/stripe/stripe-go/v72/paymentintent"
	"github.com/stripe/stripe-go/v72/price"

	"credits/internal/adapter"
	"credits/internal/models"
)

const defaultOffering = "default"

// Adapter is the Stripe-backed web adapter. It implements adapter.Adapter
// and the adapter.UserBinder capability.
type Adapter struct {
	mu         sync.Mutex
	userID     string
	customerID string
	customers  map[string]string
}

// New configures the global Stripe key and returns a web adapter.
func New(secretKey string) *Adapter {
	stripe.Key = secretKey
	return &Adapter{customers: make(map[string]string)}
}

// GetOfferings lists active prices and groups them into offerings. Prices
// whose product carries no credits metadata are skipped.
func (a *Adapter) GetOfferings(ctx context.Context) (*adapter.Offerings, error) {
	params := &stripe.PriceListParams{Active: stripe.Bool(true)}
	params.Context = ctx
	params.AddExpand("data.product")

	offerings := make(map[string]adapter.Offering)
	iter := price.List(params)
	for iter.Next() {
		pkg, offeringID, ok := packageFromPrice(iter.Price())
		if !ok {
			continue
		}
		off, exists := offerings[offeringID]
		if !exists {
			off = adapter.Offering{Identifier: offeringID, Metadata: map[string]interface{}{}}
		}
		off.Packages = append(off.Packages, pkg)
		offerings[offeringID] = off
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	return &adapter.Offerings{All: offerings}, nil
}

// Purchase charges the bound customer off-session for the given package.
func (a *Adapter) Purchase(ctx context.Context, params adapter.PurchaseParams) (*adapter.PurchaseResult, error) {
	a.mu.Lock()
	customerID := a.customerID
	a.mu.Unlock()
	if customerID == "" {
		return nil, adapter.ErrNoBoundUser
	}

	priceParams := &stripe.PriceParams{}
	priceParams.Context = ctx
	priceParams.AddExpand("product")
	p, err := price.Get(params.PackageID, priceParams)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil, adapter.ErrPackageNotFound
		}
		return nil, fmt.Errorf("resolve price %q: %w", params.PackageID, err)
	}
	pkg, _, ok := packageFromPrice(p)
	if !ok {
		return nil, adapter.ErrPackageNotFound
	}

	piParams := &stripe.PaymentIntentParams{
		Amount:     stripe.Int64(p.UnitAmount),
		Currency:   stripe.String(string(p.Currency)),
		Customer:   stripe.String(customerID),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
	}
	piParams.Context = ctx
	piParams.AddMetadata("package_id", params.PackageID)
	piParams.AddMetadata("offering_id", params.OfferingID)

	pi, err := paymentintent.New(piParams)
	if err != nil {
		return nil, &adapter.PurchaseError{Err: err}
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, &adapter.PurchaseError{Err: fmt.Errorf("payment intent %s in status %s", pi.ID, pi.Status)}
	}

	return &adapter.PurchaseResult{
		TransactionID: pi.ID,
		ProductID:     pkg.ProductID,
		Credits:       pkg.Credits,
		PriceCents:    p.UnitAmount,
		Currency:      strings.ToUpper(string(p.Currency)),
		Source:        adapter.SourceWeb,
	}, nil
}

// SetUserID binds purchases to a Stripe customer tagged with the app user
// id. An existing customer carrying the same app_user_id metadata is reused,
// so rebinding back to a previous user keeps its saved payment methods; a
// customer is created only when none exists. Setting the customer email is
// best-effort. An empty userID clears the binding.
func (a *Adapter) SetUserID(ctx context.Context, userID string, email string) error {
	if userID == "" {
		a.mu.Lock()
		a.userID = ""
		a.customerID = ""
		a.mu.Unlock()
		return nil
	}

	a.mu.Lock()
	customerID := a.customers[userID]
	a.mu.Unlock()

	if customerID == "" {
		found, err := a.findCustomer(ctx, userID)
		if err != nil {
			return err
		}
		customerID = found
	}
	if customerID == "" {
		cparams := &stripe.CustomerParams{}
		cparams.Context = ctx
		cparams.AddMetadata("app_user_id", userID)
		cust, err := customer.New(cparams)
		if err != nil {
			return fmt.Errorf("create customer: %w", err)
		}
		customerID = cust.ID
	}

	if email != "" {
		uparams := &stripe.CustomerParams{Email: stripe.String(email)}
		uparams.Context = ctx
		if _, err := customer.Update(customerID, uparams); err != nil {
			log.Warn().Err(err).Str("customer_id", customerID).Msg("setting customer email failed")
		}
	}

	a.mu.Lock()
	a.userID = userID
	a.customerID = customerID
	a.customers[userID] = customerID
	a.mu.Unlock()
	return nil
}

// findCustomer searches Stripe for a customer already tagged with the app
// user id. Returns "" when none exists.
func (a *Adapter) findCustomer(ctx context.Context, userID string) (string, error) {
	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query: fmt.Sprintf("metadata['app_user_id']:'%s'", userID),
		},
	}
	params.Context = ctx

	iter := customer.Search(params)
	for iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("search customers: %w", err)
	}
	return "", nil
}

// packageFromPrice maps a Stripe price onto a credit package. The second
// return value is the offering the package belongs to.
func packageFromPrice(p *stripe.Price) (models.CreditPackage, string, bool) {
	if p == nil || p.Product == nil {
		return models.CreditPackage{}, "", false
	}
	rawCredits, ok := p.Product.Metadata["credits"]
	if !ok {
		return models.CreditPackage{}, "", false
	}
	creditCount, err := strconv.Atoi(rawCredits)
	if err != nil || creditCount < 0 {
		return models.CreditPackage{}, "", false
	}

	offeringID := p.Product.Metadata["offering"]
	if offeringID == "" {
		offeringID = defaultOffering
	}

	currency := strings.ToUpper(string(p.Currency))
	amount := float64(p.UnitAmount) / 100

	return models.CreditPackage{
		PackageID:    p.ID,
		ProductID:    p.Product.ID,
		Title:        p.Product.Name,
		Description:  p.Product.Description,
		Credits:      creditCount,
		Price:        amount,
		PriceString:  fmt.Sprintf("%s %.2f", currency, amount),
		CurrencyCode: currency,
	}, offeringID, true
}
