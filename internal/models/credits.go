package models

import "time"

// CreditPackage is a purchasable SKU inside an offering. It is built from the
// platform adapter's catalog response and never mutated afterwards.
type CreditPackage struct {
	PackageID    string  `json:"package_id"`
	ProductID    string  `json:"product_id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Credits      int     `json:"credits"`
	Price        float64 `json:"price"`
	PriceString  string  `json:"price_string"`
	CurrencyCode string  `json:"currency_code"`
}

// CreditOffering is a named bundle of packages. Offerings are not
// user-scoped; once fetched they are static for the lifetime of the cache.
type CreditOffering struct {
	OfferingID string          `json:"offering_id"`
	Packages   []CreditPackage `json:"packages"`
}

// CreditBalance mirrors the backend's last balance response for the current
// user. Balance is the spendable credit count; InitialCredits is the grant at
// account creation and is informational only.
type CreditBalance struct {
	Balance        int `json:"balance"`
	InitialCredits int `json:"initial_credits"`
}

// PurchaseRecord is an append-only historical purchase entry, read-only from
// the client's perspective.
type PurchaseRecord struct {
	ID               string    `json:"id"`
	Credits          int       `json:"credits"`
	PriceCents       int64     `json:"price_cents"`
	Currency         string    `json:"currency"`
	Source           string    `json:"source"`
	TransactionRefID *string   `json:"transaction_ref_id"`
	ProductID        *string   `json:"product_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageRecord is an append-only historical usage entry.
type UsageRecord struct {
	ID        string    `json:"id"`
	Credits   int       `json:"credits"`
	Filename  *string   `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// UsageResult is the backend's verbatim response to a usage record call.
type UsageResult struct {
	Balance int  `json:"balance"`
	Success bool `json:"success"`
}
