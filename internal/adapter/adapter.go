// Package adapter defines the platform purchase adapter contract. An adapter
// wraps a platform in-app-purchase SDK (web or mobile) behind a fixed
// capability interface so the orchestration layer never depends on a concrete
// platform. Implementations are selected at composition time.
package adapter

import (
	"context"

	"credits/internal/models"
)

// Purchase sources reported by adapters. Every adapter supplies its own
// source explicitly; the core never defaults one.
const (
	SourceWeb    = "web"
	SourceApple  = "apple"
	SourceGoogle = "google"
)

// Offering is one catalog entry as resolved by the platform SDK.
type Offering struct {
	Identifier string
	Metadata   map[string]interface{}
	Packages   []models.CreditPackage
}

// Offerings is the adapter's full catalog response, keyed by offering key.
// An empty map means "no offerings configured" and is not an error.
type Offerings struct {
	All map[string]Offering
}

// PurchaseParams identifies the package to purchase.
type PurchaseParams struct {
	PackageID  string
	OfferingID string
}

// PurchaseResult reports a completed platform charge.
type PurchaseResult struct {
	TransactionID string
	ProductID     string
	Credits       int
	PriceCents    int64
	Currency      string
	Source        string
}

// Adapter is the capability contract every platform implementation conforms
// to. Both operations may suspend on platform SDK calls and must honor ctx.
type Adapter interface {
	// GetOfferings resolves the product catalog. It returns an empty map for
	// "no offerings" and an error only for genuine transport/auth failure.
	GetOfferings(ctx context.Context) (*Offerings, error)

	// Purchase executes the platform purchase flow. It fails with a
	// *PurchaseError on user cancellation or SDK rejection.
	Purchase(ctx context.Context, params PurchaseParams) (*PurchaseResult, error)
}

// UserBinder is an optional capability: adapters that scope purchases to an
// account implement it so the platform SDK can re-bind when the active user
// changes. An empty userID clears the binding.
type UserBinder interface {
	SetUserID(ctx context.Context, userID string, email string) error
}
