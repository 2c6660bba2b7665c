package credits

import (
	"context"

	"credits/internal/api"
	"credits/internal/models"
)

// Service is the orchestration surface exposed to session state and UI
// subscribers.
type Service interface {
	// LoadOfferings populates the offerings cache. The catalog is a soft
	// dependency: fetch failures are logged and leave the cache empty so a
	// later call can retry.
	LoadOfferings(ctx context.Context) error

	// Offering is a pure cache lookup; nil if absent or not yet loaded.
	Offering(id string) *models.CreditOffering

	// OfferingIDs returns the cached offering identifiers.
	OfferingIDs() []string

	// HasLoadedOfferings reports whether the offerings cache is populated.
	HasLoadedOfferings() bool

	// LoadBalance returns the cached balance, fetching it from the backend
	// first if the cache is empty. Concurrent calls share one fetch.
	LoadBalance(ctx context.Context) (*models.CreditBalance, error)

	// CachedBalance is a pure cache lookup; nil when nothing is cached.
	CachedBalance() *models.CreditBalance

	// HasLoadedBalance reports whether the balance cache is populated.
	HasLoadedBalance() bool

	// Purchase runs the adapter charge, records it against the backend, and
	// overwrites the balance cache with the server's response.
	Purchase(ctx context.Context, packageID, offeringID string) (*models.CreditBalance, error)

	// RecordUsage records a usage and patches the cached balance amount,
	// leaving the initial-credits field untouched.
	RecordUsage(ctx context.Context, filename *string) (*models.UsageResult, error)

	// PurchaseHistory fetches a purchase history page. limit <= 0 defaults
	// to DefaultHistoryLimit; offset < 0 defaults to 0. Never cached.
	PurchaseHistory(ctx context.Context, limit, offset int) ([]models.PurchaseRecord, error)

	// UsageHistory fetches a usage history page with the same defaults as
	// PurchaseHistory. Never cached.
	UsageHistory(ctx context.Context, limit, offset int) ([]models.UsageRecord, error)

	// ClearCache drops the balance cache. The offerings cache is preserved:
	// the catalog is not user-scoped.
	ClearCache()
}

// APIClient is the slice of the ledger client the service depends on.
// *api.Client satisfies it.
type APIClient interface {
	GetBalance(ctx context.Context) (*models.CreditBalance, error)
	RecordPurchase(ctx context.Context, in api.RecordPurchaseInput) (*models.CreditBalance, error)
	RecordUsage(ctx context.Context, filename *string) (*models.UsageResult, error)
	GetPurchases(ctx context.Context, limit, offset int) ([]models.PurchaseRecord, error)
	GetUsages(ctx context.Context, limit, offset int) ([]models.UsageRecord, error)
}
