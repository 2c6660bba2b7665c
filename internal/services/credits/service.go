package credits

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"credits/internal/adapter"
	"credits/internal/api"
	"credits/internal/models"
)

// DefaultHistoryLimit is the history page size applied when the caller does
// not specify one.
const DefaultHistoryLimit = 50

const (
	offeringsCache = "offerings"
	balanceCache   = "balance"
)

type service struct {
	adapter adapter.Adapter
	api     APIClient
	metrics MetricsCollector
	flight  singleflight.Group

	mu        sync.RWMutex
	balance   *models.CreditBalance
	offerings map[string]*models.CreditOffering
}

// Option configures the service.
type Option func(*service)

// WithMetrics installs a metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(s *service) { s.metrics = m }
}

// NewService creates an orchestration service around a platform adapter and
// a ledger client.
func NewService(platform adapter.Adapter, client APIClient, opts ...Option) Service {
	if platform == nil {
		panic("adapter is required")
	}
	if client == nil {
		panic("api client is required")
	}

	s := &service{
		adapter:   platform,
		api:       client,
		metrics:   NoopMetricsCollector{},
		offerings: make(map[string]*models.CreditOffering),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) LoadOfferings(ctx context.Context) error {
	if s.HasLoadedOfferings() {
		s.metrics.RecordCacheHit(offeringsCache)
		return nil
	}
	s.metrics.RecordCacheMiss(offeringsCache)

	// Concurrent callers join the same flight, so at most one adapter call
	// is in flight regardless of caller count. The flight slot is released
	// on completion either way, so a failed fetch can be retried.
	_, err, _ := s.flight.Do(offeringsCache, func() (interface{}, error) {
		if s.HasLoadedOfferings() {
			return nil, nil
		}
		resolved, err := s.adapter.GetOfferings(ctx)
		if err != nil {
			return nil, err
		}

		offerings := make(map[string]*models.CreditOffering, len(resolved.All))
		for key, off := range resolved.All {
			id := off.Identifier
			if id == "" {
				id = key
			}
			offerings[id] = &models.CreditOffering{OfferingID: id, Packages: off.Packages}
		}

		s.mu.Lock()
		s.offerings = offerings
		s.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		// The catalog is a soft dependency: a fetch failure must not take
		// down balance or purchase flows. The cache stays empty so the next
		// call retries.
		log.Warn().Err(err).Msg("offerings fetch failed, catalog left empty")
		s.metrics.RecordError("load_offerings", err.Error())
	}
	return nil
}

func (s *service) Offering(id string) *models.CreditOffering {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offerings[id]
}

func (s *service) OfferingIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.offerings))
	for id := range s.offerings {
		ids = append(ids, id)
	}
	return ids
}

func (s *service) HasLoadedOfferings() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.offerings) > 0
}

func (s *service) LoadBalance(ctx context.Context) (*models.CreditBalance, error) {
	if cached := s.CachedBalance(); cached != nil {
		s.metrics.RecordCacheHit(balanceCache)
		return cached, nil
	}
	s.metrics.RecordCacheMiss(balanceCache)

	v, err, _ := s.flight.Do(balanceCache, func() (interface{}, error) {
		if cached := s.CachedBalance(); cached != nil {
			return cached, nil
		}
		balance, err := s.api.GetBalance(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.balance = balance
		s.mu.Unlock()
		return balance, nil
	})
	if err != nil {
		s.metrics.RecordError("load_balance", err.Error())
		return nil, fmt.Errorf("load balance: %w", err)
	}

	balance := *v.(*models.CreditBalance)
	return &balance, nil
}

func (s *service) CachedBalance() *models.CreditBalance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.balance == nil {
		return nil
	}
	balance := *s.balance
	return &balance
}

func (s *service) HasLoadedBalance() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance != nil
}

func (s *service) Purchase(ctx context.Context, packageID, offeringID string) (*models.CreditBalance, error) {
	result, err := s.adapter.Purchase(ctx, adapter.PurchaseParams{
		PackageID:  packageID,
		OfferingID: offeringID,
	})
	if err != nil {
		s.metrics.RecordError("purchase", err.Error())
		return nil, fmt.Errorf("adapter purchase: %w", err)
	}

	balance, err := s.api.RecordPurchase(ctx, api.RecordPurchaseInput{
		Credits:          result.Credits,
		Source:           result.Source,
		TransactionRefID: &result.TransactionID,
		ProductID:        &result.ProductID,
		PriceCents:       &result.PriceCents,
		Currency:         &result.Currency,
	})
	if err != nil {
		// The platform charge already went through and is not rolled back;
		// the credits may need manual reconciliation against the ledger.
		log.Error().Err(err).
			Str("transaction_id", result.TransactionID).
			Str("product_id", result.ProductID).
			Int("credits", result.Credits).
			Msg("purchase charged on platform but not recorded on backend")
		s.metrics.RecordError("record_purchase", err.Error())
		return nil, fmt.Errorf("record purchase: %w", err)
	}

	s.mu.Lock()
	s.balance = balance
	s.mu.Unlock()
	s.metrics.RecordPurchase(result.Source, result.Credits)

	cached := *balance
	return &cached, nil
}

func (s *service) RecordUsage(ctx context.Context, filename *string) (*models.UsageResult, error) {
	result, err := s.api.RecordUsage(ctx, filename)
	if err != nil {
		s.metrics.RecordError("record_usage", err.Error())
		return nil, fmt.Errorf("record usage: %w", err)
	}

	s.mu.Lock()
	if s.balance != nil {
		s.balance.Balance = result.Balance
	}
	s.mu.Unlock()
	s.metrics.RecordUsage()
	return result, nil
}

func (s *service) PurchaseHistory(ctx context.Context, limit, offset int) ([]models.PurchaseRecord, error) {
	limit, offset = normalizePage(limit, offset)
	records, err := s.api.GetPurchases(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("purchase history: %w", err)
	}
	return records, nil
}

func (s *service) UsageHistory(ctx context.Context, limit, offset int) ([]models.UsageRecord, error) {
	limit, offset = normalizePage(limit, offset)
	records, err := s.api.GetUsages(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("usage history: %w", err)
	}
	return records, nil
}

func (s *service) ClearCache() {
	s.mu.Lock()
	s.balance = nil
	s.mu.Unlock()
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
