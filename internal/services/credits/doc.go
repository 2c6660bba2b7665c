/*
Package credits provides the coordination service between a platform
purchase adapter and the backend credits ledger.

The service owns two caches with different lifetimes: the offerings cache is
global (the product catalog is not user-scoped) and is populated at most once
per process unless cleared wholesale by replacing the service; the balance
cache is per-user and is cleared whenever the active user changes. Concurrent
loads of either cache collapse into a single in-flight fetch.

Usage:

	svc := credits.NewService(platformAdapter, apiClient)

	// Warm the catalog (soft dependency: a catalog outage logs and yields
	// an empty catalog rather than an error).
	_ = svc.LoadOfferings(ctx)

	// Fetch or return the cached balance.
	balance, err := svc.LoadBalance(ctx)

	// Execute the three-step purchase transaction.
	balance, err = svc.Purchase(ctx, "price_123", "default")

	// Record a usage against the ledger.
	result, err := svc.RecordUsage(ctx, &filename)

Purchase runs three ordered steps, each a hard dependency on the previous:
the adapter charge, the backend record call, then the balance cache
overwrite. A charge that succeeds at the adapter but fails to record at the
backend propagates as an error with the cache left untouched; the charge is
not rolled back and reconciliation is a backend responsibility.
*/
package credits
