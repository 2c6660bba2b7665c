// Package session tracks the single live credits service instance and the
// current user identity, and fans change notifications out to any number of
// subscribers.
//
// The package-level functions operate on a process-wide default session,
// which is the convenience API UI layers bind to. New returns an independent
// session for tests or hosts that prefer construct-and-pass wiring; both
// variants behave identically.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"credits/internal/adapter"
	"credits/internal/services/credits"
)

// BalanceListener is notified after an operation that may have changed the
// balance.
type BalanceListener func()

// UserIDListener is notified with the new identifier after the active user
// changes. The identifier is nil when the user was unset.
type UserIDListener func(userID *string)

type balanceEntry struct {
	id uint64
	fn BalanceListener
}

type userIDEntry struct {
	id uint64
	fn UserIDListener
}

// Session holds at most one live service instance, the current user
// identity, and two independent listener registries. The zero value is not
// usable; construct with New.
type Session struct {
	// mu guards the instance and identity, and is held across a full
	// identity transition so concurrent SetUserID calls with the same target
	// collapse into one adapter rebind.
	mu       sync.Mutex
	service  credits.Service
	platform adapter.Adapter
	userID   *string

	listenerMu       sync.Mutex
	listenerSeq      uint64
	balanceListeners []balanceEntry
	userIDListeners  []userIDEntry
}

// New creates an empty session.
func New() *Session {
	return &Session{}
}

// Initialize constructs and installs a new service instance, replacing any
// prior one wholesale. User identity and listener registrations survive.
func (s *Session) Initialize(platform adapter.Adapter, client credits.APIClient, opts ...credits.Option) {
	svc := credits.NewService(platform, client, opts...)
	s.mu.Lock()
	s.service = svc
	s.platform = platform
	s.mu.Unlock()
}

// Instance returns the installed service, or ErrNotInitialized.
func (s *Session) Instance() (credits.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.service == nil {
		return nil, ErrNotInitialized
	}
	return s.service, nil
}

// IsInitialized reports whether a service instance is installed.
func (s *Session) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.service != nil
}

// Reset drops the service instance and clears the current user identity.
// Intended for test isolation. Listener registrations are deliberately left
// intact; callbacks registered against a torn-down instance keep firing
// after re-initialization (known gap, kept for compatibility).
func (s *Session) Reset() {
	s.mu.Lock()
	s.service = nil
	s.platform = nil
	s.userID = nil
	s.mu.Unlock()
}

// SetUserID switches the active user. Setting the already-current identifier
// (including nil twice) is a no-op. Otherwise the identifier is updated, the
// adapter's user-binding capability is invoked when it exposes one, the
// balance cache is cleared, and user-id listeners fire in registration
// order. Rebind failures are best-effort: they are logged, never propagated.
//
// Identity is session state, not service state: SetUserID also works before
// Initialize so hosts can set the user first. In that case only the
// identifier updates and listeners fire; the rebind and cache clear are
// skipped because there is nothing to rebind or clear yet.
func (s *Session) SetUserID(ctx context.Context, userID *string, email string) {
	s.mu.Lock()
	if equalUserID(s.userID, userID) {
		s.mu.Unlock()
		return
	}
	s.userID = cloneUserID(userID)

	if binder, ok := s.platform.(adapter.UserBinder); ok {
		id := ""
		if userID != nil {
			id = *userID
		}
		if err := binder.SetUserID(ctx, id, email); err != nil {
			log.Warn().Err(err).Msg("adapter user rebind failed")
		}
	}
	if s.service != nil {
		s.service.ClearCache()
	}
	next := cloneUserID(userID)
	s.mu.Unlock()

	for _, entry := range s.snapshotUserIDListeners() {
		entry.fn(next)
	}
}

// UserID returns the current user identifier, nil when unset.
func (s *Session) UserID() *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneUserID(s.userID)
}

// RefreshBalance loads the balance through the service's normal caching and
// fires balance-change listeners. It is a no-op when uninitialized. A warm
// cache short-circuits the fetch; callers wanting a forced refresh must
// clear the cache first.
func (s *Session) RefreshBalance(ctx context.Context) error {
	s.mu.Lock()
	svc := s.service
	s.mu.Unlock()
	if svc == nil {
		return nil
	}
	if _, err := svc.LoadBalance(ctx); err != nil {
		return err
	}
	s.NotifyBalanceChange()
	return nil
}

// OnBalanceChange registers a balance-change listener and returns its
// unregister function. Listeners fire synchronously in registration order;
// registering the same callback twice fires it twice.
func (s *Session) OnBalanceChange(fn BalanceListener) func() {
	s.listenerMu.Lock()
	s.listenerSeq++
	id := s.listenerSeq
	s.balanceListeners = append(s.balanceListeners, balanceEntry{id: id, fn: fn})
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		for i, entry := range s.balanceListeners {
			if entry.id == id {
				s.balanceListeners = append(s.balanceListeners[:i], s.balanceListeners[i+1:]...)
				return
			}
		}
	}
}

// OnUserIDChange registers a user-id-change listener and returns its
// unregister function. Same ordering and duplicate semantics as
// OnBalanceChange.
func (s *Session) OnUserIDChange(fn UserIDListener) func() {
	s.listenerMu.Lock()
	s.listenerSeq++
	id := s.listenerSeq
	s.userIDListeners = append(s.userIDListeners, userIDEntry{id: id, fn: fn})
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		for i, entry := range s.userIDListeners {
			if entry.id == id {
				s.userIDListeners = append(s.userIDListeners[:i], s.userIDListeners[i+1:]...)
				return
			}
		}
	}
}

// NotifyBalanceChange fires all balance-change listeners without touching
// any cache. Used after external balance-affecting operations (a purchase,
// for example) to decouple notification from the operation itself.
func (s *Session) NotifyBalanceChange() {
	s.listenerMu.Lock()
	snapshot := make([]balanceEntry, len(s.balanceListeners))
	copy(snapshot, s.balanceListeners)
	s.listenerMu.Unlock()

	for _, entry := range snapshot {
		entry.fn()
	}
}

func (s *Session) snapshotUserIDListeners() []userIDEntry {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	snapshot := make([]userIDEntry, len(s.userIDListeners))
	copy(snapshot, s.userIDListeners)
	return snapshot
}

func equalUserID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneUserID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// defaultSession backs the package-level convenience API.
var defaultSession = New()

// Default returns the process-wide session.
func Default() *Session { return defaultSession }

// Initialize installs a new service on the default session.
func Initialize(platform adapter.Adapter, client credits.APIClient, opts ...credits.Option) {
	defaultSession.Initialize(platform, client, opts...)
}

// Instance returns the default session's service, or ErrNotInitialized.
func Instance() (credits.Service, error) { return defaultSession.Instance() }

// IsInitialized reports whether the default session holds a service.
func IsInitialized() bool { return defaultSession.IsInitialized() }

// Reset tears down the default session's instance and user identity.
func Reset() { defaultSession.Reset() }

// SetUserID switches the default session's active user.
func SetUserID(ctx context.Context, userID *string, email string) {
	defaultSession.SetUserID(ctx, userID, email)
}

// UserID returns the default session's current user identifier.
func UserID() *string { return defaultSession.UserID() }

// RefreshBalance refreshes the default session's balance.
func RefreshBalance(ctx context.Context) error { return defaultSession.RefreshBalance(ctx) }

// OnBalanceChange registers a balance-change listener on the default session.
func OnBalanceChange(fn BalanceListener) func() { return defaultSession.OnBalanceChange(fn) }

// OnUserIDChange registers a user-id-change listener on the default session.
func OnUserIDChange(fn UserIDListener) func() { return defaultSession.OnUserIDChange(fn) }

// NotifyBalanceChange fires the default session's balance-change listeners.
func NotifyBalanceChange() { defaultSession.NotifyBalanceChange() }
