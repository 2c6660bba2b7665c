package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credits/internal/adapter"
	"credits/internal/api"
	"credits/internal/models"
)

// stubAPI satisfies credits.APIClient with a fixed balance.
type stubAPI struct {
	balance      models.CreditBalance
	balanceCalls int32
}

func (s *stubAPI) GetBalance(context.Context) (*models.CreditBalance, error) {
	atomic.AddInt32(&s.balanceCalls, 1)
	b := s.balance
	return &b, nil
}

func (s *stubAPI) RecordPurchase(context.Context, api.RecordPurchaseInput) (*models.CreditBalance, error) {
	b := s.balance
	return &b, nil
}

func (s *stubAPI) RecordUsage(context.Context, *string) (*models.UsageResult, error) {
	return &models.UsageResult{Balance: s.balance.Balance, Success: true}, nil
}

func (s *stubAPI) GetPurchases(context.Context, int, int) ([]models.PurchaseRecord, error) {
	return nil, nil
}

func (s *stubAPI) GetUsages(context.Context, int, int) ([]models.UsageRecord, error) {
	return nil, nil
}

// bindingAdapter implements the optional UserBinder capability and counts
// rebind calls.
type bindingAdapter struct {
	mu         sync.Mutex
	bindCalls  int
	lastUserID string
	lastEmail  string
	bindErr    error
}

func (a *bindingAdapter) GetOfferings(context.Context) (*adapter.Offerings, error) {
	return &adapter.Offerings{All: map[string]adapter.Offering{}}, nil
}

func (a *bindingAdapter) Purchase(context.Context, adapter.PurchaseParams) (*adapter.PurchaseResult, error) {
	return nil, &adapter.PurchaseError{Err: errors.New("not supported")}
}

func (a *bindingAdapter) SetUserID(_ context.Context, userID string, email string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bindCalls++
	a.lastUserID = userID
	a.lastEmail = email
	return a.bindErr
}

func (a *bindingAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bindCalls
}

// plainAdapter exposes no user-binding capability.
type plainAdapter struct{}

func (plainAdapter) GetOfferings(context.Context) (*adapter.Offerings, error) {
	return &adapter.Offerings{All: map[string]adapter.Offering{}}, nil
}

func (plainAdapter) Purchase(context.Context, adapter.PurchaseParams) (*adapter.PurchaseResult, error) {
	return nil, &adapter.PurchaseError{Err: errors.New("not supported")}
}

func strPtr(s string) *string { return &s }

func TestInstance_BeforeInitialize(t *testing.T) {
	s := New()

	assert.False(t, s.IsInitialized())
	_, err := s.Instance()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitialize_InstallsService(t *testing.T) {
	s := New()
	s.Initialize(&bindingAdapter{}, &stubAPI{})

	assert.True(t, s.IsInitialized())
	svc, err := s.Instance()
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestInitialize_ReplacesPriorInstance(t *testing.T) {
	s := New()
	s.Initialize(&bindingAdapter{}, &stubAPI{})
	first, err := s.Instance()
	require.NoError(t, err)

	s.Initialize(&bindingAdapter{}, &stubAPI{})
	second, err := s.Instance()
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestReset_DropsInstanceAndUserID(t *testing.T) {
	s := New()
	s.Initialize(&bindingAdapter{}, &stubAPI{})
	s.SetUserID(context.Background(), strPtr("u1"), "")

	s.Reset()

	assert.False(t, s.IsInitialized())
	assert.Nil(t, s.UserID())
}

func TestReset_KeepsListeners(t *testing.T) {
	s := New()
	fired := 0
	s.OnBalanceChange(func() { fired++ })

	s.Initialize(&bindingAdapter{}, &stubAPI{})
	s.Reset()
	s.Initialize(&bindingAdapter{}, &stubAPI{})
	s.NotifyBalanceChange()

	assert.Equal(t, 1, fired, "listeners survive reset")
}

func TestSetUserID_SameIDIsIdempotent(t *testing.T) {
	platform := &bindingAdapter{}
	s := New()
	s.Initialize(platform, &stubAPI{})

	fired := 0
	s.OnUserIDChange(func(*string) { fired++ })

	s.SetUserID(context.Background(), strPtr("u1"), "u1@example.com")
	s.SetUserID(context.Background(), strPtr("u1"), "u1@example.com")

	assert.Equal(t, 1, platform.calls())
	assert.Equal(t, 1, fired)
	assert.Equal(t, "u1", platform.lastUserID)
	assert.Equal(t, "u1@example.com", platform.lastEmail)
}

func TestSetUserID_ConcurrentSameIDCollapses(t *testing.T) {
	platform := &bindingAdapter{}
	s := New()
	s.Initialize(platform, &stubAPI{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SetUserID(context.Background(), strPtr("u1"), "")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, platform.calls())
	require.NotNil(t, s.UserID())
	assert.Equal(t, "u1", *s.UserID())
}

func TestSetUserID_ClearsBalanceCache(t *testing.T) {
	s := New()
	s.Initialize(&bindingAdapter{}, &stubAPI{balance: models.CreditBalance{Balance: 10, InitialCredits: 3}})

	svc, err := s.Instance()
	require.NoError(t, err)
	_, err = svc.LoadBalance(context.Background())
	require.NoError(t, err)
	require.True(t, svc.HasLoadedBalance())

	s.SetUserID(context.Background(), strPtr("u2"), "")

	assert.False(t, svc.HasLoadedBalance(), "identity change must clear the balance cache")
}

func TestSetUserID_UnsetFiresListenersWithNil(t *testing.T) {
	s := New()
	s.Initialize(&bindingAdapter{}, &stubAPI{})

	var got []*string
	s.OnUserIDChange(func(id *string) { got = append(got, id) })

	s.SetUserID(context.Background(), strPtr("u1"), "")
	s.SetUserID(context.Background(), nil, "")

	require.Len(t, got, 2)
	require.NotNil(t, got[0])
	assert.Equal(t, "u1", *got[0])
	assert.Nil(t, got[1])
	assert.Nil(t, s.UserID())

	// nil -> nil is a no-op.
	s.SetUserID(context.Background(), nil, "")
	assert.Len(t, got, 2)
}

func TestSetUserID_BeforeInitializeTracksIdentity(t *testing.T) {
	s := New()

	var got []*string
	s.OnUserIDChange(func(id *string) { got = append(got, cloneUserID(id)) })

	s.SetUserID(context.Background(), strPtr("u1"), "")

	require.NotNil(t, s.UserID())
	assert.Equal(t, "u1", *s.UserID())
	require.Len(t, got, 1)
	require.NotNil(t, got[0])
	assert.Equal(t, "u1", *got[0])

	// The later Initialize does not replay the rebind.
	platform := &bindingAdapter{}
	s.Initialize(platform, &stubAPI{})
	assert.Equal(t, 0, platform.calls())
}

func TestSetUserID_AdapterWithoutBinderCapability(t *testing.T) {
	s := New()
	s.Initialize(plainAdapter{}, &stubAPI{})

	s.SetUserID(context.Background(), strPtr("u1"), "")

	require.NotNil(t, s.UserID())
	assert.Equal(t, "u1", *s.UserID())
}

func TestSetUserID_RebindFailureIsBestEffort(t *testing.T) {
	platform := &bindingAdapter{bindErr: errors.New("sdk offline")}
	s := New()
	s.Initialize(platform, &stubAPI{})

	fired := 0
	s.OnUserIDChange(func(*string) { fired++ })

	s.SetUserID(context.Background(), strPtr("u1"), "")

	require.NotNil(t, s.UserID())
	assert.Equal(t, "u1", *s.UserID())
	assert.Equal(t, 1, fired, "identity change proceeds despite rebind failure")
}

func TestListeners_OrderAndDuplicates(t *testing.T) {
	s := New()

	var order []string
	s.OnBalanceChange(func() { order = append(order, "a") })
	s.OnBalanceChange(func() { order = append(order, "b") })
	dup := func() { order = append(order, "dup") }
	s.OnBalanceChange(dup)
	s.OnBalanceChange(dup)

	s.NotifyBalanceChange()

	assert.Equal(t, []string{"a", "b", "dup", "dup"}, order)
}

func TestUnsubscribe_StopsInvocationAndIsIdempotent(t *testing.T) {
	s := New()

	fired := 0
	unsubscribe := s.OnBalanceChange(func() { fired++ })
	kept := 0
	s.OnBalanceChange(func() { kept++ })

	s.NotifyBalanceChange()
	unsubscribe()
	unsubscribe()
	s.NotifyBalanceChange()

	assert.Equal(t, 1, fired)
	assert.Equal(t, 2, kept)
}

func TestRefreshBalance_UninitializedIsNoop(t *testing.T) {
	s := New()
	fired := 0
	s.OnBalanceChange(func() { fired++ })

	require.NoError(t, s.RefreshBalance(context.Background()))
	assert.Equal(t, 0, fired)
}

func TestRefreshBalance_LoadsAndNotifies(t *testing.T) {
	client := &stubAPI{balance: models.CreditBalance{Balance: 7, InitialCredits: 3}}
	s := New()
	s.Initialize(&bindingAdapter{}, client)

	fired := 0
	s.OnBalanceChange(func() { fired++ })

	require.NoError(t, s.RefreshBalance(context.Background()))
	assert.Equal(t, 1, fired)
	assert.EqualValues(t, 1, atomic.LoadInt32(&client.balanceCalls))

	// A warm cache short-circuits the fetch but still notifies.
	require.NoError(t, s.RefreshBalance(context.Background()))
	assert.Equal(t, 2, fired)
	assert.EqualValues(t, 1, atomic.LoadInt32(&client.balanceCalls))
}

func TestDefaultSession_PackageLevelAPI(t *testing.T) {
	t.Cleanup(Reset)

	assert.False(t, IsInitialized())
	_, err := Instance()
	assert.ErrorIs(t, err, ErrNotInitialized)

	Initialize(&bindingAdapter{}, &stubAPI{})
	assert.True(t, IsInitialized())

	fired := 0
	unsubscribe := OnBalanceChange(func() { fired++ })
	defer unsubscribe()
	NotifyBalanceChange()
	assert.Equal(t, 1, fired)

	SetUserID(context.Background(), strPtr("u1"), "")
	require.NotNil(t, UserID())
	assert.Equal(t, "u1", *UserID())

	Reset()
	assert.False(t, IsInitialized())
	assert.Nil(t, UserID())
}
