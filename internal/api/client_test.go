package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credits/internal/models"
)

func TestGetBalance_MapsWireFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/consumables/balance", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"balance":10,"initial_credits":3}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	balance, err := client.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &models.CreditBalance{Balance: 10, InitialCredits: 3}, balance)
}

func TestNewClient_NormalizesTrailingSlashes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/consumables/balance", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"balance":0,"initial_credits":0}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"///", "")
	_, err := client.GetBalance(context.Background())
	require.NoError(t, err)
}

func TestGetBalance_BackendErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad-token")
	_, err := client.GetBalance(context.Background())

	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "unauthorized", backendErr.Message)
	assert.Equal(t, http.StatusUnauthorized, backendErr.Status)
}

func TestGetBalance_MissingDataFallsBackToGenericMessage(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"empty envelope", http.StatusOK, `{}`},
		{"null data", http.StatusOK, `{"data":null}`},
		{"unparseable error body", http.StatusInternalServerError, `boom`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, "")
			_, err := client.GetBalance(context.Background())

			var backendErr *BackendError
			require.ErrorAs(t, err, &backendErr)
			assert.Equal(t, "request failed", backendErr.Message)
		})
	}
}

func TestRecordPurchase_SendsSnakeCaseBody(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/consumables/purchase", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))
		_, _ = w.Write([]byte(`{"data":{"balance":15,"initial_credits":3}}`))
	}))
	defer srv.Close()

	ref := "txn_123"
	product := "credits_5"
	price := int64(499)
	currency := "USD"

	client := NewClient(srv.URL, "test-token")
	balance, err := client.RecordPurchase(context.Background(), RecordPurchaseInput{
		Credits:          5,
		Source:           "web",
		TransactionRefID: &ref,
		ProductID:        &product,
		PriceCents:       &price,
		Currency:         &currency,
	})
	require.NoError(t, err)
	assert.Equal(t, &models.CreditBalance{Balance: 15, InitialCredits: 3}, balance)

	assert.Equal(t, float64(5), body["credits"])
	assert.Equal(t, "web", body["source"])
	assert.Equal(t, "txn_123", body["transaction_ref_id"])
	assert.Equal(t, "credits_5", body["product_id"])
	assert.Equal(t, float64(499), body["price_cents"])
	assert.Equal(t, "USD", body["currency"])
}

func TestRecordUsage_OmitsAbsentFilename(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/consumables/use", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))
		_, _ = w.Write([]byte(`{"data":{"balance":9,"success":true}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	result, err := client.RecordUsage(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, &models.UsageResult{Balance: 9, Success: true}, result)
	assert.NotContains(t, body, "filename")
}

func TestGetPurchases_SendsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/consumables/purchases", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		_, _ = w.Write([]byte(`{"data":[{"id":"p1","credits":5,"price_cents":499,"currency":"USD","source":"web","transaction_ref_id":"txn_123","product_id":"credits_5","created_at":"2026-08-30T12:00:00Z"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	records, err := client.GetPurchases(context.Background(), 50, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "p1", records[0].ID)
	assert.Equal(t, 5, records[0].Credits)
	require.NotNil(t, records[0].TransactionRefID)
	assert.Equal(t, "txn_123", *records[0].TransactionRefID)
}

func TestGetUsages_SendsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/consumables/usages", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		_, _ = w.Write([]byte(`{"data":[{"id":"u1","credits":1,"filename":"logo.svg","created_at":"2026-08-30T12:00:00Z"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	records, err := client.GetUsages(context.Background(), 10, 20)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Filename)
	assert.Equal(t, "logo.svg", *records[0].Filename)
}
