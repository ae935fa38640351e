package paymentprovider

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealbook/billing-reconciler/internal/config"
)

func TestCreateCheckoutSession(t *testing.T) {
	var gotParams checkoutSessionParams
	var gotAuth, gotIdempotency string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/sessions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotIdempotency = r.Header.Get("Idempotency-Key")

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotParams))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(CheckoutSessionResponse{
			ID:  "cs_test_1",
			URL: "https://pay.example.com/cs_test_1",
		})
	}))
	defer srv.Close()

	client := NewClient(config.PaymentProvider{
		SecretKey:  "sk_test_123",
		APIURL:     srv.URL,
		SuccessURL: "https://app.example.com/billing/success",
		CancelURL:  "https://app.example.com/billing/cancel",
	})

	resp, err := client.CreateCheckoutSession(CreateCheckoutSessionRequest{
		UserUID: "uid-1",
		Email:   "user@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://pay.example.com/cs_test_1", resp.URL)
	assert.Equal(t, "Bearer sk_test_123", gotAuth)
	assert.NotEmpty(t, gotIdempotency)

	// UID пользователя уходит и ссылкой, и метаданными.
	assert.Equal(t, "uid-1", gotParams.ClientReferenceID)
	assert.Equal(t, "uid-1", gotParams.Metadata["user_uid"])
	assert.Equal(t, "subscription", gotParams.Mode)
	assert.Equal(t, "user@example.com", gotParams.CustomerEmail)
	assert.Equal(t, "https://app.example.com/billing/success", gotParams.SuccessURL)
}

func TestCreateCheckoutSession_IdempotencyKeyIsStable(t *testing.T) {
	var keys []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(CheckoutSessionResponse{ID: "cs_1", URL: "https://pay.example.com/cs_1"})
	}))
	defer srv.Close()

	client := NewClient(config.PaymentProvider{SecretKey: "sk", APIURL: srv.URL})

	req := CreateCheckoutSessionRequest{UserUID: "uid-1", Email: "user@example.com"}
	_, err := client.CreateCheckoutSession(req)
	require.NoError(t, err)
	_, err = client.CreateCheckoutSession(req)
	require.NoError(t, err)
	_, err = client.CreateCheckoutSession(CreateCheckoutSessionRequest{UserUID: "uid-2", Email: "other@example.com"})
	require.NoError(t, err)

	require.Len(t, keys, 3)
	// Повтор того же запроса несёт тот же ключ, провайдер его дедуплицирует.
	assert.Equal(t, keys[0], keys[1])
	assert.NotEqual(t, keys[0], keys[2])
}

func TestCreateCheckoutSession_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(config.PaymentProvider{SecretKey: "sk", APIURL: srv.URL})

	_, err := client.CreateCheckoutSession(CreateCheckoutSessionRequest{UserUID: "uid-1"})
	assert.Error(t, err)
}
