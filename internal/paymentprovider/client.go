// Package paymentprovider содержит исходящий HTTP-клиент платёжного
// провайдера. Единственная операция — создание сессии чекаута.
package paymentprovider

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mealbook/billing-reconciler/internal/config"
)

// Client — клиент API платёжного провайдера.
type Client struct {
	secretKey  string
	apiURL     string
	successURL string
	cancelURL  string
	httpClient *http.Client
}

// NewClient создаёт клиента провайдера из конфига.
func NewClient(cfg config.PaymentProvider) *Client {
	return &Client{
		secretKey:  cfg.SecretKey,
		apiURL:     cfg.APIURL,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Пространство имён для ключей идемпотентности запросов к провайдеру.
var idempotencyNamespace = uuid.MustParse("8f2b5a34-1c6d-4e7a-9b0f-3d5c8e1a7f42")

func (c *Client) newRequest(method, path, idempotencyKey string, body any) (*http.Request, error) {
	url := c.apiURL + path
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	return req, nil
}

// CreateCheckoutSession создаёт сессию чекаута подписки. UID пользователя
// кладётся и в client_reference_id, и в метаданные, чтобы вебхук мог
// восстановить его из любого поля. Ключ идемпотентности выводится из
// содержимого запроса: повтор того же запроса в окне дедупликации
// провайдера вернёт уже созданную сессию, а не вторую.
func (c *Client) CreateCheckoutSession(req CreateCheckoutSessionRequest) (*CheckoutSessionResponse, error) {
	params := checkoutSessionParams{
		Mode:              "subscription",
		CustomerEmail:     req.Email,
		ClientReferenceID: req.UserUID,
		SuccessURL:        c.successURL,
		CancelURL:         c.cancelURL,
		Metadata: map[string]string{
			"user_uid": req.UserUID,
		},
	}

	key := uuid.NewSHA1(idempotencyNamespace, []byte("checkout\n"+req.UserUID+"\n"+req.Email)).String()
	httpReq, err := c.newRequest("POST", "/checkout/sessions", key, params)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.New("unexpected status: " + resp.Status)
	}

	var sessionResp CheckoutSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sessionResp); err != nil {
		return nil, err
	}
	return &sessionResp, nil
}
