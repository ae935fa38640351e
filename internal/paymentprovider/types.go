package paymentprovider

// CreateCheckoutSessionRequest — параметры создания сессии чекаута.
type CreateCheckoutSessionRequest struct {
	UserUID string
	Email   string
}

// Тело запроса к провайдеру.
type checkoutSessionParams struct {
	Mode              string            `json:"mode"`
	CustomerEmail     string            `json:"customer_email,omitempty"`
	ClientReferenceID string            `json:"client_reference_id"`
	SuccessURL        string            `json:"success_url"`
	CancelURL         string            `json:"cancel_url"`
	Metadata          map[string]string `json:"metadata"`
}

// CheckoutSessionResponse — ответ провайдера с URL для редиректа.
type CheckoutSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
