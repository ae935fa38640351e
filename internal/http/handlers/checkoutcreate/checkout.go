// Package checkoutcreate обрабатывает создание сессии чекаута подписки.
package checkoutcreate

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/mealbook/billing-reconciler/internal/http/middlewarectx"
	"github.com/mealbook/billing-reconciler/internal/http/response"
	"github.com/mealbook/billing-reconciler/internal/lib/sl"
	"github.com/mealbook/billing-reconciler/internal/paymentprovider"
)

// CreateCheckoutRequestApp представляет запрос на создание сессии чекаута.
type CreateCheckoutRequestApp struct {
	Email string `json:"email" validate:"required,email"`
}

// ProviderClient определяет интерфейс для работы с платёжным провайдером.
type ProviderClient interface {
	CreateCheckoutSession(req paymentprovider.CreateCheckoutSessionRequest) (*paymentprovider.CheckoutSessionResponse, error)
}

// Handler обрабатывает запросы на создание сессии чекаута.
type Handler struct {
	log            *slog.Logger   // Логгер для записи информации и ошибок
	providerClient ProviderClient // Клиент для работы с провайдером
	validate       *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, providerClient ProviderClient) *Handler {
	return &Handler{
		log:            log,
		providerClient: providerClient,
		validate:       validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать сессию чекаута
// @Description Создает сессию чекаута подписки, возвращает URL для редиректа на страницу оплаты
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param request body CreateCheckoutRequestApp true "Email плательщика"
// @Success 200 {object} response.Response "URL сессии чекаута"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка провайдера"
// @Router /billing/checkout [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.checkoutcreate"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req CreateCheckoutRequestApp
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user UID not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	sessionResp, err := h.providerClient.CreateCheckoutSession(paymentprovider.CreateCheckoutSessionRequest{
		UserUID: userUID,
		Email:   req.Email,
	})
	if err != nil {
		log.Error("failed to create checkout session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("payment provider error"))
		return
	}

	log.Info("checkout session created",
		slog.String("user_uid", userUID), slog.String("session_id", sessionResp.ID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"checkout_url": sessionResp.URL,
	}))
}
