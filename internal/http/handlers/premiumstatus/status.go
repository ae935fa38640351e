// Package premiumstatus реализует HTTP-обработчик получения статуса подписки
// текущего пользователя.
package premiumstatus

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/mealbook/billing-reconciler/internal/http/middlewarectx"
	"github.com/mealbook/billing-reconciler/internal/http/response"
	"github.com/mealbook/billing-reconciler/internal/lib/sl"
	"github.com/mealbook/billing-reconciler/internal/models"
)

// Service описывает интерфейс бизнес-логики чтения статуса подписки.
type Service interface {
	PremiumStatus(ctx context.Context, userUID string) (*models.SubscriptionRecord, error)
}

// Handler обрабатывает запросы на получение статуса подписки.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Статус подписки пользователя
// @Description Возвращает запись подписки текущего пользователя; для пользователя без подписки статус "none"
// @Tags Billing
// @Produce  json
// @Success 200 {object} response.Response "Запись подписки"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /billing/status [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.premiumstatus"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user UID not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	rec, err := h.service.PremiumStatus(r.Context(), userUID)
	if err != nil {
		log.Error("failed to read premium status", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("premium status read", slog.String("user_uid", userUID),
		slog.Bool("is_premium_active", rec.IsPremiumActive))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"record": rec,
	}))
}
