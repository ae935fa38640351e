// Package billingwebhook реализует HTTP-обработчик вебхука платёжного провайдера.
//
// Handler проверяет подпись запроса, разбирает конверт события и передаёт
// его реконсилеру. Ответ 200 — это подтверждение приёма, а не успеха
// обработки: терминальные ошибки резолвинга тоже подтверждаются, чтобы
// провайдер не пересылал событие, которому ретрай не поможет.
package billingwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/mealbook/billing-reconciler/internal/http/response"
	"github.com/mealbook/billing-reconciler/internal/lib/sl"
	"github.com/mealbook/billing-reconciler/internal/metrics"
	"github.com/mealbook/billing-reconciler/internal/models"
	"github.com/mealbook/billing-reconciler/internal/services/reconciler"
)

// Verifier проверяет подпись тела вебхука.
type Verifier interface {
	Verify(body []byte, header string) error
}

// Service описывает интерфейс реконсилера событий биллинга.
type Service interface {
	ProcessEvent(ctx context.Context, ev *models.Event) error
}

// Handler обрабатывает входящие вебхуки платёжного провайдера.
type Handler struct {
	log      *slog.Logger // Логгер для записи информации и ошибок
	verifier Verifier
	service  Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, verifier Verifier, service Service) *Handler {
	return &Handler{
		log:      log,
		verifier: verifier,
		service:  service,
	}
}

type ackResponse struct {
	Received bool `json:"received"`
}

// ServeHTTP godoc
// @Summary Вебхук платёжного провайдера
// @Description Принимает события биллинга, проверяет подпись и применяет их к записям подписок
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param Webhook-Signature header string true "Подпись t=<unix>,v1=<hex>"
// @Success 200 {object} ackResponse "Событие принято"
// @Failure 400 {object} response.ErrorResponse "Неверная подпись или нечитаемое тело"
// @Failure 500 {object} response.ErrorResponse "Сбой хранилища, событие будет переслано"
// @Router /billing/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billingwebhook"
	start := time.Now()
	defer func() {
		metrics.WebhookDuration.Observe(time.Since(start).Seconds())
	}()

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to read request body"))
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	if err := h.verifier.Verify(body, r.Header.Get("Webhook-Signature")); err != nil {
		log.Error("webhook signature verification failed", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid webhook signature"))
		return
	}

	var ev models.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		log.Error("failed to unmarshal webhook event", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid event payload"))
		return
	}

	if err := h.service.ProcessEvent(r.Context(), &ev); err != nil {
		// Терминальные исходы резолвинга подтверждаются: повторная доставка
		// того же события ничего не изменит.
		if errors.Is(err, reconciler.ErrMissingIdentity) ||
			errors.Is(err, reconciler.ErrUnknownCustomer) ||
			errors.Is(err, reconciler.ErrAmbiguousCustomer) {
			log.Warn("event acknowledged without effect", sl.Err(err),
				slog.String("event_id", ev.ID), slog.String("event_type", ev.Type))
			render.JSON(w, r, ackResponse{Received: true})
			return
		}
		log.Error("failed to process webhook event", sl.Err(err),
			slog.String("event_id", ev.ID), slog.String("event_type", ev.Type))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("webhook event processed",
		slog.String("event_id", ev.ID), slog.String("event_type", ev.Type))
	render.JSON(w, r, ackResponse{Received: true})
}
