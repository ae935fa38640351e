// Package reconciler сводит события платёжного провайдера к согласованному
// состоянию записей подписок. События могут приходить не по порядку и
// повторно; каждый переход идемпотентен, порядок конкурирующих обновлений
// решается по принципу "последняя обработка выигрывает".
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mealbook/billing-reconciler/internal/audit"
	"github.com/mealbook/billing-reconciler/internal/cache"
	"github.com/mealbook/billing-reconciler/internal/lib/sl"
	"github.com/mealbook/billing-reconciler/internal/metrics"
	"github.com/mealbook/billing-reconciler/internal/models"
)

// RecordRepository определяет операции над записями подписок в хранилище.
type RecordRepository interface {
	// UpsertMerge сливает patch в запись пользователя или создаёт её.
	UpsertMerge(ctx context.Context, userUID string, patch models.RecordPatch) error
	// FindUserUIDsByCustomerID возвращает UID всех пользователей с данным customer id.
	FindUserUIDsByCustomerID(ctx context.Context, customerID string) ([]string, error)
	// UpdateByCustomerID применяет patch ко всем записям с данным customer id.
	UpdateByCustomerID(ctx context.Context, customerID string, patch models.RecordPatch) ([]string, error)
}

// Cache описывает инвалидацию кеша статуса премиума.
type Cache interface {
	Invalidate(ctx context.Context, key string) error
}

// AuditSink принимает записи аудита обработанных событий.
type AuditSink interface {
	Publish(rec audit.Record) error
}

type handlerFunc func(ctx context.Context, ev *models.Event) error

// Service реализует диспетчеризацию и применение событий биллинга.
type Service struct {
	repo     RecordRepository
	cache    Cache
	audit    AuditSink
	log      *slog.Logger
	now      func() time.Time
	handlers map[string]handlerFunc
}

// New создает новый экземпляр Service.
func New(repo RecordRepository, c Cache, sink AuditSink, log *slog.Logger) *Service {
	s := &Service{
		repo:  repo,
		cache: c,
		audit: sink,
		log:   log,
		now:   time.Now,
	}
	s.handlers = map[string]handlerFunc{
		models.EventCheckoutCompleted:   s.handleCheckoutCompleted,
		models.EventSubscriptionUpdated: s.handleSubscriptionUpdated,
		models.EventSubscriptionDeleted: s.handleSubscriptionDeleted,
	}
	return s
}

// ProcessEvent применяет событие провайдера. Неизвестные типы — не ошибка:
// они логируются и подтверждаются, новые типы событий не ломают поток.
// Типизированные ошибки ErrMissingIdentity, ErrUnknownCustomer и
// ErrAmbiguousCustomer терминальны и не требуют повторной доставки;
// остальные ошибки означают сбой хранилища, и провайдер перешлёт событие.
func (s *Service) ProcessEvent(ctx context.Context, ev *models.Event) error {
	const op = "reconciler.ProcessEvent"
	log := s.log.With(
		slog.String("op", op),
		slog.String("event_id", ev.ID),
		slog.String("event_type", ev.Type),
	)

	handler, ok := s.handlers[ev.Type]
	if !ok {
		log.Info("ignored unhandled event type")
		s.report(audit.NewRecord(ev.ID, ev.Type, metrics.OutcomeIgnored))
		return nil
	}

	return handler(ctx, ev)
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, ev *models.Event) error {
	const op = "reconciler.handleCheckoutCompleted"
	log := s.log.With(slog.String("op", op), slog.String("event_id", ev.ID))

	cs, err := ev.DecodeCheckoutSession()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	userUID := cs.UserReference()
	if userUID == "" {
		log.Error("checkout event carries no user reference",
			slog.String("customer_id", cs.Customer))
		rec := audit.NewRecord(ev.ID, ev.Type, metrics.OutcomeMissingIdentity)
		rec.CustomerID = cs.Customer
		rec.Detail = "no client_reference_id and no user_uid metadata"
		s.report(rec)
		return fmt.Errorf("%s: %w", op, ErrMissingIdentity)
	}

	patch := CheckoutCompletedPatch(cs)
	if err := s.repo.UpsertMerge(ctx, userUID, patch); err != nil {
		s.reportError(ev, userUID, cs.Customer)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, log, userUID)

	log.Info("checkout applied",
		slog.String("user_uid", userUID),
		slog.String("customer_id", cs.Customer))
	rec := audit.NewRecord(ev.ID, ev.Type, metrics.OutcomeApplied)
	rec.UserUID = userUID
	rec.CustomerID = cs.Customer
	s.report(rec)
	return nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, ev *models.Event) error {
	const op = "reconciler.handleSubscriptionUpdated"

	sub, err := ev.DecodeSubscription()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.applyLifecyclePatch(ctx, op, ev, sub, SubscriptionUpdatedPatch(sub))
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, ev *models.Event) error {
	const op = "reconciler.handleSubscriptionDeleted"

	sub, err := ev.DecodeSubscription()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.applyLifecyclePatch(ctx, op, ev, sub, SubscriptionDeletedPatch(sub, s.now()))
}

// applyLifecyclePatch разрешает клиента в записи и применяет патч.
// Ноль совпадений — благополучный исход без записи; несколько — нарушение
// инварианта, патч применяется ко всем, чтобы ни одна запись не отстала,
// и наружу уходит сигнал целостности.
func (s *Service) applyLifecyclePatch(ctx context.Context, op string, ev *models.Event, sub *models.Subscription, patch models.RecordPatch) error {
	log := s.log.With(
		slog.String("op", op),
		slog.String("event_id", ev.ID),
		slog.String("customer_id", sub.Customer),
	)

	uids, err := s.repo.FindUserUIDsByCustomerID(ctx, sub.Customer)
	if err != nil {
		s.reportError(ev, "", sub.Customer)
		return fmt.Errorf("%s: %w", op, err)
	}

	if len(uids) == 0 {
		log.Warn("lifecycle event for unrecognized customer")
		rec := audit.NewRecord(ev.ID, ev.Type, metrics.OutcomeUnknownCustomer)
		rec.CustomerID = sub.Customer
		s.report(rec)
		return fmt.Errorf("%s: %w", op, ErrUnknownCustomer)
	}

	ambiguous := len(uids) > 1
	if ambiguous {
		log.Error("integrity alert: customer id maps to multiple records",
			slog.Int("matches", len(uids)))
	}

	affected, err := s.repo.UpdateByCustomerID(ctx, sub.Customer, patch)
	if err != nil {
		s.reportError(ev, "", sub.Customer)
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, uid := range affected {
		s.invalidate(ctx, log, uid)
	}

	log.Info("lifecycle event applied",
		slog.String("status", sub.Status),
		slog.Int("affected", len(affected)))

	outcome := metrics.OutcomeApplied
	if ambiguous {
		outcome = metrics.OutcomeAmbiguousCustomer
	}
	rec := audit.NewRecord(ev.ID, ev.Type, outcome)
	rec.CustomerID = sub.Customer
	rec.UserUID = affected[0]
	s.report(rec)

	if ambiguous {
		return fmt.Errorf("%s: %w", op, ErrAmbiguousCustomer)
	}
	return nil
}

// invalidate сбрасывает кеш статуса премиума; сбой кеша не останавливает
// обработку, следующая выборка просто сходит в хранилище после TTL.
func (s *Service) invalidate(ctx context.Context, log *slog.Logger, userUID string) {
	if err := s.cache.Invalidate(ctx, cache.PremiumStatusKey(userUID)); err != nil {
		log.Warn("failed to invalidate premium status cache",
			slog.String("user_uid", userUID), sl.Err(err))
	}
}

// report публикует запись аудита и обновляет метрики. Недоступность
// аудиторской очереди не должна ронять вебхук.
func (s *Service) report(rec audit.Record) {
	metrics.EventsProcessed.WithLabelValues(rec.EventType, rec.Outcome).Inc()
	if err := s.audit.Publish(rec); err != nil {
		s.log.Warn("failed to publish audit record",
			slog.String("event_id", rec.EventID), sl.Err(err))
	}
}

func (s *Service) reportError(ev *models.Event, userUID, customerID string) {
	rec := audit.NewRecord(ev.ID, ev.Type, metrics.OutcomeError)
	rec.UserUID = userUID
	rec.CustomerID = customerID
	s.report(rec)
}
