// Package entitlement отвечает на вопрос "есть ли у пользователя премиум".
// Читающая сторона: сначала кеш, затем хранилище; отсутствие записи — это
// валидное состояние "подписки не было".
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mealbook/billing-reconciler/internal/cache"
	"github.com/mealbook/billing-reconciler/internal/lib/sl"
	"github.com/mealbook/billing-reconciler/internal/models"
	"github.com/mealbook/billing-reconciler/internal/storage/repository"
)

// DefaultTTL — время жизни закешированного статуса. Реконсилер инвалидирует
// ключ при каждой записи, TTL лишь страхует от пропущенной инвалидации.
const DefaultTTL = 5 * time.Minute

// RecordReader читает запись подписки пользователя из хранилища.
type RecordReader interface {
	GetRecord(ctx context.Context, userUID string) (*models.SubscriptionRecord, error)
}

// Cache описывает операции кеша статуса премиума.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Service отдаёт статус подписки пользователя.
type Service struct {
	repo  RecordReader
	cache Cache
	log   *slog.Logger
	ttl   time.Duration
}

// New создает новый экземпляр Service.
func New(repo RecordReader, c Cache, log *slog.Logger) *Service {
	return &Service{repo: repo, cache: c, log: log, ttl: DefaultTTL}
}

// PremiumStatus возвращает запись подписки пользователя. Для пользователя
// без записи возвращается нулевая запись со статусом "none" — с точки зрения
// клиента это просто отсутствие премиума, а не ошибка.
func (s *Service) PremiumStatus(ctx context.Context, userUID string) (*models.SubscriptionRecord, error) {
	const op = "entitlement.PremiumStatus"
	log := s.log.With(slog.String("op", op), slog.String("user_uid", userUID))

	key := cache.PremiumStatusKey(userUID)

	var cached models.SubscriptionRecord
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		// Кеш недоступен — идём в хранилище напрямую.
		log.Warn("premium status cache lookup failed", sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	rec, err := s.repo.GetRecord(ctx, userUID)
	if errors.Is(err, repository.ErrRecordNotFound) {
		rec = &models.SubscriptionRecord{
			UserUID:            userUID,
			SubscriptionStatus: models.StatusNone,
		}
	} else if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cache.Set(ctx, key, rec, s.ttl); err != nil {
		log.Warn("failed to cache premium status", sl.Err(err))
	}
	return rec, nil
}
