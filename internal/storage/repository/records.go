package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mealbook/billing-reconciler/internal/models"
)

// ErrRecordNotFound возвращается, когда записи подписки не существует.
var ErrRecordNotFound = errors.New("subscription record not found")

// UpsertMerge сливает patch в запись пользователя или создаёт её, если
// записи ещё нет. Nil-поля patch не затирают существующие значения,
// provider_customer_id после первой установки не меняется. Один оператор,
// конкурентные записи по одному пользователю сериализуются базой.
func (s *Storage) UpsertMerge(ctx context.Context, userUID string, patch models.RecordPatch) error {
	const op = "storage.UpsertMerge"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscription_records
			      (user_uid, provider_customer_id, subscription_id, subscription_status, is_premium_active, updated_at)
			  VALUES ($1, $2, $3, COALESCE($4, 'none'), COALESCE($5, FALSE), now())
			  ON CONFLICT (user_uid) DO UPDATE
			  SET provider_customer_id = COALESCE(subscription_records.provider_customer_id, EXCLUDED.provider_customer_id),
			      subscription_id      = COALESCE($3, subscription_records.subscription_id),
			      subscription_status  = COALESCE($4, subscription_records.subscription_status),
			      is_premium_active    = COALESCE($5, subscription_records.is_premium_active),
			      updated_at           = now()`
	_, err := s.DB.ExecContext(ctx, query,
		userUID, patch.ProviderCustomerID, patch.SubscriptionID,
		patch.SubscriptionStatus, patch.IsPremiumActive)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FindUserUIDsByCustomerID возвращает UID всех пользователей с данным
// идентификатором клиента провайдера. По инварианту совпадение не более
// одного, решение о политике при нуле или нескольких принимает вызывающий.
func (s *Storage) FindUserUIDsByCustomerID(ctx context.Context, customerID string) ([]string, error) {
	const op = "storage.FindUserUIDsByCustomerID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_uid
			  FROM subscription_records
			  WHERE provider_customer_id = $1
			  ORDER BY user_uid`
	rows, err := s.DB.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdateByCustomerID применяет patch ко всем записям с данным customer id
// одним атомарным оператором и возвращает UID затронутых пользователей.
// Если записей нет, возвращает ErrRecordNotFound: события жизненного цикла
// предполагают, что чекаут уже прошёл.
func (s *Storage) UpdateByCustomerID(ctx context.Context, customerID string, patch models.RecordPatch) ([]string, error) {
	const op = "storage.UpdateByCustomerID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscription_records
			  SET subscription_id     = COALESCE($2, subscription_id),
			      subscription_status = COALESCE($3, subscription_status),
			      is_premium_active   = COALESCE($4, is_premium_active),
			      updated_at          = now()
			  WHERE provider_customer_id = $1
			  RETURNING user_uid`
	rows, err := s.DB.QueryContext(ctx, query, customerID,
		patch.SubscriptionID, patch.SubscriptionStatus, patch.IsPremiumActive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var affected []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		affected = append(affected, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(affected) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrRecordNotFound)
	}
	return affected, nil
}

// GetRecord возвращает запись подписки пользователя.
func (s *Storage) GetRecord(ctx context.Context, userUID string) (*models.SubscriptionRecord, error) {
	const op = "storage.GetRecord"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_uid, provider_customer_id, subscription_id,
			      subscription_status, is_premium_active, updated_at
			  FROM subscription_records
			  WHERE user_uid = $1`
	row := s.DB.QueryRowContext(ctx, query, userUID)

	var rec models.SubscriptionRecord
	var customerID, subscriptionID sql.NullString
	if err := row.Scan(&rec.UserUID, &customerID, &subscriptionID,
		&rec.SubscriptionStatus, &rec.IsPremiumActive, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if customerID.Valid {
		rec.ProviderCustomerID = &customerID.String
	}
	if subscriptionID.Valid {
		rec.SubscriptionID = &subscriptionID.String
	}
	return &rec, nil
}
