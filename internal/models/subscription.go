// Package models содержит доменные структуры биллинга: запись подписки
// пользователя и события платёжного провайдера.
package models

import "time"

// Статусы подписки. События обновления копируют статус провайдера как есть,
// поэтому колонка может содержать и другие значения; производный флаг
// премиума смотрит только на терминальные статусы.
const (
	StatusNone     = "none"
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
	StatusUnpaid   = "unpaid"
)

// SubscriptionRecord — запись подписки пользователя, одна строка на
// пользователя. Записи никогда не удаляются, отмена — это смена статуса.
type SubscriptionRecord struct {
	UserUID            string    `json:"user_uid"`
	ProviderCustomerID *string   `json:"provider_customer_id,omitempty"`
	SubscriptionID     *string   `json:"subscription_id,omitempty"`
	SubscriptionStatus string    `json:"subscription_status"`
	IsPremiumActive    bool      `json:"is_premium_active"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RecordPatch — частичное обновление записи подписки. Nil-поля не трогают
// существующие значения при слиянии в хранилище.
type RecordPatch struct {
	ProviderCustomerID *string
	SubscriptionID     *string
	SubscriptionStatus *string
	IsPremiumActive    *bool
}

// StrPtr возвращает указатель на строку, удобно при сборке RecordPatch.
func StrPtr(s string) *string { return &s }

// BoolPtr возвращает указатель на bool.
func BoolPtr(b bool) *bool { return &b }
