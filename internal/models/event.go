package models

import (
	"encoding/json"
	"fmt"
)

// Типы событий провайдера, которые обрабатывает сервис. Остальные типы
// подтверждаются и игнорируются.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Event — конверт события провайдера. Событие неизменяемо после получения,
// ID назначается провайдером и глобально уникален.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSession — полезная нагрузка события завершённого чекаута.
// Пользователь передаётся в client_reference_id, дублируется в метаданных.
type CheckoutSession struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// Subscription — полезная нагрузка событий жизненного цикла подписки.
type Subscription struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
}

// DecodeCheckoutSession разбирает data.object как сессию чекаута.
func (e *Event) DecodeCheckoutSession() (*CheckoutSession, error) {
	var cs CheckoutSession
	if err := json.Unmarshal(e.Data.Object, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &cs, nil
}

// DecodeSubscription разбирает data.object как подписку провайдера.
func (e *Event) DecodeSubscription() (*Subscription, error) {
	var sub Subscription
	if err := json.Unmarshal(e.Data.Object, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	return &sub, nil
}

// UserReference возвращает UID пользователя из сессии чекаута:
// сначала client_reference_id, затем метаданные. Пустая строка — ссылки нет.
func (cs *CheckoutSession) UserReference() string {
	if cs.ClientReferenceID != "" {
		return cs.ClientReferenceID
	}
	return cs.Metadata["user_uid"]
}
