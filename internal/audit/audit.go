// Package audit публикует структурированные записи о каждом обработанном
// событии биллинга. Записи адресуемы по event_id и user_uid, чтобы сбои
// реконсиляции можно было разобрать и воспроизвести вручную.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// Record описывает одно обработанное событие провайдера.
type Record struct {
	AuditID     string    `json:"audit_id"`
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	UserUID     string    `json:"user_uid,omitempty"`
	CustomerID  string    `json:"customer_id,omitempty"`
	Outcome     string    `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// NewRecord создаёт запись с назначенным audit_id и временем обработки.
func NewRecord(eventID, eventType, outcome string) Record {
	return Record{
		AuditID:     uuid.NewString(),
		EventID:     eventID,
		EventType:   eventType,
		Outcome:     outcome,
		ProcessedAt: time.Now().UTC(),
	}
}

// Publisher публикует записи аудита в durable-обменник RabbitMQ.
type Publisher struct {
	ch       *amqp.Channel
	exchange string
}

// NewPublisher открывает канал и объявляет обменник.
func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	const op = "audit.NewPublisher"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Publisher{ch: ch, exchange: exchange}, nil
}

// Publish отправляет запись аудита. Ключ маршрутизации — тип события,
// потребители подписываются на интересующие их типы.
func (p *Publisher) Publish(rec Record) error {
	const op = "audit.Publish"

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.ch.Publish(
		p.exchange,
		rec.EventType,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Connect подключается к RabbitMQ с повторными попытками.
func Connect(connection string, retries int, delay time.Duration) (*amqp.Connection, error) {
	const op = "audit.Connect"
	var conn *amqp.Connection
	var err error

	for range retries {
		conn, err = amqp.Dial(connection)
		if err == nil {
			return conn, nil
		}
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("%s: %w", op, err)
}
