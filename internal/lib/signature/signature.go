// Package signature проверяет подпись входящих вебхуков платёжного
// провайдера. Подпись считается по точным байтам тела запроса, до любого
// парсинга, схема заголовка: "t=<unix>,v1=<hex hmac-sha256>".
// Подписываемая строка — "<t>.<body>". Метка времени защищает от повтора
// старых запросов.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header — имя HTTP-заголовка с подписью вебхука.
const Header = "Webhook-Signature"

// DefaultTolerance — допустимое расхождение метки времени события.
const DefaultTolerance = 5 * time.Minute

var (
	// ErrMissingHeader — заголовок подписи отсутствует.
	ErrMissingHeader = errors.New("signature header is missing")
	// ErrMalformedHeader — заголовок не соответствует схеме t=...,v1=...
	ErrMalformedHeader = errors.New("signature header is malformed")
	// ErrMismatch — подпись не совпала с ожидаемой.
	ErrMismatch = errors.New("signature mismatch")
	// ErrStaleTimestamp — метка времени вне окна допуска.
	ErrStaleTimestamp = errors.New("signature timestamp outside tolerance")
)

// Verifier проверяет подписи с общим секретом и окном допуска.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier создаёт Verifier. При tolerance <= 0 берётся DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify проверяет подпись заголовка header над точными байтами body.
// Возвращает nil только если метка времени в допуске и хотя бы одна
// v1-подпись совпала. Сравнение выполняется за константное время.
func (v *Verifier) Verify(body []byte, header string) error {
	const op = "signature.Verify"

	if header == "" {
		return fmt.Errorf("%s: %w", op, ErrMissingHeader)
	}

	ts, candidates, err := parseHeader(header)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return fmt.Errorf("%s: %w", op, ErrStaleTimestamp)
	}

	expected := compute(v.secret, ts, body)
	for _, c := range candidates {
		if hmac.Equal([]byte(expected), []byte(c)) {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", op, ErrMismatch)
}

// Sign строит значение заголовка подписи для тела body с меткой времени ts.
// Используется тестами и утилитами повторной отправки событий.
func Sign(secret string, ts time.Time, body []byte) string {
	unix := ts.Unix()
	return fmt.Sprintf("t=%d,v1=%s", unix, compute([]byte(secret), unix, body))
}

func compute(secret []byte, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// parseHeader разбирает "t=<unix>,v1=<hex>[,v1=<hex>...]". Несколько v1
// допустимы на время ротации секрета.
func parseHeader(header string) (int64, []string, error) {
	var ts int64
	var tsSeen bool
	var candidates []string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, nil, ErrMalformedHeader
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, ErrMalformedHeader
			}
			ts = parsed
			tsSeen = true
		case "v1":
			if value == "" {
				return 0, nil, ErrMalformedHeader
			}
			candidates = append(candidates, value)
		}
	}

	if !tsSeen || len(candidates) == 0 {
		return 0, nil, ErrMalformedHeader
	}
	return ts, candidates, nil
}
