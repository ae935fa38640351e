package reconciler

import "errors"

var (
	// ErrMissingIdentity — событие чекаута без восстановимой ссылки на
	// пользователя. Повторная доставка не добавит данных, событие
	// подтверждается и фиксируется в аудите.
	ErrMissingIdentity = errors.New("checkout event has no recoverable user reference")

	// ErrUnknownCustomer — событие жизненного цикла для клиента без записи.
	// Безобидно: тестовые события и клиенты вне базы сервиса.
	ErrUnknownCustomer = errors.New("no subscription record for customer")

	// ErrAmbiguousCustomer — на один customer id пришлось несколько записей.
	// Нарушение инварианта уникальности, обновление всё равно применяется
	// ко всем совпадениям, чтобы данные не протухали молча.
	ErrAmbiguousCustomer = errors.New("multiple subscription records for customer")
)
