package woodtype

import (
	"errors"
	"fmt"
)

// ErrMissingComponent возвращается, когда потребитель запрашивает роль,
// которой у типа дерева нет (и нет запасной роли). Обычно это значит,
// что потребитель вызван раньше, чем сработала нужная подписка.
var ErrMissingComponent = errors.New("woodtype: missing required component")

// CallbackError описывает сбой колбэка подписки.
// Сбой не повторяется и не мешает остальным подпискам.
type CallbackError struct {
	WoodType     Identifier
	Subscription string
	Panicked     bool
	Err          error
}

func (e *CallbackError) Error() string {
	kind := "failed"
	if e.Panicked {
		kind = "panicked"
	}
	return fmt.Sprintf("woodtype: callback %s for %s %s: %v", e.Subscription, e.WoodType, kind, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}
