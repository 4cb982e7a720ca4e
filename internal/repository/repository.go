package repository

import "errors"

var ErrNotFound = errors.New("запись не найдена")

// ErrConflict - нарушение ограничения хранилища (внешний ключ, уникальность)
var ErrConflict = errors.New("конфликт ограничений хранилища")
