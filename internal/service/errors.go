package service

import (
	"errors"
	"fmt"

	repo "chatTracker/internal/repository"
)

const CodeNotFound = "NOT_FOUND"
const CodeValidation = "VALIDATION_ERROR"
const CodeConflict = "CONFLICT"
const CodeInternal = "INTERNAL"

type ResourceType string

const MessageResource ResourceType = "message"
const TaskResource ResourceType = "task"

type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

type Detail struct {
	Key     string
	Payload any
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error {
	return b.Err
}

func ToDetail(key string, payload any) Detail {
	return Detail{
		Key:     key,
		Payload: payload,
	}
}

func NewBusinessError(code string, message string, details ...Detail) *BusinessError {
	busErr := &BusinessError{
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
	for _, detail := range details {
		busErr.Details[detail.Key] = detail.Payload
	}
	return busErr
}

func NewNotFound(resource ResourceType, id int64) *BusinessError {
	return &BusinessError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %d не найден(а)", resource, id),
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func NewValidationError(field, reason string) *BusinessError {
	return &BusinessError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("Неверное значение поля '%s': %s", field, reason),
		Details: map[string]any{
			"field":  field,
			"reason": reason,
		},
	}
}

// NewConflict и NewInternal хранят исходную ошибку для журнала,
// клиенту уходит только Message и Details
func NewConflict(operation string, err error) *BusinessError {
	return &BusinessError{
		Code:    CodeConflict,
		Message: fmt.Sprintf("Операция %s нарушает ограничения хранилища", operation),
		Details: map[string]any{
			"operation": operation,
		},
		Err: err,
	}
}

func NewInternal(operation string, err error) *BusinessError {
	return &BusinessError{
		Code:    CodeInternal,
		Message: fmt.Sprintf("Не удалось выполнить операцию %s", operation),
		Details: map[string]any{
			"operation": operation,
		},
		Err: err,
	}
}

// classify переводит ошибку хранилища в BusinessError
func classify(operation string, resource ResourceType, id int64, err error) *BusinessError {
	var busErr *BusinessError
	switch {
	case errors.As(err, &busErr):
		return busErr
	case errors.Is(err, repo.ErrNotFound):
		return NewNotFound(resource, id)
	case errors.Is(err, repo.ErrConflict):
		return NewConflict(operation, err)
	default:
		return NewInternal(operation, err)
	}
}

func IsCode(err error, code string) bool {
	var busErr *BusinessError
	return errors.As(err, &busErr) && busErr.Code == code
}
