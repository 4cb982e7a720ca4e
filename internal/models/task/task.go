package task

import (
	"fmt"
	"strings"
	"time"
)

type Task struct {
	ID          int64      `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	Status      Status     `json:"status" db:"status"`
	Progress    int        `json:"progress" db:"progress"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   *time.Time `json:"updatedAt" db:"updated_at"`
	DueDate     *time.Time `json:"dueDate" db:"due_date"`
}

type Status string

const StatusTodo Status = "todo"
const StatusInProgress Status = "inprogress"
const StatusDone Status = "done"

const MaxProgress = 100

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ParseStatus: пустой статус означает todo
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return StatusTodo, nil
	}
	status := Status(raw)
	if !status.Valid() {
		return "", fmt.Errorf("статус %q не поддерживается (todo|inprogress|done)", raw)
	}
	return status, nil
}

// FieldError описывает поле задачи, не прошедшее проверку
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (t *Task) Validate() error {
	if !t.Status.Valid() {
		return &FieldError{Field: "status", Reason: fmt.Sprintf("значение %q не поддерживается (todo|inprogress|done)", t.Status)}
	}
	if t.Progress < 0 || t.Progress > MaxProgress {
		return &FieldError{Field: "progress", Reason: fmt.Sprintf("должен быть в диапазоне 0..%d", MaxProgress)}
	}
	return nil
}

func (t *Task) Clone() *Task {
	c := *t
	if t.UpdatedAt != nil {
		u := *t.UpdatedAt
		c.UpdatedAt = &u
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	return &c
}
