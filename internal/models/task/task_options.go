package task

import (
	"strings"
	"time"
)

// TaskOption применяет одно изменение к задаче; nil-опция пропускается
type TaskOption func(*Task)

func Apply(t *Task, options ...TaskOption) {
	for _, opt := range options {
		if opt != nil {
			opt(t)
		}
	}
}

// пустой заголовок оставляет текущий
func WithTitle(title string) TaskOption {
	if strings.TrimSpace(title) == "" {
		return nil
	}
	return func(task *Task) {
		task.Title = title
	}
}

func WithDescription(description string) TaskOption {
	return func(task *Task) {
		task.Description = description
	}
}

// пустой статус оставляет текущий
func WithStatus(status Status) TaskOption {
	if strings.TrimSpace(string(status)) == "" {
		return nil
	}
	return func(task *Task) {
		task.Status = status
	}
}

func WithProgress(progress int) TaskOption {
	return func(task *Task) {
		task.Progress = progress
	}
}

// nil снимает срок
func WithDueDate(dueDate *time.Time) TaskOption {
	return func(task *Task) {
		if dueDate == nil {
			task.DueDate = nil
			return
		}
		d := dueDate.UTC()
		task.DueDate = &d
	}
}
