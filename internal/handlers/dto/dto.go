package dto

import (
	"time"

	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"
	"chatTracker/internal/service"
)

type CreateMessageRequest struct {
	User   string  `json:"user"`
	Text   string  `json:"text"`
	TaskID *int64  `json:"taskId,omitempty"`
	ChatID *string `json:"chatId,omitempty"`
}

func (r CreateMessageRequest) ToNewMessage() service.NewMessage {
	return service.NewMessage{
		User:   r.User,
		Text:   r.Text,
		TaskID: r.TaskID,
		ChatID: r.ChatID,
	}
}

type UpdateMessageRequest struct {
	Text   *string `json:"text,omitempty"`
	TaskID *int64  `json:"taskId,omitempty"`
}

func (r UpdateMessageRequest) ToPatch() message.Patch {
	return message.Patch{Text: r.Text, TaskID: r.TaskID}
}

type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Progress    *int       `json:"progress,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

func (r CreateTaskRequest) ToNewTask() service.NewTask {
	return service.NewTask{
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		Progress:    r.Progress,
		DueDate:     r.DueDate,
	}
}

// UpdateTaskRequest - полная замена; пустые title и status сохраняют текущие значения,
// PUT заменяет поля целиком: отсутствующий progress становится 0,
// пустые title и status оставляют текущие значения
type UpdateTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	DueDate     *time.Time `json:"dueDate"`
}

func (r UpdateTaskRequest) Options() []task.TaskOption {
	return []task.TaskOption{
		task.WithTitle(r.Title),
		task.WithDescription(r.Description),
		task.WithStatus(task.Status(r.Status)),
		task.WithProgress(r.Progress),
		task.WithDueDate(r.DueDate),
	}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Error   string `json:"error,omitempty"`
}
