package service

import (
	"context"

	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"
)

type Repository interface {
	HealthCheck(context.Context) error

	CreateMessage(context.Context, *message.Message) error
	GetMessage(context.Context, int64) (*message.Message, error)
	ListMessages(context.Context, message.ListFilter) ([]*message.Message, error)
	ListMessagesByTask(context.Context, int64) ([]*message.Message, error)
	UpdateMessage(context.Context, *message.Message) error
	DeleteMessage(context.Context, int64) error

	CreateTask(context.Context, *task.Task) error
	GetTask(context.Context, int64) (*task.Task, error)
	ListTasks(context.Context) ([]*task.Task, error)
	UpdateTask(context.Context, *task.Task) error
	// DeleteTask возвращает сообщения, которые были отвязаны от задачи
	DeleteTask(context.Context, int64) ([]*message.Message, error)
}

// Broadcaster рассылает изменения всем живым сессиям. Вызовы не блокируются
// и не возвращают ошибок: доставка best-effort.
type Broadcaster interface {
	MessageReceived(*message.Message)
	MessageUpdated(*message.Message)
	MessageDeleted(int64)
	TasksUpdated([]*task.Task)
}
