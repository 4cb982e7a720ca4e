package handlers

import (
	"context"

	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"
	"chatTracker/internal/service"
)

type ChatService interface {
	HealthCheck(context.Context) error

	ListMessages(ctx context.Context, room string, limit int) ([]*message.Message, error)
	GetMessage(context.Context, int64) (*message.Message, error)
	CreateMessage(context.Context, service.NewMessage) (*message.Message, error)
	UpdateMessage(context.Context, int64, message.Patch) (*message.Message, error)
	AssignTask(ctx context.Context, messageID, taskID int64) (*message.Message, error)
	DeleteMessage(context.Context, int64) error

	ListTasks(context.Context) ([]*task.Task, error)
	GetTask(context.Context, int64) (*task.Task, error)
	CreateTask(context.Context, service.NewTask) (*task.Task, error)
	UpdateTask(context.Context, int64, ...task.TaskOption) (*task.Task, error)
	DeleteTask(context.Context, int64) error
	ListTaskMessages(context.Context, int64) ([]*message.Message, error)
}

var _ ChatService = (*service.ChatService)(nil)
