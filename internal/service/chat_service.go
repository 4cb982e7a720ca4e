package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatTracker/internal/logger"
	"chatTracker/internal/models/event"
	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"

	"go.uber.org/zap"
)

// здесь проверяются ошибки бизнес-логики и после каждой записи
// в хранилище изменения рассылаются подключённым клиентам

const UnknownUser = "Unknown"

type ChatService struct {
	repo        Repository
	broadcaster Broadcaster
}

func NewChatService(repo Repository, broadcaster Broadcaster) *ChatService {
	return &ChatService{
		repo:        repo,
		broadcaster: broadcaster,
	}
}

type NewMessage struct {
	User   string
	Text   string
	TaskID *int64
	ChatID *string
}

type NewTask struct {
	Title       string
	Description string
	Status      string
	Progress    *int
	DueDate     *time.Time
}

func (s *ChatService) HealthCheck(ctx context.Context) error {
	if err := s.repo.HealthCheck(ctx); err != nil {
		return fmt.Errorf("проверка здоровья сервиса: %w", err)
	}
	return nil
}

// ListMessages возвращает последние limit сообщений комнаты от старых к новым.
// limit == 0 означает значение по умолчанию.
func (s *ChatService) ListMessages(ctx context.Context, room string, limit int) ([]*message.Message, error) {
	if limit == 0 {
		limit = message.DefaultLimit
	}
	if limit < 0 || limit > message.MaxLimit {
		return nil, NewValidationError("limit", fmt.Sprintf("должен быть в диапазоне 1..%d", message.MaxLimit))
	}

	msgs, err := s.repo.ListMessages(ctx, message.ListFilter{Room: strings.TrimSpace(room), Limit: limit})
	if err != nil {
		return nil, classify("list_messages", MessageResource, 0, err)
	}
	return msgs, nil
}

func (s *ChatService) GetMessage(ctx context.Context, id int64) (*message.Message, error) {
	msg, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		logger.Info("Service: Сообщение не найдено", zap.Int64("target_id", id))
		return nil, classify("get_message", MessageResource, id, err)
	}
	return msg, nil
}

// CreateMessage - прямое создание через HTTP, текст обязателен
func (s *ChatService) CreateMessage(ctx context.Context, in NewMessage) (*message.Message, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, NewValidationError("text", "не может быть пустым")
	}
	return s.createMessage(ctx, in)
}

// PostMessage - действие post-message из канала реального времени.
// Пустые поля не отклоняются, а заменяются значениями по умолчанию.
func (s *ChatService) PostMessage(ctx context.Context, payload event.PostMessagePayload) (*message.Message, error) {
	return s.createMessage(ctx, NewMessage{
		User:   payload.User,
		Text:   payload.Text,
		TaskID: payload.TaskID,
		ChatID: payload.ChatID,
	})
}

func (s *ChatService) createMessage(ctx context.Context, in NewMessage) (*message.Message, error) {
	msg := &message.Message{
		User:   strings.TrimSpace(in.User),
		Text:   in.Text,
		TaskID: in.TaskID,
		ChatID: normalizeRoom(in.ChatID),
	}
	if msg.User == "" {
		msg.User = UnknownUser
	}

	if msg.TaskID != nil {
		if _, err := s.repo.GetTask(ctx, *msg.TaskID); err != nil {
			return nil, classify("create_message", TaskResource, *msg.TaskID, err)
		}
	}

	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		busErr := classify("create_message", MessageResource, 0, err)
		logger.Error("Service: Не удалось сохранить сообщение", err, zap.String("code", busErr.Code))
		return nil, busErr
	}

	logger.Info("Service: Сообщение сохранено",
		zap.Int64("message_id", msg.ID),
		zap.String("room", msg.Room()))

	s.broadcaster.MessageReceived(msg)
	return msg, nil
}

func (s *ChatService) UpdateMessage(ctx context.Context, id int64, patch message.Patch) (*message.Message, error) {
	if patch.Empty() {
		return nil, NewValidationError("body", "нужно передать text или taskId")
	}

	msg, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, classify("update_message", MessageResource, id, err)
	}

	if patch.TaskID != nil {
		if _, err := s.repo.GetTask(ctx, *patch.TaskID); err != nil {
			return nil, classify("update_message", TaskResource, *patch.TaskID, err)
		}
		taskID := *patch.TaskID
		msg.TaskID = &taskID
	}
	if patch.Text != nil {
		msg.Text = *patch.Text
	}

	if err := s.repo.UpdateMessage(ctx, msg); err != nil {
		busErr := classify("update_message", MessageResource, id, err)
		logger.Error("Service: Не удалось обновить сообщение", err, zap.Int64("message_id", id))
		return nil, busErr
	}

	s.broadcaster.MessageUpdated(msg)
	return msg, nil
}

// AssignTask привязывает сообщение к существующей задаче
func (s *ChatService) AssignTask(ctx context.Context, messageID, taskID int64) (*message.Message, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, classify("assign_task", MessageResource, messageID, err)
	}

	if _, err := s.repo.GetTask(ctx, taskID); err != nil {
		logger.Info("Service: Задача для привязки не найдена", zap.Int64("task_id", taskID))
		return nil, classify("assign_task", TaskResource, taskID, err)
	}

	msg.TaskID = &taskID
	if err := s.repo.UpdateMessage(ctx, msg); err != nil {
		busErr := classify("assign_task", MessageResource, messageID, err)
		logger.Error("Service: Не удалось привязать сообщение", err,
			zap.Int64("message_id", messageID),
			zap.Int64("task_id", taskID))
		return nil, busErr
	}

	logger.Info("Service: Сообщение привязано к задаче",
		zap.Int64("message_id", messageID),
		zap.Int64("task_id", taskID))

	s.broadcaster.MessageUpdated(msg)
	return msg, nil
}

func (s *ChatService) DeleteMessage(ctx context.Context, id int64) error {
	if err := s.repo.DeleteMessage(ctx, id); err != nil {
		return classify("delete_message", MessageResource, id, err)
	}

	s.broadcaster.MessageDeleted(id)
	return nil
}

func (s *ChatService) ListTasks(ctx context.Context) ([]*task.Task, error) {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return nil, classify("list_tasks", TaskResource, 0, err)
	}
	return tasks, nil
}

func (s *ChatService) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, classify("get_task", TaskResource, id, err)
	}
	return t, nil
}

func (s *ChatService) CreateTask(ctx context.Context, in NewTask) (*task.Task, error) {
	status, err := task.ParseStatus(in.Status)
	if err != nil {
		return nil, NewValidationError("status", err.Error())
	}

	t := &task.Task{
		Title:       in.Title,
		Description: in.Description,
		Status:      status,
	}
	if in.Progress != nil {
		t.Progress = *in.Progress
	}
	task.Apply(t, task.WithDueDate(in.DueDate))

	if err := validateTask(t); err != nil {
		return nil, err
	}

	if err := s.repo.CreateTask(ctx, t); err != nil {
		busErr := classify("create_task", TaskResource, 0, err)
		logger.Error("Service: Не удалось создать задачу", err)
		return nil, busErr
	}

	logger.Info("Service: Задача создана", zap.Int64("task_id", t.ID), zap.String("status", string(t.Status)))

	s.broadcastTasks(ctx)
	return t, nil
}

func (s *ChatService) UpdateTask(ctx context.Context, id int64, options ...task.TaskOption) (*task.Task, error) {
	existed, err := s.repo.GetTask(ctx, id)
	if err != nil {
		logger.Info("Service: Задача не найдена", zap.Int64("target_id", id))
		return nil, classify("update_task", TaskResource, id, err)
	}

	updated := existed.Clone()
	task.Apply(updated, options...)
	if err := validateTask(updated); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTask(ctx, updated); err != nil {
		busErr := classify("update_task", TaskResource, id, err)
		logger.Error("Service: Не удалось обновить задачу", err, zap.Int64("task_id", id))
		return nil, busErr
	}

	s.broadcastTasks(ctx)
	return updated, nil
}

// DeleteTask удаляет задачу; отвязанные сообщения рассылаются по одному
// после обновлённого списка задач
func (s *ChatService) DeleteTask(ctx context.Context, id int64) error {
	unlinked, err := s.repo.DeleteTask(ctx, id)
	if err != nil {
		return classify("delete_task", TaskResource, id, err)
	}

	logger.Info("Service: Задача удалена",
		zap.Int64("task_id", id),
		zap.Int("unlinked_messages", len(unlinked)))

	s.broadcastTasks(ctx)
	for _, msg := range unlinked {
		s.broadcaster.MessageUpdated(msg)
	}
	return nil
}

func (s *ChatService) ListTaskMessages(ctx context.Context, taskID int64) ([]*message.Message, error) {
	if _, err := s.repo.GetTask(ctx, taskID); err != nil {
		return nil, classify("list_task_messages", TaskResource, taskID, err)
	}

	msgs, err := s.repo.ListMessagesByTask(ctx, taskID)
	if err != nil {
		return nil, classify("list_task_messages", MessageResource, 0, err)
	}
	return msgs, nil
}

// мутация уже зафиксирована, поэтому отмена запроса не должна срывать рассылку
func (s *ChatService) broadcastTasks(ctx context.Context) {
	tasks, err := s.repo.ListTasks(context.WithoutCancel(ctx))
	if err != nil {
		logger.Error("Service: Не удалось получить задачи для рассылки", err)
		return
	}
	s.broadcaster.TasksUpdated(tasks)
}

func validateTask(t *task.Task) error {
	if err := t.Validate(); err != nil {
		var fieldErr *task.FieldError
		if errors.As(err, &fieldErr) {
			return NewValidationError(fieldErr.Field, fieldErr.Reason)
		}
		return NewValidationError("task", err.Error())
	}
	return nil
}

func normalizeRoom(chatID *string) *string {
	if chatID == nil {
		return nil
	}
	room := strings.TrimSpace(*chatID)
	if room == "" {
		return nil
	}
	return &room
}
