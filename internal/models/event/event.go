// Package event описывает схему событий канала реального времени.
// Каждое имя события имеет ровно одну форму payload.
package event

import (
	"encoding/json"
	"fmt"

	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"
)

const Version = 1

type Type string

// сервер -> клиенты
const MessageReceived Type = "message-received"
const MessageUpdated Type = "message-updated"
const MessageDeleted Type = "message-deleted"
const TasksUpdated Type = "tasks-updated"
const Error Type = "error"

// клиент -> сервер
const PostMessage Type = "post-message"

type Envelope struct {
	Type      Type            `json:"type"`
	Version   int             `json:"version"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type TasksPayload struct {
	Tasks []*task.Task `json:"tasks"`
}

type MessageDeletedPayload struct {
	ID int64 `json:"id"`
}

type PostMessagePayload struct {
	User   string  `json:"user"`
	Text   string  `json:"text"`
	TaskID *int64  `json:"taskId,omitempty"`
	ChatID *string `json:"chatId,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func New(t Type, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("сериализация %s: %w", t, err)
	}
	return Envelope{Type: t, Version: Version, Payload: raw}, nil
}

func NewMessageReceived(m *message.Message) (Envelope, error) {
	return New(MessageReceived, m)
}

func NewMessageUpdated(m *message.Message) (Envelope, error) {
	return New(MessageUpdated, m)
}

func NewMessageDeleted(id int64) (Envelope, error) {
	return New(MessageDeleted, MessageDeletedPayload{ID: id})
}

func NewTasksUpdated(tasks []*task.Task) (Envelope, error) {
	if tasks == nil {
		tasks = []*task.Task{}
	}
	return New(TasksUpdated, TasksPayload{Tasks: tasks})
}

func NewError(requestID, code, msg string) (Envelope, error) {
	env, err := New(Error, ErrorPayload{Code: code, Message: msg})
	env.RequestID = requestID
	return env, err
}

// Decode разбирает payload в тип, соответствующий событию
func Decode[T any](env Envelope) (T, error) {
	var out T
	if env.Version != Version {
		return out, fmt.Errorf("версия события %d не поддерживается", env.Version)
	}
	if len(env.Payload) == 0 {
		return out, fmt.Errorf("пустой payload у события %s", env.Type)
	}
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return out, fmt.Errorf("разбор payload %s: %w", env.Type, err)
	}
	return out, nil
}
