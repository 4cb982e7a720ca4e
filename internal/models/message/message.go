package message

import (
	"strings"
	"time"
)

// DefaultRoom - комната сообщений без chatId
const DefaultRoom = "general"

type Message struct {
	ID        int64     `json:"id" db:"id"`
	User      string    `json:"user" db:"user"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	TaskID    *int64    `json:"taskId" db:"task_id"`
	ChatID    *string   `json:"chatId" db:"chat_id"`
}

// Patch - частичное обновление, nil-поля не меняются
type Patch struct {
	Text   *string
	TaskID *int64
}

func (p Patch) Empty() bool {
	return p.Text == nil && p.TaskID == nil
}

func (m *Message) Room() string {
	return RoomOf(m.ChatID)
}

func (m *Message) InRoom(room string) bool {
	if strings.TrimSpace(room) == "" {
		return true
	}
	return m.Room() == room
}

func RoomOf(chatID *string) string {
	if chatID == nil || strings.TrimSpace(*chatID) == "" {
		return DefaultRoom
	}
	return *chatID
}

func (m *Message) Clone() *Message {
	c := *m
	if m.TaskID != nil {
		id := *m.TaskID
		c.TaskID = &id
	}
	if m.ChatID != nil {
		chat := *m.ChatID
		c.ChatID = &chat
	}
	return &c
}

// ListFilter для выборки истории: Room пустой - все комнаты
type ListFilter struct {
	Room  string
	Limit int
}

const DefaultLimit = 500
const MaxLimit = 1000
