package client

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"chatTracker/internal/models/event"
	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"
)

const DefaultCapacity = 200

// Store - локальная проекция сообщений и задач одного клиента.
// Сообщения упорядочены по (createdAt, id), хранится не больше capacity последних.
type Store struct {
	mu       sync.RWMutex
	room     string
	capacity int

	messages []*message.Message
	index    map[int64]int
	tasks    []*task.Task
}

// NewStore: пустая room означает все комнаты
func NewStore(room string, capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		room:     strings.TrimSpace(room),
		capacity: capacity,
		index:    make(map[int64]int),
	}
}

func (s *Store) Room() string {
	return s.room
}

// Seed целиком заменяет кэш результатом выборки
func (s *Store) Seed(msgs []*message.Message, tasks []*task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = s.messages[:0]
	seen := make(map[int64]struct{}, len(msgs))
	for _, m := range msgs {
		if !m.InRoom(s.room) {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		s.messages = append(s.messages, m.Clone())
	}
	sort.SliceStable(s.messages, func(i, j int) bool {
		return before(s.messages[i], s.messages[j])
	})
	s.evict()

	s.tasks = cloneTasks(tasks)
}

// ApplyMessageReceived добавляет сообщение своей комнаты; повтор по id заменяет запись
func (s *Store) ApplyMessageReceived(m *message.Message) bool {
	if !m.InRoom(s.room) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if pos, ok := s.index[m.ID]; ok {
		s.messages[pos] = m.Clone()
		return true
	}

	pos := sort.Search(len(s.messages), func(i int) bool {
		return before(m, s.messages[i])
	})
	s.messages = append(s.messages, nil)
	copy(s.messages[pos+1:], s.messages[pos:])
	s.messages[pos] = m.Clone()
	s.evict()

	_, kept := s.index[m.ID]
	return kept
}

// ApplyMessageUpdated заменяет запись с тем же id; чужие id игнорируются
func (s *Store) ApplyMessageUpdated(m *message.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[m.ID]
	if !ok {
		return false
	}
	s.messages[pos] = m.Clone()
	return true
}

func (s *Store) ApplyMessageDeleted(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[id]
	if !ok {
		return false
	}
	s.messages = append(s.messages[:pos], s.messages[pos+1:]...)
	s.reindex()
	return true
}

// ApplyTasksUpdated заменяет весь список задач
func (s *Store) ApplyTasksUpdated(tasks []*task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = cloneTasks(tasks)
}

// Apply разбирает конверт и применяет его. Возвращает false для событий,
// не изменивших кэш.
func (s *Store) Apply(env event.Envelope) (bool, error) {
	switch env.Type {
	case event.MessageReceived:
		m, err := event.Decode[message.Message](env)
		if err != nil {
			return false, err
		}
		return s.ApplyMessageReceived(&m), nil
	case event.MessageUpdated:
		m, err := event.Decode[message.Message](env)
		if err != nil {
			return false, err
		}
		return s.ApplyMessageUpdated(&m), nil
	case event.MessageDeleted:
		p, err := event.Decode[event.MessageDeletedPayload](env)
		if err != nil {
			return false, err
		}
		return s.ApplyMessageDeleted(p.ID), nil
	case event.TasksUpdated:
		p, err := event.Decode[event.TasksPayload](env)
		if err != nil {
			return false, err
		}
		s.ApplyTasksUpdated(p.Tasks)
		return true, nil
	case event.Error:
		return false, nil
	default:
		return false, fmt.Errorf("неизвестное событие %q", env.Type)
	}
}

func (s *Store) Messages() []*message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*message.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

func (s *Store) Message(id int64) (*message.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.messages[pos].Clone(), true
}

func (s *Store) Tasks() []*task.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTasks(s.tasks)
}

// evict выбрасывает самые старые записи сверх capacity и перестраивает индекс
func (s *Store) evict() {
	if over := len(s.messages) - s.capacity; over > 0 {
		s.messages = append(s.messages[:0], s.messages[over:]...)
	}
	s.reindex()
}

func (s *Store) reindex() {
	clear(s.index)
	for i, m := range s.messages {
		s.index[m.ID] = i
	}
}

func before(a, b *message.Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func cloneTasks(tasks []*task.Task) []*task.Task {
	out := make([]*task.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
