package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatTracker/internal/logger"
	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"
	repo "chatTracker/internal/repository"
)

// Storage хранит сообщения и задачи в памяти процесса.
// Наружу отдаются только копии.
type Storage struct {
	mtx *sync.RWMutex

	messages   map[int64]*message.Message
	messageIDs []int64
	tasks      map[int64]*task.Task
	taskIDs    []int64

	nextMessageID int64
	nextTaskID    int64
	lastCreatedAt time.Time
}

func New() *Storage {
	return &Storage{
		mtx:      &sync.RWMutex{},
		messages: make(map[int64]*message.Message),
		tasks:    make(map[int64]*task.Task),
	}
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	logger.Debug("Repository: Соединение стабильно")
	return nil
}

func (s *Storage) Close() {}

// now не убывает между вызовами
func (s *Storage) now() time.Time {
	now := time.Now().UTC()
	if now.Before(s.lastCreatedAt) {
		now = s.lastCreatedAt
	}
	s.lastCreatedAt = now
	return now
}

func (s *Storage) CreateMessage(ctx context.Context, msg *message.Message) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if msg.TaskID != nil {
		if _, ok := s.tasks[*msg.TaskID]; !ok {
			return repo.ErrConflict
		}
	}

	s.nextMessageID++
	msg.ID = s.nextMessageID
	msg.CreatedAt = s.now()

	s.messages[msg.ID] = msg.Clone()
	s.messageIDs = append(s.messageIDs, msg.ID)
	return nil
}

func (s *Storage) GetMessage(ctx context.Context, id int64) (*message.Message, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return msg.Clone(), nil
}

// последние filter.Limit сообщений комнаты, от старых к новым
func (s *Storage) ListMessages(ctx context.Context, filter message.ListFilter) ([]*message.Message, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := []*message.Message{}
	for i := len(s.messageIDs) - 1; i >= 0; i-- {
		if filter.Limit > 0 && len(res) >= filter.Limit {
			break
		}
		msg := s.messages[s.messageIDs[i]]
		if !msg.InRoom(filter.Room) {
			continue
		}
		res = append(res, msg.Clone())
	}

	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res, nil
}

func (s *Storage) ListMessagesByTask(ctx context.Context, taskID int64) ([]*message.Message, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := []*message.Message{}
	for _, id := range s.messageIDs {
		msg := s.messages[id]
		if msg.TaskID != nil && *msg.TaskID == taskID {
			res = append(res, msg.Clone())
		}
	}
	return res, nil
}

func (s *Storage) UpdateMessage(ctx context.Context, msg *message.Message) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existed, ok := s.messages[msg.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if msg.TaskID != nil {
		if _, ok := s.tasks[*msg.TaskID]; !ok {
			return repo.ErrConflict
		}
	}

	existed.Text = msg.Text
	existed.TaskID = msg.Clone().TaskID
	return nil
}

func (s *Storage) DeleteMessage(ctx context.Context, id int64) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.messages[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.messages, id)
	s.messageIDs = removeID(s.messageIDs, id)
	return nil
}

func (s *Storage) CreateTask(ctx context.Context, t *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.nextTaskID++
	t.ID = s.nextTaskID
	t.CreatedAt = s.now()
	t.UpdatedAt = nil

	s.tasks[t.ID] = t.Clone()
	s.taskIDs = append(s.taskIDs, t.ID)
	return nil
}

func (s *Storage) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return t.Clone(), nil
}

// от новых к старым
func (s *Storage) ListTasks(ctx context.Context) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := make([]*task.Task, 0, len(s.taskIDs))
	for _, id := range s.taskIDs {
		res = append(res, s.tasks[id].Clone())
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID > res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (s *Storage) UpdateTask(ctx context.Context, t *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existed, ok := s.tasks[t.ID]
	if !ok {
		return repo.ErrNotFound
	}

	now := time.Now().UTC()
	t.UpdatedAt = &now
	t.CreatedAt = existed.CreatedAt
	s.tasks[t.ID] = t.Clone()
	return nil
}

// DeleteTask удаляет задачу и отвязывает от неё сообщения, возвращая их
func (s *Storage) DeleteTask(ctx context.Context, id int64) ([]*message.Message, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return nil, repo.ErrNotFound
	}

	unlinked := []*message.Message{}
	for _, msgID := range s.messageIDs {
		msg := s.messages[msgID]
		if msg.TaskID != nil && *msg.TaskID == id {
			msg.TaskID = nil
			unlinked = append(unlinked, msg.Clone())
		}
	}

	delete(s.tasks, id)
	s.taskIDs = removeID(s.taskIDs, id)
	return unlinked, nil
}

func removeID(ids []int64, id int64) []int64 {
	for ind, val := range ids {
		if val == id {
			return append(ids[:ind], ids[ind+1:]...)
		}
	}
	return ids
}
