// Package repotest - общий набор проверок для всех реализаций хранилища.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"
	repo "chatTracker/internal/repository"
	"chatTracker/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory возвращает пустое хранилище для одного подтеста
type Factory func(t *testing.T) service.Repository

func Run(t *testing.T, newStore Factory) {
	t.Run("HealthCheck", func(t *testing.T) {
		assert.NoError(t, newStore(t).HealthCheck(context.Background()))
	})
	t.Run("MessageLifecycle", func(t *testing.T) { testMessageLifecycle(t, newStore(t)) })
	t.Run("MessageIDsAndTimestamps", func(t *testing.T) { testMessageOrdering(t, newStore(t)) })
	t.Run("ListMessagesRoomAndLimit", func(t *testing.T) { testListMessages(t, newStore(t)) })
	t.Run("MessageTaskLink", func(t *testing.T) { testMessageTaskLink(t, newStore(t)) })
	t.Run("TaskLifecycle", func(t *testing.T) { testTaskLifecycle(t, newStore(t)) })
	t.Run("ListTasksNewestFirst", func(t *testing.T) { testListTasks(t, newStore(t)) })
	t.Run("DeleteTaskUnlinksMessages", func(t *testing.T) { testDeleteTask(t, newStore(t)) })
	t.Run("RepeatedUpdateIsIdempotent", func(t *testing.T) { testRepeatedUpdate(t, newStore(t)) })
	t.Run("ConcurrentCreates", func(t *testing.T) { testConcurrentCreates(t, newStore(t)) })
}

func room(name string) *string {
	return &name
}

func testMessageLifecycle(t *testing.T, store service.Repository) {
	ctx := context.Background()

	msg := &message.Message{User: "alice", Text: "hello"}
	require.NoError(t, store.CreateMessage(ctx, msg))
	assert.NotZero(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())

	got, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.User)
	assert.Equal(t, "hello", got.Text)
	assert.Nil(t, got.TaskID)
	assert.Nil(t, got.ChatID)

	got.Text = "edited"
	require.NoError(t, store.UpdateMessage(ctx, got))
	// повтор того же изменения не меняет результат
	require.NoError(t, store.UpdateMessage(ctx, got))

	again, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", again.Text)
	assert.True(t, msg.CreatedAt.Equal(again.CreatedAt))

	require.NoError(t, store.DeleteMessage(ctx, msg.ID))
	_, err = store.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, store.DeleteMessage(ctx, msg.ID), repo.ErrNotFound)
	assert.ErrorIs(t, store.UpdateMessage(ctx, &message.Message{ID: msg.ID, Text: "x"}), repo.ErrNotFound)
}

func testMessageOrdering(t *testing.T, store service.Repository) {
	ctx := context.Background()

	var prev *message.Message
	seen := make(map[int64]bool)
	for i := 0; i < 20; i++ {
		msg := &message.Message{User: "u", Text: fmt.Sprintf("m%d", i)}
		require.NoError(t, store.CreateMessage(ctx, msg))

		assert.False(t, seen[msg.ID], "id %d reused", msg.ID)
		seen[msg.ID] = true
		if prev != nil {
			assert.Greater(t, msg.ID, prev.ID)
			assert.False(t, msg.CreatedAt.Before(prev.CreatedAt), "timestamps must not decrease")
		}
		prev = msg
	}
}

func testListMessages(t *testing.T, store service.Repository) {
	ctx := context.Background()

	fixtures := []*message.Message{
		{User: "a", Text: "1"},
		{User: "a", Text: "2", ChatID: room("ops")},
		{User: "a", Text: "3", ChatID: room(message.DefaultRoom)},
		{User: "a", Text: "4"},
		{User: "a", Text: "5", ChatID: room("ops")},
	}
	for _, m := range fixtures {
		require.NoError(t, store.CreateMessage(ctx, m))
	}

	texts := func(msgs []*message.Message) []string {
		out := make([]string, len(msgs))
		for i, m := range msgs {
			out[i] = m.Text
		}
		return out
	}

	tests := []struct {
		name   string
		filter message.ListFilter
		want   []string
	}{
		{name: "all rooms", filter: message.ListFilter{Limit: 100}, want: []string{"1", "2", "3", "4", "5"}},
		{name: "default room includes null chat id", filter: message.ListFilter{Room: message.DefaultRoom, Limit: 100}, want: []string{"1", "3", "4"}},
		{name: "named room", filter: message.ListFilter{Room: "ops", Limit: 100}, want: []string{"2", "5"}},
		{name: "most recent N oldest first", filter: message.ListFilter{Limit: 2}, want: []string{"4", "5"}},
		{name: "most recent N in room", filter: message.ListFilter{Room: message.DefaultRoom, Limit: 2}, want: []string{"3", "4"}},
		{name: "unknown room", filter: message.ListFilter{Room: "nobody", Limit: 10}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListMessages(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, texts(got))
		})
	}
}

func testMessageTaskLink(t *testing.T, store service.Repository) {
	ctx := context.Background()

	tk := &task.Task{Title: "T", Status: task.StatusTodo}
	require.NoError(t, store.CreateTask(ctx, tk))

	missing := int64(999999)
	err := store.CreateMessage(ctx, &message.Message{User: "u", Text: "x", TaskID: &missing})
	assert.ErrorIs(t, err, repo.ErrConflict)

	msg := &message.Message{User: "u", Text: "x"}
	require.NoError(t, store.CreateMessage(ctx, msg))

	msg.TaskID = &missing
	assert.ErrorIs(t, store.UpdateMessage(ctx, msg), repo.ErrConflict)

	stored, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.TaskID, "failed link must leave the message unchanged")

	stored.TaskID = &tk.ID
	require.NoError(t, store.UpdateMessage(ctx, stored))

	linked, err := store.ListMessagesByTask(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, msg.ID, linked[0].ID)

	none, err := store.ListMessagesByTask(ctx, missing)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testTaskLifecycle(t *testing.T, store service.Repository) {
	ctx := context.Background()
	due := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	tk := &task.Task{Title: "Write docs", Description: "d", Status: task.StatusTodo, Progress: 0, DueDate: &due}
	require.NoError(t, store.CreateTask(ctx, tk))
	assert.NotZero(t, tk.ID)
	assert.False(t, tk.CreatedAt.IsZero())
	assert.Nil(t, tk.UpdatedAt)

	got, err := store.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "Write docs", got.Title)
	assert.Equal(t, task.StatusTodo, got.Status)
	require.NotNil(t, got.DueDate)
	assert.True(t, due.Equal(*got.DueDate))
	assert.Nil(t, got.UpdatedAt)

	got.Status = task.StatusInProgress
	got.Progress = 60
	got.DueDate = nil
	require.NoError(t, store.UpdateTask(ctx, got))
	require.NotNil(t, got.UpdatedAt)

	updated, err := store.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, updated.Status)
	assert.Equal(t, 60, updated.Progress)
	assert.Nil(t, updated.DueDate)
	require.NotNil(t, updated.UpdatedAt)
	assert.True(t, tk.CreatedAt.Equal(updated.CreatedAt))

	assert.ErrorIs(t, store.UpdateTask(ctx, &task.Task{ID: 999999, Status: task.StatusTodo}), repo.ErrNotFound)
	_, err = store.GetTask(ctx, 999999)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func testListTasks(t *testing.T, store service.Repository) {
	ctx := context.Background()

	var created []int64
	for i := 0; i < 3; i++ {
		tk := &task.Task{Title: fmt.Sprintf("t%d", i), Status: task.StatusTodo}
		require.NoError(t, store.CreateTask(ctx, tk))
		created = append(created, tk.ID)
	}

	tasks, err := store.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, []int64{created[2], created[1], created[0]}, []int64{tasks[0].ID, tasks[1].ID, tasks[2].ID})
}

func testDeleteTask(t *testing.T, store service.Repository) {
	ctx := context.Background()

	tk := &task.Task{Title: "doomed", Status: task.StatusTodo}
	require.NoError(t, store.CreateTask(ctx, tk))
	other := &task.Task{Title: "kept", Status: task.StatusTodo}
	require.NoError(t, store.CreateTask(ctx, other))

	var linked []int64
	for i := 0; i < 3; i++ {
		msg := &message.Message{User: "u", Text: "x", TaskID: &tk.ID}
		require.NoError(t, store.CreateMessage(ctx, msg))
		linked = append(linked, msg.ID)
	}
	untouched := &message.Message{User: "u", Text: "y", TaskID: &other.ID}
	require.NoError(t, store.CreateMessage(ctx, untouched))

	unlinked, err := store.DeleteTask(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, unlinked, 3)
	for _, m := range unlinked {
		assert.Contains(t, linked, m.ID)
		assert.Nil(t, m.TaskID)
	}

	for _, id := range linked {
		m, err := store.GetMessage(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, m.TaskID)
	}

	kept, err := store.GetMessage(ctx, untouched.ID)
	require.NoError(t, err)
	require.NotNil(t, kept.TaskID)
	assert.Equal(t, other.ID, *kept.TaskID)

	_, err = store.GetTask(ctx, tk.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = store.DeleteTask(ctx, tk.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func testConcurrentCreates(t *testing.T, store service.Repository) {
	ctx := context.Background()
	const workers = 16
	const perWorker = 25

	var wg sync.WaitGroup
	var mtx sync.Mutex
	var created []*message.Message
	var tasks []*task.Task
	errs := make(chan error, 2*workers*perWorker)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				msg := &message.Message{User: fmt.Sprintf("w%d", w), Text: "x"}
				if err := store.CreateMessage(ctx, msg); err != nil {
					errs <- err
					continue
				}
				tk := &task.Task{Title: fmt.Sprintf("w%d-%d", w, i), Status: task.StatusTodo}
				if err := store.CreateTask(ctx, tk); err != nil {
					errs <- err
					continue
				}

				mtx.Lock()
				created = append(created, msg)
				tasks = append(tasks, tk)
				mtx.Unlock()
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, created, workers*perWorker)

	// в порядке id время создания не убывает
	sort.Slice(created, func(i, j int) bool { return created[i].ID < created[j].ID })
	for i := 1; i < len(created); i++ {
		assert.NotEqual(t, created[i-1].ID, created[i].ID)
		assert.False(t, created[i].CreatedAt.Before(created[i-1].CreatedAt),
			"message %d created at %s before message %d at %s",
			created[i].ID, created[i].CreatedAt, created[i-1].ID, created[i-1].CreatedAt)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	for i := 1; i < len(tasks); i++ {
		assert.NotEqual(t, tasks[i-1].ID, tasks[i].ID)
		assert.False(t, tasks[i].CreatedAt.Before(tasks[i-1].CreatedAt),
			"task %d created at %s before task %d", tasks[i].ID, tasks[i].CreatedAt, tasks[i-1].ID)
	}

	// хранилище отдаёт те же значения, что вернуло при вставке
	stored, err := store.ListMessages(ctx, message.ListFilter{Limit: message.MaxLimit})
	require.NoError(t, err)
	require.Len(t, stored, len(created))
	for i, m := range stored {
		assert.Equal(t, created[i].ID, m.ID)
		assert.True(t, created[i].CreatedAt.Equal(m.CreatedAt))
	}
}

// одно и то же изменение, применённое дважды, даёт то же состояние, что и один раз
func testRepeatedUpdate(t *testing.T, store service.Repository) {
	ctx := context.Background()

	tk := &task.Task{Title: "T", Status: task.StatusTodo}
	require.NoError(t, store.CreateTask(ctx, tk))

	msg := &message.Message{User: "u", Text: "before", TaskID: &tk.ID}
	require.NoError(t, store.CreateMessage(ctx, msg))

	msg.Text = "x"
	require.NoError(t, store.UpdateMessage(ctx, msg))
	once, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)

	require.NoError(t, store.UpdateMessage(ctx, msg))
	twice, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)

	assert.Equal(t, "x", once.Text)
	assert.Equal(t, once.Text, twice.Text)
	assert.Equal(t, once.User, twice.User)
	assert.Equal(t, once.TaskID, twice.TaskID)
	assert.True(t, once.CreatedAt.Equal(twice.CreatedAt))
}
