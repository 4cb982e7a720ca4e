package inmemory_test

import (
	"context"
	"testing"

	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"
	"chatTracker/internal/repository/inmemory"
	"chatTracker/internal/repository/repotest"
	"chatTracker/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) service.Repository {
		return inmemory.New()
	})
}

// наружу отдаются копии, изменения вызывающего не попадают в хранилище
func TestStorage_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.New()

	tk := &task.Task{Title: "T", Status: task.StatusTodo}
	require.NoError(t, storage.CreateTask(ctx, tk))

	msg := &message.Message{User: "u", Text: "original", TaskID: &tk.ID}
	require.NoError(t, storage.CreateMessage(ctx, msg))
	msg.Text = "mutated after create"

	got, err := storage.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Text)

	got.Text = "mutated after get"
	*got.TaskID = 42

	again, err := storage.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Text)
	assert.Equal(t, tk.ID, *again.TaskID)

	tasks, err := storage.ListTasks(ctx)
	require.NoError(t, err)
	tasks[0].Title = "changed"

	stored, err := storage.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", stored.Title)
}
