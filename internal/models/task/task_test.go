package task

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{raw: "", want: StatusTodo},
		{raw: "  ", want: StatusTodo},
		{raw: "todo", want: StatusTodo},
		{raw: "inprogress", want: StatusInProgress},
		{raw: " done ", want: StatusDone},
		{raw: "in-progress", wantErr: true},
		{raw: "DONE", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseStatus(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		task      Task
		wantField string
	}{
		{name: "ok", task: Task{Status: StatusTodo, Progress: 0}},
		{name: "full progress", task: Task{Status: StatusDone, Progress: MaxProgress}},
		{name: "bad status", task: Task{Status: "archived"}, wantField: "status"},
		{name: "negative progress", task: Task{Status: StatusTodo, Progress: -1}, wantField: "progress"},
		{name: "progress over max", task: Task{Status: StatusTodo, Progress: 101}, wantField: "progress"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var fieldErr *FieldError
			require.True(t, errors.As(err, &fieldErr))
			assert.Equal(t, tt.wantField, fieldErr.Field)
		})
	}
}

func TestApply(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	base := Task{Title: "old", Description: "d", Status: StatusTodo, Progress: 10}

	t.Run("blank title and status keep current", func(t *testing.T) {
		tk := base
		Apply(&tk, WithTitle("  "), WithStatus(""), WithProgress(40))
		assert.Equal(t, "old", tk.Title)
		assert.Equal(t, StatusTodo, tk.Status)
		assert.Equal(t, 40, tk.Progress)
	})

	t.Run("due date stored in UTC", func(t *testing.T) {
		tk := base
		Apply(&tk, WithDueDate(&due))
		require.NotNil(t, tk.DueDate)
		assert.Equal(t, time.UTC, tk.DueDate.Location())
		assert.True(t, due.Equal(*tk.DueDate))
	})

	t.Run("nil due date clears", func(t *testing.T) {
		tk := base
		tk.DueDate = &due
		Apply(&tk, WithDueDate(nil), WithDescription(""))
		assert.Nil(t, tk.DueDate)
		assert.Empty(t, tk.Description)
	})
}

func TestClone_Independent(t *testing.T) {
	now := time.Now()
	orig := &Task{ID: 1, UpdatedAt: &now, DueDate: &now}

	c := orig.Clone()
	*c.DueDate = now.Add(time.Hour)
	*c.UpdatedAt = now.Add(time.Hour)

	assert.True(t, orig.DueDate.Equal(now))
	assert.True(t, orig.UpdatedAt.Equal(now))
}
