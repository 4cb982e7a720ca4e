package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"chatTracker/internal/models/task"
	"chatTracker/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTaskLister struct {
	mock.Mock
}

func (m *MockTaskLister) ListTasks(ctx context.Context) ([]*task.Task, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*task.Task), args.Error(1)
}

type fakeNotifier struct {
	sessions  int
	published atomic.Int32
	last      []*task.Task
}

func (n *fakeNotifier) SessionCount() int { return n.sessions }

func (n *fakeNotifier) TasksUpdated(tasks []*task.Task) {
	n.last = tasks
	n.published.Add(1)
}

func TestResyncWorker_Resync(t *testing.T) {
	tasks := []*task.Task{{ID: 1, Status: task.StatusTodo}}

	tests := []struct {
		name        string
		sessions    int
		setupMock   func(*MockTaskLister)
		expectSent  bool
		expectError bool
	}{
		{
			name:       "no sessions - nothing to do",
			sessions:   0,
			setupMock:  func(*MockTaskLister) {},
			expectSent: false,
		},
		{
			name:     "live sessions get the list",
			sessions: 2,
			setupMock: func(m *MockTaskLister) {
				m.On("ListTasks", mock.Anything).Return(tasks, nil)
			},
			expectSent: true,
		},
		{
			name:     "store failure",
			sessions: 1,
			setupMock: func(m *MockTaskLister) {
				m.On("ListTasks", mock.Anything).Return(nil, errors.New("db down"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lister := new(MockTaskLister)
			tt.setupMock(lister)
			notifier := &fakeNotifier{sessions: tt.sessions}

			w := worker.NewResyncWorker(lister, notifier, nil)
			sent, err := w.Resync(context.Background())

			if tt.expectError {
				assert.Error(t, err)
				assert.Equal(t, int32(0), notifier.published.Load())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectSent, sent)
			if tt.expectSent {
				assert.Equal(t, tasks, notifier.last)
			}
			lister.AssertExpectations(t)
		})
	}
}

func TestResyncWorker_StartStopsOnCancel(t *testing.T) {
	lister := new(MockTaskLister)
	lister.On("ListTasks", mock.Anything).Return([]*task.Task{}, nil)
	notifier := &fakeNotifier{sessions: 1}

	interval := 10 * time.Millisecond
	w := worker.NewResyncWorker(lister, notifier, &interval)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return notifier.published.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
