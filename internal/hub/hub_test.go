package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatTracker/internal/config"
	"chatTracker/internal/models/event"
	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"
	"chatTracker/internal/service"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePoster присваивает id и рассылает через хаб, как это делает сервис
type fakePoster struct {
	hub    *Hub
	nextID atomic.Int64
	err    error
}

func (p *fakePoster) PostMessage(_ context.Context, payload event.PostMessagePayload) (*message.Message, error) {
	if p.err != nil {
		return nil, p.err
	}
	msg := &message.Message{
		ID:        p.nextID.Add(1),
		User:      payload.User,
		Text:      payload.Text,
		CreatedAt: time.Now().UTC(),
		ChatID:    payload.ChatID,
	}
	p.hub.MessageReceived(msg)
	return msg, nil
}

func startHub(t *testing.T, posterErr error) (*Hub, string) {
	t.Helper()
	h := New(config.Default().Hub)
	poster := &fakePoster{hub: h, err: posterErr}
	srv := httptest.NewServer(h.Handler(poster))
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) event.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env event.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHub_PostMessageFansOutToEverySession(t *testing.T) {
	h, url := startHub(t, nil)

	alice := dial(t, url)
	bob := dial(t, url)
	require.Eventually(t, func() bool { return h.SessionCount() == 2 }, time.Second, 10*time.Millisecond)

	action := event.Envelope{
		Type:      event.PostMessage,
		Version:   event.Version,
		RequestID: "r1",
		Payload:   json.RawMessage(`{"user":"alice","text":"hello"}`),
	}
	require.NoError(t, alice.WriteJSON(action))

	for _, conn := range []*websocket.Conn{alice, bob} {
		env := readEnvelope(t, conn)
		assert.Equal(t, event.MessageReceived, env.Type)
		assert.Equal(t, event.Version, env.Version)

		got, err := event.Decode[message.Message](env)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ID)
		assert.Equal(t, "hello", got.Text)
	}
}

func TestHub_PostMessageFailureRepliesOnlyToSender(t *testing.T) {
	h, url := startHub(t, service.NewNotFound(service.TaskResource, 42))

	alice := dial(t, url)
	bob := dial(t, url)
	require.Eventually(t, func() bool { return h.SessionCount() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, alice.WriteJSON(event.Envelope{
		Type:      event.PostMessage,
		Version:   event.Version,
		RequestID: "r-42",
		Payload:   json.RawMessage(`{"user":"alice","text":"x","taskId":42}`),
	}))

	env := readEnvelope(t, alice)
	assert.Equal(t, event.Error, env.Type)
	assert.Equal(t, "r-42", env.RequestID)
	payload, err := event.Decode[event.ErrorPayload](env)
	require.NoError(t, err)
	assert.Equal(t, service.CodeNotFound, payload.Code)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err, "other sessions must not see failed actions")
}

func TestHub_InternalErrorIsOpaque(t *testing.T) {
	h, url := startHub(t, errors.New("pq: connection refused"))

	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.SessionCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(event.Envelope{
		Type:    event.PostMessage,
		Version: event.Version,
		Payload: json.RawMessage(`{"user":"a","text":"b"}`),
	}))

	payload, err := event.Decode[event.ErrorPayload](readEnvelope(t, conn))
	require.NoError(t, err)
	assert.Equal(t, service.CodeInternal, payload.Code)
	assert.NotContains(t, payload.Message, "pq:")
}

func TestHub_RejectsUnknownActionAndBadVersion(t *testing.T) {
	h, url := startHub(t, nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.SessionCount() == 1 }, time.Second, 10*time.Millisecond)

	tests := []struct {
		name string
		env  event.Envelope
	}{
		{name: "unknown type", env: event.Envelope{Type: "delete-everything", Version: 1, RequestID: "a", Payload: json.RawMessage(`{}`)}},
		{name: "wrong version", env: event.Envelope{Type: event.PostMessage, Version: 2, RequestID: "b", Payload: json.RawMessage(`{}`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteJSON(tt.env))
			env := readEnvelope(t, conn)
			assert.Equal(t, event.Error, env.Type)
			assert.Equal(t, tt.env.RequestID, env.RequestID)
		})
	}
}

func TestHub_TasksUpdatedShape(t *testing.T) {
	h, url := startHub(t, nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.SessionCount() == 1 }, time.Second, 10*time.Millisecond)

	h.TasksUpdated([]*task.Task{{ID: 2, Title: "b", Status: task.StatusTodo}, {ID: 1, Title: "a", Status: task.StatusDone}})

	env := readEnvelope(t, conn)
	assert.Equal(t, event.TasksUpdated, env.Type)
	payload, err := event.Decode[event.TasksPayload](env)
	require.NoError(t, err)
	require.Len(t, payload.Tasks, 2)
	assert.Equal(t, int64(2), payload.Tasks[0].ID)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h, url := startHub(t, nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.SessionCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.SessionCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	// рассылка без сессий не падает
	h.MessageDeleted(1)
}

func TestSession_SlowConsumerIsDropped(t *testing.T) {
	s := newSession(nil, 1)

	require.NoError(t, s.Enqueue([]byte("1")))
	assert.ErrorIs(t, s.Enqueue([]byte("2")), ErrSlowConsumer)
	assert.ErrorIs(t, s.Enqueue([]byte("3")), ErrSessionClosed)

	select {
	case <-s.Done():
	default:
		t.Fatal("session should be closed")
	}
}

func TestRegistry_SnapshotIsStableUnderChurn(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 10; i++ {
		r.Register(newSession(nil, 1))
	}

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 10)

	var wg sync.WaitGroup
	for _, s := range snapshot {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			r.Unregister(s)
			r.Register(newSession(nil, 1))
		}(s)
	}
	for range snapshot {
		_ = r.Snapshot()
	}
	wg.Wait()

	assert.Len(t, snapshot, 10)
	assert.Equal(t, 10, r.Count())
}
