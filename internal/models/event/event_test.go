package event

import (
	"encoding/json"
	"testing"
	"time"

	"chatTracker/internal/models/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_WireShape(t *testing.T) {
	msg := &message.Message{ID: 7, User: "bob", Text: "hi", CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	env, err := NewMessageReceived(msg)
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"type": "message-received",
		"version": 1,
		"payload": {"id":7,"user":"bob","text":"hi","createdAt":"2026-01-02T03:04:05Z","taskId":null,"chatId":null}
	}`, string(raw))
}

func TestNewTasksUpdated_NilIsEmptyList(t *testing.T) {
	env, err := NewTasksUpdated(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tasks":[]}`, string(env.Payload))
}

func TestNewError_CarriesRequestID(t *testing.T) {
	env, err := NewError("req-1", "NOT_FOUND", "задача не найдена")
	require.NoError(t, err)

	assert.Equal(t, Error, env.Type)
	assert.Equal(t, "req-1", env.RequestID)

	payload, err := Decode[ErrorPayload](env)
	require.NoError(t, err)
	assert.Equal(t, "NOT_FOUND", payload.Code)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "ok", raw: `{"type":"post-message","version":1,"payload":{"user":"a","text":"b","taskId":3}}`},
		{name: "wrong version", raw: `{"type":"post-message","version":2,"payload":{"user":"a"}}`, wantErr: true},
		{name: "missing payload", raw: `{"type":"post-message","version":1}`, wantErr: true},
		{name: "payload of wrong shape", raw: `{"type":"post-message","version":1,"payload":{"taskId":"x"}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &env))

			got, err := Decode[PostMessagePayload](env)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a", got.User)
			require.NotNil(t, got.TaskID)
			assert.Equal(t, int64(3), *got.TaskID)
		})
	}
}
