package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"chatTracker/internal/app"
	"chatTracker/internal/client"
	"chatTracker/internal/config"
	"chatTracker/internal/hub"
	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"
	"chatTracker/internal/repository/inmemory"
	"chatTracker/internal/service"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ClientSuite struct {
	suite.Suite
	srv    *httptest.Server
	hub    *hub.Hub
	client *client.Client
	cancel context.CancelFunc
	done   chan error

	mu     sync.Mutex
	states []client.State
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	cfg := config.Default()
	cfg.HTTP.RateLimit = 0
	cfg.HTTP.EnableMCP = false

	s.hub = hub.New(cfg.Hub)
	svc := service.NewChatService(inmemory.New(), s.hub)
	s.srv = httptest.NewServer(app.NewRouter(cfg, svc, s.hub))

	s.states = nil
	c, err := client.New(client.Options{
		BaseURL: s.srv.URL,
		Room:    message.DefaultRoom,
		NewBackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(20 * time.Millisecond)
		},
		OnState: func(st client.State) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.states = append(s.states, st)
		},
	})
	s.Require().NoError(err)
	s.client = c

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- c.Run(ctx) }()

	s.Require().Eventually(func() bool {
		return c.State() == client.StateConnected && s.hub.SessionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *ClientSuite) TearDownTest() {
	s.cancel()
	select {
	case err := <-s.done:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("client did not stop")
	}
	s.Equal(client.StateClosed, s.client.State())
	s.hub.Close()
	s.srv.Close()
}

func (s *ClientSuite) request(method, path string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	s.Require().NoError(err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (s *ClientSuite) TestCreateTaskDefaultsStatusAndReachesClient() {
	resp := s.request(http.MethodPost, "/tasks", map[string]any{"title": "Fix bug", "status": ""})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	created := decode[task.Task](s.T(), resp)
	s.Equal(task.StatusTodo, created.Status)

	s.Eventually(func() bool {
		tasks := s.client.Store().Tasks()
		return len(tasks) == 1 && tasks[0].ID == created.ID
	}, time.Second, 10*time.Millisecond)
}

func (s *ClientSuite) TestPostedMessageAppearsOnce() {
	_, err := s.client.Post("alice", "hello", nil)
	s.Require().NoError(err)

	s.Eventually(func() bool { return len(s.client.Store().Messages()) == 1 }, time.Second, 10*time.Millisecond)

	// повторная загрузка поверх уже применённого события не дублирует запись
	s.Require().NoError(s.client.Seed(context.Background()))
	msgs := s.client.Store().Messages()
	s.Require().Len(msgs, 1)
	s.Equal("hello", msgs[0].Text)
	s.Equal("alice", msgs[0].User)
}

func (s *ClientSuite) TestOtherRoomIsNotShown() {
	resp := s.request(http.MethodPost, "/messages", map[string]any{"user": "bob", "text": "ops only", "chatId": "ops"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	resp = s.request(http.MethodPost, "/messages", map[string]any{"user": "bob", "text": "for everyone"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	s.Eventually(func() bool { return len(s.client.Store().Messages()) == 1 }, time.Second, 10*time.Millisecond)
	s.Never(func() bool { return len(s.client.Store().Messages()) > 1 }, 150*time.Millisecond, 10*time.Millisecond)
	s.Equal("for everyone", s.client.Store().Messages()[0].Text)
}

func (s *ClientSuite) TestAssignToMissingTaskLeavesLinkUnchanged() {
	resp := s.request(http.MethodPost, "/messages", map[string]any{"user": "bob", "text": "x"})
	msg := decode[message.Message](s.T(), resp)

	resp = s.request(http.MethodPatch, "/messages/"+itoa(msg.ID)+"/assignTask/42", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp = s.request(http.MethodGet, "/messages/"+itoa(msg.ID), nil)
	got := decode[message.Message](s.T(), resp)
	s.Nil(got.TaskID)
}

func (s *ClientSuite) TestDeleteTaskUnlinksMessagesEverywhere() {
	resp := s.request(http.MethodPost, "/tasks", map[string]any{"title": "T"})
	created := decode[task.Task](s.T(), resp)

	var linked []int64
	for i := 0; i < 3; i++ {
		resp := s.request(http.MethodPost, "/messages", map[string]any{"user": "u", "text": "m", "taskId": created.ID})
		s.Require().Equal(http.StatusCreated, resp.StatusCode)
		linked = append(linked, decode[message.Message](s.T(), resp).ID)
	}

	s.Eventually(func() bool { return len(s.client.Store().Messages()) == 3 }, time.Second, 10*time.Millisecond)

	resp = s.request(http.MethodDelete, "/tasks/"+itoa(created.ID), nil)
	s.Require().Equal(http.StatusNoContent, resp.StatusCode)

	s.Eventually(func() bool {
		if len(s.client.Store().Tasks()) != 0 {
			return false
		}
		for _, m := range s.client.Store().Messages() {
			if m.TaskID != nil {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)

	for _, id := range linked {
		resp := s.request(http.MethodGet, "/messages/"+itoa(id), nil)
		var raw map[string]any
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&raw))
		s.Contains(raw, "taskId")
		s.Nil(raw["taskId"])
	}
}

func (s *ClientSuite) TestReconnectReseeds() {
	s.hub.Close()

	s.Require().Eventually(func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		n := len(s.states)
		return n >= 2 && s.states[n-2] == client.StateReconnecting && s.states[n-1] == client.StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	// после переподключения события снова доходят
	resp := s.request(http.MethodPost, "/tasks", map[string]any{"title": "after reconnect"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Eventually(func() bool { return len(s.client.Store().Tasks()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := client.New(client.Options{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
}

func TestPost_NotConnected(t *testing.T) {
	c, err := client.New(client.Options{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = c.Post("a", "b", nil)
	assert.ErrorIs(t, err, client.ErrNotConnected)
}

func TestSeed_RoomWithSurroundingSpaces(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.EnableMCP = false

	h := hub.New(cfg.Hub)
	defer h.Close()
	svc := service.NewChatService(inmemory.New(), h)
	srv := httptest.NewServer(app.NewRouter(cfg, svc, h))
	defer srv.Close()

	ops := "ops"
	_, err := svc.CreateMessage(context.Background(), service.NewMessage{User: "bob", Text: "deploy", ChatID: &ops})
	require.NoError(t, err)
	_, err = svc.CreateMessage(context.Background(), service.NewMessage{User: "bob", Text: "lunch"})
	require.NoError(t, err)

	c, err := client.New(client.Options{BaseURL: srv.URL, Room: "  ops "})
	require.NoError(t, err)
	assert.Equal(t, "ops", c.Store().Room())

	require.NoError(t, c.Seed(context.Background()))
	msgs := c.Store().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "deploy", msgs[0].Text)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
