package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chatTracker/internal/logger"
	"chatTracker/internal/models/event"
	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const HubPath = "/hubs/chat"

var ErrNotConnected = errors.New("клиент не подключён")

type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type Options struct {
	// BaseURL сервера, например http://localhost:8080
	BaseURL  string
	Room     string
	Limit    int
	Capacity int

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	// NewBackOff создаёт политику повторов подключения; по умолчанию экспоненциальная без ограничения по времени
	NewBackOff func() backoff.BackOff

	OnEvent func(event.Envelope)
	OnState func(State)
}

// Client держит кэш в согласии с сервером: загружает его по HTTP
// на каждом (пере)подключении и применяет события канала.
type Client struct {
	opts  Options
	base  *url.URL
	store *Store
	state atomic.Int32

	connMu sync.Mutex
	conn   *websocket.Conn
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("разбор адреса сервера: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("адрес сервера должен быть http(s), получено %q", opts.BaseURL)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		}
	}
	if opts.Limit <= 0 {
		opts.Limit = message.DefaultLimit
	}
	// сервер сравнивает комнату без пробелов по краям
	opts.Room = strings.TrimSpace(opts.Room)

	c := &Client{
		opts:  opts,
		base:  base,
		store: NewStore(opts.Room, opts.Capacity),
	}
	c.state.Store(int32(StateConnecting))
	return c, nil
}

func (c *Client) Store() *Store {
	return c.store
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	logger.Info("Client: Смена состояния", zap.String("state", s.String()))
	if c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

// Run подключается и переподключается до отмены ctx.
// Connecting -> Connected -> (Reconnecting -> Connected)* -> Closed
func (c *Client) Run(ctx context.Context) error {
	defer c.setState(StateClosed)

	b := c.opts.NewBackOff()
	for attempt := 0; ; attempt++ {
		if attempt == 0 {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
		}

		var conn *websocket.Conn
		err := backoff.RetryNotify(func() error {
			var err error
			conn, err = c.connect(ctx)
			return err
		}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
			logger.Warn("Client: Подключение не удалось", zap.Error(err), zap.Duration("retry_in", wait))
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("подключение к серверу: %w", err)
		}

		b.Reset()
		c.setConn(conn)
		c.setState(StateConnected)

		err = c.listen(ctx, conn)
		c.setConn(nil)
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("Client: Соединение потеряно", zap.Error(err))
	}
}

// connect открывает канал, затем загружает кэш: события, пришедшие во время
// загрузки, ждут в сокете и применяются поверх неё
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.hubURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket: %w", err)
	}

	if err := c.Seed(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Client) listen(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		var env event.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}

		if env.Type == event.Error {
			logger.Warn("Client: Сервер отклонил действие", zap.String("request_id", env.RequestID))
		} else if _, err := c.store.Apply(env); err != nil {
			logger.Warn("Client: Событие не применено", zap.String("type", string(env.Type)), zap.Error(err))
		}

		if c.opts.OnEvent != nil {
			c.opts.OnEvent(env)
		}
	}
}

// Seed заменяет кэш свежей выборкой сообщений и задач
func (c *Client) Seed(ctx context.Context) error {
	query := url.Values{}
	if c.opts.Room != "" {
		query.Set("chatId", c.opts.Room)
	}
	query.Set("limit", strconv.Itoa(c.opts.Limit))

	var msgs []*message.Message
	if err := c.getJSON(ctx, "/messages?"+query.Encode(), &msgs); err != nil {
		return fmt.Errorf("загрузка сообщений: %w", err)
	}

	var tasks []*task.Task
	if err := c.getJSON(ctx, "/tasks", &tasks); err != nil {
		return fmt.Errorf("загрузка задач: %w", err)
	}

	c.store.Seed(msgs, tasks)
	logger.Debug("Client: Кэш загружен", zap.Int("messages", len(msgs)), zap.Int("tasks", len(tasks)))
	return nil
}

// Post отправляет действие post-message; результат придёт рассылкой
func (c *Client) Post(user, text string, taskID *int64) (string, error) {
	payload := event.PostMessagePayload{User: user, Text: text, TaskID: taskID}
	if c.opts.Room != "" {
		room := c.opts.Room
		payload.ChatID = &room
	}

	env, err := event.New(event.PostMessage, payload)
	if err != nil {
		return "", err
	}
	env.RequestID = uuid.New().String()

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return "", ErrNotConnected
	}
	if err := c.conn.WriteJSON(env); err != nil {
		return "", fmt.Errorf("отправка post-message: %w", err)
	}
	return env.RequestID, nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn = conn
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: статус %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func (c *Client) hubURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + HubPath
	return u.String()
}
