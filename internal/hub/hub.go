// Package hub - канал реального времени: реестр сессий, рассылка событий
// и действие post-message.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"chatTracker/internal/config"
	"chatTracker/internal/logger"
	"chatTracker/internal/models/event"
	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"
	"chatTracker/internal/service"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const Path = "/hubs/chat"

// Poster сохраняет сообщение и сам рассылает его через Hub
type Poster interface {
	PostMessage(context.Context, event.PostMessagePayload) (*message.Message, error)
}

type Hub struct {
	registry *Registry
	cfg      config.HubConfig
}

// New подставляет значения по умолчанию вместо нулевых
func New(cfg config.HubConfig) *Hub {
	defaults := config.Default().Hub
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaults.SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	return &Hub{
		registry: NewRegistry(),
		cfg:      cfg,
	}
}

var _ service.Broadcaster = (*Hub)(nil)

func (h *Hub) SessionCount() int {
	return h.registry.Count()
}

func (h *Hub) MessageReceived(msg *message.Message) {
	h.publish(event.NewMessageReceived(msg))
}

func (h *Hub) MessageUpdated(msg *message.Message) {
	h.publish(event.NewMessageUpdated(msg))
}

func (h *Hub) MessageDeleted(id int64) {
	h.publish(event.NewMessageDeleted(id))
}

func (h *Hub) TasksUpdated(tasks []*task.Task) {
	h.publish(event.NewTasksUpdated(tasks))
}

func (h *Hub) publish(env event.Envelope, err error) {
	if err != nil {
		logger.Error("Hub: Не удалось собрать событие", err)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		logger.Error("Hub: Не удалось сериализовать событие", err, zap.String("type", string(env.Type)))
		return
	}
	h.Broadcast(data)
}

// Broadcast отправляет кадр каждой живой сессии. Ошибка одной сессии
// не влияет на остальные.
func (h *Hub) Broadcast(data []byte) {
	sessions := h.registry.Snapshot()
	delivered := 0
	for _, s := range sessions {
		if err := s.Enqueue(data); err != nil {
			if errors.Is(err, ErrSlowConsumer) {
				logger.Warn("Hub: Медленный клиент отключён", zap.String("session_id", s.ID()))
			}
			continue
		}
		delivered++
	}
	logger.Debug("Hub: Событие разослано",
		zap.Int("sessions", len(sessions)),
		zap.Int("delivered", delivered))
}

// Close закрывает все сессии при остановке сервера
func (h *Hub) Close() {
	for _, s := range h.registry.Snapshot() {
		s.Close()
	}
}

func (h *Hub) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logger.Warn("Hub: Origin отклонён", zap.String("origin", origin))
	return false
}

// Handler возвращает websocket-эндпоинт; post-message уходит в poster
func (h *Hub) Handler(poster Poster) http.Handler {
	upgrader := h.upgrader()
	loop := loopConfig{
		writeTimeout:   h.cfg.WriteTimeout,
		pingInterval:   h.cfg.PingInterval,
		maxMessageSize: h.cfg.MaxMessageSize,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Hub: Апгрейд не выполнен", zap.Error(err), zap.String("client_ip", r.RemoteAddr))
			return
		}

		s := newSession(conn, h.cfg.SendBuffer)
		h.registry.Register(s)
		logger.Info("Hub: Сессия подключена",
			zap.String("session_id", s.ID()),
			zap.String("client_ip", r.RemoteAddr),
			zap.Int("sessions", h.registry.Count()))

		ctx := context.WithoutCancel(r.Context())

		var wg conc.WaitGroup
		wg.Go(func() { s.writeLoop(loop) })
		wg.Go(func() {
			s.readLoop(loop, func(data []byte) { h.handleInbound(ctx, s, poster, data) })
		})
		wg.Wait()

		h.registry.Unregister(s)
		logger.Info("Hub: Сессия отключена",
			zap.String("session_id", s.ID()),
			zap.Int("sessions", h.registry.Count()))
	})
}

func (h *Hub) handleInbound(ctx context.Context, s *Session, poster Poster, data []byte) {
	var env event.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.reply(s, "", service.CodeValidation, "неверный формат события: "+err.Error())
		return
	}

	switch env.Type {
	case event.PostMessage:
		payload, err := event.Decode[event.PostMessagePayload](env)
		if err != nil {
			h.reply(s, env.RequestID, service.CodeValidation, err.Error())
			return
		}

		// отправитель узнает id и время из рассылки, прямого ответа нет
		if _, err := poster.PostMessage(ctx, payload); err != nil {
			code, msg := service.CodeInternal, "не удалось сохранить сообщение"
			var busErr *service.BusinessError
			if errors.As(err, &busErr) {
				code, msg = busErr.Code, busErr.Message
			}
			logger.Warn("Hub: post-message отклонён",
				zap.String("session_id", s.ID()),
				zap.String("request_id", env.RequestID),
				zap.Error(err))
			h.reply(s, env.RequestID, code, msg)
		}
	default:
		h.reply(s, env.RequestID, service.CodeValidation, "неизвестное действие "+string(env.Type))
	}
}

// reply отправляет ошибку только вызвавшей сессии
func (h *Hub) reply(s *Session, requestID, code, msg string) {
	env, err := event.NewError(requestID, code, msg)
	if err != nil {
		logger.Error("Hub: Не удалось собрать ошибку", err)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		logger.Error("Hub: Не удалось сериализовать ошибку", err)
		return
	}
	if err := s.Enqueue(data); err != nil {
		logger.Debug("Hub: Ошибка не доставлена", zap.String("session_id", s.ID()), zap.Error(err))
	}
}
