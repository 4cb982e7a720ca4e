package hub

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"chatTracker/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrSessionClosed = errors.New("сессия закрыта")
var ErrSlowConsumer = errors.New("очередь отправки сессии переполнена")

// Session - одно websocket-подключение. Писать в conn может только writeLoop.
type Session struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(conn *websocket.Conn, buffer int) *Session {
	return &Session{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Enqueue не блокируется: медленный клиент отключается, а не тормозит рассылку
func (s *Session) Enqueue(data []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		s.Close()
		return ErrSlowConsumer
	}
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

type loopConfig struct {
	writeTimeout   time.Duration
	pingInterval   time.Duration
	maxMessageSize int64
}

func (c loopConfig) pongWait() time.Duration {
	return c.pingInterval + c.writeTimeout
}

// readLoop читает кадры до ошибки и отдаёт их в handle
func (s *Session) readLoop(cfg loopConfig, handle func([]byte)) {
	defer s.Close()

	s.conn.SetReadLimit(cfg.maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(cfg.pongWait()))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(cfg.pongWait()))
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Hub: Сессия оборвалась", zap.String("session_id", s.id), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}

func (s *Session) writeLoop(cfg loopConfig) {
	ticker := time.NewTicker(cfg.pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data := <-s.send:
			if err := s.write(cfg, websocket.TextMessage, data); err != nil {
				logger.Debug("Hub: Ошибка отправки", zap.String("session_id", s.id), zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.write(cfg, websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			_ = s.write(cfg, websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Session) write(cfg loopConfig, mt int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(cfg.writeTimeout)); err != nil {
		return fmt.Errorf("дедлайн записи: %w", err)
	}
	return s.conn.WriteMessage(mt, data)
}
