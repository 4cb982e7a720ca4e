package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chatTracker/internal/logger"
	"chatTracker/internal/migrations"
	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"
	repo "chatTracker/internal/repository"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const messageColumns = `id, "user", text, created_at, task_id, chat_id`
const taskColumns = `id, title, description, status, progress, created_at, updated_at, due_date`

// Storage - хранилище на встроенной SQLite, для разработки и одиночного запуска
type Storage struct {
	db *sql.DB

	// вставки идут под writeMu, чтобы порядок id совпадал с порядком created_at
	writeMu       sync.Mutex
	lastCreatedAt time.Time
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open открывает базу по пути path (":memory:" для временной базы)
func Open(path string) (*Storage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("создание каталога базы: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("открытие базы: %w", err)
	}

	// SQLite лучше всего работает с одним писателем
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("включение WAL: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("включение внешних ключей: %w", err)
	}

	logger.Info("Repository: Открыта база SQLite", zap.String("path", path))
	return &Storage{db: db}, nil
}

func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migrations.SQLiteSchema); err != nil {
		logger.Error("Repository: Ошибка применения схемы", err)
		return fmt.Errorf("применение схемы: %w", err)
	}
	return nil
}

func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		logger.Error("Repository: Ошибка закрытия SQLite", err)
		return
	}
	logger.Info("Repository: Закрытие базы SQLite")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

// now не убывает между вставками; вызывается под writeMu
func (s *Storage) now() time.Time {
	now := time.Now().UTC()
	if now.Before(s.lastCreatedAt) {
		now = s.lastCreatedAt
	}
	s.lastCreatedAt = now
	return now
}

func (s *Storage) CreateMessage(ctx context.Context, msg *message.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	createdAt := s.now()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages ("user", text, created_at, task_id, chat_id) VALUES (?, ?, ?, ?, ?)`,
		msg.User, msg.Text, createdAt, msg.TaskID, msg.ChatID,
	)
	if err != nil {
		logger.Error("Repository: Не удалось добавить сообщение", err)
		return fmt.Errorf("добавление сообщения: %w", mapError(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("получение id сообщения: %w", err)
	}

	msg.ID = id
	msg.CreatedAt = createdAt
	return nil
}

func (s *Storage) GetMessage(ctx context.Context, id int64) (*message.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить сообщение", err)
		return nil, fmt.Errorf("получение сообщения: %w", err)
	}
	return msg, nil
}

func (s *Storage) ListMessages(ctx context.Context, filter message.ListFilter) ([]*message.Message, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = message.DefaultLimit
	}

	query := `SELECT ` + messageColumns + ` FROM (
				SELECT ` + messageColumns + ` FROM messages
				WHERE ?1 = '' OR COALESCE(NULLIF(chat_id, ''), ?2) = ?1
				ORDER BY created_at DESC, id DESC
				LIMIT ?3
			)
			ORDER BY created_at ASC, id ASC`

	return queryMessages(ctx, s.db, query, filter.Room, message.DefaultRoom, limit)
}

func (s *Storage) ListMessagesByTask(ctx context.Context, taskID int64) ([]*message.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE task_id = ? ORDER BY created_at ASC, id ASC`
	return queryMessages(ctx, s.db, query, taskID)
}

func (s *Storage) UpdateMessage(ctx context.Context, msg *message.Message) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET text = ?, task_id = ? WHERE id = ?`, msg.Text, msg.TaskID, msg.ID)
	if err != nil {
		logger.Error("Repository: Не удалось обновить сообщение", err)
		return fmt.Errorf("обновление сообщения: %w", mapError(err))
	}
	return requireAffected(res)
}

func (s *Storage) DeleteMessage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		logger.Error("Repository: Не удалось удалить сообщение", err)
		return fmt.Errorf("удаление сообщения: %w", mapError(err))
	}
	return requireAffected(res)
}

func (s *Storage) CreateTask(ctx context.Context, t *task.Task) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	createdAt := s.now()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (title, description, status, progress, created_at, due_date) VALUES (?, ?, ?, ?, ?, ?)`,
		t.Title, t.Description, string(t.Status), t.Progress, createdAt, t.DueDate,
	)
	if err != nil {
		logger.Error("Repository: Не удалось добавить задачу", err)
		return fmt.Errorf("добавление задачи: %w", mapError(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("получение id задачи: %w", err)
	}

	t.ID = id
	t.CreatedAt = createdAt
	t.UpdatedAt = nil
	return nil
}

func (s *Storage) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	return getTask(ctx, s.db, id)
}

func (s *Storage) ListTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err)
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	defer rows.Close()

	tasks := []*task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("сканирование задачи: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}
	return tasks, nil
}

func (s *Storage) UpdateTask(ctx context.Context, t *task.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback()

	existed, err := getTask(ctx, tx, t.ID)
	if err != nil {
		return err
	}

	updatedAt := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, status = ?, progress = ?, due_date = ?, updated_at = ? WHERE id = ?`,
		t.Title, t.Description, string(t.Status), t.Progress, t.DueDate, updatedAt, t.ID,
	)
	if err != nil {
		logger.Error("Repository: Не удалось обновить задачу", err)
		return fmt.Errorf("обновление задачи: %w", mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("фиксация транзакции: %w", err)
	}

	t.CreatedAt = existed.CreatedAt
	t.UpdatedAt = &updatedAt
	return nil
}

func (s *Storage) DeleteTask(ctx context.Context, id int64) ([]*message.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback()

	if _, err := getTask(ctx, tx, id); err != nil {
		return nil, err
	}

	unlinked, err := queryMessages(ctx, tx, `SELECT `+messageColumns+` FROM messages WHERE task_id = ? ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE messages SET task_id = NULL WHERE task_id = ?`, id); err != nil {
		return nil, fmt.Errorf("отвязка сообщений: %w", mapError(err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("удаление задачи: %w", mapError(err))
	}

	if err := tx.Commit(); err != nil {
		logger.Error("Repository: Не удалось зафиксировать удаление задачи", err)
		return nil, fmt.Errorf("фиксация транзакции: %w", err)
	}

	for _, msg := range unlinked {
		msg.TaskID = nil
	}
	return unlinked, nil
}

func getTask(ctx context.Context, exec executor, id int64) (*task.Task, error) {
	t, err := scanTask(exec.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить задачу", err)
		return nil, fmt.Errorf("получение задачи: %w", err)
	}
	return t, nil
}

func queryMessages(ctx context.Context, exec executor, query string, args ...any) ([]*message.Message, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить сообщения", err)
		return nil, fmt.Errorf("получение сообщений: %w", err)
	}
	defer rows.Close()

	msgs := []*message.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("сканирование сообщения: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}
	return msgs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*message.Message, error) {
	msg := &message.Message{}
	if err := row.Scan(&msg.ID, &msg.User, &msg.Text, &msg.CreatedAt, &msg.TaskID, &msg.ChatID); err != nil {
		return nil, err
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, nil
}

func scanTask(row rowScanner) (*task.Task, error) {
	t := &task.Task{}
	var status string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &t.Progress, &t.CreatedAt, &t.UpdatedAt, &t.DueDate); err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("количество изменённых строк: %w", err)
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func mapError(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %w", repo.ErrConflict, err)
	}
	return err
}
