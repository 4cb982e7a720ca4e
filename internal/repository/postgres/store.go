package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatTracker/internal/config"
	"chatTracker/internal/logger"
	"chatTracker/internal/migrations"
	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"
	repo "chatTracker/internal/repository"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const slowQuery = 100 * time.Millisecond

const messageColumns = `id, "user", text, created_at, task_id, chat_id`
const taskColumns = `id, title, description, status, progress, created_at, updated_at, due_date`

type Storage struct {
	pool       *pgxpool.Pool
	connString string
}

func New(ctx context.Context, cfg config.DatabaseConfig) (*Storage, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		logger.Error("Repository: Ошибка загрузки конфига", err)
		return nil, fmt.Errorf("загрузка конфига: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolConfig.MinConns = cfg.MinConnections
	}
	if cfg.IdleTimeout > 0 {
		poolConfig.MaxConnIdleTime = cfg.IdleTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("Repository: Ошибка создания пула", err)
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	logger.Info("Repository: Успешное создание подключения к PostgreSQL")
	return &Storage{pool: pool, connString: cfg.URL}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
	logger.Info("Repository: Закрытие всех соединений PostgreSQL")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

func (s *Storage) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.Postgres, migrations.PostgresDir)
	if err != nil {
		return nil, fmt.Errorf("источник миграций: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, s.connString)
	if err != nil {
		return nil, fmt.Errorf("инициализация migrate: %w", err)
	}
	return m, nil
}

func (s *Storage) Migrate(ctx context.Context) error {
	logger.Info("Repository: Применение миграций")

	m, err := s.newMigrate()
	if err != nil {
		logger.Error("Repository: Не удалось подготовить миграции", err)
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("Repository: Ошибка применения миграций", err)
		return fmt.Errorf("применение миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Repository: Миграции применены", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func (s *Storage) Down(ctx context.Context) error {
	logger.Info("Repository: Откат миграций")

	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("Repository: Ошибка отката миграций", err)
		return fmt.Errorf("откат миграций: %w", err)
	}
	return nil
}

func (s *Storage) CreateMessage(ctx context.Context, msg *message.Message) error {
	start := time.Now()

	query := `INSERT INTO messages ("user", text, task_id, chat_id)
				VALUES ($1, $2, $3, $4)
				RETURNING id, created_at`

	err := s.insertOrdered(ctx, messagesInsertLock, query, []any{msg.User, msg.Text, msg.TaskID, msg.ChatID}, &msg.ID, &msg.CreatedAt)
	if err != nil {
		logger.Error("Repository: Не удалось добавить сообщение", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("добавление сообщения: %w", mapError(err))
	}

	logSlow("create_message", start)
	return nil
}

func (s *Storage) GetMessage(ctx context.Context, id int64) (*message.Message, error) {
	start := time.Now()

	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить сообщение", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение сообщения: %w", err)
	}

	logSlow("get_message", start)
	return msg, nil
}

// последние N сообщений комнаты, упорядоченные от старых к новым
func (s *Storage) ListMessages(ctx context.Context, filter message.ListFilter) ([]*message.Message, error) {
	start := time.Now()

	limit := filter.Limit
	if limit <= 0 {
		limit = message.DefaultLimit
	}

	query := `SELECT ` + messageColumns + ` FROM (
				SELECT ` + messageColumns + ` FROM messages
				WHERE $1 = '' OR COALESCE(NULLIF(chat_id, ''), $2) = $1
				ORDER BY created_at DESC, id DESC
				LIMIT $3
			) recent
			ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, filter.Room, message.DefaultRoom, limit)
	if err != nil {
		logger.Error("Repository: Не удалось получить сообщения", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение сообщений: %w", err)
	}

	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	logSlow("list_messages", start)
	return msgs, nil
}

func (s *Storage) ListMessagesByTask(ctx context.Context, taskID int64) ([]*message.Message, error) {
	start := time.Now()

	query := `SELECT ` + messageColumns + ` FROM messages
				WHERE task_id = $1
				ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, taskID)
	if err != nil {
		logger.Error("Repository: Не удалось получить сообщения задачи", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение сообщений задачи: %w", err)
	}

	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	logSlow("list_messages_by_task", start)
	return msgs, nil
}

func (s *Storage) UpdateMessage(ctx context.Context, msg *message.Message) error {
	start := time.Now()

	query := `UPDATE messages
				SET text = $1,
				task_id = $2
			WHERE id = $3`

	tag, err := s.pool.Exec(ctx, query, msg.Text, msg.TaskID, msg.ID)
	if err != nil {
		logger.Error("Repository: Не удалось обновить сообщение", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("обновление сообщения: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}

	logSlow("update_message", start)
	return nil
}

func (s *Storage) DeleteMessage(ctx context.Context, id int64) error {
	start := time.Now()

	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		logger.Error("Repository: Не удалось удалить сообщение", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("удаление сообщения: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}

	logSlow("delete_message", start)
	return nil
}

func (s *Storage) CreateTask(ctx context.Context, t *task.Task) error {
	start := time.Now()

	query := `INSERT INTO tasks
				(title, description, status, progress, due_date)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id, created_at`

	err := s.insertOrdered(ctx, tasksInsertLock, query,
		[]any{t.Title, t.Description, t.Status, t.Progress, t.DueDate},
		&t.ID, &t.CreatedAt,
	)
	if err != nil {
		logger.Error("Repository: Не удалось добавить задачу", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("добавление задачи: %w", mapError(err))
	}

	t.UpdatedAt = nil
	logSlow("create_task", start)
	return nil
}

func (s *Storage) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	start := time.Now()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	t, err := scanTask(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить задачу", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задачи: %w", err)
	}

	logSlow("get_task", start)
	return t, nil
}

func (s *Storage) ListTasks(ctx context.Context) ([]*task.Task, error) {
	start := time.Now()

	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	defer rows.Close()

	tasks := []*task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			logger.Warn("Repository: Ошибка сканирования задачи", zap.Error(err))
			return nil, fmt.Errorf("сканирование задачи: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}

	logSlow("list_tasks", start)
	return tasks, nil
}

func (s *Storage) UpdateTask(ctx context.Context, t *task.Task) error {
	start := time.Now()

	query := `UPDATE tasks
			SET title = $1,
				description = $2,
				status = $3,
				progress = $4,
				due_date = $5,
				updated_at = clock_timestamp()
			WHERE id = $6
			RETURNING created_at, updated_at`

	err := s.pool.QueryRow(ctx, query,
		t.Title,
		t.Description,
		t.Status,
		t.Progress,
		t.DueDate,
		t.ID,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось обновить задачу", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("обновление задачи: %w", mapError(err))
	}

	logSlow("update_task", start)
	return nil
}

// DeleteTask в одной транзакции отвязывает сообщения и удаляет задачу.
// Строка задачи блокируется первой, поэтому параллельная привязка получит ошибку внешнего ключа.
func (s *Storage) DeleteTask(ctx context.Context, id int64) ([]*message.Message, error) {
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось начать транзакцию", err)
		return nil, fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked int64
	err = tx.QueryRow(ctx, `SELECT id FROM tasks WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("блокировка задачи: %w", err)
	}

	rows, err := tx.Query(ctx, `UPDATE messages SET task_id = NULL WHERE task_id = $1 RETURNING `+messageColumns, id)
	if err != nil {
		return nil, fmt.Errorf("отвязка сообщений: %w", mapError(err))
	}
	unlinked, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("удаление задачи: %w", mapError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("Repository: Не удалось зафиксировать удаление задачи", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("фиксация транзакции: %w", mapError(err))
	}

	logSlow("delete_task", start)
	return unlinked, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*message.Message, error) {
	msg := &message.Message{}
	err := row.Scan(&msg.ID, &msg.User, &msg.Text, &msg.CreatedAt, &msg.TaskID, &msg.ChatID)
	if err != nil {
		return nil, err
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, nil
}

func scanTask(row rowScanner) (*task.Task, error) {
	t := &task.Task{}
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Progress, &t.CreatedAt, &t.UpdatedAt, &t.DueDate)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func collectMessages(rows pgx.Rows) ([]*message.Message, error) {
	defer rows.Close()

	msgs := []*message.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			logger.Warn("Repository: Ошибка сканирования сообщения", zap.Error(err))
			return nil, fmt.Errorf("сканирование сообщения: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}
	return msgs, nil
}

// нарушения ограничений превращаются в repo.ErrConflict
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503", "23505", "23514":
			return fmt.Errorf("%w: %w", repo.ErrConflict, err)
		}
	}
	return err
}

// ключи pg_advisory_xact_lock для вставок
const messagesInsertLock int64 = 0x63686174_0001
const tasksInsertLock int64 = 0x63686174_0002

// insertOrdered выполняет INSERT ... RETURNING под транзакционной advisory-блокировкой.
// Вставки в таблицу фиксируются по одной, поэтому id и created_at растут вместе.
func (s *Storage) insertOrdered(ctx context.Context, lockKey int64, query string, args []any, dest ...any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("блокировка вставки: %w", err)
	}
	if err := tx.QueryRow(ctx, query, args...).Scan(dest...); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("фиксация транзакции: %w", err)
	}
	return nil
}

func logSlow(op string, start time.Time) {
	if elapsed := time.Since(start); elapsed > slowQuery {
		logger.Warn("Repository: Медленный запрос", zap.String("operation", op), zap.Duration("ms", elapsed))
	}
}
