package worker

import (
	"context"
	"fmt"
	"time"

	"chatTracker/internal/logger"
	"chatTracker/internal/models/task"

	"go.uber.org/zap"
)

type TaskLister interface {
	ListTasks(context.Context) ([]*task.Task, error)
}

// Notifier - сторона рассылки: число живых сессий и отправка списка задач
type Notifier interface {
	SessionCount() int
	TasksUpdated([]*task.Task)
}

// ResyncWorker периодически рассылает полный список задач, чтобы сессии,
// пропустившие событие, сошлись с хранилищем
type ResyncWorker struct {
	tasks    TaskLister
	notifier Notifier
	interval time.Duration
}

func NewResyncWorker(tasks TaskLister, notifier Notifier, interval *time.Duration) *ResyncWorker {
	var intervalToSet time.Duration
	if interval == nil || *interval <= 0 {
		intervalToSet = time.Minute
	} else {
		intervalToSet = *interval
	}

	return &ResyncWorker{
		tasks:    tasks,
		notifier: notifier,
		interval: intervalToSet,
	}
}

func (w *ResyncWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logger.Info("Worker: Фоновая синхронизация запущена", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ticker.C:
			if _, err := w.Resync(ctx); err != nil {
				logger.Warn("Worker: Ошибка синхронизации", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Info("Worker: Фоновая синхронизация останавливается")
			return
		}
	}
}

// Resync возвращает true, если рассылка состоялась
func (w *ResyncWorker) Resync(ctx context.Context) (bool, error) {
	sessions := w.notifier.SessionCount()
	if sessions == 0 {
		return false, nil
	}

	start := time.Now()
	tasks, err := w.tasks.ListTasks(ctx)
	if err != nil {
		return false, fmt.Errorf("получение задач: %w", err)
	}

	w.notifier.TasksUpdated(tasks)

	logger.Debug("Worker: Список задач разослан",
		zap.Duration("ms", time.Since(start)),
		zap.Int("tasks", len(tasks)),
		zap.Int("sessions", sessions))
	return true, nil
}
