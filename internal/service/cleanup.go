package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goclipstore/internal/api/middleware"
	"github.com/bigkaa/goclipstore/internal/session"
	"github.com/bigkaa/goclipstore/internal/storage/filestore"
	"github.com/bigkaa/goclipstore/internal/storage/recordstore"
)

// queueSize — ёмкость очереди задач очистки. При переполнении задача
// выполняется синхронно в вызывающей горутине.
const queueSize = 64

var (
	cleanupTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cs_cleanup_tasks_total",
			Help: "Общее количество задач очистки по способу выполнения",
		},
		[]string{"mode"}, // queued, inline
	)

	cleanupErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cs_cleanup_errors_total",
			Help: "Количество ошибок при удалении файлов в задачах очистки",
		},
	)
)

// Cleaner — фоновый обработчик очистки следов неудачных загрузок.
// Удаляет сессию, файл на диске и строку record store по handle.
// Все ошибки логируются и не прерывают обработку очереди.
type Cleaner struct {
	files   *recordstore.Store
	store   *filestore.FileStore
	tracker *session.Tracker
	logger  *slog.Logger

	tasks chan string
	wg    sync.WaitGroup
	stop  chan struct{}
}

// NewCleaner создаёт обработчик очистки.
func NewCleaner(files *recordstore.Store, store *filestore.FileStore, tracker *session.Tracker, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		files:   files,
		store:   store,
		tracker: tracker,
		logger:  logger.With("component", "cleaner"),
		tasks:   make(chan string, queueSize),
		stop:    make(chan struct{}),
	}
}

// Start запускает воркер очереди. Воркер завершается при отмене
// контекста или вызове Stop, предварительно выработав очередь.
func (c *Cleaner) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
	c.logger.Info("Воркер очистки запущен", "queue_size", queueSize)
}

// Stop останавливает воркер и дожидается его завершения.
func (c *Cleaner) Stop() {
	close(c.stop)
	c.wg.Wait()
	c.logger.Info("Воркер очистки остановлен")
}

// Enqueue ставит задачу очистки в очередь. Никогда не блокирует
// вызывающего: при заполненной очереди выполняет очистку синхронно.
func (c *Cleaner) Enqueue(handle string) {
	select {
	case c.tasks <- handle:
		cleanupTasksTotal.WithLabelValues("queued").Inc()
	default:
		cleanupTasksTotal.WithLabelValues("inline").Inc()
		c.logger.Warn("Очередь очистки заполнена, выполняем синхронно", "handle", handle)
		c.cleanup(handle)
	}
}

// Pending возвращает текущее количество задач в очереди.
func (c *Cleaner) Pending() int {
	return len(c.tasks)
}

func (c *Cleaner) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case handle := <-c.tasks:
			c.cleanup(handle)
		case <-ctx.Done():
			c.drain()
			return
		case <-c.stop:
			c.drain()
			return
		}
	}
}

// drain дорабатывает оставшиеся задачи перед завершением воркера.
func (c *Cleaner) drain() {
	for {
		select {
		case handle := <-c.tasks:
			c.cleanup(handle)
		default:
			return
		}
	}
}

// cleanup удаляет все следы загрузки: сессию, файл, строку метаданных.
// Порядок важен: сначала сессия, чтобы handle перестал резолвиться,
// затем байты, затем метаданные.
func (c *Cleaner) cleanup(handle string) {
	c.tracker.Remove(handle)
	middleware.ActiveSessions.Set(float64(c.tracker.Len()))

	rec := c.files.FindByHandle(handle)
	if rec != nil {
		if err := c.store.Delete(rec.StoragePath); err != nil {
			cleanupErrorsTotal.Inc()
			c.logger.Error("Не удалось удалить файл при очистке",
				"handle", handle, "path", rec.StoragePath, "error", err)
		}
	}

	if err := c.files.Remove(handle); err != nil {
		cleanupErrorsTotal.Inc()
		c.logger.Error("Не удалось удалить строку метаданных при очистке",
			"handle", handle, "error", err)
	}

	c.logger.Debug("Очистка выполнена", "handle", handle)
}
