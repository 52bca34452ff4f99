package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goclipstore/internal/api/middleware"
	"github.com/bigkaa/goclipstore/internal/session"
	"github.com/bigkaa/goclipstore/internal/storage/filestore"
	"github.com/bigkaa/goclipstore/internal/storage/recordstore"
)

// orphanNameLimit — максимальная длина имени файла, который reaper
// вправе считать осиротевшим. Более длинные имена принадлежат чужим
// процессам и не трогаются.
const orphanNameLimit = 54

var (
	reaperRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cs_reaper_runs_total",
			Help: "Количество запусков reaper по результату",
		},
		[]string{"result"}, // completed, skipped
	)

	reaperExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cs_reaper_expired_removed_total",
			Help: "Количество удалённых просроченных записей",
		},
	)

	reaperOrphansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cs_reaper_orphans_removed_total",
			Help: "Количество удалённых осиротевших файлов",
		},
	)

	reaperDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cs_reaper_duration_seconds",
			Help:    "Длительность прохода reaper",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// SweepResult — итог одного прохода reaper.
type SweepResult struct {
	ExpiredRemoved int   `json:"expired_removed"`
	OrphansRemoved int   `json:"orphans_removed"`
	Errors         int   `json:"errors"`
	DurationMs     int64 `json:"duration_ms"`
}

// Reaper — фоновая служба очистки: удаляет просроченные записи
// во всех record store и осиротевшие файлы в директории данных.
// Проходы сериализованы мьютексом: тикер и ручной запуск через
// maintenance endpoint не пересекаются.
type Reaper struct {
	stores   []*recordstore.Store
	files    *filestore.FileStore
	tracker  *session.Tracker
	interval time.Duration
	logger   *slog.Logger

	runMu  sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewReaper создаёт службу очистки для набора record store.
func NewReaper(stores []*recordstore.Store, files *filestore.FileStore, tracker *session.Tracker, interval time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		stores:   stores,
		files:    files,
		tracker:  tracker,
		interval: interval,
		logger:   logger.With("component", "reaper"),
	}
}

// Start запускает периодические проходы.
func (r *Reaper) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.run(ctx)
	r.logger.Info("Reaper запущен", "interval", r.interval)
}

// Stop останавливает службу и дожидается завершения текущего прохода.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("Reaper остановлен")
}

func (r *Reaper) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce выполняет один проход очистки. Если проход уже идёт,
// возвращает skipped=true и ничего не делает.
func (r *Reaper) RunOnce(now time.Time) (*SweepResult, bool) {
	if !r.runMu.TryLock() {
		reaperRunsTotal.WithLabelValues("skipped").Inc()
		r.logger.Debug("Проход reaper пропущен: предыдущий ещё выполняется")
		return nil, true
	}
	defer r.runMu.Unlock()

	start := time.Now()
	res := &SweepResult{}

	r.sweepExpired(now, res)
	r.sweepOrphans(res)

	res.DurationMs = time.Since(start).Milliseconds()
	reaperDuration.Observe(time.Since(start).Seconds())
	reaperRunsTotal.WithLabelValues("completed").Inc()
	for _, store := range r.stores {
		middleware.RecordsTotal.WithLabelValues(store.Kind()).Set(float64(store.Count()))
	}
	middleware.ActiveSessions.Set(float64(r.tracker.Len()))

	r.logger.Info("Проход reaper завершён",
		"expired_removed", res.ExpiredRemoved,
		"orphans_removed", res.OrphansRemoved,
		"errors", res.Errors,
		"duration_ms", res.DurationMs)
	return res, false
}

// sweepExpired удаляет просроченные записи: сначала файл на диске,
// затем строку метаданных. Заброшенные сессии таких записей тоже
// снимаются с учёта. Ошибки логируются, проход продолжается.
func (r *Reaper) sweepExpired(now time.Time, res *SweepResult) {
	for _, store := range r.stores {
		for _, rec := range store.ListExpired(now) {
			r.tracker.Remove(rec.Handle)
			if err := r.files.Delete(rec.StoragePath); err != nil {
				res.Errors++
				r.logger.Error("Не удалось удалить файл просроченной записи",
					"kind", store.Kind(), "handle", rec.Handle, "path", rec.StoragePath, "error", err)
				continue
			}
			if err := store.Remove(rec.Handle); err != nil {
				res.Errors++
				r.logger.Error("Не удалось удалить просроченную запись",
					"kind", store.Kind(), "handle", rec.Handle, "error", err)
				continue
			}
			res.ExpiredRemoved++
			reaperExpiredTotal.Inc()
			r.logger.Debug("Просроченная запись удалена",
				"kind", store.Kind(), "handle", rec.Handle)
		}
	}
}

// sweepOrphans удаляет файлы в директории данных, на которые не
// ссылается ни одна запись. Пропускаются служебные имена и имена
// длиннее orphanNameLimit.
func (r *Reaper) sweepOrphans(res *SweepResult) {
	names, err := r.files.ListNames()
	if err != nil {
		res.Errors++
		r.logger.Error("Не удалось получить список файлов данных", "error", err)
		return
	}

	// В множестве хранятся базовые имена: путь клипа может
	// содержать каталог, а листинг данных отдаёт только имена.
	referenced := make(map[string]struct{})
	for _, store := range r.stores {
		for _, p := range store.ListAllPaths() {
			referenced[filepath.Base(p)] = struct{}{}
		}
	}

	for _, name := range names {
		if len(name) > orphanNameLimit {
			continue
		}
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
			continue
		}
		if _, ok := referenced[name]; ok {
			continue
		}
		if err := r.files.Delete(name); err != nil {
			res.Errors++
			r.logger.Error("Не удалось удалить осиротевший файл", "name", name, "error", err)
			continue
		}
		res.OrphansRemoved++
		reaperOrphansTotal.Inc()
		r.logger.Info("Осиротевший файл удалён", "name", name)
	}
}
