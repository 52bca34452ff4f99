package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goclipstore/internal/domain/model"
	"github.com/bigkaa/goclipstore/internal/session"
	"github.com/bigkaa/goclipstore/internal/storage/filestore"
	"github.com/bigkaa/goclipstore/internal/storage/recordstore"
)

var downloadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cs_downloads_total",
		Help: "Количество запросов на скачивание по результату",
	},
	[]string{"result"}, // served, pending, not_found
)

// PendingResponse — ответ на запрос скачивания файла, загрузка
// которого ещё идёт.
type PendingResponse struct {
	Found    bool `json:"found"`
	Finished bool `json:"finished"`
}

// DownloadService отдаёт завершённые файлы и клипы по handle.
// Активные сессии распознаются через tracker: такой handle ещё не
// готов к скачиванию, но существует.
type DownloadService struct {
	stores  []*recordstore.Store
	store   *filestore.FileStore
	tracker *session.Tracker
	logger  *slog.Logger
}

// NewDownloadService создаёт сервис скачивания для набора record store.
func NewDownloadService(stores []*recordstore.Store, store *filestore.FileStore, tracker *session.Tracker, logger *slog.Logger) *DownloadService {
	return &DownloadService{
		stores:  stores,
		store:   store,
		tracker: tracker,
		logger:  logger.With("component", "download"),
	}
}

// Resolve ищет запись по handle во всех record store.
func (s *DownloadService) Resolve(handle string) *model.Record {
	for _, st := range s.stores {
		if rec := st.FindByHandle(handle); rec != nil {
			return rec
		}
	}
	return nil
}

// Lookup классифицирует handle для обработчика скачивания:
// активная сессия, готовая запись или ничего.
func (s *DownloadService) Lookup(handle string) (rec *model.Record, pending bool) {
	if _, ok := s.tracker.Get(handle); ok {
		return nil, true
	}
	return s.Resolve(handle), false
}

// Serve отдаёт файл записи как attachment и инкрементирует счётчик
// обращений. Просроченные записи не отдаются: между проходами reaper
// срок проверяется на чтении.
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, rec *model.Record) {
	if rec.IsExpired(time.Now()) {
		downloadsTotal.WithLabelValues("not_found").Inc()
		http.NotFound(w, r)
		return
	}

	f, err := s.store.Open(rec.StoragePath)
	if err != nil {
		downloadsTotal.WithLabelValues("not_found").Inc()
		s.logger.Error("Файл записи отсутствует на диске",
			"handle", rec.Handle, "path", rec.StoragePath, "error", err)
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	name := rec.DisplayName
	if name == "" {
		name = rec.Handle
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

	http.ServeContent(w, r, name, rec.CreatedAt, f)

	if err := s.storeFor(rec).IncrementAccessCount(rec.Handle); err != nil {
		s.logger.Warn("Не удалось обновить счётчик обращений",
			"handle", rec.Handle, "error", err)
	}
	downloadsTotal.WithLabelValues("served").Inc()
	s.logger.Info("Файл отдан", "handle", rec.Handle, "size", rec.Size)
}

// MarkPending учитывает запрос к ещё не завершённой загрузке.
func (s *DownloadService) MarkPending() {
	downloadsTotal.WithLabelValues("pending").Inc()
}

// MarkNotFound учитывает запрос к неизвестному handle.
func (s *DownloadService) MarkNotFound() {
	downloadsTotal.WithLabelValues("not_found").Inc()
}

// storeFor возвращает record store, содержащий запись.
func (s *DownloadService) storeFor(rec *model.Record) *recordstore.Store {
	for _, st := range s.stores {
		if st.FindByHandle(rec.Handle) != nil {
			return st
		}
	}
	// Запись получена из Resolve, store обязан найтись.
	return s.stores[0]
}
