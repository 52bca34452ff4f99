package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goclipstore/internal/api/middleware"
	"github.com/bigkaa/goclipstore/internal/session"
	"github.com/bigkaa/goclipstore/internal/storage/filestore"
	"github.com/bigkaa/goclipstore/internal/storage/recordstore"
)

// chunkSize — размер блока чтения тела загрузки.
const chunkSize = 8192

var uploadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cs_uploads_total",
		Help: "Общее количество загрузок по результату",
	},
	[]string{"result"}, // approved, deduplicated, rejected, completed, failed, cancelled
)

// UploadRequest — параметры заявки на загрузку.
type UploadRequest struct {
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
	FileHash  string `json:"file_hash"`
	ExpiresAt int64  `json:"expires_at"`
}

// UploadTicket — результат обработки заявки.
// При дедупликации Approved=false и Handle указывает на существующую запись.
type UploadTicket struct {
	Approved bool   `json:"approved"`
	Handle   string `json:"upload_id"`
}

// UploadResult — итог завершённой загрузки.
type UploadResult struct {
	Handle string `json:"uuid"`
	Hash   string `json:"hash"`
	Size   int64  `json:"size"`
}

// UploadService — координатор загрузок: заявка, приём байтов,
// финализация. Состояние сессий хранится в tracker, байты — в store,
// метаданные — в files.
type UploadService struct {
	files       *recordstore.Store
	store       *filestore.FileStore
	tracker     *session.Tracker
	cleaner     *Cleaner
	maxFileSize int64
	logger      *slog.Logger
}

// NewUploadService создаёт координатор загрузок.
func NewUploadService(files *recordstore.Store, store *filestore.FileStore, tracker *session.Tracker, cleaner *Cleaner, maxFileSize int64, logger *slog.Logger) *UploadService {
	return &UploadService{
		files:       files,
		store:       store,
		tracker:     tracker,
		cleaner:     cleaner,
		maxFileSize: maxFileSize,
		logger:      logger.With("component", "upload"),
	}
}

// RequestUpload обрабатывает заявку на загрузку.
// Последовательность проверок: лимит размера, дедупликация по
// заявленному хешу, создание записи и сессии.
func (s *UploadService) RequestUpload(req UploadRequest) (*UploadTicket, *Error) {
	if req.FileSize > s.maxFileSize {
		uploadsTotal.WithLabelValues("rejected").Inc()
		s.logger.Info("Заявка отклонена: файл слишком большой",
			"file_name", req.FileName, "file_size", req.FileSize, "limit", s.maxFileSize)
		return nil, fileTooLargeErr("file size exceeds the configured limit")
	}

	// Дедупликация: заявленному хешу доверяем без проверки.
	// Сигнальное значение "-" и пустая строка никогда не дают совпадения.
	if existing := s.files.FindByHash(req.FileHash); existing != nil {
		uploadsTotal.WithLabelValues("deduplicated").Inc()
		s.logger.Info("Заявка дедуплицирована",
			"file_name", req.FileName, "hash", req.FileHash, "handle", existing.Handle)
		return &UploadTicket{Approved: false, Handle: existing.Handle}, nil
	}

	rec, err := s.files.Create(req.FileName, req.FileSize, req.ExpiresAt)
	if err != nil {
		uploadsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("Не удалось создать запись для загрузки",
			"file_name", req.FileName, "error", err)
		return nil, serverIssueErr("", "failed to create upload record")
	}

	if err := s.tracker.Begin(rec.Handle, req.FileSize); err != nil {
		// Коллизия UUID за время жизни процесса практически исключена,
		// но запись уже создана и подлежит очистке.
		s.cleaner.Enqueue(rec.Handle)
		uploadsTotal.WithLabelValues("failed").Inc()
		return nil, serverIssueErr(rec.Handle, "failed to register upload session")
	}

	uploadsTotal.WithLabelValues("approved").Inc()
	middleware.ActiveSessions.Set(float64(s.tracker.Len()))
	s.logger.Info("Заявка одобрена",
		"handle", rec.Handle, "file_name", req.FileName, "file_size", req.FileSize)
	return &UploadTicket{Approved: true, Handle: rec.Handle}, nil
}

// StreamUpload принимает байты загрузки по handle, считает SHA-256
// потоково и финализирует запись. Каждая сессия принимает байты не
// более одного раза: повторный вызов для активной сессии отклоняется
// без побочных эффектов.
func (s *UploadService) StreamUpload(handle string, body io.Reader) (*UploadResult, *Error) {
	if _, ok := s.tracker.Get(handle); !ok {
		// Сессии нет вовсе: недействительный handle. Возможные
		// осиротевшие следы убираются очисткой.
		s.cleaner.Enqueue(handle)
		uploadsTotal.WithLabelValues("failed").Inc()
		return nil, invalidHandleErr(handle)
	}

	if !s.tracker.TryStart(handle) {
		// Сессия существует, но уже принимает байты. Чужую загрузку
		// не трогаем: никакой очистки.
		uploadsTotal.WithLabelValues("failed").Inc()
		return nil, alreadyInProgressErr(handle)
	}

	rec := s.files.FindByHandle(handle)
	if rec == nil {
		s.fail(handle, session.StateError)
		return nil, serverIssueErr(handle, "upload record missing")
	}

	f, err := s.store.Create(rec.StoragePath)
	if err != nil {
		s.logger.Error("Не удалось создать файл для загрузки",
			"handle", handle, "error", err)
		s.fail(handle, session.StateError)
		return nil, serverIssueErr(handle, "failed to create file")
	}

	hasher := sha256.New()
	buf := make([]byte, chunkSize)
	var written int64

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				f.Close()
				s.logger.Error("Ошибка записи на диск",
					"handle", handle, "written", written, "error", writeErr)
				s.fail(handle, session.StateError)
				return nil, serverIssueErr(handle, "failed to write file")
			}
			hasher.Write(buf[:n])
			written += int64(n)
			s.tracker.AddProgress(handle, int64(n))
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			// Обрыв соединения или тело оборвано клиентом.
			f.Close()
			s.logger.Warn("Загрузка прервана клиентом",
				"handle", handle, "written", written, "error", readErr)
			s.fail(handle, session.StateCancelled)
			uploadsTotal.WithLabelValues("cancelled").Inc()
			return nil, uploadCancelledErr(handle, "upload stream interrupted")
		}
	}

	s.tracker.SetState(handle, session.StateFinishing)

	if err := f.Sync(); err != nil {
		f.Close()
		s.logger.Error("Ошибка fsync", "handle", handle, "error", err)
		s.fail(handle, session.StateError)
		return nil, serverIssueErr(handle, "failed to sync file")
	}
	if err := f.Close(); err != nil {
		s.logger.Error("Ошибка закрытия файла", "handle", handle, "error", err)
		s.fail(handle, session.StateError)
		return nil, serverIssueErr(handle, "failed to close file")
	}

	realHash := hex.EncodeToString(hasher.Sum(nil))

	// Финализация — ровно одна попытка: сессия удаляется в любом случае.
	finErr := s.files.Finalize(handle, realHash, written)
	s.tracker.Remove(handle)
	if finErr != nil {
		s.logger.Error("Не удалось финализировать запись",
			"handle", handle, "error", finErr)
		s.cleaner.Enqueue(handle)
		uploadsTotal.WithLabelValues("failed").Inc()
		return nil, serverIssueErr(handle, "failed to finalize upload")
	}

	uploadsTotal.WithLabelValues("completed").Inc()
	middleware.ActiveSessions.Set(float64(s.tracker.Len()))
	middleware.RecordsTotal.WithLabelValues(s.files.Kind()).Set(float64(s.files.Count()))
	s.logger.Info("Загрузка завершена",
		"handle", handle, "size", written, "hash", realHash)
	return &UploadResult{Handle: handle, Hash: realHash, Size: written}, nil
}

// Status возвращает состояние активной сессии загрузки.
func (s *UploadService) Status(handle string) (*session.Session, *Error) {
	sess, ok := s.tracker.Get(handle)
	if !ok {
		return nil, notFoundErr(handle)
	}
	return &sess, nil
}

// fail переводит сессию в конечное состояние ошибки и ставит задачу
// очистки. Сессию удалит очистка, здесь её состояние лишь фиксируется
// для читателей статуса до момента удаления.
func (s *UploadService) fail(handle string, state session.State) {
	s.tracker.SetState(handle, state)
	s.cleaner.Enqueue(handle)
	if state == session.StateError {
		uploadsTotal.WithLabelValues("failed").Inc()
	}
}
