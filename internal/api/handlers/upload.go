// upload.go — обработчики жизненного цикла загрузки:
// заявка, приём байтов, статус сессии.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goclipstore/internal/api/errors"
	"github.com/bigkaa/goclipstore/internal/service"
)

// UploadHandler реализует endpoints /api/upload/*.
type UploadHandler struct {
	svc         *service.UploadService
	maxFileSize int64
	logger      *slog.Logger
}

// NewUploadHandler создаёт обработчик загрузок.
func NewUploadHandler(svc *service.UploadService, maxFileSize int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		svc:         svc,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "upload_handler")),
	}
}

// RequestUpload обрабатывает POST /api/upload/request.
// Тело: {"file_name", "file_size", "file_hash", "expires_at"}.
// Ответ: {"approved", "upload_id"}.
func (h *UploadHandler) RequestUpload(w http.ResponseWriter, r *http.Request) {
	var req service.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.Write(w, http.StatusBadRequest, apierrors.KindInvalidHandle, "", "malformed request body")
		return
	}

	ticket, svcErr := h.svc.RequestUpload(req)
	if svcErr != nil {
		writeServiceError(w, svcErr)
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

// StreamUpload обрабатывает PUT /api/upload/{id}.
// Тело запроса — сырые байты файла одним потоком.
func (h *UploadHandler) StreamUpload(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "id")

	// Страховка от превышения заявленного лимита на уровне транспорта.
	body := http.MaxBytesReader(w, r.Body, h.maxFileSize)
	defer body.Close()

	result, svcErr := h.svc.StreamUpload(handle, body)
	if svcErr != nil {
		writeServiceError(w, svcErr)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Status обрабатывает GET /api/upload_status/{id}.
// Ответ: {"state", "total_bytes", "uploaded_bytes"}.
func (h *UploadHandler) Status(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "id")

	sess, svcErr := h.svc.Status(handle)
	if svcErr != nil {
		writeServiceError(w, svcErr)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// writeJSON сериализует ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError транслирует сервисную ошибку в JSON-ответ протокола.
func writeServiceError(w http.ResponseWriter, e *service.Error) {
	apierrors.Write(w, e.StatusCode, e.Kind, e.Handle, e.Message)
}
