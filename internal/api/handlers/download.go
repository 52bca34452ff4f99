// download.go — публичный endpoint скачивания GET /f?u=<handle>.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goclipstore/internal/api/errors"
	"github.com/bigkaa/goclipstore/internal/service"
)

// DownloadHandler отдаёт файлы и клипы по handle.
type DownloadHandler struct {
	svc    *service.DownloadService
	logger *slog.Logger
}

// NewDownloadHandler создаёт обработчик скачивания.
func NewDownloadHandler(svc *service.DownloadService, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "download_handler")),
	}
}

// Download обрабатывает GET /f?u=<handle>.
// Три исхода: загрузка ещё идёт ({"found":true,"finished":false}),
// запись готова (байты файла как attachment), handle неизвестен (404).
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("u")
	if handle == "" {
		h.svc.MarkNotFound()
		apierrors.NotFound(w, "query parameter u is required")
		return
	}

	rec, pending := h.svc.Lookup(handle)
	if pending {
		h.svc.MarkPending()
		writeJSON(w, http.StatusOK, service.PendingResponse{Found: true, Finished: false})
		return
	}
	if rec == nil {
		h.svc.MarkNotFound()
		apierrors.NotFound(w, "")
		return
	}

	h.svc.Serve(w, r, rec)
}
