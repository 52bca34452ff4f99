// register.go — регистрация готовых клипов POST /api/clips/register.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goclipstore/internal/api/errors"
	"github.com/bigkaa/goclipstore/internal/service"
)

// RegisterHandler принимает регистрации клипов от внешнего процесса нарезки.
type RegisterHandler struct {
	svc    *service.RegisterService
	logger *slog.Logger
}

// NewRegisterHandler создаёт обработчик регистрации клипов.
func NewRegisterHandler(svc *service.RegisterService, logger *slog.Logger) *RegisterHandler {
	return &RegisterHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "register_handler")),
	}
}

// RegisterClip обрабатывает POST /api/clips/register.
// Тело: {"source_id", "name", "quality", "format", "path", "expires_at"}.
// Ответ: полная запись клипа со свежим handle.
func (h *RegisterHandler) RegisterClip(w http.ResponseWriter, r *http.Request) {
	var req service.ClipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.Write(w, http.StatusBadRequest, apierrors.KindInvalidHandle, "", "malformed request body")
		return
	}

	rec, svcErr := h.svc.RegisterClip(req)
	if svcErr != nil {
		writeServiceError(w, svcErr)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}
