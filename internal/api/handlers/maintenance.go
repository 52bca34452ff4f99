// maintenance.go — обработчик POST /api/maintenance/sweep.
// Запускает проход reaper вручную вне расписания тикера.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/bigkaa/goclipstore/internal/api/errors"
	"github.com/bigkaa/goclipstore/internal/service"
)

// SweepRunner — интерфейс запуска прохода очистки.
// Позволяет тестировать handler без полного Reaper.
type SweepRunner interface {
	// RunOnce выполняет один проход. Возвращает результат и
	// флаг "проход уже выполняется".
	RunOnce(now time.Time) (*service.SweepResult, bool)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	reaper SweepRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(reaper SweepRunner) *MaintenanceHandler {
	return &MaintenanceHandler{reaper: reaper}
}

// Sweep обрабатывает POST /api/maintenance/sweep.
// Выполняет синхронный проход очистки и возвращает результат.
// Если проход уже выполняется — 409 AlreadyInProgress.
func (h *MaintenanceHandler) Sweep(w http.ResponseWriter, _ *http.Request) {
	result, inProgress := h.reaper.RunOnce(time.Now())
	if inProgress {
		apierrors.Write(w, http.StatusConflict, apierrors.KindAlreadyInProgress, "", "sweep already running")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
