// info.go — обработчик GET /api/info (информация об экземпляре Clip Store).
// Публичный endpoint (без аутентификации) для service discovery и мониторинга.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bigkaa/goclipstore/internal/config"
	"github.com/bigkaa/goclipstore/internal/storage/recordstore"
)

// DiskUsageFunc возвращает ёмкость диска директории данных:
// total, used, available в байтах.
type DiskUsageFunc func() (total, used, available int64, err error)

// InfoHandler — обработчик системной информации.
type InfoHandler struct {
	cfg       *config.Config
	stores    []*recordstore.Store
	diskUsage DiskUsageFunc
}

// NewInfoHandler создаёт обработчик GET /api/info.
// diskUsage может быть nil — тогда секция disk не возвращается.
func NewInfoHandler(cfg *config.Config, stores []*recordstore.Store, diskUsage DiskUsageFunc) *InfoHandler {
	return &InfoHandler{
		cfg:       cfg,
		stores:    stores,
		diskUsage: diskUsage,
	}
}

// GetInfo обрабатывает GET /api/info.
func (h *InfoHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	status := "online"
	records := make(map[string]int, len(h.stores))
	for _, s := range h.stores {
		if !s.IsReady() {
			status = "maintenance"
		}
		records[s.Kind()] = s.Count()
	}

	resp := map[string]any{
		"store_id":      h.cfg.StoreID,
		"version":       config.Version,
		"status":        status,
		"max_file_size": h.cfg.MaxFileSize,
		"records":       records,
	}

	if h.diskUsage != nil {
		if total, used, available, err := h.diskUsage(); err == nil {
			resp["disk"] = map[string]int64{
				"total_bytes":     total,
				"used_bytes":      used,
				"available_bytes": available,
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
