package service

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/goclipstore/internal/api/errors"
	"github.com/bigkaa/goclipstore/internal/domain/model"
	"github.com/bigkaa/goclipstore/internal/storage/filestore"
	"github.com/bigkaa/goclipstore/internal/storage/recordstore"
)

var clipsRegisteredTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cs_clips_registered_total",
		Help: "Количество регистраций клипов по результату",
	},
	[]string{"result"}, // registered, failed
)

// ClipRequest — параметры регистрации готового клипа. Файл уже лежит
// в директории данных, его записал внешний процесс нарезки.
type ClipRequest struct {
	SourceID    string `json:"source_id"`
	DisplayName string `json:"name"`
	Quality     string `json:"quality"`
	Format      string `json:"format"`
	Path        string `json:"path"`
	ExpiresAt   int64  `json:"expires_at"`
}

// RegisterService регистрирует готовые клипы в clip record store.
// Размер и хеш считаются с диска: для клипов источник истины — файл.
type RegisterService struct {
	clips  *recordstore.Store
	store  *filestore.FileStore
	logger *slog.Logger
}

// NewRegisterService создаёт сервис регистрации клипов.
func NewRegisterService(clips *recordstore.Store, store *filestore.FileStore, logger *slog.Logger) *RegisterService {
	return &RegisterService{
		clips:  clips,
		store:  store,
		logger: logger.With("component", "register"),
	}
}

// RegisterClip создаёт финализированную запись клипа по файлу на диске.
func (s *RegisterService) RegisterClip(req ClipRequest) (*model.Record, *Error) {
	if req.Path == "" || req.SourceID == "" {
		return nil, &Error{StatusCode: 400, Kind: apierrors.KindInvalidHandle, Message: "source_id and path are required"}
	}

	if !s.store.Exists(req.Path) {
		clipsRegisteredTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("Регистрация клипа: файл не найден", "path", req.Path)
		return nil, notFoundErr("")
	}

	size, err := s.store.Size(req.Path)
	if err != nil {
		clipsRegisteredTotal.WithLabelValues("failed").Inc()
		s.logger.Error("Не удалось получить размер файла клипа", "path", req.Path, "error", err)
		return nil, serverIssueErr("", "failed to stat clip file")
	}

	hash, err := s.store.ComputeChecksum(req.Path)
	if err != nil {
		clipsRegisteredTotal.WithLabelValues("failed").Inc()
		s.logger.Error("Не удалось вычислить хеш файла клипа", "path", req.Path, "error", err)
		return nil, serverIssueErr("", "failed to hash clip file")
	}

	rec := &model.Record{
		Handle:      uuid.New().String(),
		ContentHash: hash,
		StoragePath: req.Path,
		DisplayName: req.DisplayName,
		Size:        size,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   req.ExpiresAt,
		Clip: &model.ClipSource{
			SourceID: req.SourceID,
			Quality:  req.Quality,
			Format:   req.Format,
		},
	}
	if err := s.clips.Register(rec); err != nil {
		clipsRegisteredTotal.WithLabelValues("failed").Inc()
		s.logger.Error("Не удалось сохранить запись клипа", "handle", rec.Handle, "error", err)
		return nil, serverIssueErr(rec.Handle, "failed to persist clip record")
	}

	clipsRegisteredTotal.WithLabelValues("registered").Inc()
	s.logger.Info("Клип зарегистрирован",
		"handle", rec.Handle, "source_id", req.SourceID, "path", req.Path,
		"size", size, "quality", req.Quality, "format", req.Format)
	return rec, nil
}
