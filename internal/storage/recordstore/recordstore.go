// Пакет recordstore — персистентная таблица записей о хранимых артефактах.
//
// Каждая запись хранится как отдельный файл-строка <handle>.rec.json
// в директории метаданных стора. Все записи строк атомарны:
// temp → fsync → rename, поэтому одна строка никогда не бывает
// полуприменённой. Межстрочных транзакций нет — каждая операция
// (Create, Finalize, Remove) независимо безопасна, полуприменённое
// состояние между операциями убирает Reaper.
//
// Для быстрого поиска поверх диска держится потокобезопасный
// in-memory индекс, пересобираемый из rec.json при старте (BuildFromDir).
package recordstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goclipstore/internal/domain/model"
)

// RowSuffix — суффикс файла-строки записи.
const RowSuffix = ".rec.json"

// maxRowSize — максимальный допустимый размер rec.json (4 КБ).
// Ограничение гарантирует атомарность записи.
const maxRowSize = 4096

// ErrNotFound — запись с указанным handle отсутствует в сторе.
var ErrNotFound = errors.New("запись не найдена")

// Store — персистентный стор записей одного вида артефактов
// (файловые загрузки или клипы).
type Store struct {
	mu      sync.RWMutex
	kind    string // метка вида ("files", "clips") для логов
	dir     string // директория файлов-строк
	records map[string]*model.Record
	ready   bool
	logger  *slog.Logger
}

// New создаёт стор записей. Создаёт директорию метаданных,
// если она не существует. Для заполнения вызовите BuildFromDir.
func New(kind, dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию метаданных %s: %w", dir, err)
	}

	return &Store{
		kind:    kind,
		dir:     dir,
		records: make(map[string]*model.Record),
		logger:  logger.With(slog.String("component", "recordstore"), slog.String("kind", kind)),
	}, nil
}

// BuildFromDir строит индекс из rec.json файлов в директории стора.
// Вызывается при старте сервера. Заменяет текущее содержимое индекса.
// Невалидные файлы-строки пропускаются с записью в лог.
func (s *Store) BuildFromDir() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern := filepath.Join(s.dir, "*"+RowSuffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("ошибка сканирования директории %s: %w", s.dir, err)
	}

	s.records = make(map[string]*model.Record, len(matches))
	for _, path := range matches {
		rec, readErr := readRow(path)
		if readErr != nil {
			s.logger.Warn("Пропущен невалидный rec.json",
				slog.String("path", path),
				slog.String("error", readErr.Error()),
			)
			continue
		}
		s.records[rec.Handle] = rec
	}

	s.ready = true

	s.logger.Info("Индекс записей построен",
		slog.Int("records", len(s.records)),
		slog.String("dir", s.dir),
	)

	return nil
}

// IsReady возвращает true, если индекс построен и готов к использованию.
func (s *Store) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Kind возвращает метку вида артефактов стора.
func (s *Store) Kind() string {
	return s.kind
}

// Create создаёт запись незавершённой загрузки: свежий уникальный handle,
// путь хранения выводится из handle, hash = sentinel, access_count = 0.
// Два конкурентных Create никогда не коллидируют по handle и пути.
// Возвращает копию созданной записи.
func (s *Store) Create(displayName string, declaredSize int64, expiresAt int64) (*model.Record, error) {
	rec := &model.Record{
		Handle:      uuid.New().String(),
		ContentHash: model.SentinelHash,
		DisplayName: displayName,
		Size:        declaredSize,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
		AccessCount: 0,
	}
	rec.StoragePath = rec.Handle

	if err := s.writeRow(rec); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.records[rec.Handle] = rec
	s.mu.Unlock()

	copied := *rec
	return &copied, nil
}

// Register вставляет полностью сформированную запись (клипы: внешний
// загрузчик уже произвёл файл и знает hash). Handle записи обязан быть
// заполнен вызывающей стороной.
func (s *Store) Register(rec *model.Record) error {
	if rec.Handle == "" {
		return errors.New("запись без handle не может быть зарегистрирована")
	}

	copied := *rec
	if err := s.writeRow(&copied); err != nil {
		return err
	}

	s.mu.Lock()
	s.records[copied.Handle] = &copied
	s.mu.Unlock()

	return nil
}

// FindByHandle возвращает копию записи по handle или nil.
func (s *Store) FindByHandle(handle string) *model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[handle]
	if !ok {
		return nil
	}
	copied := *rec
	return &copied
}

// FindByHash возвращает копию первой записи с указанным content hash
// или nil. Sentinel hash никогда не находится: плейсхолдеры
// незавершённых загрузок не дают ложных срабатываний дедупликации.
// Уникальность финализированных hash не форсируется; при дубликатах
// порядок обхода не определён.
func (s *Store) FindByHash(hash string) *model.Record {
	if hash == model.SentinelHash || hash == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.ContentHash == hash {
			copied := *rec
			return &copied
		}
	}
	return nil
}

// Finalize перезаписывает hash и size записи на месте.
// Возвращает ErrNotFound, если handle отсутствует.
func (s *Store) Finalize(handle, realHash string, realSize int64) error {
	return s.update(handle, func(rec *model.Record) {
		rec.ContentHash = realHash
		rec.Size = realSize
	})
}

// RewritePath переписывает путь хранения записи. Используется clip store,
// когда внешний загрузчик завершил работу и известно итоговое имя файла.
func (s *Store) RewritePath(handle, storagePath string) error {
	return s.update(handle, func(rec *model.Record) {
		rec.StoragePath = storagePath
	})
}

// IncrementAccessCount увеличивает счётчик скачиваний записи.
func (s *Store) IncrementAccessCount(handle string) error {
	return s.update(handle, func(rec *model.Record) {
		rec.AccessCount++
	})
}

// update применяет мутацию к копии записи, пишет строку на диск
// и заменяет запись в индексе. Одна строка, одна атомарная запись.
func (s *Store) update(handle string, mutate func(*model.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[handle]
	if !ok {
		return ErrNotFound
	}

	copied := *rec
	mutate(&copied)

	if err := s.writeRow(&copied); err != nil {
		return err
	}

	s.records[handle] = &copied
	return nil
}

// Remove удаляет запись. Идемпотентна: отсутствующий handle не является
// ошибкой — пути очистки вызывают Remove не зная, существует ли строка.
func (s *Store) Remove(handle string) error {
	err := os.Remove(s.rowPath(handle))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления rec.json для %s: %w", handle, err)
	}

	s.mu.Lock()
	delete(s.records, handle)
	s.mu.Unlock()

	return nil
}

// ListExpired возвращает копии записей с истёкшим сроком хранения:
// expires_at < now и expires_at != 0.
func (s *Store) ListExpired(now time.Time) []*model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Record
	for _, rec := range s.records {
		if rec.IsExpired(now) {
			copied := *rec
			result = append(result, &copied)
		}
	}
	return result
}

// ListAllPaths возвращает пути хранения всех записей.
// Используется Reaper-ом при сверке осиротевших файлов.
func (s *Store) ListAllPaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.records))
	for _, rec := range s.records {
		paths = append(paths, rec.StoragePath)
	}
	return paths
}

// Count возвращает количество записей в сторе.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// rowPath возвращает путь файла-строки для handle.
func (s *Store) rowPath(handle string) string {
	return filepath.Join(s.dir, handle+RowSuffix)
}

// writeRow атомарно записывает строку на диск.
// Паттерн: JSON → temp файл → fsync → atomic rename.
func (s *Store) writeRow(rec *model.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи %s: %w", rec.Handle, err)
	}

	// Проверка размера для гарантии атомарности
	if len(data) > maxRowSize {
		return fmt.Errorf("размер rec.json (%d байт) превышает максимум (%d байт)", len(data), maxRowSize)
	}

	path := s.rowPath(rec.Handle)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// readRow читает и десериализует строку записи.
func readRow(path string) (*model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения rec.json %s: %w", path, err)
	}

	var rec model.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("ошибка десериализации rec.json %s: %w", path, err)
	}

	return &rec, nil
}
