package recordstore

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/goclipstore/internal/domain/model"
)

// testLogger возвращает логгер для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// newTestStore создаёт стор во временной директории.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("files", t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("ошибка создания стора: %v", err)
	}
	if err := s.BuildFromDir(); err != nil {
		t.Fatalf("ошибка построения индекса: %v", err)
	}
	return s
}

// TestNew проверяет создание пустого стора.
func TestNew(t *testing.T) {
	s, err := New("files", t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("ошибка создания стора: %v", err)
	}

	if s.Count() != 0 {
		t.Errorf("ожидалось 0 записей, получено %d", s.Count())
	}
	if s.IsReady() {
		t.Error("стор без BuildFromDir не должен быть ready")
	}
}

// TestCreate проверяет создание записи незавершённой загрузки.
func TestCreate(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Create("video.mp4", 1024, 0)
	if err != nil {
		t.Fatalf("ошибка Create: %v", err)
	}

	if rec.Handle == "" {
		t.Fatal("handle не должен быть пустым")
	}
	if rec.ContentHash != model.SentinelHash {
		t.Errorf("hash новой записи должен быть %q, получено %q", model.SentinelHash, rec.ContentHash)
	}
	if rec.StoragePath != rec.Handle {
		t.Errorf("путь хранения должен совпадать с handle: %q != %q", rec.StoragePath, rec.Handle)
	}
	if rec.IsFinalized() {
		t.Error("новая запись не должна быть финализированной")
	}

	// Файл-строка должен появиться на диске
	rowFile := filepath.Join(s.dir, rec.Handle+RowSuffix)
	if _, err := os.Stat(rowFile); err != nil {
		t.Errorf("файл-строка не создан: %v", err)
	}
}

// TestCreateUniqueHandles проверяет уникальность handle у конкурентных Create.
func TestCreateUniqueHandles(t *testing.T) {
	s := newTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		rec, err := s.Create("f.bin", 1, 0)
		if err != nil {
			t.Fatalf("ошибка Create: %v", err)
		}
		if seen[rec.Handle] {
			t.Fatalf("повторный handle: %s", rec.Handle)
		}
		seen[rec.Handle] = true
	}
}

// TestFindByHandle проверяет поиск по handle.
func TestFindByHandle(t *testing.T) {
	s := newTestStore(t)

	rec, _ := s.Create("a.txt", 10, 0)

	found := s.FindByHandle(rec.Handle)
	if found == nil {
		t.Fatal("запись не найдена по handle")
	}
	if found.DisplayName != "a.txt" {
		t.Errorf("ожидалось имя a.txt, получено %q", found.DisplayName)
	}

	if s.FindByHandle("нет-такого") != nil {
		t.Error("поиск несуществующего handle должен вернуть nil")
	}
}

// TestFindByHash проверяет дедупликацию по хешу.
func TestFindByHash(t *testing.T) {
	s := newTestStore(t)

	rec, _ := s.Create("a.txt", 10, 0)
	if err := s.Finalize(rec.Handle, "deadbeef", 10); err != nil {
		t.Fatalf("ошибка Finalize: %v", err)
	}

	if s.FindByHash("deadbeef") == nil {
		t.Error("финализированная запись должна находиться по хешу")
	}
	if s.FindByHash("cafebabe") != nil {
		t.Error("несуществующий хеш не должен находиться")
	}
}

// TestFindByHashSentinel проверяет, что sentinel и пустой хеш никогда не совпадают.
func TestFindByHashSentinel(t *testing.T) {
	s := newTestStore(t)

	// Две незавершённые записи с sentinel-хешем
	s.Create("a.txt", 10, 0)
	s.Create("b.txt", 20, 0)

	if s.FindByHash(model.SentinelHash) != nil {
		t.Error("sentinel-хеш не должен давать совпадения")
	}
	if s.FindByHash("") != nil {
		t.Error("пустой хеш не должен давать совпадения")
	}
}

// TestFinalize проверяет замену sentinel-хеша на реальный.
func TestFinalize(t *testing.T) {
	s := newTestStore(t)

	rec, _ := s.Create("a.txt", 999, 0)
	if err := s.Finalize(rec.Handle, "abc123", 42); err != nil {
		t.Fatalf("ошибка Finalize: %v", err)
	}

	found := s.FindByHandle(rec.Handle)
	if found.ContentHash != "abc123" {
		t.Errorf("ожидался хеш abc123, получено %q", found.ContentHash)
	}
	if found.Size != 42 {
		t.Errorf("ожидался размер 42, получено %d", found.Size)
	}
	if !found.IsFinalized() {
		t.Error("запись после Finalize должна быть финализированной")
	}

	if err := s.Finalize("нет-такого", "x", 1); err != ErrNotFound {
		t.Errorf("ожидался ErrNotFound, получено %v", err)
	}
}

// TestRemove проверяет удаление записи и идемпотентность.
func TestRemove(t *testing.T) {
	s := newTestStore(t)

	rec, _ := s.Create("a.txt", 10, 0)
	if err := s.Remove(rec.Handle); err != nil {
		t.Fatalf("ошибка Remove: %v", err)
	}
	if s.FindByHandle(rec.Handle) != nil {
		t.Error("запись не удалена из индекса")
	}

	// Повторный Remove — не ошибка
	if err := s.Remove(rec.Handle); err != nil {
		t.Errorf("повторный Remove должен быть идемпотентным: %v", err)
	}
}

// TestBuildFromDir проверяет пересборку индекса из файлов-строк.
func TestBuildFromDir(t *testing.T) {
	dir := t.TempDir()
	s1, err := New("files", dir, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания стора: %v", err)
	}
	if err := s1.BuildFromDir(); err != nil {
		t.Fatalf("ошибка построения индекса: %v", err)
	}

	rec, _ := s1.Create("a.txt", 10, 0)
	s1.Finalize(rec.Handle, "hash1", 10)

	// Новый стор над той же директорией видит записи после BuildFromDir
	s2, err := New("files", dir, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания стора: %v", err)
	}
	if err := s2.BuildFromDir(); err != nil {
		t.Fatalf("ошибка построения индекса: %v", err)
	}

	if s2.Count() != 1 {
		t.Fatalf("ожидалась 1 запись после пересборки, получено %d", s2.Count())
	}
	found := s2.FindByHandle(rec.Handle)
	if found == nil || found.ContentHash != "hash1" {
		t.Error("запись не восстановлена из файла-строки")
	}
	if !s2.IsReady() {
		t.Error("стор после BuildFromDir должен быть ready")
	}
}

// TestBuildFromDirSkipsInvalid проверяет пропуск битых rec.json.
func TestBuildFromDirSkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken"+RowSuffix), []byte("{не json"), 0o640); err != nil {
		t.Fatalf("ошибка подготовки: %v", err)
	}

	s, err := New("files", dir, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания стора: %v", err)
	}
	if err := s.BuildFromDir(); err != nil {
		t.Fatalf("битый rec.json не должен ломать пересборку: %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("битая строка не должна попадать в индекс, получено %d записей", s.Count())
	}
}

// TestListExpired проверяет выборку просроченных записей.
func TestListExpired(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()

	expired, _ := s.Create("old.txt", 10, now.Add(-time.Hour).Unix())
	s.Create("fresh.txt", 10, now.Add(time.Hour).Unix())
	s.Create("forever.txt", 10, 0) // expires_at = 0: хранить вечно

	list := s.ListExpired(now)
	if len(list) != 1 {
		t.Fatalf("ожидалась 1 просроченная запись, получено %d", len(list))
	}
	if list[0].Handle != expired.Handle {
		t.Errorf("просрочена не та запись: %s", list[0].Handle)
	}
}

// TestIncrementAccessCount проверяет счётчик скачиваний.
func TestIncrementAccessCount(t *testing.T) {
	s := newTestStore(t)

	rec, _ := s.Create("a.txt", 10, 0)
	for i := 0; i < 3; i++ {
		if err := s.IncrementAccessCount(rec.Handle); err != nil {
			t.Fatalf("ошибка IncrementAccessCount: %v", err)
		}
	}

	if got := s.FindByHandle(rec.Handle).AccessCount; got != 3 {
		t.Errorf("ожидался счётчик 3, получено %d", got)
	}
}

// TestListAllPaths проверяет перечисление путей хранения.
func TestListAllPaths(t *testing.T) {
	s := newTestStore(t)

	a, _ := s.Create("a.txt", 10, 0)
	b, _ := s.Create("b.txt", 10, 0)

	paths := s.ListAllPaths()
	if len(paths) != 2 {
		t.Fatalf("ожидалось 2 пути, получено %d", len(paths))
	}
	set := map[string]bool{paths[0]: true, paths[1]: true}
	if !set[a.StoragePath] || !set[b.StoragePath] {
		t.Error("пути хранения не совпадают с созданными записями")
	}
}
