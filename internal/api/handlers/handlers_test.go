package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goclipstore/internal/service"
	"github.com/bigkaa/goclipstore/internal/session"
	"github.com/bigkaa/goclipstore/internal/storage/filestore"
	"github.com/bigkaa/goclipstore/internal/storage/recordstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// apiFixture — полный HTTP-стенд без аутентификации.
type apiFixture struct {
	router  *chi.Mux
	files   *recordstore.Store
	clips   *recordstore.Store
	store   *filestore.FileStore
	cleaner *service.Cleaner
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := testLogger()

	files, err := recordstore.New("files", t.TempDir(), logger)
	if err != nil {
		t.Fatalf("ошибка создания record store: %v", err)
	}
	files.BuildFromDir()

	clips, err := recordstore.New("clips", t.TempDir(), logger)
	if err != nil {
		t.Fatalf("ошибка создания record store: %v", err)
	}
	clips.BuildFromDir()

	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	tracker := session.New(logger)
	cleaner := service.NewCleaner(files, store, tracker, logger)
	cleaner.Start(context.Background())
	t.Cleanup(cleaner.Stop)

	stores := []*recordstore.Store{files, clips}
	uploadSvc := service.NewUploadService(files, store, tracker, cleaner, 1<<20, logger)
	downloadSvc := service.NewDownloadService(stores, store, tracker, logger)
	registerSvc := service.NewRegisterService(clips, store, logger)
	reaper := service.NewReaper(stores, store, tracker, time.Minute, logger)

	upload := NewUploadHandler(uploadSvc, 1<<20, logger)
	download := NewDownloadHandler(downloadSvc, logger)
	register := NewRegisterHandler(registerSvc, logger)
	maintenance := NewMaintenanceHandler(reaper)

	router := chi.NewRouter()
	router.Post("/api/upload/request", upload.RequestUpload)
	router.Post("/api/upload/{id}", upload.StreamUpload)
	router.Get("/api/upload_status/{id}", upload.Status)
	router.Get("/f", download.Download)
	router.Post("/api/clips/register", register.RegisterClip)
	router.Post("/api/maintenance/sweep", maintenance.Sweep)

	return &apiFixture{router: router, files: files, clips: clips, store: store, cleaner: cleaner}
}

func (fx *apiFixture) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

// TestUploadLifecycle проверяет полный цикл через HTTP-интерфейс:
// заявка → статус → байты → скачивание.
func TestUploadLifecycle(t *testing.T) {
	fx := newAPIFixture(t)

	content := []byte("содержимое файла для полного цикла")
	sum := sha256.Sum256(content)
	wantHash := hex.EncodeToString(sum[:])

	// 1. Заявка
	reqBody, _ := json.Marshal(map[string]any{
		"file_name":  "match.mp4",
		"file_size":  len(content),
		"file_hash":  "-",
		"expires_at": 0,
	})
	rec := fx.do(t, http.MethodPost, "/api/upload/request", reqBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("заявка: ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}

	var ticket struct {
		Approved bool   `json:"approved"`
		Handle   string `json:"upload_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ticket); err != nil {
		t.Fatalf("ошибка разбора ответа заявки: %v", err)
	}
	if !ticket.Approved || ticket.Handle == "" {
		t.Fatalf("неожиданный ответ заявки: %+v", ticket)
	}

	// 2. Статус до приёма байтов
	rec = fx.do(t, http.MethodGet, "/api/upload_status/"+ticket.Handle, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус: ожидался 200, получен %d", rec.Code)
	}
	var status struct {
		State         string `json:"state"`
		TotalBytes    int64  `json:"total_bytes"`
		UploadedBytes int64  `json:"uploaded_bytes"`
	}
	json.Unmarshal(rec.Body.Bytes(), &status)
	if status.State != "AwaitingData" {
		t.Errorf("ожидалось состояние AwaitingData, получено %s", status.State)
	}
	if status.TotalBytes != int64(len(content)) {
		t.Errorf("total_bytes не совпадает: %d", status.TotalBytes)
	}

	// 3. Скачивание до завершения — found, но не finished
	rec = fx.do(t, http.MethodGet, "/f?u="+ticket.Handle, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pending-скачивание: ожидался 200, получен %d", rec.Code)
	}
	var pending struct {
		Found    bool `json:"found"`
		Finished bool `json:"finished"`
	}
	json.Unmarshal(rec.Body.Bytes(), &pending)
	if !pending.Found || pending.Finished {
		t.Errorf("неожиданный pending-ответ: %+v", pending)
	}

	// 4. Байты
	rec = fx.do(t, http.MethodPost, "/api/upload/"+ticket.Handle, content)
	if rec.Code != http.StatusOK {
		t.Fatalf("загрузка: ожидался 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Handle string `json:"uuid"`
		Hash   string `json:"hash"`
		Size   int64  `json:"size"`
	}
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result.Handle != ticket.Handle {
		t.Errorf("поле uuid ответа не совпадает: ожидалось %s, получено %s", ticket.Handle, result.Handle)
	}
	if result.Hash != wantHash {
		t.Errorf("хеш не совпадает: ожидалось %s, получено %s", wantHash, result.Hash)
	}

	// 5. Статус после завершения — сессии больше нет
	rec = fx.do(t, http.MethodGet, "/api/upload_status/"+ticket.Handle, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("статус завершённой загрузки: ожидался 404, получен %d", rec.Code)
	}

	// 6. Скачивание готового файла
	rec = fx.do(t, http.MethodGet, "/f?u="+ticket.Handle, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("скачивание: ожидался 200, получен %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), content) {
		t.Error("скачанное содержимое не совпадает с загруженным")
	}
}

// TestErrorShape проверяет формат JSON-ошибки протокола.
func TestErrorShape(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/upload/00000000-0000-0000-0000-000000000000", []byte("x"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидался статус 400, получен %d", rec.Code)
	}

	var errBody struct {
		Status  int     `json:"status"`
		UUID    *string `json:"uuid"`
		Kind    string  `json:"kind"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("ошибка разбора тела ошибки: %v", err)
	}
	if errBody.Status != http.StatusBadRequest {
		t.Errorf("поле status не совпадает со статусом ответа: %d", errBody.Status)
	}
	if errBody.Kind != "InvalidHandle" {
		t.Errorf("ожидался kind InvalidHandle, получено %s", errBody.Kind)
	}
	if errBody.UUID == nil {
		t.Error("uuid должен содержать handle из запроса")
	}
}

// TestRequestUploadMalformedBody проверяет отклонение битого JSON.
func TestRequestUploadMalformedBody(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/upload/request", []byte("{не json"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("ожидался статус 400, получен %d", rec.Code)
	}
}

// TestDownloadUnknownHandle проверяет 404 для неизвестного handle.
func TestDownloadUnknownHandle(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodGet, "/f?u=неизвестный", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("ожидался статус 404, получен %d", rec.Code)
	}

	rec = fx.do(t, http.MethodGet, "/f", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("запрос без u должен давать 404, получен %d", rec.Code)
	}
}

// TestRegisterClipHTTP проверяет регистрацию клипа через HTTP.
func TestRegisterClipHTTP(t *testing.T) {
	fx := newAPIFixture(t)

	f, _ := fx.store.Create("clip-1080p.mp4")
	f.Write([]byte("байты клипа"))
	f.Close()

	reqBody, _ := json.Marshal(map[string]any{
		"source_id": "src-7",
		"name":      "Гол на 42 минуте",
		"quality":   "1080p",
		"format":    "mp4",
		"path":      "clip-1080p.mp4",
	})
	rec := fx.do(t, http.MethodPost, "/api/clips/register", reqBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ожидался статус 201, получен %d, тело: %s", rec.Code, rec.Body.String())
	}

	var clip struct {
		Handle string `json:"handle"`
		Hash   string `json:"hash"`
	}
	json.Unmarshal(rec.Body.Bytes(), &clip)
	if clip.Handle == "" {
		t.Fatal("handle клипа не должен быть пустым")
	}

	// Клип скачивается через общий endpoint
	rec = fx.do(t, http.MethodGet, "/f?u="+clip.Handle, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("скачивание клипа: ожидался 200, получен %d", rec.Code)
	}
}

// TestMaintenanceSweep проверяет ручной запуск прохода очистки.
func TestMaintenanceSweep(t *testing.T) {
	fx := newAPIFixture(t)

	// Просроченная запись с файлом
	old, _ := fx.files.Create("old.bin", 1, time.Now().Add(-time.Hour).Unix())
	f, _ := fx.store.Create(old.StoragePath)
	f.Write([]byte("x"))
	f.Close()

	rec := fx.do(t, http.MethodPost, "/api/maintenance/sweep", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}

	var res struct {
		ExpiredRemoved int `json:"expired_removed"`
	}
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.ExpiredRemoved != 1 {
		t.Errorf("ожидалась 1 удалённая запись, получено %d", res.ExpiredRemoved)
	}
}
