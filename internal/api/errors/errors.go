// Пакет errors — конструкторы стандартных ошибок API Clip Store.
// Единый формат: {"status": ..., "uuid": ..., "kind": ..., "message": ...}.
// uuid и message опциональны (null). Все HTTP-ответы с ошибками должны
// использовать Write.
package errors //nolint:revive // конфликт имени со stdlib допустим внутри internal/api

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые виды ошибок.
const (
	KindInvalidHandle     = "InvalidHandle"
	KindAlreadyInProgress = "AlreadyInProgress"
	KindFileTooLarge      = "FileTooLarge"
	KindUploadCancelled   = "UploadCancelled"
	KindNoPermissions     = "NoPermissions"
	KindServerIssue       = "ServerIssue"
	KindNotFound          = "NotFound"
)

// body — структура тела ответа ошибки.
type body struct {
	Status  int     `json:"status"`
	UUID    *string `json:"uuid"`
	Kind    string  `json:"kind"`
	Message *string `json:"message"`
}

// Write записывает ответ ошибки в стандартном формате.
// handle и message пустыми строками кодируются как null.
func Write(w http.ResponseWriter, statusCode int, kind, handle, message string) {
	b := body{
		Status: statusCode,
		Kind:   kind,
	}
	if handle != "" {
		b.UUID = &handle
	}
	if message != "" {
		b.Message = &message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(b)
}

// --- Конструкторы для типичных ошибок ---

// InvalidHandle — 400 неизвестный или некорректный handle загрузки.
func InvalidHandle(w http.ResponseWriter, handle string) {
	Write(w, http.StatusBadRequest, KindInvalidHandle, handle, "")
}

// AlreadyInProgress — 400 загрузка по этому handle уже идёт.
func AlreadyInProgress(w http.ResponseWriter, handle string) {
	Write(w, http.StatusBadRequest, KindAlreadyInProgress, handle, "")
}

// FileTooLarge — 413 заявленный размер превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	Write(w, http.StatusRequestEntityTooLarge, KindFileTooLarge, "", message)
}

// UploadCancelled — 400 поток оборван или повреждён.
func UploadCancelled(w http.ResponseWriter, handle string) {
	Write(w, http.StatusBadRequest, KindUploadCancelled, handle, "")
}

// NoPermissions — 403 нет capability на операцию.
func NoPermissions(w http.ResponseWriter) {
	Write(w, http.StatusForbidden, KindNoPermissions, "", "")
}

// Unauthorized — 401 токен отсутствует или невалиден.
func Unauthorized(w http.ResponseWriter, message string) {
	Write(w, http.StatusUnauthorized, KindNoPermissions, "", message)
}

// Forbidden — 403 токен валиден, но нужного scope нет.
func Forbidden(w http.ResponseWriter, message string) {
	Write(w, http.StatusForbidden, KindNoPermissions, "", message)
}

// ServerIssue — 500 ошибка стора или файловой системы.
func ServerIssue(w http.ResponseWriter, handle, message string) {
	Write(w, http.StatusInternalServerError, KindServerIssue, handle, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	Write(w, http.StatusNotFound, KindNotFound, "", message)
}
