// Пакет session — потокобезопасный трекер незавершённых загрузок.
//
// Одна Session на один handle. Единственная структура, мутируемая
// многими запросами одновременно: доступ через короткие секции
// RWMutex (чтение для опроса статуса, запись для переходов и
// прогресса), блокировка никогда не удерживается через точку I/O.
//
// Терминальные состояния не персистентны: завершённая или упавшая
// загрузка просто удаляется из трекера. Session без финализированной
// записи в сторе означает для читателей «ещё загружается».
package session

import (
	"errors"
	"log/slog"
	"sync"
)

// State — состояние незавершённой загрузки.
type State string

const (
	// StateAwaitingData — запись создана, байты ещё не передаются
	StateAwaitingData State = "AwaitingData"
	// StateUploading — поток байтов принимается
	StateUploading State = "Uploading"
	// StateFinishing — поток исчерпан, hash финализируется
	StateFinishing State = "Finishing"
	// StateError — загрузка упала (терминальное, перед удалением)
	StateError State = "Error"
	// StateCancelled — загрузка прервана клиентом (терминальное, перед удалением)
	StateCancelled State = "Cancelled"
)

// ErrConflict — session для handle уже существует.
// При уникальных handle не должно происходить; защита от replay.
var ErrConflict = errors.New("session для этого handle уже существует")

// Session — транзиентное состояние одной незавершённой загрузки.
type Session struct {
	// State — текущее состояние загрузки
	State State `json:"state"`
	// TotalBytes — размер, заявленный клиентом при создании записи
	TotalBytes int64 `json:"total_bytes"`
	// UploadedBytes — принятые байты, монотонно растёт по чанкам
	UploadedBytes int64 `json:"uploaded_bytes"`
}

// Tracker — общепроцессный трекер незавершённых загрузок.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// New создаёт пустой трекер.
func New(logger *slog.Logger) *Tracker {
	return &Tracker{
		sessions: make(map[string]*Session),
		logger:   logger.With(slog.String("component", "session_tracker")),
	}
}

// Begin вставляет session в состоянии AwaitingData.
// Возвращает ErrConflict, если session для handle уже существует.
func (t *Tracker) Begin(handle string, totalBytes int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.sessions[handle]; ok {
		return ErrConflict
	}

	t.sessions[handle] = &Session{
		State:      StateAwaitingData,
		TotalBytes: totalBytes,
	}
	t.logger.Debug("Session создана", "handle", handle, "total_bytes", totalBytes)
	return nil
}

// TryStart атомарно проверяет state == AwaitingData и переводит в
// Uploading, сбрасывая прогресс. Возвращает false, не трогая состояние,
// если handle неизвестен или загрузка уже началась. Это единственный
// механизм, не дающий двум конкурентным потокам писать один handle.
func (t *Tracker) TryStart(handle string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.sessions[handle]
	if !ok || sess.State != StateAwaitingData {
		return false
	}

	sess.State = StateUploading
	sess.UploadedBytes = 0
	return true
}

// AddProgress добавляет n к принятым байтам.
// No-op, если handle отсутствует: session уже завершена или удалена.
func (t *Tracker) AddProgress(handle string, n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sess, ok := t.sessions[handle]; ok {
		sess.UploadedBytes += n
	}
}

// SetState устанавливает состояние session. No-op, если handle отсутствует.
func (t *Tracker) SetState(handle string, state State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sess, ok := t.sessions[handle]; ok {
		sess.State = state
	}
}

// Remove удаляет session. Идемпотентна.
func (t *Tracker) Remove(handle string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.sessions[handle]; ok {
		delete(t.sessions, handle)
		t.logger.Debug("Session удалена", "handle", handle)
	}
}

// Get возвращает копию session для опроса статуса.
func (t *Tracker) Get(handle string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sess, ok := t.sessions[handle]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Len возвращает количество незавершённых загрузок.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
