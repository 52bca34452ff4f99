// Пакет model — доменные модели Clip Store.
// Record — единая структура записи о хранимом артефакте, используется
// как in-memory представление и как формат rec.json на диске.
package model

import (
	"time"
)

// SentinelHash — значение content hash «ещё не вычислен».
// Запись с sentinel hash принадлежит незавершённой загрузке и никогда
// не участвует в дедупликации.
const SentinelHash = "-"

// ClipSource — параметры клипа, полученного внешним загрузчиком.
// Присутствует только у записей из clip store.
type ClipSource struct {
	// SourceID — идентификатор ролика у внешнего источника
	SourceID string `json:"source_id"`

	// Quality — качество, запрошенное у загрузчика
	Quality string `json:"quality"`

	// Format — контейнер/формат результата (mp4, webm, mp3 и т.д.)
	Format string `json:"format"`
}

// Record — запись о хранимом артефакте. Соответствует содержимому rec.json.
// Владелец записи — record store; координатор загрузки держит рабочую
// копию и записывает её обратно один раз при финализации.
type Record struct {
	// Handle — публичный непрозрачный идентификатор (UUID v4),
	// выдаётся при создании записи и никогда не меняется.
	Handle string `json:"handle"`

	// ContentHash — SHA-256 содержимого. SentinelHash до финализации.
	ContentHash string `json:"hash"`

	// StoragePath — имя файла на диске относительно корня загрузок.
	// Для файловых загрузок вычисляется из handle при создании записи
	// и не меняется; clip store может переписать путь после завершения
	// внешней загрузки.
	StoragePath string `json:"path"`

	// DisplayName — имя файла, объявленное клиентом (для Content-Disposition)
	DisplayName string `json:"name"`

	// Size — размер в байтах. До финализации — заявленный клиентом,
	// после — фактический.
	Size int64 `json:"size"`

	// CreatedAt — время создания записи (UTC)
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt — unix-время истечения срока хранения; 0 = бессрочно
	ExpiresAt int64 `json:"expires_at"`

	// AccessCount — количество успешных скачиваний
	AccessCount int64 `json:"access_count"`

	// Clip — параметры внешнего источника (только clip store)
	Clip *ClipSource `json:"clip,omitempty"`
}

// IsExpired проверяет, истёк ли срок хранения записи.
// ExpiresAt = 0 означает бессрочное хранение.
func (r *Record) IsExpired(now time.Time) bool {
	return r.ExpiresAt != 0 && r.ExpiresAt < now.Unix()
}

// IsFinalized проверяет, что запись финализирована: hash вычислен движком.
func (r *Record) IsFinalized() bool {
	return r.ContentHash != SentinelHash
}
