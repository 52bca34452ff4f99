// Пакет filestore — операции с физическими файлами в корне загрузок.
// Файлы именуются по handle записи (клипы — handle плюс идентификатор
// источника). Потоковая запись ведётся координатором загрузки напрямую
// в итоговый путь: частично записанные байты при обрыве остаются на
// диске и убираются асинхронной очисткой, а не синхронно.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileStore — управление физическими файлами на диске.
type FileStore struct {
	// dataDir — корневая директория загрузок (CS_DATA_DIR)
	dataDir string
}

// New создаёт новый FileStore. Проверяет и создаёт директорию,
// если она не существует.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", dataDir, err)
	}

	return &FileStore{dataDir: dataDir}, nil
}

// Create открывает файл по пути хранения для потоковой записи.
// Существующее содержимое усекается. Вызывающий код обязан закрыть файл.
func (fs *FileStore) Create(storagePath string) (*os.File, error) {
	fullPath := filepath.Join(fs.dataDir, storagePath)

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла %s: %w", storagePath, err)
	}
	return f, nil
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть файл.
func (fs *FileStore) Open(storagePath string) (*os.File, error) {
	fullPath := filepath.Join(fs.dataDir, storagePath)

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("файл не найден: %s", storagePath)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storagePath, err)
	}

	return f, nil
}

// FullPath возвращает абсолютный путь к файлу на диске.
func (fs *FileStore) FullPath(storagePath string) string {
	return filepath.Join(fs.dataDir, storagePath)
}

// Delete удаляет файл с диска.
// Возвращает nil, если файл уже не существует.
func (fs *FileStore) Delete(storagePath string) error {
	fullPath := filepath.Join(fs.dataDir, storagePath)

	err := os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storagePath, err)
	}
	return nil
}

// Exists проверяет существование файла на диске.
func (fs *FileStore) Exists(storagePath string) bool {
	fullPath := filepath.Join(fs.dataDir, storagePath)
	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}

// Size возвращает размер файла на диске.
func (fs *FileStore) Size(storagePath string) (int64, error) {
	fullPath := filepath.Join(fs.dataDir, storagePath)
	info, err := os.Stat(fullPath)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения информации о файле %s: %w", storagePath, err)
	}
	return info.Size(), nil
}

// ComputeChecksum вычисляет SHA-256 существующего файла.
// Используется при регистрации клипов: движок считает hash сам,
// а не доверяет внешнему загрузчику.
func (fs *FileStore) ComputeChecksum(storagePath string) (string, error) {
	fullPath := filepath.Join(fs.dataDir, storagePath)

	f, err := os.Open(fullPath)
	if err != nil {
		return "", fmt.Errorf("ошибка открытия файла %s: %w", storagePath, err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("ошибка вычисления checksum %s: %w", storagePath, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ListNames возвращает имена обычных файлов в корне загрузок.
// Не рекурсивно. Используется Reaper-ом при сверке осиротевших файлов.
func (fs *FileStore) ListNames() ([]string, error) {
	entries, err := os.ReadDir(fs.dataDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории загрузок %s: %w", fs.dataDir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// DataDir возвращает путь к корню загрузок.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}
