// disk_usage.go — ёмкость файловой системы с директорией данных
// для /api/info. Только Unix-подобные системы.
package main

import (
	"fmt"
	"syscall"
)

// getDiskUsage возвращает total, used и available в байтах для
// файловой системы, на которой находится path.
func getDiskUsage(path string) (total, used, available int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, 0, fmt.Errorf("ошибка statfs %s: %w", path, err)
	}

	// Bavail — блоки, доступные непривилегированному процессу;
	// used считается от него, а не от Bfree.
	total = int64(stat.Blocks) * int64(stat.Bsize)
	available = int64(stat.Bavail) * int64(stat.Bsize)
	used = total - available

	return total, used, available, nil
}
