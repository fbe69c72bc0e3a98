// Пакет model — доменные модели filevault.
// FileRecord — маппинг таблицы files, User — таблицы users.
package model

import "time"

// FileRecord — метаданные сохранённого файла.
// Все поля, кроме IsDownloadable, неизменяемы после создания.
type FileRecord struct {
	// ID — UUID файла (генерируется сервером при создании)
	ID string
	// Name — отображаемое имя (последний сегмент пути при загрузке)
	Name string
	// Path — канонический путь в хранилище, уникальный, с ведущим "/"
	Path string
	// Size — размер файла в байтах
	Size int64
	// IsDownloadable — разрешено ли скачивание (по умолчанию true)
	IsDownloadable bool
	// OwnerID — UUID пользователя-владельца
	OwnerID string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// IsOwnedBy проверяет, принадлежит ли файл пользователю.
func (f *FileRecord) IsOwnedBy(userID string) bool {
	return f.OwnerID != "" && f.OwnerID == userID
}
