// errors.go — ошибки бизнес-логики сервисного слоя.
// HTTP-слой сопоставляет их с кодами ответа в одном месте.
package service

import "errors"

var (
	// ErrInvalidPath — путь загрузки или хранения некорректен.
	ErrInvalidPath = errors.New("некорректный путь")
	// ErrFileNotFound — метаданные файла не найдены.
	ErrFileNotFound = errors.New("файл не найден")
	// ErrSourceFileMissing — запись есть, но файла на диске нет.
	ErrSourceFileMissing = errors.New("файл отсутствует в хранилище")
	// ErrSourceTooLarge — файл слишком велик для архивации.
	ErrSourceTooLarge = errors.New("файл слишком велик для архивации")
	// ErrUploadWrite — не удалось записать загружаемый файл.
	ErrUploadWrite = errors.New("ошибка записи файла")
	// ErrBadRequest — некорректный запрос или конфликт.
	ErrBadRequest = errors.New("некорректный запрос")
	// ErrUnauthorized — неверные учётные данные или неактивный пользователь.
	ErrUnauthorized = errors.New("не удалось проверить учётные данные")
	// ErrForbidden — доступ к файлу запрещён политикой скачивания.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrArchive — ошибка сборки архива.
	ErrArchive = errors.New("ошибка сборки архива")
)
