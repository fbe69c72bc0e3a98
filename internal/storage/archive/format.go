// Пакет archive — кодировщики ответа при скачивании файла:
// исходный файл без изменений либо архив zip, tar.gz или 7z
// с единственной записью.
package archive

import "strings"

// Format — тип упаковки при скачивании.
// Значения на проводе: none, zip, tar, 7z.
type Format uint8

const (
	// FormatNone — файл отдаётся как есть.
	FormatNone Format = iota
	// FormatZip — zip-архив, Deflate.
	FormatZip
	// FormatTarGzip — tar-архив, сжатый gzip.
	FormatTarGzip
	// FormatSevenZip — 7z-архив, LZMA.
	FormatSevenZip
)

// String возвращает значение формата на проводе.
func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTarGzip:
		return "tar"
	case FormatSevenZip:
		return "7z"
	default:
		return "none"
	}
}

// Compresses сообщает, собирает ли формат архив в памяти.
func (f Format) Compresses() bool {
	return f != FormatNone
}

// ParseFormat разбирает значение параметра compression_type.
// Пустое или неизвестное значение — FormatNone.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zip":
		return FormatZip
	case "tar":
		return FormatTarGzip
	case "7z":
		return FormatSevenZip
	default:
		return FormatNone
	}
}

// Formats возвращает все поддерживаемые значения на проводе.
func Formats() []string {
	return []string{"none", "zip", "tar", "7z"}
}
