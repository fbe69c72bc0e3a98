package archive

import (
	"context"
	"mime"
	"path/filepath"
)

// Типы содержимого ответов.
const (
	ContentTypeOctetStream = "application/octet-stream"
	ContentTypeZip         = "application/x-zip-compressed"
	ContentTypeTarGzip     = "application/x-gtar"
	ContentTypeSevenZip    = "application/x-7z-compressed"
)

// NoneEncoder отдаёт файл без изменений, открытым *os.File.
// Содержимое не читается в память.
type NoneEncoder struct{}

// Format возвращает FormatNone.
func (NoneEncoder) Format() Format {
	return FormatNone
}

// Encode открывает файл. Тип содержимого определяется по расширению.
func (NoneEncoder) Encode(ctx context.Context, absPath string) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, info, err := openSource(absPath)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(absPath)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = ContentTypeOctetStream
	}

	return &Payload{
		Content:     f,
		ContentType: contentType,
		Filename:    name,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		closer:      f,
	}, nil
}
