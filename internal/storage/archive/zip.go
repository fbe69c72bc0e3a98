package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// ZipEncoder упаковывает файл в zip с одной записью (Deflate).
type ZipEncoder struct {
	maxSourceSize int64
}

// Format возвращает FormatZip.
func (e *ZipEncoder) Format() Format {
	return FormatZip
}

// Encode собирает zip-архив в памяти.
func (e *ZipEncoder) Encode(ctx context.Context, absPath string) (*Payload, error) {
	f, info, src, err := openLimitedSource(ctx, absPath, e.maxSourceSize)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := filepath.Base(absPath)

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return nil, fmt.Errorf("ошибка формирования заголовка zip: %w", err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания записи zip: %w", err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return nil, fmt.Errorf("ошибка упаковки %s в zip: %w", name, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("ошибка завершения zip: %w", err)
	}

	return &Payload{
		Content:     bytes.NewReader(buf.Bytes()),
		ContentType: ContentTypeZip,
		Filename:    ReplaceExt(name, ".zip"),
		Size:        int64(buf.Len()),
		ModTime:     info.ModTime(),
	}, nil
}
