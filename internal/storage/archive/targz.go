package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// TarGzipEncoder упаковывает файл в tar с одной записью и сжимает gzip.
type TarGzipEncoder struct {
	maxSourceSize int64
}

// Format возвращает FormatTarGzip.
func (e *TarGzipEncoder) Format() Format {
	return FormatTarGzip
}

// Encode собирает tar.gz в памяти.
func (e *TarGzipEncoder) Encode(ctx context.Context, absPath string) (*Payload, error) {
	f, info, src, err := openLimitedSource(ctx, absPath, e.maxSourceSize)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := filepath.Base(absPath)

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return nil, fmt.Errorf("ошибка формирования заголовка tar: %w", err)
	}
	hdr.Name = name
	hdr.Uname, hdr.Gname = "", ""

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.ModTime = info.ModTime()
	tw := tar.NewWriter(gz)

	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("ошибка записи заголовка tar: %w", err)
	}
	if _, err := io.Copy(tw, src); err != nil {
		return nil, fmt.Errorf("ошибка упаковки %s в tar: %w", name, err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("ошибка завершения tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("ошибка завершения gzip: %w", err)
	}

	return &Payload{
		Content:     bytes.NewReader(buf.Bytes()),
		ContentType: ContentTypeTarGzip,
		Filename:    ReplaceExt(name, ".tar.gz"),
		Size:        int64(buf.Len()),
		ModTime:     info.ModTime(),
	}, nil
}
