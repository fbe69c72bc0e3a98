package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// DefaultMaxSourceSize — лимит исходного файла для сборки архива в памяти.
const DefaultMaxSourceSize int64 = 256 << 20

// Ошибки кодировщиков.
var (
	// ErrSourceMissing — исходный файл отсутствует, недоступен или не является файлом.
	ErrSourceMissing = errors.New("исходный файл отсутствует")
	// ErrSourceTooLarge — исходный файл больше лимита сборки архива.
	ErrSourceTooLarge = errors.New("исходный файл слишком велик для архивации")
)

// Payload — тело ответа на скачивание.
// Вызывающий код обязан вызвать Close.
type Payload struct {
	// Content — содержимое с поддержкой Seek (для Range-запросов)
	Content io.ReadSeeker
	// ContentType — MIME-тип ответа
	ContentType string
	// Filename — имя для Content-Disposition
	Filename string
	// Size — размер Content в байтах
	Size int64
	// ModTime — время изменения исходного файла
	ModTime time.Time

	closer io.Closer
}

// Close освобождает ресурсы (открытый исходный файл).
func (p *Payload) Close() error {
	if p == nil || p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// Encoder превращает файл на диске в тело ответа.
type Encoder interface {
	// Format возвращает тип упаковки кодировщика.
	Format() Format
	// Encode читает файл absPath и формирует Payload.
	Encode(ctx context.Context, absPath string) (*Payload, error)
}

// Options — параметры кодировщиков.
type Options struct {
	// MaxSourceSize — лимит исходного файла для архивов (<= 0 — DefaultMaxSourceSize)
	MaxSourceSize int64
}

// Select возвращает кодировщик для формата. Никогда не возвращает nil:
// неизвестный формат обслуживается NoneEncoder.
func Select(f Format, opts Options) Encoder {
	limit := opts.MaxSourceSize
	if limit <= 0 {
		limit = DefaultMaxSourceSize
	}

	switch f {
	case FormatZip:
		return &ZipEncoder{maxSourceSize: limit}
	case FormatTarGzip:
		return &TarGzipEncoder{maxSourceSize: limit}
	case FormatSevenZip:
		return &SevenZipEncoder{maxSourceSize: limit}
	default:
		return NoneEncoder{}
	}
}

// openSource открывает исходный файл. Отсутствие, отказ в доступе
// и директории приводятся к ErrSourceMissing.
func openSource(absPath string) (*os.File, fs.FileInfo, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrSourceMissing, absPath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrSourceMissing, absPath, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s не является обычным файлом", ErrSourceMissing, absPath)
	}
	return f, info, nil
}

// openLimitedSource открывает источник для архивации и проверяет лимит
// до чтения. Возвращённый reader проверяет ctx и лимит при каждом чтении.
func openLimitedSource(ctx context.Context, absPath string, limit int64) (*os.File, fs.FileInfo, io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}

	f, info, err := openSource(absPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if info.Size() > limit {
		f.Close()
		return nil, nil, nil, fmt.Errorf("%w: %d байт, лимит %d", ErrSourceTooLarge, info.Size(), limit)
	}
	return f, info, &sourceReader{ctx: ctx, r: f, left: limit}, nil
}

// sourceReader прерывает чтение при отмене ctx и при превышении лимита
// (файл мог вырасти после Stat).
type sourceReader struct {
	ctx  context.Context
	r    io.Reader
	left int64
}

func (s *sourceReader) Read(p []byte) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}

	if s.left <= 0 {
		var probe [1]byte
		n, err := s.r.Read(probe[:])
		if n > 0 {
			return 0, ErrSourceTooLarge
		}
		return 0, err
	}

	if int64(len(p)) > s.left {
		p = p[:s.left]
	}
	n, err := s.r.Read(p)
	s.left -= int64(n)
	return n, err
}
