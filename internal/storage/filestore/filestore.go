// Пакет filestore — размещение загружаемых файлов на диске.
// Resolver отвечает за безопасные пути внутри корня хранилища,
// FileStore — за запись во временный файл и атомарную публикацию.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyChunkSize — размер блока копирования при записи загрузки.
const CopyChunkSize = 1024

// FileStore — управление физическими файлами в корне хранилища.
type FileStore struct {
	resolver *Resolver
}

// TempFile — записанный, но ещё не опубликованный файл.
type TempFile struct {
	// Path — путь временного файла
	Path string
	// Size — количество записанных байт
	Size int64
}

// New создаёт FileStore. Корневая директория создаётся, если её нет.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	resolver, err := NewResolver(dataDir)
	if err != nil {
		return nil, err
	}
	return &FileStore{resolver: resolver}, nil
}

// Resolver возвращает резолвер путей хранилища.
func (fs *FileStore) Resolver() *Resolver {
	return fs.resolver
}

// DataDir возвращает абсолютный корень хранилища.
func (fs *FileStore) DataDir() string {
	return fs.resolver.Root()
}

// WriteTemp копирует src во временный файл в директории target
// блоками по CopyChunkSize и делает fsync. Между блоками проверяется ctx.
// При любой ошибке временный файл удаляется.
func (fs *FileStore) WriteTemp(ctx context.Context, target Target, src io.Reader) (*TempFile, error) {
	f, err := os.CreateTemp(filepath.Dir(target.AbsolutePath), ".upload-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	size, err := copyChunked(ctx, f, src)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи %s: %w", target.CanonicalPath, err)
	}

	return &TempFile{Path: tmpPath, Size: size}, nil
}

// Publish атомарно переносит временный файл на место target.
// При ошибке временный файл удаляется.
func (fs *FileStore) Publish(tmp *TempFile, target Target) error {
	if err := os.Rename(tmp.Path, target.AbsolutePath); err != nil {
		os.Remove(tmp.Path)
		return fmt.Errorf("ошибка атомарного переименования в %s: %w", target.CanonicalPath, err)
	}
	return nil
}

// Discard удаляет временный файл. Отсутствие файла ошибкой не считается.
func (fs *FileStore) Discard(tmp *TempFile) error {
	if tmp == nil {
		return nil
	}
	if err := os.Remove(tmp.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка удаления временного файла: %w", err)
	}
	return nil
}

// copyChunked копирует src в dst блоками фиксированного размера.
func copyChunked(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, CopyChunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			w, err := dst.Write(buf[:n])
			written += int64(w)
			if err != nil {
				return written, err
			}
			if w != n {
				return written, io.ErrShortWrite
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
