// upload.go — приём загружаемых файлов.
// Порядок: разрешение пути → временный файл → запись метаданных →
// атомарная публикация. При ошибке выполняется компенсация.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/repository"
	"github.com/bigkaa/goartstore/filevault/internal/storage/filestore"
)

// Prometheus-метрики upload.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_uploads_total",
		Help: "Общее количество загрузок (по статусу).",
	}, []string{"status"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_upload_bytes_total",
		Help: "Общее количество байт успешно загруженных файлов.",
	})
)

// UploadRequest — параметры загрузки.
type UploadRequest struct {
	// Path — запрошенный путь (файл или директория)
	Path string
	// Filename — имя файла из multipart-части
	Filename string
	// Body — поток данных; принадлежит вызову Ingest
	Body io.Reader
	// OwnerID — ID загружающего пользователя
	OwnerID string
}

// UploadService — сервис приёма файлов.
type UploadService struct {
	store    *filestore.FileStore
	fileRepo repository.FileRepository
	cache    *CacheService
	logger   *slog.Logger
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(
	store *filestore.FileStore,
	fileRepo repository.FileRepository,
	cache *CacheService,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		store:    store,
		fileRepo: fileRepo,
		cache:    cache,
		logger:   logger.With(slog.String("component", "upload_service")),
	}
}

// Ingest сохраняет файл и его метаданные.
//
// Поток:
//  1. Resolve пути
//  2. Запись во временный файл рядом с целевым
//  3. Create записи (уникальность path выбирает одного победителя)
//  4. Rename временного файла на место
//
// Опубликованный файл всегда соответствует сохранённой записи.
func (s *UploadService) Ingest(ctx context.Context, req UploadRequest) (*model.FileRecord, error) {
	record, status, err := s.ingest(ctx, req)
	uploadsTotal.WithLabelValues(status).Inc()
	if err != nil {
		return nil, err
	}
	uploadBytesTotal.Add(float64(record.Size))
	return record, nil
}

func (s *UploadService) ingest(ctx context.Context, req UploadRequest) (*model.FileRecord, string, error) {
	// 1. Resolve
	target, err := s.store.Resolver().Resolve(req.Path, req.Filename)
	if err != nil {
		if errors.Is(err, filestore.ErrInvalidPath) {
			return nil, "invalid_path", fmt.Errorf("%w: %w", ErrInvalidPath, err)
		}
		s.logger.Error("Ошибка подготовки директории",
			slog.String("path", req.Path),
			slog.String("error", err.Error()),
		)
		return nil, "write_error", fmt.Errorf("%w: %w", ErrUploadWrite, err)
	}

	// 2. Временный файл
	tmp, err := s.store.WriteTemp(ctx, target, req.Body)
	if err != nil {
		s.logger.Warn("Ошибка записи загружаемого файла",
			slog.String("path", target.CanonicalPath),
			slog.String("error", err.Error()),
		)
		return nil, "write_error", fmt.Errorf("%w: %w", ErrUploadWrite, err)
	}

	// 3. Метаданные
	record := &model.FileRecord{
		Name:           target.Name,
		Path:           target.CanonicalPath,
		Size:           tmp.Size,
		IsDownloadable: true,
		OwnerID:        req.OwnerID,
	}
	if err := s.fileRepo.Create(ctx, record); err != nil {
		s.discard(tmp)
		if errors.Is(err, repository.ErrConflict) {
			return nil, "conflict", fmt.Errorf("%w: файл %s уже существует", ErrBadRequest, target.CanonicalPath)
		}
		return nil, "error", fmt.Errorf("сохранение метаданных файла: %w", err)
	}

	// 4. Публикация
	if err := s.store.Publish(tmp, target); err != nil {
		s.logger.Error("Ошибка публикации файла, откат метаданных",
			slog.String("file_id", record.ID),
			slog.String("path", record.Path),
			slog.String("error", err.Error()),
		)
		s.rollback(ctx, record)
		return nil, "write_error", fmt.Errorf("%w: %w", ErrUploadWrite, err)
	}

	s.logger.Info("Файл загружен",
		slog.String("file_id", record.ID),
		slog.String("path", record.Path),
		slog.Int64("size", record.Size),
		slog.String("owner_id", record.OwnerID),
	)
	return record, "success", nil
}

// rollback удаляет запись, для которой не удалось опубликовать файл.
// Выполняется и после отмены запроса.
func (s *UploadService) rollback(ctx context.Context, record *model.FileRecord) {
	defer s.cache.Invalidate(record)

	if err := s.fileRepo.Delete(context.WithoutCancel(ctx), record.ID); err != nil {
		s.logger.Error("Ошибка отката метаданных файла",
			slog.String("file_id", record.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *UploadService) discard(tmp *filestore.TempFile) {
	if err := s.store.Discard(tmp); err != nil {
		s.logger.Warn("Не удалось удалить временный файл",
			slog.String("tmp_path", tmp.Path),
			slog.String("error", err.Error()),
		)
	}
}
