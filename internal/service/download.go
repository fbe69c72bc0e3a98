// download.go — подготовка ответа на скачивание файла.
// Pipeline: запись (кэш/БД) → политика доступа → путь на диске →
// кодировщик архива → Payload. Содержимое всегда читается с диска.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/repository"
	"github.com/bigkaa/goartstore/filevault/internal/storage/archive"
)

// Prometheus-метрики download.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_downloads_total",
		Help: "Общее количество запросов на скачивание (по формату и статусу).",
	}, []string{"format", "status"})

	downloadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fv_download_prepare_duration_seconds",
		Help:    "Длительность подготовки ответа (поиск записи и сборка архива).",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"format"})

	downloadBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_download_bytes_total",
		Help: "Общий размер подготовленных ответов на скачивание.",
	}, []string{"format"})

	activeDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fv_active_downloads",
		Help: "Количество скачиваний в процессе подготовки.",
	})
)

// PathLocator — преобразование канонического пути в путь на диске.
// Реализуется filestore.Resolver.
type PathLocator interface {
	Abs(canonicalPath string) (string, error)
}

// DownloadPolicy — политика доступа к скачиванию.
type DownloadPolicy struct {
	// OwnerOnly — скачивать может только владелец
	OwnerOnly bool
	// RespectFlag — учитывать is_downloadable
	RespectFlag bool
}

// DownloadRequest — параметры скачивания.
type DownloadRequest struct {
	// Value — UUID файла или его путь
	Value string
	// Format — тип упаковки
	Format archive.Format
	// RequesterID — ID пользователя, выполняющего запрос
	RequesterID string
}

// DownloadService — сервис подготовки скачиваний.
type DownloadService struct {
	fileRepo repository.FileRepository
	cache    *CacheService
	locator  PathLocator
	slots    *semaphore.Weighted
	opts     archive.Options
	policy   DownloadPolicy
	logger   *slog.Logger
}

// NewDownloadService создаёт сервис скачивания.
// workers — максимальное количество одновременных сборок архивов.
func NewDownloadService(
	fileRepo repository.FileRepository,
	cache *CacheService,
	locator PathLocator,
	workers int,
	opts archive.Options,
	policy DownloadPolicy,
	logger *slog.Logger,
) *DownloadService {
	if workers < 1 {
		workers = 1
	}
	return &DownloadService{
		fileRepo: fileRepo,
		cache:    cache,
		locator:  locator,
		slots:    semaphore.NewWeighted(int64(workers)),
		opts:     opts,
		policy:   policy,
		logger:   logger.With(slog.String("component", "download_service")),
	}
}

// Prepare находит файл и формирует тело ответа в запрошенном формате.
// Вызывающий код обязан закрыть Payload.
func (ds *DownloadService) Prepare(ctx context.Context, req DownloadRequest) (*archive.Payload, error) {
	start := time.Now()
	activeDownloads.Inc()
	defer activeDownloads.Dec()

	format := req.Format.String()

	payload, status, err := ds.prepare(ctx, req)
	downloadsTotal.WithLabelValues(format, status).Inc()
	if err != nil {
		return nil, err
	}

	downloadDuration.WithLabelValues(format).Observe(time.Since(start).Seconds())
	downloadBytesTotal.WithLabelValues(format).Add(float64(payload.Size))
	return payload, nil
}

// prepare возвращает Payload и статус для метрик.
func (ds *DownloadService) prepare(ctx context.Context, req DownloadRequest) (*archive.Payload, string, error) {
	record, err := ds.getFileRecord(ctx, req.Value)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, "not_found", err
		}
		return nil, "error", err
	}

	if err := ds.checkAccess(record, req.RequesterID); err != nil {
		return nil, "forbidden", err
	}

	absPath, err := ds.locator.Abs(record.Path)
	if err != nil {
		ds.logger.Error("Некорректный путь в метаданных",
			slog.String("file_id", record.ID),
			slog.String("path", record.Path),
			slog.String("error", err.Error()),
		)
		return nil, "invalid_path", fmt.Errorf("%w: некорректный путь в записи %s", ErrSourceFileMissing, record.ID)
	}

	enc := archive.Select(req.Format, ds.opts)
	if enc.Format().Compresses() {
		if err := ds.slots.Acquire(ctx, 1); err != nil {
			return nil, "cancelled", err
		}
		defer ds.slots.Release(1)
	}

	payload, err := enc.Encode(ctx, absPath)
	switch {
	case err == nil:
		ds.logger.Debug("Скачивание подготовлено",
			slog.String("file_id", record.ID),
			slog.String("format", enc.Format().String()),
			slog.Int64("size", payload.Size),
		)
		return payload, "success", nil

	case errors.Is(err, archive.ErrSourceMissing):
		// Метаданные есть, файла нет — рассогласование хранилища
		ds.logger.Error("Файл отсутствует на диске",
			slog.String("file_id", record.ID),
			slog.String("path", record.Path),
			slog.String("error", err.Error()),
		)
		return nil, "source_missing", fmt.Errorf("%w: %s", ErrSourceFileMissing, record.Path)

	case errors.Is(err, archive.ErrSourceTooLarge):
		return nil, "too_large", fmt.Errorf("%w: %s", ErrSourceTooLarge, record.Path)

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, "cancelled", err

	default:
		ds.logger.Error("Ошибка сборки архива",
			slog.String("file_id", record.ID),
			slog.String("format", enc.Format().String()),
			slog.String("error", err.Error()),
		)
		return nil, "error", fmt.Errorf("%w: %w", ErrArchive, err)
	}
}

// checkAccess применяет политику скачивания.
func (ds *DownloadService) checkAccess(record *model.FileRecord, requesterID string) error {
	if ds.policy.OwnerOnly && !record.IsOwnedBy(requesterID) {
		return fmt.Errorf("%w: файл принадлежит другому пользователю", ErrForbidden)
	}
	if ds.policy.RespectFlag && !record.IsDownloadable {
		return fmt.Errorf("%w: скачивание файла отключено", ErrForbidden)
	}
	return nil
}

// getFileRecord получает FileRecord из кэша или БД.
func (ds *DownloadService) getFileRecord(ctx context.Context, value string) (*model.FileRecord, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: не указан путь или id файла", ErrBadRequest)
	}

	key := lookupKey(value)
	if record, ok := ds.cache.Get(key); ok {
		return record, nil
	}

	record, err := ds.fileRepo.GetByIDOrPath(ctx, value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, value)
		}
		return nil, fmt.Errorf("получение записи файла: %w", err)
	}

	ds.cache.Set(key, record)
	return record, nil
}

// lookupKey приводит UUID к канонической форме, чтобы запись
// под ключом id можно было инвалидировать по record.ID.
func lookupKey(value string) string {
	if u, err := uuid.Parse(value); err == nil && u.Version() == 4 {
		return u.String()
	}
	return value
}
