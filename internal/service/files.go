// files.go — список файлов пользователя и поиск.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/repository"
)

// Параметры пагинации и поиска.
const (
	DefaultLimit = 10
	MaxLimit     = 1000
)

// Prometheus-метрики поиска.
var (
	searchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_search_total",
		Help: "Общее количество поисковых запросов.",
	})
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fv_search_duration_seconds",
		Help:    "Длительность поисковых запросов.",
		Buckets: prometheus.DefBuckets,
	})
)

// ListResult — страница файлов пользователя.
type ListResult struct {
	AccountID string
	Skip      int
	Limit     int
	Files     []*model.FileRecord
}

// SearchQuery — параметры поиска.
type SearchQuery struct {
	// Path — префикс пути
	Path string
	// Extension — окончание имени файла
	Extension string
	// OrderField — поле сортировки (name, path, size, created_at)
	OrderField string
	// OrderType — asc или desc
	OrderType string
	// Limit — максимальное количество результатов (0 — по умолчанию)
	Limit int
	// RequesterID — ID пользователя, выполняющего поиск
	RequesterID string
}

// FileService — сервис списка и поиска файлов.
type FileService struct {
	fileRepo  repository.FileRepository
	ownerOnly bool
	logger    *slog.Logger
}

// NewFileService создаёт сервис файлов.
// ownerOnly ограничивает поиск файлами запрашивающего пользователя.
func NewFileService(fileRepo repository.FileRepository, ownerOnly bool, logger *slog.Logger) *FileService {
	return &FileService{
		fileRepo:  fileRepo,
		ownerOnly: ownerOnly,
		logger:    logger.With(slog.String("component", "file_service")),
	}
}

// List возвращает файлы владельца, новые первыми.
func (s *FileService) List(ctx context.Context, ownerID string, skip, limit int) (*ListResult, error) {
	if skip < 0 {
		skip = 0
	}
	limit = clampLimit(limit)

	files, err := s.fileRepo.ListByOwner(ctx, ownerID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("получение списка файлов: %w", err)
	}

	return &ListResult{AccountID: ownerID, Skip: skip, Limit: limit, Files: files}, nil
}

// Search ищет файлы по префиксу пути и окончанию имени.
func (s *FileService) Search(ctx context.Context, q SearchQuery) ([]*model.FileRecord, error) {
	start := time.Now()
	searchTotal.Inc()

	order := strings.ToLower(q.OrderType)
	if order != repository.SortAsc && order != repository.SortDesc {
		return nil, fmt.Errorf("%w: тип сортировки %q, допустимые: asc, desc", ErrBadRequest, q.OrderType)
	}
	if !repository.IsSortableField(q.OrderField) {
		return nil, fmt.Errorf("%w: поле сортировки %q, допустимые: %s",
			ErrBadRequest, q.OrderField, strings.Join(repository.SortableFields(), ", "))
	}

	params := repository.SearchParams{
		PathPrefix: q.Path,
		NameSuffix: q.Extension,
		SortBy:     q.OrderField,
		SortOrder:  order,
		Limit:      clampLimit(q.Limit),
	}
	if s.ownerOnly {
		owner := q.RequesterID
		params.OwnerID = &owner
	}

	files, err := s.fileRepo.Search(ctx, params)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidSortField) {
			return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		return nil, fmt.Errorf("поиск файлов: %w", err)
	}

	duration := time.Since(start)
	searchDuration.Observe(duration.Seconds())

	s.logger.Debug("Поиск выполнен",
		slog.String("path", q.Path),
		slog.String("extension", q.Extension),
		slog.Int("returned", len(files)),
		slog.Duration("duration", duration),
	)
	return files, nil
}

// clampLimit применяет значение по умолчанию и верхнюю границу.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
