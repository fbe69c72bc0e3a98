// handler.go — основной обработчик API, реализующий ServerInterface.
// Объединяет health и бизнес-обработчики, сопоставляет ошибки сервисов
// с HTTP-ответами.
package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/goartstore/filevault/internal/api/errors"
	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/service"
	"github.com/bigkaa/goartstore/filevault/internal/storage/archive"
)

// Downloader — подготовка скачивания (service.DownloadService).
type Downloader interface {
	Prepare(ctx context.Context, req service.DownloadRequest) (*archive.Payload, error)
}

// Uploader — приём файла (service.UploadService).
type Uploader interface {
	Ingest(ctx context.Context, req service.UploadRequest) (*model.FileRecord, error)
}

// FileQuerier — список и поиск (service.FileService).
type FileQuerier interface {
	List(ctx context.Context, ownerID string, skip, limit int) (*service.ListResult, error)
	Search(ctx context.Context, q service.SearchQuery) ([]*model.FileRecord, error)
}

// UserManager — регистрация и выпуск токенов (service.UserService).
type UserManager interface {
	Register(ctx context.Context, username, password string) (*model.User, error)
	Authenticate(ctx context.Context, username, password string) (*service.Token, error)
}

// APIHandler — основной обработчик API filevault.
type APIHandler struct {
	health        *HealthHandler
	downloads     Downloader
	uploads       Uploader
	files         FileQuerier
	users         UserManager
	validate      *validator.Validate
	maxUploadSize int64
	logger        *slog.Logger
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ ServerInterface = (*APIHandler)(nil)

// NewAPIHandler создаёт основной обработчик API.
// maxUploadSize — ограничение тела запроса загрузки в байтах.
func NewAPIHandler(
	health *HealthHandler,
	downloads Downloader,
	uploads Uploader,
	files FileQuerier,
	users UserManager,
	maxUploadSize int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:        health,
		downloads:     downloads,
		uploads:       uploads,
		files:         files,
		users:         users,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// GetOpenAPISpec — OpenAPI-контракт.
func (h *APIHandler) GetOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	h.health.GetOpenAPISpec(w, r)
}

// Ping — время доступа к базе данных.
func (h *APIHandler) Ping(w http.ResponseWriter, r *http.Request) {
	h.health.Ping(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError сопоставляет ошибку сервисного слоя с HTTP-ответом.
// Внутренние ошибки логируются, клиент получает общее сообщение.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isMaxBytesError(err):
		errors.FileTooLarge(w, "Размер загружаемого файла превышает допустимый")
	case stderrors.Is(err, service.ErrInvalidPath):
		errors.InvalidPath(w, err.Error())
	case stderrors.Is(err, service.ErrFileNotFound), stderrors.Is(err, service.ErrSourceFileMissing):
		errors.NotFound(w, "Файл не найден")
	case stderrors.Is(err, service.ErrSourceTooLarge):
		errors.FileTooLarge(w, "Файл слишком велик для упаковки в архив")
	case stderrors.Is(err, service.ErrUploadWrite):
		errors.UploadFailed(w, "Не удалось сохранить файл")
	case stderrors.Is(err, service.ErrBadRequest):
		errors.ValidationError(w, err.Error())
	case stderrors.Is(err, service.ErrUnauthorized):
		errors.Unauthorized(w, "Неверные учётные данные")
	case stderrors.Is(err, service.ErrForbidden):
		errors.Forbidden(w, "Доступ к файлу запрещён")
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		h.logger.Debug("Запрос прерван",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		// клиент отключился, отвечать некому
		if r.Context().Err() != nil {
			return
		}
		errors.ServiceUnavailable(w, "Превышено время обработки запроса")
	default:
		h.logger.Error("Внутренняя ошибка",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		errors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// isMaxBytesError проверяет превышение лимита http.MaxBytesReader.
func isMaxBytesError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return stderrors.As(err, &maxBytesErr)
}
