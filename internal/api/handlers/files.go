// files.go — HTTP handlers файловых операций: upload, list, download, search.
package handlers

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/bigkaa/goartstore/filevault/internal/api/errors"
	"github.com/bigkaa/goartstore/filevault/internal/api/middleware"
	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/service"
	"github.com/bigkaa/goartstore/filevault/internal/storage/archive"
)

// multipartMemory — часть multipart-формы, которая держится в памяти.
const multipartMemory = 32 << 20

// fileResponse — JSON-представление файла.
type fileResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	Size           int64     `json:"size"`
	IsDownloadable bool      `json:"is_downloadable"`
	CreatedAt      time.Time `json:"created_at"`
}

// fileListResponse — ответ GET /api/v1/files/list.
type fileListResponse struct {
	AccountID string         `json:"account_id"`
	Skip      int            `json:"skip"`
	Limit     int            `json:"limit"`
	Files     []fileResponse `json:"files"`
}

// searchRequest — тело POST /api/v1/files/search.
type searchRequest struct {
	Options *searchOptions `json:"options" validate:"required"`
}

type searchOptions struct {
	Path      string   `json:"path" validate:"max=2056"`
	Extension string   `json:"extension" validate:"max=128"`
	OrderBy   *orderBy `json:"order_by" validate:"required"`
	Limit     *int     `json:"limit" validate:"omitempty,gte=0"`
}

type orderBy struct {
	Field string `json:"field" validate:"required"`
	Type  string `json:"type" validate:"required"`
}

// searchResponse — ответ POST /api/v1/files/search.
type searchResponse struct {
	Matches []fileResponse `json:"matches"`
}

func toFileResponse(f *model.FileRecord) fileResponse {
	return fileResponse{
		ID:             f.ID,
		Name:           f.Name,
		Path:           f.Path,
		Size:           f.Size,
		IsDownloadable: f.IsDownloadable,
		CreatedAt:      f.CreatedAt,
	}
}

func toFileResponses(files []*model.FileRecord) []fileResponse {
	resp := make([]fileResponse, 0, len(files))
	for _, f := range files {
		resp = append(resp, toFileResponse(f))
	}
	return resp
}

// UploadFile обрабатывает POST /api/v1/files/upload.
// Multipart form: file (обязательно), path (обязательно).
func (h *APIHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isMaxBytesError(err) {
			errors.FileTooLarge(w, "Размер загружаемого файла превышает допустимый")
			return
		}
		errors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		errors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	path := r.FormValue("path")
	if path == "" {
		errors.ValidationError(w, "Поле 'path' обязательно")
		return
	}

	record, err := h.uploads.Ingest(r.Context(), service.UploadRequest{
		Path:     path,
		Filename: header.Filename,
		Body:     file,
		OwnerID:  userID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toFileResponse(record))
}

// ListFiles обрабатывает GET /api/v1/files/list.
// offset принимается как синоним skip.
func (h *APIHandler) ListFiles(w http.ResponseWriter, r *http.Request, params ListFilesParams) {
	userID := middleware.UserIDFromContext(r.Context())

	var skip, limit int
	switch {
	case params.Skip != nil:
		skip = *params.Skip
	case params.Offset != nil:
		skip = *params.Offset
	}
	if params.Limit != nil {
		limit = *params.Limit
	}

	result, err := h.files.List(r.Context(), userID, skip, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, fileListResponse{
		AccountID: result.AccountID,
		Skip:      result.Skip,
		Limit:     result.Limit,
		Files:     toFileResponses(result.Files),
	})
}

// DownloadFile обрабатывает GET /api/v1/files/download.
// Поддерживает Range и If-Modified-Since через http.ServeContent.
func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request, params DownloadFileParams) {
	format := archive.FormatNone
	if params.CompressionType != nil {
		format = archive.ParseFormat(*params.CompressionType)
	}

	payload, err := h.downloads.Prepare(r.Context(), service.DownloadRequest{
		Value:       params.Path,
		Format:      format,
		RequesterID: middleware.UserIDFromContext(r.Context()),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer payload.Close()

	w.Header().Set("Content-Type", payload.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(payload.Filename))
	http.ServeContent(w, r, payload.Filename, payload.ModTime, payload.Content)
}

// SearchFiles обрабатывает POST /api/v1/files/search.
func (h *APIHandler) SearchFiles(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		errors.ValidationError(w, validationMessage(err))
		return
	}

	query := service.SearchQuery{
		Path:        req.Options.Path,
		Extension:   req.Options.Extension,
		OrderField:  req.Options.OrderBy.Field,
		OrderType:   req.Options.OrderBy.Type,
		RequesterID: middleware.UserIDFromContext(r.Context()),
	}
	if req.Options.Limit != nil {
		query.Limit = *req.Options.Limit
	}

	files, err := h.files.Search(r.Context(), query)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Matches: toFileResponses(files)})
}

// contentDisposition формирует заголовок attachment.
// Не-ASCII имена кодируются по RFC 2231.
func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
