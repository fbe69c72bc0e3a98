// routes.go — маршруты API и привязка query-параметров.
// Повторяет структуру chi-server, которую генерирует oapi-codegen:
// ServerInterface, обёртка с разбором параметров и HandlerFromMux.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/bigkaa/goartstore/filevault/internal/api/errors"
)

// ListFilesParams — параметры GET /api/v1/files/list.
type ListFilesParams struct {
	// Skip — количество пропускаемых записей
	Skip *int
	// Offset — синоним Skip
	Offset *int
	// Limit — размер страницы
	Limit *int
}

// DownloadFileParams — параметры GET /api/v1/files/download.
type DownloadFileParams struct {
	// Path — UUID файла или канонический путь
	Path string
	// CompressionType — none, zip, tar, 7z
	CompressionType *string
}

// ServerInterface — обработчики всех endpoints filevault.
type ServerInterface interface {
	// GET /health/live
	HealthLive(w http.ResponseWriter, r *http.Request)
	// GET /health/ready
	HealthReady(w http.ResponseWriter, r *http.Request)
	// GET /metrics
	GetMetrics(w http.ResponseWriter, r *http.Request)
	// GET /api/v1/openapi.yaml
	GetOpenAPISpec(w http.ResponseWriter, r *http.Request)
	// GET /api/v1/ping
	Ping(w http.ResponseWriter, r *http.Request)
	// POST /api/v1/users/register
	RegisterUser(w http.ResponseWriter, r *http.Request)
	// POST /api/v1/users/auth
	AuthenticateUser(w http.ResponseWriter, r *http.Request)
	// POST /api/v1/files/upload
	UploadFile(w http.ResponseWriter, r *http.Request)
	// GET /api/v1/files/list
	ListFiles(w http.ResponseWriter, r *http.Request, params ListFilesParams)
	// GET /api/v1/files/download
	DownloadFile(w http.ResponseWriter, r *http.Request, params DownloadFileParams)
	// POST /api/v1/files/search
	SearchFiles(w http.ResponseWriter, r *http.Request)
}

// ServerInterfaceWrapper разбирает параметры и вызывает ServerInterface.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

// ListFiles разбирает query-параметры списка файлов.
func (siw *ServerInterfaceWrapper) ListFiles(w http.ResponseWriter, r *http.Request) {
	var params ListFilesParams
	query := r.URL.Query()

	if err := runtime.BindQueryParameter("form", true, false, "skip", query, &params.Skip); err != nil {
		invalidParam(w, "skip", err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", query, &params.Offset); err != nil {
		invalidParam(w, "offset", err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &params.Limit); err != nil {
		invalidParam(w, "limit", err)
		return
	}

	siw.Handler.ListFiles(w, r, params)
}

// DownloadFile разбирает query-параметры скачивания.
func (siw *ServerInterfaceWrapper) DownloadFile(w http.ResponseWriter, r *http.Request) {
	var params DownloadFileParams
	query := r.URL.Query()

	if err := runtime.BindQueryParameter("form", true, true, "path", query, &params.Path); err != nil {
		invalidParam(w, "path", err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "compression_type", query, &params.CompressionType); err != nil {
		invalidParam(w, "compression_type", err)
		return
	}

	siw.Handler.DownloadFile(w, r, params)
}

func invalidParam(w http.ResponseWriter, name string, err error) {
	errors.ValidationError(w, fmt.Sprintf("Некорректный параметр %s: %s", name, err.Error()))
}

// HandlerFromMux регистрирует все маршруты на router.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	wrapper := ServerInterfaceWrapper{Handler: si}

	r.Get("/health/live", si.HealthLive)
	r.Get("/health/ready", si.HealthReady)
	r.Get("/metrics", si.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/openapi.yaml", si.GetOpenAPISpec)
		r.Get("/ping", si.Ping)

		r.Post("/users/register", si.RegisterUser)
		r.Post("/users/auth", si.AuthenticateUser)

		r.Post("/files/upload", si.UploadFile)
		r.Get("/files/list", wrapper.ListFiles)
		r.Get("/files/download", wrapper.DownloadFile)
		r.Post("/files/search", si.SearchFiles)
	})

	return r
}
