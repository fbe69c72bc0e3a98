package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/filevault/internal/api/middleware"
	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/service"
	"github.com/bigkaa/goartstore/filevault/internal/storage/archive"
)

const (
	testUserID = "4f6c1a52-8d7e-4b3a-9c21-0e5d7f3b2a10"
	testFileID = "9b2e4d61-3c5a-4f7e-8a90-1d2c3b4a5e6f"
)

var testCreatedAt = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

type mockDownloader struct {
	prepareFn func(ctx context.Context, req service.DownloadRequest) (*archive.Payload, error)
}

func (m *mockDownloader) Prepare(ctx context.Context, req service.DownloadRequest) (*archive.Payload, error) {
	return m.prepareFn(ctx, req)
}

type mockUploader struct {
	ingestFn func(ctx context.Context, req service.UploadRequest) (*model.FileRecord, error)
}

func (m *mockUploader) Ingest(ctx context.Context, req service.UploadRequest) (*model.FileRecord, error) {
	return m.ingestFn(ctx, req)
}

type mockFiles struct {
	listFn   func(ctx context.Context, ownerID string, skip, limit int) (*service.ListResult, error)
	searchFn func(ctx context.Context, q service.SearchQuery) ([]*model.FileRecord, error)
}

func (m *mockFiles) List(ctx context.Context, ownerID string, skip, limit int) (*service.ListResult, error) {
	return m.listFn(ctx, ownerID, skip, limit)
}

func (m *mockFiles) Search(ctx context.Context, q service.SearchQuery) ([]*model.FileRecord, error) {
	return m.searchFn(ctx, q)
}

type mockUsers struct {
	registerFn     func(ctx context.Context, username, password string) (*model.User, error)
	authenticateFn func(ctx context.Context, username, password string) (*service.Token, error)
}

func (m *mockUsers) Register(ctx context.Context, username, password string) (*model.User, error) {
	return m.registerFn(ctx, username, password)
}

func (m *mockUsers) Authenticate(ctx context.Context, username, password string) (*service.Token, error) {
	return m.authenticateFn(ctx, username, password)
}

type mockChecker struct {
	status, message string
}

func (m mockChecker) CheckReady() (string, string) {
	return m.status, m.message
}

type mockTimer struct {
	elapsed time.Duration
	err     error
}

func (m mockTimer) AccessTime(context.Context) (time.Duration, error) {
	return m.elapsed, m.err
}

// testDeps — зависимости тестового обработчика.
type testDeps struct {
	downloads     *mockDownloader
	uploads       *mockUploader
	files         *mockFiles
	users         *mockUsers
	health        *HealthHandler
	maxUploadSize int64
	logOut        io.Writer
}

func newTestDeps() *testDeps {
	return &testDeps{
		downloads:     &mockDownloader{},
		uploads:       &mockUploader{},
		files:         &mockFiles{},
		users:         &mockUsers{},
		health:        NewHealthHandler(mockChecker{status: "ok"}, mockTimer{elapsed: 2 * time.Millisecond}),
		maxUploadSize: 1 << 20,
	}
}

// router собирает маршруты с аутентифицированным пользователем testUserID.
func (d *testDeps) router() http.Handler {
	out := d.logOut
	if out == nil {
		out = io.Discard
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := NewAPIHandler(d.health, d.downloads, d.uploads, d.files, d.users, d.maxUploadSize, logger)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.WithClaims(r.Context(), &middleware.AuthClaims{UserID: testUserID, Username: "alice"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	return HandlerFromMux(h, r)
}

func testRecord() *model.FileRecord {
	return &model.FileRecord{
		ID:             testFileID,
		Name:           "report.txt",
		Path:           "/docs/report.txt",
		Size:           5,
		IsDownloadable: true,
		OwnerID:        testUserID,
		CreatedAt:      testCreatedAt,
	}
}
