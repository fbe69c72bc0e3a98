package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/repository"
)

// mockFileRepo — мок FileRepository для unit-тестов.
type mockFileRepo struct {
	getByIDOrPathFn func(ctx context.Context, value string) (*model.FileRecord, error)
	createFn        func(ctx context.Context, f *model.FileRecord) error
	listByOwnerFn   func(ctx context.Context, ownerID string, skip, limit int) ([]*model.FileRecord, error)
	searchFn        func(ctx context.Context, params repository.SearchParams) ([]*model.FileRecord, error)
	deleteFn        func(ctx context.Context, id string) error
}

func (m *mockFileRepo) GetByIDOrPath(ctx context.Context, value string) (*model.FileRecord, error) {
	if m.getByIDOrPathFn != nil {
		return m.getByIDOrPathFn(ctx, value)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFileRepo) Create(ctx context.Context, f *model.FileRecord) error {
	if m.createFn != nil {
		return m.createFn(ctx, f)
	}
	f.ID = "00000000-0000-4000-8000-000000000001"
	return nil
}

func (m *mockFileRepo) ListByOwner(ctx context.Context, ownerID string, skip, limit int) ([]*model.FileRecord, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, ownerID, skip, limit)
	}
	return []*model.FileRecord{}, nil
}

func (m *mockFileRepo) Search(ctx context.Context, params repository.SearchParams) ([]*model.FileRecord, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, params)
	}
	return []*model.FileRecord{}, nil
}

func (m *mockFileRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// mockUserRepo — мок UserRepository для unit-тестов.
type mockUserRepo struct {
	createFn        func(ctx context.Context, u *model.User) error
	getByUsernameFn func(ctx context.Context, username string) (*model.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, u *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, u)
	}
	u.ID = "00000000-0000-4000-8000-0000000000aa"
	u.IsActive = true
	return nil
}

func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.getByUsernameFn != nil {
		return m.getByUsernameFn(ctx, username)
	}
	return nil, repository.ErrNotFound
}

// discardLogger — логгер без вывода.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
