package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/repository"
)

func TestFileService_ListDefaults(t *testing.T) {
	tests := []struct {
		name      string
		skip      int
		limit     int
		wantSkip  int
		wantLimit int
	}{
		{"значения по умолчанию", 0, 0, 0, DefaultLimit},
		{"отрицательный skip", -5, 20, 0, 20},
		{"лимит сверху", 3, 100000, 3, MaxLimit},
		{"отрицательный лимит", 0, -1, 0, DefaultLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockFileRepo{
				listByOwnerFn: func(_ context.Context, ownerID string, skip, limit int) ([]*model.FileRecord, error) {
					if ownerID != testOwnerID {
						t.Errorf("ownerID = %q", ownerID)
					}
					if skip != tt.wantSkip || limit != tt.wantLimit {
						t.Errorf("skip=%d limit=%d, ожидалось %d и %d", skip, limit, tt.wantSkip, tt.wantLimit)
					}
					return []*model.FileRecord{{ID: "f1"}}, nil
				},
			}
			svc := NewFileService(repo, false, discardLogger())

			res, err := svc.List(context.Background(), testOwnerID, tt.skip, tt.limit)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if res.AccountID != testOwnerID || res.Skip != tt.wantSkip || res.Limit != tt.wantLimit {
				t.Errorf("неожиданный результат: %+v", res)
			}
			if len(res.Files) != 1 {
				t.Errorf("len(Files) = %d", len(res.Files))
			}
		})
	}
}

func TestFileService_Search(t *testing.T) {
	var got repository.SearchParams
	repo := &mockFileRepo{
		searchFn: func(_ context.Context, params repository.SearchParams) ([]*model.FileRecord, error) {
			got = params
			return []*model.FileRecord{{ID: "f1"}, {ID: "f2"}}, nil
		},
	}
	svc := NewFileService(repo, false, discardLogger())

	files, err := svc.Search(context.Background(), SearchQuery{
		Path: "/docs", Extension: ".txt", OrderField: "created_at", OrderType: "DESC", RequesterID: testOwnerID,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("len = %d, ожидалось 2", len(files))
	}
	if got.PathPrefix != "/docs" || got.NameSuffix != ".txt" {
		t.Errorf("фильтры: %+v", got)
	}
	if got.SortBy != "created_at" || got.SortOrder != repository.SortDesc {
		t.Errorf("сортировка: %s %s", got.SortBy, got.SortOrder)
	}
	if got.Limit != DefaultLimit {
		t.Errorf("Limit = %d, ожидался %d", got.Limit, DefaultLimit)
	}
	if got.OwnerID != nil {
		t.Error("без ограничения по владельцу OwnerID должен быть nil")
	}
}

func TestFileService_SearchOwnerScope(t *testing.T) {
	var got repository.SearchParams
	repo := &mockFileRepo{
		searchFn: func(_ context.Context, params repository.SearchParams) ([]*model.FileRecord, error) {
			got = params
			return nil, nil
		},
	}
	svc := NewFileService(repo, true, discardLogger())

	_, err := svc.Search(context.Background(), SearchQuery{
		OrderField: "name", OrderType: "asc", Limit: 5, RequesterID: testOwnerID,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got.OwnerID == nil || *got.OwnerID != testOwnerID {
		t.Errorf("OwnerID = %v, ожидался %s", got.OwnerID, testOwnerID)
	}
	if got.Limit != 5 {
		t.Errorf("Limit = %d, ожидался 5", got.Limit)
	}
}

func TestFileService_SearchValidation(t *testing.T) {
	repo := &mockFileRepo{
		searchFn: func(context.Context, repository.SearchParams) ([]*model.FileRecord, error) {
			t.Error("Search репозитория не должен вызываться")
			return nil, nil
		},
	}
	svc := NewFileService(repo, false, discardLogger())

	tests := []struct {
		name  string
		query SearchQuery
	}{
		{"неизвестный тип", SearchQuery{OrderField: "name", OrderType: "random"}},
		{"пустой тип", SearchQuery{OrderField: "name"}},
		{"неизвестное поле", SearchQuery{OrderField: "password_hash", OrderType: "asc"}},
		{"SQL в поле", SearchQuery{OrderField: "name; DROP TABLE files", OrderType: "asc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Search(context.Background(), tt.query); !errors.Is(err, ErrBadRequest) {
				t.Errorf("ожидалась ErrBadRequest, получено %v", err)
			}
		})
	}
}

func TestFileService_SearchRepositoryErrors(t *testing.T) {
	repo := &mockFileRepo{
		searchFn: func(context.Context, repository.SearchParams) ([]*model.FileRecord, error) {
			return nil, fmt.Errorf("%w: x", repository.ErrInvalidSortField)
		},
	}
	svc := NewFileService(repo, false, discardLogger())

	_, err := svc.Search(context.Background(), SearchQuery{OrderField: "name", OrderType: "asc"})
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("ожидалась ErrBadRequest, получено %v", err)
	}

	repo.searchFn = func(context.Context, repository.SearchParams) ([]*model.FileRecord, error) {
		return nil, errors.New("db down")
	}
	_, err = svc.Search(context.Background(), SearchQuery{OrderField: "name", OrderType: "asc"})
	if err == nil || errors.Is(err, ErrBadRequest) {
		t.Errorf("ожидалась внутренняя ошибка, получено %v", err)
	}
}
