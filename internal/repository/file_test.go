package repository

import (
	"errors"
	"strings"
	"testing"
)

// --- Тесты buildSearchQuery ---

// TestBuildSearchQuery_Basic проверяет фильтры по префиксу и суффиксу.
func TestBuildSearchQuery_Basic(t *testing.T) {
	query, args, err := buildSearchQuery(SearchParams{
		PathPrefix: "/docs",
		NameSuffix: ".txt",
		SortBy:     "created_at",
		SortOrder:  "desc",
		Limit:      10,
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if !strings.Contains(query, `path LIKE $1`) || !strings.Contains(query, `name LIKE $2`) {
		t.Errorf("query = %q, ожидались условия path/name LIKE", query)
	}
	if !strings.Contains(query, "ORDER BY created_at DESC, id DESC") {
		t.Errorf("query = %q, ожидался ORDER BY created_at DESC", query)
	}
	if !strings.HasSuffix(query, "LIMIT $3") {
		t.Errorf("query = %q, ожидался LIMIT $3", query)
	}
	if len(args) != 3 {
		t.Fatalf("args count = %d, ожидалось 3", len(args))
	}
	if args[0] != "/docs%" {
		t.Errorf("args[0] = %v, ожидался '/docs%%'", args[0])
	}
	if args[1] != "%.txt" {
		t.Errorf("args[1] = %v, ожидался '%%.txt'", args[1])
	}
	if args[2] != 10 {
		t.Errorf("args[2] = %v, ожидался 10", args[2])
	}
}

// TestBuildSearchQuery_Owner проверяет ограничение по владельцу.
func TestBuildSearchQuery_Owner(t *testing.T) {
	owner := "11111111-1111-4111-8111-111111111111"
	query, args, err := buildSearchQuery(SearchParams{
		OwnerID: &owner,
		SortBy:  "name",
		Limit:   5,
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if !strings.Contains(query, "user_id = $3") {
		t.Errorf("query = %q, ожидалось user_id = $3", query)
	}
	if !strings.HasSuffix(query, "LIMIT $4") {
		t.Errorf("query = %q, ожидался LIMIT $4", query)
	}
	if len(args) != 4 || args[2] != owner || args[3] != 5 {
		t.Errorf("args = %v, ожидались [.., .., owner, 5]", args)
	}
}

// TestBuildSearchQuery_EmptyFilters — пустые префикс и суффикс совпадают со всем.
func TestBuildSearchQuery_EmptyFilters(t *testing.T) {
	_, args, err := buildSearchQuery(SearchParams{SortBy: "size", Limit: 1})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if args[0] != "%" || args[1] != "%" {
		t.Errorf("args = %v, ожидались шаблоны '%%'", args[:2])
	}
}

// TestBuildSearchQuery_EscapesWildcards проверяет экранирование % и _ в фильтрах.
func TestBuildSearchQuery_EscapesWildcards(t *testing.T) {
	_, args, err := buildSearchQuery(SearchParams{
		PathPrefix: "/100%_done",
		NameSuffix: `.t\xt`,
		SortBy:     "path",
		Limit:      1,
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if args[0] != `/100\%\_done%` {
		t.Errorf("args[0] = %v, ожидался экранированный префикс", args[0])
	}
	if args[1] != `%.t\\xt` {
		t.Errorf("args[1] = %v, ожидался экранированный суффикс", args[1])
	}
}

// --- Тесты buildOrderBy ---

// TestBuildOrderBy_Whitelist проверяет допустимые поля.
func TestBuildOrderBy_Whitelist(t *testing.T) {
	tests := []struct {
		sortBy, sortOrder, want string
	}{
		{"created_at", "desc", "ORDER BY created_at DESC, id DESC"},
		{"created_at", "asc", "ORDER BY created_at ASC, id ASC"},
		{"name", "ASC", "ORDER BY name ASC, id ASC"},
		{"size", "", "ORDER BY size DESC, id DESC"},
		{"path", "sideways", "ORDER BY path DESC, id DESC"},
	}
	for _, tt := range tests {
		got, err := buildOrderBy(tt.sortBy, tt.sortOrder)
		if err != nil {
			t.Errorf("buildOrderBy(%q, %q): неожиданная ошибка %v", tt.sortBy, tt.sortOrder, err)
			continue
		}
		if got != tt.want {
			t.Errorf("buildOrderBy(%q, %q) = %q, ожидалось %q", tt.sortBy, tt.sortOrder, got, tt.want)
		}
	}
}

// TestBuildOrderBy_RejectsInjection — поле вне whitelist отклоняется, а не подставляется.
func TestBuildOrderBy_RejectsInjection(t *testing.T) {
	for _, field := range []string{
		"", "id", "password_hash", "created_at; DROP TABLE files", "name DESC, (SELECT 1)", "CREATED_AT",
	} {
		got, err := buildOrderBy(field, "asc")
		if !errors.Is(err, ErrInvalidSortField) {
			t.Errorf("buildOrderBy(%q): ожидалась ErrInvalidSortField, получено %q, %v", field, got, err)
		}
	}
}

// TestIsSortableField проверяет согласованность whitelist и SortableFields.
func TestIsSortableField(t *testing.T) {
	for _, f := range SortableFields() {
		if !IsSortableField(f) {
			t.Errorf("поле %q из SortableFields() не проходит IsSortableField", f)
		}
	}
	if IsSortableField("user_id") {
		t.Error("user_id не должно быть сортируемым полем")
	}
}

// --- Тесты idArg ---

func TestIDArg(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  any
	}{
		{"uuid v4", "3f1e2d4c-5b6a-4978-8a1b-2c3d4e5f6a7b", "3f1e2d4c-5b6a-4978-8a1b-2c3d4e5f6a7b"},
		{"uuid v4 верхний регистр", "3F1E2D4C-5B6A-4978-8A1B-2C3D4E5F6A7B", "3f1e2d4c-5b6a-4978-8a1b-2c3d4e5f6a7b"},
		{"uuid v1", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", nil},
		{"путь", "/docs/a.txt", nil},
		{"пустая строка", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := idArg(tt.value); got != tt.want {
				t.Errorf("idArg(%q) = %v, ожидалось %v", tt.value, got, tt.want)
			}
		})
	}
}
