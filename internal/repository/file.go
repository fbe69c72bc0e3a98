package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
const fileColumns = `id, name, path, size, is_downloadable, user_id, created_at`

// Направления сортировки.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// sortableColumns — whitelist полей сортировки поиска.
// Ключ — имя поля в API, значение — столбец в SQL.
var sortableColumns = map[string]string{
	"name":       "name",
	"path":       "path",
	"size":       "size",
	"created_at": "created_at",
}

// IsSortableField проверяет, разрешена ли сортировка по полю.
func IsSortableField(field string) bool {
	_, ok := sortableColumns[field]
	return ok
}

// SortableFields возвращает список допустимых полей сортировки.
func SortableFields() []string {
	return []string{"created_at", "name", "path", "size"}
}

// SearchParams — параметры поиска файлов.
type SearchParams struct {
	// PathPrefix — path должен начинаться с этой строки
	PathPrefix string
	// NameSuffix — name должен заканчиваться этой строкой (обычно расширение)
	NameSuffix string
	// OwnerID — ограничение поиска файлами владельца (nil = все файлы)
	OwnerID *string
	// SortBy — поле сортировки из whitelist
	SortBy string
	// SortOrder — asc или desc
	SortOrder string
	// Limit — максимальное количество результатов
	Limit int
}

// FileRepository — хранилище метаданных файлов.
type FileRepository interface {
	// GetByIDOrPath ищет файл по UUID или по точному пути одним запросом.
	GetByIDOrPath(ctx context.Context, value string) (*model.FileRecord, error)
	// Create сохраняет запись и заполняет ID и CreatedAt.
	Create(ctx context.Context, f *model.FileRecord) error
	// ListByOwner возвращает файлы владельца, новые первыми.
	ListByOwner(ctx context.Context, ownerID string, skip, limit int) ([]*model.FileRecord, error)
	// Search выполняет поиск по префиксу пути и суффиксу имени.
	Search(ctx context.Context, params SearchParams) ([]*model.FileRecord, error)
	// Delete удаляет запись (компенсация неудачной загрузки).
	Delete(ctx context.Context, id string) error
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// GetByIDOrPath возвращает файл по UUID или пути, либо ErrNotFound.
// Если value не является UUID v4, условие по id получает NULL
// и совпадение возможно только по path. Совпадение по id имеет приоритет.
func (r *fileRepo) GetByIDOrPath(ctx context.Context, value string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1 OR path = $2
		ORDER BY (id = $1) DESC NULLS LAST LIMIT 1`, fileColumns)

	f, err := scanFile(r.db.QueryRow(ctx, query, idArg(value), value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

// Create сохраняет метаданные файла.
// Нарушение уникальности path возвращается как ErrConflict.
func (r *fileRepo) Create(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO files (name, path, size, is_downloadable, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		f.Name, f.Path, f.Size, f.IsDownloadable, f.OwnerID,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл с путём %s уже существует", ErrConflict, f.Path)
		}
		return fmt.Errorf("ошибка создания записи файла: %w", err)
	}
	return nil
}

// ListByOwner возвращает файлы владельца в порядке created_at DESC.
func (r *fileRepo) ListByOwner(ctx context.Context, ownerID string, skip, limit int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM files WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		fileColumns,
	)

	rows, err := r.db.Query(ctx, query, ownerID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	return collectFiles(rows)
}

// Search выполняет поиск файлов. Поле сортировки проверяется по whitelist.
func (r *fileRepo) Search(ctx context.Context, params SearchParams) ([]*model.FileRecord, error) {
	query, args, err := buildSearchQuery(params)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска файлов: %w", err)
	}
	return collectFiles(rows)
}

// Delete удаляет запись файла по ID.
func (r *fileRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner — общий интерфейс pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFile читает одну строку в порядке fileColumns.
func scanFile(row rowScanner) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	if err := row.Scan(&f.ID, &f.Name, &f.Path, &f.Size, &f.IsDownloadable, &f.OwnerID, &f.CreatedAt); err != nil {
		return nil, err
	}
	return f, nil
}

// collectFiles читает все строки результата и закрывает rows.
func collectFiles(rows pgx.Rows) ([]*model.FileRecord, error) {
	defer rows.Close()

	result := make([]*model.FileRecord, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// idArg возвращает канонический UUID для условия по id
// или nil (NULL), если value не является UUID v4.
func idArg(value string) any {
	u, err := uuid.Parse(value)
	if err != nil || u.Version() != 4 {
		return nil
	}
	return u.String()
}

// buildSearchQuery строит SELECT для поиска с параметрами $1..$n.
// Значения фильтров передаются только аргументами, в текст запроса
// попадают лишь столбцы из whitelist.
func buildSearchQuery(params SearchParams) (string, []any, error) {
	orderBy, err := buildOrderBy(params.SortBy, params.SortOrder)
	if err != nil {
		return "", nil, err
	}

	conditions := []string{
		`path LIKE $1 ESCAPE '\'`,
		`name LIKE $2 ESCAPE '\'`,
	}
	args := []any{
		escapeLike(params.PathPrefix) + "%",
		"%" + escapeLike(params.NameSuffix),
	}

	if params.OwnerID != nil {
		args = append(args, *params.OwnerID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}

	args = append(args, params.Limit)
	query := fmt.Sprintf(
		`SELECT %s FROM files WHERE %s %s LIMIT $%d`,
		fileColumns, strings.Join(conditions, " AND "), orderBy, len(args),
	)
	return query, args, nil
}

// buildOrderBy строит ORDER BY с безопасным whitelist полей.
// Неизвестное поле — ErrInvalidSortField; неизвестное направление — DESC.
func buildOrderBy(sortBy, sortOrder string) (string, error) {
	column, ok := sortableColumns[sortBy]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidSortField, sortBy)
	}

	direction := "DESC"
	if strings.EqualFold(sortOrder, SortAsc) {
		direction = "ASC"
	}

	// id — стабильный порядок при равных значениях
	return fmt.Sprintf("ORDER BY %s %s, id %s", column, direction, direction), nil
}

// escapeLike экранирует спецсимволы LIKE (\, %, _).
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
