package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Ограничения длины совпадают со столбцами files.name и files.path.
const (
	maxNameLength = 128
	maxPathLength = 2056
)

// ErrInvalidPath — запрошенный путь не может быть размещён в хранилище.
var ErrInvalidPath = errors.New("недопустимый путь")

// Target — результат разрешения пути загрузки.
type Target struct {
	// CanonicalPath — путь в хранилище с одним ведущим "/"
	CanonicalPath string
	// AbsolutePath — путь на диске внутри корня хранилища
	AbsolutePath string
	// Name — отображаемое имя файла
	Name string
}

// Resolver превращает пользовательский путь в канонический путь
// хранилища и абсолютный путь на диске. Результат всегда внутри root.
type Resolver struct {
	root string
}

// NewResolver создаёт Resolver для корня хранилища.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ошибка определения корня хранилища %s: %w", root, err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root возвращает абсолютный корень хранилища.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve разбирает requestedPath. Если последний сегмент без расширения,
// путь считается директорией и к нему добавляется declaredName.
// Родительские директории создаются.
func (r *Resolver) Resolve(requestedPath, declaredName string) (Target, error) {
	segments, err := splitSegments(requestedPath)
	if err != nil {
		return Target{}, err
	}

	var name string
	if len(segments) > 0 && hasExtension(segments[len(segments)-1]) {
		name = segments[len(segments)-1]
	} else {
		if err := validateName(declaredName); err != nil {
			return Target{}, err
		}
		name = declaredName
		segments = append(segments, declaredName)
	}

	if utf8.RuneCountInString(name) > maxNameLength {
		return Target{}, fmt.Errorf("%w: имя длиннее %d символов", ErrInvalidPath, maxNameLength)
	}

	canonical := "/" + strings.Join(segments, "/")
	if len(canonical) > maxPathLength {
		return Target{}, fmt.Errorf("%w: путь длиннее %d байт", ErrInvalidPath, maxPathLength)
	}

	abs, err := r.Abs(canonical)
	if err != nil {
		return Target{}, err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return Target{}, fmt.Errorf("ошибка создания директории для %s: %w", canonical, err)
	}

	return Target{CanonicalPath: canonical, AbsolutePath: abs, Name: name}, nil
}

// Abs возвращает абсолютный путь на диске для канонического пути.
// Путь проверяется повторно: записи в БД не доверяем.
func (r *Resolver) Abs(canonicalPath string) (string, error) {
	if !strings.HasPrefix(canonicalPath, "/") || strings.ContainsRune(canonicalPath, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, canonicalPath)
	}

	abs := filepath.Join(r.root, filepath.FromSlash(canonicalPath))
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q вне корня хранилища", ErrInvalidPath, canonicalPath)
	}
	return abs, nil
}

// splitSegments нормализует разделители и разбивает путь на сегменты.
// Пустые сегменты и "." отбрасываются, ".." запрещён.
func splitSegments(requested string) ([]string, error) {
	if strings.ContainsRune(requested, 0) {
		return nil, fmt.Errorf("%w: путь содержит NUL", ErrInvalidPath)
	}

	normalized := strings.Trim(strings.ReplaceAll(requested, `\`, "/"), "/")
	if normalized == "" {
		return nil, nil
	}

	parts := strings.Split(normalized, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p {
		case "", ".":
			continue
		case "..":
			return nil, fmt.Errorf("%w: сегмент \"..\" запрещён", ErrInvalidPath)
		}
		segments = append(segments, p)
	}
	return segments, nil
}

// validateName проверяет имя файла из multipart-части.
func validateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: некорректное имя файла %q", ErrInvalidPath, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: имя файла %q содержит разделители", ErrInvalidPath, name)
	}
	return nil
}

// hasExtension сообщает, есть ли у сегмента расширение: точка
// не в начале и не в конце. ".bashrc" и "archive." — без расширения.
func hasExtension(segment string) bool {
	i := strings.LastIndex(segment, ".")
	return i > 0 && i < len(segment)-1
}
