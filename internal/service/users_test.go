package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/repository"
)

var testSecret = []byte("test-secret")

func newTestUserService(t *testing.T, repo repository.UserRepository) *UserService {
	t.Helper()
	svc, err := NewUserService(repo, TokenConfig{Secret: testSecret, Algorithm: "HS256", TTL: 30 * time.Minute},
		bcrypt.MinCost, discardLogger())
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	return svc
}

// userWithPassword возвращает пользователя с bcrypt-хэшем пароля.
func userWithPassword(t *testing.T, username, password string, active bool) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return &model.User{ID: testOwnerID, Username: username, PasswordHash: string(hash), IsActive: active}
}

func TestNewUserService_Validation(t *testing.T) {
	repo := &mockUserRepo{}

	if _, err := NewUserService(repo, TokenConfig{Secret: testSecret, Algorithm: "RS256"}, 10, discardLogger()); err == nil {
		t.Error("RS256 не подходит для локальной подписи")
	}
	if _, err := NewUserService(repo, TokenConfig{Algorithm: "HS256"}, 10, discardLogger()); err == nil {
		t.Error("пустой секрет должен отклоняться")
	}
}

func TestUserService_Register(t *testing.T) {
	var stored *model.User
	repo := &mockUserRepo{
		createFn: func(_ context.Context, u *model.User) error {
			u.ID = testOwnerID
			u.IsActive = true
			stored = u
			return nil
		},
	}
	svc := newTestUserService(t, repo)

	user, err := svc.Register(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID != testOwnerID || user.Username != "alice" {
		t.Errorf("неожиданный пользователь: %+v", user)
	}
	if stored.PasswordHash == "s3cret" {
		t.Fatal("пароль не должен храниться в открытом виде")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cret")); err != nil {
		t.Errorf("хэш не соответствует паролю: %v", err)
	}
}

func TestUserService_RegisterErrors(t *testing.T) {
	repo := &mockUserRepo{
		createFn: func(context.Context, *model.User) error {
			return fmt.Errorf("%w: дубликат", repository.ErrConflict)
		},
	}
	svc := newTestUserService(t, repo)

	if _, err := svc.Register(context.Background(), "alice", "x"); !errors.Is(err, ErrBadRequest) {
		t.Errorf("дубликат: ожидалась ErrBadRequest, получено %v", err)
	}
	if _, err := svc.Register(context.Background(), "", "x"); !errors.Is(err, ErrBadRequest) {
		t.Errorf("пустое имя: ожидалась ErrBadRequest, получено %v", err)
	}
	if _, err := svc.Register(context.Background(), "bob", strings.Repeat("p", 73)); !errors.Is(err, ErrBadRequest) {
		t.Errorf("длинный пароль: ожидалась ErrBadRequest, получено %v", err)
	}
}

func TestUserService_Authenticate(t *testing.T) {
	user := userWithPassword(t, "alice", "s3cret", true)
	repo := &mockUserRepo{
		getByUsernameFn: func(_ context.Context, username string) (*model.User, error) {
			if username == "alice" {
				return user, nil
			}
			return nil, repository.ErrNotFound
		},
	}
	svc := newTestUserService(t, repo)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return now }

	tok, err := svc.Authenticate(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if tok.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, ожидался Bearer", tok.TokenType)
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(tok.AccessToken, claims, func(*jwt.Token) (any, error) {
		return testSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("токен не проходит проверку: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("sub = %q, ожидался alice", claims.Subject)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != 30*time.Minute {
		t.Errorf("exp - iat = %v, ожидалось 30m", ttl)
	}
}

func TestUserService_AuthenticateFailures(t *testing.T) {
	active := userWithPassword(t, "alice", "s3cret", true)
	inactive := userWithPassword(t, "bob", "s3cret", false)
	repo := &mockUserRepo{
		getByUsernameFn: func(_ context.Context, username string) (*model.User, error) {
			switch username {
			case "alice":
				return active, nil
			case "bob":
				return inactive, nil
			}
			return nil, repository.ErrNotFound
		},
	}
	svc := newTestUserService(t, repo)

	tests := []struct {
		name, username, password string
	}{
		{"неверный пароль", "alice", "wrong"},
		{"неизвестный пользователь", "carol", "s3cret"},
		{"неактивный пользователь", "bob", "s3cret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Authenticate(context.Background(), tt.username, tt.password); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("ожидалась ErrUnauthorized, получено %v", err)
			}
		})
	}
}

func TestUserService_ActiveUser(t *testing.T) {
	repo := &mockUserRepo{
		getByUsernameFn: func(_ context.Context, username string) (*model.User, error) {
			switch username {
			case "alice":
				return &model.User{ID: testOwnerID, Username: "alice", IsActive: true}, nil
			case "bob":
				return &model.User{ID: testOtherID, Username: "bob", IsActive: false}, nil
			case "broken":
				return nil, errors.New("db down")
			}
			return nil, repository.ErrNotFound
		},
	}
	svc := newTestUserService(t, repo)

	u, err := svc.ActiveUser(context.Background(), "alice")
	if err != nil || u.ID != testOwnerID {
		t.Errorf("ActiveUser(alice) = %v, %v", u, err)
	}
	for _, name := range []string{"bob", "nobody"} {
		if _, err := svc.ActiveUser(context.Background(), name); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("ActiveUser(%s): ожидалась ErrUnauthorized, получено %v", name, err)
		}
	}
	if _, err := svc.ActiveUser(context.Background(), "broken"); err == nil || errors.Is(err, ErrUnauthorized) {
		t.Errorf("ошибка БД не должна превращаться в ErrUnauthorized: %v", err)
	}
}
