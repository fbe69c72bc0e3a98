// users.go — регистрация, аутентификация и выпуск access token.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/repository"
)

// TokenTypeBearer — тип выдаваемого токена.
const TokenTypeBearer = "Bearer"

// Token — выданный access token.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// TokenConfig — параметры подписи локальных токенов.
type TokenConfig struct {
	// Secret — ключ HMAC
	Secret []byte
	// Algorithm — HS256, HS384 или HS512
	Algorithm string
	// TTL — время жизни токена
	TTL time.Duration
}

// UserService — сервис пользователей.
type UserService struct {
	userRepo   repository.UserRepository
	tokens     TokenConfig
	method     jwt.SigningMethod
	bcryptCost int
	now        func() time.Time
	logger     *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(
	userRepo repository.UserRepository,
	tokens TokenConfig,
	bcryptCost int,
	logger *slog.Logger,
) (*UserService, error) {
	method := jwt.GetSigningMethod(tokens.Algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("неподдерживаемый алгоритм подписи токенов: %q", tokens.Algorithm)
	}
	if len(tokens.Secret) == 0 {
		return nil, errors.New("не задан секрет подписи токенов")
	}

	return &UserService{
		userRepo:   userRepo,
		tokens:     tokens,
		method:     method,
		bcryptCost: bcryptCost,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "user_service")),
	}, nil
}

// Register создаёт пользователя с bcrypt-хэшем пароля.
func (s *UserService) Register(ctx context.Context, username, password string) (*model.User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: имя пользователя и пароль обязательны", ErrBadRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: пароль длиннее 72 байт", ErrBadRequest)
		}
		return nil, fmt.Errorf("хэширование пароля: %w", err)
	}

	user := &model.User{Username: username, PasswordHash: string(hash)}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: пользователь %s уже существует", ErrBadRequest, username)
		}
		return nil, fmt.Errorf("создание пользователя: %w", err)
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Authenticate проверяет учётные данные и выпускает access token.
// Неизвестный пользователь, неверный пароль и неактивная учётная запись
// неразличимы для клиента.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*Token, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil || !user.IsActive {
		s.logger.Warn("Неудачная попытка входа", slog.String("username", username))
		return nil, ErrUnauthorized
	}

	return s.issueToken(user)
}

// ActiveUser возвращает активного пользователя по имени (subject токена).
func (s *UserService) ActiveUser(ctx context.Context, username string) (*model.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: пользователь %s неактивен", ErrUnauthorized, username)
	}
	return user, nil
}

// issueToken подписывает JWT с sub=username.
func (s *UserService) issueToken(user *model.User) (*Token, error) {
	now := s.now()
	expiresAt := now.Add(s.tokens.TTL)

	claims := jwt.RegisteredClaims{
		Subject:   user.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.tokens.Secret)
	if err != nil {
		return nil, fmt.Errorf("подпись токена: %w", err)
	}

	return &Token{AccessToken: signed, TokenType: TokenTypeBearer, ExpiresAt: expiresAt}, nil
}
