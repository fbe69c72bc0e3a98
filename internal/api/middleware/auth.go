// auth.go — JWT middleware аутентификации filevault.
// Локальные токены (HS256/384/512) проверяются секретом FV_JWT_SECRET_KEY.
// Если задан FV_JWKS_URL, дополнительно принимаются RS256-токены внешнего IdP,
// подпись которых проверяется через JWKS.
// Subject токена разрешается в активного пользователя.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/goartstore/filevault/internal/api/errors"
	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/service"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — извлечённые claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// externalAlgorithm — алгоритм токенов внешнего IdP.
const externalAlgorithm = "RS256"

// AuthClaims — аутентифицированный субъект запроса.
type AuthClaims struct {
	// Subject — sub из JWT.
	Subject string
	// Username — имя пользователя filevault.
	Username string
	// UserID — UUID пользователя filevault.
	UserID string
	// External — токен выпущен внешним IdP.
	External bool
}

// PrincipalResolver — разрешение имени пользователя из токена.
type PrincipalResolver interface {
	ActiveUser(ctx context.Context, username string) (*model.User, error)
}

// tokenClaims — raw claims токена.
type tokenClaims struct {
	jwt.RegisteredClaims
	// PreferredUsername — имя пользователя в токенах внешнего IdP.
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// JWTAuth — middleware JWT-аутентификации.
type JWTAuth struct {
	secret    []byte
	algorithm string
	external  keyfunc.Keyfunc
	users     PrincipalResolver
	leeway    time.Duration
	logger    *slog.Logger
}

// NewJWTAuth создаёт middleware для локальных токенов.
func NewJWTAuth(
	secret []byte,
	algorithm string,
	users PrincipalResolver,
	leeway time.Duration,
	logger *slog.Logger,
) *JWTAuth {
	return &JWTAuth{
		secret:    secret,
		algorithm: algorithm,
		users:     users,
		leeway:    leeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// WithExternalKeys включает приём RS256-токенов, проверяемых через kf.
func (j *JWTAuth) WithExternalKeys(kf keyfunc.Keyfunc) *JWTAuth {
	j.external = kf
	return j
}

// NewJWKSKeyfunc создаёт keyfunc с фоновым обновлением JWKS внешнего IdP.
// Первый запрос JWKS может завершиться ошибкой: сервис стартует и без IdP.
func NewJWKSKeyfunc(
	jwksURL string,
	clientTimeout time.Duration,
	refreshInterval time.Duration,
	logger *slog.Logger,
) (keyfunc.Keyfunc, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: clientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return k, nil
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, msg := bearerToken(r)
			if msg != "" {
				apierrors.Unauthorized(w, msg)
				return
			}

			raw := &tokenClaims{}
			token, err := jwt.ParseWithClaims(tokenString, raw, j.keyfunc(r.Context()),
				jwt.WithValidMethods(j.validMethods()),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.leeway),
			)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			external := token.Method.Alg() == externalAlgorithm
			username := raw.Subject
			if external && raw.PreferredUsername != "" {
				username = raw.PreferredUsername
			}
			if username == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			user, err := j.users.ActiveUser(r.Context(), username)
			if err != nil {
				if errors.Is(err, service.ErrUnauthorized) {
					apierrors.Unauthorized(w, "Пользователь не найден или неактивен")
					return
				}
				j.logger.Error("Ошибка получения пользователя",
					slog.String("username", username),
					slog.String("error", err.Error()),
				)
				apierrors.InternalError(w, "Внутренняя ошибка сервера")
				return
			}

			claims := &AuthClaims{
				Subject:  raw.Subject,
				Username: user.Username,
				UserID:   user.ID,
				External: external,
			}
			noteUser(r.Context(), claims.Username)
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// keyfunc выбирает ключ проверки по алгоритму токена.
// HMAC-токены всегда проверяются локальным секретом.
func (j *JWTAuth) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
			return j.secret, nil
		}
		if j.external == nil {
			return nil, fmt.Errorf("алгоритм %s не поддерживается", token.Method.Alg())
		}
		return j.external.KeyfuncCtx(ctx)(token)
	}
}

func (j *JWTAuth) validMethods() []string {
	if j.external != nil {
		return []string{j.algorithm, externalAlgorithm}
	}
	return []string{j.algorithm}
}

// bearerToken извлекает токен из заголовка Authorization.
// Второе значение — сообщение об ошибке для клиента.
func bearerToken(r *http.Request) (token, msg string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "Отсутствует заголовок Authorization"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "Неверный формат Authorization: ожидается Bearer <token>"
	}

	token = strings.TrimSpace(parts[1])
	if token == "" {
		return "", "Пустой Bearer token"
	}
	return token, ""
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// UserIDFromContext возвращает UUID аутентифицированного пользователя.
// Возвращает пустую строку, если claims не найдены.
func UserIDFromContext(ctx context.Context) string {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	return claims.UserID
}

// WithClaims помещает claims в контекст.
func WithClaims(ctx context.Context, claims *AuthClaims) context.Context {
	return context.WithValue(ctx, ContextKeyClaims, claims)
}
