package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/service"
)

const (
	testKeyID  = "test-key"
	testUserID = "4f6c1a52-8d7e-4b3a-9c21-0e5d7f3b2a10"
)

var testSecret = []byte("test-secret")

// stubUsers — PrincipalResolver с фиксированным набором пользователей.
type stubUsers struct {
	calls int
}

func (s *stubUsers) ActiveUser(_ context.Context, username string) (*model.User, error) {
	s.calls++
	switch username {
	case "alice":
		return &model.User{ID: testUserID, Username: "alice", IsActive: true}, nil
	case "broken":
		return nil, errors.New("db down")
	}
	return nil, service.ErrUnauthorized
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuth(users PrincipalResolver) *JWTAuth {
	return NewJWTAuth(testSecret, "HS256", users, 5*time.Second, discardLogger())
}

// hmacToken подписывает токен локальным секретом.
func hmacToken(t *testing.T, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func validClaims(sub string) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(jwks)
	return data
}

// serve прогоняет запрос через middleware и возвращает ответ и claims.
func serve(t *testing.T, auth *JWTAuth, header string) (*httptest.ResponseRecorder, *AuthClaims) {
	t.Helper()
	var claims *AuthClaims
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/list", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, claims
}

func TestJWTAuth_ValidLocalToken(t *testing.T) {
	auth := newTestAuth(&stubUsers{})
	token := hmacToken(t, jwt.SigningMethodHS256, validClaims("alice"))

	rec, claims := serve(t, auth, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
	if claims == nil || claims.UserID != testUserID || claims.Username != "alice" || claims.External {
		t.Errorf("неожиданные claims: %+v", claims)
	}
}

func TestJWTAuth_Rejects(t *testing.T) {
	expired := validClaims("alice")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExp := validClaims("alice")
	noExp.ExpiresAt = nil

	otherSecret, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("alice")).SignedString([]byte("other"))

	tests := []struct {
		name   string
		header string
	}{
		{"нет заголовка", ""},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"нет префикса", "token123"},
		{"пустой токен", "Bearer "},
		{"мусор", "Bearer not.a.jwt"},
		{"просрочен", "Bearer " + hmacToken(t, jwt.SigningMethodHS256, expired)},
		{"без exp", "Bearer " + hmacToken(t, jwt.SigningMethodHS256, noExp)},
		{"чужой секрет", "Bearer " + otherSecret},
		{"другой HMAC алгоритм", "Bearer " + hmacToken(t, jwt.SigningMethodHS512, validClaims("alice"))},
		{"неизвестный пользователь", "Bearer " + hmacToken(t, jwt.SigningMethodHS256, validClaims("mallory"))},
		{"пустой sub", "Bearer " + hmacToken(t, jwt.SigningMethodHS256, validClaims(""))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, claims := serve(t, newTestAuth(&stubUsers{}), tt.header)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
			if claims != nil {
				t.Error("handler не должен быть вызван")
			}
			if rec.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Error("нет заголовка WWW-Authenticate")
			}
		})
	}
}

func TestJWTAuth_RepositoryError(t *testing.T) {
	auth := newTestAuth(&stubUsers{})
	token := hmacToken(t, jwt.SigningMethodHS256, validClaims("broken"))

	rec, _ := serve(t, auth, "Bearer "+token)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("ожидался статус 500, получен %d", rec.Code)
	}
}

func TestJWTAuth_ExternalToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("keyfunc: %v", err)
	}

	claims := tokenClaims{
		RegisteredClaims:  validClaims("0d9a6c1e-idp-subject"),
		PreferredUsername: "alice",
	}
	rsToken := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	rsToken.Header["kid"] = testKeyID
	signed, err := rsToken.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("без JWKS отклоняется", func(t *testing.T) {
		rec, _ := serve(t, newTestAuth(&stubUsers{}), "Bearer "+signed)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("ожидался статус 401, получен %d", rec.Code)
		}
	})

	t.Run("с JWKS принимается", func(t *testing.T) {
		auth := newTestAuth(&stubUsers{}).WithExternalKeys(kf)
		rec, got := serve(t, auth, "Bearer "+signed)
		if rec.Code != http.StatusOK {
			t.Fatalf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
		}
		if !got.External || got.Username != "alice" || got.Subject != "0d9a6c1e-idp-subject" {
			t.Errorf("неожиданные claims: %+v", got)
		}
	})

	t.Run("локальные токены продолжают работать", func(t *testing.T) {
		auth := newTestAuth(&stubUsers{}).WithExternalKeys(kf)
		rec, _ := serve(t, auth, "Bearer "+hmacToken(t, jwt.SigningMethodHS256, validClaims("alice")))
		if rec.Code != http.StatusOK {
			t.Errorf("ожидался статус 200, получен %d", rec.Code)
		}
	})
}

func TestUserIDFromContext(t *testing.T) {
	if got := UserIDFromContext(context.Background()); got != "" {
		t.Errorf("UserIDFromContext без claims = %q", got)
	}
	ctx := WithClaims(context.Background(), &AuthClaims{UserID: testUserID})
	if got := UserIDFromContext(ctx); got != testUserID {
		t.Errorf("UserIDFromContext = %q, ожидался %q", got, testUserID)
	}
}
