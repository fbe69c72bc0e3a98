// users.go — HTTP handlers регистрации и аутентификации пользователей.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/goartstore/filevault/internal/api/errors"
)

// registerRequest — тело POST /api/v1/users/register.
type registerRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required"`
}

// userResponse — ответ регистрации.
type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// tokenResponse — ответ аутентификации.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// RegisterUser обрабатывает POST /api/v1/users/register.
func (h *APIHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		errors.ValidationError(w, validationMessage(err))
		return
	}

	user, err := h.users.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID:        user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
	})
}

// AuthenticateUser обрабатывает POST /api/v1/users/auth.
// Форма application/x-www-form-urlencoded: username, password.
func (h *APIHandler) AuthenticateUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		errors.ValidationError(w, fmt.Sprintf("Некорректная форма: %s", err.Error()))
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		errors.ValidationError(w, "Поля 'username' и 'password' обязательны")
		return
	}

	token, err := h.users.Authenticate(r.Context(), username, password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
	})
}

// validationMessage формирует сообщение из ошибок validator.
func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return "Ошибка валидации: " + strings.Join(parts, "; ")
}
