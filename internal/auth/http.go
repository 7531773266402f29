package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"punchd/internal/models"

	"github.com/gorilla/mux"
)

type ctxKey int

const userKey ctxKey = iota

// CurrentUser — пользователь запроса; nil, когда auth выключен.
func CurrentUser(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

func (s *Service) RegisterRoutes(r *mux.Router) {
	if s.disabled {
		return
	}
	api := r.PathPrefix("/api/auth").Subrouter()
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	api.Handle("/me", s.Authenticated(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)
	api.Handle("/change-password", s.Authenticated(http.HandlerFunc(s.handleChangePassword))).Methods(http.MethodPost)
	api.Handle("/register", s.perm("users:write", s.handleRegister)).Methods(http.MethodPost)

	// управление пользователями/ролями и чтение аудита
	adm := r.PathPrefix("/api").Subrouter()
	adm.Handle("/users", s.perm("users:read", s.handleListUsers)).Methods(http.MethodGet)
	adm.Handle("/users/{id}", s.perm("users:read", s.handleGetUser)).Methods(http.MethodGet)
	adm.Handle("/users/{id}", s.perm("users:write", s.handleUpdateUser)).Methods(http.MethodPut)
	adm.Handle("/users/{id}", s.Authenticated(http.HandlerFunc(s.handleDeleteUser))).Methods(http.MethodDelete)
	adm.Handle("/roles", s.perm("users:read", s.handleListRoles)).Methods(http.MethodGet)
	adm.Handle("/users/{id}/roles/{role_id}", s.perm("users:write", s.handleAssignRole)).Methods(http.MethodPost)
	adm.Handle("/users/{id}/roles/{role_id}", s.perm("users:write", s.handleRemoveRole)).Methods(http.MethodDelete)
	adm.Handle("/audit-logs", s.perm("audit:read", s.handleAuditLogs)).Methods(http.MethodGet)
}

func (s *Service) perm(p string, fn http.HandlerFunc) http.Handler {
	return s.RequirePermission(p)(fn)
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}
	u, err := s.Authenticate(in.Username, in.Password)
	if err != nil {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), nil)
		return
	}
	tok, err := s.IssueToken(u)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Token error", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]string{"access_token": tok, "token_type": "bearer"})
}

func (s *Service) handleMe(w http.ResponseWriter, r *http.Request) {
	u := CurrentUser(r.Context())
	writeJSON(w, userResponse(u))
}

func (s *Service) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	u := CurrentUser(r.Context())
	var in struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.OldPassword == "" || in.NewPassword == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "old_password and new_password required", nil)
		return
	}
	if !checkPassword(in.OldPassword, u.PasswordHash) {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "incorrect password", nil)
		return
	}
	if len(in.NewPassword) < 8 {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "new password must be at least 8 characters", nil)
		return
	}
	hash, err := HashPassword(in.NewPassword)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Hash error", err.Error(), nil)
		return
	}
	u.PasswordHash = hash
	if err := s.db.Save(u).Error; err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	s.Audit(u.ID, "password_changed", "users", "", nil)
	writeJSON(w, map[string]string{"message": "password changed"})
}

// ─────────────────────────── middleware ───────────────────────────

// Authenticated — кладёт пользователя bearer-токена в контекст.
func (s *Service) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.disabled {
			next.ServeHTTP(w, r)
			return
		}
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required", nil)
			return
		}
		id, err := s.ParseToken(raw)
		if err != nil {
			models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid token", nil)
			return
		}
		u, err := s.GetUser(id)
		if err != nil || !u.IsActive {
			models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "unknown or inactive user", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

// RequirePermission — mux-middleware для админ-ручек.
func (s *Service) RequirePermission(perm string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if s.disabled {
			return next
		}
		return s.Authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := CurrentUser(r.Context())
			if !s.HasPermission(u, perm) {
				models.WriteProblem(w, http.StatusForbidden, "Forbidden",
					"missing permission", map[string]string{"permission": perm})
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func userResponse(u *models.User) map[string]any {
	return map[string]any{
		"id":           u.ID,
		"username":     u.Username,
		"email":        u.Email,
		"full_name":    u.FullName,
		"department":   u.Department,
		"employee_pin": u.EmployeePIN,
		"is_active":    u.IsActive,
		"is_superuser": u.IsSuperuser,
		"last_login":   u.LastLogin,
	}
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(body)
}
