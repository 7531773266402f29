package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"punchd/internal/models"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// Операторские ручки управления пользователями, ролями и аудитом.
// Все за RequirePermission; удаление пользователя — только суперпользователь.

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}
	if in.Username == "" || in.Email == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "username and email are required", nil)
		return
	}
	if len(in.Password) < 8 {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "password must be at least 8 characters", nil)
		return
	}
	u, err := s.CreateUser(in)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken) {
			models.WriteProblem(w, http.StatusBadRequest, "Bad request", err.Error(), nil)
			return
		}
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	if actor := CurrentUser(r.Context()); actor != nil {
		s.Audit(actor.ID, "user_created", "users", fmt.Sprint(u.ID), map[string]any{"username": u.Username})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(s.userDetail(u))
}

func (s *Service) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	users, err := s.ListUsers()
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	out := make([]map[string]any, 0, len(users))
	for i := range users {
		out = append(out, s.userDetail(&users[i]))
	}
	writeJSON(w, out)
}

func (s *Service) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userByPathID(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.userDetail(u))
}

func (s *Service) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userByPathID(w, r)
	if !ok {
		return
	}
	// пароль здесь не меняется: для этого есть /api/auth/change-password
	var in struct {
		Email       *string `json:"email"`
		FullName    *string `json:"full_name"`
		Department  *string `json:"department"`
		EmployeePIN *string `json:"employee_pin"`
		IsActive    *bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.FullName != nil {
		u.FullName = *in.FullName
	}
	if in.Department != nil {
		u.Department = *in.Department
	}
	if in.EmployeePIN != nil {
		u.EmployeePIN = *in.EmployeePIN
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	if err := s.SaveUser(u); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	if actor := CurrentUser(r.Context()); actor != nil {
		s.Audit(actor.ID, "user_updated", "users", fmt.Sprint(u.ID), nil)
	}
	writeJSON(w, s.userDetail(u))
}

func (s *Service) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor := CurrentUser(r.Context())
	if actor == nil || !actor.IsSuperuser {
		models.WriteProblem(w, http.StatusForbidden, "Forbidden", "superuser required", nil)
		return
	}
	u, ok := s.userByPathID(w, r)
	if !ok {
		return
	}
	if u.ID == actor.ID {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "cannot delete your own account", nil)
		return
	}
	if err := s.DeleteUser(u.ID); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	s.Audit(actor.ID, "user_deleted", "users", fmt.Sprint(u.ID), nil)
	writeJSON(w, map[string]string{"message": "user deleted"})
}

// ── роли ────────────────────────────────────────────────────

func (s *Service) handleListRoles(w http.ResponseWriter, _ *http.Request) {
	roles, err := s.ListRoles()
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	writeJSON(w, roles)
}

func (s *Service) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	u, role, ok := s.userAndRoleByPath(w, r)
	if !ok {
		return
	}
	if err := s.AssignRole(u.ID, role.ID); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	if actor := CurrentUser(r.Context()); actor != nil {
		s.Audit(actor.ID, "role_assigned", "user_roles", fmt.Sprintf("%d:%d", u.ID, role.ID),
			map[string]any{"role_name": role.Name})
	}
	writeJSON(w, map[string]string{"message": fmt.Sprintf("role %q assigned to user", role.Name)})
}

func (s *Service) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	u, role, ok := s.userAndRoleByPath(w, r)
	if !ok {
		return
	}
	if err := s.RemoveRole(u.ID, role.ID); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	if actor := CurrentUser(r.Context()); actor != nil {
		s.Audit(actor.ID, "role_removed", "user_roles", fmt.Sprintf("%d:%d", u.ID, role.ID), nil)
	}
	writeJSON(w, map[string]string{"message": "role removed from user"})
}

// ── аудит ───────────────────────────────────────────────────

func (s *Service) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var userID uint64
	if v := q.Get("user_id"); v != "" {
		userID, _ = strconv.ParseUint(v, 10, 64)
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	entries, err := s.AuditLogs(uint(userID), limit)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]any{"entries": entries, "total": len(entries)})
}

// ── helpers ─────────────────────────────────────────────────

func (s *Service) userByPathID(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "invalid user id", nil)
		return nil, false
	}
	u, err := s.GetUser(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			models.WriteProblem(w, http.StatusNotFound, "Not found", "user not found", nil)
			return nil, false
		}
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return nil, false
	}
	return u, true
}

func (s *Service) userAndRoleByPath(w http.ResponseWriter, r *http.Request) (*models.User, *models.Role, bool) {
	u, ok := s.userByPathID(w, r)
	if !ok {
		return nil, nil, false
	}
	roleID, err := strconv.ParseUint(mux.Vars(r)["role_id"], 10, 64)
	if err != nil || roleID == 0 {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "invalid role id", nil)
		return nil, nil, false
	}
	role, err := s.GetRole(uint(roleID))
	if err != nil {
		models.WriteProblem(w, http.StatusNotFound, "Not found", "role not found", nil)
		return nil, nil, false
	}
	return u, role, true
}

// userDetail — userResponse плюс имена ролей.
func (s *Service) userDetail(u *models.User) map[string]any {
	out := userResponse(u)
	if roles, err := s.RolesOf(u.ID); err == nil {
		names := make([]string, 0, len(roles))
		for _, r := range roles {
			names = append(names, r.Name)
		}
		out["roles"] = names
	}
	return out
}
