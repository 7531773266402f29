package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"punchd/internal/models"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Role{}, &models.UserRole{}, &models.AuditLog{}))

	s := NewService(db, "test-secret", time.Hour, false)
	require.NoError(t, s.SeedDefaults())
	return s
}

func roleByName(t *testing.T, s *Service, name string) *models.Role {
	t.Helper()
	roles, err := s.ListRoles()
	require.NoError(t, err)
	for i := range roles {
		if roles[i].Name == name {
			return &roles[i]
		}
	}
	t.Fatalf("role %q not seeded", name)
	return nil
}

func TestSeedDefaultsRolesAndAdmin(t *testing.T) {
	s := newTestService(t)

	roles, err := s.ListRoles()
	require.NoError(t, err)
	assert.Len(t, roles, 5)

	admin, err := s.Authenticate("admin", "admin123")
	require.NoError(t, err)
	assert.True(t, admin.IsSuperuser)

	_, err = s.Authenticate("admin", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestCreateUserGetsDefaultRole(t *testing.T) {
	s := newTestService(t)

	u, err := s.CreateUser(RegisterInput{
		Username: "ivanov", Email: "ivanov@example.com", Password: "secret123",
		FullName: "Ivanov I.", EmployeePIN: "7",
	})
	require.NoError(t, err)

	roles, err := s.RolesOf(u.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "employee", roles[0].Name)

	// права приходят через user_roles, не через суперпользовательский байпас
	assert.True(t, s.HasPermission(u, "attendance:read_own"))
	assert.False(t, s.HasPermission(u, "devices:write"))

	_, err = s.CreateUser(RegisterInput{Username: "ivanov", Email: "x@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
	_, err = s.CreateUser(RegisterInput{Username: "petrov", Email: "ivanov@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestAssignAndRemoveRole(t *testing.T) {
	s := newTestService(t)
	u, err := s.CreateUser(RegisterInput{Username: "hr", Email: "hr@example.com", Password: "secret123"})
	require.NoError(t, err)

	hr := roleByName(t, s, "hr_manager")
	require.NoError(t, s.AssignRole(u.ID, hr.ID))
	require.NoError(t, s.AssignRole(u.ID, hr.ID)) // идемпотентно

	roles, err := s.RolesOf(u.ID)
	require.NoError(t, err)
	assert.Len(t, roles, 2) // employee + hr_manager, без дубликатов
	assert.True(t, s.HasPermission(u, "employees:write"))

	require.NoError(t, s.RemoveRole(u.ID, hr.ID))
	assert.False(t, s.HasPermission(u, "employees:write"))
}

func TestAuditTrailReadable(t *testing.T) {
	s := newTestService(t)

	s.Audit(1, "user_created", "users", "2", map[string]any{"username": "ivanov"})
	s.Audit(2, "role_assigned", "user_roles", "2:3", nil)

	entries, err := s.AuditLogs(0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "role_assigned", entries[0].Action, "newest first")

	entries, err = s.AuditLogs(1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "user_created", entries[0].Action)
	assert.Contains(t, entries[0].Details, "ivanov")
}

// ── HTTP surface ────────────────────────────────────────────

type authClient struct {
	router *mux.Router
	token  string
}

func (c *authClient) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rr := httptest.NewRecorder()
	c.router.ServeHTTP(rr, req)
	return rr
}

func (c *authClient) login(t *testing.T, username, password string) {
	t.Helper()
	rr := c.do(t, http.MethodPost, "/api/auth/login",
		fmt.Sprintf(`{"username":%q,"password":%q}`, username, password))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	c.token = out["access_token"]
}

func TestUserManagementHTTP(t *testing.T) {
	s := newTestService(t)
	router := mux.NewRouter()
	s.RegisterRoutes(router)

	c := &authClient{router: router}

	// без токена управление закрыто
	rr := c.do(t, http.MethodGet, "/api/users", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	c.login(t, "admin", "admin123")

	rr = c.do(t, http.MethodPost, "/api/auth/register",
		`{"username":"ivanov","email":"ivanov@example.com","password":"secret123","employee_pin":"7"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	userID := int(created["id"].(float64))
	assert.Contains(t, created["roles"], "employee")

	// короткий пароль отклоняется
	rr = c.do(t, http.MethodPost, "/api/auth/register",
		`{"username":"x","email":"x@example.com","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = c.do(t, http.MethodGet, "/api/users", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var users []map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&users))
	assert.Len(t, users, 2) // admin + ivanov

	rr = c.do(t, http.MethodGet, "/api/roles", "")
	require.Equal(t, http.StatusOK, rr.Code)

	hr := roleByName(t, s, "hr_manager")
	rr = c.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/roles/%d", userID, hr.ID), "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = c.do(t, http.MethodPut, fmt.Sprintf("/api/users/%d", userID), `{"department":"HR"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	// рядовой пользователь не видит управление и не может удалять
	emp := &authClient{router: router}
	emp.login(t, "ivanov", "secret123")
	rr = emp.do(t, http.MethodGet, "/api/audit-logs", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = emp.do(t, http.MethodDelete, "/api/users/1", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// суперпользователь не может удалить сам себя
	rr = c.do(t, http.MethodDelete, "/api/users/1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = c.do(t, http.MethodDelete, fmt.Sprintf("/api/users/%d", userID), "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// действия оставили след в аудите
	rr = c.do(t, http.MethodGet, "/api/audit-logs", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var audit map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&audit))
	actions := map[string]bool{}
	for _, e := range audit["entries"].([]any) {
		actions[e.(map[string]any)["Action"].(string)] = true
	}
	for _, want := range []string{"user_created", "role_assigned", "user_updated", "user_deleted"} {
		assert.True(t, actions[want], "missing audit action %s", want)
	}
}
