package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"punchd/internal/logs"
	"punchd/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrBadCredentials = errors.New("incorrect username or password")
	ErrInactiveUser   = errors.New("user is inactive")
	ErrUsernameTaken  = errors.New("username already registered")
	ErrEmailTaken     = errors.New("email already registered")
)

// Service — аутентификация и RBAC админ-API. Для ядра протокола это внешний
// коллаборатор: терминальные ручки /iclock им не пользуются вообще.
// При db == nil или disabled сервис прозрачный (все проверки проходят).
type Service struct {
	db       *gorm.DB
	secret   []byte
	ttl      time.Duration
	disabled bool
}

func NewService(db *gorm.DB, secret string, ttl time.Duration, disabled bool) *Service {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Service{db: db, secret: []byte(secret), ttl: ttl, disabled: disabled || db == nil}
}

func (s *Service) Enabled() bool { return !s.disabled }

// ── пароли и токены ─────────────────────────────────────────

func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(b), err
}

func checkPassword(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func (s *Service) IssueToken(u *models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":      fmt.Sprint(u.ID),
		"username": u.Username,
		"exp":      time.Now().Add(s.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseToken возвращает ID пользователя из валидного bearer-токена.
func (s *Service) ParseToken(raw string) (uint, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return 0, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	var id uint
	if _, err := fmt.Sscanf(sub, "%d", &id); err != nil || id == 0 {
		return 0, errors.New("invalid subject")
	}
	return id, nil
}

// ── пользователи и права ────────────────────────────────────

func (s *Service) Authenticate(username, password string) (*models.User, error) {
	var u models.User
	if err := s.db.Where("username = ?", username).First(&u).Error; err != nil {
		return nil, ErrBadCredentials
	}
	if !checkPassword(password, u.PasswordHash) {
		return nil, ErrBadCredentials
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}
	now := time.Now()
	u.LastLogin = &now
	_ = s.db.Save(&u).Error
	return &u, nil
}

func (s *Service) GetUser(id uint) (*models.User, error) {
	var u models.User
	if err := s.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// RolesOf — роли пользователя через user_roles.
func (s *Service) RolesOf(userID uint) ([]models.Role, error) {
	var roles []models.Role
	err := s.db.
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Find(&roles).Error
	return roles, err
}

// Permissions — объединение прав всех ролей пользователя.
func (s *Service) Permissions(userID uint) ([]string, error) {
	roles, err := s.RolesOf(userID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range roles {
		var perms []string
		if err := json.Unmarshal([]byte(r.Permissions), &perms); err != nil {
			logs.Logger.Warnf("role %q: bad permissions json: %v", r.Name, err)
			continue
		}
		out = append(out, perms...)
	}
	return out, nil
}

// HasPermission: суперпользователь и право "*" покрывают всё.
func (s *Service) HasPermission(u *models.User, perm string) bool {
	if s.disabled || u.IsSuperuser {
		return true
	}
	perms, err := s.Permissions(u.ID)
	if err != nil {
		return false
	}
	for _, p := range perms {
		if p == "*" || p == perm {
			return true
		}
	}
	return false
}

// ── управление пользователями и ролями ──────────────────────

// RegisterInput — данные нового пользователя (создание только через
// users:write, самостоятельной регистрации нет).
type RegisterInput struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	Department  string `json:"department"`
	EmployeePIN string `json:"employee_pin"`
}

// CreateUser — создаёт пользователя и вешает дефолтную роль employee.
func (s *Service) CreateUser(in RegisterInput) (*models.User, error) {
	var n int64
	if err := s.db.Model(&models.User{}).Where("username = ?", in.Username).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrUsernameTaken
	}
	if err := s.db.Model(&models.User{}).Where("email = ?", in.Email).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := models.User{
		Username: in.Username, Email: in.Email, PasswordHash: hash,
		FullName: in.FullName, Department: in.Department, EmployeePIN: in.EmployeePIN,
		IsActive: true,
	}
	if err := s.db.Create(&u).Error; err != nil {
		return nil, err
	}

	var role models.Role
	if err := s.db.Where("name = ?", "employee").First(&role).Error; err == nil {
		if err := s.AssignRole(u.ID, role.ID); err != nil {
			logs.Logger.Warnf("assign default role to %q: %v", u.Username, err)
		}
	}
	return &u, nil
}

func (s *Service) ListUsers() ([]models.User, error) {
	var out []models.User
	err := s.db.Order("id").Find(&out).Error
	return out, err
}

func (s *Service) SaveUser(u *models.User) error { return s.db.Save(u).Error }

// DeleteUser — вместе с назначениями ролей; записи аудита остаются.
func (s *Service) DeleteUser(id uint) error {
	if err := s.db.Where("user_id = ?", id).Delete(&models.UserRole{}).Error; err != nil {
		return err
	}
	return s.db.Delete(&models.User{}, id).Error
}

func (s *Service) ListRoles() ([]models.Role, error) {
	var out []models.Role
	err := s.db.Order("id").Find(&out).Error
	return out, err
}

func (s *Service) GetRole(id uint) (*models.Role, error) {
	var r models.Role
	if err := s.db.First(&r, id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// AssignRole — идемпотентно: повторное назначение не создаёт дубликата.
func (s *Service) AssignRole(userID, roleID uint) error {
	ur := models.UserRole{UserID: userID, RoleID: roleID, AssignedAt: time.Now()}
	return s.db.Where("user_id = ? AND role_id = ?", userID, roleID).FirstOrCreate(&ur).Error
}

func (s *Service) RemoveRole(userID, roleID uint) error {
	return s.db.Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&models.UserRole{}).Error
}

// AuditLogs — хвост журнала аудита, свежие первыми; userID=0 значит все.
func (s *Service) AuditLogs(userID uint, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.Order("id DESC").Limit(limit)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	var out []models.AuditLog
	err := q.Find(&out).Error
	return out, err
}

// Audit — след действия администратора (не путать с OPERLOG терминалов).
func (s *Service) Audit(userID uint, action, resource, resourceID string, details any) {
	if s.db == nil {
		return
	}
	var d string
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			d = string(b)
		}
	}
	entry := models.AuditLog{
		EntryID:    uuid.NewString(),
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    d,
	}
	if err := s.db.Create(&entry).Error; err != nil {
		logs.Logger.Warnf("audit log: %v", err)
	}
}

// ── сиды ────────────────────────────────────────────────────

// SeedDefaults — дефолтные роли и админ admin/admin123 (сменить немедленно).
func (s *Service) SeedDefaults() error {
	if s.db == nil {
		return nil
	}
	var n int64
	if err := s.db.Model(&models.Role{}).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		roles := []models.Role{
			{Name: "admin", Description: "Full system access", Permissions: mustJSON([]string{"*"})},
			{Name: "hr_manager", Description: "HR and employee management", Permissions: mustJSON([]string{
				"employees:read", "employees:write", "employees:delete",
				"attendance:read", "reports:read", "reports:export",
			})},
			{Name: "department_manager", Description: "Department-level access", Permissions: mustJSON([]string{
				"employees:read", "attendance:read", "reports:read",
			})},
			{Name: "employee", Description: "View own attendance", Permissions: mustJSON([]string{"attendance:read_own"})},
			{Name: "viewer", Description: "Read-only access", Permissions: mustJSON([]string{"attendance:read", "reports:read"})},
		}
		for i := range roles {
			if err := s.db.Create(&roles[i]).Error; err != nil {
				return err
			}
		}
		logs.Logger.Info("seeded default roles")
	}

	var admin models.User
	err := s.db.Where("username = ?", "admin").First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		hash, err := HashPassword("admin123")
		if err != nil {
			return err
		}
		admin = models.User{
			Username: "admin", Email: "admin@localhost",
			PasswordHash: hash, FullName: "Administrator",
			IsActive: true, IsSuperuser: true,
		}
		if err := s.db.Create(&admin).Error; err != nil {
			return err
		}
		logs.Logger.Warn("default admin created (admin/admin123) - change the password immediately")
	} else if err != nil {
		return err
	}
	return nil
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
