// Package users implements a minimal account store for the broker: create,
// authenticate, change password and delete, with a single is_admin bit,
// backed by bcrypt password hashing and JWT session tokens.
package users

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/FairForge/streamkeg/internal/wire"
)

// User is a stored broker account.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// Claims is the JWT payload issued on successful login.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Manager is the in-memory user table plus JWT issuance.
type Manager struct {
	jwtSecret []byte
	tokenTTL  time.Duration

	mu         sync.RWMutex
	byUsername map[string]*User
}

// NewManager creates a user manager. jwtSecret must come from the broker's
// config, never a hardcoded default.
func NewManager(jwtSecret []byte, tokenTTL time.Duration) *Manager {
	return &Manager{
		jwtSecret:  jwtSecret,
		tokenTTL:   tokenTTL,
		byUsername: make(map[string]*User),
	}
}

// CreateUser hashes password and stores a new account.
func (m *Manager) CreateUser(username, password string, isAdmin bool) (*User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, wire.New(wire.KindInvalidCredentials, "username must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byUsername[username]; exists {
		return nil, wire.New(wire.KindInvalidCredentials, "user %q already exists", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, wire.New(wire.KindIoError, "hash password: %v", err)
	}

	u := &User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now(),
	}
	m.byUsername[username] = u
	return u, nil
}

// DeleteUser removes an account by username.
func (m *Manager) DeleteUser(username string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byUsername[username]; !exists {
		return wire.New(wire.KindInvalidCredentials, "user %q not found", username)
	}
	delete(m.byUsername, username)
	return nil
}

// Authenticate checks username/password and, on success, issues a signed
// JWT carrying the account's admin bit.
func (m *Manager) Authenticate(username, password string) (string, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	m.mu.RLock()
	u, ok := m.byUsername[username]
	m.mu.RUnlock()
	if !ok {
		return "", wire.New(wire.KindUnauthenticated, "invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", wire.New(wire.KindUnauthenticated, "invalid username or password")
	}

	claims := Claims{
		UserID:   u.ID,
		Username: u.Username,
		IsAdmin:  u.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.jwtSecret)
	if err != nil {
		return "", wire.New(wire.KindIoError, "sign token: %v", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a JWT issued by Authenticate.
func (m *Manager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, wire.New(wire.KindUnauthenticated, "invalid or expired token")
	}
	return claims, nil
}

// ChangePassword re-hashes password for username after checking oldPassword.
func (m *Manager) ChangePassword(username, oldPassword, newPassword string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byUsername[username]
	if !ok {
		return wire.New(wire.KindUnauthenticated, "invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)); err != nil {
		return wire.New(wire.KindUnauthenticated, "invalid username or password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return wire.New(wire.KindIoError, "hash password: %v", err)
	}
	u.PasswordHash = string(hash)
	return nil
}
