package auth

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Role is an operator role on the query surface
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleReadOnly Role = "read_only"
)

// User is an operator account for the HTTP API
type User struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         Role   `yaml:"role"`
}

// ErrInvalidCredentials is returned for unknown users or wrong passwords
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service authenticates operators and issues JWT bearer tokens
type Service struct {
	mu     sync.RWMutex
	users  map[string]*User
	secret []byte
}

// NewService creates an auth service with an empty user table
func NewService(secret string) *Service {
	return &Service{
		users:  make(map[string]*User),
		secret: []byte(secret),
	}
}

// usersFile is the on-disk shape of the operator accounts file
type usersFile struct {
	Users []User `yaml:"users"`
}

// LoadUsers reads operator accounts from a YAML file. A missing file leaves
// the table empty, which locks out all command endpoints.
func (s *Service) LoadUsers(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read users file %s: %w", path, err)
	}

	var uf usersFile
	if err := yaml.Unmarshal(data, &uf); err != nil {
		return 0, fmt.Errorf("failed to parse users file %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	loaded := 0
	for i := range uf.Users {
		u := uf.Users[i]
		if u.Username == "" || u.PasswordHash == "" {
			continue
		}
		s.users[u.Username] = &u
		loaded++
	}
	return loaded, nil
}

// Authenticate verifies a username/password pair and returns a signed token
func (s *Service) Authenticate(username, password string) (*User, string, error) {
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()

	if !ok {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Claims is the JWT claim set for operator tokens
type Claims struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// issueToken signs a 24h HS256 token for the user
func (s *Service) issueToken(user *User) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}

// ParseToken validates a token string and returns its claims
func (s *Service) ParseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
