// Package auth identifies callers against the Users table. Passwords
// are bcrypt hashes; a successful login issues a short-lived JWT whose
// subject becomes the entered-by identifier on every write.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/ritetech/rcm-intake/internal/cache"
	"github.com/ritetech/rcm-intake/internal/model"
	"github.com/ritetech/rcm-intake/internal/service/audit"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

type Config struct {
	Secret      string        `mapstructure:"secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

type Claims struct {
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	cfg     Config
	reader  *cache.Reader
	auditor *audit.Service
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(cfg Config, reader *cache.Reader, auditor *audit.Service, logger zerolog.Logger) *Service {
	if cfg.TokenExpiry <= 0 {
		cfg.TokenExpiry = 12 * time.Hour
	}
	return &Service{
		cfg:     cfg,
		reader:  reader,
		auditor: auditor,
		logger:  logger.With().Str("component", "auth").Logger(),
		now:     time.Now,
	}
}

// Login checks the password against the Users table and returns a
// signed token. Unknown users and wrong passwords are indistinguishable
// to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	user, err := s.lookup(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		// Burn a comparison anyway to keep timing flat.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(password))
		return "", nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	if err := s.auditor.Log(ctx, user.Username, model.AuditActionLogin, map[string]string{"role": user.Role}); err != nil {
		s.logger.Error().Err(err).Str("user", user.Username).Msg("login audit failed")
	}
	return token, user, nil
}

// Verify parses a token and returns its claims.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

func (s *Service) issueToken(user *model.User) (string, error) {
	now := s.now()
	claims := Claims{
		DisplayName: user.DisplayName,
		Role:        user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.Secret))
}

func (s *Service) lookup(ctx context.Context, username string) (*model.User, error) {
	rows, err := s.reader.Read(ctx, model.UsersTable)
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}

	want := strings.ToLower(strings.TrimSpace(username))
	for _, row := range rows {
		if strings.ToLower(strings.TrimSpace(row["Username"])) != want {
			continue
		}
		u := &model.User{
			Username:     strings.TrimSpace(row["Username"]),
			DisplayName:  row["DisplayName"],
			PasswordHash: row["PasswordHash"],
			Role:         strings.TrimSpace(row["Role"]),
		}
		if u.Role == "" {
			u.Role = model.RoleClerk
		}
		return u, nil
	}
	return nil, nil
}
