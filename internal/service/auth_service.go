package service

import (
	"context"
	"time"

	"github.com/askbase/askbase/internal/config"
	appErr "github.com/askbase/askbase/internal/pkg/errors"
	"github.com/askbase/askbase/internal/pkg/jwt"
	"github.com/askbase/askbase/internal/pkg/password"
)

type AuthService struct {
	admin  config.AdminConfig
	secret []byte
	ttl    time.Duration
}

func NewAuthService(admin config.AdminConfig, secret []byte, ttl time.Duration) *AuthService {
	return &AuthService{admin: admin, secret: secret, ttl: ttl}
}

// Login checks the admin credentials and issues a bearer token for the
// ops API.
func (s *AuthService) Login(ctx context.Context, user, pass string) (string, error) {
	_ = ctx
	if user != s.admin.User || !password.Verify(s.admin.PasswordHash, pass) {
		return "", appErr.ErrUnauthorized
	}
	return jwt.GenerateToken(user, s.secret, s.ttl)
}
