package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"agency-ledger/internal/core/ports"
	"agency-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// AdminAccount is the configured back-office credential.
type AdminAccount struct {
	Username     string
	PasswordHash string // Argon2id, PHC format
}

// AuthServiceImpl implements ports.AuthService for the single admin account.
type AuthServiceImpl struct {
	account  AdminAccount
	hashSvc  ports.HashService
	tokenSvc ports.TokenService
	log      zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(account AdminAccount, hashSvc ports.HashService, tokenSvc ports.TokenService, log zerolog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		account:  account,
		hashSvc:  hashSvc,
		tokenSvc: tokenSvc,
		log:      log,
	}
}

// Login validates credentials and returns a JWT token.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	if username == "" || password == "" {
		return "", time.Time{}, apperror.ErrMissingField("username and password are required")
	}
	if s.account.PasswordHash == "" {
		s.log.Warn().Msg("admin login attempted but admin.password_hash is not configured")
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	// the hash is verified even for an unknown username so both paths cost the same
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.account.Username)) == 1
	valid, err := s.hashSvc.Verify(password, s.account.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !userOK || !valid {
		s.log.Warn().Str("username", username).Msg("admin login failed")
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiry, err := s.tokenSvc.Generate(s.account.Username)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	s.log.Info().Str("username", username).Msg("admin logged in")
	return token, expiry, nil
}
