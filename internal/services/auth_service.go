package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/auth"
	"github.com/chainlance/backend/internal/models"
)

type nonceStore interface {
	Issue(ctx context.Context, address string) (string, error)
	Consume(ctx context.Context, address string) (string, error)
}

type userStore interface {
	UpsertByAddress(ctx context.Context, address string, displayName *string) (*models.User, error)
}

// AuthService implements a signed-nonce login: the wallet requests a
// challenge, signs it, and trades the signature for a JWT. Nonces are single
// use and expire on their own.
type AuthService struct {
	nonces        nonceStore
	users         userStore
	jwtSecret     string
	jwtExpiration time.Duration
	log           *zap.Logger
}

func NewAuthService(nonces nonceStore, users userStore, jwtSecret string, jwtExpiration time.Duration, log *zap.Logger) *AuthService {
	return &AuthService{
		nonces:        nonces,
		users:         users,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		log:           log,
	}
}

// Challenge issues a fresh nonce and the exact message the wallet must sign.
func (s *AuthService) Challenge(ctx context.Context, address string) (string, error) {
	nonce, err := s.nonces.Issue(ctx, address)
	if err != nil {
		return "", &CollaboratorError{Op: "issue nonce", Err: err}
	}
	return auth.LoginMessage(address, nonce), nil
}

// Login verifies the signed challenge and returns a JWT plus the user record.
func (s *AuthService) Login(ctx context.Context, address, signature string, displayName *string) (string, *models.User, error) {
	nonce, err := s.nonces.Consume(ctx, address)
	if err != nil {
		return "", nil, fmt.Errorf("challenge expired or never issued: %w", err)
	}

	message := auth.LoginMessage(address, nonce)
	if err := auth.VerifySignature(address, message, signature); err != nil {
		return "", nil, fmt.Errorf("signature verification failed: %w", err)
	}

	user, err := s.users.UpsertByAddress(ctx, address, displayName)
	if err != nil {
		return "", nil, &CollaboratorError{Op: "upsert user", Err: err}
	}

	token, err := auth.GenerateJWT(s.jwtSecret, user.ID, user.Address, s.jwtExpiration)
	if err != nil {
		return "", nil, err
	}

	s.log.Info("wallet authenticated", zap.String("address", user.Address))
	return token, user, nil
}
