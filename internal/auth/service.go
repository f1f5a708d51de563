package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-backend/internal/users"
	pkgAuth "github.com/angelmondragon/tableside-backend/pkg/auth"
	"github.com/angelmondragon/tableside-backend/pkg/auth/session"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/security"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is a fresh token pair plus the caller's profile.
type LoginResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	User         *users.UserDTO `json:"user"`
}

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
}

type credentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time, rehashed string) error
}

type refreshIssuer interface {
	Generate(ctx context.Context, accessID string) (string, error)
}

type ServiceParams struct {
	UserRepo       credentialStore
	SessionManager refreshIssuer
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	Now            func() time.Time
}

type service struct {
	users    credentialStore
	refresh  refreshIssuer
	jwt      config.JWTConfig
	password config.PasswordConfig
	now      func() time.Time
	decoy    func() string
}

func badCredentials() error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
}

func NewService(params ServiceParams) (Service, error) {
	var err error
	if params.UserRepo == nil {
		err = multierr.Append(err, errors.New("user repository is required"))
	}
	if params.SessionManager == nil {
		err = multierr.Append(err, errors.New("session manager is required"))
	}
	if err != nil {
		return nil, err
	}
	s := &service{
		users:    params.UserRepo,
		refresh:  params.SessionManager,
		jwt:      params.JWTConfig,
		password: params.PasswordConfig,
		now:      params.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	// A throwaway hash at the configured cost, so unknown emails take as long
	// to reject as wrong passwords.
	s.decoy = sync.OnceValue(func() string {
		h, _ := security.HashPassword(uuid.NewString(), s.password)
		return h
	})
	return s, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.check(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	at := s.now().UTC()
	var rehashed string
	if security.NeedsRehash(user.PasswordHash, s.password) {
		// best effort; the old hash keeps working if this fails
		rehashed, _ = security.HashPassword(req.Password, s.password)
	}
	if err := s.users.RecordLogin(ctx, user.ID, at, rehashed); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record login")
	}
	user.LastLoginAt = &at

	accessID := session.NewAccessID()
	access, err := pkgAuth.MintAccessToken(s.jwt, at, pkgAuth.AccessTokenPayload{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		JTI:         accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refresh, err := s.refresh.Generate(ctx, accessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refresh token")
	}
	return &LoginResponse{AccessToken: access, RefreshToken: refresh, User: users.FromModel(user)}, nil
}

// check returns the same unauthorized error for an unknown email, a blank one
// and a wrong password.
func (s *service) check(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, badCredentials()
	}
	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		_, _ = security.VerifyPassword(password, s.decoy())
		return nil, badCredentials()
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, badCredentials()
	}
	return user, nil
}
