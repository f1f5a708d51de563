package auth

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-backend/internal/users"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/outbox"
	"github.com/angelmondragon/tableside-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tableside-backend/pkg/security"
)

const (
	minPasswordLength  = 8
	maxDisplayNameRune = 60
)

type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"required,notblank,max=60"`
}

// normalize trims and lowercases what is stored, and lists every field that
// is still unusable.
func (r RegisterRequest) normalize() (RegisterRequest, map[string]string) {
	out := RegisterRequest{
		Email:       strings.ToLower(strings.TrimSpace(r.Email)),
		Password:    r.Password,
		DisplayName: strings.TrimSpace(r.DisplayName),
	}
	problems := map[string]string{}
	if out.Email == "" {
		problems["email"] = "required"
	}
	if utf8.RuneCountInString(out.Password) < minPasswordLength {
		problems["password"] = "must be at least 8 characters"
	}
	switch n := utf8.RuneCountInString(out.DisplayName); {
	case n == 0:
		problems["display_name"] = "required"
	case n > maxDisplayNameRune:
		problems["display_name"] = "must be at most 60 characters"
	}
	return out, problems
}

type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type RegisterServiceParams struct {
	DB             txRunner
	Outbox         outboxEmitter
	PasswordConfig config.PasswordConfig
	Now            func() time.Time
}

type registerService struct {
	db       txRunner
	outbox   outboxEmitter
	password config.PasswordConfig
	now      func() time.Time
}

func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	var err error
	if params.DB == nil {
		err = multierr.Append(err, errors.New("database client is required"))
	}
	if params.Outbox == nil {
		err = multierr.Append(err, errors.New("outbox emitter is required"))
	}
	if err != nil {
		return nil, err
	}
	s := &registerService{db: params.DB, outbox: params.Outbox, password: params.PasswordConfig, now: params.Now}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func emailTaken() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
}

// Register opens an account with no current table and an empty history, and
// emits user_registered in the same transaction.
func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error) {
	req, problems := req.normalize()
	if len(problems) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid registration").WithDetails(problems)
	}
	hash, err := security.HashPassword(req.Password, s.password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var created *users.UserDTO
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := users.NewRepository(tx)
		switch _, err := repo.FindByEmail(ctx, req.Email); {
		case err == nil:
			return emailTaken()
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}

		user, err := repo.Create(ctx, users.CreateUserDTO{Email: req.Email, PasswordHash: hash, DisplayName: req.DisplayName})
		if db.IsUniqueViolation(err, "") {
			return emailTaken()
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}

		at := s.now().UTC()
		event := outbox.DomainEvent{
			EventType:     enums.EventUserRegistered,
			AggregateType: enums.AggregateUser,
			AggregateID:   user.ID,
			Actor:         &outbox.ActorRef{UserID: user.ID, Role: "user"},
			Data:          payloads.UserRegisteredEvent{UserID: user.ID, DisplayName: user.DisplayName, RegisteredAt: at},
			OccurredAt:    at,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit user registered")
		}
		created = users.FromModel(user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
