package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/outbox"
	"github.com/angelmondragon/tableside-backend/pkg/outbox/payloads"
)

type usersRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateDisplayName(ctx context.Context, id uuid.UUID, name string) error
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// TableLeaver releases whatever table the user currently sits at.
type TableLeaver interface {
	LeaveCurrentTable(ctx context.Context, userID uuid.UUID, reason string) error
}

// SessionRevoker drops the refresh session behind an access token.
type SessionRevoker interface {
	Revoke(ctx context.Context, accessID string) error
}

// Service exposes profile operations for the signed-in user.
type Service interface {
	Profile(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileDTO) (*UserDTO, error)
	Participants(ctx context.Context, ids []uuid.UUID) ([]ParticipantDTO, error)
	DeleteAccount(ctx context.Context, userID uuid.UUID, accessID string) error
}

// ServiceParams groups the user service dependencies.
type ServiceParams struct {
	Repo     usersRepository
	TxRunner txRunner
	Outbox   outboxEmitter
	Tables   TableLeaver
	Sessions SessionRevoker
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     usersRepository
	tx       txRunner
	outbox   outboxEmitter
	tables   TableLeaver
	sessions SessionRevoker
	logg     *logger.Logger
	now      func() time.Time
}

// NewService validates the dependencies and builds the user service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Tables == nil {
		return nil, fmt.Errorf("table leaver required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		tx:       params.TxRunner,
		outbox:   params.Outbox,
		tables:   params.Tables,
		sessions: params.Sessions,
		logg:     params.Logger,
		now:      now,
	}, nil
}

func (s *service) Profile(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileDTO) (*UserDTO, error) {
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name is required")
	}
	if _, err := s.load(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateDisplayName(ctx, userID, name); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update display name")
	}
	return s.Profile(ctx, userID)
}

func (s *service) Participants(ctx context.Context, ids []uuid.UUID) ([]ParticipantDTO, error) {
	rows, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load participants")
	}
	byID := make(map[uuid.UUID]models.User, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	// keep the table's seating order; missing accounts drop out
	out := make([]ParticipantDTO, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			out = append(out, ParticipantFromModel(row))
		}
	}
	return out, nil
}

func (s *service) DeleteAccount(ctx context.Context, userID uuid.UUID, accessID string) error {
	if _, err := s.load(ctx, userID); err != nil {
		return err
	}
	if err := s.tables.LeaveCurrentTable(ctx, userID, "Account deleted"); err != nil {
		return err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if err := repo.Delete(ctx, userID); err != nil {
			return err
		}
		now := s.now().UTC()
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserDeleted,
			AggregateType: enums.AggregateUser,
			AggregateID:   userID,
			Actor:         &outbox.ActorRef{UserID: userID},
			Data:          payloads.UserDeletedEvent{UserID: userID, DeletedAt: now},
			OccurredAt:    now,
		})
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete user")
	}

	if s.sessions != nil && strings.TrimSpace(accessID) != "" {
		if err := s.sessions.Revoke(ctx, accessID); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "session revoke after account delete failed")
		}
	}
	return nil
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}
