package locations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

type locationsRepository interface {
	List(ctx context.Context) ([]models.Location, error)
	FindByID(ctx context.Context, id string) (*models.Location, error)
	InsertIfMissing(ctx context.Context, loc models.Location) (bool, error)
}

// Service exposes the read side of locations plus the operator seed.
type Service interface {
	List(ctx context.Context) ([]LocationDTO, error)
	Get(ctx context.Context, id string) (*LocationDTO, error)
	Seed(ctx context.Context) (int, error)
}

type service struct {
	repo locationsRepository
	logg *logger.Logger
}

func NewService(repo locationsRepository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("locations repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) List(ctx context.Context) ([]LocationDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list locations")
	}
	out := make([]LocationDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id string) (*LocationDTO, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location id is required")
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "location not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load location")
	}
	dto := FromModel(*row)
	return &dto, nil
}

// Seed inserts the default campuses that are not stored yet and returns how many were added.
func (s *service) Seed(ctx context.Context) (int, error) {
	added := 0
	for _, loc := range DefaultLocations() {
		inserted, err := s.repo.InsertIfMissing(ctx, loc)
		if err != nil {
			return added, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed location "+loc.ID)
		}
		if !inserted {
			continue
		}
		added++
		if s.logg != nil {
			s.logg.Info(s.logg.WithField(ctx, "location_id", loc.ID), "location seeded")
		}
	}
	return added, nil
}
