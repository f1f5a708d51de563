package locations

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
)

// Repository reads and seeds location rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// List returns every location ordered by name.
func (r *Repository) List(ctx context.Context) ([]models.Location, error) {
	var rows []models.Location
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindByID loads a location by its slug.
func (r *Repository) FindByID(ctx context.Context, id string) (*models.Location, error) {
	var loc models.Location
	if err := r.db.WithContext(ctx).First(&loc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loc, nil
}

// InsertIfMissing stores loc unless a row with the same id exists.
func (r *Repository) InsertIfMissing(ctx context.Context, loc models.Location) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&loc)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
