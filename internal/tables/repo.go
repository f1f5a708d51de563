package tables

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/types"
)

// Repository persists tables.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new table.
func (r *Repository) Create(ctx context.Context, table *models.Table) error {
	return r.db.WithContext(ctx).Create(table).Error
}

// FindByID loads a table scoped to its location.
func (r *Repository) FindByID(ctx context.Context, locationID string, id uuid.UUID) (*models.Table, error) {
	var table models.Table
	if err := r.db.WithContext(ctx).
		Where("id = ? AND location_id = ?", id, locationID).
		First(&table).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

// FindByIDForUpdate loads a table and locks the row for the rest of the transaction.
func (r *Repository) FindByIDForUpdate(ctx context.Context, locationID string, id uuid.UUID) (*models.Table, error) {
	var table models.Table
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND location_id = ?", id, locationID).
		First(&table).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

// ListActive returns the active tables of a location, newest first.
func (r *Repository) ListActive(ctx context.Context, locationID string) ([]models.Table, error) {
	var rows []models.Table
	if err := r.db.WithContext(ctx).
		Where("location_id = ? AND status = ?", locationID, enums.TableStatusActive).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// TakeSeat claims one seat. It affects no rows when the table is inactive or full.
func (r *Repository) TakeSeat(ctx context.Context, id uuid.UUID, joined types.UUIDList, history types.ParticipationHistory) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Table{}).
		Where("id = ? AND status = ? AND available_seats > 0", id, enums.TableStatusActive).
		Updates(map[string]any{
			"available_seats":       gorm.Expr("available_seats - 1"),
			"joined_users":          joined,
			"participation_history": history,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseSeat hands one seat back, never exceeding the table's capacity.
func (r *Repository) ReleaseSeat(ctx context.Context, id uuid.UUID, joined types.UUIDList, history types.ParticipationHistory) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Table{}).
		Where("id = ? AND status = ?", id, enums.TableStatusActive).
		Updates(map[string]any{
			"available_seats":       gorm.Expr("CASE WHEN available_seats + 1 > seats THEN seats ELSE available_seats + 1 END"),
			"joined_users":          joined,
			"participation_history": history,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateParticipation rewrites the participation log.
func (r *Repository) UpdateParticipation(ctx context.Context, id uuid.UUID, history types.ParticipationHistory) error {
	return r.db.WithContext(ctx).
		Model(&models.Table{}).
		Where("id = ?", id).
		Updates(map[string]any{"participation_history": history}).Error
}

// EndParams carries the end-of-life stamp of a table.
type EndParams struct {
	EndedAt              time.Time
	EndedBy              uuid.UUID
	Reason               string
	ParticipantsToNotify types.UUIDList
	History              types.ParticipationHistory
}

// End marks an active table inactive. It affects no rows when the table already ended.
func (r *Repository) End(ctx context.Context, id uuid.UUID, params EndParams) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Table{}).
		Where("id = ? AND status = ?", id, enums.TableStatusActive).
		Updates(map[string]any{
			"status":                 enums.TableStatusInactive,
			"ended_at":               params.EndedAt,
			"ended_by":               params.EndedBy,
			"end_reason":             params.Reason,
			"notify_participants":    true,
			"participants_to_notify": params.ParticipantsToNotify,
			"participation_history":  params.History,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdatePrompt stores the conversation prompt of an active table.
func (r *Repository) UpdatePrompt(ctx context.Context, id uuid.UUID, prompt string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Table{}).
		Where("id = ? AND status = ?", id, enums.TableStatusActive).
		Updates(map[string]any{
			"conversation_prompt": prompt,
			"prompt_updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
