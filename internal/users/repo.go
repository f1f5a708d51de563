package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/types"
)

// Repository is the gorm-backed store for users and their table pointers.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// one loads a single user; gorm.ErrRecordNotFound passes through untouched.
func (r *Repository) one(q *gorm.DB, cond string, arg any) (*models.User, error) {
	user := new(models.User)
	if err := q.Where(cond, arg).Take(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail matches case-insensitively; emails are stored lowercased.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.one(r.db.WithContext(ctx), "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.one(r.db.WithContext(ctx), "id = ?", id)
}

// FindByIDForUpdate row-locks the user for the rest of the transaction.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.one(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}), "id = ?", id)
}

// ListByIDs returns roster columns only, in no particular order.
func (r *Repository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	rows := []models.User{}
	if len(ids) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).
		Select("id", "display_name", "user_level").
		Where("id IN ?", ids).
		Find(&rows).Error
	return rows, err
}

// ListWithCurrentTable pages by id through users that point at a table.
func (r *Repository) ListWithCurrentTable(ctx context.Context, after uuid.UUID, limit int) ([]models.User, error) {
	q := r.db.WithContext(ctx).Where("current_table IS NOT NULL")
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	var rows []models.User
	if err := q.Order("id").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// patch writes cols directly, skipping hooks and autoUpdateTime.
func (r *Repository) patch(ctx context.Context, id uuid.UUID, cols map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).UpdateColumns(cols).Error
}

// RecordLogin stamps last_login_at and, when rehashed is set, swaps in the
// upgraded password hash in the same write.
func (r *Repository) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time, rehashed string) error {
	cols := map[string]any{"last_login_at": at}
	if rehashed != "" {
		cols["password_hash"] = rehashed
	}
	return r.patch(ctx, id, cols)
}

func (r *Repository) UpdateDisplayName(ctx context.Context, id uuid.UUID, name string) error {
	return r.patch(ctx, id, map[string]any{"display_name": name, "updated_at": time.Now().UTC()})
}

func (r *Repository) SetCurrentTable(ctx context.Context, id uuid.UUID, current types.CurrentTable) error {
	return r.patch(ctx, id, map[string]any{"current_table": current})
}

// ReleaseTable clears the pointer and stores the new history in one write.
func (r *Repository) ReleaseTable(ctx context.Context, id uuid.UUID, history types.TableHistory) error {
	return r.patch(ctx, id, map[string]any{"current_table": gorm.Expr("NULL"), "table_history": history})
}

func (r *Repository) UpdateTableHistory(ctx context.Context, id uuid.UUID, history types.TableHistory) error {
	return r.patch(ctx, id, map[string]any{"table_history": history})
}

func (r *Repository) ClearCurrentTable(ctx context.Context, id uuid.UUID) error {
	return r.patch(ctx, id, map[string]any{"current_table": gorm.Expr("NULL")})
}

// Delete reports gorm.ErrRecordNotFound when no row matched.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.User{})
	switch {
	case res.Error != nil:
		return res.Error
	case res.RowsAffected == 0:
		return gorm.ErrRecordNotFound
	}
	return nil
}
