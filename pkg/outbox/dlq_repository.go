package outbox

import (
	"context"
	"errors"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
)

const (
	maxDLQErrorLen   = 1024
	defaultDLQListed = 50
)

// DLQRepository stores rows the relay gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx records entry in the relay's batch transaction.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		short := clip(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &short
	}
	return tx.Create(&entry).Error
}

// List returns up to limit dead letters, newest first.
func (r *DLQRepository) List(ctx context.Context, limit int) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = defaultDLQListed
	}
	var rows []models.OutboxDLQ
	err := r.db.WithContext(ctx).Order("failed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
