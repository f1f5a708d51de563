package models

import (
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/types"
)

// Location is a campus or venue that hosts tables.
type Location struct {
	ID        string           `gorm:"column:id;type:text;primaryKey"`
	Name      string           `gorm:"column:name;type:text;not null"`
	Image     string           `gorm:"column:image;type:text;not null;default:''"`
	Zones     types.StringList `gorm:"column:zones;type:jsonb;not null"`
	ZoneMaps  types.ZoneMaps   `gorm:"column:zone_maps;type:jsonb;not null"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
