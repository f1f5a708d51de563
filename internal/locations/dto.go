package locations

import (
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
)

// LocationDTO is the public shape of a location.
type LocationDTO struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Image    string            `json:"image"`
	Zones    []string          `json:"zones"`
	ZoneMaps map[string]string `json:"zone_maps"`
}

func FromModel(m models.Location) LocationDTO {
	zones := make([]string, 0, len(m.Zones))
	zones = append(zones, m.Zones...)
	maps := make(map[string]string, len(m.ZoneMaps))
	for zone, url := range m.ZoneMaps {
		maps[zone] = url
	}
	return LocationDTO{
		ID:       m.ID,
		Name:     m.Name,
		Image:    m.Image,
		Zones:    zones,
		ZoneMaps: maps,
	}
}
