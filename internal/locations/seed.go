package locations

import (
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/types"
)

// DefaultLocations lists the campuses a fresh install starts with.
func DefaultLocations() []models.Location {
	return []models.Location{
		{
			ID:    "USN-Vestfold",
			Name:  "USN - Campus Vestfold",
			Image: "/images/USN-Vestfold.jpg",
			Zones: types.StringList{"alimento", "amfi"},
			ZoneMaps: types.ZoneMaps{
				"alimento": "/images/alimento-map.png",
				"amfi":     "/images/amfi-map.jpeg",
			},
		},
		{
			ID:    "USN-Drammen",
			Name:  "USN - Campus Drammen",
			Image: "/images/USN-Drammen.jpg",
			Zones: types.StringList{"cafeteria", "library"},
			ZoneMaps: types.ZoneMaps{
				"cafeteria": "/images/drammen-cafeteria-map.png",
				"library":   "/images/drammen-library-map.png",
			},
		},
		{
			ID:    "USN-Ringerike",
			Name:  "USN - Campus Ringerike",
			Image: "/images/USN-Ringerike.jpg",
			Zones: types.StringList{"main", "annex"},
			ZoneMaps: types.ZoneMaps{
				"main":  "/images/ringerike-main-map.png",
				"annex": "/images/ringerike-annex-map.png",
			},
		},
		{
			ID:    "USN-Bo",
			Name:  "USN - Campus Bø",
			Image: "/images/USN-Bo.jpg",
			Zones: types.StringList{"canteen", "student-area"},
			ZoneMaps: types.ZoneMaps{
				"canteen":      "/images/bo-canteen-map.png",
				"student-area": "/images/bo-student-area-map.png",
			},
		},
	}
}
