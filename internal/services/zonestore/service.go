// Package zonestore reads the zone geometry document written by the
// external zone-configuration service. The document is reloaded on
// every counting operation so configuration changes take effect on the
// next request without a restart.
package zonestore

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"

	"occupancy-worker-go/internal/models"
)

type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Load parses the zone document at path into an immutable snapshot.
// It never fails: a missing, unreadable or malformed document yields
// an empty ZoneSet and a logged diagnostic. Zones with fewer than
// three points are skipped.
func (s *Service) Load(path string) models.ZoneSet {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Zone config unreadable, using empty zones")
		return models.ZoneSet{}
	}

	var raw map[string][]models.Point
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Zone config malformed, using empty zones")
		return models.ZoneSet{}
	}

	for name, points := range raw {
		if len(points) < 3 {
			log.Warn().
				Str("zone", name).
				Int("points", len(points)).
				Msg("Skipping zone with fewer than 3 points")
			delete(raw, name)
		}
	}

	set := models.NewZoneSet(raw)
	log.Debug().Strs("zones", set.Names()).Msg("Zone config loaded")
	return set
}
