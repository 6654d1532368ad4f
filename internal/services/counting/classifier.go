package counting

import "occupancy-worker-go/internal/models"

// Classify assigns each detection to at most one zone by testing its
// anchor point (bounding-box center) against each zone polygon in
// deterministic zone order; the first containing zone wins. The
// boundary counts as inside. Detections outside every zone are counted
// nowhere.
//
// An empty zone set yields zero counts for the fallback alphabet, so
// downstream consumers always receive a well-formed mapping.
func Classify(detections []models.Detection, set models.ZoneSet, fallback []string) (models.ZoneCounts, map[string][]models.Detection) {
	members := make(map[string][]models.Detection)

	if set.Empty() {
		return models.ZeroCounts(fallback), members
	}

	counts := models.ZeroCounts(set.Names())

	assigned := make([]bool, len(detections))
	for _, zone := range set.Zones {
		for i, det := range detections {
			if assigned[i] {
				continue
			}
			x, y := det.Anchor()
			if zone.ContainsPoint(x, y) {
				assigned[i] = true
				counts[zone.Name]++
				members[zone.Name] = append(members[zone.Name], det)
			}
		}
	}

	return counts, members
}
