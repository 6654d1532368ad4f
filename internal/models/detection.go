package models

import "time"

// Detection is one observed object in a captured frame. Coordinates
// are source-frame pixels, xyxy order.
type Detection struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float32 `json:"confidence"`
	Label      string  `json:"label"`
}

// Anchor returns the detection's representative point for zone
// membership testing: the bounding-box center.
func (d Detection) Anchor() (float64, float64) {
	return (d.X1 + d.X2) / 2, (d.Y1 + d.Y2) / 2
}

// ZoneCounts maps zone name to the number of detections anchored
// inside that zone.
type ZoneCounts map[string]int

// ZeroCounts returns counts of zero for every zone in the given
// alphabet.
func ZeroCounts(alphabet []string) ZoneCounts {
	counts := make(ZoneCounts, len(alphabet))
	for _, name := range alphabet {
		counts[name] = 0
	}
	return counts
}

// Ordered returns one integer per zone in the given order. Zones
// missing from the counts report zero.
func (c ZoneCounts) Ordered(alphabet []string) []int {
	results := make([]int, len(alphabet))
	for i, name := range alphabet {
		results[i] = c[name]
	}
	return results
}

// Outcome describes one completed counting operation, including the
// side-channel results that never influence the returned counts.
type Outcome struct {
	Counts     ZoneCounts    `json:"counts"`
	CapturedAt time.Time     `json:"captured_at"`
	Duration   time.Duration `json:"duration"`

	CaptureFailed  bool `json:"capture_failed"`
	ZonesEmpty     bool `json:"zones_empty"`
	DetectorFailed bool `json:"detector_failed"`

	// Side-channel persistence results.
	OriginalSaved  bool `json:"original_saved"`
	AnnotatedSaved bool `json:"annotated_saved"`
}
