package models

import "sort"

// Point is a single vertex of a zone polygon in source-frame pixel
// coordinates, matching the zone configuration document format.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Zone is a named polygonal region of the camera's field of view.
type Zone struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// ContainsPoint reports whether (x, y) lies inside the zone polygon.
// The polygon boundary counts as inside.
func (z Zone) ContainsPoint(x, y float64) bool {
	n := len(z.Points)
	if n < 3 {
		return false
	}

	// Boundary check first: a point on any edge is inside.
	j := n - 1
	for i := 0; i < n; i++ {
		if onSegment(x, y, z.Points[j], z.Points[i]) {
			return true
		}
		j = i
	}

	// Ray casting for the interior.
	inside := false
	j = n - 1
	for i := 0; i < n; i++ {
		xi, yi := float64(z.Points[i].X), float64(z.Points[i].Y)
		xj, yj := float64(z.Points[j].X), float64(z.Points[j].Y)

		if ((yi > y) != (yj > y)) && (x < (xj-xi)*(y-yi)/(yj-yi)+xi) {
			inside = !inside
		}
		j = i
	}

	return inside
}

const segmentEpsilon = 1e-9

func onSegment(x, y float64, a, b Point) bool {
	ax, ay := float64(a.X), float64(a.Y)
	bx, by := float64(b.X), float64(b.Y)

	cross := (bx-ax)*(y-ay) - (by-ay)*(x-ax)
	if cross > segmentEpsilon || cross < -segmentEpsilon {
		return false
	}
	if x < min(ax, bx)-segmentEpsilon || x > max(ax, bx)+segmentEpsilon {
		return false
	}
	if y < min(ay, by)-segmentEpsilon || y > max(ay, by)+segmentEpsilon {
		return false
	}
	return true
}

// ZoneSet is an immutable snapshot of the zone geometry for one
// counting operation. Zones are kept in deterministic name order so
// first-match assignment is reproducible.
type ZoneSet struct {
	Zones []Zone
}

// NewZoneSet builds a snapshot from the raw name -> points mapping,
// sorted by zone name.
func NewZoneSet(raw map[string][]Point) ZoneSet {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	set := ZoneSet{Zones: make([]Zone, 0, len(names))}
	for _, name := range names {
		set.Zones = append(set.Zones, Zone{Name: name, Points: raw[name]})
	}
	return set
}

// Empty reports whether the snapshot carries no zones.
func (s ZoneSet) Empty() bool {
	return len(s.Zones) == 0
}

// Names returns the zone names in iteration order.
func (s ZoneSet) Names() []string {
	names := make([]string, len(s.Zones))
	for i, z := range s.Zones {
		names[i] = z.Name
	}
	return names
}
