package models

import (
	"reflect"
	"testing"
)

func square(x1, y1, x2, y2 int) []Point {
	return []Point{{x1, y1}, {x2, y1}, {x2, y2}, {x1, y2}}
}

func TestContainsPoint(t *testing.T) {
	zone := Zone{Name: "A", Points: square(0, 0, 10, 10)}

	tests := []struct {
		name string
		x, y float64
		want bool
	}{
		{"strictly inside", 5, 5, true},
		{"strictly outside", 15, 5, false},
		{"far outside", 100, 100, false},
		{"on vertical edge", 10, 5, true},
		{"on horizontal edge", 5, 0, true},
		{"on corner", 0, 0, true},
		{"just outside edge", 10.5, 5, false},
		{"non-integer inside", 9.99, 9.99, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := zone.ContainsPoint(tt.x, tt.y); got != tt.want {
				t.Errorf("ContainsPoint(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestContainsPointConcavePolygon(t *testing.T) {
	// L-shape: the notch at the top right is outside.
	zone := Zone{Name: "L", Points: []Point{
		{0, 0}, {10, 0}, {10, 5}, {5, 5}, {5, 10}, {0, 10},
	}}

	if !zone.ContainsPoint(2, 8) {
		t.Error("point in the vertical arm should be inside")
	}
	if !zone.ContainsPoint(8, 2) {
		t.Error("point in the horizontal arm should be inside")
	}
	if zone.ContainsPoint(8, 8) {
		t.Error("point in the notch should be outside")
	}
}

func TestContainsPointDegenerate(t *testing.T) {
	zone := Zone{Name: "bad", Points: []Point{{0, 0}, {10, 0}}}
	if zone.ContainsPoint(5, 0) {
		t.Error("polygon with fewer than 3 points contains nothing")
	}
}

func TestNewZoneSetOrdering(t *testing.T) {
	set := NewZoneSet(map[string][]Point{
		"C": square(40, 0, 50, 10),
		"A": square(0, 0, 10, 10),
		"B": square(20, 0, 30, 10),
	})

	if got, want := set.Names(), []string{"A", "B", "C"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	if set.Empty() {
		t.Fatal("set with zones reported empty")
	}
	if !(ZoneSet{}).Empty() {
		t.Fatal("zero set not reported empty")
	}
}

func TestAnchorIsBoxCenter(t *testing.T) {
	det := Detection{X1: 10, Y1: 20, X2: 30, Y2: 60}
	x, y := det.Anchor()
	if x != 20 || y != 40 {
		t.Fatalf("Anchor() = (%v, %v), want (20, 40)", x, y)
	}
}

func TestZoneCountsOrdered(t *testing.T) {
	counts := ZoneCounts{"A": 2, "C": 1}
	if got, want := counts.Ordered([]string{"A", "B", "C"}), []int{2, 0, 1}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Ordered() = %v, want %v", got, want)
	}
}

func TestZeroCounts(t *testing.T) {
	counts := ZeroCounts([]string{"A", "B", "C"})
	if len(counts) != 3 {
		t.Fatalf("ZeroCounts length = %d, want 3", len(counts))
	}
	for name, n := range counts {
		if n != 0 {
			t.Errorf("zone %s = %d, want 0", name, n)
		}
	}
}
