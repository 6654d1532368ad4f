package counting

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"occupancy-worker-go/internal/models"
)

// Fixed per-zone outline colors; zones outside the usual alphabet
// draw in white.
var zoneColors = map[string]color.RGBA{
	"A": {R: 255, A: 255},
	"B": {G: 255, A: 255},
	"C": {B: 255, A: 255},
}

func zoneColor(name string) color.RGBA {
	if c, ok := zoneColors[name]; ok {
		return c
	}
	return color.RGBA{R: 255, G: 255, B: 255, A: 255}
}

// drawResult annotates the frame in place: polygon outlines, bounding
// boxes of zone members with confidence labels, and a count caption
// per zone. Purely for human verification; any panic from the drawing
// layer is converted to an error so the operation's numeric answer is
// never affected.
func drawResult(frame *gocv.Mat, set models.ZoneSet, members map[string][]models.Detection, counts models.ZoneCounts) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("annotation panic: %v", r)
		}
	}()

	width := frame.Cols()
	slot := width
	if len(set.Zones) > 0 {
		slot = width / len(set.Zones)
	}

	for idx, zone := range set.Zones {
		c := zoneColor(zone.Name)

		pts := make([]image.Point, len(zone.Points))
		for i, p := range zone.Points {
			pts[i] = image.Pt(p.X, p.Y)
		}
		pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
		gocv.Polylines(frame, pv, true, c, 8)
		pv.Close()

		for _, det := range members[zone.Name] {
			rect := image.Rect(int(det.X1), int(det.Y1), int(det.X2), int(det.Y2))
			gocv.Rectangle(frame, rect, c, 3)
			gocv.PutText(frame, fmt.Sprintf("%.2f", det.Confidence),
				image.Pt(int(det.X1), int(det.Y1)-5),
				gocv.FontHersheySimplex, 0.6, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 2)
		}

		caption := fmt.Sprintf("Zone %s: %d", zone.Name, counts[zone.Name])
		gocv.PutText(frame, caption, image.Pt(idx*slot+50, 100),
			gocv.FontHersheySimplex, 2, c, 6)
	}

	return nil
}
