// Package detection runs the person detector in-process over OpenCV's
// DNN module. Any model with the same contract (image in, boxes +
// class + confidence out) is interchangeable; filtering to the target
// class, minimum confidence and duplicate suppression all happen here
// so the classifier only ever sees people.
package detection

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"occupancy-worker-go/internal/config"
	"occupancy-worker-go/internal/models"
)

type Service struct {
	cfg *config.Config

	// gocv.Net is not safe for concurrent Forward calls.
	mu  sync.Mutex
	net gocv.Net
}

// NewService loads the detection network. A load failure here is the
// one condition the process cannot degrade around: there is no
// fallback value for a missing detector, so the caller should treat
// this error as fatal.
func NewService(cfg *config.Config) (*Service, error) {
	log.Info().
		Str("model", cfg.ModelPath).
		Str("config", cfg.ModelConfigPath).
		Msg("Loading detection model")

	net := gocv.ReadNet(cfg.ModelPath, cfg.ModelConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("load detection model %s: network is empty", cfg.ModelPath)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("set network backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("set network target: %w", err)
	}

	log.Info().Msg("Detection model loaded")

	return &Service{cfg: cfg, net: net}, nil
}

// Detect runs one inference pass and returns person detections above
// the configured confidence threshold, with near-duplicate boxes
// suppressed by NMS at the configured IoU threshold. Detections are
// in source-frame pixel coordinates.
func (s *Service) Detect(ctx context.Context, img gocv.Mat) ([]models.Detection, error) {
	if img.Empty() {
		return nil, fmt.Errorf("detect: empty input frame")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("detect cancelled: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.cfg.InferenceSize
	blob := gocv.BlobFromImage(img, 1.0/127.5, image.Pt(size, size),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")

	output := s.net.Forward("")
	defer output.Close()

	// SSD-style output: rows of [batch, classID, confidence, x1, y1, x2, y2]
	// with normalized coordinates.
	rows := output.Total() / 7
	if rows == 0 {
		return nil, nil
	}
	reshaped := output.Reshape(1, rows)
	defer reshaped.Close()

	cols := float64(img.Cols())
	imgRows := float64(img.Rows())

	var boxes []image.Rectangle
	var scores []float32
	var candidates []models.Detection

	for i := 0; i < reshaped.Rows(); i++ {
		confidence := reshaped.GetFloatAt(i, 2)
		classID := int(reshaped.GetFloatAt(i, 1))

		if classID != s.cfg.PersonClassID || confidence <= s.cfg.ConfidenceThreshold {
			continue
		}

		det := models.Detection{
			X1:         clamp(float64(reshaped.GetFloatAt(i, 3))*cols, 0, cols),
			Y1:         clamp(float64(reshaped.GetFloatAt(i, 4))*imgRows, 0, imgRows),
			X2:         clamp(float64(reshaped.GetFloatAt(i, 5))*cols, 0, cols),
			Y2:         clamp(float64(reshaped.GetFloatAt(i, 6))*imgRows, 0, imgRows),
			Confidence: confidence,
			Label:      s.cfg.PersonLabel,
		}

		candidates = append(candidates, det)
		boxes = append(boxes, image.Rect(int(det.X1), int(det.Y1), int(det.X2), int(det.Y2)))
		scores = append(scores, confidence)
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	kept := gocv.NMSBoxes(boxes, scores, s.cfg.ConfidenceThreshold, s.cfg.NMSThreshold)

	detections := make([]models.Detection, 0, len(kept))
	for _, idx := range kept {
		if idx >= 0 && idx < len(candidates) {
			detections = append(detections, candidates[idx])
		}
	}

	log.Debug().
		Int("candidates", len(candidates)).
		Int("kept", len(detections)).
		Msg("Inference complete")

	return detections, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Close releases the network.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.net.Close()
}
