// Package counting composes capture, zone loading, inference and
// classification into a single count-now operation with a guaranteed
// fallback: whatever goes wrong, the caller receives a well-formed
// zone count mapping.
package counting

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"occupancy-worker-go/internal/config"
	"occupancy-worker-go/internal/metrics"
	"occupancy-worker-go/internal/models"
)

// FrameSource captures one exclusively-owned frame per call.
type FrameSource interface {
	Capture(ctx context.Context) (gocv.Mat, error)
}

// Detector returns person detections for a frame.
type Detector interface {
	Detect(ctx context.Context, img gocv.Mat) ([]models.Detection, error)
}

// ZoneLoader produces a fresh zone snapshot per operation.
type ZoneLoader interface {
	Load(path string) models.ZoneSet
}

// HistoryRecorder persists operation outcomes, best-effort.
type HistoryRecorder interface {
	Record(ctx context.Context, outcome models.Outcome) error
}

type Service struct {
	cfg      *config.Config
	frames   FrameSource
	detector Detector
	zones    ZoneLoader
	history  HistoryRecorder // optional
	metrics  *metrics.Metrics

	// One counting operation runs at a time; inbound requests queue
	// behind this.
	opMu sync.Mutex

	lastMu sync.RWMutex
	last   *models.Outcome
}

func NewService(cfg *config.Config, frames FrameSource, detector Detector, zones ZoneLoader, history HistoryRecorder, m *metrics.Metrics) *Service {
	if m == nil {
		// Unexported registry, so an unwatched instance is harmless.
		m = metrics.New()
	}
	return &Service{
		cfg:      cfg,
		frames:   frames,
		detector: detector,
		zones:    zones,
		history:  history,
		metrics:  m,
	}
}

// CountNow runs one full counting operation: capture, load zones,
// detect, classify, persist. It never fails: every stage degrades to
// the next best available result, bottoming out at zero counts for the
// canonical zone alphabet.
func (s *Service) CountNow(ctx context.Context) (counts models.ZoneCounts) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	started := time.Now()
	outcome := models.Outcome{CapturedAt: started}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Counting operation panicked, returning zero counts")
			counts = models.ZeroCounts(s.cfg.CanonicalZones)
		}
		outcome.Counts = counts
		outcome.Duration = time.Since(started)
		s.finish(ctx, outcome)
	}()

	s.metrics.CountOperations.Inc()

	capCtx, cancelCapture := context.WithTimeout(ctx, s.cfg.CaptureTimeout)
	defer cancelCapture()

	frame, err := s.frames.Capture(capCtx)
	if err != nil {
		log.Error().Err(err).Msg("Capture failed, returning zero counts")
		s.metrics.CaptureFailures.Inc()
		outcome.CaptureFailed = true
		return models.ZeroCounts(s.cfg.CanonicalZones)
	}
	defer frame.Close()

	outcome.OriginalSaved = s.persistImage(s.cfg.OriginalImagePath, frame)

	set := s.zones.Load(s.cfg.ZonesConfigPath)
	if set.Empty() {
		s.metrics.ZoneLoadFailures.Inc()
		outcome.ZonesEmpty = true
	}

	detCtx, cancelDetect := context.WithTimeout(ctx, s.cfg.DetectTimeout)
	defer cancelDetect()

	detections, err := s.detector.Detect(detCtx, frame)
	if err != nil {
		// Degrade to zero detections; zone geometry still annotates.
		log.Error().Err(err).Msg("Inference failed, counting with no detections")
		s.metrics.DetectorFailures.Inc()
		outcome.DetectorFailed = true
		detections = nil
	}

	counts, members := Classify(detections, set, s.cfg.CanonicalZones)

	outcome.AnnotatedSaved = s.persistAnnotated(frame, set, members, counts)

	log.Info().
		Interface("counts", counts).
		Int("detections", len(detections)).
		Dur("duration", time.Since(started)).
		Msg("Counting operation complete")

	return counts
}

// LastOutcome returns the most recent operation report, or nil if no
// operation has run yet.
func (s *Service) LastOutcome() *models.Outcome {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	if s.last == nil {
		return nil
	}
	copied := *s.last
	return &copied
}

func (s *Service) finish(ctx context.Context, outcome models.Outcome) {
	s.lastMu.Lock()
	s.last = &outcome
	s.lastMu.Unlock()

	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, outcome); err != nil {
		log.Warn().Err(err).Msg("Failed to record operation history")
		s.metrics.PersistFailures.Inc()
	}
}

// persistImage writes the frame to a fixed well-known path,
// overwriting the previous artifact. Failures are logged and never
// affect the returned counts.
func (s *Service) persistImage(path string, img gocv.Mat) bool {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to create artifact directory")
		s.metrics.PersistFailures.Inc()
		return false
	}
	if ok := gocv.IMWrite(path, img); !ok {
		log.Warn().Str("path", path).Msg("Failed to write image artifact")
		s.metrics.PersistFailures.Inc()
		return false
	}
	return true
}

// persistAnnotated writes the annotated copy of the frame. If
// annotation itself fails the unannotated copy is still persisted.
func (s *Service) persistAnnotated(frame gocv.Mat, set models.ZoneSet, members map[string][]models.Detection, counts models.ZoneCounts) bool {
	annotated := frame.Clone()
	defer annotated.Close()

	if err := drawResult(&annotated, set, members, counts); err != nil {
		log.Warn().Err(err).Msg("Annotation failed, persisting unannotated frame")
		return s.persistImage(s.cfg.ResultImagePath, frame)
	}
	return s.persistImage(s.cfg.ResultImagePath, annotated)
}
