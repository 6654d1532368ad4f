// Package camera arbitrates exclusive access to the one physical
// capture device and performs single-frame captures with a bounded
// warm-up.
package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"occupancy-worker-go/internal/camlock"
	"occupancy-worker-go/internal/config"
)

// Arbiter serializes camera access across goroutines (in-process
// mutex) and across independent programs (cross-process file lock),
// then captures exactly one frame per call.
type Arbiter struct {
	cfg  *config.Config
	mu   sync.Mutex
	lock *camlock.Lock
}

func NewArbiter(cfg *config.Config) *Arbiter {
	return &Arbiter{
		cfg:  cfg,
		lock: camlock.New(cfg.LockDir, cfg.CameraIndex),
	}
}

// Capture acquires the camera lease, opens the device, configures the
// pixel format, resolution and minimum buffer depth, waits the warm-up
// interval and reads one frame. The returned Mat is owned by the
// caller. Release order on every exit path is hardware first, lease
// second; the deferred unlocks below run in that order.
//
// Capture never retries; retry policy belongs to the caller.
func (a *Arbiter) Capture(ctx context.Context) (gocv.Mat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return gocv.Mat{}, fmt.Errorf("capture cancelled before lock: %w", err)
	}

	// Blocks until any other program using the device releases it, or
	// the capture deadline expires while a wedged holder keeps it.
	if err := a.lock.Acquire(ctx); err != nil {
		return gocv.Mat{}, err
	}
	defer func() {
		if err := a.lock.Release(); err != nil {
			log.Error().Err(err).Msg("Failed to release camera lock")
		}
	}()

	log.Debug().Int("device", a.cfg.CameraIndex).Msg("Camera: opening")

	cap, err := gocv.OpenVideoCapture(a.cfg.CameraIndex)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("open camera %d: %w", a.cfg.CameraIndex, err)
	}
	defer func() {
		if err := cap.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close camera")
		}
		log.Debug().Int("device", a.cfg.CameraIndex).Msg("Camera: closed")
	}()

	if !cap.IsOpened() {
		return gocv.Mat{}, fmt.Errorf("camera %d is not opened", a.cfg.CameraIndex)
	}

	// MJPG keeps high resolutions usable over USB; buffer depth 1
	// avoids reading a stale buffered frame.
	cap.Set(gocv.VideoCaptureFOURCC, cap.ToCodec("MJPG"))
	cap.Set(gocv.VideoCaptureFrameWidth, float64(a.cfg.CameraWidth))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(a.cfg.CameraHeight))
	cap.Set(gocv.VideoCaptureBufferSize, 1)

	select {
	case <-time.After(a.cfg.CameraWarmup):
	case <-ctx.Done():
		return gocv.Mat{}, fmt.Errorf("capture cancelled during warm-up: %w", ctx.Err())
	}

	img := gocv.NewMat()
	if ok := cap.Read(&img); !ok {
		img.Close()
		return gocv.Mat{}, fmt.Errorf("read frame from camera %d failed", a.cfg.CameraIndex)
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, fmt.Errorf("camera %d returned an empty frame", a.cfg.CameraIndex)
	}

	if err := ctx.Err(); err != nil {
		img.Close()
		return gocv.Mat{}, fmt.Errorf("capture deadline exceeded: %w", err)
	}

	log.Debug().
		Int("width", img.Cols()).
		Int("height", img.Rows()).
		Msg("Frame captured")

	return img, nil
}

// LockPath exposes the cross-process lock file location for
// diagnostics.
func (a *Arbiter) LockPath() string {
	return a.lock.Path()
}
