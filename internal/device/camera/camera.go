package camera

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"camcontrol/internal/config"
	"camcontrol/internal/logger"

	"gocv.io/x/gocv"
)

var (
	// ErrEndOfStream means the device yielded no frame. It is terminal.
	ErrEndOfStream = errors.New("camera: end of stream")
	// ErrReadTimeout means a read did not return within the configured bound.
	ErrReadTimeout = errors.New("camera: frame read timed out")
	// ErrEmptyFrame means a frame was produced but holds no pixels.
	ErrEmptyFrame = errors.New("camera: empty frame")
)

// closeGrace bounds how long Close waits for a read that is still in flight.
const closeGrace = 2 * time.Second

// Source produces raw BGR frames, one per Read.
type Source interface {
	// Read fills dst with the next frame. ErrEndOfStream and ErrReadTimeout
	// are terminal; callers stop reading.
	Read(dst *gocv.Mat) error
	Close() error
}

// Camera reads frames from a V4L/OpenCV capture device.
type Camera struct {
	device  string
	capture *gocv.VideoCapture
	timeout time.Duration
	logger  *logger.Logger

	buf      gocv.Mat
	inflight sync.WaitGroup

	mu     sync.Mutex
	closed bool
	stuck  bool
}

// OpenCamera opens the configured device and requests the configured
// resolution and frame rate. The device may ignore unsupported values.
func OpenCamera(cfg *config.Config, logger *logger.Logger) (*Camera, error) {
	capture, err := gocv.OpenVideoCapture(cfg.CameraDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %s: %w", cfg.CameraDevice, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("failed to open camera %s: device not opened", cfg.CameraDevice)
	}

	capture.Set(gocv.VideoCaptureFPS, float64(cfg.FrameRate))
	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.FrameWidth))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.FrameHeight))

	logger.Info("Camera %s opened: requested %dx%d@%d, device reports %.0fx%.0f@%.0f",
		cfg.CameraDevice, cfg.FrameWidth, cfg.FrameHeight, cfg.FrameRate,
		capture.Get(gocv.VideoCaptureFrameWidth),
		capture.Get(gocv.VideoCaptureFrameHeight),
		capture.Get(gocv.VideoCaptureFPS))

	return &Camera{
		device:  cfg.CameraDevice,
		capture: capture,
		timeout: cfg.FrameReadTimeout,
		logger:  logger,
		buf:     gocv.NewMat(),
	}, nil
}

// Read grabs the next frame into dst. The blocking device read runs in its
// own goroutine so that a hung device surfaces as ErrReadTimeout.
func (c *Camera) Read(dst *gocv.Mat) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrEndOfStream
	}
	if c.stuck {
		c.mu.Unlock()
		return ErrReadTimeout
	}
	c.mu.Unlock()

	done := make(chan bool, 1)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		done <- c.capture.Read(&c.buf)
	}()

	var timeout <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ok := <-done:
		if !ok || c.buf.Empty() {
			return ErrEndOfStream
		}
		if err := c.buf.CopyTo(dst); err != nil {
			return fmt.Errorf("failed to copy frame from %s: %w", c.device, err)
		}
		return nil
	case <-timeout:
		c.mu.Lock()
		c.stuck = true
		c.mu.Unlock()
		c.logger.Error("Camera %s: no frame within %s", c.device, c.timeout)
		return ErrReadTimeout
	}
}

// Close releases the device once any in-flight read has returned.
func (c *Camera) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-time.After(closeGrace):
		return fmt.Errorf("camera %s: read still in flight after %s", c.device, closeGrace)
	}

	c.buf.Close()
	if err := c.capture.Close(); err != nil {
		return fmt.Errorf("failed to close camera %s: %w", c.device, err)
	}
	c.logger.Info("Camera %s closed", c.device)
	return nil
}
