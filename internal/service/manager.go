package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"camcontrol/internal/config"
	"camcontrol/internal/device/camera"
	"camcontrol/internal/device/serial"
	"camcontrol/internal/dto"
	"camcontrol/internal/logger"
	"camcontrol/internal/metrics"
	"camcontrol/internal/model"
	"camcontrol/internal/repository"
	"camcontrol/internal/service/notifier"
	"camcontrol/internal/service/storage"
	"camcontrol/internal/service/stream"
	"camcontrol/internal/service/vision"
	"camcontrol/internal/service/websocket"

	"gocv.io/x/gocv"
)

// Dependencies are the pieces the Manager drives. Events, Snapshots and
// EventRepo are optional.
type Dependencies struct {
	Source    camera.Source
	Detector  *vision.Detector
	Notifier  *notifier.Notifier
	Link      serial.Writer
	Stream    *stream.Hub
	Events    *websocket.HubService
	Snapshots *storage.BufferService
	EventRepo repository.EventRepository
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

// Manager owns the capture loop: it is the only reader of the camera and the
// only caller of the notifier. Each annotated frame is encoded once and handed
// to the stream hub for every viewer.
type Manager struct {
	Dependencies

	quality    int
	serialName string
	frameSize  string
	now        func() time.Time

	mu        sync.RWMutex
	running   bool
	present   bool
	state     notifier.State
	boxes     []dto.Box
	frames    uint64
	lastEvent *dto.EventInfo
	lastErr   error
	startedAt time.Time
}

func NewManager(cfg *config.Config, deps Dependencies) *Manager {
	serialName := "disabled"
	if cfg.SerialEnabled() {
		serialName = cfg.SerialDevice
	}

	return &Manager{
		Dependencies: deps,
		quality:      cfg.JPEGQuality,
		serialName:   serialName,
		frameSize:    fmt.Sprintf("%dx%d", cfg.FrameWidth, cfg.FrameHeight),
		now:          time.Now,
		boxes:        []dto.Box{},
	}
}

// SetClock replaces the time source used for notifier timing and event timestamps.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Run reads and processes frames until ctx is cancelled or the source ends.
// The stream hub is closed on return so every viewer's response finishes.
// End of stream and cancellation return nil; any other read failure is returned.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.running = true
	m.startedAt = m.now()
	m.mu.Unlock()

	defer func() {
		m.Stream.Close()
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	frame := gocv.NewMat()
	defer frame.Close()

	m.Logger.Info("Capture loop started (strategy: %s, serial: %s)", m.Notifier.Strategy(), m.serialName)

	for {
		if ctx.Err() != nil {
			m.Logger.Info("Capture loop stopped after %d frames", m.Frames())
			return nil
		}

		if err := m.Source.Read(&frame); err != nil {
			if errors.Is(err, camera.ErrEndOfStream) {
				m.Logger.Warning("Camera stream ended after %d frames", m.Frames())
				m.setError(err)
				return nil
			}
			m.setError(err)
			return fmt.Errorf("failed to read frame: %w", err)
		}

		m.processFrame(&frame)
	}
}

func (m *Manager) processFrame(frame *gocv.Mat) {
	now := m.now()
	m.Metrics.FramesRead.Add(1)

	result, err := m.Detector.Detect(*frame)
	if err != nil {
		m.Metrics.DetectErrors.Add(1)
		m.Logger.Warning("Detection failed: %v", err)
		result = vision.Result{}
	}
	if result.Present {
		m.Metrics.FramesWithRed.Add(1)
	}

	decision := m.Notifier.Observe(result.Present, now)

	if err := m.Detector.Annotate(frame, result.Boxes); err != nil {
		m.Logger.Warning("Annotation failed: %v", err)
	}

	jpeg, err := vision.EncodeJPEG(*frame, m.quality)
	if err != nil {
		m.Metrics.EncodeErrors.Add(1)
		m.Logger.Error("Encoding failed: %v", err)
	} else {
		delivered, dropped := m.Stream.Broadcast(jpeg)
		m.Metrics.FramesBroadcast.Add(uint64(delivered))
		m.Metrics.FramesDropped.Add(uint64(dropped))
	}

	var info *dto.EventInfo
	if decision.Transition {
		info = m.recordTransition(decision, len(result.Boxes), jpeg, now)
	}

	m.mu.Lock()
	m.frames++
	m.present = result.Present
	m.state = decision.State
	m.boxes = dto.NewBoxes(result.Boxes)
	if info != nil {
		m.lastEvent = info
	}
	m.mu.Unlock()
}

// recordTransition stores the event, buffers a snapshot when the target
// appears and pushes the event to control clients.
func (m *Manager) recordTransition(d notifier.Decision, boxes int, jpeg []byte, now time.Time) *dto.EventInfo {
	ev := model.Event{
		State:     d.State.String(),
		Strategy:  m.Notifier.Strategy(),
		Message:   d.Message,
		Sent:      d.Sent,
		Boxes:     boxes,
		Timestamp: now,
	}

	if m.EventRepo != nil {
		if _, err := m.EventRepo.Insert(&ev); err != nil {
			m.Logger.Error("Failed to store event: %v", err)
		}
	}

	if d.State == notifier.Alert && m.Snapshots != nil && jpeg != nil {
		m.Snapshots.AddSnapshot(ev.ID, jpeg, now)
	}

	info := dto.NewEventInfo(ev)
	if m.Events != nil {
		m.Events.PublishEvent(info)
	}
	return &info
}

// SendCommand writes a drive or suction command to the microcontroller.
func (m *Manager) SendCommand(cmd dto.Command) (dto.CommandResult, error) {
	res := dto.CommandResult{Command: cmd.Command}

	b, err := cmd.Byte()
	if err != nil {
		return res, err
	}
	res.Sent = string(b)

	if err := m.Link.Write([]byte{b}); err != nil {
		m.Metrics.SerialErrors.Add(1)
		res.Error = err.Error()
		m.Logger.Error("Failed to send command %s: %v", cmd.Command, err)
		return res, fmt.Errorf("failed to send command %s: %w", cmd.Command, err)
	}
	m.Metrics.MessagesSent.Add(1)
	m.Logger.Info("Command %s -> %q", cmd.Command, b)

	if m.Events != nil {
		m.Events.PublishCommand(res)
	}
	return res, nil
}

// Status is a snapshot of the loop for /api/status.
func (m *Manager) Status() dto.StatusData {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := dto.StatusData{
		Running:   m.running,
		Present:   m.present,
		State:     m.state.String(),
		Strategy:  m.Notifier.Strategy(),
		Boxes:     append([]dto.Box{}, m.boxes...),
		Frames:    m.frames,
		Viewers:   m.Stream.Clients(),
		Serial:    m.serialName,
		LastEvent: m.lastEvent,
		FrameSize: m.frameSize,
	}
	if !m.startedAt.IsZero() {
		status.StartedAt = m.startedAt.Format(time.RFC3339)
	}
	if m.lastErr != nil {
		status.LastError = m.lastErr.Error()
	}
	return status
}

// Frames is the number of frames processed so far.
func (m *Manager) Frames() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frames
}

func (m *Manager) setError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
