package service

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"io"
	"sync"
	"testing"
	"time"

	"camcontrol/internal/config"
	"camcontrol/internal/device/camera"
	"camcontrol/internal/dto"
	"camcontrol/internal/logger"
	"camcontrol/internal/metrics"
	"camcontrol/internal/repository/sqlite"
	"camcontrol/internal/service/notifier"
	"camcontrol/internal/service/stream"
	"camcontrol/internal/service/vision"

	"gocv.io/x/gocv"
)

// recordingLink collects everything written to the serial side.
type recordingLink struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (l *recordingLink) Write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.messages = append(l.messages, string(p))
	return nil
}

func (l *recordingLink) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

// failingSource returns err on every read.
type failingSource struct{ err error }

func (s failingSource) Read(*gocv.Mat) error { return s.err }
func (s failingSource) Close() error         { return nil }

func testConfig(strategy string) *config.Config {
	return &config.Config{
		FrameWidth:        640,
		FrameHeight:       480,
		FrameRate:         30,
		JPEGQuality:       70,
		MinArea:           500,
		BoxColor:          "#ff0000",
		BoxThickness:      2,
		SerialDevice:      config.DeviceNone,
		NotifyStrategy:    strategy,
		KeepAliveInterval: time.Second,
		ClientBuffer:      2,
	}
}

type harness struct {
	manager *Manager
	link    *recordingLink
	repo    *sqlite.EventRepository
	hub     *stream.Hub
}

func newHarness(t *testing.T, cfg *config.Config, source camera.Source, hubBuffer int) *harness {
	t.Helper()
	log := logger.NewWriterLogger(io.Discard, logger.LevelInfo)
	m := metrics.New()

	detector, err := vision.NewDetector(cfg)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	strategy, err := notifier.NewStrategy(cfg)
	if err != nil {
		t.Fatalf("NewStrategy failed: %v", err)
	}

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	link := &recordingLink{}
	repo := sqlite.NewEventRepository(db)
	hub := stream.NewHub(hubBuffer, log)

	manager := NewManager(cfg, Dependencies{
		Source:    source,
		Detector:  detector,
		Notifier:  notifier.NewNotifier(strategy, link, log, m),
		Link:      link,
		Stream:    hub,
		EventRepo: repo,
		Metrics:   m,
		Logger:    log,
	})

	// simulated 30 fps clock: every call advances one frame
	var tick int
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	manager.SetClock(func() time.Time {
		ts := start.Add(time.Duration(tick) * time.Second / 30)
		tick++
		return ts
	})

	return &harness{manager: manager, link: link, repo: repo, hub: hub}
}

func patternSource(frames int) *camera.Pattern {
	p := camera.NewPattern(640, 480, 0)
	p.Limit = frames
	return p
}

func TestManager_EndToEndStateChange(t *testing.T) {
	h := newHarness(t, testConfig(config.StrategyStateChange), patternSource(100), 128)
	sub := h.hub.Subscribe()
	defer sub.Close()

	if err := h.manager.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	msgs := h.link.Messages()
	if len(msgs) != 9 {
		t.Fatalf("Expected 9 messages over 100 frames, got %d: %q", len(msgs), msgs)
	}
	for i, msg := range msgs {
		want := "RED:1\n"
		if i%2 == 1 {
			want = "RED:0\n"
		}
		if msg != want {
			t.Errorf("Message %d = %q, expected %q", i, msg, want)
		}
	}

	events, err := h.repo.Recent(100)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(events) != 9 {
		t.Errorf("Expected 9 stored events, got %d", len(events))
	}

	// every frame was fanned out, then the stream ended
	ctx := context.Background()
	count := 0
	var first []byte
	for {
		frame, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if first == nil {
			first = frame
		}
		count++
	}
	if count != 100 {
		t.Errorf("Expected 100 streamed frames, got %d", count)
	}

	img, err := jpeg.Decode(bytes.NewReader(first))
	if err != nil {
		t.Fatalf("Streamed frame is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 640 || img.Bounds().Dy() != 480 {
		t.Errorf("Expected 640x480, got %v", img.Bounds())
	}

	status := h.manager.Status()
	if status.Running || status.Frames != 100 {
		t.Errorf("Unexpected final status: %+v", status)
	}
	if status.LastEvent == nil || status.LastEvent.State != "alert" {
		t.Errorf("Expected last event to be the final alert, got %+v", status.LastEvent)
	}
}

func TestManager_EndToEndKeepAlive(t *testing.T) {
	h := newHarness(t, testConfig(config.StrategyKeepAlive), patternSource(100), 2)

	if err := h.manager.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	msgs := h.link.Messages()
	if len(msgs) != 5 {
		t.Fatalf("Expected 5 keep-alives (one per visible burst), got %d: %q", len(msgs), msgs)
	}
	for _, msg := range msgs {
		if msg != "K" {
			t.Errorf("Expected K, got %q", msg)
		}
	}

	counts, err := h.repo.CountByState()
	if err != nil {
		t.Fatalf("CountByState failed: %v", err)
	}
	if counts["alert"] != 5 || counts["quiet"] != 4 {
		t.Errorf("Unexpected event counts: %v", counts)
	}
}

func TestManager_SerialFailureKeepsLoopRunning(t *testing.T) {
	h := newHarness(t, testConfig(config.StrategyStateChange), patternSource(40), 2)
	h.link.err = errors.New("unplugged")

	if err := h.manager.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if h.manager.Frames() != 40 {
		t.Errorf("Expected all 40 frames processed, got %d", h.manager.Frames())
	}
	if h.manager.Metrics.SerialErrors.Load() != 3 {
		t.Errorf("Expected 3 failed writes, got %d", h.manager.Metrics.SerialErrors.Load())
	}
}

func TestManager_ReadTimeoutEndsStream(t *testing.T) {
	h := newHarness(t, testConfig(config.StrategyStateChange), failingSource{err: camera.ErrReadTimeout}, 2)
	sub := h.hub.Subscribe()
	defer sub.Close()

	err := h.manager.Run(context.Background())
	if !errors.Is(err, camera.ErrReadTimeout) {
		t.Fatalf("Expected ErrReadTimeout, got %v", err)
	}
	if _, err := sub.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Expected stream to end, got %v", err)
	}
	if status := h.manager.Status(); status.LastError == "" || status.Running {
		t.Errorf("Expected stopped status with error, got %+v", status)
	}
}

func TestManager_StopsOnCancel(t *testing.T) {
	p := camera.NewPattern(64, 48, 0)
	h := newHarness(t, testConfig(config.StrategyStateChange), p, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.manager.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if !h.hub.Closed() {
		t.Error("Expected hub to be closed")
	}
}

func TestManager_SendCommand(t *testing.T) {
	h := newHarness(t, testConfig(config.StrategyStateChange), patternSource(1), 2)

	res, err := h.manager.SendCommand(dto.Command{Command: "forward"})
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if res.Sent != "w" {
		t.Errorf("Expected w, got %q", res.Sent)
	}
	if msgs := h.link.Messages(); len(msgs) != 1 || msgs[0] != "w" {
		t.Errorf("Expected w on the wire, got %q", msgs)
	}

	if _, err := h.manager.SendCommand(dto.Command{Command: "fly"}); err == nil {
		t.Error("Expected error for unknown command")
	}

	h.link.err = errors.New("unplugged")
	res, err = h.manager.SendCommand(dto.Command{Command: "stop"})
	if err == nil || res.Error == "" {
		t.Errorf("Expected write failure to be reported, got %+v, %v", res, err)
	}
}
