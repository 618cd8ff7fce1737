package serial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"camcontrol/internal/logger"
)

// fakePort records writes and replays scripted reads.
type fakePort struct {
	mu       sync.Mutex
	written  bytes.Buffer
	failures int           // writes that fail before one succeeds
	block    chan struct{} // when non-nil, Write waits on it
	reads    chan []byte
	closed   bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return 0, errors.New("device busy")
	}
	return p.written.Write(b)
}

func (p *fakePort) Read(b []byte) (int, error) {
	data, ok := <-p.reads
	if !ok {
		return 0, io.EOF
	}
	return copy(b, data), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func testLogger() *logger.Logger {
	return logger.NewWriterLogger(io.Discard, logger.LevelDebug)
}

func TestLink_WriteSucceeds(t *testing.T) {
	port := &fakePort{}
	link := NewLink("fake", port, time.Second, 0, testLogger())

	if err := link.Write([]byte("RED:1\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := port.String(); got != "RED:1\n" {
		t.Errorf("Expected RED:1 on the wire, got %q", got)
	}
	if link.Name() != "fake" {
		t.Errorf("Expected name fake, got %q", link.Name())
	}
}

func TestLink_RetriesTransientFailures(t *testing.T) {
	port := &fakePort{failures: 2}
	link := NewLink("fake", port, time.Second, 2, testLogger())

	if err := link.Write([]byte("K")); err != nil {
		t.Fatalf("Expected write to succeed on third attempt: %v", err)
	}
	if got := port.String(); got != "K" {
		t.Errorf("Expected one K on the wire, got %q", got)
	}
}

func TestLink_GivesUpAfterRetries(t *testing.T) {
	port := &fakePort{failures: 5}
	link := NewLink("fake", port, time.Second, 1, testLogger())

	if err := link.Write([]byte("K")); err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if port.failures != 3 {
		t.Errorf("Expected exactly 2 attempts, %d failures left", port.failures)
	}
}

func TestLink_WriteTimeout(t *testing.T) {
	port := &fakePort{block: make(chan struct{})}
	link := NewLink("fake", port, 20*time.Millisecond, 3, testLogger())

	start := time.Now()
	err := link.Write([]byte("K"))
	if !errors.Is(err, ErrWriteTimeout) {
		t.Fatalf("Expected ErrWriteTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Write should be bounded, took %s", elapsed)
	}

	// still stuck: the next write waits for the first and times out too
	if err := link.Write([]byte("K")); !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("Expected second write to time out behind the stuck one, got %v", err)
	}

	close(port.block)
	if err := link.Write([]byte("K")); err != nil {
		t.Errorf("Expected write to succeed once the port drains: %v", err)
	}
}

func TestLink_ClosedRejectsWrites(t *testing.T) {
	port := &fakePort{}
	link := NewLink("fake", port, time.Second, 0, testLogger())

	if err := link.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !port.closed {
		t.Error("Expected port to be closed")
	}
	if err := link.Write([]byte("K")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := link.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

func TestLink_ListenSplitsLines(t *testing.T) {
	port := &fakePort{reads: make(chan []byte, 4)}
	link := NewLink("fake", port, time.Second, 0, testLogger())

	port.reads <- []byte("READY\r\nMO")
	port.reads <- []byte("TOR:ON\n")
	port.reads <- []byte{} // read timeout: no data
	port.reads <- []byte("\n")
	close(port.reads)

	var lines []string
	if err := link.Listen(context.Background(), func(line string) {
		lines = append(lines, line)
	}); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	if len(lines) != 2 || lines[0] != "READY" || lines[1] != "MOTOR:ON" {
		t.Errorf("Unexpected lines: %q", lines)
	}
}

func TestNop_DropsWrites(t *testing.T) {
	var buf bytes.Buffer
	nop := NewNop(logger.NewWriterLogger(&buf, logger.LevelDebug))

	if err := nop.Write([]byte("RED:1\n")); err != nil {
		t.Errorf("Nop write should not fail: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("RED:1")) {
		t.Errorf("Expected dropped message to be logged, got %q", buf.String())
	}
}
