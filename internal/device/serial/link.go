package serial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"camcontrol/internal/config"
	"camcontrol/internal/logger"

	goserial "go.bug.st/serial"
)

// ErrWriteTimeout is returned when a write attempt exceeds the write bound.
var ErrWriteTimeout = errors.New("serial: write timed out")

// ErrClosed is returned by writes on a closed link.
var ErrClosed = errors.New("serial: link closed")

// Writer is what the notifier and the control endpoints need from a link.
type Writer interface {
	Write(p []byte) error
}

// Port is the subset of a serial port the link drives.
type Port interface {
	io.ReadWriteCloser
}

// Link serialises writes to a microcontroller and bounds each one.
type Link struct {
	name         string
	port         Port
	writeTimeout time.Duration
	retries      int
	logger       *logger.Logger

	mu     sync.Mutex
	closed bool
	stuck  chan error
}

// Open opens the configured device, sets the read timeout and waits for the
// board to come out of the reset that opening the port triggers.
func Open(cfg *config.Config, logger *logger.Logger) (*Link, error) {
	port, err := goserial.Open(cfg.SerialDevice, &goserial.Mode{BaudRate: cfg.SerialBaud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.SerialDevice, err)
	}
	if err := port.SetReadTimeout(cfg.SerialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.SerialDevice, err)
	}

	logger.Info("Serial port %s opened at %d baud, waiting %s for board reset",
		cfg.SerialDevice, cfg.SerialBaud, cfg.SerialResetDelay)
	time.Sleep(cfg.SerialResetDelay)

	return NewLink(cfg.SerialDevice, port, cfg.SerialWriteTimeout, cfg.SerialWriteRetries, logger), nil
}

// NewLink wraps an already open port.
func NewLink(name string, port Port, writeTimeout time.Duration, retries int, logger *logger.Logger) *Link {
	if retries < 0 {
		retries = 0
	}
	return &Link{
		name:         name,
		port:         port,
		writeTimeout: writeTimeout,
		retries:      retries,
		logger:       logger,
	}
}

// Write sends p, retrying up to the configured number of extra attempts.
// Only one writer is on the wire at a time.
func (l *Link) Write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	var err error
	for attempt := 0; attempt <= l.retries; attempt++ {
		if err = l.writeOnce(p); err == nil {
			return nil
		}
		if errors.Is(err, ErrWriteTimeout) {
			// the stuck write still owns the port
			break
		}
		l.logger.Warning("Serial %s: write attempt %d/%d failed: %v", l.name, attempt+1, l.retries+1, err)
	}
	return err
}

func (l *Link) writeOnce(p []byte) error {
	var timeout <-chan time.Time
	if l.writeTimeout > 0 {
		timer := time.NewTimer(l.writeTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	// a write that timed out earlier must finish before the next one starts
	if l.stuck != nil {
		select {
		case <-l.stuck:
			l.stuck = nil
		case <-timeout:
			return ErrWriteTimeout
		}
	}

	done := make(chan error, 1)
	go func() {
		n, err := l.port.Write(p)
		if err == nil && n < len(p) {
			err = io.ErrShortWrite
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-timeout:
		l.stuck = done
		return ErrWriteTimeout
	}
}

// Listen reads newline-terminated lines from the controller until ctx is done
// or the port fails. The read timeout makes every Read return periodically so
// cancellation is noticed.
func (l *Link) Listen(ctx context.Context, fn func(line string)) error {
	buf := make([]byte, 256)
	var pending bytes.Buffer

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		n, err := l.port.Read(buf)
		if n > 0 {
			pending.Write(buf[:n])
			for {
				idx := bytes.IndexByte(pending.Bytes(), '\n')
				if idx < 0 {
					break
				}
				line := bytes.TrimRight(pending.Next(idx+1), "\r\n")
				if len(line) > 0 {
					fn(string(line))
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || l.isClosed() {
				return nil
			}
			return fmt.Errorf("serial %s: read failed: %w", l.name, err)
		}
	}
}

func (l *Link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Name is the device path.
func (l *Link) Name() string {
	return l.name
}

// Close releases the port.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if err := l.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", l.name, err)
	}
	l.logger.Info("Serial port %s closed", l.name)
	return nil
}

// Nop stands in for the link when SERIAL_DEVICE is "none": it only logs.
type Nop struct {
	logger *logger.Logger
}

func NewNop(logger *logger.Logger) *Nop {
	return &Nop{logger: logger}
}

func (n *Nop) Write(p []byte) error {
	n.logger.Debug("Serial disabled, dropping %q", p)
	return nil
}
