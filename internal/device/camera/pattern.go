package camera

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Pattern is a synthetic Source: a dark frame that shows a solid red square
// for On frames after every Off dark frames.
type Pattern struct {
	Width    int
	Height   int
	On       int
	Off      int
	Size     int           // side of the red square in pixels
	Limit    int           // frames before ErrEndOfStream, 0 = endless
	Interval time.Duration // pacing between frames, 0 = unpaced

	mu     sync.Mutex
	frame  int
	closed bool
	last   time.Time
}

// NewPattern returns an endless, paced pattern alternating every 10 frames.
func NewPattern(width, height, fps int) *Pattern {
	var interval time.Duration
	if fps > 0 {
		interval = time.Second / time.Duration(fps)
	}
	return &Pattern{
		Width:    width,
		Height:   height,
		On:       10,
		Off:      10,
		Size:     80,
		Interval: interval,
	}
}

// Visible reports whether frame n carries the red square.
func (p *Pattern) Visible(n int) bool {
	period := p.On + p.Off
	if period <= 0 || p.On <= 0 {
		return false
	}
	return n%period >= p.Off
}

// Square returns the rectangle the red square occupies on visible frames.
func (p *Pattern) Square() image.Rectangle {
	size := p.Size
	if size > p.Width {
		size = p.Width
	}
	if size > p.Height {
		size = p.Height
	}
	x := (p.Width - size) / 2
	y := (p.Height - size) / 2
	return image.Rect(x, y, x+size, y+size)
}

func (p *Pattern) Read(dst *gocv.Mat) error {
	p.mu.Lock()
	if p.closed || (p.Limit > 0 && p.frame >= p.Limit) {
		p.mu.Unlock()
		return ErrEndOfStream
	}
	n := p.frame
	p.frame++
	wait := time.Duration(0)
	if p.Interval > 0 && !p.last.IsZero() {
		wait = p.Interval - time.Since(p.last)
	}
	p.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), p.Height, p.Width, gocv.MatTypeCV8UC3)
	defer frame.Close()

	if frame.Empty() {
		return fmt.Errorf("pattern frame %d (%dx%d): %w", n, p.Width, p.Height, ErrEmptyFrame)
	}
	if p.Visible(n) {
		sq := p.Square()
		// thickness -1 fills; corners are inclusive
		square := image.Rect(sq.Min.X, sq.Min.Y, sq.Max.X-1, sq.Max.Y-1)
		if err := gocv.Rectangle(&frame, square, color.RGBA{R: 255, A: 255}, -1); err != nil {
			return fmt.Errorf("failed to draw pattern frame %d: %w", n, err)
		}
	}
	if err := frame.CopyTo(dst); err != nil {
		return fmt.Errorf("failed to copy pattern frame %d: %w", n, err)
	}

	p.mu.Lock()
	p.last = time.Now()
	p.mu.Unlock()
	return nil
}

// Frames returns how many frames have been produced.
func (p *Pattern) Frames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}

func (p *Pattern) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
