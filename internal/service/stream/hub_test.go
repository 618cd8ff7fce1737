package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"camcontrol/internal/logger"
)

func newTestHub(buffer int) *Hub {
	return NewHub(buffer, logger.NewWriterLogger(io.Discard, logger.LevelDebug))
}

func TestHub_BroadcastReachesEverySubscriber(t *testing.T) {
	hub := newTestHub(2)
	a := hub.Subscribe()
	b := hub.Subscribe()
	defer a.Close()
	defer b.Close()

	if hub.Clients() != 2 {
		t.Fatalf("Expected 2 clients, got %d", hub.Clients())
	}

	delivered, dropped := hub.Broadcast([]byte("jpeg-1"))
	if delivered != 2 || dropped != 0 {
		t.Errorf("Expected 2 delivered / 0 dropped, got %d / %d", delivered, dropped)
	}

	ctx := context.Background()
	for _, sub := range []*Subscription{a, b} {
		frame, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if string(frame) != "jpeg-1" {
			t.Errorf("Expected jpeg-1, got %q", frame)
		}
	}
}

func TestHub_SlowSubscriberDropsFrames(t *testing.T) {
	hub := newTestHub(1)
	slow := hub.Subscribe()
	fast := hub.Subscribe()
	defer slow.Close()
	defer fast.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		hub.Broadcast([]byte{byte(i)})
		if _, err := fast.Next(ctx); err != nil {
			t.Fatalf("Fast subscriber Next failed: %v", err)
		}
	}

	// slow kept only the first frame
	frame, err := slow.Next(ctx)
	if err != nil {
		t.Fatalf("Slow subscriber Next failed: %v", err)
	}
	if frame[0] != 0 {
		t.Errorf("Expected the first frame, got %d", frame[0])
	}
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	hub := newTestHub(2)
	sub := hub.Subscribe()

	hub.Broadcast([]byte("last"))
	hub.Close()

	ctx := context.Background()
	frame, err := sub.Next(ctx)
	if err != nil || string(frame) != "last" {
		t.Fatalf("Expected queued frame before EOF, got %q, %v", frame, err)
	}
	if _, err := sub.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}

	late := hub.Subscribe()
	if _, err := late.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF for subscription after close, got %v", err)
	}

	// closing twice and after the hub is gone is harmless
	sub.Close()
	sub.Close()
	hub.Close()

	if d, _ := hub.Broadcast([]byte("x")); d != 0 {
		t.Errorf("Expected closed hub to deliver nothing, got %d", d)
	}
}

func TestSubscription_NextHonoursContext(t *testing.T) {
	hub := newTestHub(1)
	sub := hub.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := sub.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestSubscription_CloseUnsubscribes(t *testing.T) {
	hub := newTestHub(1)
	sub := hub.Subscribe()
	sub.Close()

	if hub.Clients() != 0 {
		t.Errorf("Expected 0 clients, got %d", hub.Clients())
	}
}

func TestWritePart_Format(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePart(&buf, []byte{0xFF, 0xD8, 0xFF, 0xD9}); err != nil {
		t.Fatalf("WritePart failed: %v", err)
	}

	want := "--frame\r\nContent-Type: image/jpeg\r\n\r\n\xff\xd8\xff\xd9\r\n"
	if buf.String() != want {
		t.Errorf("Unexpected part:\n%q\nexpected\n%q", buf.String(), want)
	}
	if ContentType != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("Unexpected content type %q", ContentType)
	}
}
