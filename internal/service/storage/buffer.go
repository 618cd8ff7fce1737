package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"camcontrol/internal/config"
	"camcontrol/internal/dto"
	"camcontrol/internal/logger"
	"camcontrol/internal/repository"

	"github.com/disintegration/imaging"
)

const (
	// SnapshotBufferLimit limits how many snapshots are buffered between flushes.
	SnapshotBufferLimit = 10
	// SnapshotFlushInterval defines how often (seconds) buffered snapshots are flushed to disk.
	SnapshotFlushInterval = 30

	ThumbnailWidth  = 160
	ThumbnailHeight = 120

	thumbPrefix     = "thumb_"
	timestampLayout = "2006-01-02_15-04-05.000"
)

// BufferService buffers alert snapshots in memory and periodically flushes
// them, with a thumbnail each, to the snapshot directory.
type BufferService struct {
	dir           string
	limit         int
	flushInterval time.Duration
	snapshots     []dto.BufferedSnapshot
	mu            sync.Mutex
	flushMu       sync.Mutex
	logger        *logger.Logger
	eventRepo     repository.EventRepository
}

// NewBufferService creates a BufferService. eventRepo may be nil.
func NewBufferService(cfg *config.Config, logger *logger.Logger, eventRepo repository.EventRepository) *BufferService {
	limit := cfg.SnapshotBufferLimit
	if limit <= 0 {
		limit = SnapshotBufferLimit
	}
	interval := cfg.SnapshotFlushInterval
	if interval <= 0 {
		interval = SnapshotFlushInterval
	}

	return &BufferService{
		dir:           cfg.SnapshotDirectory,
		limit:         limit,
		flushInterval: time.Duration(interval) * time.Second,
		snapshots:     make([]dto.BufferedSnapshot, 0, limit),
		logger:        logger,
		eventRepo:     eventRepo,
	}
}

// Run flushes on every tick and once more when ctx is cancelled.
func (s *BufferService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.FlushSnapshots()
		case <-ctx.Done():
			s.FlushSnapshots()
			return
		}
	}
}

// AddSnapshot buffers a JPEG for an event. It reports false when the buffer
// is full until the next flush.
func (s *BufferService) AddSnapshot(eventID int64, data []byte, ts time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) >= s.limit {
		s.logger.Warning("Snapshot buffer full (%d), dropping snapshot for event %d", s.limit, eventID)
		return false
	}

	s.snapshots = append(s.snapshots, dto.BufferedSnapshot{
		EventID:   eventID,
		Timestamp: ts,
		Data:      data,
	})
	s.logger.Debug("Snapshot buffer size: %d/%d", len(s.snapshots), s.limit)
	return true
}

// Pending is the number of buffered snapshots.
func (s *BufferService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

// Dir is the snapshot directory.
func (s *BufferService) Dir() string {
	return s.dir
}

// FlushSnapshots writes buffered snapshots and their thumbnails to disk and
// records them on their events. The buffer is swapped out first, so
// AddSnapshot never waits on disk or database I/O.
func (s *BufferService) FlushSnapshots() int {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if s.Pending() == 0 {
		return 0
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return 0
	}

	s.mu.Lock()
	batch := s.snapshots
	s.snapshots = make([]dto.BufferedSnapshot, 0, s.limit)
	s.mu.Unlock()

	savedCount := 0
	for _, snap := range batch {
		filename := SnapshotName(snap.EventID, snap.Timestamp)
		fullpath := filepath.Join(s.dir, filename)

		if err := os.WriteFile(fullpath, snap.Data, 0644); err != nil {
			s.logger.Error("Error saving snapshot %s: %v", filename, err)
			continue
		}

		if err := writeThumbnail(snap.Data, filepath.Join(s.dir, ThumbnailName(filename))); err != nil {
			s.logger.Warning("Error creating thumbnail for %s: %v", filename, err)
		}

		if s.eventRepo != nil && snap.EventID > 0 {
			if err := s.eventRepo.AttachSnapshot(snap.EventID, filename); err != nil {
				s.logger.Error("Error saving snapshot %s to database: %v", filename, err)
			}
		}

		savedCount++
	}

	s.logger.Info("Flushed %d snapshots to disk", savedCount)
	return savedCount
}

func writeThumbnail(data []byte, path string) error {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	thumb := imaging.Thumbnail(img, ThumbnailWidth, ThumbnailHeight, imaging.Lanczos)
	if err := imaging.Save(thumb, path); err != nil {
		return fmt.Errorf("failed to save thumbnail: %w", err)
	}
	return nil
}

// SnapshotName is the file name a snapshot for eventID is stored under.
func SnapshotName(eventID int64, ts time.Time) string {
	return fmt.Sprintf("event_%d_%s.jpg", eventID, ts.Format(timestampLayout))
}

// ThumbnailName is the file name of a snapshot's thumbnail.
func ThumbnailName(snapshot string) string {
	return thumbPrefix + snapshot
}

// IsThumbnail reports whether name is a thumbnail file.
func IsThumbnail(name string) bool {
	return strings.HasPrefix(name, thumbPrefix)
}

// ParseSnapshotName extracts the event ID and timestamp from a snapshot file name.
func ParseSnapshotName(name string) (int64, time.Time, error) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.SplitN(base, "_", 3)
	if len(parts) != 3 || parts[0] != "event" {
		return 0, time.Time{}, fmt.Errorf("not a snapshot file name: %s", name)
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("invalid event id in %s: %w", name, err)
	}
	ts, err := time.ParseInLocation(timestampLayout, parts[2], time.Local)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("invalid timestamp in %s: %w", name, err)
	}
	return id, ts, nil
}
