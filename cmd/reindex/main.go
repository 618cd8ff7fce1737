package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"camcontrol/internal/logger"
	"camcontrol/internal/repository"
	"camcontrol/internal/repository/sqlite"
	"camcontrol/internal/service/storage"
)

// reindex rebuilds the snapshot column of the event log from the files in
// the snapshot directory. With -reset it empties the event log instead.
func main() {
	snapshotDir := flag.String("snapshots", "snapshots", "Directory containing event snapshots")
	dbPath := flag.String("db", filepath.Join("data", "events.db"), "Event database path")
	reset := flag.Bool("reset", false, "Delete every event instead of reindexing")
	flag.Parse()

	out := logger.NewWriterLogger(os.Stdout, logger.LevelInfo)
	os.Exit(run(out, *snapshotDir, *dbPath, *reset))
}

func run(out *logger.Logger, snapshotDir, dbPath string, reset bool) int {
	db, err := sqlite.New(dbPath)
	if err != nil {
		out.Error("Failed to open database: %v", err)
		return 1
	}
	defer db.Close()
	repo := sqlite.NewEventRepository(db)

	if reset {
		if err := repo.DeleteAll(); err != nil {
			out.Error("Failed to delete events: %v", err)
			return 1
		}
		out.Info("Deleted every event from %s", dbPath)
		return 0
	}

	out.Info("Reindexing snapshots from %s into %s", snapshotDir, dbPath)
	attached, skipped, err := reindex(out, repo, snapshotDir)
	if err != nil {
		out.Error("%v", err)
		return 1
	}

	out.Info("Attached %d snapshots", attached)
	if skipped > 0 {
		out.Warning("Skipped %d files", skipped)
	}

	counts, err := repo.CountByState()
	if err != nil {
		out.Error("Failed to count events: %v", err)
		return 1
	}
	out.Info("Events: alert=%d quiet=%d", counts["alert"], counts["quiet"])
	return 0
}

// reindex clears every snapshot reference and attaches the snapshot files
// found in dir to their events.
func reindex(out *logger.Logger, repo repository.EventRepository, dir string) (attached, skipped int, err error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	if err := repo.ClearSnapshots(); err != nil {
		return 0, 0, fmt.Errorf("failed to clear snapshot references: %w", err)
	}

	for _, file := range files {
		name := file.Name()
		if file.IsDir() || filepath.Ext(name) != ".jpg" || storage.IsThumbnail(name) {
			continue
		}

		id, _, err := storage.ParseSnapshotName(name)
		if err != nil {
			out.Warning("Skipping %s: %v", name, err)
			skipped++
			continue
		}
		if err := repo.AttachSnapshot(id, name); err != nil {
			out.Warning("Skipping %s: %v", name, err)
			skipped++
			continue
		}
		attached++
	}
	return attached, skipped, nil
}
