package handler

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"

	"camcontrol/internal/dto"
	"camcontrol/internal/logger"
	"camcontrol/internal/repository"
	"camcontrol/internal/service/storage"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// EventsHandler returns the most recent transition events. repo may be nil
// when the event log is disabled.
func EventsHandler(repo repository.EventRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := atoiDefault(r.URL.Query().Get("limit"), defaultEventLimit)
		if limit > maxEventLimit {
			limit = maxEventLimit
		}

		data := dto.EventsData{
			Events:  []dto.EventInfo{},
			Counts:  map[string]int{},
			Limit:   limit,
			Enabled: repo != nil,
		}

		if repo != nil {
			events, err := repo.Recent(limit)
			if err != nil {
				logger.Error("Error querying events from database: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			for _, ev := range events {
				data.Events = append(data.Events, dto.NewEventInfo(ev))
			}

			counts, err := repo.CountByState()
			if err != nil {
				logger.Error("Error counting events: %v", err)
			} else {
				data.Counts = counts
			}
		}
		data.Length = len(data.Events)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// EventHandler returns a single transition event by ID.
func EventHandler(repo repository.EventRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "Invalid event ID", http.StatusBadRequest)
			return
		}
		if repo == nil {
			http.NotFound(w, r)
			return
		}

		ev, err := repo.GetByID(id)
		if err != nil {
			logger.Error("Error querying event %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if ev == nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(dto.NewEventInfo(*ev)); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// SnapshotHandler serves a stored alert snapshot or thumbnail by name.
func SnapshotHandler(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(r.PathValue("name"))
		if name == "." || name == "/" {
			http.Error(w, "Snapshot name is required", http.StatusBadRequest)
			return
		}
		if _, _, err := storage.ParseSnapshotName(trimThumb(name)); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, name))
	}
}

func trimThumb(name string) string {
	if storage.IsThumbnail(name) {
		return name[len(storage.ThumbnailName("")):]
	}
	return name
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
