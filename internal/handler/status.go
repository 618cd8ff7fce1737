package handler

import (
	"encoding/json"
	"net/http"

	"camcontrol/internal/logger"
	"camcontrol/internal/service"
)

// StatusHandler returns the capture loop status as JSON.
func StatusHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(manager.Status()); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}
