package route

import (
	"net/http"

	"camcontrol/internal/config"
	"camcontrol/internal/handler"
	"camcontrol/internal/logger"
	"camcontrol/internal/middleware"
	"camcontrol/internal/service"
)

// SetupRoutes registers the viewer page, the video feed, the API and log
// endpoints, and wraps the mux with the control-token middleware.
func SetupRoutes(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Viewer
	mux.HandleFunc("GET /{$}", handler.IndexHandler(cfg, logger))
	mux.HandleFunc("GET /video_feed", handler.VideoFeedHandler(manager.Stream, manager.Metrics, logger))

	// API endpoints
	mux.HandleFunc("GET /api/status", handler.StatusHandler(manager, logger))
	mux.HandleFunc("GET /api/events", handler.EventsHandler(manager.EventRepo, logger))
	mux.HandleFunc("GET /api/events/{id}", handler.EventHandler(manager.EventRepo, logger))
	mux.HandleFunc("GET /snapshots/{name}", handler.SnapshotHandler(cfg.SnapshotDirectory))
	mux.HandleFunc("POST /api/control", handler.ControlHandler(manager, logger))
	if manager.Events != nil {
		mux.HandleFunc("GET /ws/control", handler.ControlWebsocketHandler(manager, manager.Events, logger))
	}
	mux.Handle("GET /metrics", manager.Metrics.Handler())

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(logger))
	mux.HandleFunc("POST /logs/{level}/clear", handler.ClearLogsHandler(logger))

	return middleware.AuthMiddleware(cfg.ControlToken, mux)
}
