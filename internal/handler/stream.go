package handler

import (
	"errors"
	"io"
	"net/http"

	"camcontrol/internal/logger"
	"camcontrol/internal/metrics"
	"camcontrol/internal/service/stream"
)

// VideoFeedHandler streams the annotated frames as multipart JPEG. Each
// request gets its own subscription; the response ends when the client goes
// away, a write fails or the camera stream ends.
func VideoFeedHandler(hub *stream.Hub, m *metrics.Metrics, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := hub.Subscribe()
		defer sub.Close()

		m.ActiveViewers.Add(1)
		m.TotalViewers.Add(1)
		defer m.ActiveViewers.Add(-1)

		w.Header().Set("Content-Type", stream.ContentType)
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusOK)

		rc := http.NewResponseController(w)
		logger.Info("Viewer connected from %s", r.RemoteAddr)

		for {
			frame, err := sub.Next(r.Context())
			if err != nil {
				if errors.Is(err, io.EOF) {
					logger.Info("Stream ended for viewer %s", r.RemoteAddr)
				} else {
					logger.Info("Viewer %s disconnected", r.RemoteAddr)
				}
				return
			}

			if err := stream.WritePart(w, frame); err != nil {
				logger.Info("Viewer %s write failed: %v", r.RemoteAddr, err)
				return
			}
			if err := rc.Flush(); err != nil {
				logger.Info("Viewer %s flush failed: %v", r.RemoteAddr, err)
				return
			}
		}
	}
}
