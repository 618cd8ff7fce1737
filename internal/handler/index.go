package handler

import (
	"html/template"
	"net/http"

	"camcontrol/internal/config"
	"camcontrol/internal/logger"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
<img src="/video_feed" alt="Live stream">
</body>
</html>
`))

// IndexHandler serves the viewer page.
func IndexHandler(cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := indexTemplate.Execute(w, struct{ Title string }{cfg.PageTitle}); err != nil {
			logger.Error("Error rendering index page: %v", err)
		}
	}
}
