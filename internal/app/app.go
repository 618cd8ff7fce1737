package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"camcontrol/internal/config"
	"camcontrol/internal/device/camera"
	"camcontrol/internal/device/serial"
	"camcontrol/internal/logger"
	"camcontrol/internal/metrics"
	"camcontrol/internal/repository/sqlite"
	"camcontrol/internal/route"
	"camcontrol/internal/service"
	"camcontrol/internal/service/notifier"
	"camcontrol/internal/service/storage"
	"camcontrol/internal/service/stream"
	"camcontrol/internal/service/vision"
	"camcontrol/internal/service/websocket"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config        *config.Config
	logger        *logger.Logger
	source        camera.Source
	link          *serial.Link
	db            *sqlite.DB
	bufferService *storage.BufferService
	hubService    *websocket.HubService
	manager       *service.Manager
}

// NewApp opens the camera, the serial link and the event database. Any device
// that fails to open is returned as an error before anything is served.
func NewApp(cfg *config.Config, logger *logger.Logger) (*App, error) {
	a := &App{config: cfg, logger: logger}

	detector, err := vision.NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	strategy, err := notifier.NewStrategy(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.CameraDevice == config.DevicePattern {
		a.source = camera.NewPattern(cfg.FrameWidth, cfg.FrameHeight, cfg.FrameRate)
		logger.Info("Using synthetic pattern source %dx%d", cfg.FrameWidth, cfg.FrameHeight)
	} else {
		cam, err := camera.OpenCamera(cfg, logger)
		if err != nil {
			return nil, err
		}
		a.source = cam
	}

	var link serial.Writer
	if cfg.SerialEnabled() {
		a.link, err = serial.Open(cfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		link = a.link
	} else {
		logger.Warning("Serial output disabled, messages are only logged")
		link = serial.NewNop(logger)
	}

	a.db, err = sqlite.New(cfg.DatabasePath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open event database: %w", err)
	}
	eventRepo := sqlite.NewEventRepository(a.db)

	m := metrics.New()
	a.bufferService = storage.NewBufferService(cfg, logger, eventRepo)
	a.hubService = websocket.NewHubService(logger)
	a.manager = service.NewManager(cfg, service.Dependencies{
		Source:    a.source,
		Detector:  detector,
		Notifier:  notifier.NewNotifier(strategy, link, logger, m),
		Link:      link,
		Stream:    stream.NewHub(cfg.ClientBuffer, logger),
		Events:    a.hubService,
		Snapshots: a.bufferService,
		EventRepo: eventRepo,
		Metrics:   m,
		Logger:    logger,
	})

	return a, nil
}

// Run starts the background services, the capture loop and the HTTP server,
// and blocks until ctx is cancelled or the server fails. The HTTP server keeps
// serving after the camera stream ends.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	start := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	start(func() { a.hubService.Run(ctx) })
	start(func() { a.bufferService.Run(ctx) })
	if a.link != nil {
		start(func() {
			err := a.link.Listen(ctx, func(line string) {
				a.logger.Debug("Controller %s: %s", a.link.Name(), line)
			})
			if err != nil {
				a.logger.Warning("Serial listener on %s stopped: %v", a.link.Name(), err)
			}
		})
	}
	start(func() {
		if err := a.manager.Run(ctx); err != nil {
			a.logger.Error("Capture loop stopped: %v", err)
		}
	})

	server := &http.Server{
		Addr:              a.config.Addr(),
		Handler:           route.SetupRoutes(a.manager, a.config, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("Red target controller")
	a.logger.Info("URL: http://%s", a.config.Addr())
	a.logger.Info("Camera: %s  Serial: %s  Strategy: %s", a.config.CameraDevice, a.manager.Status().Serial, a.config.NotifyStrategy)
	a.logger.Info("Snapshots: %s  Events: %s", a.config.SnapshotDirectory, a.config.DatabasePath)

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	a.logger.Info("Shutting down")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warning("HTTP shutdown: %v", err)
	}

	wg.Wait()
	return runErr
}

// Close releases the devices and the database.
func (a *App) Close() error {
	var errs []error
	if a.source != nil {
		errs = append(errs, a.source.Close())
	}
	if a.link != nil {
		errs = append(errs, a.link.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
