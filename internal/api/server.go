package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/pagemend/pagemend/internal/config"
	"github.com/pagemend/pagemend/internal/correct"
	"github.com/pagemend/pagemend/internal/jobs"
	"github.com/pagemend/pagemend/internal/observability"
	"github.com/pagemend/pagemend/internal/ocr"
	"github.com/pagemend/pagemend/internal/pipeline"
	"github.com/pagemend/pagemend/internal/pubsub"
	"github.com/pagemend/pagemend/internal/rasterize"
)

// Server wires the repair pipeline, job manager, and HTTP handlers
// together.
type Server struct {
	app     *fiber.App
	config  *config.Config
	manager *jobs.Manager
	bus     pubsub.PubSub
	metrics *observability.Metrics

	repairHandler     *RepairHandler
	eventsHandler     *EventsHandler
	monitoringHandler *MonitoringHandler

	startTime time.Time
}

// NewServer builds the full service from configuration. It fails when a
// required external tool or credential is missing.
func NewServer(cfg *config.Config) (*Server, error) {
	app := fiber.New(fiber.Config{
		ServerHeader:          "Pagemend",
		AppName:               "Pagemend v1.0.0",
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          errorHandler,
	})

	rasterizer, err := rasterize.NewPopplerRasterizer(rasterize.Options{
		DPI:        cfg.OCR.DPI,
		Preprocess: cfg.OCR.Preprocess,
	})
	if err != nil {
		return nil, err
	}

	extractor, err := ocr.NewProvider(ocr.ProviderConfig{Languages: cfg.OCR.Languages})
	if err != nil {
		return nil, err
	}
	if !extractor.IsAvailable() {
		log.Warn().Msg("OCR engine unavailable, repair jobs will fail at extraction")
	}

	llm, err := correct.NewProvider(correct.ProviderConfig{
		Type:     correct.ProviderType(cfg.Correction.Provider),
		Model:    cfg.Correction.Model,
		APIKey:   cfg.Correction.APIKey,
		BaseURL:  cfg.Correction.BaseURL,
		Endpoint: cfg.Correction.Endpoint,
	})
	if err != nil {
		return nil, err
	}
	corrector := correct.NewCorrector(llm, correct.CorrectorOptions{
		MaxRetries:     cfg.Correction.MaxRetries,
		RetryBaseDelay: cfg.Correction.RetryBaseDelay,
		Temperature:    cfg.Correction.Temperature,
	})

	bus, err := pubsub.NewPubSub(cfg.Redis, cfg.Realtime.ChannelBufferSize)
	if err != nil {
		return nil, err
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	newRunner := func(opts pipeline.Options) jobs.Runner {
		return pipeline.New(rasterizer, extractor, corrector, opts)
	}
	manager := jobs.NewManager(newRunner, bus, metrics, cfg.Jobs, cfg.Realtime.ChannelBufferSize)

	s := &Server{
		app:               app,
		config:            cfg,
		manager:           manager,
		bus:               bus,
		metrics:           metrics,
		repairHandler:     NewRepairHandler(manager, cfg),
		eventsHandler:     NewEventsHandler(manager, bus, metrics, cfg.Realtime),
		monitoringHandler: NewMonitoringHandler(),
		startTime:         time.Now(),
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddlewares() {
	s.app.Use(requestid.New())

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	if s.config.Debug {
		s.app.Use(logger.New(logger.Config{
			Format: "${time} ${locals:requestid} ${method} ${path} ${status} ${latency}\n",
		}))
	}

	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	if s.metrics != nil {
		s.app.Use(s.metrics.MetricsMiddleware())
	}
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	if s.metrics != nil {
		s.app.Get("/metrics", s.metrics.Handler())
	}

	v1 := s.app.Group("/v1")
	s.monitoringHandler.RegisterRoutes(v1)
	s.repairHandler.RegisterRoutes(v1)
	if s.config.Realtime.Enabled {
		s.eventsHandler.RegisterRoutes(v1)
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"realtime":  s.config.Realtime.Enabled,
		"timestamp": time.Now().UTC(),
	})
}

// Start begins serving and blocks until shutdown.
func (s *Server) Start() error {
	if err := s.manager.Start(); err != nil {
		return err
	}
	if s.metrics != nil {
		go s.uptimeLoop()
	}
	log.Info().Str("address", s.config.Server.Address).Msg("Starting HTTP server")
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully stops the server and settles running jobs.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	err := s.app.ShutdownWithContext(ctx)

	s.manager.Stop()
	if closeErr := s.bus.Close(); closeErr != nil {
		log.Warn().Err(closeErr).Msg("Failed to close pub/sub")
	}
	return err
}

// App returns the underlying Fiber app instance for testing
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) uptimeLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		s.metrics.UpdateUptime(s.startTime)
	}
}

// errorHandler handles errors globally
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
