package api

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pagemend/pagemend/internal/config"
	"github.com/pagemend/pagemend/internal/jobs"
	"github.com/pagemend/pagemend/internal/observability"
	"github.com/pagemend/pagemend/internal/pubsub"
)

// EventsHandler streams a job's progress events over WebSocket. Each
// connection subscribes to the job's pub/sub channel so events reach
// clients regardless of which instance runs the job.
type EventsHandler struct {
	manager *jobs.Manager
	bus     pubsub.PubSub
	metrics *observability.Metrics
	cfg     config.RealtimeConfig

	connections atomic.Int64
}

// NewEventsHandler creates an events handler. metrics may be nil.
func NewEventsHandler(manager *jobs.Manager, bus pubsub.PubSub, metrics *observability.Metrics, cfg config.RealtimeConfig) *EventsHandler {
	return &EventsHandler{
		manager: manager,
		bus:     bus,
		metrics: metrics,
		cfg:     cfg,
	}
}

// RegisterRoutes registers the websocket endpoint.
func (h *EventsHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/repairs/:id/events", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection and streams events until the
// job settles or the client disconnects.
func (h *EventsHandler) HandleWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	id, err := parseJobID(c)
	if err != nil {
		return err
	}
	if _, err := h.manager.Get(id); err != nil {
		return jobError(err)
	}

	c.Locals("job_id", id)
	return websocket.New(h.handleConnection)(c)
}

func (h *EventsHandler) handleConnection(c *websocket.Conn) {
	id := c.Locals("job_id").(uuid.UUID)

	h.trackConnection(1)
	defer h.trackConnection(-1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgCh, err := h.bus.Subscribe(ctx, pubsub.JobChannel(id.String()))
	if err != nil {
		log.Error().Err(err).Str("job_id", id.String()).Msg("Failed to subscribe to job events")
		return
	}

	// Send the current snapshot first so late subscribers see where the
	// job stands.
	if snap, err := h.manager.Get(id); err == nil {
		if err := c.WriteJSON(snap); err != nil {
			return
		}
		if snap.Status == jobs.StatusCompleted || snap.Status == jobs.StatusFailed || snap.Status == jobs.StatusCancelled {
			return
		}
	}

	// Drain client frames so close messages are noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingInterval := h.cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				return
			}
			if done, jobErr := h.jobSettled(id); done || jobErr != nil {
				return
			}
		}
	}
}

// jobSettled reports whether the job reached a terminal status.
func (h *EventsHandler) jobSettled(id uuid.UUID) (bool, error) {
	snap, err := h.manager.Get(id)
	if err != nil {
		return false, err
	}
	switch snap.Status {
	case jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusCancelled:
		return true, nil
	}
	return false, nil
}

func (h *EventsHandler) trackConnection(delta int64) {
	n := h.connections.Add(delta)
	if h.metrics != nil {
		h.metrics.UpdateRealtimeConnections(int(n))
	}
}
