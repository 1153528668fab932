// Package v1 provides the read-only HTTP inspection API over session data.
package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/quantford/tradepilot/internal/breaker"
	"github.com/quantford/tradepilot/internal/domain"
	"github.com/quantford/tradepilot/internal/store"
)

// Handler handles HTTP requests.
type Handler struct {
	store   store.Store
	breaker *breaker.Manager
}

// NewHandler creates a new handler.
func NewHandler(st store.Store, brk *breaker.Manager) *Handler {
	return &Handler{store: st, breaker: brk}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/sessions", h.ListSessions)
	e.GET("/v1/sessions/:session_id/events", h.GetSessionEvents)
	e.GET("/v1/sessions/:session_id/summary", h.GetSessionSummary)
	e.GET("/v1/breaker/status", h.GetBreakerStatus)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// ListSessions returns all known session IDs.
func (h *Handler) ListSessions(c echo.Context) error {
	sessions, err := h.store.ListSessions(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sessions == nil {
		sessions = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetSessionEvents returns a session's event stream, optionally the last
// ?tail=N entries, optionally filtered to one ?type=.
func (h *Handler) GetSessionEvents(c echo.Context) error {
	sessionID := c.Param("session_id")

	tail := 0
	if raw := c.QueryParam("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "tail must be a non-negative integer")
		}
		tail = n
	}

	// Type filtering happens after the tail read; the store keeps its
	// contract minimal.
	events, err := h.store.ReadEvents(c.Request().Context(), sessionID, tail)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if typ := c.QueryParam("type"); typ != "" {
		filtered := make([]domain.Event, 0, len(events))
		for _, e := range events {
			if string(e.Type) == typ {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	if events == nil {
		events = []domain.Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"events":     events,
	})
}

// GetSessionSummary returns the latest committed summary document.
func (h *Handler) GetSessionSummary(c echo.Context) error {
	sessionID := c.Param("session_id")
	summary, err := h.store.ReadSummary(c.Request().Context(), sessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if summary == nil {
		return echo.NewHTTPError(http.StatusNotFound, "summary not found")
	}
	return c.JSON(http.StatusOK, summary)
}

// GetBreakerStatus returns a snapshot of the circuit breaker.
func (h *Handler) GetBreakerStatus(c echo.Context) error {
	if h.breaker == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no breaker configured")
	}
	return c.JSON(http.StatusOK, h.breaker.Status())
}
