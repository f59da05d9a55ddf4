package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/billion-eyes/incident-pipeline/internal/bus"
	"github.com/billion-eyes/incident-pipeline/internal/ingestion"
	"github.com/billion-eyes/incident-pipeline/internal/models"
	"github.com/billion-eyes/incident-pipeline/internal/store"
)

type Handler struct {
	events      store.EventRepository
	agencies    store.AgencyRepository
	pipeline    *ingestion.Pipeline
	broadcaster *bus.Broadcaster
}

func NewHandler(events store.EventRepository, agencies store.AgencyRepository, pipeline *ingestion.Pipeline, broadcaster *bus.Broadcaster) *Handler {
	return &Handler{
		events:      events,
		agencies:    agencies,
		pipeline:    pipeline,
		broadcaster: broadcaster,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/api/events", h.getEvents)
	r.GET("/api/events/:id", h.getEvent)
	r.POST("/api/events/:id/close", h.closeEvent)
	r.GET("/api/agencies", h.getAgencies)
	r.POST("/api/agencies", h.createAgency)
	r.POST("/api/detections", h.submitDetection)
	r.GET("/api/stream", h.streamEvents)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) getEvents(c *gin.Context) {
	filter := store.EventFilter{
		Limit: 20, // Default to 20 events if limit param not supplied
	}

	if s := c.Query("status"); s == string(models.EventStatusOpen) || s == string(models.EventStatusClosed) {
		filter.Status = models.EventStatus(s)
	}
	if cat := c.Query("category"); cat != "" {
		filter.Category = cat
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}

	events, err := h.events.ListEvents(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch events",
		})
		return
	}

	fc := toGeoJSON(events)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) getEvent(c *gin.Context) {
	event, err := h.events.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch event"})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *Handler) closeEvent(c *gin.Context) {
	if err := h.events.CloseEvent(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(models.EventStatusClosed)})
}

func (h *Handler) getAgencies(c *gin.Context) {
	agencies, err := h.agencies.ListAgencies(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch agencies"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agencies": agencies})
}

func (h *Handler) createAgency(c *gin.Context) {
	var agency models.Agency
	if err := c.ShouldBindJSON(&agency); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if agency.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	if err := h.agencies.AddAgency(c.Request.Context(), &agency); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register agency"})
		return
	}
	c.JSON(http.StatusCreated, agency)
}

// submitDetection accepts the same payload shape as the queue and runs it
// through the full pipeline. Useful for debugging and backfills.
func (h *Handler) submitDetection(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	outcome, err := h.pipeline.Handle(c.Request.Context(), body)
	if err != nil {
		status := http.StatusInternalServerError
		if ingestion.IsReject(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if outcome.Skipped {
		c.JSON(http.StatusOK, outcome)
		return
	}
	c.JSON(http.StatusAccepted, outcome)
}

func (h *Handler) streamEvents(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "streaming disabled"})
		return
	}

	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case update, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("event", update)
			return true
		}
	})
}
