package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/pagercall/backend/internal/escalation"
	"github.com/pagercall/backend/internal/recurrence"
	"github.com/pagercall/backend/internal/schedule"
	"github.com/pagercall/backend/internal/store"
)

type Handler struct {
	Store           store.Repository
	Engine          *escalation.Engine
	Validator       *validator.Validate
	Logger          zerolog.Logger
	AdminKey        string
	DefaultTimeZone string
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Resolve the on-call timeline for a schedule
// @Tags schedules
// @Produce json
// @Param id path string true "schedule id"
// @Param from query string false "window start, RFC3339 (default now)"
// @Param to query string false "window end, RFC3339 (default from+24h)"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/schedules/{id}/oncall [get]
func (h *Handler) OnCall(c *gin.Context) {
	ctx := c.Request.Context()
	scheduleID := c.Param("id")

	from := time.Now().UTC()
	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION", "invalid from", gin.H{"field": "from"})
			return
		}
		from = parsed
	}
	to := from.Add(24 * time.Hour)
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION", "invalid to", gin.H{"field": "to"})
			return
		}
		to = parsed
	}
	if !from.Before(to) {
		writeError(c, http.StatusBadRequest, "VALIDATION", "from must be before to", gin.H{"field": "to"})
		return
	}

	sched, err := h.Store.GetSchedule(ctx, scheduleID)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	shifts, err := h.Store.GetShiftsForSchedule(ctx, scheduleID)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	entries, err := schedule.Resolve(sched, shifts, from, to)
	if err != nil {
		var fe *recurrence.FieldError
		if errors.As(err, &fe) {
			writeError(c, http.StatusUnprocessableEntity, "VALIDATION", fe.Error(), gin.H{"field": fe.Field})
			return
		}
		h.Logger.Error().Err(err).Str("schedule_id", scheduleID).Msg("resolution failed")
		writeError(c, http.StatusInternalServerError, "RESOLUTION_ERROR", "Failed to resolve schedule", err.Error())
		return
	}
	if entries == nil {
		entries = []schedule.Entry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"schedule_id": scheduleID,
		"from":        from,
		"to":          to,
		"entries":     entries,
	})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

func respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
		return
	}
	if errors.Is(err, store.ErrOverrideAttached) {
		writeError(c, http.StatusConflict, "CONFLICT", "Override shift is attached to another schedule", nil)
		return
	}
	writeError(c, http.StatusInternalServerError, "DB_ERROR", "Storage error", err.Error())
}
