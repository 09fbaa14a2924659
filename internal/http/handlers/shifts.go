package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pagercall/backend/internal/models"
	"github.com/pagercall/backend/internal/recurrence"
	"github.com/pagercall/backend/internal/schedule"
)

// wallClockLayout is the stored timestamp format: no offset, interpreted in
// the shift's time zone at resolution time.
const wallClockLayout = "2006-01-02T15:04:05"

type shiftRequest struct {
	TeamID     string   `json:"team_id"`
	Name       string   `json:"name" validate:"required"`
	Type       string   `json:"type" validate:"required,oneof=single_event recurrent_event rotation override"`
	Start      string   `json:"start" validate:"required"`
	Duration   int64    `json:"duration" validate:"required,gt=0"`
	Users      []string `json:"users"`
	Level      int      `json:"level"`
	Frequency  string   `json:"frequency" validate:"omitempty,oneof=none daily weekly monthly"`
	Interval   int      `json:"interval"`
	ByDay      []string `json:"by_day"`
	ByMonth    []int    `json:"by_month"`
	ByMonthday []int    `json:"by_monthday"`
	Until      *string  `json:"until"`
	WeekStart  string   `json:"week_start"`
	TimeZone   string   `json:"time_zone"`
}

// shiftUpdateRequest carries only the fields present in the request body, so
// an update can be partial and is validated against the merged result before
// anything is written.
type shiftUpdateRequest struct {
	TeamID     *string   `json:"team_id"`
	Name       *string   `json:"name"`
	Type       *string   `json:"type"`
	Start      *string   `json:"start"`
	Duration   *int64    `json:"duration"`
	Users      *[]string `json:"users"`
	Level      *int      `json:"level"`
	Frequency  *string   `json:"frequency"`
	Interval   *int      `json:"interval"`
	ByDay      *[]string `json:"by_day"`
	ByMonth    *[]int    `json:"by_month"`
	ByMonthday *[]int    `json:"by_monthday"`
	Until      *string   `json:"until"`
	WeekStart  *string   `json:"week_start"`
	TimeZone   *string   `json:"time_zone"`
}

// @Summary Create a shift
// @Tags shifts
// @Accept json
// @Produce json
// @Success 201 {object} models.ShiftDefinition
// @Failure 400 {object} map[string]any
// @Router /api/shifts [post]
func (h *Handler) ShiftCreate(c *gin.Context) {
	var req shiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed JSON body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION", "Invalid shift fields", err.Error())
		return
	}

	shift := models.ShiftDefinition{
		ID:        uuid.NewString(),
		TeamID:    req.TeamID,
		Name:      req.Name,
		Kind:      models.ShiftKind(req.Type),
		Duration:  time.Duration(req.Duration) * time.Second,
		Users:     req.Users,
		Level:     req.Level,
		TimeZone:  req.TimeZone,
		CreatedAt: time.Now().UTC(),
	}

	start, err := time.Parse(wallClockLayout, req.Start)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION", "start must be formatted as "+wallClockLayout, gin.H{"field": "start"})
		return
	}
	shift.Start = start

	if shift.Recurring() {
		shift.Frequency = models.Frequency(req.Frequency)
		if shift.Frequency == "" {
			writeError(c, http.StatusBadRequest, "VALIDATION", "frequency is required for recurring shifts", gin.H{"field": "frequency"})
			return
		}
		shift.Interval = req.Interval
		shift.ByDay = req.ByDay
		shift.ByMonth = req.ByMonth
		shift.ByMonthday = req.ByMonthday
		shift.WeekStart = req.WeekStart
		if shift.WeekStart == "" {
			shift.WeekStart = recurrence.DefaultWeekStart
		}
		if req.Until != nil {
			until, err := time.Parse(wallClockLayout, *req.Until)
			if err != nil {
				writeError(c, http.StatusBadRequest, "VALIDATION", "until must be formatted as "+wallClockLayout, gin.H{"field": "until"})
				return
			}
			shift.Until = &until
		}
	} else {
		shift.Frequency = models.FrequencyNone
	}

	if !h.validShift(c, shift) {
		return
	}

	if err := h.Store.CreateShift(c.Request.Context(), shift); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, shift)
}

// @Summary Get a shift
// @Tags shifts
// @Produce json
// @Param id path string true "shift id"
// @Success 200 {object} models.ShiftDefinition
// @Failure 404 {object} map[string]any
// @Router /api/shifts/{id} [get]
func (h *Handler) ShiftGet(c *gin.Context) {
	shift, err := h.Store.GetShift(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, shift)
}

// @Summary Update a shift
// @Description Partial update; recurrence fields are re-validated against the merged shift before anything is written.
// @Tags shifts
// @Accept json
// @Produce json
// @Param id path string true "shift id"
// @Success 200 {object} models.ShiftDefinition
// @Failure 400 {object} map[string]any
// @Router /api/shifts/{id} [put]
func (h *Handler) ShiftUpdate(c *gin.Context) {
	ctx := c.Request.Context()
	shift, err := h.Store.GetShift(ctx, c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}

	var req shiftUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed JSON body", err.Error())
		return
	}

	if req.TeamID != nil {
		shift.TeamID = *req.TeamID
	}
	if req.Name != nil {
		shift.Name = *req.Name
	}
	if req.Type != nil {
		switch models.ShiftKind(*req.Type) {
		case models.KindSingleEvent, models.KindRecurrentEvent, models.KindRotation, models.KindOverride:
			shift.Kind = models.ShiftKind(*req.Type)
		default:
			writeError(c, http.StatusBadRequest, "VALIDATION", "unknown shift type", gin.H{"field": "type"})
			return
		}
	}
	if req.Start != nil {
		start, err := time.Parse(wallClockLayout, *req.Start)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION", "start must be formatted as "+wallClockLayout, gin.H{"field": "start"})
			return
		}
		shift.Start = start
	}
	if req.Duration != nil {
		shift.Duration = time.Duration(*req.Duration) * time.Second
	}
	if req.Users != nil {
		shift.Users = *req.Users
	}
	if req.Level != nil {
		shift.Level = *req.Level
	}
	if req.Frequency != nil {
		shift.Frequency = models.Frequency(*req.Frequency)
	}
	if req.Interval != nil {
		shift.Interval = *req.Interval
	}
	if req.ByDay != nil {
		shift.ByDay = *req.ByDay
	}
	if req.ByMonth != nil {
		shift.ByMonth = *req.ByMonth
	}
	if req.ByMonthday != nil {
		shift.ByMonthday = *req.ByMonthday
	}
	if req.WeekStart != nil {
		shift.WeekStart = *req.WeekStart
	}
	if req.TimeZone != nil {
		shift.TimeZone = *req.TimeZone
	}
	if req.Until != nil {
		if *req.Until == "" {
			shift.Until = nil
		} else {
			until, err := time.Parse(wallClockLayout, *req.Until)
			if err != nil {
				writeError(c, http.StatusBadRequest, "VALIDATION", "until must be formatted as "+wallClockLayout, gin.H{"field": "until"})
				return
			}
			shift.Until = &until
		}
	}

	if !h.validShift(c, shift) {
		return
	}

	if err := h.Store.UpdateShift(ctx, shift); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, shift)
}

// @Summary Delete a shift
// @Description Removes the shift and detaches it from every schedule referencing it.
// @Tags shifts
// @Param id path string true "shift id"
// @Success 204
// @Failure 404 {object} map[string]any
// @Router /api/shifts/{id} [delete]
func (h *Handler) ShiftDelete(c *gin.Context) {
	if err := h.Store.DeleteShift(c.Request.Context(), c.Param("id")); err != nil {
		respondStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// validShift runs the recurrence-level validation and writes the field-level
// VALIDATION response on failure.
func (h *Handler) validShift(c *gin.Context, shift models.ShiftDefinition) bool {
	if _, err := schedule.Location(shift, h.DefaultTimeZone); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION", err.Error(), gin.H{"field": "time_zone"})
		return false
	}
	if err := schedule.RuleOf(shift).Validate(); err != nil {
		fe := err.(*recurrence.FieldError)
		writeError(c, http.StatusBadRequest, "VALIDATION", fe.Error(), gin.H{"field": fe.Field})
		return false
	}
	return true
}
