package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pagercall/backend/internal/escalation"
	"github.com/pagercall/backend/internal/models"
)

type scheduleRequest struct {
	ID       string   `json:"id"`
	Name     string   `json:"name" validate:"required"`
	TimeZone string   `json:"time_zone"`
	ShiftIDs []string `json:"shift_ids"`
}

// @Summary Create a schedule
// @Tags schedules
// @Accept json
// @Produce json
// @Success 201 {object} models.Schedule
// @Router /api/schedules [post]
func (h *Handler) ScheduleCreate(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed JSON body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION", "Invalid schedule fields", err.Error())
		return
	}
	if req.TimeZone != "" {
		if _, err := time.LoadLocation(req.TimeZone); err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION", "unknown time zone", gin.H{"field": "time_zone"})
			return
		}
	}

	sched := models.Schedule{
		ID:       req.ID,
		Name:     req.Name,
		TimeZone: req.TimeZone,
		ShiftIDs: req.ShiftIDs,
	}
	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}
	if sched.TimeZone == "" {
		sched.TimeZone = h.DefaultTimeZone
	}

	if err := h.Store.CreateSchedule(c.Request.Context(), sched); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sched)
}

type policyStepRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=wait notify_user notify_schedule notify_user_group repeat"`
	Target    string `json:"target"`
	WaitDelay int64  `json:"wait_delay"`
}

type policyRequest struct {
	ID    string              `json:"id"`
	Name  string              `json:"name" validate:"required"`
	Steps []policyStepRequest `json:"steps" validate:"required,min=1,dive"`
}

// @Summary Create an escalation policy
// @Tags escalation
// @Accept json
// @Produce json
// @Success 201 {object} models.EscalationPolicy
// @Router /api/policies [post]
func (h *Handler) PolicyCreate(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed JSON body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION", "Invalid policy fields", err.Error())
		return
	}

	policy := models.EscalationPolicy{
		ID:   req.ID,
		Name: req.Name,
	}
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	for _, step := range req.Steps {
		policy.Steps = append(policy.Steps, models.EscalationStep{
			Kind:      models.StepKind(step.Kind),
			Target:    step.Target,
			WaitDelay: time.Duration(step.WaitDelay) * time.Second,
		})
	}

	if err := h.Store.CreateEscalationPolicy(c.Request.Context(), policy); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, policy)
}

type escalateRequest struct {
	PolicyID string `json:"policy_id"`
}

// @Summary Start escalating an incident
// @Tags escalation
// @Accept json
// @Produce json
// @Param id path string true "incident id"
// @Success 202 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/incidents/{id}/escalate [post]
func (h *Handler) IncidentEscalate(c *gin.Context) {
	ctx := c.Request.Context()
	incidentID := c.Param("id")

	var req escalateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed JSON body", err.Error())
			return
		}
	}
	if req.PolicyID != "" {
		if err := h.Store.BindIncident(ctx, incidentID, req.PolicyID); err != nil {
			respondStoreError(c, err)
			return
		}
	}

	if err := h.Engine.Start(ctx, incidentID); err != nil {
		if errors.Is(err, escalation.ErrAlreadyRunning) {
			writeError(c, http.StatusConflict, "CONFLICT", "Escalation already running", nil)
			return
		}
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"incident_id": incidentID, "status": models.RunActive})
}

type ackRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// @Summary Acknowledge an incident
// @Tags escalation
// @Accept json
// @Produce json
// @Param id path string true "incident id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/incidents/{id}/ack [post]
func (h *Handler) IncidentAck(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed JSON body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION", "user_id is required", gin.H{"field": "user_id"})
		return
	}

	if err := h.Engine.Acknowledge(c.Param("id"), req.UserID); err != nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "No escalation run for incident", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incident_id": c.Param("id"), "acknowledged_by": req.UserID})
}

// @Summary Resolve an incident
// @Tags escalation
// @Produce json
// @Param id path string true "incident id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/incidents/{id}/resolve [post]
func (h *Handler) IncidentResolve(c *gin.Context) {
	if err := h.Engine.Resolve(c.Param("id")); err != nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "No escalation run for incident", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incident_id": c.Param("id"), "status": models.RunResolved})
}

// @Summary Get the escalation run for an incident
// @Tags escalation
// @Produce json
// @Param id path string true "incident id"
// @Success 200 {object} models.EscalationRun
// @Failure 404 {object} map[string]any
// @Router /api/incidents/{id}/run [get]
func (h *Handler) IncidentRun(c *gin.Context) {
	run, err := h.Store.LoadEscalationRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}
