// Package handler exposes the sync trigger API over gin.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"campusgate/internal/jobs"
	"campusgate/internal/logging"
	"campusgate/internal/schedule"
	"campusgate/internal/syncer"
)

// Scheduler is the schedule manager surface used by the API.
type Scheduler interface {
	Schedules(ctx context.Context) ([]schedule.View, error)
	UpdateSchedule(ctx context.Context, slot int, clock string) (schedule.UpdateResult, error)
	TriggerManual(ctx context.Context) (schedule.TriggerResult, error)
}

// Syncer is the orchestrator surface used by the API.
type Syncer interface {
	TestConnection(ctx context.Context) syncer.ConnectionReport
	Deactivate(ctx context.Context, ids []string) (syncer.DeactivateResult, error)
}

// Handler serves the /v1 routes.
type Handler struct {
	sched Scheduler
	sync  Syncer
	jobs  jobs.Store
}

// New creates a Handler.
func New(sched Scheduler, sync Syncer, history jobs.Store) *Handler {
	return &Handler{sched: sched, sync: sync, jobs: history}
}

// Register mounts the routes on g.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/sync/schedules", h.listSchedules)
	g.PUT("/sync/schedules/:slot", h.updateSchedule)
	g.POST("/sync/trigger", h.trigger)
	g.GET("/sync/test-connection", h.testConnection)
	g.GET("/sync/jobs", h.listJobs)
	g.POST("/students/deactivate", h.deactivate)
}

func (h *Handler) listSchedules(c *gin.Context) {
	views, err := h.sched.Schedules(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": views})
}

func (h *Handler) updateSchedule(c *gin.Context) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		respondError(c, schedule.ErrUnknownSlot)
		return
	}
	var req struct {
		Time string `json:"time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.sched.UpdateSchedule(c.Request.Context(), slot, req.Time)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) trigger(c *gin.Context) {
	res, err := h.sched.TriggerManual(c.Request.Context())
	if err != nil {
		logging.Warn().Err(err).Str("queue_id", res.QueueID).Msg("manual sync rejected")
		c.JSON(statusFor(err), res)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *Handler) testConnection(c *gin.Context) {
	rep := h.sync.TestConnection(c.Request.Context())
	status := http.StatusOK
	if !rep.Success {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, rep)
}

func (h *Handler) listJobs(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	list, err := h.jobs.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list})
}

func (h *Handler) deactivate(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.sync.Deactivate(c.Request.Context(), req.IDs)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logging.Error().Err(err).Str("job", res.JobName).Msg("deactivation failed")
		}
		c.JSON(status, gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, schedule.ErrJobProcessing),
		errors.Is(err, schedule.ErrJobPending),
		errors.Is(err, schedule.ErrScheduleImminent),
		errors.Is(err, syncer.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, schedule.ErrInvalidTime),
		errors.Is(err, schedule.ErrUnknownSlot),
		errors.Is(err, syncer.ErrNoIDs):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
