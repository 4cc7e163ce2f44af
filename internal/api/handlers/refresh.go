package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/internal/services"
	"github.com/irfndi/stock-monitor/internal/utils"
)

// RefreshController starts and reports health check jobs.
// services.RefreshJobController implements it.
type RefreshController interface {
	StartRefreshJob(ctx context.Context, trigger string) (models.RefreshJob, bool, error)
	Get(ctx context.Context, id string) (models.RefreshJob, error)
	Recent(ctx context.Context, limit int) ([]models.RefreshJob, error)
}

// RefreshHandler serves /monitor/refresh.
type RefreshHandler struct {
	controller RefreshController
}

// NewRefreshHandler creates a new refresh handler
func NewRefreshHandler(controller RefreshController) *RefreshHandler {
	return &RefreshHandler{controller: controller}
}

// StartRefreshResponse is returned by POST /monitor/refresh.
type StartRefreshResponse struct {
	JobID    string           `json:"job_id"`
	Accepted bool             `json:"accepted"`
	Status   models.JobStatus `json:"status"`
}

// RefreshJobsResponse lists recent jobs.
type RefreshJobsResponse struct {
	Jobs     []models.RefreshJob `json:"jobs"`
	Metadata ListMetadata        `json:"metadata"`
}

// StartRefresh handles POST /monitor/refresh. The pass runs in the
// background; clients poll GET /monitor/refresh/:job_id.
func (h *RefreshHandler) StartRefresh(c *gin.Context) {
	job, accepted, err := h.controller.StartRefreshJob(c.Request.Context(), services.TriggerManual)
	if err != nil {
		respondError(c, err)
		return
	}
	if accepted {
		markInvalidated(c, models.MutationStartRefresh)
	}
	c.Header("Location", "/monitor/refresh/"+job.ID)
	c.JSON(http.StatusAccepted, StartRefreshResponse{JobID: job.ID, Accepted: accepted, Status: job.Status})
}

// GetRefreshJob handles GET /monitor/refresh/:job_id.
func (h *RefreshHandler) GetRefreshJob(c *gin.Context) {
	job, err := h.controller.Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListRefreshJobs handles GET /monitor/refresh.
func (h *RefreshHandler) ListRefreshJobs(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, utils.NewValidationErrorf("limit must be a positive integer, got %q", raw))
			return
		}
		limit = parsed
	}

	jobs, err := h.controller.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if jobs == nil {
		jobs = []models.RefreshJob{}
	}
	c.JSON(http.StatusOK, RefreshJobsResponse{Jobs: jobs, Metadata: ListMetadata{Count: len(jobs)}})
}
