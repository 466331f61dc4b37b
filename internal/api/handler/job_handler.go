package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tvanh/jobpipe/internal/api/domain"
	"github.com/tvanh/jobpipe/internal/api/dto"
	"github.com/tvanh/jobpipe/internal/api/model"
	"github.com/tvanh/jobpipe/internal/api/storage"
)

// workMessage is the broker envelope referencing a job. The worker service
// decodes the same shape on the consuming side.
type workMessage struct {
	JobID      string    `json:"job_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// isJSONObject reports whether raw is a JSON object. Scalars, arrays, and
// JSON null all bind into a RawMessage, so well-formedness alone is not
// enough of a check.
func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(raw)
}

// SubmitJob handles POST /api/v1/jobs
// Persists a pending job row, then publishes a work message referencing it.
// The row must be durably committed before the publish is attempted; if the
// publish fails the job is marked failed with a reason instead of lingering
// as an orphaned pending row.
func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if err := validate.Struct(&req); err != nil {
		h.logger.Warn("Request validation failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Validation failed",
			"fields": FormatValidationErrors(err),
		})
		return
	}

	if !isJSONObject(req.Payload) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "payload must be a JSON object",
		})
		return
	}

	now := time.Now().UTC()
	job := model.Job{
		JobID:        uuid.New().String(),
		JobType:      req.JobType,
		Payload:      []byte(req.Payload),
		Status:       domain.JobStatusPending,
		AttemptCount: 0,
		MaxAttempts:  h.maxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.storage.CreateJob(c.Request.Context(), &job); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	body, err := json.Marshal(workMessage{
		JobID:      job.JobID,
		EnqueuedAt: now,
	})
	if err != nil {
		h.logger.Error("Failed to encode work message", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	if err := h.publisher.PublishWithRetry(c.Request.Context(), body, "application/json"); err != nil {
		h.logger.Error("Failed to publish work message, marking job failed",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)

		reason := "broker publish failed: " + err.Error()
		if markErr := h.storage.MarkJobFailed(c.Request.Context(), job.JobID, reason); markErr != nil {
			h.logger.Error("Failed to mark job failed after publish failure",
				slog.String("job_id", job.JobID),
				slog.String("error", markErr.Error()),
			)
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	h.logger.Info("Job submitted",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
	)

	c.JSON(http.StatusCreated, dto.SubmitJobResponse{
		JobID:  job.JobID,
		Status: job.Status,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Pure read of the job's status and result from the store
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Warn("Invalid job_id format", slog.String("job_id", jobID))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.storage.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.JobFilter{
		JobType:  req.JobType,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.storage.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	// One extra row was fetched to detect whether more results exist
	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = toJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

func toJobDTO(job *model.Job) dto.JobDTO {
	d := dto.JobDTO{
		JobID:        job.JobID,
		JobType:      job.JobType,
		Payload:      json.RawMessage(job.Payload),
		Status:       job.Status,
		AttemptCount: job.AttemptCount,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
	}

	if len(job.Result) > 0 {
		d.Result = json.RawMessage(job.Result)
	}

	if job.ErrorMessage.Valid {
		d.ErrorMessage = job.ErrorMessage.String
	}

	return d
}
