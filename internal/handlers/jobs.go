package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/services"
)

type JobsHandler struct {
	documents services.DocumentService
}

func NewJobsHandler(documents services.DocumentService) *JobsHandler {
	return &JobsHandler{documents: documents}
}

// GET /api/jobs/:id
func (h *JobsHandler) Get(c *gin.Context) {
	rd, ok := principal(c)
	if !ok {
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.documents.GetJob(dbctx.Context{Ctx: c.Request.Context()}, rd.UserID, jobID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}
