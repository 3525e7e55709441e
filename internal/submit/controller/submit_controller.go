package controller

import (
	judgesvc "conqueroj/internal/judge/service"
	"conqueroj/internal/submit/service"
	"conqueroj/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// CreateRequest is the submission intake payload.
type CreateRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	ProblemID  string `json:"problem_id" binding:"required"`
	Language   string `json:"language" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
}

// SubmitController handles submission intake and polling endpoints.
type SubmitController struct {
	submitService *service.SubmitService
	statusService *judgesvc.StatusService
}

// NewSubmitController creates a new controller.
func NewSubmitController(submitService *service.SubmitService, statusService *judgesvc.StatusService) *SubmitController {
	return &SubmitController{submitService: submitService, statusService: statusService}
}

// Create accepts a submission and enqueues it for judging.
func (h *SubmitController) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.submitService.Submit(c.Request.Context(), service.SubmitInput{
		UserID:     req.UserID,
		ProblemID:  req.ProblemID,
		Language:   req.Language,
		SourceCode: req.SourceCode,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// GetStatus returns the verdict and per-case results for a submission.
func (h *SubmitController) GetStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	status, err := h.statusService.GetStatus(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// GetSource returns the stored source code for a submission.
func (h *SubmitController) GetSource(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	source, err := h.submitService.GetSource(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"submission_id": submissionID, "source_code": source})
}
