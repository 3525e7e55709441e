package controller

import (
	"strconv"

	"conqueroj/internal/judge/repository"
	"conqueroj/internal/judge/service"
	"conqueroj/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// JudgeController handles judge status and leaderboard requests.
type JudgeController struct {
	statusService *service.StatusService
	leaderboard   *repository.LeaderboardRepository
}

// NewJudgeController creates a new controller.
func NewJudgeController(statusService *service.StatusService, leaderboard *repository.LeaderboardRepository) *JudgeController {
	return &JudgeController{statusService: statusService, leaderboard: leaderboard}
}

// GetStatus returns the verdict and per-case results for one submission.
func (h *JudgeController) GetStatus(c *gin.Context) {
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

// GetLeaderboard returns the top-scoring users.
func (h *JudgeController) GetLeaderboard(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "10"), 10, 64)
	entries, err := h.leaderboard.Top(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entries)
}
