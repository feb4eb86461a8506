package handler

import (
	"net/http"

	"runquest/internal/service"

	"github.com/gin-gonic/gin"
)

type RunHandler struct {
	progression *service.ProgressionService
}

func NewRunHandler(progression *service.ProgressionService) *RunHandler {
	return &RunHandler{progression: progression}
}

// StartRun 开始新的 run
func (h *RunHandler) StartRun(c *gin.Context) {
	var req struct {
		UserID  string  `json:"user_id" binding:"required,max=36"`
		Caption *string `json:"caption" binding:"omitempty,max=500"`
		Public  *bool   `json:"public"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	snap, err := h.progression.StartRun(c.Request.Context(), service.StartRunInput{
		UserID:  req.UserID,
		Caption: req.Caption,
		Public:  req.Public,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// GetRun 返回当前状态，客户端刷新后据此恢复计时器
func (h *RunHandler) GetRun(c *gin.Context) {
	snap, err := h.progression.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// SubmitOutcome 提交当前挑战结果
func (h *RunHandler) SubmitOutcome(c *gin.Context) {
	var req struct {
		Completed    bool    `json:"completed"`
		SkippedWhole bool    `json:"skipped_whole"`
		// 上传接口返回的 url 或 path 均可
		ProofURL *string `json:"proof_url" binding:"omitempty,min=1,max=2048"`
		// 客户端作答的挑战 ID，与当前挑战不一致时拒绝，防止重复提交
		ChallengeID uint `json:"challenge_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.progression.SubmitOutcome(c.Request.Context(), c.Param("id"), service.OutcomeInput{
		Completed:           req.Completed,
		SkippedWhole:        req.SkippedWhole,
		ProofURL:            req.ProofURL,
		ExpectedChallengeID: req.ChallengeID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SetProofPending 进入/离开提交证明页面
func (h *RunHandler) SetProofPending(c *gin.Context) {
	var req struct {
		ProofPending *bool `json:"proof_pending" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	snap, err := h.progression.SetProofPending(c.Request.Context(), c.Param("id"), *req.ProofPending)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// FinishRun 主动结束，可重复调用
func (h *RunHandler) FinishRun(c *gin.Context) {
	snap, err := h.progression.ForceFinish(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *RunHandler) ListSteps(c *gin.Context) {
	steps, err := h.progression.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"steps": steps})
}

func (h *RunHandler) ListUserRuns(c *gin.Context) {
	runs, err := h.progression.ListUserRuns(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
