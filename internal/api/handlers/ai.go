package handlers

import (
	"context"
	"net/http"

	"pantry-chef/internal/api/middleware"
	"pantry-chef/internal/core/suggestion"
	"pantry-chef/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SuggestionService 建議流程
type SuggestionService interface {
	Suggest(ctx context.Context, userID string) (*suggestion.Result, error)
	TaskStatus(ctx context.Context, userID, taskID string) (*suggestion.Result, error)
	Detail(ctx context.Context, name string) (map[string]any, error)
}

// AIHandler AI 建議處理器
type AIHandler struct {
	svc SuggestionService
}

// NewAIHandler 創建 AI 處理器
func NewAIHandler(svc SuggestionService) *AIHandler {
	return &AIHandler{svc: svc}
}

// Suggestions GET /ai/suggestions
//
// 新鮮快取直接回傳 {"recipes": [...]}，否則排入背景任務並回傳
// {"status": "processing", "task_id": "..."}。
func (h *AIHandler) Suggestions(c *gin.Context) {
	userID := middleware.UserID(c)
	res, err := h.svc.Suggest(c.Request.Context(), userID)
	if err != nil {
		common.LogWarn("建議請求失敗",
			zap.String("request_id", requestid.Get(c)),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		common.WriteError(c, err)
		return
	}

	switch {
	case res.Error != "":
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error})
	case res.Status == suggestion.StatusProcessing:
		c.JSON(http.StatusOK, gin.H{
			"status":  res.Status,
			"task_id": res.TaskID,
		})
	default:
		c.JSON(http.StatusOK, gin.H{"recipes": res.Recipes})
	}
}

// TaskStatus GET /ai/task-status/:task_id
func (h *AIHandler) TaskStatus(c *gin.Context) {
	taskID := c.Param("task_id")
	res, err := h.svc.TaskStatus(c.Request.Context(), middleware.UserID(c), taskID)
	if err != nil {
		common.WriteError(c, err)
		return
	}

	switch {
	case res.Status == suggestion.StatusPending:
		c.JSON(http.StatusOK, gin.H{"status": res.Status})
	case res.Error != "":
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": res.Status,
			"error":  res.Error,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"status":  res.Status,
			"recipes": res.Recipes,
		})
	}
}

// RecipeDetail GET /ai/recipe/:name
func (h *AIHandler) RecipeDetail(c *gin.Context) {
	name := c.Param("name")
	detail, err := h.svc.Detail(c.Request.Context(), name)
	if err != nil {
		common.LogError("食譜詳情生成失敗",
			zap.String("request_id", requestid.Get(c)),
			zap.String("dish", name),
			zap.Error(err),
		)
		ce := common.AsCustomError(err)
		c.AbortWithStatusJSON(ce.Status, common.ErrorResponse{
			Error: err.Error(),
			Code:  ce.Code,
		})
		return
	}

	c.JSON(http.StatusOK, detail)
}
