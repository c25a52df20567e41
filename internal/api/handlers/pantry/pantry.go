package pantry

import (
	"context"
	"errors"
	"net/http"

	"pantry-chef/internal/api/middleware"
	corepantry "pantry-chef/internal/core/pantry"
	"pantry-chef/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

// Service 食材櫃服務
type Service interface {
	Get(ctx context.Context, userID string) (*corepantry.Pantry, error)
	Catalog(ctx context.Context) ([]corepantry.Ingredient, error)
	Add(ctx context.Context, userID, name string) (*corepantry.Pantry, error)
	Remove(ctx context.Context, userID, name string) (*corepantry.Pantry, error)
}

// AddIngredientRequest 加入食材
type AddIngredientRequest struct {
	Name string `json:"name" binding:"required"`
}

// Response 食材櫃內容與尚未加入的型錄食材
type Response struct {
	UserID      string                  `json:"user_id"`
	Ingredients []corepantry.Ingredient `json:"ingredients"`
	Available   []corepantry.Ingredient `json:"available,omitempty"`
}

// Handler 食材櫃處理器
type Handler struct {
	svc Service
}

// NewHandler 創建食材櫃處理器
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// List GET /pantry
func (h *Handler) List(c *gin.Context) {
	userID := middleware.UserID(c)
	ctx := c.Request.Context()

	resp := Response{UserID: userID, Ingredients: []corepantry.Ingredient{}}
	p, err := h.svc.Get(ctx, userID)
	switch {
	case errors.Is(err, corepantry.ErrNoPantry):
	case err != nil:
		common.WriteError(c, common.ErrInternalError.Wrap(err))
		return
	default:
		resp.Ingredients = p.Ingredients
	}

	catalog, err := h.svc.Catalog(ctx)
	if err != nil {
		common.WriteError(c, common.ErrInternalError.Wrap(err))
		return
	}
	owned := make(map[uint]struct{}, len(resp.Ingredients))
	for _, ing := range resp.Ingredients {
		owned[ing.ID] = struct{}{}
	}
	for _, ing := range catalog {
		if _, ok := owned[ing.ID]; !ok {
			resp.Available = append(resp.Available, ing)
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Add POST /pantry/ingredients
func (h *Handler) Add(c *gin.Context) {
	var req AddIngredientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.WriteError(c, common.ErrInvalidRequest.Wrap(err))
		return
	}

	p, err := h.svc.Add(c.Request.Context(), middleware.UserID(c), req.Name)
	if err != nil {
		writePantryError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{UserID: p.UserID, Ingredients: p.Ingredients})
}

// Remove DELETE /pantry/ingredients/:name
func (h *Handler) Remove(c *gin.Context) {
	p, err := h.svc.Remove(c.Request.Context(), middleware.UserID(c), c.Param("name"))
	if err != nil {
		writePantryError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{UserID: p.UserID, Ingredients: p.Ingredients})
}

func writePantryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, corepantry.ErrInvalidName):
		common.WriteError(c, common.ErrInvalidRequest.Wrap(err))
	case errors.Is(err, corepantry.ErrNoPantry), errors.Is(err, corepantry.ErrIngredientNotFound):
		common.WriteError(c, common.ErrNotFound.Wrap(err))
	default:
		common.WriteError(c, common.ErrInternalError.Wrap(err))
	}
}
