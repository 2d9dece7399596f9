// Package http 暴露保证金台账的 REST 接口。
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/optionsledger/internal/margin/application"
	"github.com/wyfcoding/optionsledger/internal/margin/domain"
	"github.com/wyfcoding/optionsledger/pkg/logger"
	"github.com/wyfcoding/optionsledger/pkg/middleware"
)

// MarginHandler 保证金 HTTP 处理器
type MarginHandler struct {
	service *application.MarginService
}

// NewMarginHandler 创建处理器
func NewMarginHandler(service *application.MarginService) *MarginHandler {
	return &MarginHandler{service: service}
}

// RegisterRoutes 注册路由
func (h *MarginHandler) RegisterRoutes(r *gin.RouterGroup) {
	v1 := r.Group("/v1/margin", middleware.RequireUser())
	{
		v1.GET("", h.GetAccount)
		v1.PUT("/total", h.SetTotal)
		v1.POST("/adjustments", h.Adjust)
		v1.GET("/adjustments", h.ListAdjustments)
	}
}

// GetAccount 查询账户总额、占用与可用额度
func (h *MarginHandler) GetAccount(c *gin.Context) {
	account, err := h.service.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"userId":    account.UserID,
		"total":     account.Total,
		"allocated": account.Allocated,
		"available": account.Available(),
	})
}

type setTotalRequest struct {
	Total string `json:"total" binding:"required"`
}

// SetTotal 设置总保证金
func (h *MarginHandler) SetTotal(c *gin.Context) {
	var req setTotalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	total, err := decimal.NewFromString(req.Total)
	if err != nil || total.IsNegative() {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid total", "")
		return
	}

	account, err := h.service.SetTotal(c.Request.Context(), middleware.UserID(c), total)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, account)
}

type adjustRequest struct {
	Delta string `json:"delta" binding:"required"`
	Type  string `json:"type"`
	Note  string `json:"note"`
}

// Adjust 按增量调整总保证金并记录调整历史
func (h *MarginHandler) Adjust(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	delta, err := decimal.NewFromString(req.Delta)
	if err != nil || delta.IsZero() {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid delta", "")
		return
	}

	account, err := h.service.Adjust(c.Request.Context(), middleware.UserID(c), delta, domain.AdjustmentType(req.Type), req.Note)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, account)
}

// ListAdjustments 分页查询调整历史
func (h *MarginHandler) ListAdjustments(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 200 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid limit", "")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid offset", "")
		return
	}

	adjustments, total, err := h.service.ListAdjustments(c.Request.Context(), middleware.UserID(c), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"items": adjustments, "total": total})
}

func (h *MarginHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrInsufficientMargin),
		errors.Is(err, domain.ErrMarginBelowAllocated):
		response.ErrorWithStatus(c, http.StatusUnprocessableEntity, err.Error(), "")
	case errors.Is(err, domain.ErrConcurrentModification):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), "")
	default:
		// 意外的存储层错误只记日志，不把内部细节回给调用方
		logger.Error(c.Request.Context(), "margin request failed", "path", c.Request.URL.Path, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal server error", "")
	}
}
