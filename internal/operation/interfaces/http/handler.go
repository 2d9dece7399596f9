// Package http 暴露头寸生命周期的 REST 接口。
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/response"

	margindomain "github.com/wyfcoding/optionsledger/internal/margin/domain"
	"github.com/wyfcoding/optionsledger/internal/operation/application"
	"github.com/wyfcoding/optionsledger/internal/operation/domain"
	"github.com/wyfcoding/optionsledger/pkg/logger"
	"github.com/wyfcoding/optionsledger/pkg/metrics"
	"github.com/wyfcoding/optionsledger/pkg/middleware"
)

// OperationHandler 头寸生命周期 HTTP 处理器
type OperationHandler struct {
	lifecycle *application.LifecycleService
	query     *application.QueryService
	metrics   *metrics.Metrics
}

// NewOperationHandler 创建处理器；metrics 可为 nil
func NewOperationHandler(lifecycle *application.LifecycleService, query *application.QueryService, m *metrics.Metrics) *OperationHandler {
	return &OperationHandler{lifecycle: lifecycle, query: query, metrics: m}
}

// RegisterRoutes 注册路由
func (h *OperationHandler) RegisterRoutes(r *gin.RouterGroup) {
	v1 := r.Group("/v1/positions", middleware.RequireUser())
	{
		v1.POST("", h.OpenPosition)
		v1.GET("", h.ListPositions)
		v1.GET("/:id", h.GetPosition)
		v1.GET("/:id/children", h.ListChildren)
		v1.POST("/:id/close", h.ClosePosition)
		v1.DELETE("/:id", h.DeletePosition)
	}
}

type openPositionRequest struct {
	Ticker     string `json:"ticker" binding:"required"`
	Type       string `json:"type" binding:"required"`
	Direction  string `json:"direction" binding:"required"`
	Strike     string `json:"strike"`
	Price      string `json:"price" binding:"required"`
	Quantity   int64  `json:"quantity" binding:"required"`
	Margin     string `json:"margin"`
	RefMonth   int    `json:"refMonth"`
	RefYear    int    `json:"refYear"`
	Notes      string `json:"notes"`
	GroupLabel string `json:"groupLabel"`
}

// OpenPosition 开仓
func (h *OperationHandler) OpenPosition(c *gin.Context) {
	var req openPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid price", "")
		return
	}
	strike := decimal.Zero
	if req.Strike != "" {
		if strike, err = decimal.NewFromString(req.Strike); err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid strike", "")
			return
		}
	}
	margin := decimal.Zero
	if req.Margin != "" {
		if margin, err = decimal.NewFromString(req.Margin); err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid margin", "")
			return
		}
	}

	op, err := h.lifecycle.OpenPosition(c.Request.Context(), middleware.UserID(c), application.OpenPositionCommand{
		Ticker:     req.Ticker,
		Type:       domain.InstrumentType(req.Type),
		Direction:  domain.Direction(req.Direction),
		Strike:     strike,
		Price:      price,
		Quantity:   req.Quantity,
		Margin:     margin,
		RefMonth:   time.Month(req.RefMonth),
		RefYear:    req.RefYear,
		Notes:      req.Notes,
		GroupLabel: req.GroupLabel,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.PositionsOpenedTotal.Inc()
		h.metrics.PositionsOpen.Inc()
	}
	response.Success(c, op)
}

// ListPositions 分页查询头寸
func (h *OperationHandler) ListPositions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid limit", "")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid offset", "")
		return
	}

	ops, total, err := h.query.List(c.Request.Context(), middleware.UserID(c), domain.ListFilter{
		Status: domain.OperationStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"items": ops, "total": total})
}

// GetPosition 按 ID 查询单条头寸
func (h *OperationHandler) GetPosition(c *gin.Context) {
	op, err := h.query.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, op)
}

// ListChildren 查询某条头寸的派生切片
func (h *OperationHandler) ListChildren(c *gin.Context) {
	children, err := h.query.ListChildren(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, children)
}

type closePositionRequest struct {
	ClosePrice      string `json:"closePrice" binding:"required"`
	QuantityToClose *int64 `json:"quantityToClose"`
}

// ClosePosition 平仓或部分平仓
func (h *OperationHandler) ClosePosition(c *gin.Context) {
	var req closePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	closePrice, err := decimal.NewFromString(req.ClosePrice)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid close price", "")
		return
	}

	result, err := h.lifecycle.ClosePosition(c.Request.Context(), middleware.UserID(c), application.ClosePositionCommand{
		OperationID:     c.Param("id"),
		ClosePrice:      closePrice,
		QuantityToClose: req.QuantityToClose,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.PositionsClosedTotal.Inc()
		if result.Parent.Status == domain.StatusClosed {
			h.metrics.PositionsOpen.Dec()
		}
	}
	response.Success(c, result)
}

// DeletePosition 删除头寸及其派生切片
func (h *OperationHandler) DeletePosition(c *gin.Context) {
	if err := h.lifecycle.DeleteOperation(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// writeError 将领域错误映射为 HTTP 状态码
func (h *OperationHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrOperationNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrForbidden):
		response.ErrorWithStatus(c, http.StatusForbidden, err.Error(), "")
	case errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidStrike),
		errors.Is(err, domain.ErrInvalidInstrument),
		errors.Is(err, domain.ErrInvalidDirection),
		errors.Is(err, domain.ErrInvalidMargin):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, margindomain.ErrInsufficientMargin):
		response.ErrorWithStatus(c, http.StatusUnprocessableEntity, err.Error(), "")
	case errors.Is(err, domain.ErrConcurrentModification):
		if h.metrics != nil {
			h.metrics.ConcurrentConflictsTotal.Inc()
		}
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), "")
	default:
		// 意外的存储层错误只记日志，不把内部细节回给调用方
		logger.Error(c.Request.Context(), "position request failed", "path", c.Request.URL.Path, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal server error", "")
	}
}
