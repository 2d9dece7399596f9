// Package http 暴露绩效报表的 REST 接口。
package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/optionsledger/internal/report/application"
	"github.com/wyfcoding/optionsledger/internal/report/domain"
	"github.com/wyfcoding/optionsledger/pkg/logger"
	"github.com/wyfcoding/optionsledger/pkg/metrics"
	"github.com/wyfcoding/optionsledger/pkg/middleware"
)

// ReportHandler 报表 HTTP 处理器
type ReportHandler struct {
	service *application.ReportService
	metrics *metrics.Metrics
}

// NewReportHandler 创建处理器；metrics 可为 nil
func NewReportHandler(service *application.ReportService, m *metrics.Metrics) *ReportHandler {
	return &ReportHandler{service: service, metrics: m}
}

// RegisterRoutes 注册路由
func (h *ReportHandler) RegisterRoutes(r *gin.RouterGroup) {
	v1 := r.Group("/v1/reports", middleware.RequireUser())
	{
		v1.GET("", h.GetReport)
	}
}

// GetReport 生成绩效报表
//
// 周期参数：period=lastMonth|last3Months|last6Months|specificMonth|all，
// specificMonth 需要 month（葡语月份名）与 year。
func (h *ReportHandler) GetReport(c *gin.Context) {
	year := 0
	if yearStr := c.Query("year"); yearStr != "" {
		parsed, err := strconv.Atoi(yearStr)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid year", "")
			return
		}
		year = parsed
	}

	period, err := domain.ParsePeriod(c.Query("period"), c.Query("month"), year)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	report, err := h.service.Generate(c.Request.Context(), middleware.UserID(c), period)
	if err != nil {
		// 意外的存储层错误只记日志，不把内部细节回给调用方
		logger.Error(c.Request.Context(), "report generation failed", "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal server error", "")
		return
	}

	if h.metrics != nil {
		h.metrics.ReportsGeneratedTotal.Inc()
	}
	response.Success(c, report)
}
