// Package middleware 提供 Gin 通用中间件（日志、trace、panic recover、用户解析）
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/optionsledger/pkg/logger"
)

// UserIDKey gin context 中已解析用户 ID 的键
const UserIDKey = "user_id"

// userIDHeader 上游鉴权层注入的用户标识头
const userIDHeader = "X-User-ID"

// Logging Gin 日志中间件，注入 trace_id/request_id 并记录请求耗时
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}

		ctx := context.WithValue(c.Request.Context(), logger.TraceIDKey, traceID)
		ctx = context.WithValue(ctx, logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info(ctx, "HTTP request completed",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// Recovery panic 恢复中间件
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					"panic", r,
					"path", c.Request.URL.Path,
				)
				response.ErrorWithStatus(c, http.StatusInternalServerError, "internal server error", "")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// RequireUser 解析上游鉴权层注入的用户 ID，缺失时拒绝请求
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(userIDHeader)
		if userID == "" {
			response.ErrorWithStatus(c, http.StatusUnauthorized, "missing user identity", "")
			c.Abort()
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserID 从 gin context 读取已解析的用户 ID
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
