package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optionsledger/internal/operation/application"
	"github.com/wyfcoding/optionsledger/internal/operation/domain"
)

type stubRepo struct {
	op     *domain.Operation
	getErr error
}

func (r *stubRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
func (r *stubRepo) Save(context.Context, *domain.Operation) error { return nil }
func (r *stubRepo) Get(context.Context, string) (*domain.Operation, error) {
	return r.op, r.getErr
}
func (r *stubRepo) List(context.Context, string, domain.ListFilter) ([]*domain.Operation, int64, error) {
	return nil, 0, nil
}
func (r *stubRepo) ListAllByUser(context.Context, string) ([]*domain.Operation, error) {
	return nil, nil
}
func (r *stubRepo) ListChildren(context.Context, string) ([]*domain.Operation, error) {
	return nil, nil
}
func (r *stubRepo) DeleteCascade(context.Context, string) error { return nil }

func newTestRouter(repo domain.OperationRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewOperationHandler(nil, application.NewQueryService(repo, nil), nil)
	router := gin.New()
	handler.RegisterRoutes(router.Group("/api"))
	return router
}

func getPosition(router *gin.Engine, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/positions/OP-1", nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestGetPositionHidesStoreInternals(t *testing.T) {
	router := newTestRouter(&stubRepo{
		getErr: errors.New("failed to get operation: dial tcp 10.0.0.5:3306: connection refused"),
	})

	recorder := getPosition(router, "user-1")
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", recorder.Code)
	}
	body := recorder.Body.String()
	if strings.Contains(body, "dial tcp") || strings.Contains(body, "3306") {
		t.Errorf("response leaks store internals: %s", body)
	}
	if !strings.Contains(body, "internal server error") {
		t.Errorf("response should carry the generic message, got: %s", body)
	}
}

func TestGetPositionNotFound(t *testing.T) {
	recorder := getPosition(newTestRouter(&stubRepo{}), "user-1")
	if recorder.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", recorder.Code)
	}
}

func TestGetPositionForbidden(t *testing.T) {
	recorder := getPosition(newTestRouter(&stubRepo{op: &domain.Operation{ID: "OP-1", UserID: "user-2"}}), "user-1")
	if recorder.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", recorder.Code)
	}
}

func TestMissingUserIdentity(t *testing.T) {
	recorder := getPosition(newTestRouter(&stubRepo{}), "")
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", recorder.Code)
	}
}
