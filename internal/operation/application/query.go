package application

import (
	"context"

	"github.com/wyfcoding/optionsledger/internal/operation/domain"
	"github.com/wyfcoding/optionsledger/pkg/logger"
)

// QueryService 头寸查询服务（读模型）
type QueryService struct {
	repo     domain.OperationRepository
	readRepo domain.OperationReadRepository
}

// NewQueryService 创建查询服务；readRepo 可为 nil
func NewQueryService(repo domain.OperationRepository, readRepo domain.OperationReadRepository) *QueryService {
	return &QueryService{repo: repo, readRepo: readRepo}
}

// Get 获取单条记录并校验归属
func (q *QueryService) Get(ctx context.Context, userID, operationID string) (*domain.Operation, error) {
	if q.readRepo != nil {
		cached, err := q.readRepo.Get(ctx, operationID)
		if err != nil {
			logger.Warn(ctx, "operation read cache failed", "operation_id", operationID, "error", err)
		} else if cached != nil {
			if cached.UserID != userID {
				return nil, domain.ErrForbidden
			}
			return cached, nil
		}
	}

	op, err := q.repo.Get(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, domain.ErrOperationNotFound
	}
	if op.UserID != userID {
		return nil, domain.ErrForbidden
	}

	if q.readRepo != nil {
		if err := q.readRepo.Save(ctx, op); err != nil {
			logger.Warn(ctx, "failed to backfill operation read cache", "operation_id", operationID, "error", err)
		}
	}
	return op, nil
}

// List 分页获取用户记录
func (q *QueryService) List(ctx context.Context, userID string, filter domain.ListFilter) ([]*domain.Operation, int64, error) {
	return q.repo.List(ctx, userID, filter)
}

// ListChildren 获取某条记录的派生切片
func (q *QueryService) ListChildren(ctx context.Context, userID, parentID string) ([]*domain.Operation, error) {
	if _, err := q.Get(ctx, userID, parentID); err != nil {
		return nil, err
	}
	return q.repo.ListChildren(ctx, parentID)
}
