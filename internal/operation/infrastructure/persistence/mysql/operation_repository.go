// Package mysql 提供头寸仓储接口的 MySQL GORM 实现。
package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/optionsledger/internal/operation/domain"
	"github.com/wyfcoding/optionsledger/pkg/logger"
)

// operationRepositoryImpl 是 domain.OperationRepository 接口的 GORM 实现。
type operationRepositoryImpl struct {
	db *gorm.DB
}

// NewOperationRepository 创建头寸仓储实例
func NewOperationRepository(db *gorm.DB) domain.OperationRepository {
	return &operationRepositoryImpl{db: db}
}

// WithTx 实现 domain.OperationRepository.WithTx
func (r *operationRepositoryImpl) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}

// Save 实现 domain.OperationRepository.Save
// 已存在的记录按版本号条件更新；版本不匹配返回 ErrConcurrentModification
func (r *operationRepositoryImpl) Save(ctx context.Context, op *domain.Operation) error {
	db := r.getDB(ctx).WithContext(ctx)
	model := fromDomain(op)

	if op.Version == 0 {
		model.Version = 1
		if err := db.Create(model).Error; err != nil {
			logger.Error(ctx, "operation_repository.Save create failed", "operation_id", op.ID, "error", err)
			return fmt.Errorf("failed to create operation: %w", err)
		}
		op.Version = 1
		return nil
	}

	result := db.Model(&OperationModel{}).
		Where("operation_id = ? AND version = ?", op.ID, op.Version).
		Updates(map[string]any{
			"remaining_quantity":    model.RemainingQuantity,
			"margin_allocated":      model.MarginAllocated,
			"close_price":           model.ClosePrice,
			"close_notional":        model.CloseNotional,
			"result":                model.Result,
			"status":                model.Status,
			"closed_at":             model.ClosedAt,
			"notes":                 model.Notes,
			"group_label":           model.GroupLabel,
			"related_operation_ids": model.RelatedOperationIDs,
			"updated_at":            model.UpdatedAt,
			"version":               op.Version + 1,
		})
	if result.Error != nil {
		logger.Error(ctx, "operation_repository.Save failed", "operation_id", op.ID, "error", result.Error)
		return fmt.Errorf("failed to save operation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrConcurrentModification
	}
	op.Version++
	return nil
}

// Get 实现 domain.OperationRepository.Get
func (r *operationRepositoryImpl) Get(ctx context.Context, id string) (*domain.Operation, error) {
	var model OperationModel
	if err := r.getDB(ctx).WithContext(ctx).Where("operation_id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return toDomain(&model), nil
}

// List 实现 domain.OperationRepository.List
func (r *operationRepositoryImpl) List(ctx context.Context, userID string, filter domain.ListFilter) ([]*domain.Operation, int64, error) {
	var models []OperationModel
	var total int64

	db := r.getDB(ctx).WithContext(ctx).Model(&OperationModel{}).Where("user_id = ?", userID)
	if filter.Status != "" {
		db = db.Where("status = ?", string(filter.Status))
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if err := db.Order("opened_at desc").Limit(limit).Offset(filter.Offset).Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list operations: %w", err)
	}

	ops := make([]*domain.Operation, len(models))
	for i := range models {
		ops[i] = toDomain(&models[i])
	}
	return ops, total, nil
}

// ListAllByUser 实现 domain.OperationRepository.ListAllByUser
func (r *operationRepositoryImpl) ListAllByUser(ctx context.Context, userID string) ([]*domain.Operation, error) {
	var models []OperationModel
	if err := r.getDB(ctx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("opened_at asc").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list operations by user: %w", err)
	}
	ops := make([]*domain.Operation, len(models))
	for i := range models {
		ops[i] = toDomain(&models[i])
	}
	return ops, nil
}

// ListChildren 实现 domain.OperationRepository.ListChildren
func (r *operationRepositoryImpl) ListChildren(ctx context.Context, parentID string) ([]*domain.Operation, error) {
	var models []OperationModel
	if err := r.getDB(ctx).WithContext(ctx).
		Where("original_operation_id = ?", parentID).
		Order("closed_at asc").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list child operations: %w", err)
	}
	ops := make([]*domain.Operation, len(models))
	for i := range models {
		ops[i] = toDomain(&models[i])
	}
	return ops, nil
}

// DeleteCascade 实现 domain.OperationRepository.DeleteCascade
func (r *operationRepositoryImpl) DeleteCascade(ctx context.Context, id string) error {
	err := r.getDB(ctx).WithContext(ctx).
		Where("operation_id = ? OR original_operation_id = ?", id, id).
		Delete(&OperationModel{}).Error
	if err != nil {
		logger.Error(ctx, "operation_repository.DeleteCascade failed", "operation_id", id, "error", err)
		return fmt.Errorf("failed to delete operation: %w", err)
	}
	return nil
}

func (r *operationRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}
