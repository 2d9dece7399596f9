// Package mysql 提供保证金台账仓储的 GORM 实现。
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/optionsledger/internal/margin/domain"
	"github.com/wyfcoding/optionsledger/pkg/logger"
)

// MarginAccountModel 保证金账户数据库模型
type MarginAccountModel struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"column:user_id;type:varchar(32);uniqueIndex;not null"`
	Total     string    `gorm:"column:total;type:decimal(32,18);not null"`
	Allocated string    `gorm:"column:allocated;type:decimal(32,18);not null"`
	Version   int64     `gorm:"column:version;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName 指定表名
func (MarginAccountModel) TableName() string {
	return "margin_accounts"
}

// MarginAdjustmentModel 手工调整记录数据库模型
type MarginAdjustmentModel struct {
	ID        uint      `gorm:"primaryKey"`
	AdjustID  string    `gorm:"column:adjust_id;type:varchar(32);uniqueIndex;not null"`
	UserID    string    `gorm:"column:user_id;type:varchar(32);index;not null"`
	Delta     string    `gorm:"column:delta;type:decimal(32,18);not null"`
	Type      string    `gorm:"column:type;type:varchar(20);not null"`
	Note      string    `gorm:"column:note;type:varchar(255)"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
}

// TableName 指定表名
func (MarginAdjustmentModel) TableName() string {
	return "margin_adjustments"
}

// marginRepositoryImpl 是 domain.MarginRepository 接口的 GORM 实现。
type marginRepositoryImpl struct {
	db *gorm.DB
}

// NewMarginRepository 创建保证金仓储实例
func NewMarginRepository(db *gorm.DB) domain.MarginRepository {
	return &marginRepositoryImpl{db: db}
}

// WithTx 实现 domain.MarginRepository.WithTx
func (r *marginRepositoryImpl) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}

// GetByUser 实现 domain.MarginRepository.GetByUser
func (r *marginRepositoryImpl) GetByUser(ctx context.Context, userID string) (*domain.MarginAccount, error) {
	var model MarginAccountModel
	if err := r.getDB(ctx).WithContext(ctx).Where("user_id = ?", userID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get margin account: %w", err)
	}
	return toAccount(&model), nil
}

// Save 实现 domain.MarginRepository.Save（带乐观锁）
func (r *marginRepositoryImpl) Save(ctx context.Context, account *domain.MarginAccount) error {
	db := r.getDB(ctx).WithContext(ctx)

	if account.Version == 0 {
		model := toAccountModel(account)
		model.Version = 1
		if err := db.Create(model).Error; err != nil {
			return fmt.Errorf("failed to create margin account: %w", err)
		}
		account.Version = 1
		return nil
	}

	result := db.Model(&MarginAccountModel{}).
		Where("user_id = ? AND version = ?", account.UserID, account.Version).
		Updates(map[string]any{
			"total":     account.Total.String(),
			"allocated": account.Allocated.String(),
			"version":   account.Version + 1,
		})
	if result.Error != nil {
		logger.Error(ctx, "margin_repository.Save failed", "user_id", account.UserID, "error", result.Error)
		return fmt.Errorf("failed to save margin account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrConcurrentModification
	}
	account.Version++
	return nil
}

// AppendAdjustment 实现 domain.MarginRepository.AppendAdjustment
func (r *marginRepositoryImpl) AppendAdjustment(ctx context.Context, adj *domain.Adjustment) error {
	model := &MarginAdjustmentModel{
		AdjustID:  adj.ID,
		UserID:    adj.UserID,
		Delta:     adj.Delta.String(),
		Type:      string(adj.Type),
		Note:      adj.Note,
		CreatedAt: adj.CreatedAt,
	}
	if err := r.getDB(ctx).WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to append margin adjustment: %w", err)
	}
	return nil
}

// ListAdjustments 实现 domain.MarginRepository.ListAdjustments
func (r *marginRepositoryImpl) ListAdjustments(ctx context.Context, userID string, limit, offset int) ([]*domain.Adjustment, int64, error) {
	var models []MarginAdjustmentModel
	var total int64
	db := r.getDB(ctx).WithContext(ctx).Model(&MarginAdjustmentModel{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at desc").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list margin adjustments: %w", err)
	}

	adjustments := make([]*domain.Adjustment, len(models))
	for i, m := range models {
		delta, _ := decimal.NewFromString(m.Delta)
		adjustments[i] = &domain.Adjustment{
			ID:        m.AdjustID,
			UserID:    m.UserID,
			Delta:     delta,
			Type:      domain.AdjustmentType(m.Type),
			Note:      m.Note,
			CreatedAt: m.CreatedAt,
		}
	}
	return adjustments, total, nil
}

func (r *marginRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func toAccountModel(account *domain.MarginAccount) *MarginAccountModel {
	return &MarginAccountModel{
		UserID:    account.UserID,
		Total:     account.Total.String(),
		Allocated: account.Allocated.String(),
		Version:   account.Version,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}
}

func toAccount(model *MarginAccountModel) *domain.MarginAccount {
	total, _ := decimal.NewFromString(model.Total)
	allocated, _ := decimal.NewFromString(model.Allocated)
	return &domain.MarginAccount{
		UserID:    model.UserID,
		Total:     total,
		Allocated: allocated,
		Version:   model.Version,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
