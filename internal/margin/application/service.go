// Package application 实现保证金台账的应用服务。
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/optionsledger/internal/margin/domain"
	"github.com/wyfcoding/optionsledger/pkg/logger"
)

// 乐观锁冲突的内部重试上限
const maxRetries = 3

// MarginService 保证金应用服务；生命周期管理器通过 Allocate/Release 调用
type MarginService struct {
	repo domain.MarginRepository
	now  func() time.Time
}

// NewMarginService 创建保证金应用服务
func NewMarginService(repo domain.MarginRepository) *MarginService {
	return &MarginService{repo: repo, now: time.Now}
}

// Get 获取用户账户；账户不存在时返回零值账户
func (s *MarginService) Get(ctx context.Context, userID string) (*domain.MarginAccount, error) {
	account, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return domain.NewMarginAccount(userID, s.now()), nil
	}
	return account, nil
}

// Allocate 占用保证金；可用额度不足时返回 ErrInsufficientMargin
func (s *MarginService) Allocate(ctx context.Context, userID string, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}
	return s.mutate(ctx, userID, func(account *domain.MarginAccount) error {
		return account.Allocate(amount, s.now())
	})
}

// Release 释放保证金
func (s *MarginService) Release(ctx context.Context, userID string, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}
	return s.mutate(ctx, userID, func(account *domain.MarginAccount) error {
		return account.Release(amount, s.now())
	})
}

// SetTotal 设置总保证金；低于占用量时返回 ErrMarginBelowAllocated
func (s *MarginService) SetTotal(ctx context.Context, userID string, newTotal decimal.Decimal) (*domain.MarginAccount, error) {
	var updated *domain.MarginAccount
	err := s.mutate(ctx, userID, func(account *domain.MarginAccount) error {
		if err := account.SetTotal(newTotal, s.now()); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Adjust 按增量手工调整总保证金并记录历史
func (s *MarginService) Adjust(ctx context.Context, userID string, delta decimal.Decimal, adjType domain.AdjustmentType, note string) (*domain.MarginAccount, error) {
	if adjType == "" {
		if delta.IsNegative() {
			adjType = domain.AdjustmentWithdrawal
		} else {
			adjType = domain.AdjustmentDeposit
		}
	}

	var updated *domain.MarginAccount
	err := s.mutate(ctx, userID, func(account *domain.MarginAccount) error {
		if err := account.Adjust(delta, s.now()); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	adj := &domain.Adjustment{
		ID:        fmt.Sprintf("ADJ-%d", idgen.GenID()),
		UserID:    userID,
		Delta:     delta,
		Type:      adjType,
		Note:      note,
		CreatedAt: s.now(),
	}
	if err := s.repo.AppendAdjustment(ctx, adj); err != nil {
		logger.Error(ctx, "failed to append margin adjustment", "user_id", userID, "error", err)
		return nil, err
	}
	return updated, nil
}

// ListAdjustments 获取调整历史
func (s *MarginService) ListAdjustments(ctx context.Context, userID string, limit, offset int) ([]*domain.Adjustment, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListAdjustments(ctx, userID, limit, offset)
}

// mutate 以读-改-写方式更新账户，乐观锁冲突时重试
func (s *MarginService) mutate(ctx context.Context, userID string, fn func(*domain.MarginAccount) error) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
			account, err := s.repo.GetByUser(txCtx, userID)
			if err != nil {
				return err
			}
			if account == nil {
				account = domain.NewMarginAccount(userID, s.now())
			}
			if err := fn(account); err != nil {
				return err
			}
			return s.repo.Save(txCtx, account)
		})
		if !errors.Is(err, domain.ErrConcurrentModification) {
			return err
		}
		lastErr = err
		logger.Warn(ctx, "margin account version conflict, retrying", "user_id", userID, "attempt", attempt+1)
	}
	return lastErr
}
