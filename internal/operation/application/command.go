// Package application 实现头寸生命周期的应用服务（命令与查询）。
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/optionsledger/internal/operation/domain"
	"github.com/wyfcoding/optionsledger/pkg/logger"
)

// 乐观锁冲突的内部重试上限
const maxRetries = 3

// MarginLedger 保证金台账接口；由 margin 模块的应用服务实现
type MarginLedger interface {
	Allocate(ctx context.Context, userID string, amount decimal.Decimal) error
	Release(ctx context.Context, userID string, amount decimal.Decimal) error
}

// OpenPositionCommand 开仓命令
type OpenPositionCommand struct {
	Ticker     string
	Type       domain.InstrumentType
	Direction  domain.Direction
	Strike     decimal.Decimal
	Price      decimal.Decimal
	Quantity   int64
	Margin     decimal.Decimal
	RefMonth   time.Month
	RefYear    int
	Notes      string
	GroupLabel string
}

// ClosePositionCommand 平仓命令；QuantityToClose 为 nil 表示全部平仓
type ClosePositionCommand struct {
	OperationID     string
	ClosePrice      decimal.Decimal
	QuantityToClose *int64
}

// CloseResult 平仓结果：更新后的父记录与（部分平仓时的）派生记录
type CloseResult struct {
	Parent *domain.Operation `json:"parent"`
	Child  *domain.Operation `json:"realizedChild,omitempty"`
}

// LifecycleService 生命周期管理器：头寸状态的唯一写入方
type LifecycleService struct {
	repo     domain.OperationRepository
	readRepo domain.OperationReadRepository
	ledger   MarginLedger
	events   domain.EventPublisher
	now      func() time.Time
}

// NewLifecycleService 创建生命周期服务；readRepo 与 events 可为 nil
func NewLifecycleService(repo domain.OperationRepository, readRepo domain.OperationReadRepository, ledger MarginLedger, events domain.EventPublisher) *LifecycleService {
	return &LifecycleService{
		repo:     repo,
		readRepo: readRepo,
		ledger:   ledger,
		events:   events,
		now:      time.Now,
	}
}

// OpenPosition 开仓：校验参数、占用保证金、落库并发布事件
func (s *LifecycleService) OpenPosition(ctx context.Context, userID string, cmd OpenPositionCommand) (*domain.Operation, error) {
	op, err := domain.NewOperation(newOperationID(), userID, domain.OpenSpec{
		Ticker:     cmd.Ticker,
		Type:       cmd.Type,
		Direction:  cmd.Direction,
		Strike:     cmd.Strike,
		Price:      cmd.Price,
		Quantity:   cmd.Quantity,
		Margin:     cmd.Margin,
		RefMonth:   cmd.RefMonth,
		RefYear:    cmd.RefYear,
		Notes:      cmd.Notes,
		GroupLabel: cmd.GroupLabel,
	}, s.now())
	if err != nil {
		return nil, err
	}

	// 保证金占用先行；落库失败时补偿释放
	if op.MarginAllocated.IsPositive() {
		if err := s.ledger.Allocate(ctx, userID, op.MarginAllocated); err != nil {
			return nil, err
		}
	}

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Save(txCtx, op); err != nil {
			return err
		}
		return s.publish(txCtx, domain.OperationOpenedEventType, op.ID, domain.OperationOpenedEvent{
			OperationID: op.ID,
			UserID:      op.UserID,
			Ticker:      op.Ticker,
			Type:        op.Type,
			Direction:   op.Direction,
			Quantity:    op.Quantity,
			OpenPrice:   op.OpenPrice,
			Margin:      op.MarginAllocated,
			OccurredOn:  s.now(),
		})
	})
	if err != nil {
		if op.MarginAllocated.IsPositive() {
			if relErr := s.ledger.Release(ctx, userID, op.MarginAllocated); relErr != nil {
				logger.Error(ctx, "failed to release margin after aborted open",
					"user_id", userID, "amount", op.MarginAllocated.String(), "error", relErr)
			}
		}
		return nil, err
	}

	s.cacheSave(ctx, op)
	return op, nil
}

// ClosePosition 平仓或部分平仓
//
// 剩余数量的检查与写入在同一个事务里以版本号条件更新完成，并发平仓
// 不可能同时消耗同一段剩余数量；冲突在内部以固定次数重试后才上抛。
func (s *LifecycleService) ClosePosition(ctx context.Context, userID string, cmd ClosePositionCommand) (*CloseResult, error) {
	if cmd.ClosePrice.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidPrice
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, released, err := s.closeOnce(ctx, userID, cmd)
		if errors.Is(err, domain.ErrConcurrentModification) {
			lastErr = err
			logger.Warn(ctx, "close conflicted with concurrent write, retrying",
				"operation_id", cmd.OperationID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}

		if released.IsPositive() {
			if relErr := s.ledger.Release(ctx, userID, released); relErr != nil {
				logger.Error(ctx, "failed to release margin after close",
					"operation_id", cmd.OperationID, "amount", released.String(), "error", relErr)
			}
		}
		s.cacheSave(ctx, result.Parent)
		if result.Child != nil {
			s.cacheSave(ctx, result.Child)
		}
		return result, nil
	}
	return nil, lastErr
}

// closeOnce 执行一次平仓尝试；版本冲突时由调用方重试
func (s *LifecycleService) closeOnce(ctx context.Context, userID string, cmd ClosePositionCommand) (*CloseResult, decimal.Decimal, error) {
	var result CloseResult
	var released decimal.Decimal

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		op, err := s.repo.Get(txCtx, cmd.OperationID)
		if err != nil {
			return err
		}
		if op == nil {
			return domain.ErrOperationNotFound
		}
		if op.UserID != userID {
			return domain.ErrForbidden
		}

		qty := op.RemainingQuantity
		if cmd.QuantityToClose != nil {
			qty = *cmd.QuantityToClose
		}
		if qty <= 0 || qty > op.RemainingQuantity {
			return domain.ErrInvalidQuantity
		}

		now := s.now()
		if qty == op.RemainingQuantity && !op.HasChildren() {
			// 从未拆分过的整笔平仓：原记录原地终结
			released = op.CloseInPlace(cmd.ClosePrice, now)
			if err := s.repo.Save(txCtx, op); err != nil {
				return err
			}
			result = CloseResult{Parent: op}
			return s.publish(txCtx, domain.OperationClosedEventType, op.ID, domain.OperationClosedEvent{
				OperationID:    op.ID,
				UserID:         op.UserID,
				ClosePrice:     cmd.ClosePrice,
				Result:         *op.Result,
				MarginReleased: released,
				OccurredOn:     now,
			})
		}

		// 拆分：生成派生的已实现切片；父记录剩余数量与保证金按比例递减
		child, share := op.SplitSlice(newOperationID(), cmd.ClosePrice, qty, now)
		released = share
		if err := s.repo.Save(txCtx, op); err != nil {
			return err
		}
		if err := s.repo.Save(txCtx, child); err != nil {
			return err
		}
		result = CloseResult{Parent: op, Child: child}

		eventType := domain.OperationPartiallyClosedEventType
		if op.Status == domain.StatusClosed {
			eventType = domain.OperationClosedEventType
		}
		return s.publish(txCtx, eventType, op.ID, domain.OperationPartiallyClosedEvent{
			OperationID:    op.ID,
			ChildID:        child.ID,
			UserID:         op.UserID,
			ClosedQuantity: qty,
			Remaining:      op.RemainingQuantity,
			ClosePrice:     cmd.ClosePrice,
			Result:         *child.Result,
			MarginReleased: share,
			OccurredOn:     now,
		})
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	return &result, released, nil
}

// DeleteOperation 管理性删除：级联移除派生记录并释放仍占用的保证金
func (s *LifecycleService) DeleteOperation(ctx context.Context, userID, operationID string) error {
	var childIDs []string
	var released decimal.Decimal

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		op, err := s.repo.Get(txCtx, operationID)
		if err != nil {
			return err
		}
		if op == nil {
			return domain.ErrOperationNotFound
		}
		if op.UserID != userID {
			return domain.ErrForbidden
		}

		children, err := s.repo.ListChildren(txCtx, operationID)
		if err != nil {
			return err
		}
		for _, child := range children {
			childIDs = append(childIDs, child.ID)
		}

		released = op.MarginAllocated
		if err := s.repo.DeleteCascade(txCtx, operationID); err != nil {
			return err
		}
		return s.publish(txCtx, domain.OperationDeletedEventType, op.ID, domain.OperationDeletedEvent{
			OperationID: op.ID,
			UserID:      op.UserID,
			ChildIDs:    childIDs,
			OccurredOn:  s.now(),
		})
	})
	if err != nil {
		return err
	}

	if released.IsPositive() {
		if relErr := s.ledger.Release(ctx, userID, released); relErr != nil {
			logger.Error(ctx, "failed to release margin after delete",
				"operation_id", operationID, "amount", released.String(), "error", relErr)
		}
	}
	s.cacheInvalidate(ctx, append(childIDs, operationID)...)
	return nil
}

func (s *LifecycleService) publish(ctx context.Context, eventType, key string, event any) error {
	if s.events == nil {
		return nil
	}
	return s.events.Publish(ctx, eventType, key, event)
}

func (s *LifecycleService) cacheSave(ctx context.Context, op *domain.Operation) {
	if s.readRepo == nil || op == nil {
		return
	}
	if err := s.readRepo.Save(ctx, op); err != nil {
		logger.Warn(ctx, "failed to update operation read cache", "operation_id", op.ID, "error", err)
	}
}

func (s *LifecycleService) cacheInvalidate(ctx context.Context, ids ...string) {
	if s.readRepo == nil {
		return
	}
	if err := s.readRepo.Invalidate(ctx, ids...); err != nil {
		logger.Warn(ctx, "failed to invalidate operation read cache", "error", err)
	}
}

func newOperationID() string {
	return fmt.Sprintf("OP-%d", idgen.GenID())
}
