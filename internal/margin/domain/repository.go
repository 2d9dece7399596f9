package domain

import "context"

// MarginRepository 保证金台账仓储接口
//
// Save 对已存在的账户执行带版本号的条件更新；版本不匹配时返回
// ErrConcurrentModification。
type MarginRepository interface {
	// WithTx 在单个数据库事务中执行 fn
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// GetByUser 获取用户账户；不存在时返回 (nil, nil)
	GetByUser(ctx context.Context, userID string) (*MarginAccount, error)
	// Save 新建或按乐观锁更新账户
	Save(ctx context.Context, account *MarginAccount) error
	// AppendAdjustment 追加一条手工调整记录
	AppendAdjustment(ctx context.Context, adj *Adjustment) error
	// ListAdjustments 按时间倒序获取调整历史
	ListAdjustments(ctx context.Context, userID string, limit, offset int) ([]*Adjustment, int64, error)
}
