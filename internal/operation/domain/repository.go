package domain

import "context"

// ListFilter 分页查询过滤条件
type ListFilter struct {
	Status OperationStatus
	Limit  int
	Offset int
}

// OperationRepository 头寸仓储接口（写模型）
//
// Save 对已存在的记录执行带版本号的条件更新；版本不匹配时返回
// ErrConcurrentModification，由应用层在小的固定次数内重试。
type OperationRepository interface {
	// WithTx 在单个数据库事务中执行 fn
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Save 新建或按乐观锁更新一条记录
	Save(ctx context.Context, op *Operation) error
	// Get 根据 ID 获取记录
	Get(ctx context.Context, id string) (*Operation, error)
	// List 分页获取用户记录
	List(ctx context.Context, userID string, filter ListFilter) ([]*Operation, int64, error)
	// ListAllByUser 获取用户全部记录（报表用的扁平记录集）
	ListAllByUser(ctx context.Context, userID string) ([]*Operation, error)
	// ListChildren 获取某条记录拆分出的派生记录
	ListChildren(ctx context.Context, parentID string) ([]*Operation, error)
	// DeleteCascade 删除记录及其全部派生记录
	DeleteCascade(ctx context.Context, id string) error
}

// OperationReadRepository 按 ID 查询的读模型缓存
type OperationReadRepository interface {
	Save(ctx context.Context, op *Operation) error
	Get(ctx context.Context, id string) (*Operation, error)
	Invalidate(ctx context.Context, ids ...string) error
}
