package domain

import (
	"sort"

	opdomain "github.com/wyfcoding/optionsledger/internal/operation/domain"
)

// RankingSize 最佳/最差榜单长度
const RankingSize = 5

// Best 返回按已实现盈亏降序的前 n 条记录；并列时先平仓者在前
func Best(ops []*opdomain.Operation, n int) []*opdomain.Operation {
	return rank(ops, n, func(a, b *opdomain.Operation) bool {
		return a.Result.GreaterThan(*b.Result)
	})
}

// Worst 返回按已实现盈亏升序的前 n 条记录；并列时先平仓者在前
func Worst(ops []*opdomain.Operation, n int) []*opdomain.Operation {
	return rank(ops, n, func(a, b *opdomain.Operation) bool {
		return a.Result.LessThan(*b.Result)
	})
}

func rank(ops []*opdomain.Operation, n int, less func(a, b *opdomain.Operation) bool) []*opdomain.Operation {
	ranked := make([]*opdomain.Operation, 0, len(ops))
	for _, op := range ops {
		if op.Result != nil {
			ranked = append(ranked, op)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if !ranked[i].Result.Equal(*ranked[j].Result) {
			return less(ranked[i], ranked[j])
		}
		return ranked[i].ClosedAt.Before(*ranked[j].ClosedAt)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
