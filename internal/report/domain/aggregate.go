package domain

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	opdomain "github.com/wyfcoding/optionsledger/internal/operation/domain"
)

// MonthLabel 生成葡语月份标签，如 "Abr/24"
func MonthLabel(year int, month time.Month) string {
	return fmt.Sprintf("%s/%02d", monthAbbr[month-1], year%100)
}

// QualifyingClosed 从扁平记录集中筛选参与盈亏汇总的已实现记录
//
// 去重规则：一条记录参与汇总，当且仅当它是派生切片，或者它是 CLOSED
// 且没有任何子记录。拆分过的父记录即使进入终态，其已实现价值也完全由
// 子切片承载，纳入父记录会造成重复计算。
func QualifyingClosed(ops []*opdomain.Operation, period ResolvedPeriod) []*opdomain.Operation {
	hasChildren := make(map[string]bool)
	for _, op := range ops {
		if op.OriginalOperationID != nil {
			hasChildren[*op.OriginalOperationID] = true
		}
	}

	var qualifying []*opdomain.Operation
	for _, op := range ops {
		if !op.IsDerived() && (op.Status != opdomain.StatusClosed || hasChildren[op.ID]) {
			continue
		}
		if !closedInPeriod(op, period) {
			continue
		}
		qualifying = append(qualifying, op)
	}
	return qualifying
}

// InPeriod 筛选与周期相关的全部记录（含未平仓），用于操作计数与分布
func InPeriod(ops []*opdomain.Operation, period ResolvedPeriod) []*opdomain.Operation {
	var matched []*opdomain.Operation
	for _, op := range ops {
		if inPeriod(op, period) {
			matched = append(matched, op)
		}
	}
	return matched
}

func closedInPeriod(op *opdomain.Operation, period ResolvedPeriod) bool {
	if op.ClosedAt == nil {
		return false
	}
	if period.Categorical {
		return op.RefMonth == period.RefMonth && op.RefYear == period.RefYear
	}
	return period.contains(*op.ClosedAt)
}

func inPeriod(op *opdomain.Operation, period ResolvedPeriod) bool {
	if period.Categorical {
		return op.RefMonth == period.RefMonth && op.RefYear == period.RefYear
	}
	if period.contains(op.OpenedAt) {
		return true
	}
	return op.ClosedAt != nil && period.contains(*op.ClosedAt)
}

// SumResults 累加已实现盈亏
func SumResults(ops []*opdomain.Operation) decimal.Decimal {
	total := decimal.Zero
	for _, op := range ops {
		if op.Result != nil {
			total = total.Add(*op.Result)
		}
	}
	return total
}

// HitRate 返回盈利笔数与命中率（四舍五入的百分比）；空集为 0
func HitRate(ops []*opdomain.Operation) (wins int, rate float64) {
	if len(ops) == 0 {
		return 0, 0
	}
	for _, op := range ops {
		if op.Result != nil && op.Result.IsPositive() {
			wins++
		}
	}
	return wins, math.Round(float64(wins) / float64(len(ops)) * 100)
}

// Trend 计算环比趋势百分比：(cur − prev) / |prev| × 100，四舍五入
// 前一周期为零时约定为 0，不产生无穷大
func Trend(current, previous decimal.Decimal) float64 {
	if previous.IsZero() {
		return 0
	}
	pct, _ := current.Sub(previous).Div(previous.Abs()).Mul(decimal.NewFromInt(100)).Float64()
	return math.Round(pct)
}

// ROI 计算收益率百分比：round(result / openNotional × 100)
// 名义本金为零或结果缺失时返回 nil 而非除零
func ROI(op *opdomain.Operation) *float64 {
	if op.Result == nil {
		return nil
	}
	notional := op.OpenNotional
	if notional.IsZero() {
		notional = op.OpenPrice.Mul(decimal.NewFromInt(op.Quantity))
	}
	if notional.IsZero() {
		return nil
	}
	pct, _ := op.Result.Div(notional).Mul(decimal.NewFromInt(100)).Float64()
	rounded := math.Round(pct)
	return &rounded
}

// DistributionItem 分布图数据点
type DistributionItem struct {
	Nome  string `json:"nome"`
	Valor int    `json:"valor"`
}

// DistributionByType 按期权类型统计操作数量，固定 CALL、PUT 顺序
func DistributionByType(ops []*opdomain.Operation) []DistributionItem {
	counts := map[opdomain.InstrumentType]int{}
	for _, op := range ops {
		counts[op.Type]++
	}
	return []DistributionItem{
		{Nome: string(opdomain.InstrumentCall), Valor: counts[opdomain.InstrumentCall]},
		{Nome: string(opdomain.InstrumentPut), Valor: counts[opdomain.InstrumentPut]},
	}
}

// DistributionByDirection 按方向统计操作数量，固定 BUY、SELL 顺序
func DistributionByDirection(ops []*opdomain.Operation) []DistributionItem {
	counts := map[opdomain.Direction]int{}
	for _, op := range ops {
		counts[op.Direction]++
	}
	return []DistributionItem{
		{Nome: string(opdomain.DirectionBuy), Valor: counts[opdomain.DirectionBuy]},
		{Nome: string(opdomain.DirectionSell), Valor: counts[opdomain.DirectionSell]},
	}
}

// MonthBucket 单个月份的汇总桶
type MonthBucket struct {
	Year       int
	Month      time.Month
	Label      string
	Result     decimal.Decimal
	Count      int
	Operations []*opdomain.Operation
}

// BucketByMonth 将已实现记录按平仓时间的月份分桶，按 (年, 月) 升序排列
// 缺失平仓时间的记录跳过而非报错，报表对历史脏数据必须能渲染
func BucketByMonth(ops []*opdomain.Operation) []MonthBucket {
	type key struct {
		year  int
		month time.Month
	}
	buckets := make(map[key]*MonthBucket)
	for _, op := range ops {
		if op.ClosedAt == nil {
			continue
		}
		k := key{year: op.ClosedAt.Year(), month: op.ClosedAt.Month()}
		b, ok := buckets[k]
		if !ok {
			b = &MonthBucket{
				Year:   k.year,
				Month:  k.month,
				Label:  MonthLabel(k.year, k.month),
				Result: decimal.Zero,
			}
			buckets[k] = b
		}
		if op.Result != nil {
			b.Result = b.Result.Add(*op.Result)
		}
		b.Count++
		b.Operations = append(b.Operations, op)
	}

	ordered := make([]MonthBucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, *b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Year != ordered[j].Year {
			return ordered[i].Year < ordered[j].Year
		}
		return ordered[i].Month < ordered[j].Month
	})
	return ordered
}
