// Package domain 实现绩效报表的周期解析、聚合与排名，全部为内存中
// 扁平记录集上的纯函数。
package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidPeriod = errors.New("invalid report period")
	ErrInvalidMonth  = errors.New("invalid month name")
)

// PeriodType 报表周期类型
type PeriodType string

const (
	PeriodLastMonth     PeriodType = "lastMonth"
	PeriodLast3Months   PeriodType = "last3Months"
	PeriodLast6Months   PeriodType = "last6Months"
	PeriodSpecificMonth PeriodType = "specificMonth"
	PeriodAll           PeriodType = "all"
)

// Period 报表周期请求
type Period struct {
	Type  PeriodType
	Month time.Month // 仅 specificMonth
	Year  int        // 仅 specificMonth
}

// ResolvedPeriod 解析后的具体周期
//
// 滚动窗口以 [Start, End) 时间范围表达，nil 边界表示无界；
// specificMonth 是按归档参考月份/年份的分类过滤（Categorical 为 true），
// 与实际时间戳无关。不存在哨兵日期。
type ResolvedPeriod struct {
	Start       *time.Time
	End         *time.Time
	Categorical bool
	RefMonth    time.Month
	RefYear     int
}

// 葡语月份缩写，Jan..Dez，用于报表月份标签
var monthAbbr = [12]string{"Jan", "Fev", "Mar", "Abr", "Mai", "Jun", "Jul", "Ago", "Set", "Out", "Nov", "Dez"}

var monthNames = map[string]time.Month{
	"janeiro": time.January, "jan": time.January,
	"fevereiro": time.February, "fev": time.February,
	"março": time.March, "marco": time.March, "mar": time.March,
	"abril": time.April, "abr": time.April,
	"maio": time.May, "mai": time.May,
	"junho": time.June, "jun": time.June,
	"julho": time.July, "jul": time.July,
	"agosto": time.August, "ago": time.August,
	"setembro": time.September, "set": time.September,
	"outubro": time.October, "out": time.October,
	"novembro": time.November, "nov": time.November,
	"dezembro": time.December, "dez": time.December,
}

// ParseMonth 解析葡语月份名称（全称或缩写，大小写不敏感）
func ParseMonth(name string) (time.Month, error) {
	m, ok := monthNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, ErrInvalidMonth
	}
	return m, nil
}

// ParsePeriod 解析周期参数；specificMonth 需要合法的月份与年份
func ParsePeriod(periodType, monthName string, year int) (Period, error) {
	switch PeriodType(periodType) {
	case PeriodLastMonth, PeriodLast3Months, PeriodLast6Months, PeriodAll:
		return Period{Type: PeriodType(periodType)}, nil
	case PeriodSpecificMonth:
		month, err := ParseMonth(monthName)
		if err != nil {
			return Period{}, err
		}
		if year <= 0 {
			return Period{}, ErrInvalidPeriod
		}
		return Period{Type: PeriodSpecificMonth, Month: month, Year: year}, nil
	case "":
		// 缺省为全量
		return Period{Type: PeriodAll}, nil
	default:
		return Period{}, ErrInvalidPeriod
	}
}

// Resolve 将周期请求解析为具体的时间范围或分类过滤
func (p Period) Resolve(now time.Time) ResolvedPeriod {
	switch p.Type {
	case PeriodLastMonth:
		return rollingWindow(now, 1)
	case PeriodLast3Months:
		return rollingWindow(now, 3)
	case PeriodLast6Months:
		return rollingWindow(now, 6)
	case PeriodSpecificMonth:
		return ResolvedPeriod{Categorical: true, RefMonth: p.Month, RefYear: p.Year}
	default:
		return ResolvedPeriod{}
	}
}

// ResolvePrevious 解析等长的前一周期，用于环比趋势
//
// specificMonth 的前一周期是上一个日历月的参考对；滚动窗口是紧邻当前
// 窗口之前、时长相同的窗口；全量周期没有前一周期，返回 (zero, false)。
func (p Period) ResolvePrevious(now time.Time) (ResolvedPeriod, bool) {
	switch p.Type {
	case PeriodSpecificMonth:
		month, year := p.Month-1, p.Year
		if month < time.January {
			month = time.December
			year--
		}
		return ResolvedPeriod{Categorical: true, RefMonth: month, RefYear: year}, true
	case PeriodLastMonth, PeriodLast3Months, PeriodLast6Months:
		current := p.Resolve(now)
		duration := current.End.Sub(*current.Start)
		prevEnd := *current.Start
		prevStart := prevEnd.Add(-duration)
		return ResolvedPeriod{Start: &prevStart, End: &prevEnd}, true
	default:
		return ResolvedPeriod{}, false
	}
}

func rollingWindow(now time.Time, months int) ResolvedPeriod {
	start := now.AddDate(0, -months, 0)
	end := now
	return ResolvedPeriod{Start: &start, End: &end}
}

// contains 判断时间戳是否落在 [Start, End) 内；nil 边界视为无界
func (r ResolvedPeriod) contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && !t.Before(*r.End) {
		return false
	}
	return true
}
