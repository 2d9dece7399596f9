// Package domain 定义期权头寸（Operation）实体与其生命周期状态机。
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentType 期权类型
type InstrumentType string

const (
	InstrumentCall InstrumentType = "CALL"
	InstrumentPut  InstrumentType = "PUT"
)

// Direction 操作方向
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// OperationStatus 头寸生命周期状态
// 状态机：OPEN → PARTIALLY_CLOSED → CLOSED，或 OPEN → CLOSED；CLOSED 为终态
type OperationStatus string

const (
	StatusOpen            OperationStatus = "OPEN"
	StatusPartiallyClosed OperationStatus = "PARTIALLY_CLOSED"
	StatusClosed          OperationStatus = "CLOSED"
)

// Operation 一笔期权操作：完整头寸，或拆分出的已实现切片
//
// 拆分采用派生记录模型：部分平仓会生成一条新的 CLOSED 记录，
// 通过 OriginalOperationID 指回父记录；父记录通过 RelatedOperationIDs
// 维护子记录集合。带 OriginalOperationID 的记录永远是终态，不可再拆分。
type Operation struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Ticker   string `json:"ticker"`
	VisualID string `json:"visual_id"`

	Type      InstrumentType  `json:"type"`
	Direction Direction       `json:"direction"`
	Strike    decimal.Decimal `json:"strike"`

	OpenPrice         decimal.Decimal  `json:"open_price"`
	Quantity          int64            `json:"quantity"`
	RemainingQuantity int64            `json:"remaining_quantity"`
	OpenNotional      decimal.Decimal  `json:"open_notional"`
	ClosePrice        *decimal.Decimal `json:"close_price,omitempty"`
	CloseNotional     *decimal.Decimal `json:"close_notional,omitempty"`
	Result            *decimal.Decimal `json:"result,omitempty"`
	MarginAllocated   decimal.Decimal  `json:"margin_allocated"`

	Status   OperationStatus `json:"status"`
	OpenedAt time.Time       `json:"opened_at"`
	ClosedAt *time.Time      `json:"closed_at,omitempty"`

	// 独立于实际日期的归档参考月份（1-12）与年份
	RefMonth time.Month `json:"ref_month"`
	RefYear  int        `json:"ref_year"`

	Notes      string `json:"notes"`
	GroupLabel string `json:"group_label"`

	OriginalOperationID *string  `json:"original_operation_id,omitempty"`
	RelatedOperationIDs []string `json:"related_operation_ids,omitempty"`

	// 乐观锁版本号
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OpenSpec 开仓参数
type OpenSpec struct {
	Ticker     string
	Type       InstrumentType
	Direction  Direction
	Strike     decimal.Decimal
	Price      decimal.Decimal
	Quantity   int64
	Margin     decimal.Decimal
	RefMonth   time.Month
	RefYear    int
	Notes      string
	GroupLabel string
}

// NewOperation 创建一个 OPEN 状态的新头寸
func NewOperation(id, userID string, spec OpenSpec, now time.Time) (*Operation, error) {
	if spec.Price.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidPrice
	}
	if spec.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if spec.Strike.IsNegative() {
		return nil, ErrInvalidStrike
	}
	if spec.Type != InstrumentCall && spec.Type != InstrumentPut {
		return nil, ErrInvalidInstrument
	}
	if spec.Direction != DirectionBuy && spec.Direction != DirectionSell {
		return nil, ErrInvalidDirection
	}
	if spec.Margin.IsNegative() {
		return nil, ErrInvalidMargin
	}

	refMonth := spec.RefMonth
	refYear := spec.RefYear
	if refMonth < time.January || refMonth > time.December {
		refMonth = now.Month()
	}
	if refYear == 0 {
		refYear = now.Year()
	}

	qty := decimal.NewFromInt(spec.Quantity)
	return &Operation{
		ID:                id,
		UserID:            userID,
		Ticker:            spec.Ticker,
		VisualID:          visualID(spec),
		Type:              spec.Type,
		Direction:         spec.Direction,
		Strike:            spec.Strike,
		OpenPrice:         spec.Price,
		Quantity:          spec.Quantity,
		RemainingQuantity: spec.Quantity,
		OpenNotional:      spec.Price.Mul(qty),
		MarginAllocated:   spec.Margin,
		Status:            StatusOpen,
		OpenedAt:          now,
		RefMonth:          refMonth,
		RefYear:           refYear,
		Notes:             spec.Notes,
		GroupLabel:        spec.GroupLabel,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func visualID(spec OpenSpec) string {
	return spec.Ticker + " " + string(spec.Type) + " " + spec.Strike.StringFixed(2) + " " + string(spec.Direction)
}

// CanClose 头寸是否还可以被平仓
func (o *Operation) CanClose() bool {
	return o.Status == StatusOpen || o.Status == StatusPartiallyClosed
}

// HasChildren 是否已经拆分出派生记录
func (o *Operation) HasChildren() bool {
	return len(o.RelatedOperationIDs) > 0
}

// IsDerived 是否为派生的已实现切片
func (o *Operation) IsDerived() bool {
	return o.OriginalOperationID != nil
}

// SliceResult 计算以 closePrice 平掉 qty 数量的已实现盈亏
// BUY: (close − open) × qty；SELL: (open − close) × qty
func (o *Operation) SliceResult(closePrice decimal.Decimal, qty int64) decimal.Decimal {
	q := decimal.NewFromInt(qty)
	if o.Direction == DirectionSell {
		return o.OpenPrice.Sub(closePrice).Mul(q)
	}
	return closePrice.Sub(o.OpenPrice).Mul(q)
}

// CloseInPlace 将从未拆分过的头寸整体平仓，返回应释放的保证金
// 仅用于无子记录的整笔平仓；拆分过的头寸走 SplitSlice
func (o *Operation) CloseInPlace(closePrice decimal.Decimal, now time.Time) decimal.Decimal {
	qty := o.RemainingQuantity
	result := o.SliceResult(closePrice, qty)
	closeNotional := closePrice.Mul(decimal.NewFromInt(qty))

	released := o.MarginAllocated
	o.MarginAllocated = decimal.Zero
	o.RemainingQuantity = 0
	o.ClosePrice = &closePrice
	o.CloseNotional = &closeNotional
	o.Result = &result
	o.ClosedAt = &now
	o.Status = StatusClosed
	o.UpdatedAt = now
	return released
}

// SplitSlice 从头寸中拆出 qty 数量以 closePrice 实现，生成派生记录
//
// 父记录的剩余数量与保证金按比例递减；剩余数量归零时父记录转入 CLOSED
// 终态（平仓字段也被填充，但其已实现价值完全由子记录承载，汇总时父记录
// 被去重规则排除）。返回派生记录与应释放的保证金。
func (o *Operation) SplitSlice(childID string, closePrice decimal.Decimal, qty int64, now time.Time) (*Operation, decimal.Decimal) {
	remaining := o.RemainingQuantity
	result := o.SliceResult(closePrice, qty)
	q := decimal.NewFromInt(qty)
	closeNotional := closePrice.Mul(q)

	// 按 qty/remaining 比例分摊保证金；最后一笔拿走全部剩余，避免舍入残留
	var marginShare decimal.Decimal
	if qty == remaining {
		marginShare = o.MarginAllocated
	} else {
		marginShare = o.MarginAllocated.Mul(q).Div(decimal.NewFromInt(remaining))
	}

	parentID := o.ID
	child := &Operation{
		ID:                  childID,
		UserID:              o.UserID,
		Ticker:              o.Ticker,
		VisualID:            o.VisualID,
		Type:                o.Type,
		Direction:           o.Direction,
		Strike:              o.Strike,
		OpenPrice:           o.OpenPrice,
		Quantity:            qty,
		RemainingQuantity:   0,
		OpenNotional:        o.OpenPrice.Mul(q),
		ClosePrice:          &closePrice,
		CloseNotional:       &closeNotional,
		Result:              &result,
		MarginAllocated:     marginShare,
		Status:              StatusClosed,
		OpenedAt:            o.OpenedAt,
		ClosedAt:            &now,
		RefMonth:            o.RefMonth,
		RefYear:             o.RefYear,
		GroupLabel:          o.GroupLabel,
		OriginalOperationID: &parentID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	o.RemainingQuantity = remaining - qty
	o.MarginAllocated = o.MarginAllocated.Sub(marginShare)
	o.RelatedOperationIDs = append(o.RelatedOperationIDs, childID)
	o.UpdatedAt = now

	if o.RemainingQuantity == 0 {
		o.ClosePrice = &closePrice
		o.CloseNotional = &closeNotional
		o.Result = &result
		o.ClosedAt = &now
		o.Status = StatusClosed
	} else {
		o.Status = StatusPartiallyClosed
	}
	return child, marginShare
}
