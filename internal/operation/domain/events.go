package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// 生命周期事件类型
const (
	OperationOpenedEventType          = "OperationOpenedEvent"
	OperationPartiallyClosedEventType = "OperationPartiallyClosedEvent"
	OperationClosedEventType          = "OperationClosedEvent"
	OperationDeletedEventType         = "OperationDeletedEvent"
)

// OperationOpenedEvent 开仓事件
type OperationOpenedEvent struct {
	OperationID string          `json:"operation_id"`
	UserID      string          `json:"user_id"`
	Ticker      string          `json:"ticker"`
	Type        InstrumentType  `json:"type"`
	Direction   Direction       `json:"direction"`
	Quantity    int64           `json:"quantity"`
	OpenPrice   decimal.Decimal `json:"open_price"`
	Margin      decimal.Decimal `json:"margin"`
	OccurredOn  time.Time       `json:"occurred_on"`
}

// OperationPartiallyClosedEvent 部分平仓事件，携带派生切片信息
type OperationPartiallyClosedEvent struct {
	OperationID    string          `json:"operation_id"`
	ChildID        string          `json:"child_id"`
	UserID         string          `json:"user_id"`
	ClosedQuantity int64           `json:"closed_quantity"`
	Remaining      int64           `json:"remaining"`
	ClosePrice     decimal.Decimal `json:"close_price"`
	Result         decimal.Decimal `json:"result"`
	MarginReleased decimal.Decimal `json:"margin_released"`
	OccurredOn     time.Time       `json:"occurred_on"`
}

// OperationClosedEvent 全部平仓事件
type OperationClosedEvent struct {
	OperationID    string          `json:"operation_id"`
	UserID         string          `json:"user_id"`
	ClosePrice     decimal.Decimal `json:"close_price"`
	Result         decimal.Decimal `json:"result"`
	MarginReleased decimal.Decimal `json:"margin_released"`
	OccurredOn     time.Time       `json:"occurred_on"`
}

// OperationDeletedEvent 管理性删除事件（级联删除派生记录）
type OperationDeletedEvent struct {
	OperationID string    `json:"operation_id"`
	UserID      string    `json:"user_id"`
	ChildIDs    []string  `json:"child_ids,omitempty"`
	OccurredOn  time.Time `json:"occurred_on"`
}
