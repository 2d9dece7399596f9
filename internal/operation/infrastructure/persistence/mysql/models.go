package mysql

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/optionsledger/internal/operation/domain"
)

// OperationModel 头寸数据库模型
type OperationModel struct {
	ID                  uint       `gorm:"primaryKey"`
	OperationID         string     `gorm:"column:operation_id;type:varchar(32);uniqueIndex;not null"`
	UserID              string     `gorm:"column:user_id;type:varchar(32);index;not null"`
	Ticker              string     `gorm:"column:ticker;type:varchar(20);index;not null"`
	VisualID            string     `gorm:"column:visual_id;type:varchar(64);not null"`
	Type                string     `gorm:"column:type;type:varchar(10);not null"`
	Direction           string     `gorm:"column:direction;type:varchar(10);not null"`
	Strike              string     `gorm:"column:strike;type:decimal(32,18);not null"`
	OpenPrice           string     `gorm:"column:open_price;type:decimal(32,18);not null"`
	Quantity            int64      `gorm:"column:quantity;not null"`
	RemainingQuantity   int64      `gorm:"column:remaining_quantity;not null"`
	OpenNotional        string     `gorm:"column:open_notional;type:decimal(32,18);not null"`
	ClosePrice          *string    `gorm:"column:close_price;type:decimal(32,18)"`
	CloseNotional       *string    `gorm:"column:close_notional;type:decimal(32,18)"`
	Result              *string    `gorm:"column:result;type:decimal(32,18)"`
	MarginAllocated     string     `gorm:"column:margin_allocated;type:decimal(32,18);not null"`
	Status              string     `gorm:"column:status;type:varchar(20);index;not null"`
	OpenedAt            time.Time  `gorm:"column:opened_at;type:datetime;not null;index"`
	ClosedAt            *time.Time `gorm:"column:closed_at;type:datetime;index"`
	RefMonth            int        `gorm:"column:ref_month;not null;index:idx_ref_pair"`
	RefYear             int        `gorm:"column:ref_year;not null;index:idx_ref_pair"`
	Notes               string     `gorm:"column:notes;type:text"`
	GroupLabel          string     `gorm:"column:group_label;type:varchar(32)"`
	OriginalOperationID *string    `gorm:"column:original_operation_id;type:varchar(32);index"`
	RelatedOperationIDs string     `gorm:"column:related_operation_ids;type:text"`
	Version             int64      `gorm:"column:version;not null;default:0"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

// TableName 指定表名
func (OperationModel) TableName() string {
	return "operations"
}

func fromDomain(op *domain.Operation) *OperationModel {
	related := ""
	if len(op.RelatedOperationIDs) > 0 {
		if data, err := json.Marshal(op.RelatedOperationIDs); err == nil {
			related = string(data)
		}
	}
	return &OperationModel{
		OperationID:         op.ID,
		UserID:              op.UserID,
		Ticker:              op.Ticker,
		VisualID:            op.VisualID,
		Type:                string(op.Type),
		Direction:           string(op.Direction),
		Strike:              op.Strike.String(),
		OpenPrice:           op.OpenPrice.String(),
		Quantity:            op.Quantity,
		RemainingQuantity:   op.RemainingQuantity,
		OpenNotional:        op.OpenNotional.String(),
		ClosePrice:          decimalPtrToString(op.ClosePrice),
		CloseNotional:       decimalPtrToString(op.CloseNotional),
		Result:              decimalPtrToString(op.Result),
		MarginAllocated:     op.MarginAllocated.String(),
		Status:              string(op.Status),
		OpenedAt:            op.OpenedAt,
		ClosedAt:            op.ClosedAt,
		RefMonth:            int(op.RefMonth),
		RefYear:             op.RefYear,
		Notes:               op.Notes,
		GroupLabel:          op.GroupLabel,
		OriginalOperationID: op.OriginalOperationID,
		RelatedOperationIDs: related,
		Version:             op.Version,
		CreatedAt:           op.CreatedAt,
		UpdatedAt:           op.UpdatedAt,
	}
}

func toDomain(m *OperationModel) *domain.Operation {
	var related []string
	if m.RelatedOperationIDs != "" {
		_ = json.Unmarshal([]byte(m.RelatedOperationIDs), &related)
	}
	strike, _ := decimal.NewFromString(m.Strike)
	openPrice, _ := decimal.NewFromString(m.OpenPrice)
	openNotional, _ := decimal.NewFromString(m.OpenNotional)
	margin, _ := decimal.NewFromString(m.MarginAllocated)

	return &domain.Operation{
		ID:                  m.OperationID,
		UserID:              m.UserID,
		Ticker:              m.Ticker,
		VisualID:            m.VisualID,
		Type:                domain.InstrumentType(m.Type),
		Direction:           domain.Direction(m.Direction),
		Strike:              strike,
		OpenPrice:           openPrice,
		Quantity:            m.Quantity,
		RemainingQuantity:   m.RemainingQuantity,
		OpenNotional:        openNotional,
		ClosePrice:          stringPtrToDecimal(m.ClosePrice),
		CloseNotional:       stringPtrToDecimal(m.CloseNotional),
		Result:              stringPtrToDecimal(m.Result),
		MarginAllocated:     margin,
		Status:              domain.OperationStatus(m.Status),
		OpenedAt:            m.OpenedAt,
		ClosedAt:            m.ClosedAt,
		RefMonth:            time.Month(m.RefMonth),
		RefYear:             m.RefYear,
		Notes:               m.Notes,
		GroupLabel:          m.GroupLabel,
		OriginalOperationID: m.OriginalOperationID,
		RelatedOperationIDs: related,
		Version:             m.Version,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func decimalPtrToString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func stringPtrToDecimal(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &d
}
