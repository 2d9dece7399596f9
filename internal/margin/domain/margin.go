// Package domain 定义每用户的保证金台账（MarginAccount）。
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound        = errors.New("margin account not found")
	ErrInsufficientMargin     = errors.New("insufficient margin")
	ErrMarginBelowAllocated   = errors.New("total margin below allocated amount")
	ErrInvalidAmount          = errors.New("invalid margin amount")
	ErrConcurrentModification = errors.New("margin account modified by another transaction")
)

// AdjustmentType 手工调整类型
type AdjustmentType string

const (
	AdjustmentDeposit    AdjustmentType = "DEPOSIT"
	AdjustmentWithdrawal AdjustmentType = "WITHDRAWAL"
	AdjustmentCorrection AdjustmentType = "CORRECTION"
)

// Adjustment 保证金手工调整记录
type Adjustment struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Delta     decimal.Decimal `json:"delta"`
	Type      AdjustmentType  `json:"type"`
	Note      string          `json:"note"`
	CreatedAt time.Time       `json:"created_at"`
}

// MarginAccount 用户保证金账户
// 不变式：Available() = Total − Allocated，且 Total 不可低于 Allocated
type MarginAccount struct {
	UserID    string          `json:"user_id"`
	Total     decimal.Decimal `json:"total"`
	Allocated decimal.Decimal `json:"allocated"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewMarginAccount 创建空的保证金账户
func NewMarginAccount(userID string, now time.Time) *MarginAccount {
	return &MarginAccount{
		UserID:    userID,
		Total:     decimal.Zero,
		Allocated: decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Available 可用保证金（派生值）
func (a *MarginAccount) Available() decimal.Decimal {
	return a.Total.Sub(a.Allocated)
}

// Allocate 占用保证金；超过可用额度时失败
func (a *MarginAccount) Allocate(amount decimal.Decimal, now time.Time) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(a.Available()) {
		return ErrInsufficientMargin
	}
	a.Allocated = a.Allocated.Add(amount)
	a.UpdatedAt = now
	return nil
}

// Release 释放已占用的保证金；释放量超出占用量时收敛到零
func (a *MarginAccount) Release(amount decimal.Decimal, now time.Time) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	a.Allocated = a.Allocated.Sub(amount)
	if a.Allocated.IsNegative() {
		a.Allocated = decimal.Zero
	}
	a.UpdatedAt = now
	return nil
}

// SetTotal 管理性设置总保证金；低于当前占用量时失败
func (a *MarginAccount) SetTotal(newTotal decimal.Decimal, now time.Time) error {
	if newTotal.IsNegative() {
		return ErrInvalidAmount
	}
	if newTotal.LessThan(a.Allocated) {
		return ErrMarginBelowAllocated
	}
	a.Total = newTotal
	a.UpdatedAt = now
	return nil
}

// Adjust 按增量调整总保证金；结果不可低于当前占用量
func (a *MarginAccount) Adjust(delta decimal.Decimal, now time.Time) error {
	return a.SetTotal(a.Total.Add(delta), now)
}
