package application

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/optionsledger/internal/margin/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// memRepo 内存仓储；conflicts 控制前 N 次 Save 返回版本冲突
type memRepo struct {
	accounts    map[string]*domain.MarginAccount
	adjustments []*domain.Adjustment
	conflicts   int
}

func newMemRepo() *memRepo {
	return &memRepo{accounts: make(map[string]*domain.MarginAccount)}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *memRepo) GetByUser(_ context.Context, userID string) (*domain.MarginAccount, error) {
	account, ok := r.accounts[userID]
	if !ok {
		return nil, nil
	}
	clone := *account
	return &clone, nil
}

func (r *memRepo) Save(_ context.Context, account *domain.MarginAccount) error {
	if r.conflicts > 0 {
		r.conflicts--
		return domain.ErrConcurrentModification
	}
	account.Version++
	clone := *account
	r.accounts[account.UserID] = &clone
	return nil
}

func (r *memRepo) AppendAdjustment(_ context.Context, adj *domain.Adjustment) error {
	r.adjustments = append(r.adjustments, adj)
	return nil
}

func (r *memRepo) ListAdjustments(_ context.Context, userID string, limit, offset int) ([]*domain.Adjustment, int64, error) {
	return r.adjustments, int64(len(r.adjustments)), nil
}

func TestGetReturnsZeroAccountWhenAbsent(t *testing.T) {
	svc := NewMarginService(newMemRepo())
	account, err := svc.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if account.UserID != "user-1" || !account.Total.IsZero() || !account.Allocated.IsZero() {
		t.Errorf("account = %+v, want zero account", account)
	}
}

func TestAllocateRequiresFunds(t *testing.T) {
	repo := newMemRepo()
	svc := NewMarginService(repo)

	if err := svc.Allocate(context.Background(), "user-1", dec("100")); !errors.Is(err, domain.ErrInsufficientMargin) {
		t.Errorf("err = %v, want ErrInsufficientMargin", err)
	}

	if _, err := svc.SetTotal(context.Background(), "user-1", dec("500")); err != nil {
		t.Fatalf("SetTotal: %v", err)
	}
	if err := svc.Allocate(context.Background(), "user-1", dec("100")); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	account, _ := svc.Get(context.Background(), "user-1")
	if !account.Allocated.Equal(dec("100")) {
		t.Errorf("allocated = %s, want 100", account.Allocated)
	}
}

func TestMutateRetriesOnConflict(t *testing.T) {
	repo := newMemRepo()
	repo.conflicts = 2
	svc := NewMarginService(repo)

	if _, err := svc.SetTotal(context.Background(), "user-1", dec("500")); err != nil {
		t.Fatalf("SetTotal should succeed after retries: %v", err)
	}

	repo.conflicts = maxRetries
	if err := svc.Allocate(context.Background(), "user-1", dec("1")); !errors.Is(err, domain.ErrConcurrentModification) {
		t.Errorf("err = %v, want ErrConcurrentModification after exhausted retries", err)
	}
}

func TestAdjustRecordsHistory(t *testing.T) {
	repo := newMemRepo()
	svc := NewMarginService(repo)

	if _, err := svc.Adjust(context.Background(), "user-1", dec("300"), "", "first deposit"); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if _, err := svc.Adjust(context.Background(), "user-1", dec("-100"), "", ""); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	if len(repo.adjustments) != 2 {
		t.Fatalf("adjustments = %d, want 2", len(repo.adjustments))
	}
	if repo.adjustments[0].Type != domain.AdjustmentDeposit {
		t.Errorf("first type = %s, want DEPOSIT", repo.adjustments[0].Type)
	}
	if repo.adjustments[1].Type != domain.AdjustmentWithdrawal {
		t.Errorf("second type = %s, want WITHDRAWAL", repo.adjustments[1].Type)
	}

	account, _ := svc.Get(context.Background(), "user-1")
	if !account.Total.Equal(dec("200")) {
		t.Errorf("total = %s, want 200", account.Total)
	}
}
