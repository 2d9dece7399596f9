package application

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/optionsledger/internal/operation/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// memRepo 内存仓储，带与 MySQL 实现相同的版本号条件更新语义
type memRepo struct {
	ops     map[string]*domain.Operation
	saveErr error
}

func newMemRepo() *memRepo {
	return &memRepo{ops: make(map[string]*domain.Operation)}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *memRepo) Save(_ context.Context, op *domain.Operation) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	existing, ok := r.ops[op.ID]
	if !ok {
		op.Version = 1
		clone := *op
		r.ops[op.ID] = &clone
		return nil
	}
	if existing.Version != op.Version {
		return domain.ErrConcurrentModification
	}
	op.Version++
	clone := *op
	r.ops[op.ID] = &clone
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*domain.Operation, error) {
	op, ok := r.ops[id]
	if !ok {
		return nil, nil
	}
	clone := *op
	return &clone, nil
}

func (r *memRepo) List(_ context.Context, userID string, _ domain.ListFilter) ([]*domain.Operation, int64, error) {
	ops, _ := r.ListAllByUser(context.Background(), userID)
	return ops, int64(len(ops)), nil
}

func (r *memRepo) ListAllByUser(_ context.Context, userID string) ([]*domain.Operation, error) {
	var ops []*domain.Operation
	for _, op := range r.ops {
		if op.UserID == userID {
			clone := *op
			ops = append(ops, &clone)
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID < ops[j].ID })
	return ops, nil
}

func (r *memRepo) ListChildren(_ context.Context, parentID string) ([]*domain.Operation, error) {
	var children []*domain.Operation
	for _, op := range r.ops {
		if op.OriginalOperationID != nil && *op.OriginalOperationID == parentID {
			clone := *op
			children = append(children, &clone)
		}
	}
	return children, nil
}

func (r *memRepo) DeleteCascade(_ context.Context, id string) error {
	delete(r.ops, id)
	for childID, op := range r.ops {
		if op.OriginalOperationID != nil && *op.OriginalOperationID == id {
			delete(r.ops, childID)
		}
	}
	return nil
}

// memLedger 记录保证金占用与释放的假台账
type memLedger struct {
	allocated   decimal.Decimal
	released    decimal.Decimal
	allocateErr error
}

func (l *memLedger) Allocate(_ context.Context, _ string, amount decimal.Decimal) error {
	if l.allocateErr != nil {
		return l.allocateErr
	}
	l.allocated = l.allocated.Add(amount)
	return nil
}

func (l *memLedger) Release(_ context.Context, _ string, amount decimal.Decimal) error {
	l.released = l.released.Add(amount)
	return nil
}

type capturedEvent struct {
	eventType string
	key       string
}

type memPublisher struct {
	events []capturedEvent
}

func (p *memPublisher) Publish(_ context.Context, eventType, key string, _ any) error {
	p.events = append(p.events, capturedEvent{eventType: eventType, key: key})
	return nil
}

func newTestService() (*LifecycleService, *memRepo, *memLedger, *memPublisher) {
	repo := newMemRepo()
	ledger := &memLedger{}
	publisher := &memPublisher{}
	return NewLifecycleService(repo, nil, ledger, publisher), repo, ledger, publisher
}

func openCmd() OpenPositionCommand {
	return OpenPositionCommand{
		Ticker:    "PETR4",
		Type:      domain.InstrumentCall,
		Direction: domain.DirectionBuy,
		Strike:    dec("38"),
		Price:     dec("2.00"),
		Quantity:  100,
		Margin:    dec("1000"),
	}
}

func TestOpenPositionAllocatesMargin(t *testing.T) {
	svc, repo, ledger, publisher := newTestService()

	op, err := svc.OpenPosition(context.Background(), "user-1", openCmd())
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	if !ledger.allocated.Equal(dec("1000")) {
		t.Errorf("allocated = %s, want 1000", ledger.allocated)
	}
	stored, _ := repo.Get(context.Background(), op.ID)
	if stored == nil || stored.Status != domain.StatusOpen {
		t.Fatalf("stored = %+v, want OPEN position", stored)
	}
	if len(publisher.events) != 1 || publisher.events[0].eventType != domain.OperationOpenedEventType {
		t.Errorf("events = %v, want one opened event", publisher.events)
	}
}

func TestOpenPositionCompensatesMarginOnSaveFailure(t *testing.T) {
	svc, repo, ledger, _ := newTestService()
	repo.saveErr = errors.New("db down")

	if _, err := svc.OpenPosition(context.Background(), "user-1", openCmd()); err == nil {
		t.Fatal("expected save error")
	}
	if !ledger.released.Equal(dec("1000")) {
		t.Errorf("released = %s, want compensating release of 1000", ledger.released)
	}
}

func TestOpenPositionRejectsInvalidInput(t *testing.T) {
	svc, _, ledger, _ := newTestService()
	cmd := openCmd()
	cmd.Quantity = 0

	if _, err := svc.OpenPosition(context.Background(), "user-1", cmd); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("err = %v, want ErrInvalidQuantity", err)
	}
	if !ledger.allocated.IsZero() {
		t.Error("margin must not be touched for rejected opens")
	}
}

func TestClosePositionFull(t *testing.T) {
	svc, repo, ledger, publisher := newTestService()
	op, _ := svc.OpenPosition(context.Background(), "user-1", openCmd())

	result, err := svc.ClosePosition(context.Background(), "user-1", ClosePositionCommand{
		OperationID: op.ID,
		ClosePrice:  dec("2.50"),
	})
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if result.Child != nil {
		t.Error("full close of never-split position must not create a child")
	}
	if result.Parent.Status != domain.StatusClosed {
		t.Errorf("status = %s, want CLOSED", result.Parent.Status)
	}
	if result.Parent.Result == nil || !result.Parent.Result.Equal(dec("50")) {
		t.Errorf("result = %v, want 50", result.Parent.Result)
	}
	if !ledger.released.Equal(dec("1000")) {
		t.Errorf("released = %s, want 1000", ledger.released)
	}

	stored, _ := repo.Get(context.Background(), op.ID)
	if stored.Status != domain.StatusClosed {
		t.Errorf("stored status = %s, want CLOSED", stored.Status)
	}
	last := publisher.events[len(publisher.events)-1]
	if last.eventType != domain.OperationClosedEventType {
		t.Errorf("last event = %s, want closed", last.eventType)
	}
}

func TestClosePositionPartialThenRemainder(t *testing.T) {
	svc, repo, ledger, _ := newTestService()
	op, _ := svc.OpenPosition(context.Background(), "user-1", openCmd())

	qty := int64(40)
	first, err := svc.ClosePosition(context.Background(), "user-1", ClosePositionCommand{
		OperationID:     op.ID,
		ClosePrice:      dec("3.00"),
		QuantityToClose: &qty,
	})
	if err != nil {
		t.Fatalf("partial close: %v", err)
	}
	if first.Child == nil || !first.Child.IsDerived() {
		t.Fatal("partial close must produce a derived child")
	}
	if first.Parent.Status != domain.StatusPartiallyClosed || first.Parent.RemainingQuantity != 60 {
		t.Errorf("parent = %s/%d, want PARTIALLY_CLOSED/60", first.Parent.Status, first.Parent.RemainingQuantity)
	}
	if !ledger.released.Equal(dec("400")) {
		t.Errorf("released = %s, want 400", ledger.released)
	}

	// 拆分过的父记录，收尾也要生成派生切片
	second, err := svc.ClosePosition(context.Background(), "user-1", ClosePositionCommand{
		OperationID: op.ID,
		ClosePrice:  dec("2.50"),
	})
	if err != nil {
		t.Fatalf("final close: %v", err)
	}
	if second.Child == nil {
		t.Fatal("final close of split parent must also produce a derived child")
	}
	if second.Parent.Status != domain.StatusClosed || second.Parent.RemainingQuantity != 0 {
		t.Errorf("parent = %s/%d, want CLOSED/0", second.Parent.Status, second.Parent.RemainingQuantity)
	}
	if !ledger.released.Equal(dec("1000")) {
		t.Errorf("total released = %s, want 1000", ledger.released)
	}

	children, _ := repo.ListChildren(context.Background(), op.ID)
	if len(children) != 2 {
		t.Fatalf("children = %d, want 2", len(children))
	}
	total := decimal.Zero
	for _, child := range children {
		total = total.Add(*child.Result)
	}
	if !total.Equal(dec("70")) {
		t.Errorf("children results sum = %s, want 70 (40 + 30)", total)
	}
}

func TestClosePositionValidation(t *testing.T) {
	svc, repo, ledger, _ := newTestService()
	op, _ := svc.OpenPosition(context.Background(), "user-1", openCmd())

	if _, err := svc.ClosePosition(context.Background(), "user-1", ClosePositionCommand{
		OperationID: op.ID,
		ClosePrice:  decimal.Zero,
	}); !errors.Is(err, domain.ErrInvalidPrice) {
		t.Errorf("zero price: err = %v, want ErrInvalidPrice", err)
	}

	tooMany := int64(101)
	if _, err := svc.ClosePosition(context.Background(), "user-1", ClosePositionCommand{
		OperationID:     op.ID,
		ClosePrice:      dec("2.50"),
		QuantityToClose: &tooMany,
	}); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("over quantity: err = %v, want ErrInvalidQuantity", err)
	}

	// 被拒绝的平仓不得留下任何痕迹
	stored, _ := repo.Get(context.Background(), op.ID)
	if stored.Status != domain.StatusOpen || stored.RemainingQuantity != 100 {
		t.Errorf("stored = %s/%d, want untouched OPEN/100", stored.Status, stored.RemainingQuantity)
	}
	if stored.HasChildren() {
		t.Errorf("rejected close must not create children: %v", stored.RelatedOperationIDs)
	}
	if !stored.MarginAllocated.Equal(dec("1000")) || !ledger.released.IsZero() {
		t.Errorf("margin touched by rejected close: allocated %s, released %s", stored.MarginAllocated, ledger.released)
	}

	if _, err := svc.ClosePosition(context.Background(), "user-2", ClosePositionCommand{
		OperationID: op.ID,
		ClosePrice:  dec("2.50"),
	}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("other user: err = %v, want ErrForbidden", err)
	}

	if _, err := svc.ClosePosition(context.Background(), "user-1", ClosePositionCommand{
		OperationID: "OP-MISSING",
		ClosePrice:  dec("2.50"),
	}); !errors.Is(err, domain.ErrOperationNotFound) {
		t.Errorf("missing: err = %v, want ErrOperationNotFound", err)
	}
}

func TestClosePositionRejectsClosed(t *testing.T) {
	svc, _, _, _ := newTestService()
	op, _ := svc.OpenPosition(context.Background(), "user-1", openCmd())
	if _, err := svc.ClosePosition(context.Background(), "user-1", ClosePositionCommand{
		OperationID: op.ID,
		ClosePrice:  dec("2.50"),
	}); err != nil {
		t.Fatalf("close: %v", err)
	}

	// 终态记录剩余数量为零，任何再平仓数量都不合法
	if _, err := svc.ClosePosition(context.Background(), "user-1", ClosePositionCommand{
		OperationID: op.ID,
		ClosePrice:  dec("2.60"),
	}); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("err = %v, want ErrInvalidQuantity", err)
	}
}

func TestDeleteOperationCascades(t *testing.T) {
	svc, repo, ledger, _ := newTestService()
	op, _ := svc.OpenPosition(context.Background(), "user-1", openCmd())

	qty := int64(40)
	if _, err := svc.ClosePosition(context.Background(), "user-1", ClosePositionCommand{
		OperationID:     op.ID,
		ClosePrice:      dec("3.00"),
		QuantityToClose: &qty,
	}); err != nil {
		t.Fatalf("partial close: %v", err)
	}
	releasedBefore := ledger.released

	if err := svc.DeleteOperation(context.Background(), "user-1", op.ID); err != nil {
		t.Fatalf("DeleteOperation: %v", err)
	}

	if stored, _ := repo.Get(context.Background(), op.ID); stored != nil {
		t.Error("parent should be deleted")
	}
	if children, _ := repo.ListChildren(context.Background(), op.ID); len(children) != 0 {
		t.Error("children should be deleted with the parent")
	}
	// 删除释放父记录仍占用的 600
	if !ledger.released.Sub(releasedBefore).Equal(dec("600")) {
		t.Errorf("released on delete = %s, want 600", ledger.released.Sub(releasedBefore))
	}
}

func TestDeleteOperationChecksOwnership(t *testing.T) {
	svc, _, _, _ := newTestService()
	op, _ := svc.OpenPosition(context.Background(), "user-1", openCmd())

	if err := svc.DeleteOperation(context.Background(), "user-2", op.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}
