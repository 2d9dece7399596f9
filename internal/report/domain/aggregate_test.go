package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	opdomain "github.com/wyfcoding/optionsledger/internal/operation/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var allPeriod = ResolvedPeriod{}

func openPosition(t *testing.T, id string, direction opdomain.Direction, price string, qty int64, openedAt time.Time) *opdomain.Operation {
	t.Helper()
	op, err := opdomain.NewOperation(id, "user-1", opdomain.OpenSpec{
		Ticker:    "VALE3",
		Type:      opdomain.InstrumentCall,
		Direction: direction,
		Strike:    dec("60"),
		Price:     dec(price),
		Quantity:  qty,
	}, openedAt)
	if err != nil {
		t.Fatalf("NewOperation(%s): %v", id, err)
	}
	return op
}

func closedPosition(t *testing.T, id, price, closePrice string, qty int64, closedAt time.Time) *opdomain.Operation {
	t.Helper()
	op := openPosition(t, id, opdomain.DirectionBuy, price, qty, closedAt.AddDate(0, 0, -5))
	op.CloseInPlace(dec(closePrice), closedAt)
	return op
}

func TestQualifyingClosedNoDoubleCount(t *testing.T) {
	closedAt := time.Date(2024, 4, 20, 12, 0, 0, 0, time.UTC)

	// 100 手分两次拆完：40 手赚 40，60 手赚 30；父记录进入终态但不参与汇总
	parent := openPosition(t, "OP-1", opdomain.DirectionBuy, "2.00", 100, closedAt.AddDate(0, 0, -10))
	child1, _ := parent.SplitSlice("OP-2", dec("3.00"), 40, closedAt)
	child2, _ := parent.SplitSlice("OP-3", dec("2.50"), 60, closedAt)

	stillOpen := openPosition(t, "OP-4", opdomain.DirectionBuy, "1.00", 10, closedAt)
	plain := closedPosition(t, "OP-5", "1.00", "1.50", 10, closedAt)

	ops := []*opdomain.Operation{parent, child1, child2, stillOpen, plain}
	qualifying := QualifyingClosed(ops, allPeriod)

	if len(qualifying) != 3 {
		t.Fatalf("qualifying = %d records, want 3", len(qualifying))
	}
	for _, op := range qualifying {
		if op.ID == "OP-1" {
			t.Error("split parent must be excluded from summation")
		}
		if op.ID == "OP-4" {
			t.Error("open position must be excluded from summation")
		}
	}
	if total := SumResults(qualifying); !total.Equal(dec("75")) {
		t.Errorf("total = %s, want 75 (40 + 30 + 5)", total)
	}
}

func TestQualifyingClosedRangedPeriod(t *testing.T) {
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	period := ResolvedPeriod{Start: &start, End: &end}

	inside := closedPosition(t, "OP-1", "1.00", "2.00", 10, start.AddDate(0, 0, 15))
	before := closedPosition(t, "OP-2", "1.00", "2.00", 10, start.AddDate(0, 0, -1))
	atEnd := closedPosition(t, "OP-3", "1.00", "2.00", 10, end)

	qualifying := QualifyingClosed([]*opdomain.Operation{inside, before, atEnd}, period)
	if len(qualifying) != 1 || qualifying[0].ID != "OP-1" {
		t.Errorf("qualifying = %v, want only OP-1", qualifying)
	}
}

func TestQualifyingClosedCategoricalPeriod(t *testing.T) {
	closedAt := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	period := ResolvedPeriod{Categorical: true, RefMonth: time.May, RefYear: 2024}

	// 平仓发生在六月，但用户把它归档到五月
	archived := closedPosition(t, "OP-1", "1.00", "2.00", 10, closedAt)
	archived.RefMonth = time.May
	archived.RefYear = 2024

	june := closedPosition(t, "OP-2", "1.00", "2.00", 10, closedAt)
	june.RefMonth = time.June
	june.RefYear = 2024

	qualifying := QualifyingClosed([]*opdomain.Operation{archived, june}, period)
	if len(qualifying) != 1 || qualifying[0].ID != "OP-1" {
		t.Errorf("qualifying = %d records, want only the archived one", len(qualifying))
	}
}

func TestInPeriodIncludesOpenPositions(t *testing.T) {
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	period := ResolvedPeriod{Start: &start, End: &end}

	openedInside := openPosition(t, "OP-1", opdomain.DirectionBuy, "1.00", 10, start.AddDate(0, 0, 3))
	openedBeforeClosedInside := closedPosition(t, "OP-2", "1.00", "2.00", 10, start.AddDate(0, 0, 10))
	openedBeforeClosedInside.OpenedAt = start.AddDate(0, -2, 0)
	outside := openPosition(t, "OP-3", opdomain.DirectionBuy, "1.00", 10, start.AddDate(0, -1, 0))

	matched := InPeriod([]*opdomain.Operation{openedInside, openedBeforeClosedInside, outside}, period)
	if len(matched) != 2 {
		t.Fatalf("matched = %d records, want 2", len(matched))
	}
}

func TestHitRate(t *testing.T) {
	closedAt := time.Now()
	ops := []*opdomain.Operation{
		closedPosition(t, "OP-1", "1.00", "2.00", 10, closedAt),
		closedPosition(t, "OP-2", "2.00", "1.00", 10, closedAt),
		closedPosition(t, "OP-3", "1.00", "3.00", 10, closedAt),
	}
	wins, rate := HitRate(ops)
	if wins != 2 {
		t.Errorf("wins = %d, want 2", wins)
	}
	if rate != 67 {
		t.Errorf("rate = %v, want 67", rate)
	}

	if wins, rate := HitRate(nil); wins != 0 || rate != 0 {
		t.Errorf("empty set = %d, %v; want 0, 0", wins, rate)
	}
}

func TestTrend(t *testing.T) {
	if got := Trend(dec("150"), dec("100")); got != 50 {
		t.Errorf("trend = %v, want 50", got)
	}
	if got := Trend(dec("50"), dec("100")); got != -50 {
		t.Errorf("trend = %v, want -50", got)
	}
	// 前期为负时以绝对值为基准
	if got := Trend(dec("50"), dec("-100")); got != 150 {
		t.Errorf("trend over negative base = %v, want 150", got)
	}
	if got := Trend(dec("123"), decimal.Zero); got != 0 {
		t.Errorf("trend with zero base = %v, want 0", got)
	}
}

func TestROI(t *testing.T) {
	closedAt := time.Now()
	op := closedPosition(t, "OP-1", "2.00", "2.50", 100, closedAt)
	roi := ROI(op)
	if roi == nil || *roi != 25 {
		t.Errorf("roi = %v, want 25", roi)
	}

	noResult := openPosition(t, "OP-2", opdomain.DirectionBuy, "1.00", 10, closedAt)
	if ROI(noResult) != nil {
		t.Error("roi of open position should be nil")
	}

	zeroNotional := closedPosition(t, "OP-3", "1.00", "2.00", 10, closedAt)
	zeroNotional.OpenNotional = decimal.Zero
	zeroNotional.OpenPrice = decimal.Zero
	if ROI(zeroNotional) != nil {
		t.Error("roi with zero notional should be nil, not a division by zero")
	}
}

func TestDistributions(t *testing.T) {
	closedAt := time.Now()
	call := openPosition(t, "OP-1", opdomain.DirectionBuy, "1.00", 10, closedAt)
	put := openPosition(t, "OP-2", opdomain.DirectionSell, "1.00", 10, closedAt)
	put.Type = opdomain.InstrumentPut
	ops := []*opdomain.Operation{call, put, call}

	byType := DistributionByType(ops)
	if byType[0].Nome != "CALL" || byType[0].Valor != 2 || byType[1].Nome != "PUT" || byType[1].Valor != 1 {
		t.Errorf("type distribution = %v", byType)
	}
	byDirection := DistributionByDirection(ops)
	if byDirection[0].Nome != "BUY" || byDirection[0].Valor != 2 || byDirection[1].Nome != "SELL" || byDirection[1].Valor != 1 {
		t.Errorf("direction distribution = %v", byDirection)
	}
}

func TestBucketByMonthOrdering(t *testing.T) {
	mk := func(id string, month time.Month, year int, result string) *opdomain.Operation {
		op := closedPosition(t, id, "1.00", "2.00", 10, time.Date(year, month, 10, 0, 0, 0, 0, time.UTC))
		r := dec(result)
		op.Result = &r
		return op
	}

	buckets := BucketByMonth([]*opdomain.Operation{
		mk("OP-1", time.March, 2024, "10"),
		mk("OP-2", time.January, 2024, "5"),
		mk("OP-3", time.December, 2023, "-3"),
		mk("OP-4", time.March, 2024, "7"),
	})

	if len(buckets) != 3 {
		t.Fatalf("buckets = %d, want 3", len(buckets))
	}
	wantLabels := []string{"Dez/23", "Jan/24", "Mar/24"}
	for i, want := range wantLabels {
		if buckets[i].Label != want {
			t.Errorf("bucket[%d].Label = %q, want %q", i, buckets[i].Label, want)
		}
	}
	if !buckets[2].Result.Equal(dec("17")) || buckets[2].Count != 2 {
		t.Errorf("Mar/24 bucket = %s/%d, want 17/2", buckets[2].Result, buckets[2].Count)
	}
}
