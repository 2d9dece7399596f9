// Package application 组装用户级绩效报表。
package application

import (
	"context"
	"time"

	opdomain "github.com/wyfcoding/optionsledger/internal/operation/domain"
	"github.com/wyfcoding/optionsledger/internal/report/domain"
)

// OperationSource 报表的数据来源：用户的完整扁平记录集
type OperationSource interface {
	ListAllByUser(ctx context.Context, userID string) ([]*opdomain.Operation, error)
}

// ReportService 报表服务；所有聚合在内存中对扁平记录集完成
type ReportService struct {
	source OperationSource
	now    func() time.Time
}

// NewReportService 创建报表服务
func NewReportService(source OperationSource) *ReportService {
	return &ReportService{source: source, now: time.Now}
}

// Generate 为用户生成指定周期的绩效报表
//
// 单次读取后全部在内存中聚合；同一份去重后的已实现集合同时驱动
// 汇总指标、月度分桶与榜单，各视图之间不会互相矛盾。
func (s *ReportService) Generate(ctx context.Context, userID string, period domain.Period) (*PerformanceReport, error) {
	ops, err := s.source.ListAllByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	resolved := period.Resolve(now)
	qualifying := domain.QualifyingClosed(ops, resolved)
	inPeriod := domain.InPeriod(ops, resolved)

	total := domain.SumResults(qualifying)
	_, hitRate := domain.HitRate(qualifying)

	mean := 0.0
	if len(qualifying) > 0 {
		mean = total.InexactFloat64() / float64(len(qualifying))
	}

	trend := 0.0
	if previous, ok := period.ResolvePrevious(now); ok {
		prevTotal := domain.SumResults(domain.QualifyingClosed(ops, previous))
		trend = domain.Trend(total, prevTotal)
	}

	buckets := domain.BucketByMonth(qualifying)
	monthResults := make([]MonthResult, 0, len(buckets))
	monthCounts := make([]MonthCount, 0, len(buckets))
	details := make(map[string][]OperationDetail, len(buckets))
	for _, bucket := range buckets {
		monthResults = append(monthResults, MonthResult{Mes: bucket.Label, Resultado: bucket.Result.InexactFloat64()})
		monthCounts = append(monthCounts, MonthCount{Mes: bucket.Label, Quantidade: bucket.Count})
		details[bucket.Label] = toDetails(bucket.Operations)
	}

	return &PerformanceReport{
		TotalOperacoes:      len(inPeriod),
		ResultadoTotal:      total.InexactFloat64(),
		ResultadoTendencia:  trend,
		TaxaAcerto:          hitRate,
		MediaResultado:      mean,
		DistribuicaoTipo:    domain.DistributionByType(inPeriod),
		DistribuicaoDirecao: domain.DistributionByDirection(inPeriod),
		ResultadoPorMes:     monthResults,
		OperacoesPorMes:     monthCounts,
		DetalhesPorMes:      details,
		MelhoresOperacoes:   toDetails(domain.Best(qualifying, domain.RankingSize)),
		PioresOperacoes:     toDetails(domain.Worst(qualifying, domain.RankingSize)),
	}, nil
}
