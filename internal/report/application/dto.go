package application

import (
	"time"

	opdomain "github.com/wyfcoding/optionsledger/internal/operation/domain"
	"github.com/wyfcoding/optionsledger/internal/report/domain"
)

// PerformanceReport 绩效报表响应，字段命名面向前端消费方
type PerformanceReport struct {
	TotalOperacoes      int                          `json:"totalOperacoes"`
	ResultadoTotal      float64                      `json:"resultadoTotal"`
	ResultadoTendencia  float64                      `json:"resultadoTendencia"`
	TaxaAcerto          float64                      `json:"taxaAcerto"`
	MediaResultado      float64                      `json:"mediaResultado"`
	DistribuicaoTipo    []domain.DistributionItem    `json:"distribuicaoTipo"`
	DistribuicaoDirecao []domain.DistributionItem    `json:"distribuicaoDirecao"`
	ResultadoPorMes     []MonthResult                `json:"resultadoPorMes"`
	OperacoesPorMes     []MonthCount                 `json:"operacoesPorMes"`
	DetalhesPorMes      map[string][]OperationDetail `json:"detalhesPorMes"`
	MelhoresOperacoes   []OperationDetail            `json:"melhoresOperacoes"`
	PioresOperacoes     []OperationDetail            `json:"pioresOperacoes"`
}

// MonthResult 单月已实现盈亏
type MonthResult struct {
	Mes       string  `json:"mes"`
	Resultado float64 `json:"resultado"`
}

// MonthCount 单月已实现操作数量
type MonthCount struct {
	Mes        string `json:"mes"`
	Quantidade int    `json:"quantidade"`
}

// OperationDetail 报表中的单条操作明细
type OperationDetail struct {
	ID                 string     `json:"id"`
	Ticker             string     `json:"ticker"`
	Tipo               string     `json:"tipo"`
	Direcao            string     `json:"direcao"`
	Quantidade         int64      `json:"quantidade"`
	PrecoAbertura      float64    `json:"precoAbertura"`
	PrecoFechamento    *float64   `json:"precoFechamento"`
	Resultado          float64    `json:"resultado"`
	ROI                *float64   `json:"roi"`
	DataFechamento     *time.Time `json:"dataFechamento"`
	OperacaoOriginalID *string    `json:"operacaoOriginalId"`
}

func toDetail(op *opdomain.Operation) OperationDetail {
	detail := OperationDetail{
		ID:                 op.ID,
		Ticker:             op.Ticker,
		Tipo:               string(op.Type),
		Direcao:            string(op.Direction),
		Quantidade:         op.Quantity,
		PrecoAbertura:      op.OpenPrice.InexactFloat64(),
		ROI:                domain.ROI(op),
		DataFechamento:     op.ClosedAt,
		OperacaoOriginalID: op.OriginalOperationID,
	}
	if op.ClosePrice != nil {
		price := op.ClosePrice.InexactFloat64()
		detail.PrecoFechamento = &price
	}
	if op.Result != nil {
		detail.Resultado = op.Result.InexactFloat64()
	}
	return detail
}

func toDetails(ops []*opdomain.Operation) []OperationDetail {
	details := make([]OperationDetail, 0, len(ops))
	for _, op := range ops {
		details = append(details, toDetail(op))
	}
	return details
}
