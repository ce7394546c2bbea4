package fidc

import (
	"context"

	"github.com/mesacredito/fidc-cli/internal/schema"
)

// tapsoProcessor ingests Tapso reports: result indicators, the
// payments-by-status table and the monthly cash-flow series.
type tapsoProcessor struct{ base }

func (p *tapsoProcessor) Process(ctx context.Context, in Input) (int, error) {
	rep, err := reportAs[*schema.TapsoReport](p.fund, in.Report)
	if err != nil {
		return 0, err
	}
	w := p.begin(ctx, in)
	if w == nil {
		return 0, nil
	}

	if res := rep.Resultado; res != nil {
		if err := w.scalars(res.Indicadores, lowerName); err != nil {
			return 0, err
		}
		if len(res.PagamentosPorStatus) > 0 {
			if err := w.wholesale("pagamentos_por_status", res.PagamentosPorStatus); err != nil {
				return 0, err
			}
		}
	}

	for _, row := range rep.FluxoMensal {
		per := pointPeriod(row.Ano, row.Mes, w.per)
		for _, field := range sortedKeys(row.Fields) {
			err := w.value(lowerName("fluxo_"+field), ParseNumber(row.Fields[field]),
				map[string]any{"original_name": field},
				atPeriod(per),
			)
			if err != nil {
				return 0, err
			}
		}
	}
	return w.count, nil
}
