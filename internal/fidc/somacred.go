package fidc

import (
	"context"

	"github.com/mesacredito/fidc-cli/internal/schema"
)

// somacredProcessor ingests Somacred reports: a flat indicator map plus
// named multi-field series whose points carry their own period.
type somacredProcessor struct{ base }

func (p *somacredProcessor) Process(ctx context.Context, in Input) (int, error) {
	rep, err := reportAs[*schema.SomacredReport](p.fund, in.Report)
	if err != nil {
		return 0, err
	}
	w := p.begin(ctx, in)
	if w == nil {
		return 0, nil
	}

	if err := w.scalars(rep.Indicadores, lowerName); err != nil {
		return 0, err
	}

	for _, s := range rep.Series {
		for _, pt := range s.Pontos {
			per := pointPeriod(pt.Ano, pt.Mes, w.per)
			for _, field := range sortedKeys(pt.Valores) {
				err := w.value(lowerName(s.Nome+"_"+field), ParseNumber(pt.Valores[field]),
					map[string]any{"series": s.Nome, "field": field},
					atPeriod(per),
				)
				if err != nil {
					return 0, err
				}
			}
		}
	}
	return w.count, nil
}
