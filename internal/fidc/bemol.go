package fidc

import (
	"context"

	"github.com/mesacredito/fidc-cli/internal/schema"
)

// bemolProcessor ingests Bemol reports: registration data, a flat indicator
// map and an indicator/limit table, all under "resultado".
type bemolProcessor struct{ base }

func (p *bemolProcessor) Process(ctx context.Context, in Input) (int, error) {
	rep, err := reportAs[*schema.BemolReport](p.fund, in.Report)
	if err != nil {
		return 0, err
	}
	w := p.begin(ctx, in)
	if w == nil || rep.Resultado == nil {
		return 0, nil
	}
	res := rep.Resultado

	if err := w.registrations(res.DadosCadastrais); err != nil {
		return 0, err
	}
	if err := w.scalars(res.Indicadores, lowerName); err != nil {
		return 0, err
	}
	for _, l := range res.Limites {
		limit := limitText(l.Limite)
		err := w.value(lowerName(l.Indicador), ParseNumber(l.Valor),
			map[string]any{"original_name": l.Indicador, "limit": limit},
			withLimit(limit, l.LimiteSuperior),
		)
		if err != nil {
			return 0, err
		}
	}
	return w.count, nil
}
