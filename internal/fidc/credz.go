package fidc

import (
	"context"

	"github.com/mesacredito/fidc-cli/internal/schema"
)

// credzProcessor ingests Credz reports: registration data, performance
// indicators against targets and the collection agent parameters.
type credzProcessor struct{ base }

func (p *credzProcessor) Process(ctx context.Context, in Input) (int, error) {
	rep, err := reportAs[*schema.CredzReport](p.fund, in.Report)
	if err != nil {
		return 0, err
	}
	w := p.begin(ctx, in)
	if w == nil {
		return 0, nil
	}

	if err := w.registrations(rep.DadosCadastrais); err != nil {
		return 0, err
	}

	for _, ind := range rep.IndicadoresDesempenho {
		err := w.value(lowerName(ind.Indicador), ParseNumber(ind.Valor),
			map[string]any{"original_name": ind.Indicador, "target": ind.Meta.Value()},
			withLimit(limitText(ind.Meta), boolPtr(false)),
		)
		if err != nil {
			return 0, err
		}
	}

	if len(rep.ParametrosAgenteCobranca) > 0 {
		if err := w.wholesale("parametros_agente_cobranca", rep.ParametrosAgenteCobranca); err != nil {
			return 0, err
		}
	}
	return w.count, nil
}
