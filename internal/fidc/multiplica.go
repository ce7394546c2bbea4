package fidc

import (
	"context"

	"github.com/mesacredito/fidc-cli/internal/schema"
)

// multiplicaProcessor ingests Multiplica reports: registration data, the
// portfolio by maturity bucket and the coverage ratios with limits.
type multiplicaProcessor struct{ base }

func (p *multiplicaProcessor) Process(ctx context.Context, in Input) (int, error) {
	rep, err := reportAs[*schema.MultiplicaReport](p.fund, in.Report)
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

	for _, f := range rep.CarteiraPorPrazo {
		err := w.value("carteira_"+slugName(f.Faixa), ParseNumber(f.Valor),
			map[string]any{"original_name": f.Faixa, "percentual": ParseNumber(f.Percentual)},
		)
		if err != nil {
			return 0, err
		}
	}

	for _, k := range sortedKeys(rep.IndicesCobertura) {
		idx := rep.IndicesCobertura[k]
		limit := limitText(idx.Limite)
		err := w.value(keepName(k), ParseNumber(idx.Valor),
			map[string]any{"original_name": k, "limit": limit},
			withLimit(limit, idx.LimiteSuperior),
		)
		if err != nil {
			return 0, err
		}
	}
	return w.count, nil
}
