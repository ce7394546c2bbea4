package fidc

import (
	"context"

	"github.com/mesacredito/fidc-cli/internal/schema"
)

// brzProcessor ingests BRZ Consignados reports: CVNP limits, subordination
// ratios and exposure per payroll processor.
type brzProcessor struct{ base }

func (p *brzProcessor) Process(ctx context.Context, in Input) (int, error) {
	rep, err := reportAs[*schema.BRZReport](p.fund, in.Report)
	if err != nil {
		return 0, err
	}
	w := p.begin(ctx, in)
	if w == nil {
		return 0, nil
	}

	// CVNP names are composite codes; casing is significant.
	for _, c := range rep.CVNP {
		limit := limitText(c.Limite)
		err := w.value(keepName(c.Nome), ParseNumber(c.Valor),
			map[string]any{"original_name": c.Nome, "limit": limit},
			withLimit(limit, boolPtr(true)),
		)
		if err != nil {
			return 0, err
		}
	}

	for _, k := range sortedKeys(rep.Subordinacao) {
		err := w.value(lowerName("subordinacao_"+k), ParseNumber(rep.Subordinacao[k]),
			map[string]any{"original_name": k},
		)
		if err != nil {
			return 0, err
		}
	}

	for _, a := range rep.Averbadoras {
		err := w.value(lowerName("averbadora_"+a.Averbadora), ParseNumber(a.Percentual),
			map[string]any{"averbadora": a.Averbadora},
		)
		if err != nil {
			return 0, err
		}
	}
	return w.count, nil
}
