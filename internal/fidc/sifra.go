package fidc

import (
	"context"

	"github.com/mesacredito/fidc-cli/internal/schema"
)

const limitMax = "maximo"

// sifraProcessor ingests Sifra reports: a monthly history table and the
// eligibility criteria with their limits.
type sifraProcessor struct{ base }

func (p *sifraProcessor) Process(ctx context.Context, in Input) (int, error) {
	rep, err := reportAs[*schema.SifraReport](p.fund, in.Report)
	if err != nil {
		return 0, err
	}
	w := p.begin(ctx, in)
	if w == nil {
		return 0, nil
	}

	for _, row := range rep.Historico {
		per := pointPeriod(row.Ano, row.Mes, w.per)
		for _, field := range sortedKeys(row.Fields) {
			v := ParseNumber(row.Fields[field])
			if v == nil {
				continue
			}
			err := w.value(lowerName(field), v,
				map[string]any{"original_name": field},
				atPeriod(per),
			)
			if err != nil {
				return 0, err
			}
		}
	}

	for _, c := range rep.CriteriosElegibilidade {
		var upper *bool
		if c.TipoLimite != "" {
			upper = boolPtr(c.TipoLimite == limitMax)
		}
		var compliant any
		if c.Enquadrado != nil {
			compliant = *c.Enquadrado
		}
		err := w.value(lowerName(c.Criterio), ParseNumber(c.ValorApurado),
			map[string]any{"original_name": c.Criterio, "compliant": compliant},
			withLimit(limitText(c.Limite), upper),
		)
		if err != nil {
			return 0, err
		}
	}
	return w.count, nil
}
