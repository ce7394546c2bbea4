package fidc

import (
	"context"
	"fmt"

	"github.com/mesacredito/fidc-cli/internal/schema"
)

// icredProcessor ingests ICred reports: portfolio figures, top-N
// concentration by borrower type and the payments-by-status table.
type icredProcessor struct{ base }

func (p *icredProcessor) Process(ctx context.Context, in Input) (int, error) {
	rep, err := reportAs[*schema.ICredReport](p.fund, in.Report)
	if err != nil {
		return 0, err
	}
	w := p.begin(ctx, in)
	if w == nil {
		return 0, nil
	}

	if err := w.scalars(rep.Carteira, lowerName); err != nil {
		return 0, err
	}

	for _, c := range rep.Concentracao {
		for _, m := range c.Maiores {
			name := lowerName(fmt.Sprintf("concentracao_%s_%s", c.Tipo, m.Posicao.Text()))
			err := w.value(name, ParseNumber(m.Percentual),
				map[string]any{"concentration_type": c.Tipo},
			)
			if err != nil {
				return 0, err
			}
		}
	}

	if len(rep.PagamentosPorStatus) > 0 {
		if err := w.wholesale("pagamentos_por_status", paymentShares(rep.PagamentosPorStatus)); err != nil {
			return 0, err
		}
	}
	return w.count, nil
}

// paymentShares parses each status row and adds its share of the total value
// in percent, rounded to two places. The share is nil when the total is zero.
func paymentShares(rows []schema.PaymentStatus) []map[string]any {
	var total float64
	values := make([]*float64, len(rows))
	for i, r := range rows {
		values[i] = ParseNumber(r.Valor)
		if values[i] != nil {
			total += *values[i]
		}
	}

	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		var share *float64
		if total != 0 && values[i] != nil {
			s := round2(*values[i] / total * 100)
			share = &s
		}
		out[i] = map[string]any{
			"status":              r.Status,
			"quantidade":          ParseNumber(r.Quantidade),
			"valor":               values[i],
			"percentual_do_total": share,
		}
	}
	return out
}
