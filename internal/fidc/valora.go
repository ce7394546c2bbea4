package fidc

import (
	"context"
	"fmt"

	"github.com/mesacredito/fidc-cli/internal/schema"
)

// valoraProcessor ingests Valora reports: a summary map and the top
// assignor and debtor concentration rankings.
type valoraProcessor struct{ base }

func (p *valoraProcessor) Process(ctx context.Context, in Input) (int, error) {
	rep, err := reportAs[*schema.ValoraReport](p.fund, in.Report)
	if err != nil {
		return 0, err
	}
	w := p.begin(ctx, in)
	if w == nil {
		return 0, nil
	}

	if err := w.scalars(rep.Resumo, lowerName); err != nil {
		return 0, err
	}
	if err := w.ranking("cedente", rep.Cedentes); err != nil {
		return 0, err
	}
	if err := w.ranking("sacado", rep.Sacados); err != nil {
		return 0, err
	}
	return w.count, nil
}

// ranking writes concentracao_<kind>_top_<n> for each position, 1-based.
func (w *writer) ranking(kind string, parts []schema.Participante) error {
	for i, part := range parts {
		name := fmt.Sprintf("concentracao_%s_top_%d", kind, i+1)
		if err := w.value(name, ParseNumber(part.Percentual), map[string]any{kind: part.Nome}); err != nil {
			return err
		}
	}
	return nil
}
