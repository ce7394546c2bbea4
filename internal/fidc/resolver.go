package fidc

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/mesacredito/fidc-cli/internal/model"
	"github.com/mesacredito/fidc-cli/internal/store"
)

// minSubstringLen is the shortest trimmed name that may reach the
// bilateral substring search.
const minSubstringLen = 2

// Resolver maps a field name from an extraction to a canonical indicator.
type Resolver struct {
	finder store.IndicatorFinder
}

// NewResolver creates a resolver reading through finder.
func NewResolver(finder store.IndicatorFinder) *Resolver {
	return &Resolver{finder: finder}
}

// Resolve looks the name up exactly (case-insensitive) and then by
// bilateral substring, shortest canonical name first. The bool is false
// when nothing matches; that is not an error.
func (r *Resolver) Resolve(ctx context.Context, name string) (*model.Indicator, bool, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, false, nil
	}

	ind, err := r.finder.FindIndicatorByName(ctx, trimmed)
	if err != nil {
		return nil, false, eris.Wrapf(err, "fidc: resolve %q", trimmed)
	}
	if ind != nil {
		return ind, true, nil
	}

	if utf8.RuneCountInString(trimmed) < minSubstringLen {
		return nil, false, nil
	}

	ind, err = r.finder.FindIndicatorBySubstring(ctx, trimmed)
	if err != nil {
		return nil, false, eris.Wrapf(err, "fidc: resolve %q by substring", trimmed)
	}
	return ind, ind != nil, nil
}
