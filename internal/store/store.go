// Package store persists the FIDC indicator catalog, prompt catalog and
// extracted indicator values. It has a Postgres implementation for production
// and a SQLite implementation for local runs and tests.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mesacredito/fidc-cli/internal/model"
)

// ErrAssetCodeNotFound is returned when no prompt links a schema to an asset.
var ErrAssetCodeNotFound = eris.New("store: asset code not found for schema")

// IndicatorFinder is the read side the indicator resolver needs. Both finders
// return (nil, nil) when nothing matches.
type IndicatorFinder interface {
	// FindIndicatorByName matches the canonical name case-insensitively.
	FindIndicatorByName(ctx context.Context, name string) (*model.Indicator, error)
	// FindIndicatorBySubstring matches rows whose name contains the input or
	// is contained by it, shortest canonical name first, then lowest id.
	FindIndicatorBySubstring(ctx context.Context, name string) (*model.Indicator, error)
}

// Tx stages the writes for one source document. Nothing is visible to other
// readers until Commit; the store never commits on its own.
type Tx interface {
	IndicatorFinder

	// UpsertIndicatorValue writes a periodic value keyed by asset, indicator
	// and period. An empty month or zero year defaults to the store clock.
	UpsertIndicatorValue(ctx context.Context, v model.IndicatorValue) error
	// UpsertRegistrationValue writes a registration fact keyed by asset and indicator.
	UpsertRegistrationValue(ctx context.Context, v model.RegistrationValue) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Ingestion
	Begin(ctx context.Context) (Tx, error)
	AssetCodeBySchema(ctx context.Context, schemaName string) (string, error)

	// Prompt catalog
	FindPromptsByFund(ctx context.Context, fundName string) ([]model.Prompt, error)
	UpsertPrompts(ctx context.Context, prompts []model.Prompt) (int, error)
	UpsertAssets(ctx context.Context, assets []model.Asset) (int, error)
	SaveSchemas(ctx context.Context, schemas []model.SchemaRecord) (int64, error)

	// Indicator catalog
	UpsertIndicators(ctx context.Context, indicators []model.Indicator) (int64, error)

	// Reporting
	ConsolidatedValues(ctx context.Context) ([]model.ConsolidatedValue, error)
	ConsolidatedRegistrations(ctx context.Context) ([]model.ConsolidatedRegistration, error)

	// ClearCache drops memoised catalog lookups.
	ClearCache()

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Option configures a store.
type Option func(*settings)

type settings struct {
	now func() time.Time
}

// WithClock overrides the clock used for period defaulting and capture timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// applyPeriod fills a missing month or year from now. Month is zero-padded.
func applyPeriod(v *model.IndicatorValue, now time.Time) {
	if strings.TrimSpace(v.Month) == "" {
		v.Month = fmt.Sprintf("%02d", int(now.Month()))
	}
	if v.Year == 0 {
		v.Year = now.Year()
	}
	if v.CapturedAt.IsZero() {
		v.CapturedAt = now.UTC()
	}
}

// fundQuery normalises a fund name for the prompt catalog lookup: underscores
// read as spaces and matching is case-insensitive.
func fundQuery(fund string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(fund, "_", " ")))
}

func validIndicator(ind model.Indicator) error {
	if strings.TrimSpace(ind.Name) == "" {
		return eris.New("store: indicator name is required")
	}
	return nil
}

func validPrompt(p model.Prompt) error {
	switch {
	case strings.TrimSpace(p.FundName) == "":
		return eris.New("store: prompt fund_name is required")
	case strings.TrimSpace(p.SchemaName) == "":
		return eris.Errorf("store: prompt for %s has no schema_name", p.FundName)
	case strings.TrimSpace(p.AssetCode) == "":
		return eris.Errorf("store: prompt for %s has no asset_code", p.FundName)
	}
	return nil
}
