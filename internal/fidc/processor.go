package fidc

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mesacredito/fidc-cli/internal/model"
	"github.com/mesacredito/fidc-cli/internal/schema"
	"github.com/mesacredito/fidc-cli/internal/store"
)

// Extraction is the agent metadata echoed into every metadata blob.
type Extraction struct {
	ElapsedTime string
	TokensUsed  *int
	Model       string
	Schema      string
}

// Input is one decoded document ready for ingestion.
type Input struct {
	Report    schema.Report
	AssetCode string
	Filename  string
	Extraction
}

// Processor writes one fund report into the store and returns the number
// of indicator and registration rows written.
type Processor interface {
	Process(ctx context.Context, in Input) (int, error)
}

// Deps are the collaborators a processor writes through.
type Deps struct {
	Tx  store.Tx
	Now func() time.Time
}

// base carries what every fund processor shares.
type base struct {
	fund     string
	tx       store.Tx
	resolver *Resolver
	now      func() time.Time
	// filenameFallback derives a missing ano/mes from the source filename.
	filenameFallback bool
}

func newBase(fund string, deps Deps) base {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return base{
		fund:     fund,
		tx:       deps.Tx,
		resolver: NewResolver(deps.Tx),
		now:      now,
	}
}

type period struct {
	month string
	year  int
}

// reportPeriod reads ano/mes from the report header. ok is false when either
// is missing (after the optional filename fallback) or the year is not a number.
func (b *base) reportPeriod(in Input) (period, bool) {
	h := in.Report.ReportPeriod()
	month := monthOf(h.Mes)
	year, yearOK := yearOf(h.Ano)

	if b.filenameFallback && (month == "" || !yearOK) && in.Filename != "" {
		if info, err := ParseFilename(in.Filename); err == nil {
			if month == "" {
				month = NormalizeMonth(info.MonthToken)
			}
			if !yearOK {
				year, yearOK = info.Year, true
			}
		}
	}

	if month == "" || !yearOK {
		return period{}, false
	}
	return period{month: month, year: year}, true
}

// pointPeriod reads a time-series point's own ano/mes, falling back to the
// report period for whichever is missing.
func pointPeriod(ano, mes schema.Scalar, fallback period) period {
	p := fallback
	if m := monthOf(mes); m != "" {
		p.month = m
	}
	if y, ok := yearOf(ano); ok {
		p.year = y
	}
	return p
}

func monthOf(s schema.Scalar) string {
	if s.IsNull() {
		return ""
	}
	if f := numericValue(s); f != nil && *f == math.Trunc(*f) {
		if n := int(*f); n >= 1 && n <= 12 {
			return fmt.Sprintf("%02d", n)
		}
	}
	return NormalizeMonth(strings.TrimSpace(s.Text()))
}

func yearOf(s schema.Scalar) (int, bool) {
	if s.IsNull() {
		return 0, false
	}
	if f := numericValue(s); f != nil {
		return int(*f), true
	}
	n, err := strconv.Atoi(strings.TrimSpace(s.Text()))
	if err != nil {
		return 0, false
	}
	return n, true
}

// numericValue returns the scalar as a number only when it already is one.
func numericValue(s schema.Scalar) *float64 {
	switch s.Value().(type) {
	case json.Number, float64, int, int64:
		return ParseNumber(s.Value())
	}
	return nil
}

// begin checks the period and returns a writer for one Process call. A nil
// writer means the document has no usable period and nothing is written.
func (b *base) begin(ctx context.Context, in Input) *writer {
	per, ok := b.reportPeriod(in)
	if !ok {
		zap.L().Warn("fidc: report has no usable period, skipping",
			zap.String("fund", b.fund),
			zap.String("file", in.Filename),
		)
		return nil
	}
	return &writer{base: b, ctx: ctx, in: in, per: per}
}

// reportAs asserts the decoded report is the type the processor handles.
func reportAs[T schema.Report](fund string, r schema.Report) (T, error) {
	t, ok := r.(T)
	if !ok {
		var zero T
		return zero, eris.Errorf("fidc: %s processor cannot handle %T", fund, r)
	}
	return t, nil
}

// writer accumulates the row count for one document.
type writer struct {
	*base
	ctx   context.Context
	in    Input
	per   period
	count int
}

type rowOpt func(*model.IndicatorValue)

func withLimit(limit *string, upper *bool) rowOpt {
	return func(v *model.IndicatorValue) {
		v.Limit = limit
		v.IsUpperLimit = upper
	}
}

func atPeriod(p period) rowOpt {
	return func(v *model.IndicatorValue) {
		v.Month = p.month
		v.Year = p.year
	}
}

// resolve returns the indicator id for name, or ok=false when it is unknown.
func (w *writer) resolve(name string) (int64, bool, error) {
	ind, ok, err := w.resolver.Resolve(w.ctx, name)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		zap.L().Debug("fidc: indicator not found, skipping field",
			zap.String("fund", w.fund),
			zap.String("name", name),
		)
		return 0, false, nil
	}
	return ind.ID, true, nil
}

// value upserts one periodic row at the report period unless an option overrides it.
func (w *writer) value(name string, v *float64, extra map[string]any, opts ...rowOpt) error {
	id, ok, err := w.resolve(name)
	if err != nil || !ok {
		return err
	}
	row := model.IndicatorValue{
		AssetCode:   w.in.AssetCode,
		IndicatorID: id,
		Value:       v,
		Metadata:    w.metadata(extra),
		Month:       w.per.month,
		Year:        w.per.year,
	}
	for _, opt := range opts {
		opt(&row)
	}
	if err := w.tx.UpsertIndicatorValue(w.ctx, row); err != nil {
		return eris.Wrapf(err, "fidc: upsert %s", name)
	}
	w.count++
	return nil
}

// registration upserts one registration fact. Null values are skipped.
func (w *writer) registration(name string, text schema.Scalar) error {
	if text.IsNull() {
		return nil
	}
	id, ok, err := w.resolve(name)
	if err != nil || !ok {
		return err
	}
	err = w.tx.UpsertRegistrationValue(w.ctx, model.RegistrationValue{
		AssetCode:   w.in.AssetCode,
		IndicatorID: id,
		TextValue:   text.Text(),
	})
	if err != nil {
		return eris.Wrapf(err, "fidc: upsert registration %s", name)
	}
	w.count++
	return nil
}

// wholesale stores a whole section as metadata under one synthetic indicator with value 1.
func (w *writer) wholesale(name string, payload any) error {
	one := 1.0
	return w.value(name, &one, map[string]any{"payload": payload})
}

// scalars writes every entry of a map section as a periodic value, in key order.
func (w *writer) scalars(m map[string]schema.Scalar, name func(string) string) error {
	for _, k := range sortedKeys(m) {
		if err := w.value(name(k), ParseNumber(m[k]), map[string]any{"original_name": k}); err != nil {
			return err
		}
	}
	return nil
}

// registrations writes every entry of a dados cadastrais section.
func (w *writer) registrations(m map[string]schema.Scalar) error {
	for _, k := range sortedKeys(m) {
		if err := w.registration(lowerName(k), m[k]); err != nil {
			return err
		}
	}
	return nil
}

// metadata builds the blob attached to every periodic row.
func (w *writer) metadata(extra map[string]any) map[string]any {
	md := map[string]any{
		"extraction_time": w.in.ElapsedTime,
		"tokens_used":     nil,
		"model":           w.in.Model,
		"schema":          w.in.Schema,
		"processed_at":    w.now().UTC().Format(time.RFC3339),
		"source_file":     w.in.Filename,
	}
	if w.in.TokensUsed != nil {
		md["tokens_used"] = *w.in.TokensUsed
	}
	maps.Copy(md, extra)
	return md
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

func limitText(s schema.Scalar) *string {
	if s.IsNull() {
		return nil
	}
	t := s.Text()
	return &t
}

func boolPtr(b bool) *bool { return &b }

// round2 rounds half away from zero to two decimal places.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
