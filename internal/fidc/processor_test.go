package fidc

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mesacredito/fidc-cli/internal/model"
	"github.com/mesacredito/fidc-cli/internal/schema"
	"github.com/mesacredito/fidc-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var fixedNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

const testAsset = "FND001"

// newTestStore opens a migrated SQLite store with one active asset and the
// given indicator names, in id order.
func newTestStore(t *testing.T, indicators ...string) *store.SQLiteStore {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "fidc.db"), store.WithClock(fixedClock))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	_, err = st.UpsertAssets(ctx, []model.Asset{{Code: testAsset, Nickname: "Fundo Teste", Active: true}})
	require.NoError(t, err)

	if len(indicators) > 0 {
		inds := make([]model.Indicator, len(indicators))
		for i, n := range indicators {
			inds[i] = model.Indicator{Name: n}
		}
		_, err = st.UpsertIndicators(ctx, inds)
		require.NoError(t, err)
	}
	return st
}

var testExtraction = Extraction{
	ElapsedTime: "2.50s",
	TokensUsed:  func() *int { n := 1234; return &n }(),
	Model:       "claude-sonnet-4-5",
}

func decodeReport(t *testing.T, schemaName, raw string) schema.Report {
	t.Helper()
	d, err := schema.Default().Resolve(schemaName)
	require.NoError(t, err)
	rep, err := d.Decode([]byte(raw))
	require.NoError(t, err)
	return rep
}

type ingested struct {
	n      int
	values map[string]model.ConsolidatedValue
	regs   map[string]string
	rows   []model.ConsolidatedValue
}

// ingest runs one document through the processor for schemaName and commits.
func ingest(t *testing.T, st *store.SQLiteStore, schemaName, filename, raw string) ingested {
	t.Helper()
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	proc, err := NewProcessor(schemaName, Deps{Tx: tx, Now: fixedClock})
	require.NoError(t, err)

	ex := testExtraction
	ex.Schema = schemaName
	n, err := proc.Process(ctx, Input{
		Report:     decodeReport(t, schemaName, raw),
		AssetCode:  testAsset,
		Filename:   filename,
		Extraction: ex,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	return readBack(t, st, n)
}

func readBack(t *testing.T, st *store.SQLiteStore, n int) ingested {
	t.Helper()
	ctx := context.Background()

	rows, err := st.ConsolidatedValues(ctx)
	require.NoError(t, err)
	regs, err := st.ConsolidatedRegistrations(ctx)
	require.NoError(t, err)

	out := ingested{n: n, values: map[string]model.ConsolidatedValue{}, regs: map[string]string{}, rows: rows}
	for _, r := range rows {
		out.values[r.IndicatorName+"@"+r.Month+"/"+strconv.Itoa(r.Year)] = r
	}
	for _, r := range regs {
		out.regs[r.IndicatorName] = r.TextValue
	}
	return out
}

func (in ingested) value(t *testing.T, key string) model.ConsolidatedValue {
	t.Helper()
	v, ok := in.values[key]
	require.Truef(t, ok, "no row %s; have %v", key, keysOf(in.values))
	return v
}

func keysOf[V any](m map[string]V) []string {
	return sortedKeys(m)
}

func TestProcess_MissingPeriodWritesNothing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"no year", `{"mes": 3, "resultado": {"indicadores": {"pl": 10}}}`},
		{"no month", `{"ano": 2024, "resultado": {"indicadores": {"pl": 10}}}`},
		{"non numeric year", `{"ano": "dois mil", "mes": 3, "resultado": {"indicadores": {"pl": 10}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := newTestStore(t, "pl")
			got := ingest(t, st, "bemol", "FIDC_BEMOL_2024_03.pdf", tt.raw)
			assert.Equal(t, 0, got.n)
			assert.Empty(t, got.rows)
		})
	}
}

func TestProcess_MetadataBlob(t *testing.T) {
	t.Parallel()
	st := newTestStore(t, "pl")

	got := ingest(t, st, "bemol", "FIDC_BEMOL_2024_03.pdf",
		`{"ano": "2024", "mes": "março", "resultado": {"indicadores": {"PL": "R$ 1.000,50"}}}`)
	require.Equal(t, 1, got.n)

	v := got.value(t, "pl@03/2024")
	require.NotNil(t, v.Value)
	assert.InDelta(t, 1000.50, *v.Value, 1e-9)
	assert.Equal(t, "2.50s", v.Metadata["extraction_time"])
	assert.InDelta(t, 1234, v.Metadata["tokens_used"], 1e-9)
	assert.Equal(t, "claude-sonnet-4-5", v.Metadata["model"])
	assert.Equal(t, "bemol", v.Metadata["schema"])
	assert.Equal(t, "2024-03-15T10:30:00Z", v.Metadata["processed_at"])
	assert.Equal(t, "FIDC_BEMOL_2024_03.pdf", v.Metadata["source_file"])
	assert.Equal(t, "PL", v.Metadata["original_name"])
}

func TestProcess_UnresolvedNamesAreSkipped(t *testing.T) {
	t.Parallel()
	st := newTestStore(t, "pl")

	got := ingest(t, st, "bemol", "f.pdf",
		`{"ano": 2024, "mes": 3, "resultado": {"indicadores": {"PL": 10, "zz": 1, "q": 2}}}`)
	assert.Equal(t, 1, got.n)
	assert.Len(t, got.rows, 1)
}

func TestProcess_IdempotentReingest(t *testing.T) {
	t.Parallel()
	st := newTestStore(t, "pl")

	ingest(t, st, "bemol", "f.pdf", `{"ano": 2024, "mes": 3, "resultado": {"indicadores": {"PL": 10}}}`)
	got := ingest(t, st, "bemol", "f.pdf", `{"ano": 2024, "mes": 3, "resultado": {"indicadores": {"PL": 20}}}`)

	require.Len(t, got.rows, 1)
	assert.InDelta(t, 20, *got.value(t, "pl@03/2024").Value, 1e-9)
}

func TestProcess_WrongReportType(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	proc, err := NewProcessor("icred", Deps{Tx: tx})
	require.NoError(t, err)
	_, err = proc.Process(ctx, Input{Report: &schema.BemolReport{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "icred processor cannot handle")
}

func TestReportPeriod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fallback bool
		header   schema.Header
		filename string
		want     period
		ok       bool
	}{
		{"numeric", false, schema.Header{Ano: schema.NewScalar(2024.0), Mes: schema.NewScalar(3.0)}, "", period{"03", 2024}, true},
		{"strings", false, schema.Header{Ano: schema.NewScalar("2023"), Mes: schema.NewScalar("Dez")}, "", period{"12", 2023}, true},
		{"unknown month passes through", false, schema.Header{Ano: schema.NewScalar(2024.0), Mes: schema.NewScalar("1T")}, "", period{"1T", 2024}, true},
		{"missing without fallback", false, schema.Header{Ano: schema.NewScalar(2024.0)}, "FIDC_VALORA_2024_05.pdf", period{}, false},
		{"missing month from filename", true, schema.Header{Ano: schema.NewScalar(2024.0)}, "FIDC_VALORA_2024_05.pdf", period{"05", 2024}, true},
		{"missing both from filename", true, schema.Header{}, "FIDC_VALORA_2023_nov.pdf", period{"11", 2023}, true},
		{"report wins over filename", true, schema.Header{Ano: schema.NewScalar(2022.0), Mes: schema.NewScalar(1.0)}, "FIDC_VALORA_2023_11.pdf", period{"01", 2022}, true},
		{"bad filename", true, schema.Header{}, "valora.pdf", period{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := base{filenameFallback: tt.fallback}
			got, ok := b.reportPeriod(Input{Report: &schema.ValoraReport{Header: tt.header}, Filename: tt.filename})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPaymentShares(t *testing.T) {
	t.Parallel()
	rows := []schema.PaymentStatus{
		{Status: "Em dia", Quantidade: schema.NewScalar(10.0), Valor: schema.NewScalar("R$ 300,00")},
		{Status: "Atrasado", Quantidade: schema.NewScalar(5.0), Valor: schema.NewScalar("R$ 600,00")},
		{Status: "Sem valor", Quantidade: schema.NewScalar(nil), Valor: schema.NewScalar(nil)},
	}
	got := paymentShares(rows)
	require.Len(t, got, 3)
	assert.InDelta(t, 33.33, *got[0]["percentual_do_total"].(*float64), 1e-9)
	assert.InDelta(t, 66.67, *got[1]["percentual_do_total"].(*float64), 1e-9)
	assert.Nil(t, got[2]["percentual_do_total"])

	zero := paymentShares([]schema.PaymentStatus{{Status: "x", Valor: schema.NewScalar(0.0)}})
	assert.Nil(t, zero[0]["percentual_do_total"])
}
