package fidc

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesacredito/fidc-cli/internal/agent"
	"github.com/mesacredito/fidc-cli/internal/cost"
	"github.com/mesacredito/fidc-cli/internal/metrics"
	"github.com/mesacredito/fidc-cli/internal/model"
	"github.com/mesacredito/fidc-cli/internal/schema"
	"github.com/mesacredito/fidc-cli/internal/store"
)

const testModel = "claude-sonnet-4-5-20250929"

// fakeAgent answers by source file name.
type fakeAgent struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []agent.Request
}

func (f *fakeAgent) Extract(_ context.Context, req agent.Request) (*agent.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	name := filepath.Base(req.Document)
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	raw, ok := f.replies[name]
	if !ok {
		return nil, eris.Errorf("no reply for %s", name)
	}
	d, err := schema.Default().Resolve(req.SchemaName)
	if err != nil {
		return nil, err
	}
	rep, err := d.Decode([]byte(raw))
	if err != nil {
		return nil, err
	}
	tokens := 1100
	return &agent.Result{
		Value:        rep,
		Raw:          json.RawMessage(raw),
		ElapsedTime:  "1.00s",
		TokensUsed:   &tokens,
		InputTokens:  1000,
		OutputTokens: 100,
		ModelUsed:    testModel,
		SchemaUsed:   req.SchemaName,
	}, nil
}

// seedPrompts registers the bemol schema and a prompt for fund "Bemol".
func seedPrompts(t *testing.T, st *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	recs, err := schema.Default().Records()
	require.NoError(t, err)
	_, err = st.SaveSchemas(ctx, recs)
	require.NoError(t, err)
	_, err = st.UpsertPrompts(ctx, []model.Prompt{{
		FundName:       "Bemol",
		AssetCode:      testAsset,
		SchemaName:     "bemol",
		Models:         []string{testModel},
		UserPrompt:     "Extraia os dados.",
		Temperature:    0.1,
		MaxTokens:      4000,
		Retries:        2,
		ExtractionTool: model.ToolPyPDF,
		ExtractionMode: model.ModeRaw,
	}})
	require.NoError(t, err)
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("%PDF"), 0o644))
	}
}

func TestListFilesWithPrompts(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	seedPrompts(t, st)

	dir := t.TempDir()
	touch(t, dir, "FIDC_BEMOL_2024_03.pdf", "FIDC_BAD.pdf", "FIDC_OUTRO_2024_01.pdf", "notes.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "FIDC_DIR_2024_01"), 0o755))

	svc := NewService(st, &fakeAgent{})
	items, err := svc.ListFilesWithPrompts(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, items, 3)

	byName := map[string]RequestItem{}
	for _, it := range items {
		byName[it.Filename] = it
	}

	bad := byName["FIDC_BAD.pdf"]
	assert.Equal(t, "invalid filename format", bad.Error)
	assert.False(t, bad.Found)

	bemol := byName["FIDC_BEMOL_2024_03.pdf"]
	assert.True(t, bemol.Found)
	assert.Equal(t, "BEMOL", bemol.FundName)
	assert.Equal(t, 2024, bemol.Year)
	assert.Equal(t, 3, bemol.Month)
	assert.Equal(t, filepath.Join(dir, "FIDC_BEMOL_2024_03.pdf"), bemol.Path)
	require.NotNil(t, bemol.Prompt)
	assert.Equal(t, "bemol", bemol.Prompt.SchemaName)

	other := byName["FIDC_OUTRO_2024_01.pdf"]
	assert.False(t, other.Found)
	assert.Nil(t, other.Prompt)
	assert.Empty(t, other.Error)
}

func TestListFilesWithPrompts_MissingDir(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	_, err := NewService(st, &fakeAgent{}).ListFilesWithPrompts(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestProcessBatch_IsolatesFailures(t *testing.T) {
	t.Parallel()
	st := newTestStore(t, "pl")
	seedPrompts(t, st)

	dir := t.TempDir()
	touch(t, dir, "FIDC_BEMOL_2024_01.pdf", "FIDC_BEMOL_2024_02.pdf", "FIDC_BEMOL_2024_03.pdf")

	fa := &fakeAgent{
		replies: map[string]string{
			"FIDC_BEMOL_2024_01.pdf": `{"ano": 2024, "mes": 1, "resultado": {"indicadores": {"PL": 100}}}`,
			"FIDC_BEMOL_2024_03.pdf": `{"ano": 2024, "mes": 3, "resultado": {"indicadores": {"PL": 300}}}`,
		},
		errs: map[string]error{
			"FIDC_BEMOL_2024_02.pdf": eris.New("model overloaded after 2 attempts"),
		},
	}
	m := metrics.New()
	svc := NewService(st, fa,
		WithCostCalculator(cost.NewCalculator(cost.DefaultRates())),
		WithServiceMetrics(m),
		WithServiceClock(fixedClock),
	)

	ctx := context.Background()
	items, err := svc.ListFilesWithPrompts(ctx, dir)
	require.NoError(t, err)
	require.Len(t, items, 3)

	res := svc.ProcessBatch(ctx, items)
	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Outcomes, 3)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "FIDC_BEMOL_2024_02.pdf")

	first, second, third := res.Outcomes[0], res.Outcomes[1], res.Outcomes[2]
	assert.True(t, first.Success)
	assert.Equal(t, 1, first.RecordsWritten)
	assert.Equal(t, testModel, first.ModelUsed)
	assert.Equal(t, "bemol", first.SchemaUsed)
	assert.Equal(t, "1.00s", first.ElapsedTime)
	assert.InDelta(t, 0.0045, first.EstimatedCostUSD, 1e-9)

	assert.False(t, second.Success)
	assert.Contains(t, second.Error, "model overloaded")
	assert.True(t, third.Success)

	got := readBack(t, st, 0)
	require.Len(t, got.rows, 2)
	assert.InDelta(t, 100, *got.value(t, "pl@01/2024").Value, 1e-9)
	assert.InDelta(t, 300, *got.value(t, "pl@03/2024").Value, 1e-9)
	assert.NotContains(t, got.values, "pl@02/2024")

	assert.Len(t, fa.calls, 3)
	assert.Equal(t, "bemol", fa.calls[0].SchemaName)
	assert.Equal(t, []string{testModel}, fa.calls[0].Models)
}

func TestProcessBatch_RollsBackOnProcessorError(t *testing.T) {
	t.Parallel()
	st := newTestStore(t, "pl")
	seedPrompts(t, st)

	// The prompt says bemol but the agent returns an icred report, so the
	// processor fails after nothing was written.
	icred, err := schema.Default().Resolve("icred")
	require.NoError(t, err)
	rep, err := icred.Decode([]byte(`{"ano": 2024, "mes": 1}`))
	require.NoError(t, err)

	ex := extractorFunc(func(context.Context, agent.Request) (*agent.Result, error) {
		return &agent.Result{Value: rep, ModelUsed: testModel, SchemaUsed: "bemol"}, nil
	})
	svc := NewService(st, ex)

	res := svc.ProcessBatch(context.Background(), []RequestItem{{
		Filename: "FIDC_BEMOL_2024_01.pdf",
		Path:     "/tmp/FIDC_BEMOL_2024_01.pdf",
		Prompt:   &model.Prompt{SchemaName: "bemol", Retries: 1, MaxTokens: 10},
		Found:    true,
	}})
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Outcomes[0].Error, "cannot handle")
}

func TestProcessBatch_ItemsWithoutPrompt(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	fa := &fakeAgent{}
	svc := NewService(st, fa)

	res := svc.ProcessBatch(context.Background(), []RequestItem{
		{Filename: "FIDC_OUTRO_2024_01.pdf"},
		{Filename: "FIDC_X_2024_01.pdf", Prompt: &model.Prompt{FundName: "X"}, Found: true},
		{Filename: "FIDC_BAD.pdf", Error: "invalid filename format"},
	})

	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, "prompt not found for file", res.Outcomes[0].Error)
	assert.Equal(t, "prompt not found for file", res.Outcomes[1].Error)
	assert.Equal(t, "invalid filename format", res.Outcomes[2].Error)
	assert.Empty(t, fa.calls)
}

func TestProcessBatch_UnknownAsset(t *testing.T) {
	t.Parallel()
	st := newTestStore(t, "pl")

	fa := &fakeAgent{replies: map[string]string{
		"FIDC_BEMOL_2024_01.pdf": `{"ano": 2024, "mes": 1, "resultado": {"indicadores": {"PL": 1}}}`,
	}}
	res := NewService(st, fa).ProcessBatch(context.Background(), []RequestItem{{
		Filename: "FIDC_BEMOL_2024_01.pdf",
		Path:     "FIDC_BEMOL_2024_01.pdf",
		Prompt:   &model.Prompt{SchemaName: "bemol", Retries: 1, MaxTokens: 10},
		Found:    true,
	}})
	require.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Outcomes[0].Error, "asset code not found")
}

func TestProcessBatch_Empty(t *testing.T) {
	t.Parallel()
	res := NewService(newTestStore(t), &fakeAgent{}).ProcessBatch(context.Background(), nil)
	assert.Equal(t, 0, res.Total)
	assert.Empty(t, res.Outcomes)
	assert.NotNil(t, res.Errors)
}

func TestExtractionError(t *testing.T) {
	t.Parallel()
	inner := eris.New("boom")
	err := &ExtractionError{Filename: "f.pdf", Err: inner}
	assert.Equal(t, "fidc: extraction failed for f.pdf: boom", err.Error())
	assert.ErrorIs(t, err, inner)
}

type extractorFunc func(context.Context, agent.Request) (*agent.Result, error)

func (f extractorFunc) Extract(ctx context.Context, req agent.Request) (*agent.Result, error) {
	return f(ctx, req)
}
