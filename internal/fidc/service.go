package fidc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mesacredito/fidc-cli/internal/agent"
	"github.com/mesacredito/fidc-cli/internal/cost"
	"github.com/mesacredito/fidc-cli/internal/metrics"
	"github.com/mesacredito/fidc-cli/internal/model"
	"github.com/mesacredito/fidc-cli/internal/store"
)

// ErrPromptNotFound marks a batch item with no usable prompt catalog entry.
var ErrPromptNotFound = eris.New("prompt not found for file")

const invalidFilenameMsg = "invalid filename format"

// ExtractionError wraps an agent failure for one file.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("fidc: extraction failed for %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor is the agent call the service depends on.
type Extractor interface {
	Extract(ctx context.Context, req agent.Request) (*agent.Result, error)
}

// RequestItem is one source file paired with a prompt catalog entry.
type RequestItem struct {
	Filename   string        `json:"filename"`
	Path       string        `json:"path"`
	FundName   string        `json:"fund_name,omitempty"`
	Year       int           `json:"year,omitempty"`
	Month      int           `json:"month,omitempty"`
	MonthToken string        `json:"month_token,omitempty"`
	Prompt     *model.Prompt `json:"prompt,omitempty"`
	Found      bool          `json:"found"`
	Error      string        `json:"error,omitempty"`
}

// ProcessingOutcome is the result of one batch item.
type ProcessingOutcome struct {
	Filename         string  `json:"filename"`
	Success          bool    `json:"success"`
	RecordsWritten   int     `json:"records_written"`
	ElapsedTime      string  `json:"elapsed_time,omitempty"`
	TokensUsed       *int    `json:"tokens_used,omitempty"`
	ModelUsed        string  `json:"model_used,omitempty"`
	SchemaUsed       string  `json:"schema_used,omitempty"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	Error            string  `json:"error,omitempty"`
}

// BatchResult aggregates a ProcessBatch run. Outcomes are in input order.
type BatchResult struct {
	BatchID   string              `json:"batch_id"`
	Total     int                 `json:"total"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Errors    []string            `json:"errors"`
	Outcomes  []ProcessingOutcome `json:"outcomes"`
}

// Service lists source files and ingests them one document per transaction.
type Service struct {
	store   store.Store
	agent   Extractor
	cost    *cost.Calculator
	metrics *metrics.Metrics
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCostCalculator estimates the USD cost of each extraction.
func WithCostCalculator(c *cost.Calculator) ServiceOption {
	return func(s *Service) { s.cost = c }
}

// WithServiceMetrics records batch and item counters.
func WithServiceMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithServiceClock sets the clock stamped into processed_at.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(st store.Store, ex Extractor, opts ...ServiceOption) *Service {
	s := &Service{store: st, agent: ex, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListFilesWithPrompts scans dir for FIDC_* files and pairs each with the
// prompts whose fund name matches. A file with a malformed name yields an
// item carrying the error; a file with no prompt yields one unmatched item.
func (s *Service) ListFilesWithPrompts(ctx context.Context, dir string) ([]RequestItem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "fidc: list %s", dir)
	}

	var items []RequestItem
	for _, e := range entries {
		if e.IsDir() || !isFIDCFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())

		info, err := ParseFilename(e.Name())
		if err != nil {
			items = append(items, RequestItem{Filename: e.Name(), Path: path, Error: invalidFilenameMsg})
			continue
		}

		base := RequestItem{
			Filename:   e.Name(),
			Path:       path,
			FundName:   info.FundName,
			Year:       info.Year,
			Month:      info.Month,
			MonthToken: info.MonthToken,
		}

		prompts, err := s.store.FindPromptsByFund(ctx, info.FundName)
		if err != nil {
			return nil, eris.Wrapf(err, "fidc: prompts for %s", e.Name())
		}
		if len(prompts) == 0 {
			items = append(items, base)
			continue
		}
		for i := range prompts {
			item := base
			item.Prompt = &prompts[i]
			item.Found = true
			items = append(items, item)
		}
	}
	return items, nil
}

// ProcessBatch ingests items sequentially. Each item runs in its own
// transaction; a failure rolls back that item only and the batch continues.
func (s *Service) ProcessBatch(ctx context.Context, items []RequestItem) BatchResult {
	res := BatchResult{
		BatchID:  uuid.NewString(),
		Total:    len(items),
		Errors:   []string{},
		Outcomes: make([]ProcessingOutcome, 0, len(items)),
	}
	log := zap.L().With(zap.String("batch_id", res.BatchID))
	log.Info("fidc: batch started", zap.Int("items", len(items)))

	for _, item := range items {
		out := s.processItem(ctx, log, item)
		res.Outcomes = append(res.Outcomes, out)

		status := "success"
		if out.Success {
			res.Succeeded++
		} else {
			status = "failed"
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", out.Filename, out.Error))
		}
		s.metrics.ItemDone(status, out.RecordsWritten, out.EstimatedCostUSD)
	}
	s.metrics.BatchDone()

	log.Info("fidc: batch finished",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
	)
	return res
}

func (s *Service) processItem(ctx context.Context, log *zap.Logger, item RequestItem) ProcessingOutcome {
	out := ProcessingOutcome{Filename: item.Filename}
	log = log.With(zap.String("file", item.Filename))

	fail := func(err error) ProcessingOutcome {
		out.Success = false
		out.Error = err.Error()
		log.Error("fidc: item failed", zap.Error(err))
		return out
	}

	if item.Error != "" {
		return fail(eris.New(item.Error))
	}
	if item.Prompt == nil || item.Prompt.SchemaName == "" {
		return fail(ErrPromptNotFound)
	}

	result, err := s.agent.Extract(ctx, agent.RequestFromPrompt(*item.Prompt, item.Path))
	if err != nil {
		return fail(&ExtractionError{Filename: item.Filename, Err: err})
	}
	out.ElapsedTime = result.ElapsedTime
	out.TokensUsed = result.TokensUsed
	out.ModelUsed = result.ModelUsed
	out.SchemaUsed = result.SchemaUsed
	out.EstimatedCostUSD = s.cost.Estimate(result.ModelUsed, cost.Usage{
		Input:  result.InputTokens,
		Output: result.OutputTokens,
	})

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fail(err)
	}

	n, err := s.ingest(ctx, tx, item, result)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Warn("fidc: rollback failed", zap.Error(rbErr))
		}
		return fail(err)
	}
	if err := tx.Commit(ctx); err != nil {
		tx.Rollback(ctx) //nolint:errcheck
		return fail(eris.Wrap(err, "fidc: commit"))
	}

	out.Success = true
	out.RecordsWritten = n
	log.Info("fidc: item ingested",
		zap.String("schema", result.SchemaUsed),
		zap.String("model", result.ModelUsed),
		zap.Int("records", n),
	)
	return out
}

func (s *Service) ingest(ctx context.Context, tx store.Tx, item RequestItem, result *agent.Result) (int, error) {
	schemaName := result.SchemaUsed
	if schemaName == "" {
		schemaName = item.Prompt.SchemaName
	}

	assetCode, err := s.store.AssetCodeBySchema(ctx, schemaName)
	if err != nil {
		return 0, err
	}

	proc, err := NewProcessor(schemaName, Deps{Tx: tx, Now: s.now})
	if err != nil {
		return 0, err
	}

	return proc.Process(ctx, Input{
		Report:    result.Value,
		AssetCode: assetCode,
		Filename:  item.Filename,
		Extraction: Extraction{
			ElapsedTime: result.ElapsedTime,
			TokensUsed:  result.TokensUsed,
			Model:       result.ModelUsed,
			Schema:      schemaName,
		},
	})
}
