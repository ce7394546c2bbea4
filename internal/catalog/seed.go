package catalog

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mesacredito/fidc-cli/internal/model"
	"github.com/mesacredito/fidc-cli/internal/schema"
	"github.com/mesacredito/fidc-cli/internal/store"
)

// Prompt defaults applied when the seed file leaves a field out.
const (
	DefaultRetries   = 2
	DefaultMaxTokens = 4000
)

// Seed is the asset and prompt catalog file.
type Seed struct {
	Assets  []model.Asset  `yaml:"assets"`
	Prompts []model.Prompt `yaml:"prompts"`
}

// seedFile is the on-disk form. Assets are active unless marked otherwise.
type seedFile struct {
	Assets []struct {
		Code     string `yaml:"code"`
		Nickname string `yaml:"nickname"`
		Active   *bool  `yaml:"active"`
	} `yaml:"assets"`
	Prompts []model.Prompt `yaml:"prompts"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read seed %s", path)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "catalog: parse seed")
	}

	s := Seed{Prompts: file.Prompts}
	for _, a := range file.Assets {
		active := a.Active == nil || *a.Active
		s.Assets = append(s.Assets, model.Asset{Code: a.Code, Nickname: a.Nickname, Active: active})
	}

	for i := range s.Prompts {
		applyPromptDefaults(&s.Prompts[i])
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func applyPromptDefaults(p *model.Prompt) {
	if p.Retries == 0 {
		p.Retries = DefaultRetries
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.ExtractionTool == "" {
		p.ExtractionTool = model.ToolPyPDF
	}
	if p.ExtractionMode == "" {
		p.ExtractionMode = model.ModeMarkdown
	}
	p.ExtractionTool = model.ExtractionTool(strings.ToUpper(string(p.ExtractionTool)))
	p.ExtractionMode = model.ExtractionMode(strings.ToUpper(string(p.ExtractionMode)))
	if strings.HasSuffix(p.SchemaName, "_image") {
		p.ImageMode = true
	}
}

// Validate checks prompts against the schema registry and the asset list.
func (s *Seed) Validate() error {
	reg := schema.Default()
	assets := make(map[string]bool, len(s.Assets))
	for _, a := range s.Assets {
		if a.Code == "" {
			return eris.New("catalog: asset without code")
		}
		assets[a.Code] = true
	}

	var errs []string
	for _, p := range s.Prompts {
		if _, err := reg.Resolve(p.SchemaName); err != nil {
			errs = append(errs, err.Error())
		}
		if len(assets) > 0 && !assets[p.AssetCode] {
			errs = append(errs, "prompt "+p.FundName+": asset "+p.AssetCode+" is not in the seed")
		}
		switch p.ExtractionTool {
		case model.ToolDocling, model.ToolPyPDF, model.ToolDocx2Txt:
		default:
			errs = append(errs, "prompt "+p.FundName+": unknown extraction tool "+string(p.ExtractionTool))
		}
		switch p.ExtractionMode {
		case model.ModeMarkdown, model.ModeRaw, model.ModeImages:
		default:
			errs = append(errs, "prompt "+p.FundName+": unknown extraction mode "+string(p.ExtractionMode))
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("catalog: invalid seed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SeedResult counts what Apply wrote.
type SeedResult struct {
	Schemas int64
	Assets  int
	Prompts int
}

// Apply syncs the schema audit table, then upserts assets and prompts.
// Schemas go first because prompts reference them by name.
func Apply(ctx context.Context, st store.Store, s *Seed) (SeedResult, error) {
	var res SeedResult

	n, err := SyncSchemas(ctx, st)
	if err != nil {
		return res, err
	}
	res.Schemas = n

	if res.Assets, err = st.UpsertAssets(ctx, s.Assets); err != nil {
		return res, eris.Wrap(err, "catalog: seed assets")
	}
	if res.Prompts, err = st.UpsertPrompts(ctx, s.Prompts); err != nil {
		return res, eris.Wrap(err, "catalog: seed prompts")
	}

	zap.L().Info("catalog: seed applied",
		zap.Int64("schemas", res.Schemas),
		zap.Int("assets", res.Assets),
		zap.Int("prompts", res.Prompts),
	)
	return res, nil
}

// SyncSchemas persists the audit copy of every registered schema.
func SyncSchemas(ctx context.Context, st store.Store) (int64, error) {
	recs, err := schema.Default().Records()
	if err != nil {
		return 0, err
	}
	n, err := st.SaveSchemas(ctx, recs)
	if err != nil {
		return 0, eris.Wrap(err, "catalog: save schemas")
	}
	return n, nil
}

// SeedIndicators loads the spreadsheet and upserts the indicator catalog.
func SeedIndicators(ctx context.Context, st store.Store, path string, opts XLSXOptions) (int64, error) {
	inds, err := LoadIndicators(path, opts)
	if err != nil {
		return 0, err
	}
	n, err := st.UpsertIndicators(ctx, inds)
	if err != nil {
		return 0, eris.Wrap(err, "catalog: upsert indicators")
	}
	zap.L().Info("catalog: indicators seeded", zap.String("file", path), zap.Int64("rows", n))
	return n, nil
}
