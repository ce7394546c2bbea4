package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/mesacredito/fidc-cli/internal/db"
	"github.com/mesacredito/fidc-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	cfg     settings
	cache   *lookupCache
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const indicatorColumns = `id, name, coalesce(description, ''), coalesce(category, ''), value_type, coalesce(unit, '')`

var (
	pgUpsertValueSQL = mustUpsertSQL(db.UpsertConfig{
		Table:        "fidc.indicator_values",
		Columns:      valueColumns,
		ConflictKeys: valueConflictKeys,
	}, db.Dollar)

	pgUpsertRegistrationSQL = mustUpsertSQL(db.UpsertConfig{
		Table:        "fidc.registration_values",
		Columns:      registrationColumns,
		ConflictKeys: registrationConflictKeys,
	}, db.Dollar)
)

var (
	valueColumns             = []string{"asset_code", "indicator_id", "value", "limit_value", "is_upper_limit", "metadata", "month", "year", "captured_at"}
	valueConflictKeys        = []string{"asset_code", "indicator_id", "month", "year"}
	registrationColumns      = []string{"asset_code", "indicator_id", "text_value"}
	registrationConflictKeys = []string{"asset_code", "indicator_id"}
)

func mustUpsertSQL(cfg db.UpsertConfig, style int) string {
	sql, err := db.UpsertSQL(cfg, style)
	if err != nil {
		panic(err)
	}
	return sql
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, opts ...Option) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresWithPool(pool, opts...), nil
}

func newPostgresWithPool(pool db.Pool, opts ...Option) *PostgresStore {
	return &PostgresStore{
		pool:    pool,
		closeFn: pool.Close,
		cfg:     newSettings(opts),
		cache:   newLookupCache(),
	}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return MigratePostgres(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ClearCache() {
	s.cache.clear()
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin tx")
	}
	return &pgTx{tx: tx, cfg: s.cfg}, nil
}

func (s *PostgresStore) AssetCodeBySchema(ctx context.Context, schemaName string) (string, error) {
	return s.cache.get(ctx, schemaName, func(ctx context.Context) (string, error) {
		var code string
		err := s.pool.QueryRow(ctx,
			`SELECT p.asset_code FROM fidc.prompts p
			 JOIN fidc.model_schemas s ON s.id = p.schema_id
			 WHERE s.name = $1
			 ORDER BY p.updated_at DESC, p.id DESC LIMIT 1`,
			schemaName,
		).Scan(&code)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", eris.Wrapf(ErrAssetCodeNotFound, "schema %s", schemaName)
		}
		if err != nil {
			return "", eris.Wrapf(err, "postgres: asset code for schema %s", schemaName)
		}
		return code, nil
	})
}

func (s *PostgresStore) FindPromptsByFund(ctx context.Context, fundName string) ([]model.Prompt, error) {
	q := fundQuery(fundName)
	if q == "" {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.fund_name, p.asset_code, s.name, p.models, p.system_prompt, p.user_prompt,
		        p.temperature, p.max_tokens, p.retries, p.image_mode, p.extraction_tool,
		        p.extraction_mode, p.updated_at
		 FROM fidc.prompts p
		 JOIN fidc.model_schemas s ON s.id = p.schema_id
		 WHERE strpos(lower(replace(p.fund_name, '_', ' ')), $1) > 0
		 ORDER BY p.id`,
		q,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find prompts for %s", fundName)
	}
	defer rows.Close()

	var prompts []model.Prompt
	for rows.Next() {
		var p model.Prompt
		var models []byte
		if err := rows.Scan(&p.ID, &p.FundName, &p.AssetCode, &p.SchemaName, &models,
			&p.SystemPrompt, &p.UserPrompt, &p.Temperature, &p.MaxTokens, &p.Retries,
			&p.ImageMode, &p.ExtractionTool, &p.ExtractionMode, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prompt")
		}
		if err := decodeModels(models, &p); err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, eris.Wrap(rows.Err(), "postgres: find prompts iterate")
}

func (s *PostgresStore) UpsertPrompts(ctx context.Context, prompts []model.Prompt) (int, error) {
	if len(prompts) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin prompt tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := s.cfg.now().UTC()
	for _, p := range prompts {
		if err := validPrompt(p); err != nil {
			return 0, err
		}
		models, err := json.Marshal(p.Models)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal prompt models")
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO fidc.prompts (fund_name, asset_code, schema_id, models, system_prompt, user_prompt,
			     temperature, max_tokens, retries, image_mode, extraction_tool, extraction_mode, updated_at)
			 SELECT $1, $2, s.id, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
			 FROM fidc.model_schemas s WHERE s.name = $3
			 ON CONFLICT (fund_name, schema_id) DO UPDATE SET
			     asset_code = EXCLUDED.asset_code, models = EXCLUDED.models,
			     system_prompt = EXCLUDED.system_prompt, user_prompt = EXCLUDED.user_prompt,
			     temperature = EXCLUDED.temperature, max_tokens = EXCLUDED.max_tokens,
			     retries = EXCLUDED.retries, image_mode = EXCLUDED.image_mode,
			     extraction_tool = EXCLUDED.extraction_tool, extraction_mode = EXCLUDED.extraction_mode,
			     updated_at = EXCLUDED.updated_at`,
			p.FundName, p.AssetCode, p.SchemaName, models, p.SystemPrompt, p.UserPrompt,
			p.Temperature, p.MaxTokens, p.Retries, p.ImageMode,
			string(p.ExtractionTool), string(p.ExtractionMode), now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert prompt %s", p.FundName)
		}
		if tag.RowsAffected() == 0 {
			return 0, eris.Errorf("postgres: schema %s is not registered", p.SchemaName)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit prompts")
	}
	s.cache.clear()
	return len(prompts), nil
}

func (s *PostgresStore) UpsertAssets(ctx context.Context, assets []model.Asset) (int, error) {
	rows := make([][]any, 0, len(assets))
	for _, a := range assets {
		if a.Code == "" {
			return 0, eris.New("postgres: asset code is required")
		}
		rows = append(rows, []any{a.Code, a.Nickname, a.Active})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "fidc.assets",
		Columns:      []string{"code", "nickname", "active"},
		ConflictKeys: []string{"code"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert assets")
	}
	return int(n), nil
}

func (s *PostgresStore) SaveSchemas(ctx context.Context, schemas []model.SchemaRecord) (int64, error) {
	rows := make([][]any, 0, len(schemas))
	for _, sc := range schemas {
		rows = append(rows, []any{sc.Name, []byte(sc.Definition)})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "fidc.model_schemas",
		Columns:      []string{"name", "definition"},
		ConflictKeys: []string{"name"},
	}, rows)
	return n, eris.Wrap(err, "postgres: save schemas")
}

func (s *PostgresStore) UpsertIndicators(ctx context.Context, indicators []model.Indicator) (int64, error) {
	rows := make([][]any, 0, len(indicators))
	for _, ind := range indicators {
		if err := validIndicator(ind); err != nil {
			return 0, err
		}
		vt := ind.ValueType
		if vt == "" {
			vt = model.ValueTypeNumeric
		}
		rows = append(rows, []any{ind.Name, ind.Description, ind.Category, string(vt), ind.Unit})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "fidc.indicators",
		Columns:      []string{"name", "description", "category", "value_type", "unit"},
		ConflictKeys: []string{"name"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert indicators")
}

func (s *PostgresStore) ConsolidatedValues(ctx context.Context) ([]model.ConsolidatedValue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.nickname, i.name, v.value, v.limit_value, v.is_upper_limit, v.metadata,
		        v.month, v.year, v.captured_at
		 FROM fidc.indicator_values v
		 JOIN fidc.assets a ON a.code = v.asset_code AND a.active
		 JOIN fidc.indicators i ON i.id = v.indicator_id
		 ORDER BY a.nickname, i.name, v.year DESC, v.month DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: consolidated values")
	}
	defer rows.Close()

	var out []model.ConsolidatedValue
	for rows.Next() {
		var cv model.ConsolidatedValue
		var meta []byte
		if err := rows.Scan(&cv.AssetNickname, &cv.IndicatorName, &cv.Value, &cv.Limit,
			&cv.IsUpperLimit, &meta, &cv.Month, &cv.Year, &cv.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan consolidated value")
		}
		if cv.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		out = append(out, cv)
	}
	return out, eris.Wrap(rows.Err(), "postgres: consolidated values iterate")
}

func (s *PostgresStore) ConsolidatedRegistrations(ctx context.Context) ([]model.ConsolidatedRegistration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.nickname, i.name, r.text_value
		 FROM fidc.registration_values r
		 JOIN fidc.assets a ON a.code = r.asset_code AND a.active
		 JOIN fidc.indicators i ON i.id = r.indicator_id
		 ORDER BY a.nickname, i.name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: consolidated registrations")
	}
	defer rows.Close()

	var out []model.ConsolidatedRegistration
	for rows.Next() {
		var cr model.ConsolidatedRegistration
		if err := rows.Scan(&cr.AssetNickname, &cr.IndicatorName, &cr.TextValue); err != nil {
			return nil, eris.Wrap(err, "postgres: scan consolidated registration")
		}
		out = append(out, cr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: consolidated registrations iterate")
}

// pgTx is a document-scoped transaction.
type pgTx struct {
	tx  pgx.Tx
	cfg settings
}

func (t *pgTx) FindIndicatorByName(ctx context.Context, name string) (*model.Indicator, error) {
	return scanPgIndicator(t.tx.QueryRow(ctx,
		`SELECT `+indicatorColumns+` FROM fidc.indicators
		 WHERE lower(name) = lower($1)
		 ORDER BY id LIMIT 1`,
		name,
	))
}

func (t *pgTx) FindIndicatorBySubstring(ctx context.Context, name string) (*model.Indicator, error) {
	return scanPgIndicator(t.tx.QueryRow(ctx,
		`SELECT `+indicatorColumns+` FROM fidc.indicators
		 WHERE strpos(lower(name), lower($1)) > 0 OR strpos(lower($1), lower(name)) > 0
		 ORDER BY length(name), id LIMIT 1`,
		name,
	))
}

func (t *pgTx) UpsertIndicatorValue(ctx context.Context, v model.IndicatorValue) error {
	applyPeriod(&v, t.cfg.now())
	meta, err := encodeMetadata(v.Metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, pgUpsertValueSQL,
		v.AssetCode, v.IndicatorID, v.Value, v.Limit, v.IsUpperLimit, meta, v.Month, v.Year, v.CapturedAt,
	)
	return eris.Wrapf(err, "postgres: upsert indicator value %d for %s", v.IndicatorID, v.AssetCode)
}

func (t *pgTx) UpsertRegistrationValue(ctx context.Context, v model.RegistrationValue) error {
	_, err := t.tx.Exec(ctx, pgUpsertRegistrationSQL, v.AssetCode, v.IndicatorID, v.TextValue)
	return eris.Wrapf(err, "postgres: upsert registration value %d for %s", v.IndicatorID, v.AssetCode)
}

func (t *pgTx) Commit(ctx context.Context) error {
	return eris.Wrap(t.tx.Commit(ctx), "postgres: commit")
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return eris.Wrap(err, "postgres: rollback")
}

func scanPgIndicator(row pgx.Row) (*model.Indicator, error) {
	var ind model.Indicator
	err := row.Scan(&ind.ID, &ind.Name, &ind.Description, &ind.Category, &ind.ValueType, &ind.Unit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan indicator")
	}
	return &ind, nil
}

func encodeMetadata(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal metadata")
	}
	return b, nil
}

func decodeMetadata(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal(b, &meta); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal metadata")
	}
	return meta, nil
}

func decodeModels(b []byte, p *model.Prompt) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, &p.Models); err != nil {
		return eris.Wrapf(err, "store: unmarshal models for prompt %d", p.ID)
	}
	return nil
}
