package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/mesacredito/fidc-cli/internal/db"
	"github.com/mesacredito/fidc-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	cfg   settings
	cache *lookupCache
}

var (
	sqliteUpsertValueSQL = mustUpsertSQL(db.UpsertConfig{
		Table:        "indicator_values",
		Columns:      valueColumns,
		ConflictKeys: valueConflictKeys,
	}, db.Question)

	sqliteUpsertRegistrationSQL = mustUpsertSQL(db.UpsertConfig{
		Table:        "registration_values",
		Columns:      registrationColumns,
		ConflictKeys: registrationConflictKeys,
	}, db.Question)

	sqliteUpsertIndicatorSQL = mustUpsertSQL(db.UpsertConfig{
		Table:        "indicators",
		Columns:      []string{"name", "description", "category", "value_type", "unit"},
		ConflictKeys: []string{"name"},
	}, db.Question)

	sqliteUpsertAssetSQL = mustUpsertSQL(db.UpsertConfig{
		Table:        "assets",
		Columns:      []string{"code", "nickname", "active"},
		ConflictKeys: []string{"code"},
	}, db.Question)

	sqliteUpsertSchemaSQL = mustUpsertSQL(db.UpsertConfig{
		Table:        "model_schemas",
		Columns:      []string{"name", "definition"},
		ConflictKeys: []string{"name"},
	}, db.Question)
)

// sqlitePragmas are set through the DSN so every pooled connection gets them.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// sqliteDSN appends the connection pragmas to dsn.
func sqliteDSN(dsn string) string {
	params := make([]string, len(sqlitePragmas))
	for i, p := range sqlitePragmas {
		params[i] = "_pragma=" + p
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// NewSQLite opens a SQLite database at the given path in WAL mode.
func NewSQLite(dsn string, opts ...Option) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := conn.Ping(); err != nil {
		conn.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "sqlite: connect %s", dsn)
	}
	return &SQLiteStore{db: conn, cfg: newSettings(opts), cache: newLookupCache()}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS assets (
	code     TEXT PRIMARY KEY,
	nickname TEXT NOT NULL,
	active   INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS indicators (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	description TEXT,
	category    TEXT,
	value_type  TEXT NOT NULL DEFAULT 'numeric',
	unit        TEXT
);

CREATE TABLE IF NOT EXISTS indicator_values (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	asset_code     TEXT NOT NULL,
	indicator_id   INTEGER NOT NULL REFERENCES indicators(id),
	value          REAL,
	limit_value    TEXT,
	is_upper_limit INTEGER,
	metadata       TEXT,
	month          TEXT NOT NULL,
	year           INTEGER NOT NULL,
	captured_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (asset_code, indicator_id, month, year)
);

CREATE TABLE IF NOT EXISTS registration_values (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	asset_code   TEXT NOT NULL,
	indicator_id INTEGER NOT NULL REFERENCES indicators(id),
	text_value   TEXT NOT NULL,
	UNIQUE (asset_code, indicator_id)
);

CREATE TABLE IF NOT EXISTS model_schemas (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	definition TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS prompts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	fund_name       TEXT NOT NULL,
	asset_code      TEXT NOT NULL,
	schema_id       INTEGER NOT NULL REFERENCES model_schemas(id),
	models          TEXT NOT NULL DEFAULT '[]',
	system_prompt   TEXT NOT NULL DEFAULT '',
	user_prompt     TEXT NOT NULL DEFAULT '',
	temperature     REAL NOT NULL DEFAULT 0,
	max_tokens      INTEGER NOT NULL DEFAULT 4000,
	retries         INTEGER NOT NULL DEFAULT 2,
	image_mode      INTEGER NOT NULL DEFAULT 0,
	extraction_tool TEXT NOT NULL DEFAULT 'PYPDF',
	extraction_mode TEXT NOT NULL DEFAULT 'RAW',
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (fund_name, schema_id)
);

CREATE INDEX IF NOT EXISTS idx_indicator_values_period ON indicator_values(year, month);
CREATE INDEX IF NOT EXISTS idx_prompts_schema_updated ON prompts(schema_id, updated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ClearCache() {
	s.cache.clear()
}

func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	return &sqliteTx{tx: tx, cfg: s.cfg}, nil
}

func (s *SQLiteStore) AssetCodeBySchema(ctx context.Context, schemaName string) (string, error) {
	return s.cache.get(ctx, schemaName, func(ctx context.Context) (string, error) {
		var code string
		err := s.db.QueryRowContext(ctx,
			`SELECT p.asset_code FROM prompts p
			 JOIN model_schemas s ON s.id = p.schema_id
			 WHERE s.name = ?
			 ORDER BY p.updated_at DESC, p.id DESC LIMIT 1`,
			schemaName,
		).Scan(&code)
		if errors.Is(err, sql.ErrNoRows) {
			return "", eris.Wrapf(ErrAssetCodeNotFound, "schema %s", schemaName)
		}
		if err != nil {
			return "", eris.Wrapf(err, "sqlite: asset code for schema %s", schemaName)
		}
		return code, nil
	})
}

func (s *SQLiteStore) FindPromptsByFund(ctx context.Context, fundName string) ([]model.Prompt, error) {
	q := fundQuery(fundName)
	if q == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.fund_name, p.asset_code, s.name, p.models, p.system_prompt, p.user_prompt,
		        p.temperature, p.max_tokens, p.retries, p.image_mode, p.extraction_tool,
		        p.extraction_mode, p.updated_at
		 FROM prompts p
		 JOIN model_schemas s ON s.id = p.schema_id
		 WHERE instr(lower(replace(p.fund_name, '_', ' ')), ?) > 0
		 ORDER BY p.id`,
		q,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find prompts for %s", fundName)
	}
	defer rows.Close()

	var prompts []model.Prompt
	for rows.Next() {
		var p model.Prompt
		var models string
		if err := rows.Scan(&p.ID, &p.FundName, &p.AssetCode, &p.SchemaName, &models,
			&p.SystemPrompt, &p.UserPrompt, &p.Temperature, &p.MaxTokens, &p.Retries,
			&p.ImageMode, &p.ExtractionTool, &p.ExtractionMode, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prompt")
		}
		if err := decodeModels([]byte(models), &p); err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, eris.Wrap(rows.Err(), "sqlite: find prompts iterate")
}

func (s *SQLiteStore) UpsertPrompts(ctx context.Context, prompts []model.Prompt) (int, error) {
	if len(prompts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin prompt tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.cfg.now().UTC()
	for _, p := range prompts {
		if err := validPrompt(p); err != nil {
			return 0, err
		}
		models, err := json.Marshal(p.Models)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal prompt models")
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO prompts (fund_name, asset_code, schema_id, models, system_prompt, user_prompt,
			     temperature, max_tokens, retries, image_mode, extraction_tool, extraction_mode, updated_at)
			 SELECT ?, ?, s.id, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
			 FROM model_schemas s WHERE s.name = ?
			 ON CONFLICT (fund_name, schema_id) DO UPDATE SET
			     asset_code = excluded.asset_code, models = excluded.models,
			     system_prompt = excluded.system_prompt, user_prompt = excluded.user_prompt,
			     temperature = excluded.temperature, max_tokens = excluded.max_tokens,
			     retries = excluded.retries, image_mode = excluded.image_mode,
			     extraction_tool = excluded.extraction_tool, extraction_mode = excluded.extraction_mode,
			     updated_at = excluded.updated_at`,
			p.FundName, p.AssetCode, string(models), p.SystemPrompt, p.UserPrompt,
			p.Temperature, p.MaxTokens, p.Retries, p.ImageMode,
			string(p.ExtractionTool), string(p.ExtractionMode), now, p.SchemaName,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert prompt %s", p.FundName)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 0 {
			return 0, eris.Errorf("sqlite: schema %s is not registered", p.SchemaName)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit prompts")
	}
	s.cache.clear()
	return len(prompts), nil
}

func (s *SQLiteStore) UpsertAssets(ctx context.Context, assets []model.Asset) (int, error) {
	args := make([][]any, 0, len(assets))
	for _, a := range assets {
		if a.Code == "" {
			return 0, eris.New("sqlite: asset code is required")
		}
		args = append(args, []any{a.Code, a.Nickname, a.Active})
	}
	n, err := s.execEach(ctx, sqliteUpsertAssetSQL, args)
	return int(n), eris.Wrap(err, "sqlite: upsert assets")
}

func (s *SQLiteStore) SaveSchemas(ctx context.Context, schemas []model.SchemaRecord) (int64, error) {
	args := make([][]any, 0, len(schemas))
	for _, sc := range schemas {
		args = append(args, []any{sc.Name, string(sc.Definition)})
	}
	n, err := s.execEach(ctx, sqliteUpsertSchemaSQL, args)
	return n, eris.Wrap(err, "sqlite: save schemas")
}

func (s *SQLiteStore) UpsertIndicators(ctx context.Context, indicators []model.Indicator) (int64, error) {
	args := make([][]any, 0, len(indicators))
	for _, ind := range indicators {
		if err := validIndicator(ind); err != nil {
			return 0, err
		}
		vt := ind.ValueType
		if vt == "" {
			vt = model.ValueTypeNumeric
		}
		args = append(args, []any{ind.Name, ind.Description, ind.Category, string(vt), ind.Unit})
	}
	n, err := s.execEach(ctx, sqliteUpsertIndicatorSQL, args)
	return n, eris.Wrap(err, "sqlite: upsert indicators")
}

// execEach runs one statement per argument row inside a single transaction.
func (s *SQLiteStore) execEach(ctx context.Context, query string, args [][]any) (int64, error) {
	if len(args) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for _, row := range args {
		res, err := tx.ExecContext(ctx, query, row...)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *SQLiteStore) ConsolidatedValues(ctx context.Context) ([]model.ConsolidatedValue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.nickname, i.name, v.value, v.limit_value, v.is_upper_limit, v.metadata,
		        v.month, v.year, v.captured_at
		 FROM indicator_values v
		 JOIN assets a ON a.code = v.asset_code AND a.active = 1
		 JOIN indicators i ON i.id = v.indicator_id
		 ORDER BY a.nickname, i.name, v.year DESC, v.month DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: consolidated values")
	}
	defer rows.Close()

	var out []model.ConsolidatedValue
	for rows.Next() {
		var cv model.ConsolidatedValue
		var value sql.NullFloat64
		var limit, meta sql.NullString
		var upper sql.NullBool
		if err := rows.Scan(&cv.AssetNickname, &cv.IndicatorName, &value, &limit, &upper,
			&meta, &cv.Month, &cv.Year, &cv.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan consolidated value")
		}
		if value.Valid {
			cv.Value = &value.Float64
		}
		if limit.Valid {
			cv.Limit = &limit.String
		}
		if upper.Valid {
			cv.IsUpperLimit = &upper.Bool
		}
		if meta.Valid {
			if cv.Metadata, err = decodeMetadata([]byte(meta.String)); err != nil {
				return nil, err
			}
		}
		out = append(out, cv)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: consolidated values iterate")
}

func (s *SQLiteStore) ConsolidatedRegistrations(ctx context.Context) ([]model.ConsolidatedRegistration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.nickname, i.name, r.text_value
		 FROM registration_values r
		 JOIN assets a ON a.code = r.asset_code AND a.active = 1
		 JOIN indicators i ON i.id = r.indicator_id
		 ORDER BY a.nickname, i.name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: consolidated registrations")
	}
	defer rows.Close()

	var out []model.ConsolidatedRegistration
	for rows.Next() {
		var cr model.ConsolidatedRegistration
		if err := rows.Scan(&cr.AssetNickname, &cr.IndicatorName, &cr.TextValue); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan consolidated registration")
		}
		out = append(out, cr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: consolidated registrations iterate")
}

// sqliteTx is a document-scoped transaction.
type sqliteTx struct {
	tx  *sql.Tx
	cfg settings
}

func (t *sqliteTx) FindIndicatorByName(ctx context.Context, name string) (*model.Indicator, error) {
	return scanSQLiteIndicator(t.tx.QueryRowContext(ctx,
		`SELECT `+indicatorColumns+` FROM indicators
		 WHERE lower(name) = lower(?)
		 ORDER BY id LIMIT 1`,
		name,
	))
}

func (t *sqliteTx) FindIndicatorBySubstring(ctx context.Context, name string) (*model.Indicator, error) {
	return scanSQLiteIndicator(t.tx.QueryRowContext(ctx,
		`SELECT `+indicatorColumns+` FROM indicators
		 WHERE instr(lower(name), lower(?1)) > 0 OR instr(lower(?1), lower(name)) > 0
		 ORDER BY length(name), id LIMIT 1`,
		name,
	))
}

func (t *sqliteTx) UpsertIndicatorValue(ctx context.Context, v model.IndicatorValue) error {
	applyPeriod(&v, t.cfg.now())
	meta, err := encodeMetadata(v.Metadata)
	if err != nil {
		return err
	}
	var metaArg any
	if meta != nil {
		metaArg = string(meta)
	}
	_, err = t.tx.ExecContext(ctx, sqliteUpsertValueSQL,
		v.AssetCode, v.IndicatorID, v.Value, v.Limit, v.IsUpperLimit, metaArg, v.Month, v.Year, v.CapturedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert indicator value %d for %s", v.IndicatorID, v.AssetCode)
}

func (t *sqliteTx) UpsertRegistrationValue(ctx context.Context, v model.RegistrationValue) error {
	_, err := t.tx.ExecContext(ctx, sqliteUpsertRegistrationSQL, v.AssetCode, v.IndicatorID, v.TextValue)
	return eris.Wrapf(err, "sqlite: upsert registration value %d for %s", v.IndicatorID, v.AssetCode)
}

func (t *sqliteTx) Commit(context.Context) error {
	return eris.Wrap(t.tx.Commit(), "sqlite: commit")
}

func (t *sqliteTx) Rollback(context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return eris.Wrap(err, "sqlite: rollback")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteIndicator(row scannable) (*model.Indicator, error) {
	var ind model.Indicator
	err := row.Scan(&ind.ID, &ind.Name, &ind.Description, &ind.Category, &ind.ValueType, &ind.Unit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan indicator")
	}
	return &ind, nil
}
