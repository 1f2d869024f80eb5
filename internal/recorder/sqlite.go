package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"PriceSentinel/internal/model"
)

// SQLiteRecorder persists records to a SQLite database. Each row keeps its key columns
// plus the full record as JSON.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so dashboards can read while the sentinel writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS elasticity_results (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			product_id  TEXT NOT NULL,
			coefficient REAL,
			confidence  REAL,
			fallback    INTEGER,
			payload     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_elasticity_product ON elasticity_results(product_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS revenue_forecasts (
			id               TEXT PRIMARY KEY,
			timestamp        INTEGER NOT NULL,
			product_id       TEXT NOT NULL,
			proposed_price   REAL,
			expected_revenue REAL,
			confidence       REAL,
			payload          TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forecast_product ON revenue_forecasts(product_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS forecast_variance (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			forecast_id  TEXT NOT NULL,
			product_id   TEXT NOT NULL,
			variance_pct REAL,
			payload      TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS stockout_predictions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			product_id  TEXT NOT NULL,
			location_id TEXT NOT NULL,
			hours       REAL,
			unbounded   INTEGER,
			confidence  REAL,
			payload     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stockout_product ON stockout_predictions(product_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS reorders (
			id          TEXT PRIMARY KEY,
			timestamp   INTEGER NOT NULL,
			product_id  TEXT NOT NULL,
			location_id TEXT NOT NULL,
			quantity    REAL,
			urgency     TEXT,
			payload     TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS recommendations (
			id                TEXT PRIMARY KEY,
			timestamp         INTEGER NOT NULL,
			product_id        TEXT NOT NULL,
			status            TEXT,
			recommended_price REAL,
			strategy          TEXT,
			confidence        REAL,
			payload           TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recommendation_product ON recommendations(product_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS pricing_rules (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			rule_id   TEXT NOT NULL,
			enabled   INTEGER,
			payload   TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS price_changes (
			id          TEXT PRIMARY KEY,
			timestamp   INTEGER NOT NULL,
			product_id  TEXT NOT NULL,
			actor       TEXT,
			old_price   REAL,
			new_price   REAL,
			new_version INTEGER,
			payload     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_change_product ON price_changes(product_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS audit_log (
			id            TEXT PRIMARY KEY,
			timestamp     INTEGER NOT NULL,
			actor         TEXT,
			action        TEXT,
			resource_type TEXT,
			resource_id   TEXT,
			before_value  TEXT,
			after_value   TEXT,
			detail        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_log(resource_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS alerts (
			id          TEXT PRIMARY KEY,
			timestamp   INTEGER NOT NULL,
			type        TEXT,
			severity    TEXT,
			occurrences INTEGER,
			payload     TEXT
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteRecorder) insert(ctx context.Context, query string, record any, args ...any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.db.ExecContext(ctx, query, append(args, string(payload))...)
	return err
}

func (r *SQLiteRecorder) RecordElasticity(ctx context.Context, res *model.ElasticityResult) error {
	return r.insert(ctx, `INSERT INTO elasticity_results
		(timestamp, product_id, coefficient, confidence, fallback, payload)
		VALUES (?,?,?,?,?,?)`, res,
		res.ComputedAt.Unix(), res.ProductID, res.Coefficient, res.ConfidenceScore, res.FallbackUsed,
	)
}

func (r *SQLiteRecorder) RecordForecast(ctx context.Context, f *model.RevenueForecast) error {
	return r.insert(ctx, `INSERT INTO revenue_forecasts
		(id, timestamp, product_id, proposed_price, expected_revenue, confidence, payload)
		VALUES (?,?,?,?,?,?,?)`, f,
		f.ID, f.IssuedAt.Unix(), f.ProductID, f.ProposedPrice, f.ExpectedRevenue, f.Confidence,
	)
}

func (r *SQLiteRecorder) RecordVariance(ctx context.Context, v *model.VarianceRecord) error {
	return r.insert(ctx, `INSERT INTO forecast_variance
		(timestamp, forecast_id, product_id, variance_pct, payload)
		VALUES (?,?,?,?,?)`, v,
		v.RecordedAt.Unix(), v.ForecastID, v.ProductID, v.VariancePct,
	)
}

func (r *SQLiteRecorder) RecordStockout(ctx context.Context, p *model.StockoutPrediction) error {
	return r.insert(ctx, `INSERT INTO stockout_predictions
		(timestamp, product_id, location_id, hours, unbounded, confidence, payload)
		VALUES (?,?,?,?,?,?,?)`, p,
		p.PredictedAt.Unix(), p.ProductID, p.LocationID, p.HoursToStockout, p.Unbounded, p.Confidence,
	)
}

func (r *SQLiteRecorder) RecordReorder(ctx context.Context, ro *model.ReorderRecommendation) error {
	return r.insert(ctx, `INSERT INTO reorders
		(id, timestamp, product_id, location_id, quantity, urgency, payload)
		VALUES (?,?,?,?,?,?,?)`, ro,
		ro.ID, ro.CreatedAt.Unix(), ro.ProductID, ro.LocationID, ro.Quantity, string(ro.Urgency),
	)
}

func (r *SQLiteRecorder) RecordRecommendation(ctx context.Context, rec *model.PricingRecommendation) error {
	return r.insert(ctx, `INSERT INTO recommendations
		(id, timestamp, product_id, status, recommended_price, strategy, confidence, payload)
		VALUES (?,?,?,?,?,?,?,?)`, rec,
		rec.ID, rec.GeneratedAt.Unix(), rec.ProductID, string(rec.Status), rec.RecommendedPrice,
		string(rec.Strategy), rec.ConfidenceScore,
	)
}

func (r *SQLiteRecorder) RecordRule(ctx context.Context, rule *model.PricingRule) error {
	ts := rule.CreatedAt
	if !rule.DisabledAt.IsZero() {
		ts = rule.DisabledAt
	}
	return r.insert(ctx, `INSERT INTO pricing_rules
		(timestamp, rule_id, enabled, payload)
		VALUES (?,?,?,?)`, rule,
		ts.Unix(), rule.ID, rule.Enabled,
	)
}

func (r *SQLiteRecorder) RecordAlert(ctx context.Context, a *model.Alert) error {
	return r.insert(ctx, `INSERT INTO alerts
		(id, timestamp, type, severity, occurrences, payload)
		VALUES (?,?,?,?,?,?)`, a,
		a.ID, a.CreatedAt.Unix(), string(a.Type), string(a.Severity), a.Occurrences,
	)
}

func (r *SQLiteRecorder) RecordAudit(ctx context.Context, entry *model.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return insertAudit(ctx, r.db, entry)
}

func insertAudit(ctx context.Context, db execer, e *model.AuditLogEntry) error {
	_, err := db.ExecContext(ctx, `INSERT INTO audit_log
		(id, timestamp, actor, action, resource_type, resource_id, before_value, after_value, detail)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Timestamp.Unix(), e.Actor, string(e.Action), e.ResourceType, e.ResourceID,
		e.Before, e.After, e.Detail,
	)
	return err
}

func (r *SQLiteRecorder) RecordPriceChange(ctx context.Context, change *model.PriceChange, entry *model.AuditLogEntry, apply func() error) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal price change: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO price_changes
		(id, timestamp, product_id, actor, old_price, new_price, new_version, payload)
		VALUES (?,?,?,?,?,?,?,?)`,
		change.ID, change.ExecutedAt.Unix(), change.ProductID, change.Actor,
		change.OldPrice, change.NewPrice, change.NewVersion, string(payload),
	); err != nil {
		return fmt.Errorf("insert price change: %w", err)
	}
	if err := insertAudit(ctx, tx, entry); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if err := apply(); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) Recommendations(ctx context.Context, productID string, limit int) ([]model.PricingRecommendation, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT payload FROM recommendations
		WHERE product_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PricingRecommendation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec model.PricingRecommendation
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode recommendation: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
