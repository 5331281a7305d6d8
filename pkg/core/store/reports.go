// Package store persists pipeline reports. It is a hybrid vault: Postgres
// is primary when configured, and JSON files in a directory serve as the
// local fallback.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"lineitem_engine/pkg/core/pipeline"
)

// ErrNotFound is returned when no report matches.
var ErrNotFound = eris.New("store: report not found")

// DefaultDir is the file vault used when neither a pool nor a directory
// is configured.
var DefaultDir = filepath.Join(".cache", "resolver", "reports")

// Pool is the subset of pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const schema = `CREATE TABLE IF NOT EXISTS resolution_reports (
	run_id     TEXT PRIMARY KEY,
	company    TEXT NOT NULL,
	report     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS resolution_reports_company_idx ON resolution_reports (company, created_at DESC)`

// ReportStore saves and loads reports.
type ReportStore struct {
	pool Pool
	dir  string
}

var _ pipeline.Repository = (*ReportStore)(nil)

// New creates a store over pool and/or dir. With neither, DefaultDir is
// used.
func New(pool Pool, dir string) *ReportStore {
	if pool == nil && dir == "" {
		dir = DefaultDir
	}
	return &ReportStore{pool: pool, dir: dir}
}

// Open connects to databaseURL when set and creates the schema.
// Otherwise the store is file-backed.
func Open(ctx context.Context, databaseURL, dir string) (*ReportStore, error) {
	if databaseURL == "" {
		return New(nil, dir), nil
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse database url")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping")
	}
	s := New(pool, dir)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the reports table if needed. It is a no-op without a
// pool.
func (s *ReportStore) Migrate(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return eris.Wrap(err, "store: migrate")
	}
	return nil
}

// Close releases the pool, if any.
func (s *ReportStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Save upserts a report by run ID into every configured backend.
func (s *ReportStore) Save(ctx context.Context, r *pipeline.Report) error {
	if r == nil || r.RunID == "" {
		return eris.New("store: report has no run id")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "store: marshal report")
	}

	if s.pool != nil {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO resolution_reports (run_id, company, report, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (run_id) DO UPDATE SET
				company = EXCLUDED.company,
				report = EXCLUDED.report,
				created_at = EXCLUDED.created_at`,
			r.RunID, r.Company, data, r.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "store: save report %s", r.RunID)
		}
	}

	if s.dir != "" {
		path := s.reportPath(r.Company, r.RunID)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return eris.Wrap(err, "store: create report dir")
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return eris.Wrapf(err, "store: write %s", path)
		}
	}
	zap.L().Debug("store: saved report", zap.String("run_id", r.RunID), zap.String("company", r.Company))
	return nil
}

// Get loads a report by run ID. The database is authoritative when
// configured.
func (s *ReportStore) Get(ctx context.Context, runID string) (*pipeline.Report, error) {
	if s.pool != nil {
		return s.queryOne(ctx, `SELECT report FROM resolution_reports WHERE run_id = $1`, runID)
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, "*", safeName(runID)+".json"))
	if err != nil || len(matches) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return readReport(matches[0])
}

// Latest loads the most recent report for a company.
func (s *ReportStore) Latest(ctx context.Context, company string) (*pipeline.Report, error) {
	if s.pool != nil {
		return s.queryOne(ctx,
			`SELECT report FROM resolution_reports WHERE company = $1 ORDER BY created_at DESC LIMIT 1`,
			company)
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, safeName(company)))
	if err != nil {
		return nil, eris.Wrapf(ErrNotFound, "company %s", company)
	}
	var latest *pipeline.Report
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		r, err := readReport(filepath.Join(s.dir, safeName(company), e.Name()))
		if err != nil {
			zap.L().Warn("store: skipping unreadable report", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, eris.Wrapf(ErrNotFound, "company %s", company)
	}
	return latest, nil
}

func (s *ReportStore) queryOne(ctx context.Context, sql string, arg string) (*pipeline.Report, error) {
	var data []byte
	if err := s.pool.QueryRow(ctx, sql, arg).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "%s", arg)
		}
		return nil, eris.Wrapf(err, "store: query %s", arg)
	}
	var r pipeline.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal report")
	}
	return &r, nil
}

func (s *ReportStore) reportPath(company, runID string) string {
	return filepath.Join(s.dir, safeName(company), safeName(runID)+".json")
}

func readReport(path string) (*pipeline.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read %s", path)
	}
	var r pipeline.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrapf(err, "store: decode %s", path)
	}
	return &r, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeName keeps file names portable.
func safeName(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
