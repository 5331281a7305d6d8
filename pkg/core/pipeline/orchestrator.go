// Package pipeline runs the resolution stages for a company:
// anchors → derived variables → validation → debt triangulation →
// reconciliation. Each run works on its own copy of the input bundle.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lineitem_engine/pkg/core/anchor"
	"lineitem_engine/pkg/core/debt"
	"lineitem_engine/pkg/core/derive"
	"lineitem_engine/pkg/core/reconcile"
	"lineitem_engine/pkg/core/rules"
	"lineitem_engine/pkg/core/validate"
	"lineitem_engine/pkg/models"
)

// DefaultConcurrency bounds RunBatch when no limit is given.
const DefaultConcurrency = 4

// Repository persists finished reports. Save errors are logged and do not
// fail the run.
type Repository interface {
	Save(ctx context.Context, r *Report) error
}

// Report is the full output of one run.
type Report struct {
	RunID          string                              `json:"run_id"`
	Company        string                              `json:"company"`
	RulesVersion   string                              `json:"rules_version"`
	Anchors        models.Anchors                      `json:"anchors"`
	MissingAnchors []models.Role                       `json:"missing_anchors,omitempty"`
	Computed       map[string]*models.ComputedVariable `json:"computed_variables"`
	Validation     []validate.Result                   `json:"validation"`
	Triangulation  debt.Triangulation                  `json:"debt_triangulation"`
	Reconciliation reconcile.Report                    `json:"reconciliation"`
	CreatedAt      time.Time                           `json:"created_at"`
}

// Passed counts the validation results that passed.
func (r *Report) Passed() int {
	n := 0
	for _, v := range r.Validation {
		if v.Passed() {
			n++
		}
	}
	return n
}

// Options configures an Engine.
type Options struct {
	Table       *rules.Table
	Matcher     validate.LabelMatcher
	Tolerances  reconcile.Tolerances
	AssumedRate float64
	Repository  Repository
}

// Engine wires the stage engines together.
type Engine struct {
	table      *rules.Table
	resolver   *anchor.Resolver
	validator  *validate.Validator
	debt       *debt.Engine
	reconciler *reconcile.Engine
	repo       Repository
	now        func() time.Time
}

// NewEngine creates an engine. A nil table uses the embedded default.
func NewEngine(opts Options) (*Engine, error) {
	table := opts.Table
	if table == nil {
		var err error
		if table, err = rules.Default(); err != nil {
			return nil, eris.Wrap(err, "pipeline: load default rules")
		}
	}
	return &Engine{
		table:      table,
		resolver:   anchor.NewResolver(table),
		validator:  validate.NewValidator(table, opts.Matcher),
		debt:       debt.NewEngine(opts.AssumedRate),
		reconciler: reconcile.NewEngine(opts.Tolerances),
		repo:       opts.Repository,
		now:        time.Now,
	}, nil
}

// SetRepository allows injecting a repository after construction.
func (e *Engine) SetRepository(repo Repository) {
	e.repo = repo
}

// Table returns the rule table in use.
func (e *Engine) Table() *rules.Table {
	return e.table
}

// Run executes every stage for one company. An empty variables list
// validates every variable in the rule table.
func (e *Engine) Run(ctx context.Context, company string, bundle *models.Bundle, variables []string) (*Report, error) {
	if bundle == nil {
		return nil, eris.New("pipeline: nil bundle")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: run cancelled")
	}
	start := time.Now()
	b := bundle.Clone()

	st := e.analyze(ctx, b, variables)
	tri := e.debt.Triangulate(debt.Input{
		Items:       b.All(),
		Assignments: st.res.Assignments,
		Validated:   st.validated,
	})

	report := &Report{
		RunID:          uuid.NewString(),
		Company:        company,
		RulesVersion:   st.res.RulesVersion,
		Anchors:        st.res.Anchors,
		MissingAnchors: st.res.Missing,
		Computed:       st.computed,
		Validation:     st.results,
		Triangulation:  tri,
		Reconciliation: e.reconciler.Run(st.res.Anchors),
		CreatedAt:      e.now().UTC(),
	}

	zap.L().Info("pipeline: run complete",
		zap.String("company", company),
		zap.String("run_id", report.RunID),
		zap.Int("anchors", len(report.Anchors)),
		zap.Int("passed", report.Passed()),
		zap.Int("variables", len(st.results)),
		zap.String("reconciliation", string(report.Reconciliation.OverallStatus)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if e.repo != nil {
		if err := e.repo.Save(ctx, report); err != nil {
			zap.L().Warn("pipeline: failed to save report", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}
	return report, nil
}

// Triangulate runs the stages debt triangulation depends on and
// triangulates at period against prior. Empty periods default to the two
// latest balance-sheet periods.
func (e *Engine) Triangulate(ctx context.Context, bundle *models.Bundle, period, prior string) (debt.Triangulation, error) {
	if bundle == nil {
		return debt.Triangulation{}, eris.New("pipeline: nil bundle")
	}
	if err := ctx.Err(); err != nil {
		return debt.Triangulation{}, eris.Wrap(err, "pipeline: triangulate cancelled")
	}
	b := bundle.Clone()
	st := e.analyze(ctx, b, nil)
	return e.debt.Triangulate(debt.Input{
		Items:       b.All(),
		Assignments: st.res.Assignments,
		Validated:   st.validated,
		Period:      period,
		PriorPeriod: prior,
	}), nil
}

// stages holds the outputs shared by Run and Triangulate.
type stages struct {
	res       *anchor.Resolution
	computed  map[string]*models.ComputedVariable
	results   []validate.Result
	validated map[string]models.Periods
}

func (e *Engine) analyze(ctx context.Context, b *models.Bundle, variables []string) stages {
	res := e.resolver.Resolve(b)
	computed := derive.All(res.Anchors)
	results := e.validator.ValidateAll(ctx, validate.Input{
		Bundle:      b,
		Assignments: res.Assignments,
		Anchors:     res.Anchors,
		Computed:    computed,
	}, variables)

	validated := make(map[string]models.Periods, len(results))
	for _, r := range results {
		if p := r.Periods(); len(p) > 0 {
			validated[r.Variable] = p
		}
	}
	return stages{res: res, computed: computed, results: results, validated: validated}
}

// =============================================================================
// BATCH
// =============================================================================

// Job is one company's input for RunBatch.
type Job struct {
	Company   string
	Bundle    *models.Bundle
	Variables []string
}

// BatchResult pairs a job with its outcome. Err is set instead of Report
// when the run failed.
type BatchResult struct {
	Company string
	Report  *Report
	Err     error
}

// RunBatch runs jobs with at most concurrency workers. Results keep job
// order. A failing job does not stop the others; only context
// cancellation is returned as an error.
func (e *Engine) RunBatch(ctx context.Context, jobs []Job, concurrency int) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	results := make([]BatchResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = BatchResult{Company: job.Company, Err: err}
				return nil
			}
			// each worker owns its copy
			report, err := e.Run(gctx, job.Company, job.Bundle.Clone(), job.Variables)
			if err != nil {
				zap.L().Warn("pipeline: job failed", zap.String("company", job.Company), zap.Error(err))
			}
			results[i] = BatchResult{Company: job.Company, Report: report, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, eris.Wrap(err, "pipeline: batch")
	}
	if err := ctx.Err(); err != nil {
		return results, eris.Wrap(err, "pipeline: batch cancelled")
	}
	return results, nil
}
