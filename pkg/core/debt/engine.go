package debt

import (
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"lineitem_engine/pkg/models"
)

// DefaultAssumedRate is the average cost of debt used by the
// interest-implied method.
const DefaultAssumedRate = 0.06

// Validated variable names the engine falls back to.
const (
	VarDebtAmount       = "Debt Amount"
	VarTotalLiabilities = "Total Liabilities"
	VarInterestExpense  = "Interest Expense"
)

// Input is the evidence for one company.
type Input struct {
	// Items holds line items from all statements, consolidated and
	// segment facts alike.
	Items []models.LineItem
	// Assignments supplies effective roles for items; may be nil.
	Assignments *models.Assignments
	// Validated holds resolved series by variable name.
	Validated map[string]models.Periods

	Period      string
	PriorPeriod string
}

// Engine runs the five estimators.
type Engine struct {
	rate float64
}

// NewEngine creates an engine. A non-positive rate uses the default.
func NewEngine(assumedRate float64) *Engine {
	if assumedRate <= 0 {
		assumedRate = DefaultAssumedRate
	}
	return &Engine{rate: assumedRate}
}

// Triangulate runs every method for in.Period and aggregates them. When
// no period is given, the latest balance sheet period is used and its
// predecessor becomes the prior period.
func (e *Engine) Triangulate(in Input) Triangulation {
	if in.Period == "" {
		in.Period, in.PriorPeriod = LatestPeriods(in.Items)
	}
	ev := newEvidence(in)
	methods := []MethodResult{
		ev.directSum(in.Period),
		ev.reconstruction(in.Period),
		ev.rollForward(in.Period, in.PriorPeriod),
		ev.interestImplied(in.Period, e.rate),
		ev.segmented(in.Period),
	}
	t := Triangulation{
		Period:      in.Period,
		PriorPeriod: in.PriorPeriod,
		Methods:     methods,
		Summary:     Aggregate(methods),
	}
	if t.Summary.RecommendedValue == nil {
		zap.L().Warn("debt: no valid estimate", zap.String("period", in.Period))
	}
	return t
}

// Aggregate summarises the non-null method values. The recommended value
// is their median, which resists a single outlying method.
func Aggregate(methods []MethodResult) Summary {
	s := Summary{TotalMethods: len(methods), RecommendedBasis: BasisNoEstimate}
	var vals []float64
	for _, m := range methods {
		if m.Value != nil {
			vals = append(vals, *m.Value)
		}
	}
	s.MethodCount = len(vals)
	if len(vals) == 0 {
		return s
	}
	lo, hi, avg, med := floats.Min(vals), floats.Max(vals), stat.Mean(vals, nil), Median(vals)
	s.Min, s.Max, s.Average, s.Median = &lo, &hi, &avg, &med
	rec := med
	s.RecommendedValue = &rec
	s.RecommendedBasis = BasisMedian
	return s
}

// Median averages the two middle values for even-length input.
func Median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// LatestPeriods returns the latest consolidated balance sheet period and
// the one before it.
func LatestPeriods(items []models.LineItem) (period, prior string) {
	set := map[string]bool{}
	for _, li := range items {
		if li.StatementType != models.BalanceSheet || !li.Consolidated() {
			continue
		}
		for p := range li.Periods {
			set[p] = true
		}
	}
	keys := make([]string, 0, len(set))
	for p := range set {
		keys = append(keys, p)
	}
	sort.Strings(keys)
	switch n := len(keys); {
	case n == 0:
		return "", ""
	case n == 1:
		return keys[0], ""
	default:
		return keys[n-1], keys[n-2]
	}
}
