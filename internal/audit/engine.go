package audit

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"ContentPipeline/internal/domain"
)

// DefaultThreshold is the gate score below which an item needs manual
// review before publishing.
const DefaultThreshold = 80

// DimensionSpec configures one weighted dimension of the audit.
type DimensionSpec struct {
	Name   string
	Weight int
	Checks []string
}

type boundCheck struct {
	name string
	fn   CheckFunc
}

type dimension struct {
	name   string
	weight int
	checks []boundCheck
}

// Engine computes weighted, multi-dimension quality scores. It never
// mutates the content item; the orchestrator acts on the verdict.
type Engine struct {
	dims      []dimension
	threshold int
}

// NewEngine binds dimension specs against the registry. Every check
// name must resolve and weights must sum to 100; both are enforced
// here so a misconfigured gate fails at startup, not at audit time.
func NewEngine(registry *Registry, specs []DimensionSpec, threshold int) (*Engine, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	totalWeight := 0
	dims := make([]dimension, 0, len(specs))
	for _, spec := range specs {
		totalWeight += spec.Weight
		dim := dimension{name: spec.Name, weight: spec.Weight}
		for _, name := range spec.Checks {
			fn, err := registry.Resolve(name)
			if err != nil {
				return nil, fmt.Errorf("dimension %s: %w", spec.Name, err)
			}
			dim.checks = append(dim.checks, boundCheck{name: name, fn: fn})
		}
		dims = append(dims, dim)
	}
	if totalWeight != 100 {
		return nil, fmt.Errorf("dimension weights sum to %d, want 100", totalWeight)
	}

	return &Engine{dims: dims, threshold: threshold}, nil
}

// Threshold returns the configured gate threshold.
func (e *Engine) Threshold() int {
	return e.threshold
}

// Passed reports whether a score clears the gate.
func (e *Engine) Passed(score int) bool {
	return score >= e.threshold
}

// Evaluate scores one item against every configured dimension and
// returns an immutable audit record.
func (e *Engine) Evaluate(in Input) domain.QualityAudit {
	audit := domain.QualityAudit{
		AuditID:   uuid.NewString(),
		ContentID: in.Item.ID,
		CreatedAt: time.Now().UTC(),
	}

	weighted := 0.0
	var failed []domain.CheckResult
	for _, dim := range e.dims {
		result := domain.DimensionResult{Name: dim.name, Weight: dim.weight}

		passed := 0
		for _, check := range dim.checks {
			outcome := check.fn(in)
			outcome.Name = check.name
			result.Checks = append(result.Checks, outcome)
			if outcome.Passed {
				passed++
			} else {
				failed = append(failed, outcome)
			}
		}

		result.Score = 100
		if len(dim.checks) > 0 {
			result.Score = int(math.Round(float64(passed) / float64(len(dim.checks)) * 100))
		}
		weighted += float64(result.Score) * float64(dim.weight) / 100

		audit.Dimensions = append(audit.Dimensions, result)
	}

	audit.Score = int(math.Round(weighted))
	audit.Recommendations = prioritize(failed)
	return audit
}

var severityRank = map[domain.Severity]int{
	domain.SeverityCritical: 0,
	domain.SeverityHigh:     1,
	domain.SeverityMedium:   2,
	domain.SeverityLow:      3,
}

// prioritize orders failed-check recommendations by severity.
func prioritize(failed []domain.CheckResult) []string {
	sort.SliceStable(failed, func(i, j int) bool {
		return severityRank[failed[i].Severity] < severityRank[failed[j].Severity]
	})

	var recs []string
	for _, check := range failed {
		if check.Recommendation != "" {
			recs = append(recs, check.Recommendation)
		}
	}
	return recs
}
