package audit

import (
	"fmt"

	"ContentPipeline/internal/domain"
)

// Input bundles the read-only records one evaluation inspects.
type Input struct {
	Item   domain.ContentItem
	Page   domain.PageRecord
	Design domain.DesignRecord
	Assets []domain.AssetRecord
}

// CheckFunc evaluates a single named quality check.
type CheckFunc func(in Input) domain.CheckResult

// Registry keeps a mapping from check names to their implementations.
type Registry struct {
	checks map[string]CheckFunc
}

// NewRegistry builds a registry preloaded with the built-in checks.
func NewRegistry() *Registry {
	r := &Registry{checks: map[string]CheckFunc{}}
	registerBuiltins(r)
	return r
}

// Register adds or replaces a check implementation.
func (r *Registry) Register(name string, check CheckFunc) {
	if r.checks == nil {
		r.checks = map[string]CheckFunc{}
	}
	r.checks[name] = check
}

// Resolve returns a check by name or an error if it is absent. Unknown
// names are configuration errors; silently passing them would weaken
// the quality gate as new checks are introduced.
func (r *Registry) Resolve(name string) (CheckFunc, error) {
	if check, ok := r.checks[name]; ok {
		return check, nil
	}
	return nil, fmt.Errorf("quality check %s is not registered", name)
}
