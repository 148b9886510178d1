package domain

import "time"

// StageAttemptStatus tracks one stage-execution attempt.
type StageAttemptStatus string

const (
	AttemptProcessing StageAttemptStatus = "processing"
	AttemptCompleted  StageAttemptStatus = "completed"
	AttemptFailed     StageAttemptStatus = "failed"
)

// PipelineStageRecord is one attempt to execute one stage for one
// item. Records are append-only; a retry inserts a new row instead of
// mutating the previous one, preserving the full audit trail.
type PipelineStageRecord struct {
	ContentID    string
	Stage        Stage
	Agent        string
	Attempt      int
	Status       StageAttemptStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// Severity ranks audit findings for recommendation ordering.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// CheckResult is the outcome of a single named quality check.
type CheckResult struct {
	Name           string   `json:"name"`
	Passed         bool     `json:"passed"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// DimensionResult holds one weighted dimension of a quality audit.
type DimensionResult struct {
	Name   string        `json:"name"`
	Weight int           `json:"weight"`
	Score  int           `json:"score"`
	Checks []CheckResult `json:"checks"`
}

// QualityAudit is a scored evaluation of one item at one point in
// time. Immutable once created; gating uses the most recent audit.
type QualityAudit struct {
	AuditID         string
	ContentID       string
	Score           int
	Dimensions      []DimensionResult
	Recommendations []string
	CreatedAt       time.Time
}

// Issues flattens every failed check across all dimensions.
func (a QualityAudit) Issues() []CheckResult {
	var issues []CheckResult
	for _, dim := range a.Dimensions {
		for _, check := range dim.Checks {
			if !check.Passed {
				issues = append(issues, check)
			}
		}
	}
	return issues
}

// BatchStatus tracks a deployment batch lifecycle.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// DeploymentBatch is one attempt to publish one or more items.
type DeploymentBatch struct {
	BatchID           string
	ContentIDs        []string
	Status            BatchStatus
	CommitRef         string
	BuildRef          string
	PublishedURLs     []string
	RollbackPerformed bool
	ErrorMessage      string
	StartedAt         time.Time
	CompletedAt       *time.Time
}

// BuildState is the deploy service's view of a triggered build.
type BuildState string

const (
	BuildRunning BuildState = "building"
	BuildReady   BuildState = "ready"
	BuildFailed  BuildState = "failed"
)

// VerificationResult captures the live-page check after a deploy.
type VerificationResult struct {
	Reachable        bool
	StatusCode       int
	TitleFound       bool
	DescriptionFound bool
}

// DesignRecord is the persisted design assignment for one item.
type DesignRecord struct {
	ContentID string
	Template  string
	Palette   string
	CreatedAt time.Time
}

// AssetRecord is one validated asset belonging to an item.
type AssetRecord struct {
	ContentID string
	URL       string
	Alt       string
	Validated bool
	CreatedAt time.Time
}

// PageRecord is the persisted composed page for one item.
type PageRecord struct {
	ContentID string
	Slug      string
	Title     string
	HTML      string
	WordCount int
	CreatedAt time.Time
}

// ActivityEntry is one row of the append-only activity log.
type ActivityEntry struct {
	ContentID  string
	Stage      Stage
	FromStatus Status
	ToStatus   Status
	Agent      string
	Detail     string
	CreatedAt  time.Time
}
