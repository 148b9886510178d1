package domain

// Status enumerates pipeline milestones a content item moves through.
type Status string

const (
	StatusReceived              Status = "received"
	StatusProcessing            Status = "processing"
	StatusClassified            Status = "classified"
	StatusDesignApproved        Status = "design_approved"
	StatusAssetsProcessed       Status = "assets_processed"
	StatusPageCreated           Status = "page_created"
	StatusSEOOptimized          Status = "seo_optimized"
	StatusQualityApproved       Status = "quality_approved"
	StatusApprovedForPublishing Status = "approved_for_publishing"
	StatusLive                  Status = "live"
	StatusRequiresManualReview  Status = "requires_manual_review"
	StatusRejected              Status = "rejected"
	StatusFailed                Status = "failed"
)

// transitions is the only source of truth for legal status changes.
// processing is the in-progress marker the orchestrator claims items
// into; the edge out of processing is the stage result.
var transitions = map[Status][]Status{
	StatusReceived: {StatusProcessing},
	StatusProcessing: {
		StatusClassified,
		StatusDesignApproved,
		StatusAssetsProcessed,
		StatusPageCreated,
		StatusSEOOptimized,
		StatusQualityApproved,
		StatusRequiresManualReview,
		StatusLive,
		StatusFailed,
	},
	StatusClassified:      {StatusProcessing, StatusFailed},
	StatusDesignApproved:  {StatusProcessing, StatusFailed},
	StatusAssetsProcessed: {StatusProcessing, StatusFailed},
	StatusPageCreated:     {StatusProcessing, StatusFailed},
	StatusSEOOptimized:    {StatusProcessing, StatusFailed},
	StatusQualityApproved: {
		StatusApprovedForPublishing,
		StatusRequiresManualReview,
		StatusFailed,
	},
	StatusApprovedForPublishing: {StatusProcessing, StatusLive, StatusFailed},
	StatusRequiresManualReview:  {StatusApprovedForPublishing, StatusRejected},
	StatusFailed:                {StatusProcessing},
	StatusLive:                  {},
	StatusRejected:              {},
}

// ValidTransition reports whether from -> to is a legal status change.
func ValidTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no automated progress happens past s.
// failed keeps a manual-retry edge back to processing, so it is not
// terminal here; schedulers simply never select failed items.
func IsTerminal(s Status) bool {
	return s == StatusLive || s == StatusRejected
}

// KnownStatus reports whether s is part of the defined state set.
func KnownStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// Stage names one discrete transformation of the pipeline.
type Stage string

const (
	StageClassification  Stage = "classification"
	StageDesign          Stage = "design"
	StageAssetValidation Stage = "asset_validation"
	StageComposition     Stage = "composition"
	StageSEO             Stage = "seo"
	StageQuality         Stage = "quality"
	StagePublish         Stage = "publish"
)

// StagePlan describes the single advance an item in a given status is
// due for: which stage runs and which status a success commits.
type StagePlan struct {
	Stage     Stage
	Result    Status
	Agentless bool
}

var plans = map[Status]StagePlan{
	StatusReceived:              {Stage: StageClassification, Result: StatusClassified},
	StatusClassified:            {Stage: StageDesign, Result: StatusDesignApproved},
	StatusDesignApproved:        {Stage: StageAssetValidation, Result: StatusAssetsProcessed},
	StatusAssetsProcessed:       {Stage: StageComposition, Result: StatusPageCreated},
	StatusPageCreated:           {Stage: StageSEO, Result: StatusSEOOptimized},
	StatusSEOOptimized:          {Stage: StageQuality, Result: StatusQualityApproved},
	StatusQualityApproved:       {Result: StatusApprovedForPublishing, Agentless: true},
	StatusApprovedForPublishing: {Stage: StagePublish, Result: StatusLive},
}

// PlanFor resolves the next stage for an item currently in status s.
// The second return is false when s has no automated next step
// (terminal states, processing, failed, requires_manual_review).
func PlanFor(s Status) (StagePlan, bool) {
	plan, ok := plans[s]
	return plan, ok
}

// ReadyStatuses lists statuses the scheduler sweeps, ordered so that an
// item advanced during a sweep is not picked up again by a later
// selection in the same sweep (latest pipeline position first).
func ReadyStatuses() []Status {
	return []Status{
		StatusApprovedForPublishing,
		StatusQualityApproved,
		StatusSEOOptimized,
		StatusPageCreated,
		StatusAssetsProcessed,
		StatusDesignApproved,
		StatusClassified,
		StatusReceived,
	}
}
