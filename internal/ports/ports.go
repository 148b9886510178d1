package ports

import (
	"context"
	"errors"
	"time"

	"ContentPipeline/internal/domain"
)

// ErrStatusConflict is returned by ConditionalTransition when the row's
// stored status no longer matches the expected value. Callers treat it
// as "someone else is handling this item", not as a failure.
var ErrStatusConflict = errors.New("content status changed concurrently")

// ErrNoAudit is returned when an item has never been audited.
var ErrNoAudit = errors.New("no quality audit recorded")

// ErrNotFound is returned for reads of absent rows.
var ErrNotFound = errors.New("record not found")

// ContentStore persists content items and guards their status.
type ContentStore interface {
	GetContent(ctx context.Context, id string) (domain.ContentItem, error)
	// SelectByStatus returns up to limit items in creation order.
	SelectByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.ContentItem, error)
	// ConditionalTransition updates status only while the stored status
	// equals from; a concurrent change yields ErrStatusConflict.
	ConditionalTransition(ctx context.Context, id string, from, to domain.Status, patch domain.ContentPatch) error
	// AppendError adds one entry to the item's append-only error log.
	AppendError(ctx context.Context, id string, entry domain.ErrorEntry) error
}

// AuditStore persists immutable quality audits.
type AuditStore interface {
	SaveAudit(ctx context.Context, audit domain.QualityAudit) error
	// LatestAudit returns the most recent audit or ErrNoAudit.
	LatestAudit(ctx context.Context, contentID string) (domain.QualityAudit, error)
}

// StageRecorder appends stage-attempt records. One row per attempt.
type StageRecorder interface {
	RecordStageAttempt(ctx context.Context, record domain.PipelineStageRecord) error
}

// DeploymentStore owns deployment-batch rows.
type DeploymentStore interface {
	CreateBatch(ctx context.Context, batch domain.DeploymentBatch) error
	FinishBatch(ctx context.Context, batch domain.DeploymentBatch) error
}

// ArtifactStore keeps per-stage generated records the audit engine
// reads. Writes happen on stage completion; reads are concurrent.
type ArtifactStore interface {
	SaveDesign(ctx context.Context, record domain.DesignRecord) error
	SaveAssets(ctx context.Context, contentID string, assets []domain.AssetRecord) error
	SavePage(ctx context.Context, record domain.PageRecord) error
	DesignFor(ctx context.Context, contentID string) (domain.DesignRecord, error)
	AssetsFor(ctx context.Context, contentID string) ([]domain.AssetRecord, error)
	PageFor(ctx context.Context, contentID string) (domain.PageRecord, error)
}

// ActivityStore is the append-only activity log plus its bounded
// monitor queries.
type ActivityStore interface {
	InsertActivity(ctx context.Context, entry domain.ActivityEntry) error
	TrimActivityBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountFailedSince(ctx context.Context, since time.Time) (int, error)
}

// StageAgent is one external black-box transformation service.
type StageAgent interface {
	Name() string
	Execute(ctx context.Context, req domain.AgentRequest) (domain.AgentResponse, error)
}

// AgentDirectory resolves the agent responsible for a stage.
type AgentDirectory interface {
	Agent(stage domain.Stage) (StageAgent, error)
}

// DeployTarget is the source-control side of publishing. A fresh
// branch per attempt keeps failed deploys off the default branch.
type DeployTarget interface {
	CreateBranch(ctx context.Context, baseRef string) (string, error)
	PutFile(ctx context.Context, branch, path string, content []byte) (string, error)
	DeleteRef(ctx context.Context, branch string) error
}

// BuildService triggers site builds and reports their state.
type BuildService interface {
	TriggerBuild(ctx context.Context) (string, error)
	BuildStatus(ctx context.Context, buildRef string) (domain.BuildState, error)
}

// PageVerifier checks a published URL for reachability and markers.
type PageVerifier interface {
	Verify(ctx context.Context, url string) (domain.VerificationResult, error)
}

// Scheduler controls when pipeline sweeps execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
