package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
	"ContentPipeline/internal/resilience"
	"ContentPipeline/internal/tracker"
)

// Publish outcome labels returned to callers.
const (
	PublishSucceeded  = "published"
	PublishGateFailed = "quality_gate_failed"
	PublishFailed     = "failed"
	PublishSkipped    = "skipped"
)

// ErrBuildFailed means the deploy service reported a failed build.
var ErrBuildFailed = errors.New("build failed")

// ErrBuildPollTimeout means the build never reached a terminal state
// before the polling deadline. Distinct from a reported failure.
var ErrBuildPollTimeout = errors.New("build status polling timed out")

// PublishConfig tunes the deployment protocol.
type PublishConfig struct {
	BaseBranch   string
	SiteURL      string
	PollInterval time.Duration
	PollDeadline time.Duration
}

// PublishResult is the caller-visible outcome of one publish attempt.
type PublishResult struct {
	Status            string
	ContentID         string
	BatchID           string
	Score             int
	Issues            []domain.CheckResult
	Recommendations   []string
	CommitRef         string
	BuildRef          string
	URL               string
	RollbackPerformed bool
}

// PublisherDeps wires the deployment collaborators.
type PublisherDeps struct {
	Store       ports.ContentStore
	Audits      ports.AuditStore
	Deployments ports.DeploymentStore
	Target      ports.DeployTarget
	Builds      ports.BuildService
	Verifier    ports.PageVerifier
	Monitor     *tracker.Monitor
	Threshold   int
	Config      PublishConfig
	Logger      *slog.Logger
}

// Publisher commits approved content to the deploy target, waits for
// the build, verifies the live page, and rolls back on failure. Every
// attempt works on a fresh branch, so a failed deploy never touches
// published state.
type Publisher struct {
	store       ports.ContentStore
	audits      ports.AuditStore
	deployments ports.DeploymentStore
	target      ports.DeployTarget
	builds      ports.BuildService
	verifier    ports.PageVerifier
	monitor     *tracker.Monitor
	threshold   int
	cfg         PublishConfig
	logger      *slog.Logger
}

// NewPublisher constructs the deployment engine.
func NewPublisher(deps PublisherDeps) *Publisher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.PollInterval <= 0 {
		deps.Config.PollInterval = 5 * time.Second
	}
	if deps.Config.PollDeadline <= 0 {
		deps.Config.PollDeadline = 3 * time.Minute
	}
	return &Publisher{
		store:       deps.Store,
		audits:      deps.Audits,
		deployments: deps.Deployments,
		target:      deps.Target,
		builds:      deps.Builds,
		verifier:    deps.Verifier,
		monitor:     deps.Monitor,
		threshold:   deps.Threshold,
		cfg:         deps.Config,
		logger:      deps.Logger,
	}
}

// Publish runs the full deployment protocol for one item. force
// bypasses the quality gate, not the status checks.
func (p *Publisher) Publish(ctx context.Context, contentID string, force bool) (PublishResult, error) {
	item, err := p.store.GetContent(ctx, contentID)
	if err != nil {
		return PublishResult{}, fmt.Errorf("fetch content %s: %w", contentID, err)
	}
	result := PublishResult{ContentID: contentID}

	if item.Status == domain.StatusRequiresManualReview && force {
		err = p.store.ConditionalTransition(ctx, contentID, domain.StatusRequiresManualReview,
			domain.StatusApprovedForPublishing, domain.ContentPatch{})
		if errors.Is(err, ports.ErrStatusConflict) {
			result.Status = PublishSkipped
			return result, nil
		}
		if err != nil {
			return PublishResult{}, fmt.Errorf("approve reviewed item: %w", err)
		}
		item.Status = domain.StatusApprovedForPublishing
	}

	if item.Status != domain.StatusApprovedForPublishing {
		return PublishResult{}, fmt.Errorf("content %s is %s, not approved for publishing",
			contentID, item.Status)
	}

	if !force {
		verdict, gateErr := p.checkGate(ctx, contentID)
		if gateErr != nil {
			return PublishResult{}, gateErr
		}
		if verdict != nil {
			return *verdict, nil
		}
	}

	page := item.Payload.Page
	if page == nil || page.HTML == "" {
		cause := resilience.NewValidationError("content %s has no composed page", contentID)
		return p.failBeforeClaim(ctx, item, cause), nil
	}

	start := time.Now().UTC()
	err = p.store.ConditionalTransition(ctx, contentID, domain.StatusApprovedForPublishing,
		domain.StatusProcessing, domain.ContentPatch{ProcessingStart: &start})
	if errors.Is(err, ports.ErrStatusConflict) {
		result.Status = PublishSkipped
		return result, nil
	}
	if err != nil {
		return PublishResult{}, fmt.Errorf("claim content %s: %w", contentID, err)
	}

	// The batch row lands before any external side effect so the
	// attempt stays auditable even if the process dies right after.
	batch := domain.DeploymentBatch{
		BatchID:    uuid.NewString(),
		ContentIDs: []string{contentID},
		Status:     domain.BatchPending,
		StartedAt:  start,
	}
	result.BatchID = batch.BatchID
	if err := p.deployments.CreateBatch(ctx, batch); err != nil {
		return p.fail(ctx, &batch, item, "", fmt.Errorf("create deployment batch: %w", err)), nil
	}

	branch, err := p.target.CreateBranch(ctx, p.cfg.BaseBranch)
	if err != nil {
		return p.fail(ctx, &batch, item, "", fmt.Errorf("create branch: %w", err)), nil
	}

	commitRef, err := p.pushArtifacts(ctx, branch, item)
	if err != nil {
		return p.fail(ctx, &batch, item, branch, err), nil
	}
	batch.CommitRef = commitRef
	result.CommitRef = commitRef

	buildRef, err := p.builds.TriggerBuild(ctx)
	if err != nil {
		return p.fail(ctx, &batch, item, branch, fmt.Errorf("trigger build: %w", err)), nil
	}
	batch.BuildRef = buildRef
	result.BuildRef = buildRef

	if err := p.waitForBuild(ctx, buildRef); err != nil {
		return p.fail(ctx, &batch, item, branch, err), nil
	}

	url := p.publishedURL(page.Slug)
	verification, err := p.verifier.Verify(ctx, url)
	if err != nil {
		return p.fail(ctx, &batch, item, branch, fmt.Errorf("verify %s: %w", url, err)), nil
	}
	if !verification.Reachable {
		return p.fail(ctx, &batch, item, branch,
			fmt.Errorf("published page %s unreachable (status %d)", url, verification.StatusCode)), nil
	}
	if !verification.TitleFound || !verification.DescriptionFound {
		// Marker absence is diagnostic, not fatal.
		p.logger.Warn("published page missing markers",
			"content_id", contentID,
			"url", url,
			"title_found", verification.TitleFound,
			"description_found", verification.DescriptionFound)
	}

	completed := time.Now().UTC()
	batch.Status = domain.BatchCompleted
	batch.PublishedURLs = []string{url}
	batch.CompletedAt = &completed
	if err := p.deployments.FinishBatch(ctx, batch); err != nil {
		p.logger.Error("finish deployment batch", "batch_id", batch.BatchID, "error", err)
	}

	err = p.store.ConditionalTransition(ctx, contentID, domain.StatusProcessing, domain.StatusLive,
		domain.ContentPatch{ProcessingEnd: &completed})
	if err != nil && !errors.Is(err, ports.ErrStatusConflict) {
		return PublishResult{}, fmt.Errorf("commit live status: %w", err)
	}

	p.track(ctx, contentID, domain.StatusProcessing, domain.StatusLive, url)
	p.logger.Info("content published",
		"content_id", contentID,
		"batch_id", batch.BatchID,
		"url", url)

	result.Status = PublishSucceeded
	result.URL = url
	return result, nil
}

// checkGate returns a non-nil gate-failure result when the latest
// audit does not clear the threshold, and nil when publishing may
// proceed.
func (p *Publisher) checkGate(ctx context.Context, contentID string) (*PublishResult, error) {
	latest, err := p.audits.LatestAudit(ctx, contentID)
	if errors.Is(err, ports.ErrNoAudit) {
		return &PublishResult{
			ContentID:       contentID,
			Status:          PublishGateFailed,
			Recommendations: []string{"run a quality audit before publishing"},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch latest audit: %w", err)
	}
	if latest.Score >= p.threshold {
		return nil, nil
	}
	return &PublishResult{
		ContentID:       contentID,
		Status:          PublishGateFailed,
		Score:           latest.Score,
		Issues:          latest.Issues(),
		Recommendations: latest.Recommendations,
	}, nil
}

func (p *Publisher) pushArtifacts(ctx context.Context, branch string, item domain.ContentItem) (string, error) {
	page := item.Payload.Page

	meta := map[string]any{
		"id":             item.ID,
		"category":       item.Category,
		"classification": item.Payload.Classification,
		"seo":            item.Payload.SEO,
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	files := []struct {
		path    string
		content []byte
	}{
		{path: "pages/" + page.Slug + "/index.html", content: []byte(page.HTML)},
		{path: "content/" + item.ID + ".json", content: metaJSON},
	}

	var commitRef string
	for _, file := range files {
		commitRef, err = p.target.PutFile(ctx, branch, file.path, file.content)
		if err != nil {
			return "", fmt.Errorf("put %s: %w", file.path, err)
		}
	}
	return commitRef, nil
}

// waitForBuild polls the build status until it turns terminal or the
// deadline passes. A poll timeout is reported as its own failure mode.
func (p *Publisher) waitForBuild(ctx context.Context, buildRef string) error {
	deadline := time.NewTimer(p.cfg.PollDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		state, err := p.builds.BuildStatus(ctx, buildRef)
		if err != nil {
			return fmt.Errorf("poll build %s: %w", buildRef, err)
		}
		switch state {
		case domain.BuildReady:
			return nil
		case domain.BuildFailed:
			return fmt.Errorf("build %s: %w", buildRef, ErrBuildFailed)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("build %s: %w", buildRef, ErrBuildPollTimeout)
		case <-ticker.C:
		}
	}
}

// fail marks the batch and item failed and rolls back the created
// branch. Rollback is awaited and its outcome recorded, never
// fire-and-forget.
func (p *Publisher) fail(ctx context.Context, batch *domain.DeploymentBatch, item domain.ContentItem, branch string, cause error) PublishResult {
	rolledBack := false
	if branch != "" {
		if err := p.target.DeleteRef(ctx, branch); err != nil {
			p.logger.Error("rollback branch", "branch", branch, "error", err)
		} else {
			rolledBack = true
		}
	}

	completed := time.Now().UTC()
	batch.Status = domain.BatchFailed
	batch.RollbackPerformed = rolledBack
	batch.ErrorMessage = cause.Error()
	batch.CompletedAt = &completed
	if err := p.deployments.FinishBatch(ctx, *batch); err != nil {
		p.logger.Error("finish deployment batch", "batch_id", batch.BatchID, "error", err)
	}

	entry := domain.ErrorEntry{Stage: domain.StagePublish, Message: cause.Error(), Timestamp: completed}
	err := p.store.ConditionalTransition(ctx, item.ID, domain.StatusProcessing, domain.StatusFailed,
		domain.ContentPatch{ErrorEntry: &entry, ProcessingEnd: &completed})
	if errors.Is(err, ports.ErrStatusConflict) {
		if appendErr := p.store.AppendError(ctx, item.ID, entry); appendErr != nil {
			p.logger.Error("append error log", "content_id", item.ID, "error", appendErr)
		}
	} else if err != nil {
		p.logger.Error("commit failed status", "content_id", item.ID, "error", err)
	}

	p.track(ctx, item.ID, domain.StatusProcessing, domain.StatusFailed, cause.Error())
	p.logger.Error("publish failed",
		"content_id", item.ID,
		"batch_id", batch.BatchID,
		"rollback_performed", rolledBack,
		"error", cause)

	return PublishResult{
		Status:            PublishFailed,
		ContentID:         item.ID,
		BatchID:           batch.BatchID,
		RollbackPerformed: rolledBack,
	}
}

// failBeforeClaim handles defects detected before the item was claimed
// or any batch existed.
func (p *Publisher) failBeforeClaim(ctx context.Context, item domain.ContentItem, cause error) PublishResult {
	entry := domain.ErrorEntry{Stage: domain.StagePublish, Message: cause.Error(), Timestamp: time.Now().UTC()}
	err := p.store.ConditionalTransition(ctx, item.ID, item.Status, domain.StatusFailed,
		domain.ContentPatch{ErrorEntry: &entry})
	if err != nil && !errors.Is(err, ports.ErrStatusConflict) {
		p.logger.Error("commit failed status", "content_id", item.ID, "error", err)
	}
	p.track(ctx, item.ID, item.Status, domain.StatusFailed, cause.Error())
	return PublishResult{Status: PublishFailed, ContentID: item.ID}
}

func (p *Publisher) publishedURL(slug string) string {
	return strings.TrimRight(p.cfg.SiteURL, "/") + "/" + slug + "/"
}

func (p *Publisher) track(ctx context.Context, contentID string, from, to domain.Status, detail string) {
	if p.monitor == nil {
		return
	}
	p.monitor.Record(ctx, domain.ActivityEntry{
		ContentID:  contentID,
		Stage:      domain.StagePublish,
		FromStatus: from,
		ToStatus:   to,
		Detail:     detail,
	})
}
