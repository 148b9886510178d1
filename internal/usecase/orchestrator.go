package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ContentPipeline/internal/audit"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
	"ContentPipeline/internal/resilience"
	"ContentPipeline/internal/tracker"
)

// DefaultBatchSize bounds how many items one sweep advances per status.
const DefaultBatchSize = 3

// OrchestratorDeps wires all collaborators into the orchestrator.
type OrchestratorDeps struct {
	Store     ports.ContentStore
	Artifacts ports.ArtifactStore
	Audits    ports.AuditStore
	Agents    ports.AgentDirectory
	Engine    *audit.Engine
	Retrier   *resilience.Retrier
	Publisher *Publisher
	Monitor   *tracker.Monitor
	Policy    resilience.Policy
	BatchSize int
	Logger    *slog.Logger
}

// Orchestrator advances content items through the pipeline one stage
// per sweep, isolating failures per item.
type Orchestrator struct {
	store     ports.ContentStore
	artifacts ports.ArtifactStore
	audits    ports.AuditStore
	agents    ports.AgentDirectory
	engine    *audit.Engine
	retrier   *resilience.Retrier
	publisher *Publisher
	monitor   *tracker.Monitor
	policy    resilience.Policy
	batchSize int
	logger    *slog.Logger
}

// NewOrchestrator constructs the orchestration component.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.BatchSize <= 0 {
		deps.BatchSize = DefaultBatchSize
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		store:     deps.Store,
		artifacts: deps.Artifacts,
		audits:    deps.Audits,
		agents:    deps.Agents,
		engine:    deps.Engine,
		retrier:   deps.Retrier,
		publisher: deps.Publisher,
		monitor:   deps.Monitor,
		policy:    deps.Policy,
		batchSize: deps.BatchSize,
		logger:    deps.Logger,
	}
}

// BatchResult aggregates per-sweep counters.
type BatchResult struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
}

func (r *BatchResult) add(other BatchResult) {
	r.Processed += other.Processed
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Skipped += other.Skipped
}

// RunBatch sweeps every ready status once, latest pipeline position
// first so no item advances more than one stage per sweep.
func (o *Orchestrator) RunBatch(ctx context.Context) (BatchResult, error) {
	var total BatchResult
	for _, status := range domain.ReadyStatuses() {
		result, err := o.RunStage(ctx, status)
		total.add(result)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// RunStage advances up to the batch limit of items currently sitting
// in status, oldest first. A failing item never aborts its siblings;
// only selection errors surface.
func (o *Orchestrator) RunStage(ctx context.Context, status domain.Status) (BatchResult, error) {
	items, err := o.store.SelectByStatus(ctx, status, o.batchSize)
	if err != nil {
		return BatchResult{}, fmt.Errorf("select %s items: %w", status, err)
	}

	var result BatchResult
	for _, item := range items {
		result.Processed++
		switch o.advanceOne(ctx, item) {
		case outcomeSucceeded:
			result.Succeeded++
		case outcomeFailed:
			result.Failed++
		case outcomeSkipped:
			result.Processed--
			result.Skipped++
		}
	}
	return result, nil
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeSkipped
)

func (o *Orchestrator) advanceOne(ctx context.Context, item domain.ContentItem) outcome {
	plan, ok := domain.PlanFor(item.Status)
	if !ok {
		return outcomeSkipped
	}

	if plan.Agentless {
		return o.advanceAgentless(ctx, item, plan)
	}
	if plan.Stage == domain.StagePublish {
		return o.advancePublish(ctx, item)
	}

	// Claim the item. Losing the conditional write means another run
	// owns it; skip silently.
	start := time.Now().UTC()
	err := o.store.ConditionalTransition(ctx, item.ID, item.Status, domain.StatusProcessing,
		domain.ContentPatch{ProcessingStart: &start})
	if errors.Is(err, ports.ErrStatusConflict) {
		return outcomeSkipped
	}
	if err != nil {
		o.logger.Error("claim item", "content_id", item.ID, "error", err)
		return outcomeFailed
	}

	if plan.Stage == domain.StageQuality {
		return o.runQualityGate(ctx, item)
	}
	return o.runAgentStage(ctx, item, plan)
}

func (o *Orchestrator) advanceAgentless(ctx context.Context, item domain.ContentItem, plan domain.StagePlan) outcome {
	err := o.store.ConditionalTransition(ctx, item.ID, item.Status, plan.Result, domain.ContentPatch{})
	if errors.Is(err, ports.ErrStatusConflict) {
		return outcomeSkipped
	}
	if err != nil {
		o.logger.Error("advance item", "content_id", item.ID, "error", err)
		return outcomeFailed
	}
	o.track(ctx, item.ID, "", item.Status, plan.Result, "", "")
	return outcomeSucceeded
}

func (o *Orchestrator) advancePublish(ctx context.Context, item domain.ContentItem) outcome {
	if o.publisher == nil {
		o.logger.Warn("publishing not configured, leaving item queued", "content_id", item.ID)
		return outcomeSkipped
	}
	result, err := o.publisher.Publish(ctx, item.ID, false)
	if err != nil {
		o.logger.Error("publish item", "content_id", item.ID, "error", err)
		return outcomeFailed
	}
	switch result.Status {
	case PublishSucceeded:
		return outcomeSucceeded
	case PublishSkipped:
		return outcomeSkipped
	default:
		return outcomeFailed
	}
}

func (o *Orchestrator) runAgentStage(ctx context.Context, item domain.ContentItem, plan domain.StagePlan) outcome {
	agent, err := o.agents.Agent(plan.Stage)
	if err != nil {
		return o.failItem(ctx, item, plan.Stage, err)
	}

	var resp domain.AgentResponse
	call := resilience.CallContext{ContentID: item.ID, Agent: agent.Name(), Stage: plan.Stage}
	err = o.retrier.Execute(ctx, call, o.policy, func(attemptCtx context.Context) error {
		r, execErr := agent.Execute(attemptCtx, domain.AgentRequest{
			ContentID: item.ID,
			Payload:   item.Payload,
		})
		if execErr != nil {
			return execErr
		}
		if !r.Success {
			return fmt.Errorf("agent %s reported failure: %s", agent.Name(), r.Error)
		}
		resp = r
		return nil
	})
	if err != nil {
		return o.failItem(ctx, item, plan.Stage, err)
	}

	if !domain.ValidTransition(domain.StatusProcessing, plan.Result) {
		return o.failItem(ctx, item, plan.Stage,
			fmt.Errorf("illegal transition %s -> %s", domain.StatusProcessing, plan.Result))
	}

	patch := domain.ContentPatch{}
	merged := item.Payload
	if resp.Output != nil {
		merged = merged.Merge(*resp.Output)
		if err := o.persistArtifacts(ctx, item.ID, *resp.Output); err != nil {
			return o.failItem(ctx, item, plan.Stage, err)
		}
		if resp.Output.Classification != nil && resp.Output.Classification.Category != "" {
			category := resp.Output.Classification.Category
			patch.Category = &category
		}
	}
	patch.Payload = &merged

	err = o.store.ConditionalTransition(ctx, item.ID, domain.StatusProcessing, plan.Result, patch)
	if errors.Is(err, ports.ErrStatusConflict) {
		return outcomeSkipped
	}
	if err != nil {
		o.logger.Error("commit stage result", "content_id", item.ID, "stage", plan.Stage, "error", err)
		return outcomeFailed
	}

	o.track(ctx, item.ID, plan.Stage, domain.StatusProcessing, plan.Result, agent.Name(), "")
	return outcomeSucceeded
}

func (o *Orchestrator) persistArtifacts(ctx context.Context, contentID string, output domain.Payload) error {
	now := time.Now().UTC()
	if output.Design != nil {
		record := domain.DesignRecord{
			ContentID: contentID,
			Template:  output.Design.Template,
			Palette:   output.Design.Palette,
			CreatedAt: now,
		}
		if err := o.artifacts.SaveDesign(ctx, record); err != nil {
			return fmt.Errorf("save design: %w", err)
		}
	}
	if output.Assets != nil {
		assets := make([]domain.AssetRecord, 0, len(output.Assets.Images))
		for _, image := range output.Assets.Images {
			assets = append(assets, domain.AssetRecord{
				ContentID: contentID,
				URL:       image.URL,
				Alt:       image.Alt,
				Validated: output.Assets.Validated,
				CreatedAt: now,
			})
		}
		if err := o.artifacts.SaveAssets(ctx, contentID, assets); err != nil {
			return fmt.Errorf("save assets: %w", err)
		}
	}
	if output.Page != nil {
		record := domain.PageRecord{
			ContentID: contentID,
			Slug:      output.Page.Slug,
			Title:     output.Page.Title,
			HTML:      output.Page.HTML,
			WordCount: output.Page.WordCount,
			CreatedAt: now,
		}
		if err := o.artifacts.SavePage(ctx, record); err != nil {
			return fmt.Errorf("save page: %w", err)
		}
	}
	return nil
}

// runQualityGate fetches the item and its generated records with a
// four-way concurrent read, scores them, and commits the verdict.
func (o *Orchestrator) runQualityGate(ctx context.Context, item domain.ContentItem) outcome {
	auditRecord, err := o.AuditContent(ctx, item.ID)
	if err != nil {
		return o.failItem(ctx, item, domain.StageQuality, err)
	}

	if o.engine.Passed(auditRecord.Score) {
		err = o.store.ConditionalTransition(ctx, item.ID, domain.StatusProcessing,
			domain.StatusQualityApproved, domain.ContentPatch{})
		if errors.Is(err, ports.ErrStatusConflict) {
			return outcomeSkipped
		}
		if err != nil {
			o.logger.Error("commit quality approval", "content_id", item.ID, "error", err)
			return outcomeFailed
		}
		o.track(ctx, item.ID, domain.StageQuality, domain.StatusProcessing,
			domain.StatusQualityApproved, "", fmt.Sprintf("score=%d", auditRecord.Score))
		return outcomeSucceeded
	}

	// Below threshold is a normal negative result, not an error: the
	// item pauses for a human and the scheduler never resumes it.
	err = o.store.ConditionalTransition(ctx, item.ID, domain.StatusProcessing,
		domain.StatusRequiresManualReview, domain.ContentPatch{})
	if errors.Is(err, ports.ErrStatusConflict) {
		return outcomeSkipped
	}
	if err != nil {
		o.logger.Error("commit manual review", "content_id", item.ID, "error", err)
		return outcomeFailed
	}
	o.track(ctx, item.ID, domain.StageQuality, domain.StatusProcessing,
		domain.StatusRequiresManualReview, "",
		fmt.Sprintf("score=%d issues=%d", auditRecord.Score, len(auditRecord.Issues())))
	o.logger.Info("quality gate held item for review",
		"content_id", item.ID,
		"score", auditRecord.Score,
		"threshold", o.engine.Threshold())
	return outcomeSucceeded
}

// AuditContent evaluates one item on demand and persists the audit.
// It never changes the item's status.
func (o *Orchestrator) AuditContent(ctx context.Context, contentID string) (domain.QualityAudit, error) {
	var in audit.Input

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		item, err := o.store.GetContent(gctx, contentID)
		if err != nil {
			return fmt.Errorf("fetch content: %w", err)
		}
		in.Item = item
		return nil
	})
	g.Go(func() error {
		page, err := o.artifacts.PageFor(gctx, contentID)
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("fetch page: %w", err)
		}
		in.Page = page
		return nil
	})
	g.Go(func() error {
		design, err := o.artifacts.DesignFor(gctx, contentID)
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("fetch design: %w", err)
		}
		in.Design = design
		return nil
	})
	g.Go(func() error {
		assets, err := o.artifacts.AssetsFor(gctx, contentID)
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("fetch assets: %w", err)
		}
		in.Assets = assets
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.QualityAudit{}, err
	}

	auditRecord := o.engine.Evaluate(in)
	if err := o.audits.SaveAudit(ctx, auditRecord); err != nil {
		return domain.QualityAudit{}, fmt.Errorf("save audit: %w", err)
	}
	return auditRecord, nil
}

func (o *Orchestrator) failItem(ctx context.Context, item domain.ContentItem, stage domain.Stage, cause error) outcome {
	entry := domain.ErrorEntry{Stage: stage, Message: cause.Error(), Timestamp: time.Now().UTC()}
	end := entry.Timestamp

	err := o.store.ConditionalTransition(ctx, item.ID, domain.StatusProcessing, domain.StatusFailed,
		domain.ContentPatch{ErrorEntry: &entry, ProcessingEnd: &end})
	if errors.Is(err, ports.ErrStatusConflict) {
		// Status moved under us; still preserve the diagnostic.
		if appendErr := o.store.AppendError(ctx, item.ID, entry); appendErr != nil {
			o.logger.Error("append error log", "content_id", item.ID, "error", appendErr)
		}
	} else if err != nil {
		o.logger.Error("commit failed status", "content_id", item.ID, "error", err)
	}

	o.track(ctx, item.ID, stage, domain.StatusProcessing, domain.StatusFailed, "", cause.Error())
	o.logger.Error("stage failed",
		"content_id", item.ID,
		"stage", stage,
		"error", cause)
	return outcomeFailed
}

func (o *Orchestrator) track(ctx context.Context, contentID string, stage domain.Stage, from, to domain.Status, agent, detail string) {
	if o.monitor == nil {
		return
	}
	o.monitor.Record(ctx, domain.ActivityEntry{
		ContentID:  contentID,
		Stage:      stage,
		FromStatus: from,
		ToStatus:   to,
		Agent:      agent,
		Detail:     detail,
	})
}
