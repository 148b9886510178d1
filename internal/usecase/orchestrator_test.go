package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"ContentPipeline/internal/audit"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
	"ContentPipeline/internal/resilience"
	"ContentPipeline/internal/tracker"
)

// memoryStore backs every storage port with in-process maps so use
// case tests run without a database.
type memoryStore struct {
	mu        sync.Mutex
	items     map[string]domain.ContentItem
	audits    map[string][]domain.QualityAudit
	records   []domain.PipelineStageRecord
	designs   map[string]domain.DesignRecord
	assets    map[string][]domain.AssetRecord
	pages     map[string]domain.PageRecord
	batches   map[string]domain.DeploymentBatch
	activity  []domain.ActivityEntry
	failClaim bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		items:   map[string]domain.ContentItem{},
		audits:  map[string][]domain.QualityAudit{},
		designs: map[string]domain.DesignRecord{},
		assets:  map[string][]domain.AssetRecord{},
		pages:   map[string]domain.PageRecord{},
		batches: map[string]domain.DeploymentBatch{},
	}
}

func (m *memoryStore) GetContent(_ context.Context, id string) (domain.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return domain.ContentItem{}, ports.ErrNotFound
	}
	return item, nil
}

func (m *memoryStore) SelectByStatus(_ context.Context, status domain.Status, limit int) ([]domain.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var selected []domain.ContentItem
	for _, item := range m.items {
		if item.Status == status {
			selected = append(selected, item)
		}
	}
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].CreatedAt.Before(selected[j].CreatedAt)
	})
	if len(selected) > limit {
		selected = selected[:limit]
	}
	return selected, nil
}

func (m *memoryStore) ConditionalTransition(_ context.Context, id string, from, to domain.Status, patch domain.ContentPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failClaim {
		m.failClaim = false
		return ports.ErrStatusConflict
	}
	item, ok := m.items[id]
	if !ok {
		return ports.ErrNotFound
	}
	if item.Status != from {
		return ports.ErrStatusConflict
	}
	item.Status = to
	item.UpdatedAt = time.Now().UTC()
	if patch.Category != nil {
		item.Category = patch.Category
	}
	if patch.Payload != nil {
		item.Payload = *patch.Payload
	}
	if patch.ProcessingStart != nil {
		item.ProcessingStart = patch.ProcessingStart
	}
	if patch.ProcessingEnd != nil {
		item.ProcessingEnd = patch.ProcessingEnd
	}
	if patch.ErrorEntry != nil {
		item.ErrorLog = append(item.ErrorLog, *patch.ErrorEntry)
	}
	m.items[id] = item
	return nil
}

func (m *memoryStore) AppendError(_ context.Context, id string, entry domain.ErrorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return ports.ErrNotFound
	}
	item.ErrorLog = append(item.ErrorLog, entry)
	m.items[id] = item
	return nil
}

func (m *memoryStore) SaveAudit(_ context.Context, record domain.QualityAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits[record.ContentID] = append(m.audits[record.ContentID], record)
	return nil
}

func (m *memoryStore) LatestAudit(_ context.Context, contentID string) (domain.QualityAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.audits[contentID]
	if len(history) == 0 {
		return domain.QualityAudit{}, ports.ErrNoAudit
	}
	return history[len(history)-1], nil
}

func (m *memoryStore) RecordStageAttempt(_ context.Context, record domain.PipelineStageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memoryStore) SaveDesign(_ context.Context, record domain.DesignRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.designs[record.ContentID] = record
	return nil
}

func (m *memoryStore) SaveAssets(_ context.Context, contentID string, assets []domain.AssetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[contentID] = assets
	return nil
}

func (m *memoryStore) SavePage(_ context.Context, record domain.PageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[record.ContentID] = record
	return nil
}

func (m *memoryStore) DesignFor(_ context.Context, contentID string) (domain.DesignRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.designs[contentID]
	if !ok {
		return domain.DesignRecord{}, ports.ErrNotFound
	}
	return record, nil
}

func (m *memoryStore) AssetsFor(_ context.Context, contentID string) ([]domain.AssetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	assets, ok := m.assets[contentID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return assets, nil
}

func (m *memoryStore) PageFor(_ context.Context, contentID string) (domain.PageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.pages[contentID]
	if !ok {
		return domain.PageRecord{}, ports.ErrNotFound
	}
	return record, nil
}

func (m *memoryStore) CreateBatch(_ context.Context, batch domain.DeploymentBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[batch.BatchID] = batch
	return nil
}

func (m *memoryStore) FinishBatch(_ context.Context, batch domain.DeploymentBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[batch.BatchID] = batch
	return nil
}

func (m *memoryStore) InsertActivity(_ context.Context, entry domain.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, entry)
	return nil
}

func (m *memoryStore) TrimActivityBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.ActivityEntry
	var trimmed int64
	for _, entry := range m.activity {
		if entry.CreatedAt.Before(cutoff) {
			trimmed++
			continue
		}
		kept = append(kept, entry)
	}
	m.activity = kept
	return trimmed, nil
}

func (m *memoryStore) CountFailedSince(_ context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, entry := range m.activity {
		if entry.ToStatus == domain.StatusFailed && !entry.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memoryStore) item(t *testing.T, id string) domain.ContentItem {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		t.Fatalf("item %s not found", id)
	}
	return item
}

type fakeAgent struct {
	name string
	fn   func(ctx context.Context, req domain.AgentRequest) (domain.AgentResponse, error)
}

func (a *fakeAgent) Name() string { return a.name }

func (a *fakeAgent) Execute(ctx context.Context, req domain.AgentRequest) (domain.AgentResponse, error) {
	return a.fn(ctx, req)
}

type fakeDirectory map[domain.Stage]ports.StageAgent

func (d fakeDirectory) Agent(stage domain.Stage) (ports.StageAgent, error) {
	agent, ok := d[stage]
	if !ok {
		return nil, fmt.Errorf("no agent for stage %s", stage)
	}
	return agent, nil
}

func testEngine(t *testing.T) *audit.Engine {
	t.Helper()
	engine, err := audit.NewEngine(audit.NewRegistry(), audit.DefaultDimensions(), audit.DefaultThreshold)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	return engine
}

func testOrchestrator(t *testing.T, store *memoryStore, agents ports.AgentDirectory) *Orchestrator {
	t.Helper()
	return NewOrchestrator(OrchestratorDeps{
		Store:     store,
		Artifacts: store,
		Audits:    store,
		Agents:    agents,
		Engine:    testEngine(t),
		Retrier:   resilience.NewRetrier(store, nil, nil),
		Monitor:   tracker.NewMonitor(store, time.Hour, time.Hour, 0, nil),
		Policy: resilience.Policy{
			MaxRetries:        2,
			InitialDelay:      time.Millisecond,
			BackoffMultiplier: 2,
			AttemptTimeout:    time.Second,
		},
	})
}

func seedItem(store *memoryStore, id string, status domain.Status, payload domain.Payload) {
	store.items[id] = domain.ContentItem{
		ID:        id,
		Status:    status,
		Payload:   payload,
		CreatedAt: time.Now().UTC().Add(-time.Duration(len(store.items)) * time.Minute),
	}
}

// strongPayload clears every built-in quality check.
func strongPayload() domain.Payload {
	return domain.Payload{
		Classification: &domain.ClassificationOutput{Category: "engineering", Confidence: 0.92},
		Design:         &domain.DesignOutput{Template: "article", Palette: "slate"},
		Assets: &domain.AssetOutput{
			Images:    []domain.AssetRef{{URL: "https://cdn.example.org/hero.png", Alt: "hero"}},
			Validated: true,
		},
		Page: &domain.PageOutput{
			Slug:      "alpha-launch",
			Title:     "Alpha Launch",
			HTML:      "<h1>Alpha Launch</h1><p>body</p>",
			WordCount: 800,
		},
		SEO: &domain.SEOOutput{
			Title:           "Alpha Launch Retrospective",
			MetaDescription: "What we learned shipping the alpha to the first hundred customers.",
			Keywords:        []string{"alpha", "launch"},
		},
	}
}

// seedStrongItem stores an item plus the generated records the quality
// gate reads concurrently.
func seedStrongItem(store *memoryStore, id string, status domain.Status) {
	payload := strongPayload()
	seedItem(store, id, status, payload)

	item := store.items[id]
	category := payload.Classification.Category
	item.Category = &category
	store.items[id] = item

	now := time.Now().UTC()
	store.designs[id] = domain.DesignRecord{
		ContentID: id,
		Template:  payload.Design.Template,
		Palette:   payload.Design.Palette,
		CreatedAt: now,
	}
	store.assets[id] = []domain.AssetRecord{{
		ContentID: id,
		URL:       payload.Assets.Images[0].URL,
		Alt:       payload.Assets.Images[0].Alt,
		Validated: true,
		CreatedAt: now,
	}}
	store.pages[id] = domain.PageRecord{
		ContentID: id,
		Slug:      payload.Page.Slug,
		Title:     payload.Page.Title,
		HTML:      payload.Page.HTML,
		WordCount: payload.Page.WordCount,
		CreatedAt: now,
	}
}

func TestRunStageAdvancesReceivedItem(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedItem(store, "c-1", domain.StatusReceived, domain.Payload{})

	classifier := &fakeAgent{name: "classifier", fn: func(_ context.Context, req domain.AgentRequest) (domain.AgentResponse, error) {
		return domain.AgentResponse{
			Success: true,
			Output: &domain.Payload{
				Classification: &domain.ClassificationOutput{Category: "engineering", Confidence: 0.9},
			},
		}, nil
	}}
	orc := testOrchestrator(t, store, fakeDirectory{domain.StageClassification: classifier})

	result, err := orc.RunStage(context.Background(), domain.StatusReceived)
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if result.Processed != 1 || result.Succeeded != 1 {
		t.Fatalf("unexpected counters: %+v", result)
	}

	item := store.item(t, "c-1")
	if item.Status != domain.StatusClassified {
		t.Fatalf("expected classified, got %s", item.Status)
	}
	if item.Category == nil || *item.Category != "engineering" {
		t.Fatalf("expected category engineering, got %v", item.Category)
	}
	if item.Payload.Classification == nil {
		t.Fatal("classification output must be merged into the payload")
	}
	if item.ProcessingStart == nil {
		t.Fatal("claim must stamp processing start")
	}
}

func TestRunStagePersistsAgentArtifacts(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedItem(store, "c-1", domain.StatusClassified, domain.Payload{
		Classification: &domain.ClassificationOutput{Category: "engineering", Confidence: 0.9},
	})

	designer := &fakeAgent{name: "designer", fn: func(context.Context, domain.AgentRequest) (domain.AgentResponse, error) {
		return domain.AgentResponse{
			Success: true,
			Output:  &domain.Payload{Design: &domain.DesignOutput{Template: "article", Palette: "slate"}},
		}, nil
	}}
	orc := testOrchestrator(t, store, fakeDirectory{domain.StageDesign: designer})

	if _, err := orc.RunStage(context.Background(), domain.StatusClassified); err != nil {
		t.Fatalf("RunStage: %v", err)
	}

	item := store.item(t, "c-1")
	if item.Status != domain.StatusDesignApproved {
		t.Fatalf("expected design_approved, got %s", item.Status)
	}
	if item.Payload.Classification == nil {
		t.Fatal("merge must keep earlier payload sections")
	}
	design, ok := store.designs["c-1"]
	if !ok {
		t.Fatal("design record must be persisted on stage completion")
	}
	if design.Template != "article" {
		t.Fatalf("unexpected design record: %+v", design)
	}
}

func TestRunStageAgentFailureMarksItemFailed(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedItem(store, "c-1", domain.StatusReceived, domain.Payload{})

	classifier := &fakeAgent{name: "classifier", fn: func(context.Context, domain.AgentRequest) (domain.AgentResponse, error) {
		return domain.AgentResponse{}, resilience.NewValidationError("payload missing title")
	}}
	orc := testOrchestrator(t, store, fakeDirectory{domain.StageClassification: classifier})

	result, err := orc.RunStage(context.Background(), domain.StatusReceived)
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("expected 1 failed, got %+v", result)
	}

	item := store.item(t, "c-1")
	if item.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", item.Status)
	}
	if len(item.ErrorLog) != 1 || item.ErrorLog[0].Stage != domain.StageClassification {
		t.Fatalf("expected one classification error entry, got %+v", item.ErrorLog)
	}
	if len(store.records) != 1 {
		t.Fatalf("validation failure must record exactly one attempt, got %d", len(store.records))
	}
}

func TestRunStageClaimConflictSkipsSilently(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedItem(store, "c-1", domain.StatusReceived, domain.Payload{})
	store.failClaim = true

	orc := testOrchestrator(t, store, fakeDirectory{})

	result, err := orc.RunStage(context.Background(), domain.StatusReceived)
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if result.Skipped != 1 || result.Processed != 0 || result.Failed != 0 {
		t.Fatalf("conflict must count as skip only: %+v", result)
	}
	if got := store.item(t, "c-1").Status; got != domain.StatusReceived {
		t.Fatalf("losing the claim must leave the item untouched, got %s", got)
	}
}

func TestRunStageIsolatesFailingSibling(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedItem(store, "c-1", domain.StatusReceived, domain.Payload{})
	seedItem(store, "c-2", domain.StatusReceived, domain.Payload{})

	classifier := &fakeAgent{name: "classifier", fn: func(_ context.Context, req domain.AgentRequest) (domain.AgentResponse, error) {
		if req.ContentID == "c-2" {
			return domain.AgentResponse{}, resilience.NewValidationError("unclassifiable")
		}
		return domain.AgentResponse{
			Success: true,
			Output:  &domain.Payload{Classification: &domain.ClassificationOutput{Category: "news", Confidence: 0.8}},
		}, nil
	}}
	orc := testOrchestrator(t, store, fakeDirectory{domain.StageClassification: classifier})

	result, err := orc.RunStage(context.Background(), domain.StatusReceived)
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if result.Processed != 2 || result.Succeeded != 1 || result.Failed != 1 {
		t.Fatalf("unexpected counters: %+v", result)
	}
	if got := store.item(t, "c-1").Status; got != domain.StatusClassified {
		t.Fatalf("healthy sibling must advance, got %s", got)
	}
	if got := store.item(t, "c-2").Status; got != domain.StatusFailed {
		t.Fatalf("failing item must end failed, got %s", got)
	}
}

func TestQualityGateApprovesHighScore(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedStrongItem(store, "c-1", domain.StatusSEOOptimized)

	orc := testOrchestrator(t, store, fakeDirectory{})

	result, err := orc.RunStage(context.Background(), domain.StatusSEOOptimized)
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("unexpected counters: %+v", result)
	}
	if got := store.item(t, "c-1").Status; got != domain.StatusQualityApproved {
		t.Fatalf("expected quality_approved, got %s", got)
	}

	latest, err := store.LatestAudit(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("LatestAudit: %v", err)
	}
	if latest.Score < audit.DefaultThreshold {
		t.Fatalf("expected passing score, got %d", latest.Score)
	}
}

func TestQualityGateHoldsLowScoreForReview(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedItem(store, "c-1", domain.StatusSEOOptimized, domain.Payload{})

	orc := testOrchestrator(t, store, fakeDirectory{})

	result, err := orc.RunStage(context.Background(), domain.StatusSEOOptimized)
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if result.Succeeded != 1 || result.Failed != 0 {
		t.Fatalf("a gate verdict is not a failure: %+v", result)
	}
	if got := store.item(t, "c-1").Status; got != domain.StatusRequiresManualReview {
		t.Fatalf("expected requires_manual_review, got %s", got)
	}

	latest, err := store.LatestAudit(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("LatestAudit: %v", err)
	}
	if latest.Score >= audit.DefaultThreshold {
		t.Fatalf("expected failing score, got %d", latest.Score)
	}
	if len(latest.Recommendations) == 0 {
		t.Fatal("failing audit must carry recommendations")
	}
}

func TestAgentlessAdvanceToApproved(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedItem(store, "c-1", domain.StatusQualityApproved, strongPayload())

	orc := testOrchestrator(t, store, fakeDirectory{})

	result, err := orc.RunStage(context.Background(), domain.StatusQualityApproved)
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("unexpected counters: %+v", result)
	}
	if got := store.item(t, "c-1").Status; got != domain.StatusApprovedForPublishing {
		t.Fatalf("expected approved_for_publishing, got %s", got)
	}
}

func TestRunStageRetriesTransientAgentError(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedItem(store, "c-1", domain.StatusReceived, domain.Payload{})

	calls := 0
	classifier := &fakeAgent{name: "classifier", fn: func(context.Context, domain.AgentRequest) (domain.AgentResponse, error) {
		calls++
		if calls == 1 {
			return domain.AgentResponse{}, errors.New("connection reset")
		}
		return domain.AgentResponse{
			Success: true,
			Output:  &domain.Payload{Classification: &domain.ClassificationOutput{Category: "news", Confidence: 0.7}},
		}, nil
	}}
	orc := testOrchestrator(t, store, fakeDirectory{domain.StageClassification: classifier})

	if _, err := orc.RunStage(context.Background(), domain.StatusReceived); err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected a retry after the transient error, got %d calls", calls)
	}
	if got := store.item(t, "c-1").Status; got != domain.StatusClassified {
		t.Fatalf("expected classified after retry, got %s", got)
	}
	if len(store.records) != 2 {
		t.Fatalf("expected one record per attempt, got %d", len(store.records))
	}
}

func TestAuditContentLeavesStatusUntouched(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedStrongItem(store, "c-1", domain.StatusRequiresManualReview)

	orc := testOrchestrator(t, store, fakeDirectory{})

	record, err := orc.AuditContent(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("AuditContent: %v", err)
	}
	if record.ContentID != "c-1" || record.AuditID == "" {
		t.Fatalf("unexpected audit record: %+v", record)
	}
	if got := store.item(t, "c-1").Status; got != domain.StatusRequiresManualReview {
		t.Fatalf("auditing must not change status, got %s", got)
	}
	if len(store.audits["c-1"]) != 1 {
		t.Fatalf("expected 1 persisted audit, got %d", len(store.audits["c-1"]))
	}
}
