package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// PostgresStore persists pipeline state in Postgres. It backs every
// store port; the conditional status update is the pipeline's only
// concurrency guard, so it is expressed as a single guarded UPDATE.
type PostgresStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var (
	_ ports.ContentStore    = (*PostgresStore)(nil)
	_ ports.AuditStore      = (*PostgresStore)(nil)
	_ ports.StageRecorder   = (*PostgresStore)(nil)
	_ ports.DeploymentStore = (*PostgresStore)(nil)
	_ ports.ArtifactStore   = (*PostgresStore)(nil)
	_ ports.ActivityStore   = (*PostgresStore)(nil)
)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// CreateContent inserts a fresh item in status received.
func (s *PostgresStore) CreateContent(ctx context.Context, item domain.ContentItem) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.sb.Insert("content_items").
		Columns("content_id", "status", "category", "payload").
		Values(item.ID, item.Status, item.Category, payload).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

// GetContent loads one item with its full error log.
func (s *PostgresStore) GetContent(ctx context.Context, id string) (domain.ContentItem, error) {
	row := s.sb.Select("content_id", "status", "category", "payload",
		"created_at", "updated_at", "processing_start", "processing_end").
		From("content_items").
		Where(sq.Eq{"content_id": id}).
		RunWith(s.db).QueryRowContext(ctx)

	var item domain.ContentItem
	var payload []byte
	err := row.Scan(&item.ID, &item.Status, &item.Category, &payload,
		&item.CreatedAt, &item.UpdatedAt, &item.ProcessingStart, &item.ProcessingEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ContentItem{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("scan content: %w", err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &item.Payload); err != nil {
			return domain.ContentItem{}, fmt.Errorf("unmarshal payload: %w", err)
		}
	}

	item.ErrorLog, err = s.errorLog(ctx, id)
	if err != nil {
		return domain.ContentItem{}, err
	}
	return item, nil
}

func (s *PostgresStore) errorLog(ctx context.Context, id string) ([]domain.ErrorEntry, error) {
	rows, err := s.sb.Select("stage", "message", "created_at").
		From("content_errors").
		Where(sq.Eq{"content_id": id}).
		OrderBy("created_at ASC", "id ASC").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query error log: %w", err)
	}
	defer rows.Close()

	var entries []domain.ErrorEntry
	for rows.Next() {
		var entry domain.ErrorEntry
		if err := rows.Scan(&entry.Stage, &entry.Message, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan error entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error log iteration: %w", err)
	}
	return entries, nil
}

// SelectByStatus returns up to limit items in creation order.
func (s *PostgresStore) SelectByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.ContentItem, error) {
	rows, err := s.sb.Select("content_id", "status", "category", "payload",
		"created_at", "updated_at", "processing_start", "processing_end").
		From("content_items").
		Where(sq.Eq{"status": status}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()

	var items []domain.ContentItem
	for rows.Next() {
		var item domain.ContentItem
		var payload []byte
		err := rows.Scan(&item.ID, &item.Status, &item.Category, &payload,
			&item.CreatedAt, &item.UpdatedAt, &item.ProcessingStart, &item.ProcessingEnd)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &item.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("status query iteration: %w", err)
	}
	return items, nil
}

// ConditionalTransition moves status only while the stored value still
// equals from. Zero affected rows means another writer won the race.
func (s *PostgresStore) ConditionalTransition(ctx context.Context, id string, from, to domain.Status, patch domain.ContentPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	update := s.sb.Update("content_items").
		Set("status", to).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"content_id": id, "status": from})
	if patch.Category != nil {
		update = update.Set("category", *patch.Category)
	}
	if patch.Payload != nil {
		payload, err := json.Marshal(*patch.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		update = update.Set("payload", payload)
	}
	if patch.ProcessingStart != nil {
		update = update.Set("processing_start", *patch.ProcessingStart)
	}
	if patch.ProcessingEnd != nil {
		update = update.Set("processing_end", *patch.ProcessingEnd)
	}

	res, err := update.RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("conditional update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ports.ErrStatusConflict
	}

	if patch.ErrorEntry != nil {
		_, err = s.sb.Insert("content_errors").
			Columns("content_id", "stage", "message", "created_at").
			Values(id, patch.ErrorEntry.Stage, patch.ErrorEntry.Message, patch.ErrorEntry.Timestamp).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("append error entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// AppendError adds one entry to the append-only error log.
func (s *PostgresStore) AppendError(ctx context.Context, id string, entry domain.ErrorEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.sb.Insert("content_errors").
		Columns("content_id", "stage", "message", "created_at").
		Values(id, entry.Stage, entry.Message, entry.Timestamp).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("append error: %w", err)
	}
	return nil
}

// SaveAudit inserts one immutable audit row.
func (s *PostgresStore) SaveAudit(ctx context.Context, audit domain.QualityAudit) error {
	dimensions, err := json.Marshal(audit.Dimensions)
	if err != nil {
		return fmt.Errorf("marshal dimensions: %w", err)
	}
	_, err = s.sb.Insert("quality_audits").
		Columns("audit_id", "content_id", "score", "dimensions", "recommendations", "created_at").
		Values(audit.AuditID, audit.ContentID, audit.Score, dimensions,
			pq.StringArray(audit.Recommendations), audit.CreatedAt).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// LatestAudit returns the most recent audit for gating.
func (s *PostgresStore) LatestAudit(ctx context.Context, contentID string) (domain.QualityAudit, error) {
	row := s.sb.Select("audit_id", "content_id", "score", "dimensions", "recommendations", "created_at").
		From("quality_audits").
		Where(sq.Eq{"content_id": contentID}).
		OrderBy("created_at DESC").
		Limit(1).
		RunWith(s.db).QueryRowContext(ctx)

	var audit domain.QualityAudit
	var dimensions []byte
	var recommendations pq.StringArray
	err := row.Scan(&audit.AuditID, &audit.ContentID, &audit.Score,
		&dimensions, &recommendations, &audit.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QualityAudit{}, ports.ErrNoAudit
	}
	if err != nil {
		return domain.QualityAudit{}, fmt.Errorf("scan audit: %w", err)
	}
	if err := json.Unmarshal(dimensions, &audit.Dimensions); err != nil {
		return domain.QualityAudit{}, fmt.Errorf("unmarshal dimensions: %w", err)
	}
	audit.Recommendations = recommendations
	return audit, nil
}

// RecordStageAttempt appends one stage-attempt row. Retries insert new
// rows; nothing here ever updates an existing attempt.
func (s *PostgresStore) RecordStageAttempt(ctx context.Context, record domain.PipelineStageRecord) error {
	var completedAt any
	if record.CompletedAt != nil {
		completedAt = *record.CompletedAt
	}
	_, err := s.sb.Insert("pipeline_stage_records").
		Columns("content_id", "stage", "agent", "attempt", "status",
			"started_at", "completed_at", "error_message").
		Values(record.ContentID, record.Stage, record.Agent, record.Attempt, record.Status,
			record.StartedAt, completedAt, record.ErrorMessage).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert stage record: %w", err)
	}
	return nil
}

// CreateBatch inserts the pending deployment-batch row.
func (s *PostgresStore) CreateBatch(ctx context.Context, batch domain.DeploymentBatch) error {
	_, err := s.sb.Insert("deployment_batches").
		Columns("batch_id", "content_ids", "status", "started_at").
		Values(batch.BatchID, pq.StringArray(batch.ContentIDs), batch.Status, batch.StartedAt).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// FinishBatch stamps the terminal state of one batch.
func (s *PostgresStore) FinishBatch(ctx context.Context, batch domain.DeploymentBatch) error {
	_, err := s.sb.Update("deployment_batches").
		Set("status", batch.Status).
		Set("commit_ref", batch.CommitRef).
		Set("build_ref", batch.BuildRef).
		Set("published_urls", pq.StringArray(batch.PublishedURLs)).
		Set("rollback_performed", batch.RollbackPerformed).
		Set("error_message", batch.ErrorMessage).
		Set("completed_at", batch.CompletedAt).
		Where(sq.Eq{"batch_id": batch.BatchID}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return nil
}

// SaveDesign upserts the design assignment for one item.
func (s *PostgresStore) SaveDesign(ctx context.Context, record domain.DesignRecord) error {
	_, err := s.sb.Insert("designs").
		Columns("content_id", "template", "palette", "created_at").
		Values(record.ContentID, record.Template, record.Palette, record.CreatedAt).
		Suffix("ON CONFLICT (content_id) DO UPDATE SET template = EXCLUDED.template, palette = EXCLUDED.palette").
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("upsert design: %w", err)
	}
	return nil
}

// SaveAssets replaces the asset set for one item.
func (s *PostgresStore) SaveAssets(ctx context.Context, contentID string, assets []domain.AssetRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save assets: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.sb.Delete("assets").
		Where(sq.Eq{"content_id": contentID}).
		RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("clear assets: %w", err)
	}
	for _, asset := range assets {
		if _, err := s.sb.Insert("assets").
			Columns("content_id", "url", "alt", "validated", "created_at").
			Values(asset.ContentID, asset.URL, asset.Alt, asset.Validated, asset.CreatedAt).
			RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert asset: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save assets: %w", err)
	}
	return nil
}

// SavePage upserts the composed page for one item.
func (s *PostgresStore) SavePage(ctx context.Context, record domain.PageRecord) error {
	_, err := s.sb.Insert("generated_pages").
		Columns("content_id", "slug", "title", "html", "word_count", "created_at").
		Values(record.ContentID, record.Slug, record.Title, record.HTML, record.WordCount, record.CreatedAt).
		Suffix(`ON CONFLICT (content_id) DO UPDATE
            SET slug = EXCLUDED.slug,
                title = EXCLUDED.title,
                html = EXCLUDED.html,
                word_count = EXCLUDED.word_count`).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	return nil
}

// DesignFor loads the design assignment or ErrNotFound.
func (s *PostgresStore) DesignFor(ctx context.Context, contentID string) (domain.DesignRecord, error) {
	row := s.sb.Select("content_id", "template", "palette", "created_at").
		From("designs").
		Where(sq.Eq{"content_id": contentID}).
		RunWith(s.db).QueryRowContext(ctx)

	var record domain.DesignRecord
	err := row.Scan(&record.ContentID, &record.Template, &record.Palette, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DesignRecord{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.DesignRecord{}, fmt.Errorf("scan design: %w", err)
	}
	return record, nil
}

// AssetsFor loads the asset set for one item.
func (s *PostgresStore) AssetsFor(ctx context.Context, contentID string) ([]domain.AssetRecord, error) {
	rows, err := s.sb.Select("content_id", "url", "alt", "validated", "created_at").
		From("assets").
		Where(sq.Eq{"content_id": contentID}).
		OrderBy("id ASC").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.AssetRecord
	for rows.Next() {
		var asset domain.AssetRecord
		if err := rows.Scan(&asset.ContentID, &asset.URL, &asset.Alt, &asset.Validated, &asset.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("asset iteration: %w", err)
	}
	return assets, nil
}

// PageFor loads the composed page or ErrNotFound.
func (s *PostgresStore) PageFor(ctx context.Context, contentID string) (domain.PageRecord, error) {
	row := s.sb.Select("content_id", "slug", "title", "html", "word_count", "created_at").
		From("generated_pages").
		Where(sq.Eq{"content_id": contentID}).
		RunWith(s.db).QueryRowContext(ctx)

	var record domain.PageRecord
	err := row.Scan(&record.ContentID, &record.Slug, &record.Title,
		&record.HTML, &record.WordCount, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PageRecord{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.PageRecord{}, fmt.Errorf("scan page: %w", err)
	}
	return record, nil
}

// InsertActivity appends one activity-log row.
func (s *PostgresStore) InsertActivity(ctx context.Context, entry domain.ActivityEntry) error {
	_, err := s.sb.Insert("activity_log").
		Columns("content_id", "stage", "from_status", "to_status", "agent", "detail", "created_at").
		Values(entry.ContentID, entry.Stage, entry.FromStatus, entry.ToStatus,
			entry.Agent, entry.Detail, entry.CreatedAt).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// TrimActivityBefore deletes entries older than cutoff.
func (s *PostgresStore) TrimActivityBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.sb.Delete("activity_log").
		Where(sq.Lt{"created_at": cutoff}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("trim activity: %w", err)
	}
	trimmed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return trimmed, nil
}

// CountFailedSince counts failed transitions inside the window.
func (s *PostgresStore) CountFailedSince(ctx context.Context, since time.Time) (int, error) {
	row := s.sb.Select("COUNT(*)").
		From("activity_log").
		Where(sq.Eq{"to_status": domain.StatusFailed}).
		Where(sq.GtOrEq{"created_at": since}).
		RunWith(s.db).QueryRowContext(ctx)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return count, nil
}
