package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridcheck-ai/gridcheck-engine/pkg/database"
	"github.com/gridcheck-ai/gridcheck-engine/pkg/models"
)

// KnowledgeEmbeddingRepository provides data access for the shared
// knowledge-base table. Every operation here is scoped to catalog-sourced
// rows (company_id IS NULL AND analysis_id IS NULL); per-tenant
// loop-learning rows written by the analysis pipeline are never touched.
type KnowledgeEmbeddingRepository interface {
	// Insert writes one row. Secondary rows for the same criterion are
	// separate Insert calls; the caller decides the fan-out.
	Insert(ctx context.Context, row *models.KnowledgeEmbedding) error

	// ExistsByCriterion reports whether at least one catalog row for the
	// criterion exists. This is the indexer's idempotency check.
	ExistsByCriterion(ctx context.Context, criterionID string) (bool, error)

	// DeleteGlobal removes every catalog-sourced row and returns the
	// deleted count.
	DeleteGlobal(ctx context.Context) (int64, error)

	// DeleteGlobalByCategory removes the catalog-sourced rows of one
	// category and returns the deleted count.
	DeleteGlobalByCategory(ctx context.Context, category models.Category) (int64, error)

	// CountGlobalByCategory returns the number of catalog-sourced rows
	// per category, for operator visibility.
	CountGlobalByCategory(ctx context.Context) (map[string]int64, error)
}

type knowledgeEmbeddingRepository struct {
	db *database.DB
}

// NewKnowledgeEmbeddingRepository creates a new KnowledgeEmbeddingRepository.
func NewKnowledgeEmbeddingRepository(db *database.DB) KnowledgeEmbeddingRepository {
	return &knowledgeEmbeddingRepository{db: db}
}

var _ KnowledgeEmbeddingRepository = (*knowledgeEmbeddingRepository)(nil)

// globalScope restricts statements to catalog-sourced rows of the two
// catalog content types. Tenant rows share the table and must survive
// every clear operation.
const globalScope = `content_type IN ('TECHNICAL_STANDARD', 'BEST_PRACTICE')
		AND company_id IS NULL AND analysis_id IS NULL`

func (r *knowledgeEmbeddingRepository) Insert(ctx context.Context, row *models.KnowledgeEmbedding) error {
	now := time.Now()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.CreatedAt = now
	row.UpdatedAt = now

	metadata, err := json.Marshal(row.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding metadata: %w", err)
	}

	query := `
		INSERT INTO engine_knowledge_embeddings (
			id, company_id, analysis_id, content_type, test_type, verdict,
			content, embedding, metadata, was_correct, use_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.Exec(ctx, query,
		row.ID, row.CompanyID, row.AnalysisID, row.ContentType, row.TestType, row.Verdict,
		row.Content, row.Embedding, metadata, row.WasCorrect, row.UseCount,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge embedding: %w", err)
	}

	return nil
}

func (r *knowledgeEmbeddingRepository) ExistsByCriterion(ctx context.Context, criterionID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM engine_knowledge_embeddings
			WHERE metadata->>'criterionId' = $1
				AND company_id IS NULL AND analysis_id IS NULL
		)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, criterionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check criterion existence: %w", err)
	}

	return exists, nil
}

func (r *knowledgeEmbeddingRepository) DeleteGlobal(ctx context.Context) (int64, error) {
	query := `DELETE FROM engine_knowledge_embeddings WHERE ` + globalScope

	result, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete global knowledge embeddings: %w", err)
	}

	return result.RowsAffected(), nil
}

func (r *knowledgeEmbeddingRepository) DeleteGlobalByCategory(ctx context.Context, category models.Category) (int64, error) {
	query := `DELETE FROM engine_knowledge_embeddings
		WHERE ` + globalScope + `
			AND metadata->>'category' = $1`

	result, err := r.db.Exec(ctx, query, string(category))
	if err != nil {
		return 0, fmt.Errorf("failed to delete knowledge embeddings for category %s: %w", category, err)
	}

	return result.RowsAffected(), nil
}

func (r *knowledgeEmbeddingRepository) CountGlobalByCategory(ctx context.Context) (map[string]int64, error) {
	query := `
		SELECT metadata->>'category', COUNT(*)
		FROM engine_knowledge_embeddings
		WHERE ` + globalScope + `
		GROUP BY metadata->>'category'`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count knowledge embeddings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category counts: %w", err)
	}

	return counts, nil
}
