package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gridcheck-ai/gridcheck-engine/pkg/llm"
	"github.com/gridcheck-ai/gridcheck-engine/pkg/models"
	"github.com/gridcheck-ai/gridcheck-engine/pkg/repositories"
)

// CriteriaSource supplies the catalog subsets an indexing run operates
// on. Implemented by pkg/catalog.
type CriteriaSource interface {
	Documents() []models.CriteriaDocument
	ByCategory(category models.Category) []models.CriteriaDocument
	ByTestType(testType models.TestType) []models.CriteriaDocument
}

// ProgressEvent reports one document about to be processed. Events are
// emitted in catalog order, before the idempotency check, so observers
// see every selected document exactly once.
type ProgressEvent struct {
	Total      int
	Current    int // 1-based position within the run
	DocumentID string
	Title      string
}

// ProgressObserver receives progress events from an indexing run.
// Implementations must not block; the indexer calls them synchronously.
type ProgressObserver interface {
	OnDocument(event ProgressEvent)
}

// ProgressFunc adapts a function to the ProgressObserver interface.
type ProgressFunc func(event ProgressEvent)

// OnDocument implements ProgressObserver.
func (f ProgressFunc) OnDocument(event ProgressEvent) {
	f(event)
}

// IndexResult aggregates the outcome of one indexing run. Indexed and
// Failed count documents, not rows: a UNIVERSAL document producing three
// rows still counts once. Errors preserves failure order.
type IndexResult struct {
	Success    bool
	Indexed    int
	Failed     int
	Errors     []string
	TokensUsed int
	Duration   time.Duration
}

// IndexerOptions tunes batch pacing and progress reporting.
type IndexerOptions struct {
	// PauseEvery is how many documents are processed between pauses.
	// Zero or negative disables pausing.
	PauseEvery int
	// Pause is the duration of each pause.
	Pause time.Duration
	// Observer receives per-document progress events. May be nil.
	Observer ProgressObserver
}

// CriteriaIndexer drives batch indexing of the criteria catalog into the
// knowledge store. Runs are idempotent: a criterion with at least one
// existing catalog row is skipped at zero token cost, so a resumed batch
// never re-bills documents that already completed.
//
// Two known limitations, by contract rather than accident: concurrent
// runs over overlapping documents race the check-then-insert sequence
// and may duplicate a criterion within a bounded window, and the
// primary+secondary row writes of one document are not a single
// transaction, so a crash mid-document leaves partial test-type coverage
// that only a scoped clear followed by a re-run repairs.
type CriteriaIndexer struct {
	catalog    CriteriaSource
	embedder   llm.EmbeddingClient
	repo       repositories.KnowledgeEmbeddingRepository
	logger     *zap.Logger
	pauseEvery int
	pause      time.Duration
	observer   ProgressObserver
}

// NewCriteriaIndexer creates a new criteria indexer service.
func NewCriteriaIndexer(
	catalog CriteriaSource,
	embedder llm.EmbeddingClient,
	repo repositories.KnowledgeEmbeddingRepository,
	logger *zap.Logger,
	opts IndexerOptions,
) *CriteriaIndexer {
	return &CriteriaIndexer{
		catalog:    catalog,
		embedder:   embedder,
		repo:       repo,
		logger:     logger.Named("criteria-indexer"),
		pauseEvery: opts.PauseEvery,
		pause:      opts.Pause,
		observer:   opts.Observer,
	}
}

// IndexAll indexes the full catalog.
func (s *CriteriaIndexer) IndexAll(ctx context.Context) (*IndexResult, error) {
	return s.indexDocuments(ctx, s.catalog.Documents())
}

// IndexByCategory indexes the documents of exactly one category.
func (s *CriteriaIndexer) IndexByCategory(ctx context.Context, category models.Category) (*IndexResult, error) {
	return s.indexDocuments(ctx, s.catalog.ByCategory(category))
}

// IndexByTestType indexes the documents applicable to one test type,
// which always includes UNIVERSAL-category documents.
func (s *CriteriaIndexer) IndexByTestType(ctx context.Context, testType models.TestType) (*IndexResult, error) {
	return s.indexDocuments(ctx, s.catalog.ByTestType(testType))
}

// ClearAll deletes every catalog-sourced row and returns the deleted
// count. Tenant-owned rows in the shared table are never touched.
func (s *CriteriaIndexer) ClearAll(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteGlobal(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear knowledge base: %w", err)
	}
	s.logger.Info("Cleared criteria knowledge base", zap.Int64("deleted", deleted))
	return deleted, nil
}

// ClearCategory deletes the catalog-sourced rows of one category.
func (s *CriteriaIndexer) ClearCategory(ctx context.Context, category models.Category) (int64, error) {
	deleted, err := s.repo.DeleteGlobalByCategory(ctx, category)
	if err != nil {
		return 0, fmt.Errorf("failed to clear category %s: %w", category, err)
	}
	s.logger.Info("Cleared criteria category",
		zap.String("category", string(category)),
		zap.Int64("deleted", deleted))
	return deleted, nil
}

// Stats returns the current catalog-sourced row counts per category.
func (s *CriteriaIndexer) Stats(ctx context.Context) (map[string]int64, error) {
	return s.repo.CountGlobalByCategory(ctx)
}

// indexDocuments is the shared inner loop. Documents are processed
// sequentially in catalog order; a single document's failure is recorded
// and never aborts the batch. Cancellation is honored between documents
// only, so already-written rows stay intact and a later resume is safe.
func (s *CriteriaIndexer) indexDocuments(ctx context.Context, docs []models.CriteriaDocument) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	s.logger.Info("Starting indexing run",
		zap.Int("documents", len(docs)),
		zap.String("model", s.embedder.GetModel()))

	for i := range docs {
		doc := &docs[i]

		if err := ctx.Err(); err != nil {
			result.Success = false
			result.Duration = time.Since(start)
			return result, fmt.Errorf("indexing aborted after %d documents: %w", i, err)
		}

		if s.observer != nil {
			s.observer.OnDocument(ProgressEvent{
				Total:      len(docs),
				Current:    i + 1,
				DocumentID: doc.ID,
				Title:      doc.Title,
			})
		}

		if err := s.indexDocument(ctx, doc, result); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", doc.ID, err))
			s.logger.Warn("Failed to index document",
				zap.String("id", doc.ID),
				zap.Error(err))
			// Continue with the next document.
		}

		if s.pauseEvery > 0 && s.pause > 0 && (i+1)%s.pauseEvery == 0 && i+1 < len(docs) {
			if err := sleepCtx(ctx, s.pause); err != nil {
				result.Success = false
				result.Duration = time.Since(start)
				return result, fmt.Errorf("indexing aborted after %d documents: %w", i+1, err)
			}
		}
	}

	result.Success = result.Failed == 0
	result.Duration = time.Since(start)

	s.logger.Info("Indexing run complete",
		zap.Int("indexed", result.Indexed),
		zap.Int("failed", result.Failed),
		zap.Int("tokens_used", result.TokensUsed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// indexDocument processes one document: idempotency check, embedding,
// then one row per resolved test type (first primary, rest secondary).
func (s *CriteriaIndexer) indexDocument(ctx context.Context, doc *models.CriteriaDocument, result *IndexResult) error {
	exists, err := s.repo.ExistsByCriterion(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("existence check: %w", err)
	}
	if exists {
		// Already indexed: success at zero token cost. This is the
		// defense against double-billing when a batch is resumed.
		result.Indexed++
		s.logger.Debug("Criterion already indexed, skipping", zap.String("id", doc.ID))
		return nil
	}

	content := BuildEmbeddingContent(doc)

	vector, tokens, err := s.embedder.CreateEmbedding(ctx, content)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}

	testTypes := doc.ResolvedTestTypes()
	if len(testTypes) == 0 {
		return fmt.Errorf("no applicable test types")
	}

	// One embedding, N rows: the primary row takes the first resolved
	// test type, secondaries reuse the same vector for the rest.
	for i, tt := range testTypes {
		row := models.NewCriteriaEmbedding(doc, content, vector, tt, i > 0)
		if err := s.repo.Insert(ctx, row); err != nil {
			return fmt.Errorf("insert row for test type %s: %w", tt, err)
		}
	}

	result.Indexed++
	result.TokensUsed += tokens
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
