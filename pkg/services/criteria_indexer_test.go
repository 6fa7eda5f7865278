package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gridcheck-ai/gridcheck-engine/pkg/llm"
	"github.com/gridcheck-ai/gridcheck-engine/pkg/models"
)

// stubCriteriaSource implements CriteriaSource over a fixed document
// slice with the catalog's selection semantics.
type stubCriteriaSource struct {
	docs []models.CriteriaDocument
}

func (s *stubCriteriaSource) Documents() []models.CriteriaDocument {
	out := make([]models.CriteriaDocument, len(s.docs))
	copy(out, s.docs)
	return out
}

func (s *stubCriteriaSource) ByCategory(category models.Category) []models.CriteriaDocument {
	out := make([]models.CriteriaDocument, 0)
	for _, d := range s.docs {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

func (s *stubCriteriaSource) ByTestType(testType models.TestType) []models.CriteriaDocument {
	out := make([]models.CriteriaDocument, 0)
	for _, d := range s.docs {
		if d.AppliesTo(testType) {
			out = append(out, d)
		}
	}
	return out
}

// memoryEmbeddingRepo is an in-memory KnowledgeEmbeddingRepository.
type memoryEmbeddingRepo struct {
	rows      []*models.KnowledgeEmbedding
	existsErr error
	// insertErrFor fails inserts whose metadata criterionId matches.
	insertErrFor map[string]error
}

func newMemoryEmbeddingRepo() *memoryEmbeddingRepo {
	return &memoryEmbeddingRepo{insertErrFor: map[string]error{}}
}

func (m *memoryEmbeddingRepo) Insert(ctx context.Context, row *models.KnowledgeEmbedding) error {
	if err := m.insertErrFor[row.Metadata.CriterionID]; err != nil {
		return err
	}
	m.rows = append(m.rows, row)
	return nil
}

func (m *memoryEmbeddingRepo) ExistsByCriterion(ctx context.Context, criterionID string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	for _, row := range m.rows {
		if row.Metadata.CriterionID == criterionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryEmbeddingRepo) DeleteGlobal(ctx context.Context) (int64, error) {
	deleted := int64(len(m.rows))
	m.rows = nil
	return deleted, nil
}

func (m *memoryEmbeddingRepo) DeleteGlobalByCategory(ctx context.Context, category models.Category) (int64, error) {
	kept := m.rows[:0]
	var deleted int64
	for _, row := range m.rows {
		if row.Metadata.Category == category {
			deleted++
		} else {
			kept = append(kept, row)
		}
	}
	m.rows = kept
	return deleted, nil
}

func (m *memoryEmbeddingRepo) CountGlobalByCategory(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, row := range m.rows {
		counts[string(row.Metadata.Category)]++
	}
	return counts, nil
}

func (m *memoryEmbeddingRepo) rowsForCriterion(id string) []*models.KnowledgeEmbedding {
	out := make([]*models.KnowledgeEmbedding, 0)
	for _, row := range m.rows {
		if row.Metadata.CriterionID == id {
			out = append(out, row)
		}
	}
	return out
}

func doc(id string, category models.Category, applicable ...models.TestType) models.CriteriaDocument {
	return models.CriteriaDocument{
		ID:       id,
		Type:     models.DocumentTypeCriteria,
		Category: category,
		Title:    "Criterion " + id,
		Content:  "Body of " + id,
		Metadata: models.CriteriaMetadata{ApplicableTestTypes: applicable},
	}
}

func newIndexer(source CriteriaSource, embedder llm.EmbeddingClient, repo *memoryEmbeddingRepo, opts IndexerOptions) *CriteriaIndexer {
	return NewCriteriaIndexer(source, embedder, repo, zap.NewNop(), opts)
}

func TestIndexAll_Idempotent(t *testing.T) {
	source := &stubCriteriaSource{docs: []models.CriteriaDocument{
		doc("a", models.CategoryGrounding),
		doc("b", models.CategoryUniversal),
	}}
	repo := newMemoryEmbeddingRepo()
	embedder := llm.NewMockEmbeddingClient()
	embedder.CreateEmbeddingFunc = func(ctx context.Context, input string) ([]float32, int, error) {
		return []float32{1, 2, 3}, 50, nil
	}
	indexer := newIndexer(source, embedder, repo, IndexerOptions{})

	first, err := indexer.IndexAll(context.Background())
	require.NoError(t, err)
	require.True(t, first.Success)
	assert.Equal(t, 2, first.Indexed)
	assert.Equal(t, 100, first.TokensUsed)
	rowsAfterFirst := len(repo.rows)

	second, err := indexer.IndexAll(context.Background())
	require.NoError(t, err)
	require.True(t, second.Success)
	assert.Equal(t, 2, second.Indexed, "skipped documents still count as indexed")
	assert.Zero(t, second.TokensUsed, "idempotent re-run must cost no tokens")
	assert.Equal(t, rowsAfterFirst, len(repo.rows), "re-run must not add rows")
	assert.Equal(t, 2, embedder.CreateEmbeddingCalls, "embedding provider must not be called again")
}

func TestIndexAll_UniversalFanOut(t *testing.T) {
	source := &stubCriteriaSource{docs: []models.CriteriaDocument{
		doc("u", models.CategoryUniversal),
	}}
	repo := newMemoryEmbeddingRepo()
	indexer := newIndexer(source, llm.NewMockEmbeddingClient(), repo, IndexerOptions{})

	result, err := indexer.IndexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed, "documents are counted, not rows")

	rows := repo.rowsForCriterion("u")
	require.Len(t, rows, 3)

	// Primary first, in the fixed fan-out order.
	assert.Equal(t, models.TestTypeGrounding, *rows[0].TestType)
	assert.False(t, rows[0].Metadata.SecondaryIndex)
	assert.Equal(t, models.TestTypeMegger, *rows[1].TestType)
	assert.True(t, rows[1].Metadata.SecondaryIndex)
	assert.Equal(t, models.TestTypeThermography, *rows[2].TestType)
	assert.True(t, rows[2].Metadata.SecondaryIndex)

	// All three rows share one embedding and one content blob.
	for _, row := range rows[1:] {
		assert.Equal(t, rows[0].Content, row.Content)
		assert.Equal(t, rows[0].Embedding, row.Embedding)
	}
}

func TestIndexAll_PartialFailureIsolation(t *testing.T) {
	source := &stubCriteriaSource{docs: []models.CriteriaDocument{
		doc("first", models.CategoryGrounding),
		doc("second", models.CategoryGrounding),
		doc("third", models.CategoryGrounding),
	}}
	repo := newMemoryEmbeddingRepo()
	embedder := llm.NewMockEmbeddingClient()
	embedder.CreateEmbeddingFunc = func(ctx context.Context, input string) ([]float32, int, error) {
		if embedder.CreateEmbeddingCalls == 2 {
			return nil, 0, errors.New("provider unavailable")
		}
		return []float32{1}, 10, nil
	}
	indexer := newIndexer(source, embedder, repo, IndexerOptions{})

	result, err := indexer.IndexAll(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Indexed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "second: ")
	assert.Contains(t, result.Errors[0], "provider unavailable")

	assert.Len(t, repo.rowsForCriterion("first"), 1)
	assert.Empty(t, repo.rowsForCriterion("second"))
	assert.Len(t, repo.rowsForCriterion("third"), 1)
}

func TestIndexAll_InsertFailureIsPerDocument(t *testing.T) {
	source := &stubCriteriaSource{docs: []models.CriteriaDocument{
		doc("ok", models.CategoryMegger),
		doc("broken", models.CategoryMegger),
	}}
	repo := newMemoryEmbeddingRepo()
	repo.insertErrFor["broken"] = errors.New("connection reset")
	indexer := newIndexer(source, llm.NewMockEmbeddingClient(), repo, IndexerOptions{})

	result, err := indexer.IndexAll(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "broken: ")
}

func TestIndexAll_TokenAccountingSkipsIdempotentHits(t *testing.T) {
	source := &stubCriteriaSource{docs: []models.CriteriaDocument{
		doc("old", models.CategoryGrounding),
		doc("new", models.CategoryGrounding),
	}}
	repo := newMemoryEmbeddingRepo()

	// "old" is already indexed from a previous run.
	already := doc("old", models.CategoryGrounding)
	require.NoError(t, repo.Insert(context.Background(),
		models.NewCriteriaEmbedding(&already, "content", []float32{1}, models.TestTypeGrounding, false)))

	embedder := llm.NewMockEmbeddingClient()
	embedder.CreateEmbeddingFunc = func(ctx context.Context, input string) ([]float32, int, error) {
		return []float32{1}, 120, nil
	}
	indexer := newIndexer(source, embedder, repo, IndexerOptions{})

	result, err := indexer.IndexAll(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Indexed)
	assert.Equal(t, 120, result.TokensUsed)
	assert.Equal(t, 1, embedder.CreateEmbeddingCalls)
}

// Catalog scenario: A is plain GROUNDING, B overrides to
// [GROUNDING, MEGGER], C and D are UNIVERSAL.
func scenarioSource() *stubCriteriaSource {
	return &stubCriteriaSource{docs: []models.CriteriaDocument{
		doc("a", models.CategoryGrounding),
		doc("b", models.CategoryGrounding, models.TestTypeGrounding, models.TestTypeMegger),
		doc("c", models.CategoryUniversal),
		doc("d", models.CategoryUniversal),
	}}
}

func TestIndexByCategory_Scenario(t *testing.T) {
	repo := newMemoryEmbeddingRepo()
	indexer := newIndexer(scenarioSource(), llm.NewMockEmbeddingClient(), repo, IndexerOptions{})

	result, err := indexer.IndexByCategory(context.Background(), models.CategoryGrounding)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Indexed, "only A and B are GROUNDING category")
	assert.Len(t, repo.rows, 3, "A yields 1 row, B yields 2")

	assert.Len(t, repo.rowsForCriterion("a"), 1)
	bRows := repo.rowsForCriterion("b")
	require.Len(t, bRows, 2)
	assert.Equal(t, models.TestTypeGrounding, *bRows[0].TestType)
	assert.False(t, bRows[0].Metadata.SecondaryIndex)
	assert.Equal(t, models.TestTypeMegger, *bRows[1].TestType)
	assert.True(t, bRows[1].Metadata.SecondaryIndex)
	assert.Empty(t, repo.rowsForCriterion("c"))
	assert.Empty(t, repo.rowsForCriterion("d"))
}

func TestIndexByTestType_Scenario(t *testing.T) {
	repo := newMemoryEmbeddingRepo()
	indexer := newIndexer(scenarioSource(), llm.NewMockEmbeddingClient(), repo, IndexerOptions{})

	result, err := indexer.IndexByTestType(context.Background(), models.TestTypeMegger)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Indexed, "B by override, C and D as UNIVERSAL")
	assert.Empty(t, repo.rowsForCriterion("a"))

	// Every selected document covers MEGGER with one of its rows.
	for _, id := range []string{"b", "c", "d"} {
		covered := false
		for _, row := range repo.rowsForCriterion(id) {
			if *row.TestType == models.TestTypeMegger {
				covered = true
			}
		}
		assert.True(t, covered, "document %s must have a MEGGER row", id)
	}
}

func TestIndexAll_ProgressEventsInCatalogOrder(t *testing.T) {
	source := &stubCriteriaSource{docs: []models.CriteriaDocument{
		doc("a", models.CategoryGrounding),
		doc("b", models.CategoryMegger),
		doc("c", models.CategoryThermography),
	}}
	repo := newMemoryEmbeddingRepo()

	// "b" is already indexed: progress must still report it.
	pre := doc("b", models.CategoryMegger)
	require.NoError(t, repo.Insert(context.Background(),
		models.NewCriteriaEmbedding(&pre, "content", []float32{1}, models.TestTypeMegger, false)))

	var events []ProgressEvent
	indexer := newIndexer(source, llm.NewMockEmbeddingClient(), repo, IndexerOptions{
		Observer: ProgressFunc(func(event ProgressEvent) {
			events = append(events, event)
		}),
	})

	_, err := indexer.IndexAll(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 3)
	for i, event := range events {
		assert.Equal(t, 3, event.Total)
		assert.Equal(t, i+1, event.Current)
	}
	assert.Equal(t, "a", events[0].DocumentID)
	assert.Equal(t, "b", events[1].DocumentID)
	assert.Equal(t, "c", events[2].DocumentID)
	assert.Equal(t, "Criterion a", events[0].Title)
}

func TestIndexAll_CancellationBetweenDocuments(t *testing.T) {
	source := &stubCriteriaSource{docs: []models.CriteriaDocument{
		doc("a", models.CategoryGrounding),
		doc("b", models.CategoryGrounding),
		doc("c", models.CategoryGrounding),
	}}
	repo := newMemoryEmbeddingRepo()

	ctx, cancel := context.WithCancel(context.Background())
	embedder := llm.NewMockEmbeddingClient()
	embedder.CreateEmbeddingFunc = func(_ context.Context, input string) ([]float32, int, error) {
		// Cancel during the first document: it must still complete.
		cancel()
		return []float32{1}, 10, nil
	}
	indexer := newIndexer(source, embedder, repo, IndexerOptions{})

	result, err := indexer.IndexAll(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	// The first document finished and its rows are intact; nothing was
	// aborted mid-document.
	assert.Len(t, repo.rowsForCriterion("a"), 1)
	assert.Empty(t, repo.rowsForCriterion("b"))
	assert.Empty(t, repo.rowsForCriterion("c"))
	assert.Equal(t, 1, result.Indexed)
}

func TestIndexAll_ErrorOrderPreserved(t *testing.T) {
	docs := make([]models.CriteriaDocument, 0, 4)
	for _, id := range []string{"w", "x", "y", "z"} {
		docs = append(docs, doc(id, models.CategoryGrounding))
	}
	source := &stubCriteriaSource{docs: docs}
	repo := newMemoryEmbeddingRepo()
	embedder := llm.NewMockEmbeddingClient()
	embedder.CreateEmbeddingFunc = func(ctx context.Context, input string) ([]float32, int, error) {
		// Fail "x" and "z" (calls 2 and 4).
		if embedder.CreateEmbeddingCalls%2 == 0 {
			return nil, 0, fmt.Errorf("boom %d", embedder.CreateEmbeddingCalls)
		}
		return []float32{1}, 5, nil
	}
	indexer := newIndexer(source, embedder, repo, IndexerOptions{})

	result, err := indexer.IndexAll(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "x: ")
	assert.Contains(t, result.Errors[1], "z: ")
}

func TestClearOperations(t *testing.T) {
	repo := newMemoryEmbeddingRepo()
	ctx := context.Background()

	for _, d := range []models.CriteriaDocument{
		doc("g", models.CategoryGrounding),
		doc("m", models.CategoryMegger),
	} {
		row := models.NewCriteriaEmbedding(&d, "content", []float32{1}, d.ResolvedTestTypes()[0], false)
		require.NoError(t, repo.Insert(ctx, row))
	}

	indexer := newIndexer(&stubCriteriaSource{}, llm.NewMockEmbeddingClient(), repo, IndexerOptions{})

	deleted, err := indexer.ClearCategory(ctx, models.CategoryGrounding)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	counts, err := indexer.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"MEGGER": 1}, counts)

	deleted, err = indexer.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestIndexAll_ExistenceCheckFailureIsPerDocument(t *testing.T) {
	source := &stubCriteriaSource{docs: []models.CriteriaDocument{
		doc("a", models.CategoryGrounding),
	}}
	repo := newMemoryEmbeddingRepo()
	repo.existsErr = errors.New("connection refused")
	indexer := newIndexer(source, llm.NewMockEmbeddingClient(), repo, IndexerOptions{})

	result, err := indexer.IndexAll(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "a: ")
}
