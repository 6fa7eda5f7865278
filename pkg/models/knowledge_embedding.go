package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingMetadata is the typed form of the jsonb metadata column on
// engine_knowledge_embeddings. It is serialized only at the persistence
// boundary; everything above the repository works with this struct.
// CriterionID ties a row back to its catalog document and is what the
// idempotency check keys on.
type EmbeddingMetadata struct {
	CriterionID         string       `json:"criterionId"`
	CriterionType       DocumentType `json:"criterionType"`
	Category            Category     `json:"category"`
	Title               string       `json:"title"`
	Normas              []string     `json:"normas,omitempty"`
	Severity            string       `json:"severity,omitempty"`
	Limit               string       `json:"limit,omitempty"`
	Formula             string       `json:"formula,omitempty"`
	ApplicableTestTypes []TestType   `json:"applicableTestTypes,omitempty"`
	Source              string       `json:"source,omitempty"`
	Priority            int          `json:"priority,omitempty"`
	SecondaryIndex      bool         `json:"secondaryIndex"`
}

// KnowledgeEmbedding represents one row of the shared knowledge-base
// table. Catalog-sourced rows always carry nil CompanyID and AnalysisID;
// that pair is the sole discriminator separating global criteria rows
// from per-tenant loop-learning rows written elsewhere in the system.
type KnowledgeEmbedding struct {
	ID          uuid.UUID         `json:"id"`
	CompanyID   *uuid.UUID        `json:"company_id,omitempty"`
	AnalysisID  *uuid.UUID        `json:"analysis_id,omitempty"`
	ContentType ContentType       `json:"content_type"`
	TestType    *TestType         `json:"test_type,omitempty"`
	Verdict     *string           `json:"verdict,omitempty"`
	Content     string            `json:"content"`
	Embedding   pgvector.Vector   `json:"-"`
	Metadata    EmbeddingMetadata `json:"metadata"`
	WasCorrect  bool              `json:"was_correct"`
	UseCount    int               `json:"use_count"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewCriteriaEmbedding builds a catalog-sourced row for one resolved test
// type of a document. Secondary rows reuse the primary row's embedding
// and content; only the test type, row id and the secondaryIndex marker
// differ.
func NewCriteriaEmbedding(doc *CriteriaDocument, content string, embedding []float32, testType TestType, secondary bool) *KnowledgeEmbedding {
	tt := testType
	return &KnowledgeEmbedding{
		ContentType: ContentTypeForDocument(doc.Type),
		TestType:    &tt,
		Content:     content,
		Embedding:   pgvector.NewVector(embedding),
		Metadata: EmbeddingMetadata{
			CriterionID:         doc.ID,
			CriterionType:       doc.Type,
			Category:            doc.Category,
			Title:               doc.Title,
			Normas:              doc.Metadata.Normas,
			Severity:            doc.Metadata.Severity,
			Limit:               doc.Metadata.Limit,
			Formula:             doc.Metadata.Formula,
			ApplicableTestTypes: doc.Metadata.ApplicableTestTypes,
			Source:              doc.Metadata.Source,
			Priority:            doc.Metadata.Priority,
			SecondaryIndex:      secondary,
		},
		WasCorrect: true,
		UseCount:   0,
	}
}
