// Package catalog holds the static criteria catalog: the domain-knowledge
// documents (standards excerpts, numeric limits, formulas, acceptance
// criteria and validation rules) that the indexer turns into knowledge-base
// embeddings. The catalog ships embedded in the binary and is immutable
// after Load.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/gridcheck-ai/gridcheck-engine/pkg/models"
)

//go:embed criteria.yaml
var criteriaYAML []byte

// Catalog is an ordered, immutable collection of criteria documents.
type Catalog struct {
	docs []models.CriteriaDocument
}

type catalogFile struct {
	Documents []models.CriteriaDocument `yaml:"documents"`
}

// Load parses and validates the embedded catalog. Document order in the
// YAML file is the catalog order used for every indexing run.
func Load() (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(criteriaYAML, &file); err != nil {
		return nil, fmt.Errorf("failed to parse criteria catalog: %w", err)
	}
	if len(file.Documents) == 0 {
		return nil, fmt.Errorf("criteria catalog is empty")
	}

	seen := make(map[string]struct{}, len(file.Documents))
	for i := range file.Documents {
		doc := &file.Documents[i]
		if err := validateDocument(doc); err != nil {
			return nil, fmt.Errorf("invalid catalog document at position %d: %w", i, err)
		}
		if _, dup := seen[doc.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog document id %q", doc.ID)
		}
		seen[doc.ID] = struct{}{}
	}

	return &Catalog{docs: file.Documents}, nil
}

func validateDocument(doc *models.CriteriaDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("missing id")
	}
	if doc.Title == "" {
		return fmt.Errorf("document %q: missing title", doc.ID)
	}
	if doc.Content == "" {
		return fmt.Errorf("document %q: missing content", doc.ID)
	}

	switch doc.Type {
	case models.DocumentTypeStandard, models.DocumentTypeLimit, models.DocumentTypeFormula,
		models.DocumentTypeCriteria, models.DocumentTypeValidationRule:
	default:
		return fmt.Errorf("document %q: unknown type %q", doc.ID, doc.Type)
	}

	if _, err := models.ParseCategory(string(doc.Category)); err != nil {
		return fmt.Errorf("document %q: %w", doc.ID, err)
	}

	for _, tt := range doc.Metadata.ApplicableTestTypes {
		if _, err := models.ParseTestType(string(tt)); err != nil {
			return fmt.Errorf("document %q: %w", doc.ID, err)
		}
	}

	return nil
}

// Len returns the number of documents in the catalog.
func (c *Catalog) Len() int {
	return len(c.docs)
}

// Documents returns every catalog document in catalog order.
func (c *Catalog) Documents() []models.CriteriaDocument {
	out := make([]models.CriteriaDocument, len(c.docs))
	copy(out, c.docs)
	return out
}

// ByCategory returns the documents of exactly the given category, in
// catalog order.
func (c *Catalog) ByCategory(category models.Category) []models.CriteriaDocument {
	out := make([]models.CriteriaDocument, 0)
	for _, doc := range c.docs {
		if doc.Category == category {
			out = append(out, doc)
		}
	}
	return out
}

// ByTestType returns the documents applicable to the given test type, in
// catalog order. UNIVERSAL documents apply to every test type unless an
// explicit applicable_test_types override narrows them.
func (c *Catalog) ByTestType(testType models.TestType) []models.CriteriaDocument {
	out := make([]models.CriteriaDocument, 0)
	for _, doc := range c.docs {
		if doc.AppliesTo(testType) {
			out = append(out, doc)
		}
	}
	return out
}
