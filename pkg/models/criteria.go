package models

import (
	"fmt"

	"github.com/gridcheck-ai/gridcheck-engine/pkg/apperrors"
)

// DocumentType classifies a catalog criteria document.
type DocumentType string

const (
	DocumentTypeStandard       DocumentType = "STANDARD"
	DocumentTypeLimit          DocumentType = "LIMIT"
	DocumentTypeFormula        DocumentType = "FORMULA"
	DocumentTypeCriteria       DocumentType = "CRITERIA"
	DocumentTypeValidationRule DocumentType = "VALIDATION_RULE"
)

// Category groups criteria documents by the test domain they describe.
// UNIVERSAL documents apply to every test type.
type Category string

const (
	CategoryGrounding    Category = "GROUNDING"
	CategoryThermography Category = "THERMOGRAPHY"
	CategoryMegger       Category = "MEGGER"
	CategoryUniversal    Category = "UNIVERSAL"
)

// TestType identifies one electrical test category.
type TestType string

const (
	TestTypeGrounding    TestType = "GROUNDING"
	TestTypeMegger       TestType = "MEGGER"
	TestTypeThermography TestType = "THERMOGRAPHY"
)

// ContentType is the knowledge-base classification persisted on each row.
type ContentType string

const (
	ContentTypeTechnicalStandard ContentType = "TECHNICAL_STANDARD"
	ContentTypeBestPractice      ContentType = "BEST_PRACTICE"
)

// AllTestTypes is the fixed fan-out order for UNIVERSAL documents.
// The first element becomes the primary row's test type.
var AllTestTypes = []TestType{TestTypeGrounding, TestTypeMegger, TestTypeThermography}

// CriteriaMetadata carries the optional attributes of a catalog document.
type CriteriaMetadata struct {
	Normas              []string   `yaml:"normas"`
	Severity            string     `yaml:"severity"`
	Limit               string     `yaml:"limit"`
	Formula             string     `yaml:"formula"`
	ApplicableTestTypes []TestType `yaml:"applicable_test_types"`
	Source              string     `yaml:"source"`
	Priority            int        `yaml:"priority"`
}

// CriteriaDocument is one domain rule (standard excerpt, numeric limit,
// formula, acceptance criterion or validation rule) used to judge
// compliance of an electrical test report. Documents are created once at
// catalog load time and never mutated; identity is ID.
type CriteriaDocument struct {
	ID       string           `yaml:"id"`
	Type     DocumentType     `yaml:"type"`
	Category Category         `yaml:"category"`
	Title    string           `yaml:"title"`
	Content  string           `yaml:"content"`
	Metadata CriteriaMetadata `yaml:"metadata"`
}

// ResolvedTestTypes returns the ordered set of test types this document
// applies to. An explicit ApplicableTestTypes override wins verbatim
// (order preserved, first element is the primary row's test type);
// otherwise the set is derived from the category, with UNIVERSAL fanning
// out to all test types.
func (d *CriteriaDocument) ResolvedTestTypes() []TestType {
	if len(d.Metadata.ApplicableTestTypes) > 0 {
		out := make([]TestType, len(d.Metadata.ApplicableTestTypes))
		copy(out, d.Metadata.ApplicableTestTypes)
		return out
	}

	switch d.Category {
	case CategoryGrounding:
		return []TestType{TestTypeGrounding}
	case CategoryThermography:
		return []TestType{TestTypeThermography}
	case CategoryMegger:
		return []TestType{TestTypeMegger}
	case CategoryUniversal:
		out := make([]TestType, len(AllTestTypes))
		copy(out, AllTestTypes)
		return out
	default:
		return nil
	}
}

// AppliesTo reports whether the document's resolved test-type set
// contains the given test type.
func (d *CriteriaDocument) AppliesTo(testType TestType) bool {
	for _, tt := range d.ResolvedTestTypes() {
		if tt == testType {
			return true
		}
	}
	return false
}

// ContentTypeForDocument maps a catalog document type to the persisted
// knowledge-base content type.
func ContentTypeForDocument(docType DocumentType) ContentType {
	switch docType {
	case DocumentTypeStandard, DocumentTypeLimit, DocumentTypeFormula:
		return ContentTypeTechnicalStandard
	default:
		// CRITERIA and VALIDATION_RULE
		return ContentTypeBestPractice
	}
}

// ParseCategory validates a user-supplied category string.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryGrounding, CategoryThermography, CategoryMegger, CategoryUniversal:
		return Category(s), nil
	}
	return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidCategory, s)
}

// ParseTestType validates a user-supplied test type string.
func ParseTestType(s string) (TestType, error) {
	switch TestType(s) {
	case TestTypeGrounding, TestTypeMegger, TestTypeThermography:
		return TestType(s), nil
	}
	return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidTestType, s)
}
