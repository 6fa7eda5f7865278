package services

import (
	"strings"

	"github.com/gridcheck-ai/gridcheck-engine/pkg/models"
)

// BuildEmbeddingContent builds the canonical text blob embedded for a
// criteria document. The output is deterministic: identical documents
// always produce byte-identical strings, since the stored embedding is a
// pure function of this text.
func BuildEmbeddingContent(doc *models.CriteriaDocument) string {
	var sb strings.Builder

	sb.WriteString("[")
	sb.WriteString(string(doc.Type))
	sb.WriteString("] ")
	sb.WriteString(doc.Title)
	sb.WriteString("\n\n")

	sb.WriteString("Category: ")
	sb.WriteString(string(doc.Category))
	sb.WriteString("\n")

	if len(doc.Metadata.ApplicableTestTypes) > 0 {
		sb.WriteString("Applies to: ")
		for i, tt := range doc.Metadata.ApplicableTestTypes {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(string(tt))
		}
		sb.WriteString("\n")
	}

	if len(doc.Metadata.Normas) > 0 {
		sb.WriteString("Standards: ")
		sb.WriteString(strings.Join(doc.Metadata.Normas, ", "))
		sb.WriteString("\n")
	}

	if doc.Metadata.Severity != "" {
		sb.WriteString("Severity: ")
		sb.WriteString(doc.Metadata.Severity)
		sb.WriteString("\n")
	}

	if doc.Metadata.Limit != "" {
		sb.WriteString("Limit: ")
		sb.WriteString(doc.Metadata.Limit)
		sb.WriteString("\n")
	}

	if doc.Metadata.Formula != "" {
		sb.WriteString("Formula: ")
		sb.WriteString(doc.Metadata.Formula)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(doc.Content)

	return sb.String()
}
