package database

import (
	"context"
	"fmt"

	"github.com/gridcheck-ai/gridcheck-engine/pkg/apperrors"
)

// VerifyVectorReady checks the prerequisites for indexing: the pgvector
// extension must be installed and the knowledge embeddings table must
// exist. Called before any document is processed so that connectivity
// or schema problems abort the whole run instead of failing per
// document.
func (db *DB) VerifyVectorReady(ctx context.Context) error {
	var hasExtension bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`,
	).Scan(&hasExtension)
	if err != nil {
		return fmt.Errorf("failed to check pgvector extension: %w", err)
	}
	if !hasExtension {
		return fmt.Errorf("%w: pgvector extension is not installed", apperrors.ErrVectorNotReady)
	}

	var hasTable bool
	err = db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_name = 'engine_knowledge_embeddings'
		)`,
	).Scan(&hasTable)
	if err != nil {
		return fmt.Errorf("failed to check knowledge embeddings table: %w", err)
	}
	if !hasTable {
		return fmt.Errorf("%w: engine_knowledge_embeddings table is missing (run migrations)", apperrors.ErrVectorNotReady)
	}

	return nil
}
