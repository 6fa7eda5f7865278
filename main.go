// gridcheck-engine indexes the static criteria catalog (electrical-test
// standards, limits, formulas and validation rules) into the pgvector
// knowledge base used by the compliance analysis pipeline.
//
// Usage:
//
//	gridcheck-engine                       index the full catalog
//	gridcheck-engine --category MEGGER     index one category
//	gridcheck-engine --testtype GROUNDING  index one test type
//	gridcheck-engine --clear               clear all catalog rows
//	gridcheck-engine --clear --category X  clear one category
//
// Exit code 0 on full success; 1 on invalid flags, a pre-flight failure,
// or a run that finished with per-document errors.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/gridcheck-ai/gridcheck-engine/pkg/catalog"
	"github.com/gridcheck-ai/gridcheck-engine/pkg/config"
	"github.com/gridcheck-ai/gridcheck-engine/pkg/database"
	"github.com/gridcheck-ai/gridcheck-engine/pkg/llm"
	"github.com/gridcheck-ai/gridcheck-engine/pkg/models"
	"github.com/gridcheck-ai/gridcheck-engine/pkg/repositories"
	"github.com/gridcheck-ai/gridcheck-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

// maxErrorsShown caps the error list printed after a run.
const maxErrorsShown = 10

func main() {
	os.Exit(run())
}

func run() int {
	var (
		clearFlag    bool
		categoryFlag string
		testTypeFlag string
	)
	flag.BoolVar(&clearFlag, "clear", false, "Clear catalog rows instead of indexing (scoped by --category if given)")
	flag.BoolVar(&clearFlag, "c", false, "Shorthand for --clear")
	flag.StringVar(&categoryFlag, "category", "", "Restrict to one category: GROUNDING, THERMOGRAPHY, MEGGER or UNIVERSAL")
	flag.StringVar(&testTypeFlag, "testtype", "", "Restrict to one test type: GROUNDING, MEGGER or THERMOGRAPHY")
	flag.Parse()

	if categoryFlag != "" && testTypeFlag != "" {
		fmt.Fprintln(os.Stderr, "--category and --testtype are mutually exclusive")
		return 1
	}
	if clearFlag && testTypeFlag != "" {
		fmt.Fprintln(os.Stderr, "--clear is scoped by --category only")
		return 1
	}

	var category models.Category
	if categoryFlag != "" {
		parsed, err := models.ParseCategory(categoryFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		category = parsed
	}

	var testType models.TestType
	if testTypeFlag != "" {
		parsed, err := models.ParseTestType(testTypeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		testType = parsed
	}

	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run migrations: %v\n", err)
		return 1
	}

	if err := db.VerifyVectorReady(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Pre-flight check failed: %v\n", err)
		return 1
	}

	repo := repositories.NewKnowledgeEmbeddingRepository(db)

	if clearFlag {
		return runClear(ctx, repo, category, logger)
	}

	cat, err := catalog.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load criteria catalog: %v\n", err)
		return 1
	}

	embedder, err := llm.NewClient(&llm.Config{
		Endpoint:   cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create embedding client: %v\n", err)
		return 1
	}

	indexer := services.NewCriteriaIndexer(cat, embedder, repo, logger, services.IndexerOptions{
		PauseEvery: cfg.Indexer.PauseEvery,
		Pause:      time.Duration(cfg.Indexer.PauseMillis) * time.Millisecond,
		Observer: services.ProgressFunc(func(event services.ProgressEvent) {
			fmt.Printf("[%d/%d] %s — %s\n", event.Current, event.Total, event.DocumentID, event.Title)
		}),
	})

	var result *services.IndexResult
	switch {
	case category != "":
		result, err = indexer.IndexByCategory(ctx, category)
	case testType != "":
		result, err = indexer.IndexByTestType(ctx, testType)
	default:
		result, err = indexer.IndexAll(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Indexing run aborted: %v\n", err)
		return 1
	}

	printResult(result)

	if !result.Success {
		return 1
	}
	return 0
}

func runClear(ctx context.Context, repo repositories.KnowledgeEmbeddingRepository, category models.Category, logger *zap.Logger) int {
	var deleted int64
	var err error
	if category != "" {
		deleted, err = repo.DeleteGlobalByCategory(ctx, category)
	} else {
		deleted, err = repo.DeleteGlobal(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
		return 1
	}

	logger.Info("Cleared catalog knowledge base rows",
		zap.String("category", string(category)),
		zap.Int64("deleted", deleted))
	fmt.Printf("Deleted %d knowledge base rows\n", deleted)
	return 0
}

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close()

	return database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger)
}

func buildLogger(level string) (*zap.Logger, error) {
	logConfig := zap.NewDevelopmentConfig()
	parsed, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logConfig.Level = parsed
	return logConfig.Build()
}

func printResult(result *services.IndexResult) {
	fmt.Println()
	fmt.Printf("Indexed:  %d documents\n", result.Indexed)
	fmt.Printf("Failed:   %d documents\n", result.Failed)
	fmt.Printf("Tokens:   %d\n", result.TokensUsed)
	fmt.Printf("Duration: %s\n", result.Duration.Round(time.Millisecond))

	if len(result.Errors) == 0 {
		return
	}

	fmt.Println("\nErrors:")
	shown := result.Errors
	if len(shown) > maxErrorsShown {
		shown = shown[:maxErrorsShown]
	}
	for _, msg := range shown {
		fmt.Printf("  - %s\n", msg)
	}
	if extra := len(result.Errors) - maxErrorsShown; extra > 0 {
		fmt.Printf("  ... +%d more\n", extra)
	}
}
