// Package main provides the docchat CLI for ingesting documents and asking
// questions against them.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/docchat/internal/chunker"
	"github.com/bull/docchat/internal/config"
	"github.com/bull/docchat/internal/docstore"
	"github.com/bull/docchat/internal/domain"
	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/index"
	"github.com/bull/docchat/internal/ingest"
	"github.com/bull/docchat/internal/parser"
	"github.com/bull/docchat/internal/query"
)

var (
	configPath string
	askTopK    int
	askDocs    []string
)

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Document question answering over your own files",
	Long: `docchat ingests text, markdown, and PDF files, indexes them as
embedding vectors, and retrieves the most relevant passages for a question.

Environment variables:
  OPENAI_API_KEY OpenAI API key for embeddings (required for the openai provider)
  QDRANT_HOST    Qdrant hostname (overrides config)
  QDRANT_PORT    Qdrant gRPC port (overrides config)`,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest one or more documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the indexed documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var statusCmd = &cobra.Command{
	Use:   "status <document-id>",
	Short: "Show a document's ingestion status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and its vectors",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every document and vector",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "docchat.yaml", "path to config file")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "number of passages to return (default from config)")
	askCmd.Flags().StringSliceVar(&askDocs, "doc", nil, "restrict the question to these document ids")

	rootCmd.AddCommand(ingestCmd, askCmd, statusCmd, listCmd, deleteCmd, resetCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired components for one command invocation.
type app struct {
	cfg      *config.Config
	store    docstore.Store
	index    index.Index
	embedder embedding.Embedder
	logger   *slog.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var embedder embedding.Embedder
	switch cfg.Embedder.Provider {
	case "openai":
		embedder, err = embedding.NewOpenAI(os.Getenv("OPENAI_API_KEY"), cfg.Embedder.Model, cfg.Embedder.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
	case "hash":
		embedder = embedding.NewHash(cfg.Embedder.Dimension)
	}

	var idx index.Index
	switch cfg.Index.Backend {
	case "memory":
		idx, err = index.NewMemory(embedder.Dimension())
	case "qdrant":
		host := getEnv("QDRANT_HOST", cfg.Index.Host)
		port := getEnvInt("QDRANT_PORT", cfg.Index.Port)
		idx, err = index.NewQdrant(host, port, cfg.Index.Collection, embedder.Dimension())
	}
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	var store docstore.Store
	switch cfg.Store.Backend {
	case "memory":
		store = docstore.NewMemory()
	case "sqlite":
		store, err = docstore.NewSQLite(cfg.Store.Path)
	}
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("create document store: %w", err)
	}

	return &app{cfg: cfg, store: store, index: idx, embedder: embedder, logger: logger}, nil
}

func (a *app) close() {
	a.index.Close()
	a.store.Close()
}

// newStore opens just the document store, for commands that never touch
// embeddings or the index.
func newStore() (docstore.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Backend == "sqlite" {
		return docstore.NewSQLite(cfg.Store.Path)
	}
	return docstore.NewMemory(), nil
}

func (a *app) ingestPipeline() *ingest.Pipeline {
	ch, err := chunker.New(a.cfg.Chunker.MaxChars, *a.cfg.Chunker.OverlapChars)
	if err != nil {
		// Config validation happens at Load; a bad chunker config here is
		// a programming error.
		panic(err)
	}
	return ingest.NewPipeline(parser.NewRegistry(), ch, a.embedder, a.index, a.store, ingest.Config{
		CommitBatch: a.cfg.Ingest.CommitBatch,
		Concurrency: a.cfg.Ingest.Concurrency,
		Logger:      a.logger,
	})
}

func runIngest(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	pipeline := app.ingestPipeline()
	ctx := context.Background()
	start := time.Now()

	failed := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		doc, err := pipeline.Ingest(ctx, ingest.Upload{
			Filename: filepath.Base(path),
			Data:     data,
		})
		if err != nil {
			failed++
			fmt.Printf("  %s: FAILED (%v)\n", path, err)
			continue
		}
		fmt.Printf("  %s: %s (id %s)\n", path, doc.Status, doc.ID)
	}

	fmt.Println()
	fmt.Printf("Ingested %d/%d documents in %s\n", len(args)-failed, len(args), time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(args))
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	qcfg := query.Config{Logger: app.logger}
	if app.cfg.Query.MinScore != nil {
		qcfg.MinScore = *app.cfg.Query.MinScore
		qcfg.HasMinScore = true
	}
	pipeline := query.NewPipeline(app.embedder, app.index, app.store, qcfg)

	topK := askTopK
	if topK == 0 {
		topK = app.cfg.Query.TopK
	}

	passages, err := pipeline.Retrieve(context.Background(), query.Request{
		Question:    args[0],
		TopK:        topK,
		DocumentIDs: askDocs,
	})
	if err != nil {
		return err
	}
	if len(passages) == 0 {
		fmt.Println("No matching passages.")
		return nil
	}

	for _, p := range passages {
		fmt.Printf("%d. [%.3f] (document %s)\n", p.Rank, p.Score, p.DocumentID)
		fmt.Printf("   %s\n\n", p.Text)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := newStore()
	if err != nil {
		return err
	}
	defer store.Close()

	doc, err := store.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Document:  %s\n", doc.ID)
	fmt.Printf("Filename:  %s\n", doc.Filename)
	if doc.Title != "" {
		fmt.Printf("Title:     %s\n", doc.Title)
	}
	fmt.Printf("Status:    %s\n", doc.Status)
	fmt.Printf("Created:   %s\n", doc.CreatedAt.Format(time.RFC3339))
	if doc.Error != "" {
		fmt.Printf("Error:     %s\n", doc.Error)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := newStore()
	if err != nil {
		return err
	}
	defer store.Close()

	docs, err := store.List(context.Background())
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents.")
		return nil
	}

	for _, doc := range docs {
		fmt.Printf("%s  %-10s %s\n", doc.ID, doc.Status, doc.Filename)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	err = app.ingestPipeline().Delete(context.Background(), args[0])
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("document %s not found", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.ingestPipeline().Reset(context.Background()); err != nil {
		return err
	}
	fmt.Println("All documents and vectors deleted.")
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
