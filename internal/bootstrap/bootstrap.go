package bootstrap

import (
	"context"
	"fmt"

	"github.com/kirillkom/shiftlog-retrieval/internal/config"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/analyzer"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/dates"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/metadata"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/usecase"
	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/chunking"
	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/corpus"
	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/extractor"
	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/queue/nats"
	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/resilience"
	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/vector/qdrant"
)

// App holds the infrastructure shared by every process.
type App struct {
	Config config.Config

	Repo      *postgres.DocumentRepository
	Storage   *localfs.Storage
	Queue     *nats.Queue
	Embedder  *ollama.Embedder
	Vectors   *qdrant.Client
	Chunker   *chunking.Chunker
	Extractor *extractor.Router

	IngestUC *usecase.IngestDocumentUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(ResilienceConfig(cfg))

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ClientName:         "shiftlog-" + service,
		CorpusSubject:      cfg.NATSCorpusSubject,
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	var ollamaOpts []ollama.Option
	if cfg.OllamaEmbedRPS > 0 {
		ollamaOpts = append(ollamaOpts, ollama.WithRateLimit(cfg.OllamaEmbedRPS, max(1, int(cfg.OllamaEmbedRPS))))
	}
	embedder := ollama.NewEmbedder(ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, executor, ollamaOpts...))
	vectors := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)

	chunker := chunking.NewChunker(
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		metadata.NewExtractor(cfg.CanonicalYear),
	)

	extractorRouter := extractor.New(storage)

	return &App{
		Config:    cfg,
		Repo:      repo,
		Storage:   storage,
		Queue:     queue,
		Embedder:  embedder,
		Vectors:   vectors,
		Chunker:   chunker,
		Extractor: extractorRouter,
		IngestUC:  usecase.NewIngestDocumentUseCase(repo, storage, queue, extractorRouter),
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Retrieval is the corpus-owning side of a process: the sparse corpus, the
// hybrid retriever and an indexer that updates the local corpus first and
// then announces the change.
type Retrieval struct {
	Corpus    *usecase.CorpusService
	Retriever *usecase.HybridRetriever
	Service   *usecase.RetrievalService
	Indexer   *usecase.IndexService
}

// NewRetrieval loads the sparse corpus from corpusLogPath, rebuilding it from
// the fragment table when the log is missing or corrupt.
func (a *App) NewRetrieval(ctx context.Context, corpusLogPath string, observer usecase.RetrievalObserver) (*Retrieval, error) {
	cfg := a.Config

	lexicon, err := analyzer.DefaultLexicon()
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}
	parser := dates.NewParser(cfg.CanonicalYear)
	queryAnalyzer := analyzer.New(lexicon, parser, cfg.CanonicalYear, cfg.CanonicalMonthOrDefault())

	store := corpus.NewStore(corpus.NewLog(corpusLogPath))
	corpusService := usecase.NewCorpusService(a.Repo, store)
	if err := corpusService.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	retriever := usecase.NewHybridRetriever(a.Embedder, a.Vectors, corpusService, corpusService, RetrieverConfig(cfg))
	if observer != nil {
		retriever.SetObserver(observer)
	}

	indexer := usecase.NewIndexService(
		a.Repo,
		a.Storage,
		a.Chunker,
		a.Embedder,
		a.Vectors,
		usecase.CorpusFanout{store, usecase.NewCorpusAnnouncer(a.Queue)},
	)

	return &Retrieval{
		Corpus:    corpusService,
		Retriever: retriever,
		Service:   usecase.NewRetrievalService(parser, queryAnalyzer, retriever, corpusService),
		Indexer:   indexer,
	}, nil
}

// NewProcessor wires the worker pipeline. The worker holds no corpus; corpus
// owners learn about indexed documents from announcements.
func (a *App) NewProcessor() *usecase.ProcessDocumentUseCase {
	indexer := usecase.NewIndexService(
		a.Repo,
		a.Storage,
		a.Chunker,
		a.Embedder,
		a.Vectors,
		usecase.NewCorpusAnnouncer(a.Queue),
	)
	return usecase.NewProcessDocumentUseCase(a.Repo, a.Extractor, indexer)
}

func RetrieverConfig(cfg config.Config) usecase.RetrieverConfig {
	out := usecase.DefaultRetrieverConfig()
	out.Limits.Dense = cfg.RetrievalKDense
	out.Limits.Sparse = cfg.RetrievalKSparse
	out.Limits.Final = cfg.RetrievalKFinal
	out.MaxConcurrent = int64(cfg.RetrievalMaxConcurrent)
	out.Timeout = cfg.RetrievalTimeout
	out.Degrade = usecase.DegradePolicy(cfg.RetrievalDegradePolicy)
	out.Ranking = usecase.RankingMode(cfg.RetrievalRanking)
	out.RRFK = cfg.RetrievalRRFK
	return out
}

func ResilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.Retry.MaxAttempts = cfg.BackendRetryAttempts
	out.Retry.InitialBackoff = cfg.BackendRetryBackoff
	out.Breaker.Enabled = cfg.BackendBreakerEnabled
	out.Breaker.OpenTimeout = cfg.BackendBreakerCooldown
	return out
}
