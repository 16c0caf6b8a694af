package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/RideMatch1/neuraxon-viz/features/chat"
	"github.com/RideMatch1/neuraxon-viz/features/job"
	"github.com/RideMatch1/neuraxon-viz/features/mcp"
	"github.com/RideMatch1/neuraxon-viz/features/stats"
	"github.com/RideMatch1/neuraxon-viz/features/websearch"
	"github.com/RideMatch1/neuraxon-viz/internal/adapter/reranker"
	search "github.com/RideMatch1/neuraxon-viz/internal/adapter/websearch"
	"github.com/RideMatch1/neuraxon-viz/internal/chunk"
	"github.com/RideMatch1/neuraxon-viz/internal/config"
	"github.com/RideMatch1/neuraxon-viz/internal/index"
	"github.com/RideMatch1/neuraxon-viz/internal/indexer"
	"github.com/RideMatch1/neuraxon-viz/internal/middleware"
	"github.com/RideMatch1/neuraxon-viz/internal/ratelimit"
	"github.com/RideMatch1/neuraxon-viz/internal/responder"
	"github.com/RideMatch1/neuraxon-viz/internal/retrieval"
	"github.com/RideMatch1/neuraxon-viz/internal/security"
	"github.com/RideMatch1/neuraxon-viz/internal/sources"
	"github.com/RideMatch1/neuraxon-viz/internal/tokens"
	"github.com/RideMatch1/neuraxon-viz/internal/usage"
	"github.com/RideMatch1/neuraxon-viz/internal/worker"
)

type App struct {
	Handler       http.Handler
	Store         *index.Store
	Builder       *indexer.Builder
	IndexConsumer *worker.IndexConsumer
	Gate          *security.Gate

	cfg         *config.Config
	queryLogger *retrieval.QueryLogger
}

// NewBuilder assembles the index builder. The index CLI uses it without
// the rest of the application.
func NewBuilder(cfg *config.Config, embedder indexer.Embedder, store *index.Store, mirrors ...indexer.Mirror) *indexer.Builder {
	opts := indexer.DefaultOptions()
	opts.Chunk = chunk.Options{
		MaxChars:    cfg.ChunkMaxChars,
		MinChars:    cfg.ChunkMinChars,
		MaxJSONKeys: cfg.ChunkMaxJSONKeys,
		PopupScript: cfg.PopupScriptName,
	}
	opts.BatchSize = cfg.EmbedBatchSize
	opts.MaxTokens = cfg.EmbedMaxTokens
	opts.MaxRetries = cfg.EmbedMaxRetries
	opts.Timeout = cfg.IndexBuildTimeout
	return indexer.NewBuilder(embedder, tokens.New(embedder.Model()), store, opts, mirrors...)
}

func New(cfg *config.Config, deps *Dependencies, p *Providers, logger *slog.Logger) (*App, error) {
	if p.Completer == nil {
		return nil, errors.New("app: chat completer not configured")
	}

	store := index.NewStore(cfg.IndexDir)

	var mirrors []indexer.Mirror
	var backend retrieval.Backend
	if deps.Remote != nil {
		mirrors = append(mirrors, deps.Remote)
		backend = deps.Remote
	}
	builder := NewBuilder(cfg, p.Embedder, store, mirrors...)

	var rr retrieval.Reranker
	if reranker.Enabled(cfg.RerankProvider) && cfg.RerankAPIKey != "" {
		rr = reranker.NewClient(cfg.RerankProvider, cfg.RerankAPIKey)
	}

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retriever := retrieval.NewService(p.Embedder, store, backend, rr, queryLogger, cfg.EmbedTimeout)

	// Feature: Security
	limits := security.Limits{
		PerMinute:           cfg.MaxQuestionsPerMinute,
		PerHour:             cfg.MaxQuestionsPerHour,
		PerDay:              cfg.MaxQuestionsPerDay,
		MaxCostPerDay:       cfg.MaxCostPerDay,
		MaxCostPerMonth:     cfg.MaxCostPerMonth,
		MaxCostPerRequest:   cfg.MaxCostPerRequest,
		MaxTokensPerRequest: cfg.MaxTokensPerRequest,
		MaxInputChars:       cfg.MaxInputChars,
	}
	gate := security.NewGate(security.NewState(limits.PerMinute, limits.PerHour, limits.PerDay), limits)

	// Feature: Chat
	sanitizer := sources.NewSanitizer(cfg.SourceRepoRoot, cfg.SourceRepoURL, cfg.SourceBranch, cfg.SourceContentRoot)
	opts := responder.Options{
		TopK:                 cfg.TopK,
		ContextCharsPerChunk: cfg.ContextCharsPerChunk,
		MaxContextTokens:     cfg.MaxContextTokens,
		MaxHistoryTokens:     cfg.MaxHistoryTokens,
		MaxPromptTokens:      cfg.MaxPromptTokens,
		FallbackContextChars: cfg.FallbackContextChars,
		Timeout:              cfg.CompletionTimeout,
		Pricing:              responder.Pricing{InputPerMillion: cfg.PriceInputPerMillion, OutputPerMillion: cfg.PriceOutputPerMillion},
	}
	resp := responder.New(p.Completer, retriever, gate, sanitizer, tokens.New(p.Completer.Model()), opts)
	ledger := usage.NewLedger(deps.DB)
	chatHandler := chat.NewHandler(resp, gate, ledger)

	// Feature: Web search
	searchClient := search.NewClient(cfg.WebSearchURL, cfg.WebSearchTimeout,
		ratelimit.New(ratelimit.Windows(cfg.WebSearchMaxPerMinute, cfg.WebSearchMaxPerHour, cfg.WebSearchMaxPerDay)))
	searchHandler := websearch.NewHandler(searchClient)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(deps.DB)
	jobService := job.NewService(jobRepo, deps.Publisher, logger, cfg.RepoRoot)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(store, jobService, ledger, gate)

	// Feature: MCP
	mcpServer := mcp.NewServer(mcp.NewHandler(retriever, searchClient, gate))

	cors := middleware.CORS(cfg.CORSAllowOrigin)

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /chat", cors(chatHandler.Chat))
	mux.Handle("OPTIONS /chat", cors(chatHandler.Chat))
	mux.Handle("GET /web-search", cors(searchHandler.Search))
	mux.Handle("GET /stats", cors(statsHandler.GetStats))
	mux.Handle("/mcp", mcp.NewHTTPHandler(mcpServer))

	if cfg.AdminToken != "" {
		admin := func(h http.HandlerFunc) http.Handler {
			return middleware.RequireBearer(cfg.AdminToken)(h)
		}
		mux.Handle("POST /index/rebuild", admin(jobHandler.Rebuild))
		mux.Handle("GET /index/jobs", admin(jobHandler.List))
		mux.Handle("POST /index/jobs/{id}/retry", admin(jobHandler.Retry))
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /ready", readyHandler(store))

	var handler http.Handler = mux
	handler = middleware.ClientIP(cfg.TrustForwardedFor)(handler)
	handler = middleware.CorrelationID(handler)
	handler = middleware.SecurityHeaders(handler)

	return &App{
		Handler:       handler,
		Store:         store,
		Builder:       builder,
		IndexConsumer: worker.NewIndexConsumer(builder, jobRepo, cfg.IndexBuildTimeout, sanitizer),
		Gate:          gate,
		cfg:           cfg,
		queryLogger:   queryLogger,
	}, nil
}

func readyHandler(store *index.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		snap, err := store.Snapshot()
		if err != nil {
			slog.WarnContext(r.Context(), "not ready", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "not indexed"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ready", "chunks": snap.Len()})
	}
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunWorker consumes index rebuild tasks until ctx is cancelled.
func (a *App) RunWorker(ctx context.Context) error {
	consumer, err := nsq.NewConsumer(config.TopicIndexRebuild, config.ChannelIndexWorker, nsq.NewConfig())
	if err != nil {
		return fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(a.IndexConsumer)

	if a.cfg.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(a.cfg.NSQDHost)
	}
	if err != nil {
		consumer.Stop()
		return fmt.Errorf("nsq connect error: %w", err)
	}
	slog.Info("index worker connected", "topic", config.TopicIndexRebuild)

	<-ctx.Done()
	consumer.Stop()
	<-consumer.StopChan
	return nil
}

func (a *App) Close() error {
	if a.queryLogger != nil {
		return a.queryLogger.Close()
	}
	return nil
}
