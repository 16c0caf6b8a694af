package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/RideMatch1/neuraxon-viz/features/job"
	"github.com/RideMatch1/neuraxon-viz/internal/adapter/qdrant"
	wstore "github.com/RideMatch1/neuraxon-viz/internal/adapter/weaviate"
	"github.com/RideMatch1/neuraxon-viz/internal/config"
	"github.com/RideMatch1/neuraxon-viz/internal/indexer"
	"github.com/RideMatch1/neuraxon-viz/internal/retrieval"
)

// RemoteStore is a vector database that mirrors every snapshot and can
// serve searches in place of the local scan.
type RemoteStore interface {
	indexer.Mirror
	retrieval.Backend
}

type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

type Dependencies struct {
	DB        *sql.DB
	Publisher job.EventPublisher
	// Remote is nil when INDEX_BACKEND is local.
	Remote  RemoteStore
	closers []io.Closer
}

func (d *Dependencies) Close() {
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close dependency", "error", err)
		}
	}
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	db, err := OpenDB(ctx, cfg.PostgresDSN(), cfg.BootstrapRetryAttempts, retryDelay)
	if err != nil {
		return nil, err
	}
	deps := &Dependencies{DB: db, closers: []io.Closer{db}}

	if err := Migrate(db, cfg.MigrationPath); err != nil {
		deps.Close()
		return nil, err
	}

	remote, err := OpenRemoteStore(ctx, cfg, retryDelay)
	if err != nil {
		deps.Close()
		return nil, err
	}
	if remote != nil {
		deps.Remote = remote
		if c, ok := remote.(io.Closer); ok {
			deps.closers = append(deps.closers, c)
		}
	}

	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	deps.Publisher = producer
	deps.closers = append(deps.closers, closerFunc(func() error {
		producer.Stop()
		return nil
	}))

	if cfg.NSQDHTTP != "" {
		createTopics(cfg.NSQDHTTP)
	}

	return deps, nil
}

// OpenDB opens Postgres and waits until it answers a ping.
func OpenDB(ctx context.Context, dsn string, attempts int, delay time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return db, nil
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", attempts)
		time.Sleep(delay)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}

func Migrate(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied successfully")
	return nil
}

// OpenRemoteStore connects to the vector database selected by INDEX_BACKEND.
// It returns nil for the local backend.
func OpenRemoteStore(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (RemoteStore, error) {
	switch cfg.IndexBackend {
	case config.BackendWeaviate:
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		store := wstore.NewStore(client, cfg.WeaviateClass)
		if err := EnsureSchemaWithRetry(ctx, store, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		return store, nil
	case config.BackendQdrant:
		store, err := qdrant.New(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, nil
}

func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicIndexRebuild)
	}()
}

// EnsureSchemaWithRetry delegates schema check to a helper with retry logic.
func EnsureSchemaWithRetry(ctx context.Context, store SchemaEnsurer, attempts int, delay time.Duration) error {
	attempts = max(attempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.EnsureSchema(ctx); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
