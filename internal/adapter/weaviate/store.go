// Package weaviate mirrors the index into Weaviate and serves retrieval
// from it.
package weaviate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/alias"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/RideMatch1/neuraxon-viz/internal/chunk"
	"github.com/RideMatch1/neuraxon-viz/internal/index"
	"github.com/RideMatch1/neuraxon-viz/internal/observability"
	"github.com/RideMatch1/neuraxon-viz/internal/retrieval"
	"github.com/RideMatch1/neuraxon-viz/internal/vector"
)

const (
	Name             = "weaviate"
	DefaultClassName = "CodeChunk"
	batchSize        = 100
)

// Store serves searches through an alias named after the configured class.
// Every Replace loads a fresh generation class and then repoints the alias,
// so readers see either the old or the new content.
type Store struct {
	client *weaviate.Client
	schema vector.SchemaClient
	alias  string
	now    func() time.Time
}

func NewStore(client *weaviate.Client, className string) *Store {
	if className == "" {
		className = DefaultClassName
	}
	return &Store{client: client, schema: vector.NewWeaviateSchema(client), alias: className, now: time.Now}
}

func (s *Store) Name() string { return Name }

// EnsureSchema makes the alias resolvable. A class still carrying the alias
// name from an older layout is left in place and served until the first
// Replace.
func (s *Store) EnsureSchema(ctx context.Context) error {
	target, ok, err := s.aliasTarget(ctx)
	if err != nil {
		return err
	}
	if ok {
		return vector.EnsureSchema(ctx, s.schema, target)
	}
	legacy, err := s.schema.ClassExists(ctx, s.alias)
	if err != nil {
		return err
	}
	if legacy {
		return vector.EnsureSchema(ctx, s.schema, s.alias)
	}

	class := s.generationClass()
	if err := vector.EnsureSchema(ctx, s.schema, class); err != nil {
		return err
	}
	return s.client.Alias().AliasCreator().WithAlias(&alias.Alias{Alias: s.alias, Class: class}).Do(ctx)
}

// Replace loads records and vectors into a new class, moves the alias onto
// it and drops the previous class. On failure the alias is untouched.
func (s *Store) Replace(ctx context.Context, records []index.Record, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("%w: %d records, %d vectors", index.ErrCountMismatch, len(records), len(vectors))
	}

	class := s.generationClass()
	if err := vector.EnsureSchema(ctx, s.schema, class); err != nil {
		return fmt.Errorf("create class %s: %w", class, err)
	}
	if err := s.load(ctx, class, records, vectors); err != nil {
		s.drop(ctx, class)
		return err
	}

	previous, ok, err := s.aliasTarget(ctx)
	if err != nil {
		s.drop(ctx, class)
		return err
	}
	if ok {
		err = s.client.Alias().AliasUpdater().WithAlias(&alias.Alias{Alias: s.alias, Class: class}).Do(ctx)
	} else {
		err = s.adoptAlias(ctx, class)
	}
	if err != nil {
		s.drop(ctx, class)
		return fmt.Errorf("point alias %s at %s: %w", s.alias, class, err)
	}
	slog.InfoContext(ctx, "weaviate alias switched", "alias", s.alias, "class", class, "previous", previous)

	if ok && previous != class {
		s.drop(ctx, previous)
	}
	return nil
}

// adoptAlias creates the alias. A legacy class with the alias name has to
// go first; searches fail only for that one switch.
func (s *Store) adoptAlias(ctx context.Context, class string) error {
	legacy, err := s.schema.ClassExists(ctx, s.alias)
	if err != nil {
		return err
	}
	if legacy {
		slog.WarnContext(ctx, "replacing legacy weaviate class with alias", "class", s.alias)
		if err := s.schema.DeleteClass(ctx, s.alias); err != nil {
			return err
		}
	}
	return s.client.Alias().AliasCreator().WithAlias(&alias.Alias{Alias: s.alias, Class: class}).Do(ctx)
}

func (s *Store) aliasTarget(ctx context.Context) (string, bool, error) {
	a, err := s.client.Alias().AliasGetter().WithAliasName(s.alias).Do(ctx)
	if err != nil {
		var werr *fault.WeaviateClientError
		if errors.As(err, &werr) && werr.StatusCode == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get alias %s: %w", s.alias, err)
	}
	if a == nil || a.Class == "" {
		return "", false, nil
	}
	return a.Class, true, nil
}

func (s *Store) generationClass() string {
	return fmt.Sprintf("%s_%d", s.alias, s.now().UnixNano())
}

func (s *Store) drop(ctx context.Context, class string) {
	if err := s.schema.DeleteClass(ctx, class); err != nil {
		slog.WarnContext(ctx, "failed to drop weaviate class", "class", class, "error", err)
	}
}

func (s *Store) load(ctx context.Context, class string, records []index.Record, vectors [][]float32) error {
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		objects := make([]*models.Object, 0, end-start)
		for i := start; i < end; i++ {
			r := records[i]
			objects = append(objects, &models.Object{
				Class: class,
				Properties: map[string]interface{}{
					"chunkId": r.ID,
					"offset":  i,
					"text":    r.Text,
					"file":    r.Metadata.File,
					"type":    r.Metadata.Type,
					"name":    r.Metadata.Name,
				},
				Vector: models.C11yVector(vectors[i]),
			})
		}

		resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			return fmt.Errorf("batch insert at %d: %w", start, err)
		}
		for _, o := range resp {
			if o.Result != nil && o.Result.Errors != nil && len(o.Result.Errors.Error) > 0 {
				return fmt.Errorf("batch insert at %d: %s", start, o.Result.Errors.Error[0].Message)
			}
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vec []float32, limit int) ([]retrieval.Result, error) {
	ctx, span := observability.StartSearchSpan(ctx, Name, limit)
	defer span.End()

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "text"},
		{Name: "file"},
		{Name: "type"},
		{Name: "name"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(s.alias).
		WithNearVector(nearVector).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if len(res.Errors) > 0 {
		err := fmt.Errorf("graphql error: %v", res.Errors[0].Message)
		observability.RecordError(span, err)
		return nil, err
	}

	var results []retrieval.Result
	data, _ := res.Data["Get"].(map[string]interface{})
	objects, ok := data[s.alias].([]interface{})
	if !ok {
		// Some servers key the result by the resolved class.
		for _, v := range data {
			if objects, ok = v.([]interface{}); ok {
				break
			}
		}
	}
	for _, o := range objects {
		props, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		result := retrieval.Result{
			ID:   str(props["chunkId"]),
			Text: str(props["text"]),
			Metadata: chunk.Metadata{
				File: str(props["file"]),
				Type: str(props["type"]),
				Name: str(props["name"]),
			},
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			result.Distance = number(additional["distance"])
		}
		results = append(results, result)
	}
	return results, nil
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

// number accepts both encodings Weaviate uses for additional scores.
func number(v interface{}) float32 {
	switch n := v.(type) {
	case float64:
		return float32(n)
	case string:
		f, err := strconv.ParseFloat(n, 32)
		if err == nil {
			return float32(f)
		}
	}
	return 0
}
