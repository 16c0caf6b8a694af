// Package qdrant mirrors the index into a Qdrant collection over gRPC and
// serves retrieval from it.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/RideMatch1/neuraxon-viz/internal/chunk"
	"github.com/RideMatch1/neuraxon-viz/internal/index"
	"github.com/RideMatch1/neuraxon-viz/internal/observability"
	"github.com/RideMatch1/neuraxon-viz/internal/retrieval"
)

const (
	Name              = "qdrant"
	DefaultCollection = "code_chunks"
	upsertBatch       = 256
)

// Store serves searches through an alias named after the configured
// collection. Replace loads a new generation collection and swaps the alias
// in one UpdateAliases call.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	alias       string
	now         func() time.Time
}

func New(host string, port int, collection string) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	s := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection)
	s.conn = conn
	return s, nil
}

// NewWithClients builds a store on existing gRPC clients.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient, collection string) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{points: points, collections: collections, alias: collection, now: time.Now}
}

func (s *Store) Name() string { return Name }

// Replace upserts every record, with its offset as the point id, into a
// fresh collection and then points the alias at it. The previous collection
// is dropped once nothing resolves to it. A failed load leaves the alias
// untouched.
func (s *Store) Replace(ctx context.Context, records []index.Record, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("%w: %d records, %d vectors", index.ErrCountMismatch, len(records), len(vectors))
	}

	previous, err := s.aliasTarget(ctx)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		if previous == "" {
			return nil
		}
		if err := s.updateAliases(ctx, deleteAlias(s.alias)); err != nil {
			return err
		}
		s.drop(ctx, previous)
		return nil
	}

	collection := fmt.Sprintf("%s_%d", s.alias, s.now().UnixNano())
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
			Size:     uint64(len(vectors[0])),
			Distance: pb.Distance_Euclid,
		}}},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", collection, err)
	}
	if err := s.load(ctx, collection, records, vectors); err != nil {
		s.drop(ctx, collection)
		return err
	}

	var actions []*pb.AliasOperations
	if previous != "" {
		actions = append(actions, deleteAlias(s.alias))
	} else if err := s.dropLegacy(ctx); err != nil {
		s.drop(ctx, collection)
		return err
	}
	actions = append(actions, &pb.AliasOperations{Action: &pb.AliasOperations_CreateAlias{
		CreateAlias: &pb.CreateAlias{CollectionName: collection, AliasName: s.alias},
	}})
	if err := s.updateAliases(ctx, actions...); err != nil {
		s.drop(ctx, collection)
		return err
	}
	slog.InfoContext(ctx, "qdrant alias switched", "alias", s.alias, "collection", collection, "previous", previous)

	if previous != "" && previous != collection {
		s.drop(ctx, previous)
	}
	return nil
}

func (s *Store) load(ctx context.Context, collection string, records []index.Record, vectors [][]float32) error {
	wait := true
	for start := 0; start < len(records); start += upsertBatch {
		end := min(start+upsertBatch, len(records))
		points := make([]*pb.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			r := records[i]
			points = append(points, &pb.PointStruct{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(i)}}, // #nosec G115 -- i is a slice index
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vectors[i]}}},
				Payload: map[string]*pb.Value{
					"id":   stringValue(r.ID),
					"text": stringValue(r.Text),
					"file": stringValue(r.Metadata.File),
					"type": stringValue(r.Metadata.Type),
					"name": stringValue(r.Metadata.Name),
				},
			})
		}
		if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{CollectionName: collection, Wait: &wait, Points: points}); err != nil {
			return fmt.Errorf("upsert at %d: %w", start, err)
		}
	}
	return nil
}

// aliasTarget returns the collection the alias resolves to, or "" when the
// alias does not exist yet.
func (s *Store) aliasTarget(ctx context.Context) (string, error) {
	resp, err := s.collections.ListAliases(ctx, &pb.ListAliasesRequest{})
	if err != nil {
		return "", fmt.Errorf("list aliases: %w", err)
	}
	for _, a := range resp.GetAliases() {
		if a.GetAliasName() == s.alias {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

// dropLegacy removes a real collection carrying the alias name, left over
// from before aliases were used. Searches fail only until the alias exists.
func (s *Store) dropLegacy(ctx context.Context) error {
	resp, err := s.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: s.alias})
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.alias, err)
	}
	if !resp.GetResult().GetExists() {
		return nil
	}
	slog.WarnContext(ctx, "replacing legacy qdrant collection with alias", "collection", s.alias)
	_, err = s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.alias})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("delete collection %s: %w", s.alias, err)
	}
	return nil
}

func (s *Store) updateAliases(ctx context.Context, actions ...*pb.AliasOperations) error {
	if _, err := s.collections.UpdateAliases(ctx, &pb.ChangeAliases{Actions: actions}); err != nil {
		return fmt.Errorf("update alias %s: %w", s.alias, err)
	}
	return nil
}

func (s *Store) drop(ctx context.Context, collection string) {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: collection})
	if err != nil && status.Code(err) != codes.NotFound {
		slog.WarnContext(ctx, "failed to drop qdrant collection", "collection", collection, "error", err)
	}
}

func deleteAlias(name string) *pb.AliasOperations {
	return &pb.AliasOperations{Action: &pb.AliasOperations_DeleteAlias{DeleteAlias: &pb.DeleteAlias{AliasName: name}}}
}

// Search returns squared Euclidean distances so results compare with the
// local index.
func (s *Store) Search(ctx context.Context, vec []float32, limit int) ([]retrieval.Result, error) {
	ctx, span := observability.StartSearchSpan(ctx, Name, limit)
	defer span.End()

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.alias,
		Vector:         vec,
		Limit:          uint64(max(limit, 0)), // #nosec G115 -- clamped
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	results := make([]retrieval.Result, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		p := pt.GetPayload()
		results[i] = retrieval.Result{
			ID:   p["id"].GetStringValue(),
			Text: p["text"].GetStringValue(),
			Metadata: chunk.Metadata{
				File: p["file"].GetStringValue(),
				Type: p["type"].GetStringValue(),
				Name: p["name"].GetStringValue(),
			},
			Distance: float32(math.Pow(float64(pt.GetScore()), 2)),
		}
	}
	return results, nil
}

func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func stringValue(v string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
}
