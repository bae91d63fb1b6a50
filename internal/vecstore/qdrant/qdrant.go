// Package qdrant implements vecstore.Repository against a Qdrant
// instance over gRPC.
package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/maiahq/vectordb/internal/observability"
	"github.com/maiahq/vectordb/internal/vecstore"
)

// Payload keys reserved by the repository. Caller metadata lives next
// to them in a flat payload, so Upsert rejects documents whose
// metadata would overwrite them.
const (
	payloadContent = "content"
	payloadScope   = "scope"
)

// Repository is a Qdrant-backed vector store.
type Repository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New connects to Qdrant at host:port.
func New(host string, port int, collection string) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Repository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// EnsureCollection creates the collection with the given vector
// dimension and cosine distance if it does not exist yet.
func (r *Repository) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{
		CollectionName: r.collection,
	})
	if err != nil {
		return storeErr(ctx, "qdrant collection check", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return storeErr(ctx, "qdrant collection create", err)
	}
	return nil
}

func (r *Repository) Upsert(ctx context.Context, docs []vecstore.Document) error {
	ctx, span := observability.StartStoreSpan(ctx, "upsert", r.collection)
	defer span.End()

	points := make([]*pb.PointStruct, len(docs))
	for i, d := range docs {
		for k := range d.Metadata {
			if k == payloadContent || k == payloadScope {
				return fmt.Errorf("%w: %q", vecstore.ErrReservedMetadata, k)
			}
		}
		payload := map[string]*pb.Value{
			payloadContent: {Kind: &pb.Value_StringValue{StringValue: d.Content}},
			payloadScope:   {Kind: &pb.Value_StringValue{StringValue: d.Scope}},
		}
		for k, v := range d.Metadata {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: d.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: d.Vector}}},
			Payload: payload,
		}
	}

	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
	})
	if err != nil {
		return storeErr(ctx, "qdrant upsert", err)
	}
	return nil
}

// Nearest queries the collection and converts Qdrant's cosine
// similarity score into cosine distance, so callers see candidates
// ordered by ascending distance.
func (r *Repository) Nearest(ctx context.Context, q vecstore.NearestQuery) ([]vecstore.Candidate, error) {
	ctx, span := observability.StartStoreSpan(ctx, "nearest", r.collection)
	defer span.End()

	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         q.Vector,
		Limit:          uint64(q.Limit),
		Filter:         buildFilter(q.Scope, q.Filter),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, storeErr(ctx, "qdrant search", err)
	}

	candidates := make([]vecstore.Candidate, len(resp.Result))
	for i, pt := range resp.Result {
		content := ""
		meta := make(map[string]string)
		for k, v := range pt.Payload {
			switch k {
			case payloadContent:
				content = v.GetStringValue()
			case payloadScope:
				// scope is a routing key, not chunk metadata
			default:
				meta[k] = v.GetStringValue()
			}
		}
		candidates[i] = vecstore.Candidate{
			ID:       pt.Id.GetUuid(),
			Distance: 1 - pt.Score,
			Content:  content,
			Metadata: meta,
		}
	}
	return candidates, nil
}

func (r *Repository) Close() error {
	return r.conn.Close()
}

// buildFilter turns the scope and exact-match metadata predicates into
// a conjunctive Qdrant filter.
func buildFilter(scope string, filter map[string]string) *pb.Filter {
	if scope == "" && len(filter) == 0 {
		return nil
	}
	var must []*pb.Condition
	if scope != "" {
		must = append(must, matchKeyword(payloadScope, scope))
	}
	for k, v := range filter {
		must = append(must, matchKeyword(k, v))
	}
	return &pb.Filter{Must: must}
}

func matchKeyword(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

// storeErr maps a collaborator failure to the pipeline taxonomy while
// keeping cancellation distinct.
func storeErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s: %w", vecstore.ErrUnavailable, op, err)
}

var _ vecstore.Repository = (*Repository)(nil)
