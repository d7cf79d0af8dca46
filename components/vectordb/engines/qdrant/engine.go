package qdrant

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/bububa/catalogue-rag/components/vectordb"
)

const (
	payloadNamespace = "namespace"
	payloadChunkID   = "chunk_id"
)

// Engine stores every namespace in one qdrant collection. The namespace is
// kept in the payload and filtered on; point ids are derived from
// (namespace, id) so the same id in two namespaces never collides.
type Engine struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	vectordb.Options

	mu    sync.Mutex
	ready bool
}

var _ vectordb.Engine = (*Engine)(nil)

// New uses an established gRPC connection
func New(conn *grpc.ClientConn, collection string, opts ...vectordb.Option) *Engine {
	ret := &Engine{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}
	vectordb.WithEngine(vectordb.Qdrant)(&ret.Options)
	for _, opt := range opts {
		opt(&ret.Options)
	}
	return ret
}

// Connect dials the qdrant gRPC endpoint, apiKey may be empty
func Connect(host string, port int, collection string, apiKey string, opts ...vectordb.Option) (*Engine, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if apiKey != "" {
		dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			return invoker(metadata.AppendToOutgoingContext(ctx, "api-key", apiKey), method, req, reply, cc, opts...)
		}))
	}
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, vectordb.Unavailable(vectordb.Qdrant, "connect", addr, err)
	}
	return New(conn, collection, opts...), nil
}

// PointID maps (namespace, id) onto the UUID qdrant requires
func PointID(namespace string, id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(namespace+"/"+id)).String()
}

func (e *Engine) ensureCollection(ctx context.Context, dim int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}
	resp, err := e.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: e.collection})
	if err != nil {
		return err
	}
	if !resp.GetResult().GetExists() {
		if dim == 0 {
			dim = e.Dimension
		}
		if _, err := e.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: e.collection,
			VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
				Size:     uint64(dim),
				Distance: pb.Distance_Cosine,
			}}},
		}); err != nil {
			return err
		}
	}
	e.ready = true
	return nil
}

func (e *Engine) Upsert(ctx context.Context, namespace string, records ...vectordb.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := e.ensureCollection(ctx, len(records[0].Embedding.Embedding)); err != nil {
		return vectordb.Unavailable(e.EngineType, "upsert", namespace, err)
	}
	points := make([]*pb.PointStruct, len(records))
	for i, record := range records {
		if record.ID == "" {
			record.ID = record.Embedding.UUID()
		}
		payload := map[string]*pb.Value{
			payloadNamespace: stringValue(namespace),
			payloadChunkID:   stringValue(record.ID),
		}
		for k, v := range record.Embedding.Meta {
			payload[k] = stringValue(v)
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(namespace, record.ID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vectordb.Float32s(record.Embedding.Embedding)}}},
			Payload: payload,
		}
	}
	wait := true
	_, err := e.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: e.collection,
		Wait:           &wait,
		Points:         points,
	})
	return vectordb.Unavailable(e.EngineType, "upsert", namespace, err)
}

func (e *Engine) Search(ctx context.Context, vector []float64, opts ...vectordb.SearchOption) ([]vectordb.Record, error) {
	option := vectordb.NewSearchOptions(e.Options, opts...)
	if err := e.ensureCollection(ctx, len(vector)); err != nil {
		return nil, vectordb.Unavailable(e.EngineType, "search", option.Namespace, err)
	}
	must := []*pb.Condition{keywordCondition(payloadNamespace, option.Namespace)}
	for k, v := range option.Meta {
		must = append(must, keywordCondition(k, v))
	}
	req := &pb.SearchPoints{
		CollectionName: e.collection,
		Vector:         vectordb.Float32s(vector),
		Filter:         &pb.Filter{Must: must},
		Limit:          uint64(option.TopK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if option.MinScore != 0 {
		threshold := float32(option.MinScore)
		req.ScoreThreshold = &threshold
	}
	resp, err := e.points.Search(ctx, req)
	if err != nil {
		return nil, vectordb.Unavailable(e.EngineType, "search", option.Namespace, err)
	}
	results := make([]vectordb.Record, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		var record vectordb.Record
		record.Score = float64(pt.GetScore())
		record.Embedding.Meta = make(map[string]string, len(pt.GetPayload()))
		for k, v := range pt.GetPayload() {
			switch k {
			case payloadNamespace:
			case payloadChunkID:
				record.ID = v.GetStringValue()
			default:
				record.Embedding.Meta[k] = v.GetStringValue()
			}
		}
		record.Embedding.Object = record.Text()
		results = append(results, record)
	}
	return vectordb.Rank(results, option.TopK, option.MinScore), nil
}

func (e *Engine) Close() error {
	return e.conn.Close()
}

func stringValue(v string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
}

func keywordCondition(key string, value string) *pb.Condition {
	return &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
		Key:   key,
		Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
	}}}
}
