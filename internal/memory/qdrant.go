package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("twind.memory.qdrant")

// supersetFactor widens the unfiltered fetch used by the in-process
// ownership-filter fallback.
const supersetFactor = 4

// QdrantConfig holds configuration for the Qdrant-backed store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string

	// Port is the Qdrant gRPC port (6334 by default deployments).
	Port int

	// Collection is the shared memory collection, created lazily on first
	// use with cosine distance.
	Collection string

	// VectorSize is the embedding dimension. Must match the embedder output
	// and, if the collection already exists, its configured size.
	VectorSize int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// Validate checks the configuration for faults.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore is a Store backed by Qdrant's native gRPC client.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger

	// ensureMu serializes lazy collection creation.
	ensureMu sync.Mutex
	ensured  bool
}

// NewQdrantStore creates a Qdrant-backed store.
//
// Configuration faults (missing host/port, collection, vector size) and
// connection failures are fatal and surfaced immediately. The collection is
// not touched here; it is created lazily on first upsert.
func NewQdrantStore(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ensureCollection creates the backing collection on first use if absent.
// An existing collection with a mismatched vector size is a fatal
// configuration fault.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()

	if s.ensured {
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
	if err != nil {
		st, ok := status.FromError(err)
		if !ok || st.Code() != grpccodes.NotFound {
			return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
		}
		if err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.config.VectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
		}
		s.logger.Info("created memory collection",
			zap.String("collection", s.config.Collection),
			zap.Int("vector_size", s.config.VectorSize),
		)
		s.ensured = true
		return nil
	}

	if params := info.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
		if params.GetSize() != uint64(s.config.VectorSize) {
			return fmt.Errorf("%w: collection %s has size %d, configured %d",
				ErrVectorSizeMismatch, s.config.Collection, params.GetSize(), s.config.VectorSize)
		}
	}

	s.ensured = true
	return nil
}

// UpsertMemory embeds content and writes one new point owned by userID.
func (s *QdrantStore) UpsertMemory(ctx context.Context, userID int64, content string, metadata map[string]any) (string, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.UpsertMemory")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.String("collection", s.config.Collection),
	)

	if err := s.ensureCollection(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return "", err
	}

	vector, err := s.embedder.EmbedText(ctx, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return "", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	pointID := uuid.New().String()
	payload := buildPayload(userID, content, metadata)

	qdrantPayload, err := toQdrantPayload(payload)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	// Upsert failures escalate: a lost write must be visible to the caller.
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(pointID),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrantPayload,
			},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return "", fmt.Errorf("upserting memory point: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "success")
	return pointID, nil
}

// QueryMemories returns up to limit points owned by userID ordered by
// descending similarity.
//
// The ownership filter is applied natively by Qdrant. If the filtered query
// fails, a superset is fetched without the native filter and filtered by
// payload in-process. If the backend is unreachable or the collection does
// not exist, an empty result is returned so the caller can proceed with
// degraded context.
func (s *QdrantStore) QueryMemories(ctx context.Context, userID int64, queryText string, limit int) ([]QueryResult, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.QueryMemories")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int("limit", limit),
	)

	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	vector, err := s.embedder.EmbedText(ctx, queryText)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	ownerFilter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: PayloadUserID,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Integer{Integer: userID},
						},
					},
				},
			},
		},
	}

	points, err := s.query(ctx, vector, ownerFilter, uint64(limit))
	if err == nil {
		span.SetAttributes(attribute.Int("results_count", len(points)))
		span.SetStatus(otelcodes.Ok, "success")
		return s.toResults(points), nil
	}

	if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
		span.SetStatus(otelcodes.Ok, "collection absent")
		return []QueryResult{}, nil
	}

	s.logger.Warn("filtered query failed, falling back to in-process ownership filter",
		zap.Int64("user_id", userID),
		zap.Error(err),
	)

	// Fetch a superset without the native filter and enforce ownership here.
	points, err = s.query(ctx, vector, nil, uint64(limit*supersetFactor))
	if err != nil {
		// Degraded path: the caller proceeds with empty context rather
		// than failing the whole request.
		s.logger.Warn("memory query unavailable, returning empty results",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		span.SetStatus(otelcodes.Ok, "degraded: empty results")
		return []QueryResult{}, nil
	}

	owned := filterByOwner(s.toResults(points), userID, limit)
	span.SetAttributes(attribute.Int("results_count", len(owned)))
	span.SetStatus(otelcodes.Ok, "success via fallback filter")
	return owned, nil
}

func (s *QdrantStore) query(ctx context.Context, vector []float32, filter *qdrant.Filter, limit uint64) ([]*qdrant.ScoredPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         filter,
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}
	return points, nil
}

func (s *QdrantStore) toResults(points []*qdrant.ScoredPoint) []QueryResult {
	results := make([]QueryResult, len(points))
	for i, point := range points {
		results[i] = QueryResult{
			ID:      point.GetId().GetUuid(),
			Score:   point.GetScore(),
			Payload: fromQdrantPayload(point.GetPayload()),
		}
	}
	return results
}

// toQdrantPayload converts a payload map to Qdrant values. Lists and nested
// maps (facts, preferences, signals) are converted recursively.
func toQdrantPayload(payload map[string]any) (map[string]*qdrant.Value, error) {
	result := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		value, err := toQdrantValue(v)
		if err != nil {
			return nil, fmt.Errorf("payload key %q: %w", k, err)
		}
		result[k] = value
	}
	return result, nil
}

func toQdrantValue(v any) (*qdrant.Value, error) {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}, nil
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}, nil
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}, nil
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}, nil
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(val)}}, nil
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}, nil
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}, nil
	case []string:
		values := make([]*qdrant.Value, len(val))
		for i, s := range val {
			values[i] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}, nil
	case []any:
		values := make([]*qdrant.Value, len(val))
		for i, item := range val {
			value, err := toQdrantValue(item)
			if err != nil {
				return nil, err
			}
			values[i] = value
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}, nil
	case map[string]float64:
		fields := make(map[string]*qdrant.Value, len(val))
		for k, f := range val {
			fields[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: f}}
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}, nil
	case map[string]any:
		fields, err := toQdrantPayload(val)
		if err != nil {
			return nil, err
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}, nil
	default:
		return nil, fmt.Errorf("unsupported payload value type %T", v)
	}
}

// fromQdrantPayload converts Qdrant values back to a payload map.
func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		result[k] = fromQdrantValue(v)
	}
	return result
}

func fromQdrantValue(v *qdrant.Value) any {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_ListValue:
		items := make([]any, len(val.ListValue.GetValues()))
		for i, item := range val.ListValue.GetValues() {
			items[i] = fromQdrantValue(item)
		}
		return items
	case *qdrant.Value_StructValue:
		fields := make(map[string]any, len(val.StructValue.GetFields()))
		for k, field := range val.StructValue.GetFields() {
			fields[k] = fromQdrantValue(field)
		}
		return fields
	default:
		return nil
	}
}

var _ Store = (*QdrantStore)(nil)
