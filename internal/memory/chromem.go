package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("twind.memory.chromem")

// ChromemConfig holds configuration for the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty means in-memory only.
	Path string

	// Collection is the shared memory collection name.
	Collection string

	// VectorSize is the embedding dimension, kept for parity with the
	// Qdrant backend's configuration surface.
	VectorSize int
}

// Validate checks the configuration for faults.
func (c ChromemConfig) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("%w: collection required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore is a Store backed by the embedded chromem-go database.
//
// chromem-go keeps metadata as string maps, so structured payload values
// (facts, preferences, signals) are JSON-encoded on write and decoded on
// read. Ownership filtering uses chromem's native metadata where-clause.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger

	mu         sync.Mutex
	collection *chromem.Collection
}

// NewChromemStore creates an embedded store.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	var err error
	if config.Path != "" {
		db, err = chromem.NewPersistentDB(config.Path, false)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	return &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

// Close releases resources. chromem persists on write, so this is a no-op.
func (s *ChromemStore) Close() error {
	return nil
}

func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedText(ctx, text)
	}
}

func (s *ChromemStore) getOrCreateCollection() (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collection != nil {
		return s.collection, nil
	}
	collection, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", s.config.Collection, err)
	}
	s.collection = collection
	return collection, nil
}

// UpsertMemory embeds content and writes one new document owned by userID.
func (s *ChromemStore) UpsertMemory(ctx context.Context, userID int64, content string, metadata map[string]any) (string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.UpsertMemory")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	collection, err := s.getOrCreateCollection()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return "", err
	}

	payload := buildPayload(userID, content, metadata)
	stringMeta, err := encodeMetadata(payload)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	id := uuid.New().String()
	if err := collection.AddDocument(ctx, chromem.Document{
		ID:       id,
		Content:  content,
		Metadata: stringMeta,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return "", fmt.Errorf("adding memory document: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "success")
	return id, nil
}

// QueryMemories returns up to limit documents owned by userID ordered by
// descending similarity.
func (s *ChromemStore) QueryMemories(ctx context.Context, userID int64, queryText string, limit int) ([]QueryResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.QueryMemories")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int("limit", limit),
	)

	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	collection := s.db.GetCollection(s.config.Collection, s.embeddingFunc())
	if collection == nil {
		span.SetStatus(otelcodes.Ok, "collection absent")
		return []QueryResult{}, nil
	}

	// chromem requires nResults <= document count.
	count := collection.Count()
	if count == 0 {
		return []QueryResult{}, nil
	}
	k := limit
	if k > count {
		k = count
	}

	where := map[string]string{PayloadUserID: strconv.FormatInt(userID, 10)}
	results, err := collection.Query(ctx, queryText, k, where, nil)
	if err != nil {
		// Degraded path: proceed with empty context rather than failing
		// the caller.
		s.logger.Warn("memory query failed, returning empty results",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		span.SetStatus(otelcodes.Ok, "degraded: empty results")
		return []QueryResult{}, nil
	}

	queryResults := make([]QueryResult, 0, len(results))
	for _, r := range results {
		payload := decodeMetadata(r.Metadata)
		// Belt and braces on top of the native where-clause.
		if ownerOf(payload) != userID {
			continue
		}
		queryResults = append(queryResults, QueryResult{
			ID:      r.ID,
			Score:   r.Similarity,
			Payload: payload,
		})
	}

	span.SetAttributes(attribute.Int("results_count", len(queryResults)))
	span.SetStatus(otelcodes.Ok, "success")
	return queryResults, nil
}

// encodeMetadata flattens a payload into chromem's string metadata.
// Strings pass through, the owner id is a decimal string, and everything
// else is JSON-encoded.
func encodeMetadata(payload map[string]any) (map[string]string, error) {
	result := make(map[string]string, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int64:
			result[k] = strconv.FormatInt(val, 10)
		case int:
			result[k] = strconv.Itoa(val)
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			result[k] = string(encoded)
		}
	}
	return result, nil
}

// decodeMetadata restores a payload from chromem's string metadata.
func decodeMetadata(metadata map[string]string) map[string]any {
	if metadata == nil {
		return nil
	}
	result := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if k == PayloadUserID {
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				result[k] = id
				continue
			}
		}
		var decoded any
		if len(v) > 0 && (v[0] == '[' || v[0] == '{') && json.Unmarshal([]byte(v), &decoded) == nil {
			result[k] = decoded
			continue
		}
		result[k] = v
	}
	return result
}

var _ Store = (*ChromemStore)(nil)
