// Package memory provides the per-user semantic memory store.
//
// A memory point is one embedded, payload-tagged unit in a vector backend.
// All users share a single collection; ownership isolation is enforced at
// the query/write boundary by payload filtering on user_id. Queries must
// never return another user's points.
package memory

import (
	"context"
	"errors"
)

// Payload keys written on every memory point.
const (
	// PayloadUserID is the owner of a point. Required and immutable.
	PayloadUserID = "user_id"

	// PayloadContentPreview is the truncated content stored alongside the vector.
	PayloadContentPreview = "content_preview"

	// PayloadSource tags the origin of a point: questionnaire_audio,
	// questionnaire_likert, or persona_portrait.
	PayloadSource = "source"
)

// previewLimit is the stored content preview length in bytes.
const previewLimit = 256

// Sentinel errors for store operations.
var (
	// ErrInvalidConfig indicates a configuration fault discovered at
	// construction time. Fatal, never retried.
	ErrInvalidConfig = errors.New("invalid memory store configuration")

	// ErrConnectionFailed indicates the vector backend could not be reached
	// at construction time.
	ErrConnectionFailed = errors.New("failed to connect to vector backend")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embedding")

	// ErrVectorSizeMismatch indicates the collection exists with a vector
	// size different from the configured one. Treated as a fatal
	// configuration fault, never silently coerced.
	ErrVectorSizeMismatch = errors.New("collection vector size mismatch")
)

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// QueryResult is one retrieved memory point.
type QueryResult struct {
	// ID is the point identifier.
	ID string `json:"id"`

	// Score is the similarity score, higher is more similar.
	Score float32 `json:"score"`

	// Payload is the stored metadata, including user_id and content_preview.
	Payload map[string]any `json:"payload"`
}

// Store is the memory-store capability.
//
// Any backend satisfying these two operations is usable interchangeably;
// tests substitute an in-memory fake.
type Store interface {
	// UpsertMemory embeds content, merges metadata with the owner id and a
	// content preview, and writes one new point. Each call returns a fresh
	// id, even for identical input. A point is either fully written or not
	// written; upsert failures are surfaced to the caller.
	UpsertMemory(ctx context.Context, userID int64, content string, metadata map[string]any) (string, error)

	// QueryMemories embeds queryText and returns up to limit points owned
	// by userID, ordered by descending similarity. A transient backend
	// fault or a missing collection yields an empty result, not an error.
	QueryMemories(ctx context.Context, userID int64, queryText string, limit int) ([]QueryResult, error)

	// Close releases backend resources.
	Close() error
}

// preview truncates content for payload storage.
func preview(content string) string {
	if len(content) > previewLimit {
		return content[:previewLimit]
	}
	return content
}

// buildPayload merges caller metadata with the required ownership fields.
// The owner id and preview always win over caller-supplied values.
func buildPayload(userID int64, content string, metadata map[string]any) map[string]any {
	payload := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		payload[k] = v
	}
	payload[PayloadUserID] = userID
	payload[PayloadContentPreview] = preview(content)
	return payload
}

// filterByOwner keeps only results owned by userID, truncated to limit.
//
// This is the in-process enforcement path used when the backend cannot apply
// the ownership filter natively: correctness of the ownership boundary takes
// precedence over performance.
func filterByOwner(results []QueryResult, userID int64, limit int) []QueryResult {
	owned := make([]QueryResult, 0, limit)
	for _, r := range results {
		if ownerOf(r.Payload) != userID {
			continue
		}
		owned = append(owned, r)
		if len(owned) == limit {
			break
		}
	}
	return owned
}

// ownerOf extracts the owner id from a payload, or -1 when absent.
func ownerOf(payload map[string]any) int64 {
	switch v := payload[PayloadUserID].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return -1
	}
}
