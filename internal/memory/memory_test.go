package memory

import (
	"strings"
	"testing"
)

func TestPreview(t *testing.T) {
	t.Run("short content passes through", func(t *testing.T) {
		if got := preview("hello"); got != "hello" {
			t.Errorf("preview() = %q, want %q", got, "hello")
		}
	})

	t.Run("long content is truncated", func(t *testing.T) {
		long := strings.Repeat("a", previewLimit+100)
		got := preview(long)
		if len(got) != previewLimit {
			t.Errorf("preview() length = %d, want %d", len(got), previewLimit)
		}
	})
}

func TestBuildPayload(t *testing.T) {
	t.Run("merges metadata with ownership fields", func(t *testing.T) {
		payload := buildPayload(42, "some content", map[string]any{"source": "questionnaire_audio"})

		if payload[PayloadUserID] != int64(42) {
			t.Errorf("payload user_id = %v, want 42", payload[PayloadUserID])
		}
		if payload[PayloadContentPreview] != "some content" {
			t.Errorf("payload content_preview = %v, want %q", payload[PayloadContentPreview], "some content")
		}
		if payload["source"] != "questionnaire_audio" {
			t.Errorf("payload source = %v, want questionnaire_audio", payload["source"])
		}
	})

	t.Run("owner id wins over caller metadata", func(t *testing.T) {
		payload := buildPayload(1, "content", map[string]any{PayloadUserID: int64(999)})

		if payload[PayloadUserID] != int64(1) {
			t.Errorf("payload user_id = %v, want 1 (caller must not override owner)", payload[PayloadUserID])
		}
	})

	t.Run("nil metadata is fine", func(t *testing.T) {
		payload := buildPayload(7, "x", nil)
		if payload[PayloadUserID] != int64(7) {
			t.Errorf("payload user_id = %v, want 7", payload[PayloadUserID])
		}
	})
}

func TestFilterByOwner(t *testing.T) {
	results := []QueryResult{
		{ID: "a", Payload: map[string]any{PayloadUserID: int64(1)}},
		{ID: "b", Payload: map[string]any{PayloadUserID: int64(2)}},
		{ID: "c", Payload: map[string]any{PayloadUserID: int64(1)}},
		{ID: "d", Payload: map[string]any{PayloadUserID: int64(1)}},
		{ID: "e", Payload: map[string]any{}},
	}

	t.Run("keeps only the owner's results", func(t *testing.T) {
		got := filterByOwner(results, 1, 10)
		if len(got) != 3 {
			t.Fatalf("filterByOwner() returned %d results, want 3", len(got))
		}
		for _, r := range got {
			if ownerOf(r.Payload) != 1 {
				t.Errorf("filterByOwner() leaked result %s owned by %d", r.ID, ownerOf(r.Payload))
			}
		}
	})

	t.Run("respects the limit", func(t *testing.T) {
		got := filterByOwner(results, 1, 2)
		if len(got) != 2 {
			t.Errorf("filterByOwner() returned %d results, want 2", len(got))
		}
	})

	t.Run("preserves similarity order", func(t *testing.T) {
		got := filterByOwner(results, 1, 10)
		want := []string{"a", "c", "d"}
		for i, r := range got {
			if r.ID != want[i] {
				t.Errorf("filterByOwner() result[%d] = %s, want %s", i, r.ID, want[i])
			}
		}
	})

	t.Run("no matches yields empty slice", func(t *testing.T) {
		got := filterByOwner(results, 99, 10)
		if len(got) != 0 {
			t.Errorf("filterByOwner() returned %d results, want 0", len(got))
		}
	})
}

func TestOwnerOf(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    int64
	}{
		{"int64 value", map[string]any{PayloadUserID: int64(5)}, 5},
		{"int value", map[string]any{PayloadUserID: 5}, 5},
		{"float64 value from JSON decoding", map[string]any{PayloadUserID: float64(5)}, 5},
		{"missing key", map[string]any{}, -1},
		{"wrong type", map[string]any{PayloadUserID: "5"}, -1},
		{"nil payload", nil, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ownerOf(tt.payload); got != tt.want {
				t.Errorf("ownerOf() = %d, want %d", got, tt.want)
			}
		})
	}
}
