package questionnaire

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err := store.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_Connect(t *testing.T) {
	t.Run("connect is idempotent", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "test.db"))
		ctx := context.Background()

		if err := store.Connect(ctx); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if err := store.Connect(ctx); err != nil {
			t.Fatalf("second Connect() error = %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("second Close() error = %v", err)
		}
	})

	t.Run("operations before connect fail", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "test.db"))
		if _, err := store.ListResponses(context.Background(), 1); err == nil {
			t.Error("ListResponses() expected error before Connect")
		}
	})
}

func TestStore_SaveAndListResponses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	audioQ := Question{ID: "q1", Text: "Tell me about your childhood", Type: TypeAudio}
	likertQ := Question{ID: "q2", Text: "I enjoy meeting new people", Type: TypeLikert}
	for _, q := range []Question{audioQ, likertQ} {
		if err := store.SaveQuestion(ctx, q); err != nil {
			t.Fatalf("SaveQuestion() error = %v", err)
		}
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	four := int64(4)

	if _, err := store.SaveResponse(ctx, Response{
		UserID:        1,
		QuestionID:    "q1",
		Transcription: "I grew up in a small town",
		CreatedAt:     base,
	}); err != nil {
		t.Fatalf("SaveResponse() error = %v", err)
	}
	if _, err := store.SaveResponse(ctx, Response{
		UserID:      1,
		QuestionID:  "q2",
		LikertValue: &four,
		CreatedAt:   base.Add(time.Minute),
	}); err != nil {
		t.Fatalf("SaveResponse() error = %v", err)
	}
	if _, err := store.SaveResponse(ctx, Response{
		UserID:        2,
		QuestionID:    "q1",
		Transcription: "someone else's answer",
		CreatedAt:     base,
	}); err != nil {
		t.Fatalf("SaveResponse() error = %v", err)
	}

	t.Run("lists only the user's responses in creation order", func(t *testing.T) {
		responses, err := store.ListResponses(ctx, 1)
		if err != nil {
			t.Fatalf("ListResponses() error = %v", err)
		}
		if len(responses) != 2 {
			t.Fatalf("ListResponses() = %d responses, want 2", len(responses))
		}
		if responses[0].Transcription != "I grew up in a small town" {
			t.Errorf("first response = %q, want the earlier one", responses[0].Transcription)
		}
		if responses[0].Question.Type != TypeAudio {
			t.Errorf("first question type = %q, want AUDIO", responses[0].Question.Type)
		}
		if responses[1].LikertValue == nil || *responses[1].LikertValue != 4 {
			t.Errorf("second likert value = %v, want 4", responses[1].LikertValue)
		}
	})

	t.Run("missing id and created_at are filled in", func(t *testing.T) {
		id, err := store.SaveResponse(ctx, Response{UserID: 3, QuestionID: "q1"})
		if err != nil {
			t.Fatalf("SaveResponse() error = %v", err)
		}
		if id == "" {
			t.Error("SaveResponse() returned empty id")
		}

		responses, err := store.ListResponses(ctx, 3)
		if err != nil {
			t.Fatalf("ListResponses() error = %v", err)
		}
		if len(responses) != 1 || responses[0].CreatedAt.IsZero() {
			t.Errorf("ListResponses() = %+v, want filled created_at", responses)
		}
	})

	t.Run("nil likert value round-trips as nil", func(t *testing.T) {
		responses, err := store.ListResponses(ctx, 1)
		if err != nil {
			t.Fatalf("ListResponses() error = %v", err)
		}
		if responses[0].LikertValue != nil {
			t.Errorf("audio response likert value = %v, want nil", responses[0].LikertValue)
		}
	})

	t.Run("unknown user gets no responses", func(t *testing.T) {
		responses, err := store.ListResponses(ctx, 99)
		if err != nil {
			t.Fatalf("ListResponses() error = %v", err)
		}
		if len(responses) != 0 {
			t.Errorf("ListResponses() = %d responses, want 0", len(responses))
		}
	})
}

func TestStore_SaveQuestion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	q := Question{ID: "q1", Text: "original", Type: TypeAudio}
	if err := store.SaveQuestion(ctx, q); err != nil {
		t.Fatalf("SaveQuestion() error = %v", err)
	}

	// Replacing keeps the id stable.
	q.Text = "revised"
	if err := store.SaveQuestion(ctx, q); err != nil {
		t.Fatalf("SaveQuestion() replace error = %v", err)
	}

	if _, err := store.SaveResponse(ctx, Response{UserID: 1, QuestionID: "q1"}); err != nil {
		t.Fatalf("SaveResponse() error = %v", err)
	}
	responses, err := store.ListResponses(ctx, 1)
	if err != nil {
		t.Fatalf("ListResponses() error = %v", err)
	}
	if len(responses) != 1 || responses[0].Question.Text != "revised" {
		t.Errorf("question text = %q, want revised", responses[0].Question.Text)
	}
}
