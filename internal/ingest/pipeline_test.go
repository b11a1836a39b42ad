package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/altailabs/twind/internal/memory"
	"github.com/altailabs/twind/internal/questionnaire"
	"github.com/altailabs/twind/internal/summarizer"
	"github.com/altailabs/twind/internal/transcribe"
)

type fakeLister struct {
	responses []questionnaire.Response
	err       error
}

func (f *fakeLister) ListResponses(context.Context, int64) ([]questionnaire.Response, error) {
	return f.responses, f.err
}

type fakeSummarizer struct {
	summary *summarizer.AudioSummary
	err     error
}

func (f *fakeSummarizer) SummarizeAudioAnswer(context.Context, string, string) (*summarizer.AudioSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.summary != nil {
		return f.summary, nil
	}
	return &summarizer.AudioSummary{
		Summary:     "a summary",
		Facts:       []string{},
		Preferences: []string{},
		Signals:     map[string]float64{},
	}, nil
}

type upsertCall struct {
	userID   int64
	content  string
	metadata map[string]any
}

// fakeStore records upserts in memory.
type fakeStore struct {
	upserts   []upsertCall
	upsertErr error
	nextID    int
}

func (f *fakeStore) UpsertMemory(_ context.Context, userID int64, content string, metadata map[string]any) (string, error) {
	if f.upsertErr != nil {
		return "", f.upsertErr
	}
	f.upserts = append(f.upserts, upsertCall{userID: userID, content: content, metadata: metadata})
	f.nextID++
	return fmt.Sprintf("point-%d", f.nextID), nil
}

func (f *fakeStore) QueryMemories(context.Context, int64, string, int) ([]memory.QueryResult, error) {
	return []memory.QueryResult{}, nil
}

func (f *fakeStore) Close() error { return nil }

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return f.text, f.err
}

// keywordEmbedder routes texts about the outdoors and everything else to
// two orthogonal unit vectors, making similarity ranking deterministic.
type keywordEmbedder struct{}

func (keywordEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "hiking") || strings.Contains(lower, "outdoors") {
		return []float32{1, 0, 0}, nil
	}
	return []float32{0, 1, 0}, nil
}

func likert(v int64) *int64 { return &v }

func audioResponse(id, transcription, audioPath string) questionnaire.Response {
	return questionnaire.Response{
		ID:            id,
		UserID:        1,
		QuestionID:    "q-audio",
		AudioPath:     audioPath,
		Transcription: transcription,
		CreatedAt:     time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
		Question:      questionnaire.Question{ID: "q-audio", Text: "Tell me about yourself", Type: questionnaire.TypeAudio},
	}
}

func likertResponse(id string, value *int64) questionnaire.Response {
	return questionnaire.Response{
		ID:          id,
		UserID:      1,
		QuestionID:  "q-likert",
		LikertValue: value,
		CreatedAt:   time.Date(2026, 2, 1, 12, 5, 0, 0, time.UTC),
		Question:    questionnaire.Question{ID: "q-likert", Text: "I enjoy meeting new people", Type: questionnaire.TypeLikert},
	}
}

func TestPipeline_IngestUserResponses(t *testing.T) {
	ctx := context.Background()

	t.Run("audio with stored transcription skips the transcriber", func(t *testing.T) {
		store := &fakeStore{}
		failing := &fakeTranscriber{err: errors.New("must not be called")}
		p := New(&fakeLister{responses: []questionnaire.Response{
			audioResponse("r1", "I grew up by the sea", ""),
		}}, &fakeSummarizer{}, store, failing, nil)

		result, err := p.IngestUserResponses(ctx, 1)
		if err != nil {
			t.Fatalf("IngestUserResponses() error = %v", err)
		}
		if len(result.AudioItems) != 1 {
			t.Fatalf("AudioItems = %d, want 1", len(result.AudioItems))
		}
		if result.AudioItems[0].Transcript != "I grew up by the sea" {
			t.Errorf("Transcript = %q, want stored transcription", result.AudioItems[0].Transcript)
		}
		if len(store.upserts) != 1 {
			t.Fatalf("upserts = %d, want 1", len(store.upserts))
		}
		if store.upserts[0].metadata[memory.PayloadSource] != SourceAudio {
			t.Errorf("metadata source = %v, want %s", store.upserts[0].metadata[memory.PayloadSource], SourceAudio)
		}
	})

	t.Run("audio path goes through the transcriber", func(t *testing.T) {
		store := &fakeStore{}
		p := New(&fakeLister{responses: []questionnaire.Response{
			audioResponse("r1", "", "/audio/r1.mp3"),
		}}, &fakeSummarizer{}, store, &fakeTranscriber{text: "transcribed text"}, nil)

		result, err := p.IngestUserResponses(ctx, 1)
		if err != nil {
			t.Fatalf("IngestUserResponses() error = %v", err)
		}
		if result.AudioItems[0].Transcript != "transcribed text" {
			t.Errorf("Transcript = %q, want transcribed text", result.AudioItems[0].Transcript)
		}
	})

	t.Run("unavailable transcription stays recognizable", func(t *testing.T) {
		p := New(&fakeLister{responses: []questionnaire.Response{
			audioResponse("r1", "", "/audio/r1.mp3"),
		}}, &fakeSummarizer{}, &fakeStore{}, nil, nil)

		_, err := p.IngestUserResponses(ctx, 1)
		if !errors.Is(err, transcribe.ErrNotImplemented) {
			t.Errorf("IngestUserResponses() error = %v, want ErrNotImplemented", err)
		}
	})

	t.Run("audio with neither transcript nor path is skipped", func(t *testing.T) {
		store := &fakeStore{}
		p := New(&fakeLister{responses: []questionnaire.Response{
			audioResponse("r1", "", ""),
		}}, &fakeSummarizer{}, store, nil, nil)

		result, err := p.IngestUserResponses(ctx, 1)
		if err != nil {
			t.Fatalf("IngestUserResponses() error = %v", err)
		}
		if len(result.AudioItems) != 0 || len(store.upserts) != 0 {
			t.Errorf("skipped response produced items=%d upserts=%d, want 0/0", len(result.AudioItems), len(store.upserts))
		}
	})

	t.Run("likert value is normalized", func(t *testing.T) {
		store := &fakeStore{}
		p := New(&fakeLister{responses: []questionnaire.Response{
			likertResponse("r1", likert(4)),
		}}, &fakeSummarizer{}, store, nil, nil)

		result, err := p.IngestUserResponses(ctx, 1)
		if err != nil {
			t.Fatalf("IngestUserResponses() error = %v", err)
		}
		if len(result.LikertItems) != 1 {
			t.Fatalf("LikertItems = %d, want 1", len(result.LikertItems))
		}
		item := result.LikertItems[0]
		if item.Value != 4 {
			t.Errorf("Value = %d, want 4", item.Value)
		}
		if item.Normalized != 0.8 {
			t.Errorf("Normalized = %v, want 0.8", item.Normalized)
		}
		if store.upserts[0].metadata["normalized_value"] != 0.8 {
			t.Errorf("metadata normalized_value = %v, want 0.8", store.upserts[0].metadata["normalized_value"])
		}
		if store.upserts[0].metadata[memory.PayloadSource] != SourceLikert {
			t.Errorf("metadata source = %v, want %s", store.upserts[0].metadata[memory.PayloadSource], SourceLikert)
		}
	})

	t.Run("likert without a value is skipped", func(t *testing.T) {
		store := &fakeStore{}
		p := New(&fakeLister{responses: []questionnaire.Response{
			likertResponse("r1", nil),
		}}, &fakeSummarizer{}, store, nil, nil)

		result, err := p.IngestUserResponses(ctx, 1)
		if err != nil {
			t.Fatalf("IngestUserResponses() error = %v", err)
		}
		if len(result.LikertItems) != 0 || len(store.upserts) != 0 {
			t.Errorf("skipped response produced items=%d upserts=%d, want 0/0", len(result.LikertItems), len(store.upserts))
		}
	})

	t.Run("unknown question type is ignored", func(t *testing.T) {
		store := &fakeStore{}
		resp := likertResponse("r1", likert(3))
		resp.Question.Type = "VIDEO"
		p := New(&fakeLister{responses: []questionnaire.Response{resp}}, &fakeSummarizer{}, store, nil, nil)

		result, err := p.IngestUserResponses(ctx, 1)
		if err != nil {
			t.Fatalf("IngestUserResponses() error = %v", err)
		}
		if len(result.AudioItems) != 0 || len(result.LikertItems) != 0 {
			t.Errorf("unknown type produced items, want none")
		}
	})

	t.Run("upsert failure escalates", func(t *testing.T) {
		upsertErr := errors.New("vector backend down")
		p := New(&fakeLister{responses: []questionnaire.Response{
			likertResponse("r1", likert(5)),
		}}, &fakeSummarizer{}, &fakeStore{upsertErr: upsertErr}, nil, nil)

		if _, err := p.IngestUserResponses(ctx, 1); !errors.Is(err, upsertErr) {
			t.Errorf("IngestUserResponses() error = %v, want the upsert error", err)
		}
	})

	t.Run("mixed responses keep creation order per type", func(t *testing.T) {
		store := &fakeStore{}
		p := New(&fakeLister{responses: []questionnaire.Response{
			audioResponse("r1", "first answer", ""),
			likertResponse("r2", likert(2)),
			audioResponse("r3", "second answer", ""),
		}}, &fakeSummarizer{}, store, nil, nil)

		result, err := p.IngestUserResponses(ctx, 1)
		if err != nil {
			t.Fatalf("IngestUserResponses() error = %v", err)
		}
		if len(result.AudioItems) != 2 || len(result.LikertItems) != 1 {
			t.Fatalf("items = %d audio / %d likert, want 2/1", len(result.AudioItems), len(result.LikertItems))
		}
		if result.AudioItems[0].Transcript != "first answer" || result.AudioItems[1].Transcript != "second answer" {
			t.Errorf("audio items out of order: %q, %q", result.AudioItems[0].Transcript, result.AudioItems[1].Transcript)
		}
		if len(store.upserts) != 3 {
			t.Errorf("upserts = %d, want 3", len(store.upserts))
		}
	})

	t.Run("lister failure propagates", func(t *testing.T) {
		listErr := errors.New("db down")
		p := New(&fakeLister{err: listErr}, &fakeSummarizer{}, &fakeStore{}, nil, nil)

		if _, err := p.IngestUserResponses(ctx, 1); !errors.Is(err, listErr) {
			t.Errorf("IngestUserResponses() error = %v, want the lister error", err)
		}
	})
}

// TestPipeline_IngestThenQuery runs ingestion against a real embedded store
// and checks that the ingested memory is retrievable and ranks above an
// unrelated one.
func TestPipeline_IngestThenQuery(t *testing.T) {
	ctx := context.Background()
	const userID = int64(42)

	store, err := memory.NewChromemStore(memory.ChromemConfig{
		Collection: "memories",
		VectorSize: 3,
	}, keywordEmbedder{}, nil)
	if err != nil {
		t.Fatalf("NewChromemStore() error = %v", err)
	}

	if _, err := store.UpsertMemory(ctx, userID, "I dread tax preparation season", nil); err != nil {
		t.Fatalf("UpsertMemory() error = %v", err)
	}

	p := New(&fakeLister{responses: []questionnaire.Response{
		audioResponse("r1", "I love hiking", ""),
	}}, &fakeSummarizer{summary: &summarizer.AudioSummary{
		Summary:     "Loves hiking",
		Facts:       []string{"enjoys hiking"},
		Preferences: []string{},
		Signals:     map[string]float64{},
	}}, store, nil, nil)

	if _, err := p.IngestUserResponses(ctx, userID); err != nil {
		t.Fatalf("IngestUserResponses() error = %v", err)
	}

	results, err := store.QueryMemories(ctx, userID, "What do you enjoy outdoors?", 2)
	if err != nil {
		t.Fatalf("QueryMemories() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("QueryMemories() returned %d results, want 2", len(results))
	}

	top := results[0]
	if top.Payload[memory.PayloadSource] != SourceAudio {
		t.Errorf("top result source = %v, want %s", top.Payload[memory.PayloadSource], SourceAudio)
	}
	if top.Payload[memory.PayloadUserID] != userID {
		t.Errorf("top result user_id = %v, want %d", top.Payload[memory.PayloadUserID], userID)
	}
	if top.Payload["transcript"] != "I love hiking" {
		t.Errorf("top result transcript = %v, want the ingested transcript", top.Payload["transcript"])
	}
	if top.Score <= results[1].Score {
		t.Errorf("hiking memory score %v not above unrelated memory score %v", top.Score, results[1].Score)
	}
}
