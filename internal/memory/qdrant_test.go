package memory

import (
	"errors"
	"testing"
)

func TestQdrantConfig_Validate(t *testing.T) {
	valid := QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "user_questionnaire_memories",
		VectorSize: 768,
	}

	t.Run("valid config", func(t *testing.T) {
		if err := valid.Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(c *QdrantConfig)
	}{
		{"missing host", func(c *QdrantConfig) { c.Host = "" }},
		{"zero port", func(c *QdrantConfig) { c.Port = 0 }},
		{"port out of range", func(c *QdrantConfig) { c.Port = 70000 }},
		{"missing collection", func(c *QdrantConfig) { c.Collection = "" }},
		{"zero vector size", func(c *QdrantConfig) { c.VectorSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestQdrantPayloadConversion(t *testing.T) {
	t.Run("audio memory payload round-trips", func(t *testing.T) {
		payload := map[string]any{
			PayloadUserID:         int64(42),
			PayloadContentPreview: "Question: what do you value?",
			PayloadSource:         "questionnaire_audio",
			"facts":               []string{"values honesty", "works remotely"},
			"signals":             map[string]float64{"introversion": 0.7, "risk_tolerance": 0.3},
			"normalized_value":    0.8,
		}

		converted, err := toQdrantPayload(payload)
		if err != nil {
			t.Fatalf("toQdrantPayload() error = %v", err)
		}
		restored := fromQdrantPayload(converted)

		if restored[PayloadUserID] != int64(42) {
			t.Errorf("restored user_id = %v, want 42", restored[PayloadUserID])
		}
		if restored[PayloadSource] != "questionnaire_audio" {
			t.Errorf("restored source = %v, want questionnaire_audio", restored[PayloadSource])
		}
		facts, ok := restored["facts"].([]any)
		if !ok || len(facts) != 2 || facts[0] != "values honesty" {
			t.Errorf("restored facts = %v, want 2-element list", restored["facts"])
		}
		signals, ok := restored["signals"].(map[string]any)
		if !ok || signals["introversion"] != 0.7 {
			t.Errorf("restored signals = %v, want map with introversion 0.7", restored["signals"])
		}
		if restored["normalized_value"] != 0.8 {
			t.Errorf("restored normalized_value = %v, want 0.8", restored["normalized_value"])
		}
	})

	t.Run("nested communication style survives", func(t *testing.T) {
		payload := map[string]any{
			"communication_style": map[string]any{
				"tone": "direct",
				"do":   []string{"be concise"},
				"dont": []string{"small talk"},
			},
		}

		converted, err := toQdrantPayload(payload)
		if err != nil {
			t.Fatalf("toQdrantPayload() error = %v", err)
		}
		restored := fromQdrantPayload(converted)

		style, ok := restored["communication_style"].(map[string]any)
		if !ok {
			t.Fatalf("restored communication_style = %T, want map", restored["communication_style"])
		}
		if style["tone"] != "direct" {
			t.Errorf("restored tone = %v, want direct", style["tone"])
		}
	})

	t.Run("unsupported type is rejected", func(t *testing.T) {
		_, err := toQdrantPayload(map[string]any{"bad": make(chan int)})
		if err == nil {
			t.Error("toQdrantPayload() expected error for unsupported type")
		}
	})
}

func TestNewQdrantStore_Validation(t *testing.T) {
	t.Run("invalid config is fatal", func(t *testing.T) {
		_, err := NewQdrantStore(QdrantConfig{}, stubEmbedder{}, nil)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewQdrantStore() error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("nil embedder is fatal", func(t *testing.T) {
		cfg := QdrantConfig{Host: "localhost", Port: 6334, Collection: "c", VectorSize: 3}
		_, err := NewQdrantStore(cfg, nil, nil)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewQdrantStore() error = %v, want ErrInvalidConfig", err)
		}
	})
}
