package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altailabs/twind/internal/config"
)

func TestNewStore(t *testing.T) {
	t.Run("chromem provider", func(t *testing.T) {
		store, err := NewStore(config.VectorConfig{
			Provider:   "chromem",
			Collection: "memories",
			Size:       3,
		}, stubEmbedder{}, nil)
		require.NoError(t, err)
		assert.IsType(t, &ChromemStore{}, store)
	})

	t.Run("qdrant provider", func(t *testing.T) {
		store, err := NewStore(config.VectorConfig{
			Provider:   "qdrant",
			URL:        "http://localhost:6334",
			Collection: "memories",
			Size:       3,
		}, stubEmbedder{}, nil)
		require.NoError(t, err)
		assert.IsType(t, &QdrantStore{}, store)
		assert.NoError(t, store.Close())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewStore(config.VectorConfig{Provider: "pinecone"}, stubEmbedder{}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}
