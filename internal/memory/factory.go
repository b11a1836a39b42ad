package memory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/altailabs/twind/internal/config"
)

// NewStore creates a Store from the vector configuration.
//
// Provider "qdrant" requires an external Qdrant server reachable at the
// configured URL; "chromem" is embedded and needs no external service.
func NewStore(cfg config.VectorConfig, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:       cfg.Host(),
			Port:       cfg.Port(),
			Collection: cfg.Collection,
			VectorSize: cfg.Size,
		}, embedder, logger)

	case "chromem":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.Path,
			Collection: cfg.Collection,
			VectorSize: cfg.Size,
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: qdrant, chromem)", ErrInvalidConfig, cfg.Provider)
	}
}
