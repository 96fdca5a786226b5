package node

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/blockberries/craftberry/storage"
)

// Config collects the node's collaborators.
type Config struct {
	// Logger receives structural events. Protocol rejections log at
	// Debug.
	Logger *zap.Logger

	// Store persists accepted messages keyed by content hash.
	Store storage.Store

	// Tracer produces spans around dispatch.
	Tracer trace.Tracer

	// Registerer receives the node's metrics.
	Registerer prometheus.Registerer
}

// DefaultConfig returns a quiet, self-contained config: no-op logger,
// in-memory store, no-op tracer, private metrics registry. Override
// fields as needed before passing it to New.
func DefaultConfig() Config {
	return Config{
		Logger:     zap.NewNop(),
		Store:      storage.NewMemoryStore(),
		Tracer:     noop.NewTracerProvider().Tracer("craftberry/node"),
		Registerer: prometheus.NewRegistry(),
	}
}

// ValidateBasic checks that every collaborator is present.
func (c Config) ValidateBasic() error {
	if c.Logger == nil {
		return errors.New("config: nil logger")
	}
	if c.Store == nil {
		return errors.New("config: nil store")
	}
	if c.Tracer == nil {
		return errors.New("config: nil tracer")
	}
	if c.Registerer == nil {
		return errors.New("config: nil registerer")
	}
	return nil
}
