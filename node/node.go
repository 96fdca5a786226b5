package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/blockberries/craftberry/object"
	"github.com/blockberries/craftberry/storage"
	"github.com/blockberries/craftberry/types"
)

// messageKeyPrefix namespaces persisted messages within the store.
const messageKeyPrefix = "msg:"

var errNilMessage = errors.New("nil message")

// Node owns the registry and the message store and runs the
// submit-verify-persist-dispatch pipeline.
type Node struct {
	registry *object.Registry
	store    storage.Store
	log      *zap.Logger
	tracer   trace.Tracer
	metrics  *Metrics
}

// New builds a node from cfg. Collaborators left nil are defaulted as
// in DefaultConfig.
func New(cfg Config) (*Node, error) {
	def := DefaultConfig()
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Store == nil {
		cfg.Store = def.Store
	}
	if cfg.Tracer == nil {
		cfg.Tracer = def.Tracer
	}
	if cfg.Registerer == nil {
		cfg.Registerer = def.Registerer
	}
	if err := cfg.ValidateBasic(); err != nil {
		return nil, err
	}
	return &Node{
		registry: object.NewRegistry(cfg.Logger),
		store:    cfg.Store,
		log:      cfg.Logger,
		tracer:   cfg.Tracer,
		metrics:  NewMetrics(cfg.Registerer),
	}, nil
}

// Registry exposes the node's object registry for registration and
// inspection.
func (n *Node) Registry() *object.Registry {
	return n.registry
}

// Submit runs one message through the pipeline: verify its content
// hash, persist it, dispatch it, and return the ids of the objects
// that accepted it. A message failing the hash check is rejected
// before any object or the store sees it.
func (n *Node) Submit(ctx context.Context, msg *types.Message) ([]types.ID, error) {
	if msg == nil {
		return nil, errNilMessage
	}
	n.metrics.RecordSubmitted()

	_, span := n.tracer.Start(ctx, "node.Submit", trace.WithAttributes(
		attribute.String("message.id", msg.ID.String()),
		attribute.String("message.kind", msg.Kind.Name()),
	))
	defer span.End()

	if err := msg.VerifyHash(); err != nil {
		n.metrics.RecordRejected("hash_mismatch")
		n.log.Debug("message rejected",
			zap.Stringer("id", msg.ID),
			zap.Error(err))
		return nil, err
	}

	if err := n.persist(msg); err != nil {
		return nil, err
	}

	start := time.Now()
	accepted, err := n.registry.Dispatch(msg)
	n.metrics.RecordDispatch(time.Since(start))

	span.SetAttributes(attribute.Int("accepted", len(accepted)))
	n.log.Debug("message dispatched",
		zap.Stringer("id", msg.ID),
		zap.Int("accepted", len(accepted)))
	return accepted, err
}

func (n *Node) persist(msg *types.Message) error {
	wire, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := n.store.Put(messageKeyPrefix+msg.ContentHash, wire); err != nil {
		return fmt.Errorf("persist message %s: %w", msg.ID, err)
	}
	return nil
}

// StoredMessage retrieves a previously accepted message by its content
// hash.
func (n *Node) StoredMessage(contentHash string) (*types.Message, bool, error) {
	wire, ok, err := n.store.Get(messageKeyPrefix + contentHash)
	if err != nil || !ok {
		return nil, false, err
	}
	msg, err := types.Decode(wire)
	if err != nil {
		return nil, false, fmt.Errorf("stored message %s: %w", contentHash, err)
	}
	return msg, true, nil
}

// Digests returns every registered object's digest, keyed by object
// id, for replica comparison.
func (n *Node) Digests() (map[types.ID]string, error) {
	out := make(map[types.ID]string)
	var errs []error
	for _, id := range n.registry.IDs() {
		obj, err := n.registry.Get(id)
		if err != nil {
			continue
		}
		d, err := obj.Digest()
		if err != nil {
			errs = append(errs, fmt.Errorf("object %s digest: %w", id, err))
			continue
		}
		out[id] = d
	}
	return out, errors.Join(errs...)
}

// Close shuts the registry and the store. The registry stops accepting
// dispatches first so nothing races the store teardown.
func (n *Node) Close() error {
	n.registry.Close()
	if err := n.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
