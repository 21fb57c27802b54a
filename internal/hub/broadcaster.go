package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
)

// Broadcaster fans events out to the sinks of a session looked up by id.
type Broadcaster struct {
	registry *Registry
	logger   *zap.Logger
}

// NewBroadcaster creates a broadcaster over registry.
func NewBroadcaster(registry *Registry, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		registry: registry,
		logger:   logger.Named("broadcast"),
	}
}

// Broadcast appends ev to the session log and writes it to every attached
// sink. Unknown ids are ignored and reported as false.
func (b *Broadcaster) Broadcast(id string, ev domain.Event) bool {
	sess := b.registry.Get(id)
	if sess == nil {
		b.logger.Debug("dropping event for unknown session",
			zap.String("experiment_id", id),
			zap.String("type", string(ev.Type())))
		return false
	}
	sess.Publish(ev)
	return true
}

// AttachSink attaches sink to the session for id. See AttachTo.
func (b *Broadcaster) AttachSink(ctx context.Context, id string, sink Sink) (*Session, []Record, bool, error) {
	sess := b.registry.Get(id)
	if sess == nil {
		return nil, nil, false, domain.ErrSessionNotFound
	}
	replay, live := AttachTo(ctx, sess, sink)
	return sess, replay, live, nil
}

// DetachSink removes sink from the session for id, if both exist.
func (b *Broadcaster) DetachSink(id string, sink Sink) {
	if sess := b.registry.Get(id); sess != nil {
		sess.Detach(sink)
	}
}

// AttachTo attaches sink to sess and, when it goes live, detaches and
// closes it once ctx ends so dead transports do not accumulate.
func AttachTo(ctx context.Context, sess *Session, sink Sink) ([]Record, bool) {
	replay, live := sess.Attach(sink)
	if live {
		context.AfterFunc(ctx, func() {
			sess.Detach(sink)
			sink.Close()
		})
	}
	return replay, live
}
