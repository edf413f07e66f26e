package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Registry maps each actor to at most one live session and dispatches
// classified input to a handler table keyed by session kind.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	handlers map[Kind]Handler
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewRegistry creates a Registry with the given handler table. Kinds
// without a handler still classify input but drop allowed events.
func NewRegistry(handlers map[Kind]Handler, logger *slog.Logger, tp trace.TracerProvider) *Registry {
	if handlers == nil {
		handlers = map[Kind]Handler{}
	}
	return &Registry{
		sessions: make(map[string]*Session),
		handlers: handlers,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/bazaar/internal/session"),
	}
}

// Register binds a session to an actor, atomically replacing any prior one.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	prior := r.sessions[s.ActorID]
	r.sessions[s.ActorID] = s
	r.mu.Unlock()

	if prior != nil {
		r.logger.Debug("session replaced",
			slog.String("actor_id", s.ActorID),
			slog.String("old_kind", string(prior.Kind)),
			slog.String("new_kind", string(s.Kind)),
		)
	}
}

// Get returns the actor's current session, or nil if none is active.
func (r *Registry) Get(actorID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[actorID]
}

// Unregister removes the actor's session, if any.
func (r *Registry) Unregister(actorID string) {
	r.mu.Lock()
	delete(r.sessions, actorID)
	r.mu.Unlock()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Route classifies an input event for the actor's session and, when the
// event is allowed, dispatches it to the kind's handler. The returned
// Verdict tells the host whether to suppress the event and whether to clear
// the held cursor item.
func (r *Registry) Route(ctx context.Context, actorID string, ev Event) (Verdict, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.Route",
		trace.WithAttributes(
			attribute.String("actor_id", actorID),
			attribute.String("gesture", ev.Gesture.String()),
		),
	)
	defer span.End()

	s := r.Get(actorID)
	if s == nil {
		return Verdict{}, fmt.Errorf("no active session for actor %s", actorID)
	}

	verdict := Classify(s.Kind, ev)
	if !verdict.Allowed {
		r.logger.WarnContext(ctx, "suppressed unauthorized interaction",
			slog.String("actor_id", actorID),
			slog.String("kind", string(s.Kind)),
			slog.String("gesture", ev.Gesture.String()),
			slog.Bool("cleared_cursor", verdict.ClearCursor),
		)
		return verdict, nil
	}

	h, ok := r.handlers[s.Kind]
	if !ok {
		return verdict, nil
	}
	if err := h.Handle(ctx, s, ev); err != nil {
		return verdict, fmt.Errorf("handling %s event: %w", s.Kind, err)
	}
	return verdict, nil
}

// BroadcastRefresh pushes a refresh to every live session of the given
// kind. Per-session refresh failures are logged, not returned; one stale
// view must not block the rest.
func (r *Registry) BroadcastRefresh(ctx context.Context, kind Kind) {
	h, ok := r.handlers[kind]
	if !ok {
		return
	}

	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Kind == kind {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range targets {
		if err := h.Refresh(ctx, s); err != nil {
			r.logger.WarnContext(ctx, "session refresh failed",
				slog.String("actor_id", s.ActorID),
				slog.String("kind", string(kind)),
				slog.Any("error", err),
			)
		}
	}
}
