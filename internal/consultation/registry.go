package consultation

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"health-triage/internal/auth"
)

var ErrNotFound = errors.New("consultation not found")

// TurnObserver is notified of every turn appended to any open view.
type TurnObserver interface {
	ObserveTurn(ctx context.Context, consultationID string, owner auth.Identity, t Turn)
}

// View is one open consultation: its log, controller and event stream. It is
// owned by the identity that opened it.
type View struct {
	ID          string
	Controller  *Controller
	Broadcaster *Broadcaster

	mu     sync.RWMutex
	owner  *auth.Identity
	cancel context.CancelFunc
}

// Identity implements IdentitySource. It returns nil after the view is closed.
func (v *View) Identity() *auth.Identity {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.owner
}

func (v *View) ownedBy(principalID string) bool {
	owner := v.Identity()
	return owner != nil && owner.PrincipalID == principalID
}

func (v *View) close() {
	v.mu.Lock()
	v.owner = nil
	v.mu.Unlock()
	v.Controller.Close()
	v.cancel()
	v.Broadcaster.Close()
}

// Registry keeps the consultation views that are currently open.
type Registry struct {
	client    TriageClient
	observers []TurnObserver
	logger    zerolog.Logger

	mu    sync.RWMutex
	views map[string]*View
}

func NewRegistry(client TriageClient, logger zerolog.Logger, observers ...TurnObserver) *Registry {
	return &Registry{
		client:    client,
		observers: observers,
		logger:    logger,
		views:     make(map[string]*View),
	}
}

// Open creates a new view for owner, optionally seeded with earlier turns.
func (r *Registry) Open(owner auth.Identity, seed ...Turn) (*View, error) {
	log, err := NewLog(seed...)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	broadcaster := NewBroadcaster(r.logger)
	v := &View{
		ID:          id,
		Broadcaster: broadcaster,
		owner:       &owner,
		cancel:      cancel,
	}
	v.Controller = NewController(id, log, r.client, v, broadcaster, WithLogger(r.logger))

	if len(r.observers) > 0 {
		events, _ := broadcaster.Subscribe(ctx)
		go r.notify(ctx, id, owner, events)
	}

	r.mu.Lock()
	r.views[id] = v
	r.mu.Unlock()

	r.logger.Info().Str("consultation_id", id).Str("principal_id", owner.PrincipalID).Msg("consultation opened")
	return v, nil
}

// Get returns the view with the given ID if principalID owns it.
func (r *Registry) Get(id, principalID string) (*View, error) {
	r.mu.RLock()
	v, ok := r.views[id]
	r.mu.RUnlock()
	if !ok || !v.ownedBy(principalID) {
		return nil, ErrNotFound
	}
	return v, nil
}

// Close dismisses a view. A triage call still in flight is left to finish
// and its result is discarded.
func (r *Registry) Close(id, principalID string) error {
	r.mu.Lock()
	v, ok := r.views[id]
	if !ok || !v.ownedBy(principalID) {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.views, id)
	r.mu.Unlock()

	v.close()
	r.logger.Info().Str("consultation_id", id).Msg("consultation closed")
	return nil
}

// CloseAll dismisses every view. Outstanding calls are not waited for; their
// results are discarded.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	views := make([]*View, 0, len(r.views))
	for id, v := range r.views {
		views = append(views, v)
		delete(r.views, id)
	}
	r.mu.Unlock()

	for _, v := range views {
		v.close()
	}
}

func (r *Registry) notify(ctx context.Context, id string, owner auth.Identity, events <-chan Event) {
	for ev := range events {
		if ev.Type != EventTurn || ev.Turn == nil {
			continue
		}
		for _, o := range r.observers {
			o.ObserveTurn(ctx, id, owner, *ev.Turn)
		}
	}
}
