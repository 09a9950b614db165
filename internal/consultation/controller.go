package consultation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"health-triage/internal/auth"
)

// TriageClient is the outbound triage call. We define it here to decouple
// from the HTTP implementation in the agent package.
type TriageClient interface {
	Submit(ctx context.Context, symptoms string) (*TriageResult, error)
}

// IdentitySource reports the identity currently attached to a consultation
// view, or nil once the user is gone.
type IdentitySource interface {
	Identity() *auth.Identity
}

// Controller runs the request cycle of one consultation: user turn in, one
// triage call, exactly one assistant turn out.
type Controller struct {
	id          string
	log         *Log
	client      TriageClient
	identity    IdentitySource
	broadcaster *Broadcaster
	logger      zerolog.Logger

	now   func() time.Time
	newID func() string

	inflight conc.WaitGroup

	mu     sync.Mutex
	closed bool
}

type ControllerOption func(*Controller)

// WithClock overrides the timestamp source for new turns.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

func NewController(id string, log *Log, client TriageClient, identity IdentitySource, broadcaster *Broadcaster, opts ...ControllerOption) *Controller {
	c := &Controller{
		id:          id,
		log:         log,
		client:      client,
		identity:    identity,
		broadcaster: broadcaster,
		logger:      zerolog.Nop(),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "consultation").Str("consultation_id", id).Logger()
	return c
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) Log() *Log { return c.log }

func (c *Controller) Status() Status {
	if c.log.IsPending() {
		return StatusAwaitingResponse
	}
	return StatusIdle
}

// Send submits text as the next user turn. It reports whether the submission
// was accepted; blank text, a missing identity, a closed view or a request
// already in flight are silently skipped.
//
// The triage call outlives ctx: it is never cancelled once issued.
func (c *Controller) Send(ctx context.Context, text string) bool {
	symptoms := strings.TrimSpace(text)
	if symptoms == "" {
		c.logger.Debug().Msg("skip send: empty input")
		return false
	}
	userTurn := Turn{
		ID:        c.newID(),
		Role:      RoleUser,
		Content:   text,
		Timestamp: c.now(),
	}

	// Gate and publish under c.mu so subscribers see turns in log order.
	c.mu.Lock()
	if c.identity == nil || c.identity.Identity() == nil {
		c.mu.Unlock()
		c.logger.Debug().Msg("skip send: no identity")
		return false
	}
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug().Msg("skip send: view closed")
		return false
	}
	if !c.log.begin(userTurn) {
		c.mu.Unlock()
		c.logger.Debug().Msg("skip send: request in flight")
		return false
	}
	c.publishTurn(userTurn, StatusAwaitingResponse)
	c.publishStatus(StatusAwaitingResponse)
	c.mu.Unlock()

	callCtx := context.WithoutCancel(ctx)
	c.inflight.Go(func() {
		c.resolve(callCtx, symptoms)
	})
	return true
}

// Wait blocks until no triage call is outstanding.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close dismisses the view. Results of a call still in flight are dropped
// when they arrive.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Controller) resolve(ctx context.Context, symptoms string) {
	var (
		result *TriageResult
		err    error
		pc     panics.Catcher
	)
	pc.Try(func() {
		result, err = c.client.Submit(ctx, symptoms)
	})
	if r := pc.Recovered(); r != nil {
		err = errors.Wrap(r.AsError(), "triage client panicked")
	}
	if err == nil && result == nil {
		err = errors.New("triage client returned no result")
	}

	var reply Turn
	if err != nil {
		c.logger.Error().Err(err).Msg("triage failed")
		reply = c.fallbackTurn()
	} else {
		reply = c.resultTurn(result)
		c.logger.Info().Int("urgency_score", result.UrgencyScore).Int("flags", len(result.MedicalFlags)).Msg("triage completed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.log.finish(nil)
		c.logger.Warn().Str("turn_id", reply.ID).Msg("view closed before triage resolved, discarding result")
		return
	}
	c.log.finish(&reply)
	c.publishTurn(reply, StatusIdle)
	c.publishStatus(StatusIdle)
}

func (c *Controller) resultTurn(r *TriageResult) Turn {
	score := r.UrgencyScore
	return Turn{
		ID:           c.newID(),
		Role:         RoleAssistant,
		Content:      composeAssistantContent(r),
		Timestamp:    c.now(),
		UrgencyScore: &score,
		MedicalFlags: append([]string{}, r.MedicalFlags...),
		FirstAid:     append([]string{}, r.FirstAid...),
	}
}

func (c *Controller) fallbackTurn() Turn {
	return Turn{
		ID:        c.newID(),
		Role:      RoleAssistant,
		Content:   FallbackMessage,
		Timestamp: c.now(),
	}
}

// publishTurn and publishStatus never block; callers hold c.mu.
func (c *Controller) publishTurn(t Turn, status Status) {
	if c.broadcaster == nil {
		return
	}
	cp := t.clone()
	c.broadcaster.Publish(Event{Type: EventTurn, Turn: &cp, Status: status})
}

func (c *Controller) publishStatus(s Status) {
	if c.broadcaster == nil {
		return
	}
	c.broadcaster.Publish(Event{Type: EventStatus, Status: s})
}
