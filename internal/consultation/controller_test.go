package consultation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-triage/internal/auth"
)

type stubTriage struct {
	mu      sync.Mutex
	calls   []string
	release chan struct{}
	result  *TriageResult
	err     error
	panics  bool
}

func (s *stubTriage) Submit(ctx context.Context, symptoms string) (*TriageResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, symptoms)
	release := s.release
	s.mu.Unlock()

	if release != nil {
		<-release
	}
	if s.panics {
		panic("boom")
	}
	return s.result, s.err
}

func (s *stubTriage) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type staticIdentity struct {
	id *auth.Identity
}

func (s staticIdentity) Identity() *auth.Identity { return s.id }

var patient = staticIdentity{id: &auth.Identity{PrincipalID: "patient-1", Name: "Alex"}}

func newTestController(t *testing.T, client TriageClient, identity IdentitySource) (*Controller, *Broadcaster) {
	t.Helper()
	log, err := NewLog()
	require.NoError(t, err)
	b := NewBroadcaster(zerolog.Nop())
	t.Cleanup(b.Close)
	return NewController("c-1", log, client, identity, b), b
}

func successResult() *TriageResult {
	return &TriageResult{
		SummaryForRescue: "Deep cut on the forearm with steady bleeding.",
		UrgencyScore:     8,
		MedicalFlags:     []string{"bleeding"},
		FirstAid:         []string{"Apply pressure", "Elevate limb"},
	}
}

func TestController_SuccessAppendsFormattedAssistantTurn(t *testing.T) {
	client := &stubTriage{result: successResult()}
	c, _ := newTestController(t, client, patient)

	require.True(t, c.Send(testContext(t), "I cut my arm"))
	c.Wait()

	turns := c.Log().Snapshot()
	require.Len(t, turns, 2)

	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "I cut my arm", turns[0].Content)
	assert.Nil(t, turns[0].UrgencyScore)

	reply := turns[1]
	assert.Equal(t, RoleAssistant, reply.Role)
	assert.Contains(t, reply.Content, "Deep cut on the forearm")
	assert.Contains(t, reply.Content, "• Apply pressure")
	assert.Contains(t, reply.Content, "• Elevate limb")
	assert.Contains(t, reply.Content, "Medical Flags: bleeding")
	require.NotNil(t, reply.UrgencyScore)
	assert.Equal(t, 8, *reply.UrgencyScore)
	assert.Equal(t, []string{"bleeding"}, reply.MedicalFlags)
	assert.Equal(t, []string{"Apply pressure", "Elevate limb"}, reply.FirstAid)

	assert.False(t, c.Log().IsPending())
	assert.Equal(t, StatusIdle, c.Status())
	assert.Equal(t, []string{"I cut my arm"}, client.calls)
}

func TestController_EmptyGuidanceUsesPlaceholderAndNoFlagsLine(t *testing.T) {
	client := &stubTriage{result: &TriageResult{
		SummaryForRescue: "Mild headache.",
		UrgencyScore:     2,
		MedicalFlags:     []string{},
		FirstAid:         []string{},
	}}
	c, _ := newTestController(t, client, patient)

	require.True(t, c.Send(testContext(t), "headache"))
	c.Wait()

	turns := c.Log().Snapshot()
	require.Len(t, turns, 2)
	assert.Contains(t, turns[1].Content, "no specific guidance")
	assert.NotContains(t, turns[1].Content, "Medical Flags")
}

func TestController_FailureAppendsFallbackWithoutUrgency(t *testing.T) {
	client := &stubTriage{err: errors.New("connection refused")}
	c, _ := newTestController(t, client, patient)

	require.True(t, c.Send(testContext(t), "chest pain"))
	c.Wait()

	turns := c.Log().Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, FallbackMessage, turns[1].Content)
	assert.Contains(t, turns[1].Content, "(999)")
	assert.Nil(t, turns[1].UrgencyScore)
	assert.Empty(t, turns[1].MedicalFlags)
	assert.Empty(t, turns[1].FirstAid)
	assert.False(t, c.Log().IsPending())
}

func TestController_PanickingClientIsTreatedAsFailure(t *testing.T) {
	client := &stubTriage{panics: true}
	c, _ := newTestController(t, client, patient)

	require.True(t, c.Send(testContext(t), "dizzy"))
	c.Wait()

	turns := c.Log().Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, FallbackMessage, turns[1].Content)
	assert.Equal(t, StatusIdle, c.Status())
}

func TestController_NilResultIsTreatedAsFailure(t *testing.T) {
	c, _ := newTestController(t, &stubTriage{}, patient)

	require.True(t, c.Send(testContext(t), "dizzy"))
	c.Wait()

	turns := c.Log().Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, FallbackMessage, turns[1].Content)
}

func TestController_SkipsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		identity IdentitySource
	}{
		{name: "empty", text: "", identity: patient},
		{name: "whitespace", text: "   \t\n", identity: patient},
		{name: "nil identity", text: "fever", identity: staticIdentity{}},
		{name: "no identity source", text: "fever", identity: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &stubTriage{result: successResult()}
			c, _ := newTestController(t, client, tt.identity)

			assert.False(t, c.Send(testContext(t), tt.text))
			c.Wait()

			assert.Zero(t, c.Log().Len())
			assert.False(t, c.Log().IsPending())
			assert.Zero(t, client.callCount())
		})
	}
}

func TestController_SendWhilePendingIsDropped(t *testing.T) {
	client := &stubTriage{result: successResult(), release: make(chan struct{})}
	c, _ := newTestController(t, client, patient)

	require.True(t, c.Send(testContext(t), "first"))
	// The user turn is visible before the call resolves.
	require.Equal(t, 1, c.Log().Len())
	assert.True(t, c.Log().IsPending())
	assert.Equal(t, StatusAwaitingResponse, c.Status())

	assert.False(t, c.Send(testContext(t), "second"))
	assert.False(t, c.Send(testContext(t), "third"))
	assert.Equal(t, 1, c.Log().Len())

	close(client.release)
	c.Wait()

	assert.Equal(t, 2, c.Log().Len())
	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, []string{"first"}, client.calls)
}

func TestController_AcceptsAgainAfterResolution(t *testing.T) {
	client := &stubTriage{err: errors.New("503")}
	c, _ := newTestController(t, client, patient)

	require.True(t, c.Send(testContext(t), "one"))
	c.Wait()

	client.err = nil
	client.result = successResult()
	require.True(t, c.Send(testContext(t), "two"))
	c.Wait()

	turns := c.Log().Snapshot()
	require.Len(t, turns, 4)
	assert.Equal(t, FallbackMessage, turns[1].Content)
	require.NotNil(t, turns[3].UrgencyScore)
}

func TestController_TurnsAlternateRoles(t *testing.T) {
	client := &stubTriage{result: successResult()}
	c, _ := newTestController(t, client, patient)

	inputs := []string{"a", "", "b", "   ", "c", "d"}
	for i, in := range inputs {
		if i == 3 {
			client.err = errors.New("down")
		}
		c.Send(testContext(t), in)
		c.Wait()
	}

	turns := c.Log().Snapshot()
	assert.Len(t, turns, 8)
	assert.Zero(t, len(turns)%2)
	for i, turn := range turns {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		assert.Equal(t, want, turn.Role, "turn %d", i)
	}

	seen := map[string]bool{}
	for _, turn := range turns {
		assert.False(t, seen[turn.ID], "duplicate id %s", turn.ID)
		seen[turn.ID] = true
	}
}

func TestController_CallIsNotCancelledWithSenderContext(t *testing.T) {
	client := &stubTriage{result: successResult(), release: make(chan struct{})}
	c, _ := newTestController(t, client, patient)

	ctx, cancel := context.WithCancel(testContext(t))
	require.True(t, c.Send(ctx, "burn on hand"))
	cancel()
	close(client.release)
	c.Wait()

	turns := c.Log().Snapshot()
	require.Len(t, turns, 2)
	require.NotNil(t, turns[1].UrgencyScore)
}

func TestController_ResultAfterCloseIsDiscarded(t *testing.T) {
	client := &stubTriage{result: successResult(), release: make(chan struct{})}
	c, _ := newTestController(t, client, patient)

	require.True(t, c.Send(testContext(t), "fell down stairs"))
	c.Close()
	close(client.release)
	c.Wait()

	assert.Equal(t, 1, c.Log().Len())
	assert.False(t, c.Log().IsPending())
	assert.False(t, c.Send(testContext(t), "still there?"))
}

func TestController_PublishesTurnsAndStatus(t *testing.T) {
	client := &stubTriage{result: successResult()}
	c, b := newTestController(t, client, patient)

	events, _ := b.Subscribe(testContext(t))

	require.True(t, c.Send(testContext(t), "sprained ankle"))
	c.Wait()

	var got []Event
	timeout := time.After(time.Second)
	for len(got) < 4 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events", len(got))
		}
	}

	assert.Equal(t, EventTurn, got[0].Type)
	assert.Equal(t, RoleUser, got[0].Turn.Role)
	assert.Equal(t, StatusAwaitingResponse, got[0].Status)
	assert.Equal(t, EventStatus, got[1].Type)
	assert.Equal(t, StatusAwaitingResponse, got[1].Status)
	assert.Equal(t, EventTurn, got[2].Type)
	assert.Equal(t, RoleAssistant, got[2].Turn.Role)
	assert.Equal(t, StatusIdle, got[2].Status)
	assert.Equal(t, EventStatus, got[3].Type)
	assert.Equal(t, StatusIdle, got[3].Status)
}

func TestController_UsesInjectedClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	log, err := NewLog()
	require.NoError(t, err)
	c := NewController("c-2", log, &stubTriage{result: successResult()}, patient, nil, WithClock(func() time.Time { return fixed }))

	require.True(t, c.Send(testContext(t), "rash"))
	c.Wait()

	for _, turn := range c.Log().Snapshot() {
		assert.Equal(t, fixed, turn.Timestamp)
	}
}

func TestController_ConcurrentSendsAcceptExactlyOne(t *testing.T) {
	client := &stubTriage{result: successResult(), release: make(chan struct{})}
	c, _ := newTestController(t, client, patient)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Send(testContext(t), "dizzy") {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(client.release)
	c.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, 2, c.Log().Len())
}

func TestController_SubscribersSeeTurnsInLogOrder(t *testing.T) {
	const sends = 10
	for iter := 0; iter < 200; iter++ {
		c, b := newTestController(t, &stubTriage{result: successResult()}, patient)
		events, _ := b.Subscribe(testContext(t))

		for accepted := 0; accepted < sends; {
			if c.Send(testContext(t), "cough") {
				accepted++
			}
		}
		c.Wait()

		var roles []Role
		timeout := time.After(time.Second)
		for len(roles) < 2*sends {
			select {
			case ev := <-events:
				if ev.Type == EventTurn {
					roles = append(roles, ev.Turn.Role)
				}
			case <-timeout:
				t.Fatalf("iteration %d: timed out after %d turn events", iter, len(roles))
			}
		}

		for i, role := range roles {
			want := RoleUser
			if i%2 == 1 {
				want = RoleAssistant
			}
			require.Equal(t, want, role, "iteration %d turn %d: %v", iter, i, roles)
		}
		b.Close()
	}
}

func TestController_CloseDuringSendAppendsNothing(t *testing.T) {
	log, err := NewLog()
	require.NoError(t, err)
	client := &stubTriage{result: successResult()}

	var c *Controller
	// The view is dismissed while the user turn is being built.
	closeOnStamp := func() time.Time {
		c.Close()
		return time.Now()
	}
	c = NewController("c-3", log, client, patient, nil, WithClock(closeOnStamp))

	assert.False(t, c.Send(testContext(t), "bleeding gums"))
	c.Wait()
	assert.Zero(t, c.Log().Len())
	assert.False(t, c.Log().IsPending())
	assert.Zero(t, client.callCount())
}
