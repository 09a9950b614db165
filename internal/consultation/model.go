package consultation

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the controller state observed by renderers.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusAwaitingResponse Status = "awaiting_response"
)

// Turn is one message in a consultation. It is never modified after it has
// been appended; readers always receive copies.
type Turn struct {
	ID           string    `json:"id"`
	Role         Role      `json:"role"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	UrgencyScore *int      `json:"urgency_score,omitempty"` // 0-10, successful assistant turns only
	MedicalFlags []string  `json:"medical_flags,omitempty"`
	FirstAid     []string  `json:"first_aid,omitempty"`
}

func (t Turn) clone() Turn {
	c := t
	if t.UrgencyScore != nil {
		score := *t.UrgencyScore
		c.UrgencyScore = &score
	}
	if t.MedicalFlags != nil {
		c.MedicalFlags = append([]string{}, t.MedicalFlags...)
	}
	if t.FirstAid != nil {
		c.FirstAid = append([]string{}, t.FirstAid...)
	}
	return c
}

func (t Turn) valid() bool {
	if t.ID == "" || t.Timestamp.IsZero() {
		return false
	}
	return t.Role == RoleUser || t.Role == RoleAssistant
}

// TriageResult is the response of the external triage service.
type TriageResult struct {
	SummaryForRescue string   `json:"summary_for_rescue_en"`
	UrgencyScore     int      `json:"urgency_score"`
	MedicalFlags     []string `json:"medical_flags"`
	FirstAid         []string `json:"first_aid"`
}

// EventType identifies what changed in a consultation.
type EventType string

const (
	EventTurn   EventType = "turn"
	EventStatus EventType = "status"
)

// Event is delivered to subscribers whenever a turn is appended or the
// controller changes state.
type Event struct {
	Type   EventType `json:"type"`
	Turn   *Turn     `json:"turn,omitempty"`
	Status Status    `json:"status"`
}
