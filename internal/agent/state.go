package agent

import "time"

// Status is the agent's availability state as shown in the panel
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusOnCall    Status = "ON_CALL"
	StatusOnBreak   Status = "ON_BREAK"
	StatusOffline   Status = "OFFLINE"
)

// Commitment is a payment promise recorded during or after a call
type Commitment struct {
	ContactID string    `json:"contactId"`
	Amount    float64   `json:"amount"`
	Date      string    `json:"date"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
}

// CallContext describes the call the agent is currently handling, including
// the after-call wrap interval. Every field is always populated; payload
// normalization guarantees downstream rendering never needs nil checks.
type CallContext struct {
	ContactID            string      `json:"contactId"`
	DisplayName          string      `json:"displayName"`
	IdentificationNumber string      `json:"identificationNumber"`
	PhoneNumber          string      `json:"phoneNumber"`
	CampaignID           string      `json:"campaignId"`
	CampaignName         string      `json:"campaignName"`
	ConnectedAt          time.Time   `json:"connectedAt"`
	DurationSeconds      int64       `json:"durationSeconds,omitempty"`
	Commitment           *Commitment `json:"commitment,omitempty"`
}

// LocalState is the panel's view of its own agent. It is seeded from a REST
// snapshot at mount and afterwards mutated only by domain events and the
// explicit break/session actions.
type LocalState struct {
	Status         Status       `json:"status"`
	BreakReason    string       `json:"breakReason,omitempty"`
	BreakStartedAt *time.Time   `json:"breakStartedAt,omitempty"`
	CurrentCall    *CallContext `json:"currentCall,omitempty"`
	// OnCall mirrors CurrentCall presence for one event-processing step at
	// most; the UI renders this flag, not CurrentCall directly, so the
	// after-call wrap interval can keep the retiring call visible.
	OnCall bool `json:"onCall"`
}

// clone returns a deep copy so callers never hold references into the
// engine's mutable state.
func (s LocalState) clone() LocalState {
	out := s
	if s.BreakStartedAt != nil {
		t := *s.BreakStartedAt
		out.BreakStartedAt = &t
	}
	if s.CurrentCall != nil {
		call := *s.CurrentCall
		if s.CurrentCall.Commitment != nil {
			c := *s.CurrentCall.Commitment
			call.Commitment = &c
		}
		out.CurrentCall = &call
	}
	return out
}
