package agent

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire names of the domain events consumed from the transport
const (
	EventCallIncoming      = "agent-call-incoming"
	EventCallConnected     = "agent-call-connected"
	EventCallEnded         = "agent-call-ended"
	EventCommitmentCreated = "commitment-created"
	EventStatusSync        = "agent-status-sync"
	EventStatusForced      = "agent-status-forced"
)

// DomainEvents lists every wire event the engine consumes
var DomainEvents = []string{
	EventCallIncoming,
	EventCallConnected,
	EventCallEnded,
	EventCommitmentCreated,
	EventStatusSync,
	EventStatusForced,
}

// Event is the closed set of domain events the reducer understands. Payloads
// are already normalized; downstream code never touches wire field names.
type Event interface {
	isEvent()
}

// CallIncoming announces a customer call routed to this agent
type CallIncoming struct {
	Call CallContext
}

// CallConnected announces the bridge between customer and agent line. The
// payload may carry only a subset of call fields and is merged into any
// already-known call context.
type CallConnected struct {
	Call CallContext
}

// CallEnded announces the end of the active call. Duration is zero when the
// server did not report one.
type CallEnded struct {
	DurationSeconds int64
}

// CommitmentCreated announces a payment promise registered for a contact
type CommitmentCreated struct {
	ContactID  string
	Commitment Commitment
}

// StatusSync is the server-confirmed authoritative status snapshot
type StatusSync struct {
	Status         Status
	BreakReason    string
	BreakStartedAt *time.Time
	CurrentContact *CallContext
}

// StatusForced is a supervisor override of the agent's status
type StatusForced struct {
	Status         Status
	BreakReason    string
	BreakStartedAt *time.Time
	CurrentContact *CallContext
	ForcedBy       string
}

func (CallIncoming) isEvent()      {}
func (CallConnected) isEvent()     {}
func (CallEnded) isEvent()         {}
func (CommitmentCreated) isEvent() {}
func (StatusSync) isEvent()        {}
func (StatusForced) isEvent()      {}

// DecodeEvent turns a wire event into its typed form. Unknown names return
// an error; malformed payloads fall back to normalized defaults rather than
// failing, so a partial event still advances state.
func DecodeEvent(name string, data json.RawMessage) (Event, error) {
	switch name {
	case EventCallIncoming:
		call := normalizeCall(data)
		applyCallDefaults(&call)
		return CallIncoming{Call: call}, nil

	case EventCallConnected:
		// Defaults are not applied here: absent fields must not clobber
		// values learned from the incoming-call event during the merge.
		return CallConnected{Call: normalizeCall(data)}, nil

	case EventCallEnded:
		return CallEnded{DurationSeconds: normalizeDuration(data)}, nil

	case EventCommitmentCreated:
		contactID, commitment := normalizeCommitment(data)
		return CommitmentCreated{ContactID: contactID, Commitment: commitment}, nil

	case EventStatusSync:
		st := normalizeStatusPayload(data)
		return StatusSync{
			Status:         st.status,
			BreakReason:    st.breakReason,
			BreakStartedAt: st.breakStartedAt,
			CurrentContact: st.currentContact,
		}, nil

	case EventStatusForced:
		st := normalizeStatusPayload(data)
		return StatusForced{
			Status:         st.status,
			BreakReason:    st.breakReason,
			BreakStartedAt: st.breakStartedAt,
			CurrentContact: st.currentContact,
			ForcedBy:       st.forcedBy,
		}, nil
	}
	return nil, fmt.Errorf("unknown domain event %q", name)
}
