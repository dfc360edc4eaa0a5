package agent

import (
	"fmt"
	"time"
)

// NoticeLevel classifies user-visible notifications
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a one-shot user-visible notification produced by an event
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Reduce applies one domain event to the local state and returns the next
// state plus an optional notification. It is pure: no clocks beyond the
// event payloads (except defaulting a break start), no I/O, no callbacks.
// Duplicate or out-of-order events only touch fields that are idempotent to
// re-apply, so a stray event after the state moved on is harmless.
func Reduce(state LocalState, ev Event) (LocalState, *Notice) {
	switch e := ev.(type) {
	case CallIncoming:
		call := e.Call
		state.CurrentCall = &call
		state.OnCall = true
		state.Status = StatusOnCall
		state.BreakReason = ""
		state.BreakStartedAt = nil
		return state, nil

	case CallConnected:
		if state.CurrentCall != nil {
			merged := mergeCall(*state.CurrentCall, e.Call)
			state.CurrentCall = &merged
		} else {
			call := e.Call
			applyCallDefaults(&call)
			state.CurrentCall = &call
		}
		state.OnCall = true
		state.Status = StatusOnCall
		return state, nil

	case CallEnded:
		state.OnCall = false
		if state.Status == StatusOnCall {
			// Optimistic: the authoritative status arrives via sync later
			state.Status = StatusAvailable
		}
		if state.CurrentCall != nil && e.DurationSeconds > 0 {
			call := *state.CurrentCall
			call.DurationSeconds = e.DurationSeconds
			state.CurrentCall = &call
		}
		// CurrentCall stays for the after-call wrap display; the UI clears
		// it explicitly via ClearSession.
		return state, nil

	case CommitmentCreated:
		if state.CurrentCall != nil && state.CurrentCall.ContactID == e.ContactID {
			call := *state.CurrentCall
			commitment := e.Commitment
			call.Commitment = &commitment
			state.CurrentCall = &call
		}
		return state, nil

	case StatusSync:
		return applyAuthoritative(state, e.Status, e.BreakReason, e.BreakStartedAt, e.CurrentContact), nil

	case StatusForced:
		state = applyAuthoritative(state, e.Status, e.BreakReason, e.BreakStartedAt, e.CurrentContact)
		if e.Status == StatusOffline {
			state.CurrentCall = nil
			state.OnCall = false
		}
		if e.ForcedBy == "" {
			return state, nil
		}
		return state, forcedNotice(e.Status, e.BreakReason)
	}
	return state, nil
}

// applyAuthoritative replaces the status and break fields with a
// server-confirmed snapshot. Server state always wins over locally inferred
// state.
func applyAuthoritative(state LocalState, status Status, breakReason string, breakStartedAt *time.Time, contact *CallContext) LocalState {
	state.Status = status

	if status == StatusOnBreak {
		state.BreakReason = breakReason
		if breakStartedAt != nil {
			state.BreakStartedAt = breakStartedAt
		} else if state.BreakStartedAt == nil {
			now := time.Now()
			state.BreakStartedAt = &now
		}
	} else {
		state.BreakReason = ""
		state.BreakStartedAt = nil
	}

	if status == StatusOnCall && contact != nil {
		call := *contact
		state.CurrentCall = &call
		state.OnCall = true
	} else if status != StatusOnCall && contact == nil {
		state.OnCall = false
	}
	return state
}

func forcedNotice(status Status, reason string) *Notice {
	switch status {
	case StatusAvailable:
		return &Notice{Level: NoticeInfo, Message: "A supervisor set your status to available"}
	case StatusOnBreak:
		msg := "A supervisor placed you on break"
		if reason != "" {
			msg = fmt.Sprintf("A supervisor placed you on break: %s", reason)
		}
		return &Notice{Level: NoticeWarning, Message: msg}
	case StatusOffline:
		return &Notice{Level: NoticeWarning, Message: "A supervisor signed you off"}
	default:
		return &Notice{Level: NoticeInfo, Message: fmt.Sprintf("A supervisor changed your status to %s", status)}
	}
}
