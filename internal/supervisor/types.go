package supervisor

import "time"

// Wire names of the supervisor push events
const (
	EventAgentsUpdate = "agents-state-update"
	EventQueueUpdate  = "queue-state-update"
)

// Agent is the server's read-only projection of one agent for the control
// desk. The client never computes these values, it only displays them.
type Agent struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Extension      string     `json:"extension"`
	Status         string     `json:"status"`
	StatusSince    time.Time  `json:"statusSince"`
	BreakReason    string     `json:"breakReason,omitempty"`
	CampaignName   string     `json:"campaignName,omitempty"`
	CurrentContact string     `json:"currentContact,omitempty"`
	CallStartedAt  *time.Time `json:"callStartedAt,omitempty"`
}

// QueueEntry is the server's projection of one waiting call
type QueueEntry struct {
	CallID         string    `json:"callId"`
	PhoneNumber    string    `json:"phoneNumber"`
	CampaignName   string    `json:"campaignName"`
	Position       int       `json:"position"`
	WaitingSeconds int       `json:"waitingSeconds"`
	EnqueuedAt     time.Time `json:"enqueuedAt"`
}
