package agent

import (
	"encoding/json"
	"strings"
	"time"
)

// The IVR backend grew several generations of payload shapes: newer events
// carry camelCase contact fields, older ones the original Spanish names.
// Normalization unifies them with a fixed precedence per field so the rest
// of the engine only ever sees the canonical CallContext.

type rawCallPayload struct {
	ContactID  string `json:"contactId"`
	ContactID2 string `json:"contact_id"`
	ID         string `json:"id"`

	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
	Nombre      string `json:"nombre"`

	IdentificationNumber string `json:"identificationNumber"`
	Cedula               string `json:"cedula"`

	PhoneNumber string `json:"phoneNumber"`
	Phone       string `json:"phone"`
	Telefono    string `json:"telefono"`

	CampaignID  string `json:"campaignId"`
	CampaignID2 string `json:"campaign_id"`

	CampaignName string `json:"campaignName"`
	Campania     string `json:"campania"`

	ConnectedAt *time.Time `json:"connectedAt"`
	Timestamp   *time.Time `json:"timestamp"`
}

// normalizeCall maps a heterogeneous call payload onto the canonical shape.
// Fields absent from the payload stay zero; callers that need the full
// shape apply defaults afterwards.
func normalizeCall(data json.RawMessage) CallContext {
	var raw rawCallPayload
	if len(data) > 0 {
		// Malformed payloads degrade to defaults, they never fail
		_ = json.Unmarshal(data, &raw)
	}

	call := CallContext{
		ContactID:            firstNonEmpty(raw.ContactID, raw.ContactID2, raw.ID),
		DisplayName:          firstNonEmpty(raw.DisplayName, raw.Name, raw.Nombre),
		IdentificationNumber: firstNonEmpty(raw.IdentificationNumber, raw.Cedula),
		PhoneNumber:          firstNonEmpty(raw.PhoneNumber, raw.Phone, raw.Telefono),
		CampaignID:           firstNonEmpty(raw.CampaignID, raw.CampaignID2),
		CampaignName:         firstNonEmpty(raw.CampaignName, raw.Campania),
	}
	if raw.ConnectedAt != nil {
		call.ConnectedAt = *raw.ConnectedAt
	} else if raw.Timestamp != nil {
		call.ConnectedAt = *raw.Timestamp
	}
	return call
}

// applyCallDefaults fills the fixed fallbacks so every field is populated
func applyCallDefaults(call *CallContext) {
	if call.DisplayName == "" {
		call.DisplayName = "Unknown"
	}
	if call.ConnectedAt.IsZero() {
		call.ConnectedAt = time.Now()
	}
}

// mergeCall overlays the non-zero fields of an update onto an existing call
// context, keeping everything the update does not mention.
func mergeCall(existing CallContext, update CallContext) CallContext {
	out := existing
	if update.ContactID != "" {
		out.ContactID = update.ContactID
	}
	if update.DisplayName != "" {
		out.DisplayName = update.DisplayName
	}
	if update.IdentificationNumber != "" {
		out.IdentificationNumber = update.IdentificationNumber
	}
	if update.PhoneNumber != "" {
		out.PhoneNumber = update.PhoneNumber
	}
	if update.CampaignID != "" {
		out.CampaignID = update.CampaignID
	}
	if update.CampaignName != "" {
		out.CampaignName = update.CampaignName
	}
	if !update.ConnectedAt.IsZero() {
		out.ConnectedAt = update.ConnectedAt
	}
	return out
}

func normalizeDuration(data json.RawMessage) int64 {
	var raw struct {
		Duration        *float64 `json:"duration"`
		DurationSeconds *float64 `json:"durationSeconds"`
		Duracion        *float64 `json:"duracion"`
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &raw)
	}
	for _, v := range []*float64{raw.Duration, raw.DurationSeconds, raw.Duracion} {
		if v != nil {
			return int64(*v)
		}
	}
	return 0
}

func normalizeCommitment(data json.RawMessage) (string, Commitment) {
	var raw struct {
		ContactID  string     `json:"contactId"`
		ContactID2 string     `json:"contact_id"`
		Amount     float64    `json:"amount"`
		Monto      float64    `json:"monto"`
		Date       string     `json:"date"`
		Fecha      string     `json:"fecha"`
		Notes      string     `json:"notes"`
		CreatedAt  *time.Time `json:"createdAt"`
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &raw)
	}

	contactID := firstNonEmpty(raw.ContactID, raw.ContactID2)
	c := Commitment{
		ContactID: contactID,
		Amount:    raw.Amount,
		Date:      firstNonEmpty(raw.Date, raw.Fecha),
		Notes:     raw.Notes,
		CreatedAt: time.Now(),
	}
	if c.Amount == 0 {
		c.Amount = raw.Monto
	}
	if raw.CreatedAt != nil {
		c.CreatedAt = *raw.CreatedAt
	}
	return contactID, c
}

type statusPayload struct {
	status         Status
	breakReason    string
	breakStartedAt *time.Time
	currentContact *CallContext
	forcedBy       string
}

func normalizeStatusPayload(data json.RawMessage) statusPayload {
	var raw struct {
		Status         string          `json:"status"`
		Estado         string          `json:"estado"`
		BreakReason    string          `json:"breakReason"`
		Motivo         string          `json:"motivo"`
		BreakStartedAt *time.Time      `json:"breakStartedAt"`
		CurrentContact json.RawMessage `json:"currentContact"`
		Contact        json.RawMessage `json:"contact"`
		ForcedBy       string          `json:"forcedBy"`
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &raw)
	}

	out := statusPayload{
		status:         NormalizeStatus(firstNonEmpty(raw.Status, raw.Estado)),
		breakReason:    firstNonEmpty(raw.BreakReason, raw.Motivo),
		breakStartedAt: raw.BreakStartedAt,
		forcedBy:       raw.ForcedBy,
	}

	contactData := raw.CurrentContact
	if len(contactData) == 0 {
		contactData = raw.Contact
	}
	if len(contactData) > 0 && string(contactData) != "null" {
		call := normalizeCall(contactData)
		applyCallDefaults(&call)
		out.currentContact = &call
	}
	return out
}

// NormalizeStatus maps the status vocabulary of every backend generation
// onto the canonical set. Unrecognized values degrade to OFFLINE.
func NormalizeStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AVAILABLE", "DISPONIBLE":
		return StatusAvailable
	case "ON_CALL", "ONCALL", "EN_LLAMADA":
		return StatusOnCall
	case "ON_BREAK", "BREAK", "EN_PAUSA", "PAUSA":
		return StatusOnBreak
	default:
		return StatusOffline
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
