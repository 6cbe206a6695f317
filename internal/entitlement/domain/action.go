package domain

import "time"

type ActionType string

const (
	ActionGrantAccess        ActionType = "grant_access"
	ActionRevokeAccess       ActionType = "revoke_access"
	ActionNotifyPastDue      ActionType = "notify_past_due"
	ActionClearPastDueNotice ActionType = "clear_past_due_notice"
)

// Action is a side effect produced by an accepted transition.
type Action struct {
	Type             ActionType        `json:"type"`
	Pair             Pair              `json:"pair"`
	SourceVersion    int64             `json:"source_version"`
	ProviderEventID  string            `json:"provider_event_id"`
	EventKind        string            `json:"event_kind"`
	OccurredAt       time.Time         `json:"occurred_at"`
	AmountMinorUnits int64             `json:"amount_minor_units,omitempty"`
	Currency         string            `json:"currency,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// DedupeKey identifies the action across redeliveries and sweep retries.
func (a Action) DedupeKey() string {
	return a.ProviderEventID + ":" + string(a.Type)
}
