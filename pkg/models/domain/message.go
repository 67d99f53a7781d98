package domain

import "time"

type MessageKind string

const (
	KindScheduledReport   MessageKind = "scheduled_report"
	KindDashboardInstance MessageKind = "dashboard_instance"
)

// TrackedMessage is one entry in the channel lifecycle ledger.
type TrackedMessage struct {
	MessageID string
	ChannelID string
	PostedAt  time.Time
	Kind      MessageKind
}
