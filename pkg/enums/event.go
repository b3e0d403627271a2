package enums

import "fmt"

// EventType maps to the set of payment provider event types we accept.
type EventType string

const (
	EventOrderPending EventType = "order.pending"
	EventOrderFailed  EventType = "order.failed"
	EventOrderPaid    EventType = "order.paid"
)

var validEventTypes = []EventType{
	EventOrderPending,
	EventOrderFailed,
	EventOrderPaid,
}

// IsValid reports whether the value matches a supported provider event type.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// WebhookStatus tracks an event through the claim lifecycle.
type WebhookStatus string

const (
	WebhookProcessing WebhookStatus = "PROCESSING"
	WebhookFailed     WebhookStatus = "FAILED"
	WebhookCompleted  WebhookStatus = "COMPLETED"
)

var validWebhookStatuses = []WebhookStatus{
	WebhookProcessing,
	WebhookFailed,
	WebhookCompleted,
}

// IsValid reports whether the value matches the canonical webhook status enum.
func (s WebhookStatus) IsValid() bool {
	for _, candidate := range validWebhookStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
