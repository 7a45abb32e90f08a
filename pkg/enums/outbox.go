package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateSubscription OutboxAggregateType = "subscription"
	AggregateFile         OutboxAggregateType = "file"
	AggregateUser         OutboxAggregateType = "user"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateSubscription,
	AggregateFile,
	AggregateUser,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventSubscriptionActivated OutboxEventType = "subscription_activated"
	EventSubscriptionCancelled OutboxEventType = "subscription_cancelled"
	EventSubscriptionExpired   OutboxEventType = "subscription_expired"
	EventFileIngested          OutboxEventType = "file_ingested"
	EventFileIngestFailed      OutboxEventType = "file_ingest_failed"
	EventUserRegistered        OutboxEventType = "user_registered"
)

var validOutboxEventTypes = []OutboxEventType{
	EventSubscriptionActivated,
	EventSubscriptionCancelled,
	EventSubscriptionExpired,
	EventFileIngested,
	EventFileIngestFailed,
	EventUserRegistered,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
