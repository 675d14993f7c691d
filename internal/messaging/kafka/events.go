package kafka

import "time"

// EventType определяет тип события.
type EventType string

const (
	// События саг заезда и выезда.
	EventTypeSagaStarted     EventType = "saga.started"
	EventTypeSagaCompleted   EventType = "saga.completed"
	EventTypeSagaFailed      EventType = "saga.failed"
	EventTypeSagaCompensated EventType = "saga.compensated"

	// События парковочных сессий.
	EventTypeTicketOpened EventType = "ticket.opened"
	EventTypeTicketClosed EventType = "ticket.closed"

	// События шагов саги.
	EventTypeStepAllocated  EventType = "step.spot_allocated"
	EventTypeStepRegistered EventType = "step.vehicle_registered"
	EventTypeStepCharged    EventType = "step.payment_charged"
	EventTypeStepReleased   EventType = "step.spot_released"
)

// Topics для Kafka.
const (
	TopicSagaEvents      = "pms.saga.events"
	TopicTicketEvents    = "pms.ticket.events"
	TopicDeadLetterQueue = "pms.dlq"
)

// SagaEvent — событие саги заезда или выезда.
type SagaEvent struct {
	EventType EventType              `json:"event_type"`
	Saga      string                 `json:"saga"`
	TicketID  string                 `json:"ticket_id,omitempty"`
	Plate     string                 `json:"plate"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewSagaEvent создаёт событие саги.
func NewSagaEvent(eventType EventType, saga, ticketID, plate string, metadata map[string]interface{}) *SagaEvent {
	return &SagaEvent{
		EventType: eventType,
		Saga:      saga,
		TicketID:  ticketID,
		Plate:     plate,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}
