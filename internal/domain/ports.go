package domain

import (
	"context"
	"time"
)

// VehicleRegistry описывает взаимодействие с реестром транспортных средств.
type VehicleRegistry interface {
	// Upsert регистрирует транспорт или обновляет запись; идемпотентен по номеру.
	Upsert(ctx context.Context, input VehicleInput) (Vehicle, error)
	// FindByPlate возвращает запись по номерному знаку.
	FindByPlate(ctx context.Context, plate string) (Vehicle, error)
}

// PaymentStatus описывает исход платежа.
type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// PaymentReceipt — результат обращения к платёжному шлюзу.
type PaymentReceipt struct {
	Status     PaymentStatus
	PaymentRef string
	Reason     string
}

// PaymentGateway описывает платёжного коллаборатора.
// Успешный платёж никогда не повторяется; сумма — в минимальных единицах валюты.
type PaymentGateway interface {
	Charge(ctx context.Context, ticketID string, amountMinor int64) (PaymentReceipt, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла тикетов и саг.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(ticketID string) ([]TimelineEvent, error)
}

// SagaStep задаёт константы шагов для метрик и логов.
type SagaStep string

const (
	SagaStepAllocate SagaStep = "allocate"
	SagaStepRegister SagaStep = "register_vehicle"
	SagaStepTicket   SagaStep = "create_ticket"
	SagaStepCharge   SagaStep = "charge"
	SagaStepRelease  SagaStep = "release"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// TimelineEvent описывает событие в жизненном цикле парковочной сессии.
type TimelineEvent struct {
	TicketID string
	Type     string
	Reason   string
	Occurred time.Time
}
