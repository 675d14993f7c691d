package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pms/internal/domain"
	"github.com/vladislavdragonenkov/pms/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pms/internal/metrics"
	"github.com/vladislavdragonenkov/pms/internal/service/ticket"
)

const (
	sagaEntry = "entry"
	sagaExit  = "exit"
)

// FeeConfig задаёт тариф парковки в минимальных единицах валюты.
type FeeConfig struct {
	HourlyRateMinor int64
	MinFeeMinor     int64
}

// DefaultFeeConfig возвращает тариф по умолчанию.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		HourlyRateMinor: 50,
		MinFeeMinor:     50,
	}
}

// Coordinator управляет сагами заезда и выезда.
//
// Заезд: allocate -> register_vehicle -> create_ticket; отказ любого шага
// после аллокации компенсируется освобождением места. Выезд:
// charge -> close -> release; провал платежа оставляет тикет ACTIVE,
// а release выполняется best-effort.
type Coordinator struct {
	parking  domain.ParkingRepository
	tickets  *ticket.Service
	vehicles domain.VehicleRegistry
	payments domain.PaymentGateway
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository

	vehicleGuard *Guard
	paymentGuard *Guard

	fees          FeeConfig
	logger        *log.Entry
	metrics       *metrics.SagaMetrics
	kafkaProducer *kafka.Producer
}

// Options — необязательные зависимости координатора.
type Options struct {
	Logger        *log.Entry
	Metrics       *metrics.SagaMetrics
	KafkaProducer *kafka.Producer
	GuardPolicy   GuardPolicy
	Fees          FeeConfig
}

// NewCoordinator создаёт координатор саг.
func NewCoordinator(
	parking domain.ParkingRepository,
	tickets *ticket.Service,
	vehicles domain.VehicleRegistry,
	payments domain.PaymentGateway,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	opts Options,
) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "saga")
	}

	policy := opts.GuardPolicy
	if policy.MaxAttempts == 0 {
		policy = DefaultGuardPolicy()
	}
	fees := opts.Fees
	if fees.HourlyRateMinor == 0 {
		fees = DefaultFeeConfig()
	}

	return &Coordinator{
		parking:       parking,
		tickets:       tickets,
		vehicles:      vehicles,
		payments:      payments,
		outbox:        outbox,
		timeline:      timeline,
		vehicleGuard:  NewGuard("vehicle-registry", policy, domain.ErrVehicleServiceUnavailable, logger),
		paymentGuard:  NewGuard("payment-gateway", policy, domain.ErrPaymentServiceUnavailable, logger),
		fees:          fees,
		logger:        logger,
		metrics:       opts.Metrics,
		kafkaProducer: opts.KafkaProducer,
	}
}

// Fees возвращает действующий тариф.
func (c *Coordinator) Fees() FeeConfig {
	return c.fees
}

// EnterRequest — запрос саги заезда.
type EnterRequest struct {
	UserID     string
	UserEmail  string
	Plate      string
	LevelID    string
	Vehicle    domain.VehicleInput
	Accessible bool
	EntryAt    time.Time
}

// Enter выполняет сагу заезда и возвращает открытый тикет.
// Повторный заезд той же машины идемпотентен: возвращается
// существующий тикет, а выделенное место освобождается.
func (c *Coordinator) Enter(ctx context.Context, req EnterRequest) (domain.Ticket, error) {
	start := time.Now()
	if c.metrics != nil {
		c.metrics.RecordSagaStarted(sagaEntry)
	}
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordSagaDuration(sagaEntry, time.Since(start))
			c.metrics.RecordSagaFinished()
		}
	}()

	if req.EntryAt.IsZero() {
		req.EntryAt = time.Now().UTC()
	}
	plate := domain.NormalizePlate(req.Plate)
	c.publishSagaEvent(kafka.EventTypeSagaStarted, sagaEntry, "", plate, map[string]interface{}{
		"level_id": req.LevelID,
	})

	spot, err := c.runStep(string(domain.SagaStepAllocate), func() (domain.Spot, error) {
		return c.parking.AllocateInLevel(req.LevelID, req.Accessible)
	})
	if err != nil {
		c.logger.WithError(err).WithField("level_id", req.LevelID).Warn("spot allocation failed")
		c.failSaga(sagaEntry, "", plate, err)
		return domain.Ticket{}, err
	}
	c.publishSagaEvent(kafka.EventTypeStepAllocated, sagaEntry, "", plate, map[string]interface{}{
		"spot_id":   spot.ID,
		"spot_code": spot.Code,
	})

	vehicle := req.Vehicle
	vehicle.Plate = plate
	stepStart := time.Now()
	if err := c.vehicleGuard.Do(ctx, "Upsert", func(ctx context.Context) error {
		_, upsertErr := c.vehicles.Upsert(ctx, vehicle)
		return upsertErr
	}); err != nil {
		c.recordStep(string(domain.SagaStepRegister), stepStart)
		c.logger.WithError(err).WithField("plate", plate).Warn("vehicle registration failed")
		c.compensateSpot(sagaEntry, spot.ID, plate)
		c.failSaga(sagaEntry, "", plate, err)
		return domain.Ticket{}, err
	}
	c.recordStep(string(domain.SagaStepRegister), stepStart)
	c.publishSagaEvent(kafka.EventTypeStepRegistered, sagaEntry, "", plate, nil)

	stepStart = time.Now()
	opened, fresh, err := c.tickets.Create(ticket.CreateRequest{
		UserID:    req.UserID,
		UserEmail: req.UserEmail,
		Plate:     plate,
		SpotID:    spot.ID,
		LevelID:   spot.LevelID,
		EntryAt:   req.EntryAt,
		// Место уже занято шагом allocate.
		OccupySpot: false,
	})
	c.recordStep(string(domain.SagaStepTicket), stepStart)
	if err != nil {
		c.logger.WithError(err).WithField("plate", plate).Warn("ticket creation failed")
		c.compensateSpot(sagaEntry, spot.ID, plate)
		c.failSaga(sagaEntry, "", plate, err)
		return domain.Ticket{}, err
	}
	if !fresh {
		// Машина уже на парковке: возвращаем существующий тикет
		// и отдаём свежевыделенное место обратно.
		c.releaseSpot(spot.ID)
		if c.metrics != nil {
			c.metrics.RecordSagaCompleted(sagaEntry)
		}
		return opened, nil
	}

	c.emitEvent(opened.ID, "TicketOpened", map[string]interface{}{
		"plate":    opened.Plate,
		"spot_id":  opened.SpotID,
		"level_id": opened.LevelID,
		"entry_at": opened.EntryAt.Format(time.RFC3339Nano),
	})
	c.publishSagaEvent(kafka.EventTypeSagaCompleted, sagaEntry, opened.ID, plate, map[string]interface{}{
		"spot_code": spot.Code,
	})
	if c.metrics != nil {
		c.metrics.RecordSagaCompleted(sagaEntry)
	}

	c.logger.WithFields(log.Fields{
		"ticket_id": opened.ID,
		"plate":     plate,
		"spot_code": spot.Code,
	}).Info("entry saga completed")

	return opened, nil
}

// ExitRequest — запрос саги выезда: по тикету или по номеру.
type ExitRequest struct {
	TicketID string
	Plate    string
	ExitAt   time.Time
}

// Exit выполняет сагу выезда: расчёт суммы, списание, закрытие тикета
// и освобождение места. Провал платежа оставляет тикет ACTIVE.
func (c *Coordinator) Exit(ctx context.Context, req ExitRequest) (domain.Ticket, error) {
	start := time.Now()
	if c.metrics != nil {
		c.metrics.RecordSagaStarted(sagaExit)
	}
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordSagaDuration(sagaExit, time.Since(start))
			c.metrics.RecordSagaFinished()
		}
	}()

	if req.ExitAt.IsZero() {
		req.ExitAt = time.Now().UTC()
	}

	current, err := c.resolveTicket(req)
	if err != nil {
		c.failSaga(sagaExit, req.TicketID, req.Plate, err)
		return domain.Ticket{}, err
	}
	if current.Closed() {
		c.failSaga(sagaExit, current.ID, current.Plate, domain.ErrTicketClosed)
		return domain.Ticket{}, domain.ErrTicketClosed
	}

	c.publishSagaEvent(kafka.EventTypeSagaStarted, sagaExit, current.ID, current.Plate, nil)

	fee := domain.Fee(current.EntryAt, req.ExitAt, c.fees.HourlyRateMinor, c.fees.MinFeeMinor)

	stepStart := time.Now()
	var receipt domain.PaymentReceipt
	err = c.paymentGuard.Do(ctx, "Charge", func(ctx context.Context) error {
		var chargeErr error
		receipt, chargeErr = c.payments.Charge(ctx, current.ID, fee)
		return chargeErr
	})
	c.recordStep(string(domain.SagaStepCharge), stepStart)
	if err != nil {
		c.logger.WithError(err).WithField("ticket_id", current.ID).Warn("charge failed, ticket stays active")
		c.failSaga(sagaExit, current.ID, current.Plate, err)
		return domain.Ticket{}, err
	}
	if receipt.Status != domain.PaymentStatusSuccess {
		declined := fmt.Errorf("%w: %s", domain.ErrPaymentFailed, receipt.Reason)
		c.logger.WithFields(log.Fields{
			"ticket_id": current.ID,
			"reason":    receipt.Reason,
		}).Warn("payment declined, ticket stays active")
		c.failSaga(sagaExit, current.ID, current.Plate, declined)
		return domain.Ticket{}, declined
	}
	c.publishSagaEvent(kafka.EventTypeStepCharged, sagaExit, current.ID, current.Plate, map[string]interface{}{
		"amount_minor": fee,
		"payment_ref":  receipt.PaymentRef,
	})

	closed, err := c.tickets.Close(current.ID, req.ExitAt, fee)
	if err != nil {
		if errors.Is(err, domain.ErrTicketClosed) {
			// Конкурентный выезд успел первым; платёж в mock-шлюзе
			// не возвращается, фиксируем уже закрытый тикет.
			if existing, getErr := c.tickets.Get(current.ID); getErr == nil {
				return existing, nil
			}
		}
		c.logger.WithError(err).WithField("ticket_id", current.ID).Error("close after successful charge failed")
		c.failSaga(sagaExit, current.ID, current.Plate, err)
		return domain.Ticket{}, err
	}

	// Best-effort: провал освобождения не откатывает закрытие.
	stepStart = time.Now()
	if _, err := c.parking.UpdateSpot(closed.SpotID, func(spot *domain.Spot) error {
		return spot.Release()
	}); err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"ticket_id": closed.ID,
			"spot_id":   closed.SpotID,
		}).Error("spot release failed after exit")
		if c.metrics != nil {
			c.metrics.RecordSpotReleaseFailure()
		}
	} else {
		c.publishSagaEvent(kafka.EventTypeStepReleased, sagaExit, closed.ID, closed.Plate, map[string]interface{}{
			"spot_id": closed.SpotID,
		})
	}
	c.recordStep(string(domain.SagaStepRelease), stepStart)

	c.emitEvent(closed.ID, "TicketClosed", map[string]interface{}{
		"plate":       closed.Plate,
		"spot_id":     closed.SpotID,
		"exit_at":     closed.ExitAt.Format(time.RFC3339Nano),
		"fee_minor":   closed.FeeMinor,
		"payment_ref": receipt.PaymentRef,
	})
	c.publishSagaEvent(kafka.EventTypeSagaCompleted, sagaExit, closed.ID, closed.Plate, map[string]interface{}{
		"fee_minor": closed.FeeMinor,
	})
	if c.metrics != nil {
		c.metrics.RecordSagaCompleted(sagaExit)
	}

	c.logger.WithFields(log.Fields{
		"ticket_id": closed.ID,
		"plate":     closed.Plate,
		"fee_minor": closed.FeeMinor,
	}).Info("exit saga completed")

	return closed, nil
}

func (c *Coordinator) resolveTicket(req ExitRequest) (domain.Ticket, error) {
	if req.TicketID != "" {
		return c.tickets.Get(req.TicketID)
	}
	if req.Plate != "" {
		return c.tickets.FindActiveByPlate(req.Plate)
	}
	return domain.Ticket{}, domain.ErrTicketNotFound
}

// runStep замеряет длительность шага allocate.
func (c *Coordinator) runStep(step string, fn func() (domain.Spot, error)) (domain.Spot, error) {
	start := time.Now()
	spot, err := fn()
	c.recordStep(step, start)
	return spot, err
}

func (c *Coordinator) recordStep(step string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordStepDuration(step, time.Since(start))
	}
}

// compensateSpot откатывает шаг allocate и фиксирует компенсацию саги.
func (c *Coordinator) compensateSpot(saga, spotID, plate string) {
	c.releaseSpot(spotID)
	if c.metrics != nil {
		c.metrics.RecordSagaCompensated(saga)
	}
	c.publishSagaEvent(kafka.EventTypeSagaCompensated, saga, "", plate, map[string]interface{}{
		"spot_id": spotID,
	})
}

func (c *Coordinator) releaseSpot(spotID string) {
	if _, err := c.parking.UpdateSpot(spotID, func(spot *domain.Spot) error {
		return spot.Release()
	}); err != nil {
		c.logger.WithError(err).WithField("spot_id", spotID).Warn("compensating spot release failed")
		if c.metrics != nil {
			c.metrics.RecordSpotReleaseFailure()
		}
	}
}

func (c *Coordinator) failSaga(saga, ticketID, plate string, rootErr error) {
	if c.metrics != nil {
		c.metrics.RecordSagaFailed(saga)
	}
	c.publishSagaEvent(kafka.EventTypeSagaFailed, saga, ticketID, plate, map[string]interface{}{
		"reason": rootErr.Error(),
	})
}

// emitEvent кладёт событие в transactional outbox и timeline тикета.
func (c *Coordinator) emitEvent(ticketID, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["ticket_id"] = ticketID
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"ticket_id": ticketID,
			"event":     eventType,
		}).Error("marshal event failed")
		return
	}

	if c.outbox != nil {
		msg := domain.OutboxMessage{
			AggregateType: "ticket",
			AggregateID:   ticketID,
			EventType:     eventType,
			Payload:       data,
		}
		if _, err := c.outbox.Enqueue(msg); err != nil {
			c.logger.WithError(err).WithFields(log.Fields{
				"ticket_id": ticketID,
				"event":     eventType,
			}).Error("enqueue event failed")
		} else if c.metrics != nil {
			c.metrics.RecordOutboxEvent()
		}
	}

	if c.timeline != nil {
		event := domain.TimelineEvent{
			TicketID: ticketID,
			Type:     eventType,
			Occurred: time.Now().UTC(),
		}
		if err := c.timeline.Append(event); err != nil {
			c.logger.WithError(err).WithFields(log.Fields{
				"ticket_id": ticketID,
				"event":     eventType,
			}).Warn("append timeline event failed")
		} else if c.metrics != nil {
			c.metrics.RecordTimelineEvent()
		}
	}
}

// publishSagaEvent публикует событие саги в Kafka, если producer настроен.
func (c *Coordinator) publishSagaEvent(eventType kafka.EventType, saga, ticketID, plate string, metadata map[string]interface{}) {
	if c.kafkaProducer == nil {
		return
	}

	key := ticketID
	if key == "" {
		key = plate
	}
	event := kafka.NewSagaEvent(eventType, saga, ticketID, plate, metadata)
	if err := c.kafkaProducer.PublishEvent(kafka.TopicSagaEvents, key, event); err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"ticket_id":  ticketID,
		}).Warn("failed to publish saga event to kafka")
	}
}
