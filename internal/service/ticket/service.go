package ticket

import (
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

// Service управляет парковочными сессиями. Create — общий примитив
// открытия сессии для walk-up заезда и заезда по брони.
type Service struct {
	tickets      domain.TicketRepository
	reservations domain.ReservationRepository
	parking      domain.ParkingRepository
	logger       *log.Entry
}

// NewService создаёт сервис тикетов.
func NewService(
	tickets domain.TicketRepository,
	reservations domain.ReservationRepository,
	parking domain.ParkingRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "ticket")
	}
	return &Service{
		tickets:      tickets,
		reservations: reservations,
		parking:      parking,
		logger:       logger,
	}
}

// CreateRequest — запрос на открытие парковочной сессии.
type CreateRequest struct {
	UserID    string
	UserEmail string
	Plate     string
	SpotID    string
	LevelID   string
	EntryAt   time.Time

	// OccupySpot — занять место через реестр мест. Сага заезда
	// выделяет место заранее и передаёт false; заезд по брони — true.
	OccupySpot bool
	// AllowReservationID — бронь, которой разрешено удерживать место:
	// собственная бронь заезжающего не блокирует его же заезд.
	AllowReservationID string
}

// Create открывает сессию. Идемпотичен по номеру: существующий ACTIVE
// тикет возвращается как есть со вторым результатом false.
func (s *Service) Create(req CreateRequest) (domain.Ticket, bool, error) {
	if req.EntryAt.IsZero() {
		req.EntryAt = time.Now().UTC()
	}

	ticket := domain.Ticket{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		UserEmail: req.UserEmail,
		Plate:     domain.NormalizePlate(req.Plate),
		SpotID:    req.SpotID,
		LevelID:   req.LevelID,
		EntryAt:   req.EntryAt,
		Status:    domain.TicketStatusActive,
	}
	if errs := ticket.Validate(); len(errs) > 0 {
		return domain.Ticket{}, false, errs[0]
	}

	if existing, err := s.tickets.FindActiveByPlate(ticket.Plate); err == nil {
		s.logger.WithFields(log.Fields{
			"plate":     ticket.Plate,
			"ticket_id": existing.ID,
		}).Info("active ticket already exists for plate")
		return existing, false, nil
	} else if !errors.Is(err, domain.ErrTicketNotFound) {
		return domain.Ticket{}, false, err
	}

	if err := s.checkBlockingReservation(req); err != nil {
		return domain.Ticket{}, false, err
	}

	if req.OccupySpot {
		if _, err := s.parking.UpdateSpot(req.SpotID, func(spot *domain.Spot) error {
			return spot.Occupy()
		}); err != nil {
			return domain.Ticket{}, false, err
		}
	}

	if err := s.tickets.Create(ticket); err != nil {
		if req.OccupySpot {
			s.releaseSpot(req.SpotID)
		}
		// Гонка на уникальном индексе: параллельный заезд успел первым.
		if errors.Is(err, domain.ErrActiveTicketExists) {
			if existing, findErr := s.tickets.FindActiveByPlate(ticket.Plate); findErr == nil {
				return existing, false, nil
			}
		}
		return domain.Ticket{}, false, err
	}

	s.logger.WithFields(log.Fields{
		"ticket_id": ticket.ID,
		"plate":     ticket.Plate,
		"spot_id":   ticket.SpotID,
	}).Info("parking session opened")

	return ticket, true, nil
}

// Close атомарно закрывает сессию: время выезда, сумма и статус вместе.
func (s *Service) Close(id string, exitAt time.Time, feeMinor int64) (domain.Ticket, error) {
	return s.tickets.Close(id, exitAt, feeMinor)
}

// Get возвращает тикет по идентификатору.
func (s *Service) Get(id string) (domain.Ticket, error) {
	return s.tickets.Get(id)
}

// FindActiveByPlate возвращает открытую сессию по номеру.
func (s *Service) FindActiveByPlate(plate string) (domain.Ticket, error) {
	return s.tickets.FindActiveByPlate(plate)
}

// ListByUser возвращает тикеты пользователя.
func (s *Service) ListByUser(userEmail string) ([]domain.Ticket, error) {
	return s.tickets.ListByUser(userEmail)
}

// ListActive возвращает открытые сессии.
func (s *Service) ListActive() ([]domain.Ticket, error) {
	return s.tickets.ListActive()
}

// ListAll возвращает все сессии.
func (s *Service) ListAll() ([]domain.Ticket, error) {
	return s.tickets.ListAll()
}

// Stats возвращает сводку по сессиям.
func (s *Service) Stats() (domain.TicketStats, error) {
	return s.tickets.Stats()
}

func (s *Service) checkBlockingReservation(req CreateRequest) error {
	blocking, err := s.reservations.FindBlocking(req.SpotID, req.EntryAt)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			return nil
		}
		return err
	}
	if blocking.ID == req.AllowReservationID {
		return nil
	}
	return domain.ErrSpotReservedByOther
}

func (s *Service) releaseSpot(spotID string) {
	if _, err := s.parking.UpdateSpot(spotID, func(spot *domain.Spot) error {
		return spot.Release()
	}); err != nil {
		s.logger.WithError(err).WithField("spot_id", spotID).Warn("compensating spot release failed")
	}
}
