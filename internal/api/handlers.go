package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pms/internal/domain"
	"github.com/vladislavdragonenkov/pms/internal/service/parking"
	"github.com/vladislavdragonenkov/pms/internal/service/reservation"
	"github.com/vladislavdragonenkov/pms/internal/service/saga"
	"github.com/vladislavdragonenkov/pms/internal/service/ticket"
)

// Стабильные машинные коды ошибок API.
const (
	codeInvalidRequest = "invalid_request"
	codeNotFound       = "not_found"
	codeConflict       = "conflict"
	codePaymentFailed  = "payment_failed"
	codeTryAgainLater  = "try_again_later"
	codeInternal       = "internal"
)

// Handler держит зависимости HTTP-обработчиков.
type Handler struct {
	parking      *parking.Service
	tickets      *ticket.Service
	reservations *reservation.Ledger
	sagas        *saga.Coordinator
	logger       *log.Entry
}

// NewHandler создаёт обработчик поверх сервисного слоя.
func NewHandler(
	parkingSvc *parking.Service,
	ticketSvc *ticket.Service,
	ledger *reservation.Ledger,
	coordinator *saga.Coordinator,
	logger *log.Entry,
) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "api")
	}
	return &Handler{
		parking:      parkingSvc,
		tickets:      ticketSvc,
		reservations: ledger,
		sagas:        coordinator,
		logger:       logger,
	}
}

// CreateLevel создаёт уровень вместе с местами.
func (h *Handler) CreateLevel(w http.ResponseWriter, r *http.Request) {
	var req createLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	level, spots, err := h.parking.CreateLevel(parking.CreateLevelInput{
		Label:            req.Label,
		TotalSpots:       req.TotalSpots,
		CarSpots:         req.CarSpots,
		BikeSpots:        req.BikeSpots,
		EVSpots:          req.EVSpots,
		HandicappedSpots: req.HandicappedSpots,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, createLevelResponse{
		Level: toLevelResponse(level),
		Spots: toSpotResponses(spots),
	})
}

// ListLevels возвращает все уровни.
func (h *Handler) ListLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := h.parking.Levels()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]levelResponse, 0, len(levels))
	for _, l := range levels {
		out = append(out, toLevelResponse(l))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// LevelSpots возвращает все места уровня.
func (h *Handler) LevelSpots(w http.ResponseWriter, r *http.Request) {
	spots, err := h.parking.Spots(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSpotResponses(spots))
}

// GetSpot возвращает одно место.
func (h *Handler) GetSpot(w http.ResponseWriter, r *http.Request) {
	spot, err := h.parking.GetSpot(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSpotResponse(spot))
}

// SpotSlots возвращает сетку слотов места на календарный день.
// День передаётся как ?day=2026-05-14; пустое значение означает сегодня.
func (h *Handler) SpotSlots(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	day := now
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "day must be formatted as YYYY-MM-DD")
			return
		}
		day = parsed
	}

	slots, err := h.reservations.DaySlots(chi.URLParam(r, "id"), day, now)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSlotResponses(slots))
}

// OccupySpot вручную занимает место, минуя тикеты.
func (h *Handler) OccupySpot(w http.ResponseWriter, r *http.Request) {
	h.spotTransition(w, r, h.parking.Occupy)
}

// ReleaseSpot вручную освобождает место.
func (h *Handler) ReleaseSpot(w http.ResponseWriter, r *http.Request) {
	h.spotTransition(w, r, h.parking.Release)
}

// DisableSpot выводит место из эксплуатации.
func (h *Handler) DisableSpot(w http.ResponseWriter, r *http.Request) {
	h.spotTransition(w, r, h.parking.Disable)
}

// EnableSpot возвращает место в эксплуатацию.
func (h *Handler) EnableSpot(w http.ResponseWriter, r *http.Request) {
	h.spotTransition(w, r, h.parking.Enable)
}

func (h *Handler) spotTransition(w http.ResponseWriter, r *http.Request, fn func(string) (domain.Spot, error)) {
	spot, err := fn(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSpotResponse(spot))
}

// Enter выполняет сагу walk-up заезда и возвращает открытый тикет.
func (h *Handler) Enter(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	opened, err := h.sagas.Enter(r.Context(), saga.EnterRequest{
		UserID:    req.UserID,
		UserEmail: req.UserEmail,
		Plate:     req.Plate,
		LevelID:   req.LevelID,
		Vehicle: domain.VehicleInput{
			Plate:      req.Plate,
			Type:       domain.VehicleType(strings.ToUpper(req.VehicleType)),
			Accessible: req.Accessible,
			Owner:      req.Owner,
		},
		Accessible: req.Accessible,
		EntryAt:    time.Now().UTC(),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toTicketResponse(opened))
}

// Exit выполняет сагу выезда по идентификатору тикета.
func (h *Handler) Exit(w http.ResponseWriter, r *http.Request) {
	closed, err := h.sagas.Exit(r.Context(), saga.ExitRequest{
		TicketID: chi.URLParam(r, "id"),
		ExitAt:   time.Now().UTC(),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTicketResponse(closed))
}

// ExitByPlate выполняет сагу выезда по номерному знаку,
// когда водитель потерял тикет.
func (h *Handler) ExitByPlate(w http.ResponseWriter, r *http.Request) {
	var req exitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Plate) == "" {
		h.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "plate is required")
		return
	}

	closed, err := h.sagas.Exit(r.Context(), saga.ExitRequest{
		Plate:  req.Plate,
		ExitAt: time.Now().UTC(),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTicketResponse(closed))
}

// GetTicket возвращает тикет по идентификатору.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	found, err := h.tickets.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTicketResponse(found))
}

// ListTickets возвращает тикеты с фильтрами ?user_email= и ?active=true.
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	var (
		tickets []domain.Ticket
		err     error
	)
	switch {
	case r.URL.Query().Get("user_email") != "":
		tickets, err = h.tickets.ListByUser(r.URL.Query().Get("user_email"))
	case r.URL.Query().Get("active") == "true":
		tickets, err = h.tickets.ListActive()
	default:
		tickets, err = h.tickets.ListAll()
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTicketResponses(tickets))
}

// CreateReservation создаёт бронь места на будущее окно.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	created, err := h.reservations.Create(reservation.CreateRequest{
		UserID:    req.UserID,
		UserEmail: req.UserEmail,
		Plate:     req.Plate,
		SpotID:    req.SpotID,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toReservationResponse(created))
}

// CheckIn выполняет заезд по брони внутри грейс-окна.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	activated, opened, err := h.reservations.CheckIn(chi.URLParam(r, "id"), time.Now().UTC())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, checkInResponse{
		Reservation: toReservationResponse(activated),
		Ticket:      toTicketResponse(opened),
	})
}

// CancelReservation отменяет бронь до начала окна.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.reservations.Cancel(chi.URLParam(r, "id"), time.Now().UTC())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toReservationResponse(cancelled))
}

// GetReservation возвращает бронь по идентификатору.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	found, err := h.reservations.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toReservationResponse(found))
}

// ListReservations возвращает брони с фильтром ?user_email=.
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	var (
		reservations []domain.Reservation
		err          error
	)
	if email := r.URL.Query().Get("user_email"); email != "" {
		reservations, err = h.reservations.ListByUser(email)
	} else {
		reservations, err = h.reservations.ListAll()
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toReservationResponses(reservations))
}

// Stats возвращает агрегированную статистику паркинга и тикетов.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	parkingStats, err := h.parking.Stats()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	ticketStats, err := h.tickets.Stats()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	levels := make([]levelStatsResponse, 0, len(parkingStats.Levels))
	for _, l := range parkingStats.Levels {
		levels = append(levels, toLevelStatsResponse(l))
	}
	h.writeJSON(w, http.StatusOK, statsResponse{
		TotalLevels:  parkingStats.TotalLevels,
		TotalSpots:   parkingStats.TotalSpots,
		Available:    parkingStats.Available,
		Occupied:     parkingStats.Occupied,
		Disabled:     parkingStats.Disabled,
		OccupancyPct: parkingStats.OccupancyPct,
		Levels:       levels,
		Tickets: ticketStatsResponse{
			Total:          ticketStats.Total,
			Active:         ticketStats.Active,
			Closed:         ticketStats.Closed,
			ActiveVehicles: ticketStats.ActiveVehicles,
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if status >= http.StatusInternalServerError {
		h.logger.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": status,
		}).Error(message)
	}
	h.writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeDomainError переводит доменную ошибку в HTTP-статус
// со стабильным машинным кодом.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapDomainError(err)
	h.writeError(w, r, status, code, err.Error())
}

func mapDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrLevelNotFound),
		errors.Is(err, domain.ErrSpotNotFound),
		errors.Is(err, domain.ErrTicketNotFound),
		errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrVehicleNotFound):
		return http.StatusNotFound, codeNotFound

	case errors.Is(err, domain.ErrPaymentFailed):
		return http.StatusPaymentRequired, codePaymentFailed

	case errors.Is(err, domain.ErrVehicleServiceUnavailable),
		errors.Is(err, domain.ErrPaymentServiceUnavailable),
		errors.Is(err, domain.ErrTicketingServiceUnavailable):
		return http.StatusServiceUnavailable, codeTryAgainLater

	case domain.IsConflict(err),
		errors.Is(err, domain.ErrCheckInTooEarly),
		errors.Is(err, domain.ErrReservationExpired),
		errors.Is(err, domain.ErrDuplicateLevel),
		errors.Is(err, domain.ErrDuplicateSpot):
		return http.StatusConflict, codeConflict

	case errors.Is(err, domain.ErrPlateRequired),
		errors.Is(err, domain.ErrVehicleTypeInvalid),
		errors.Is(err, domain.ErrSpotIDRequired),
		errors.Is(err, domain.ErrUserRequired),
		errors.Is(err, domain.ErrEntryTimeRequired),
		errors.Is(err, domain.ErrLevelIDRequired),
		errors.Is(err, domain.ErrSpotCodeRequired),
		errors.Is(err, domain.ErrSpotTypeInvalid),
		errors.Is(err, domain.ErrWindowInverted),
		errors.Is(err, domain.ErrLevelLabelRequired),
		errors.Is(err, domain.ErrSpotDistribution),
		errors.Is(err, domain.ErrInvalidWindow):
		return http.StatusBadRequest, codeInvalidRequest
	}
	return http.StatusInternalServerError, codeInternal
}
