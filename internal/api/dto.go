package api

import (
	"time"

	"github.com/vladislavdragonenkov/pms/internal/domain"
	"github.com/vladislavdragonenkov/pms/internal/service/reservation"
)

// errorResponse — единый формат ошибки API.
// Code стабилен и пригоден для программной обработки клиентом,
// Message — человекочитаемое описание.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// createLevelRequest — запрос на создание уровня с типизированным
// распределением мест. Нулевое распределение означает "все места легковые".
type createLevelRequest struct {
	Label            string `json:"label"`
	TotalSpots       int    `json:"total_spots"`
	CarSpots         int    `json:"car_spots"`
	BikeSpots        int    `json:"bike_spots"`
	EVSpots          int    `json:"ev_spots"`
	HandicappedSpots int    `json:"handicapped_spots"`
}

type levelResponse struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	TotalSpots int       `json:"total_spots"`
	CreatedAt  time.Time `json:"created_at"`
}

type spotResponse struct {
	ID         string `json:"id"`
	LevelID    string `json:"level_id"`
	Code       string `json:"code"`
	Type       string `json:"type"`
	Accessible bool   `json:"accessible"`
	State      string `json:"state"`
}

type createLevelResponse struct {
	Level levelResponse  `json:"level"`
	Spots []spotResponse `json:"spots"`
}

// entryRequest — запрос walk-up заезда.
type entryRequest struct {
	UserID      string `json:"user_id"`
	UserEmail   string `json:"user_email"`
	Plate       string `json:"plate"`
	LevelID     string `json:"level_id"`
	VehicleType string `json:"vehicle_type"`
	Accessible  bool   `json:"accessible"`
	Owner       string `json:"owner"`
}

// exitRequest — запрос выезда. Тикет разрешается либо по id из пути,
// либо по номерному знаку для POST /api/exit.
type exitRequest struct {
	Plate string `json:"plate"`
}

type ticketResponse struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	UserEmail string     `json:"user_email"`
	Plate     string     `json:"plate"`
	SpotID    string     `json:"spot_id"`
	LevelID   string     `json:"level_id"`
	EntryAt   time.Time  `json:"entry_at"`
	ExitAt    *time.Time `json:"exit_at,omitempty"`
	FeeMinor  int64      `json:"fee_minor"`
	Status    string     `json:"status"`
}

// createReservationRequest — запрос на бронь места.
type createReservationRequest struct {
	UserID    string    `json:"user_id"`
	UserEmail string    `json:"user_email"`
	Plate     string    `json:"plate"`
	SpotID    string    `json:"spot_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
}

type reservationResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserEmail string    `json:"user_email"`
	Plate     string    `json:"plate"`
	SpotID    string    `json:"spot_id"`
	LevelID   string    `json:"level_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Status    string    `json:"status"`
	TicketID  string    `json:"ticket_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// checkInResponse — результат заезда по брони: активированная бронь
// вместе с открытым тикетом.
type checkInResponse struct {
	Reservation reservationResponse `json:"reservation"`
	Ticket      ticketResponse      `json:"ticket"`
}

type slotResponse struct {
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Available bool      `json:"available"`
}

type levelStatsResponse struct {
	LevelID      string  `json:"level_id"`
	Label        string  `json:"label"`
	TotalSpots   int     `json:"total_spots"`
	Available    int     `json:"available"`
	Occupied     int     `json:"occupied"`
	Disabled     int     `json:"disabled"`
	OccupancyPct float64 `json:"occupancy_pct"`
}

type statsResponse struct {
	TotalLevels  int                  `json:"total_levels"`
	TotalSpots   int                  `json:"total_spots"`
	Available    int                  `json:"available"`
	Occupied     int                  `json:"occupied"`
	Disabled     int                  `json:"disabled"`
	OccupancyPct float64              `json:"occupancy_pct"`
	Levels       []levelStatsResponse `json:"levels"`
	Tickets      ticketStatsResponse  `json:"tickets"`
}

type ticketStatsResponse struct {
	Total          int `json:"total"`
	Active         int `json:"active"`
	Closed         int `json:"closed"`
	ActiveVehicles int `json:"active_vehicles"`
}

func toLevelResponse(l domain.Level) levelResponse {
	return levelResponse{
		ID:         l.ID,
		Label:      l.Label,
		TotalSpots: l.TotalSpots,
		CreatedAt:  l.CreatedAt,
	}
}

func toSpotResponse(s domain.Spot) spotResponse {
	return spotResponse{
		ID:         s.ID,
		LevelID:    s.LevelID,
		Code:       s.Code,
		Type:       string(s.Type),
		Accessible: s.Accessible,
		State:      string(s.State),
	}
}

func toSpotResponses(spots []domain.Spot) []spotResponse {
	out := make([]spotResponse, 0, len(spots))
	for _, s := range spots {
		out = append(out, toSpotResponse(s))
	}
	return out
}

func toTicketResponse(t domain.Ticket) ticketResponse {
	resp := ticketResponse{
		ID:        t.ID,
		UserID:    t.UserID,
		UserEmail: t.UserEmail,
		Plate:     t.Plate,
		SpotID:    t.SpotID,
		LevelID:   t.LevelID,
		EntryAt:   t.EntryAt,
		FeeMinor:  t.FeeMinor,
		Status:    string(t.Status),
	}
	if !t.ExitAt.IsZero() {
		exitAt := t.ExitAt
		resp.ExitAt = &exitAt
	}
	return resp
}

func toTicketResponses(tickets []domain.Ticket) []ticketResponse {
	out := make([]ticketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, toTicketResponse(t))
	}
	return out
}

func toReservationResponse(r domain.Reservation) reservationResponse {
	return reservationResponse{
		ID:        r.ID,
		UserID:    r.UserID,
		UserEmail: r.UserEmail,
		Plate:     r.Plate,
		SpotID:    r.SpotID,
		LevelID:   r.LevelID,
		StartAt:   r.StartAt,
		EndAt:     r.EndAt,
		Status:    string(r.Status),
		TicketID:  r.TicketID,
		CreatedAt: r.CreatedAt,
	}
}

func toReservationResponses(reservations []domain.Reservation) []reservationResponse {
	out := make([]reservationResponse, 0, len(reservations))
	for _, r := range reservations {
		out = append(out, toReservationResponse(r))
	}
	return out
}

func toSlotResponses(slots []reservation.Slot) []slotResponse {
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResponse{StartAt: s.StartAt, EndAt: s.EndAt, Available: s.Available})
	}
	return out
}

func toLevelStatsResponse(s domain.LevelStats) levelStatsResponse {
	return levelStatsResponse{
		LevelID:      s.LevelID,
		Label:        s.Label,
		TotalSpots:   s.TotalSpots,
		Available:    s.Available,
		Occupied:     s.Occupied,
		Disabled:     s.Disabled,
		OccupancyPct: s.OccupancyPct,
	}
}
