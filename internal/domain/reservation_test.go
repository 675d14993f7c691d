package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

const grace = 10 * time.Minute

func makeReservation(start, end time.Time) domain.Reservation {
	return domain.Reservation{
		ID:        "res-1",
		UserID:    "user-1",
		UserEmail: "user@example.com",
		Plate:     "KA01AB1234",
		SpotID:    "spot-1",
		LevelID:   "level-1",
		StartAt:   start,
		EndAt:     end,
		Status:    domain.ReservationStatusCreated,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 1, hour, minute, 0, 0, time.UTC)
}

func TestReservationOverlaps(t *testing.T) {
	r := makeReservation(at(10, 0), at(11, 0))

	cases := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{name: "inside", start: at(10, 30), end: at(11, 30), want: true},
		{name: "covering", start: at(9, 0), end: at(12, 0), want: true},
		{name: "touching end does not conflict", start: at(11, 0), end: at(12, 0), want: false},
		{name: "touching start does not conflict", start: at(9, 0), end: at(10, 0), want: false},
		{name: "disjoint", start: at(12, 0), end: at(13, 0), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Overlaps(tc.start, tc.end); got != tc.want {
				t.Fatalf("overlaps(%s, %s) = %v, want %v", tc.start, tc.end, got, tc.want)
			}
		})
	}
}

func TestReservationCheckInWindow(t *testing.T) {
	// Бронь на 10:00 с grace ±10 минут: окно [09:50, 10:10).
	r := makeReservation(at(10, 0), at(11, 0))

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "09:49 too early", now: at(9, 49), want: false},
		{name: "09:50 window opens", now: at(9, 50), want: true},
		{name: "10:00 on time", now: at(10, 0), want: true},
		{name: "10:09 still allowed", now: at(10, 9), want: true},
		{name: "10:11 expired", now: at(10, 11), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.CanCheckIn(tc.now, grace); got != tc.want {
				t.Fatalf("canCheckIn(%s) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}

	active := makeReservation(at(10, 0), at(11, 0))
	active.Status = domain.ReservationStatusActive
	if active.CanCheckIn(at(10, 0), grace) {
		t.Fatal("active reservation must not allow a second check-in")
	}
}

func TestReservationCancelAndNoShow(t *testing.T) {
	r := makeReservation(at(10, 0), at(11, 0))

	if !r.CanCancel(at(9, 59)) {
		t.Fatal("cancel before start must be allowed")
	}
	if r.CanCancel(at(10, 0)) {
		t.Fatal("cancel at start must be rejected")
	}

	if r.NoShow(at(10, 9), grace) {
		t.Fatal("no-show must not trigger inside the grace window")
	}
	if !r.NoShow(at(10, 10), grace) {
		t.Fatal("no-show must trigger once the grace window has passed")
	}

	cancelled := makeReservation(at(10, 0), at(11, 0))
	cancelled.Status = domain.ReservationStatusCancelled
	if cancelled.NoShow(at(12, 0), grace) {
		t.Fatal("cancelled reservation is never a no-show")
	}
}
