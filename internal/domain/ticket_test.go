package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

func TestFee(t *testing.T) {
	entry := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		elapsed time.Duration
		want    int64
	}{
		{name: "90 minutes floors to one hour", elapsed: 90 * time.Minute, want: 50},
		{name: "150 minutes floors to two hours", elapsed: 150 * time.Minute, want: 100},
		{name: "short stay pays the minimum", elapsed: 5 * time.Minute, want: 50},
		{name: "exactly three hours", elapsed: 3 * time.Hour, want: 150},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.Fee(entry, entry.Add(tc.elapsed), 50, 50)
			if got != tc.want {
				t.Fatalf("fee for %s = %d, want %d", tc.elapsed, got, tc.want)
			}
		})
	}
}

func TestTicketClose(t *testing.T) {
	entry := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	ticket := domain.Ticket{
		ID:      "ticket-1",
		UserID:  "user-1",
		Plate:   "KA01AB1234",
		SpotID:  "spot-1",
		EntryAt: entry,
		Status:  domain.TicketStatusActive,
	}

	exit := entry.Add(2 * time.Hour)
	if err := ticket.Close(exit, 100); err != nil {
		t.Fatalf("close: %v", err)
	}
	if ticket.Status != domain.TicketStatusClosed || !ticket.ExitAt.Equal(exit) || ticket.FeeMinor != 100 {
		t.Fatalf("close did not set all fields atomically: %+v", ticket)
	}

	// Закрытый тикет больше не мутируется.
	if err := ticket.Close(exit.Add(time.Hour), 999); !errors.Is(err, domain.ErrTicketClosed) {
		t.Fatalf("second close: got %v, want ErrTicketClosed", err)
	}
	if ticket.FeeMinor != 100 {
		t.Fatalf("second close mutated the fee: %d", ticket.FeeMinor)
	}
}
