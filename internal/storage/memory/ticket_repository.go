package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

// ticketRepositoryInMemory — простая in-memory реализация TicketRepository.
// Уникальность активного тикета на номер обеспечивается индексом activeByPlate,
// заменяющим partial unique index постгреса.
type ticketRepositoryInMemory struct {
	mu            sync.RWMutex
	items         map[string]domain.Ticket
	activeByPlate map[string]string
}

// NewTicketRepository возвращает in-memory репозиторий тикетов.
func NewTicketRepository() domain.TicketRepository {
	return &ticketRepositoryInMemory{
		items:         make(map[string]domain.Ticket),
		activeByPlate: make(map[string]string),
	}
}

// Create сохраняет новый тикет; второй ACTIVE тикет на тот же номер отклоняется.
func (r *ticketRepositoryInMemory) Create(ticket domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	plate := domain.NormalizePlate(ticket.Plate)
	if ticket.Status == domain.TicketStatusActive {
		if _, exists := r.activeByPlate[plate]; exists {
			return domain.ErrActiveTicketExists
		}
	}

	r.items[ticket.ID] = ticket
	if ticket.Status == domain.TicketStatusActive {
		r.activeByPlate[plate] = ticket.ID
	}
	return nil
}

// Get возвращает тикет или ErrTicketNotFound.
func (r *ticketRepositoryInMemory) Get(id string) (domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ticket, ok := r.items[id]
	if !ok {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return ticket, nil
}

// FindActiveByPlate возвращает открытый тикет по номеру.
func (r *ticketRepositoryInMemory) FindActiveByPlate(plate string) (domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.activeByPlate[domain.NormalizePlate(plate)]
	if !ok {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return r.items[id], nil
}

// Close атомарно закрывает тикет: время выезда, сумма и статус ставятся вместе.
func (r *ticketRepositoryInMemory) Close(id string, exitAt time.Time, feeMinor int64) (domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.items[id]
	if !ok {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	if err := ticket.Close(exitAt, feeMinor); err != nil {
		return domain.Ticket{}, err
	}

	r.items[id] = ticket
	delete(r.activeByPlate, domain.NormalizePlate(ticket.Plate))
	return ticket, nil
}

// ListByUser возвращает тикеты пользователя, свежие первыми.
func (r *ticketRepositoryInMemory) ListByUser(userEmail string) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Ticket, 0)
	for _, ticket := range r.items {
		if ticket.UserEmail == userEmail {
			result = append(result, ticket)
		}
	}
	sortTickets(result)
	return result, nil
}

// ListActive возвращает все открытые тикеты.
func (r *ticketRepositoryInMemory) ListActive() ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Ticket, 0)
	for _, ticket := range r.items {
		if ticket.Status == domain.TicketStatusActive {
			result = append(result, ticket)
		}
	}
	sortTickets(result)
	return result, nil
}

// ListAll возвращает все тикеты, свежие первыми.
func (r *ticketRepositoryInMemory) ListAll() ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Ticket, 0, len(r.items))
	for _, ticket := range r.items {
		result = append(result, ticket)
	}
	sortTickets(result)
	return result, nil
}

// Stats пересчитывает сводку из записей, а не ведёт счётчики.
func (r *ticketRepositoryInMemory) Stats() (domain.TicketStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.TicketStats{Total: len(r.items)}
	for _, ticket := range r.items {
		if ticket.Status == domain.TicketStatusActive {
			stats.Active++
		} else {
			stats.Closed++
		}
	}
	stats.ActiveVehicles = len(r.activeByPlate)
	return stats, nil
}

func sortTickets(tickets []domain.Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		if !tickets[i].EntryAt.Equal(tickets[j].EntryAt) {
			return tickets[i].EntryAt.After(tickets[j].EntryAt)
		}
		return tickets[i].ID > tickets[j].ID
	})
}

var _ domain.TicketRepository = (*ticketRepositoryInMemory)(nil)
