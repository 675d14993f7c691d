package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

// DefaultFailAboveMinor — порог суммы, выше которого заглушка отклоняет платёж.
const DefaultFailAboveMinor = int64(500)

// MockGateway — конфигурируемая заглушка PaymentGateway.
// Детерминированное поведение: суммы выше FailAboveMinor получают FAILED,
// остальные — SUCCESS. ChargeErr и ChargeStatus позволяют навязать исход
// в тестах; FailFirst ограничивает число неудачных вызовов для retry-сценариев.
type MockGateway struct {
	FailAboveMinor int64

	ChargeStatus domain.PaymentStatus
	ChargeErr    error
	FailFirst    int

	ChargeCalls int
	LastAmount  int64
}

// NewMockGateway возвращает шлюз с детерминированным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{FailAboveMinor: DefaultFailAboveMinor}
}

// Charge проводит платёж и считает вызовы.
func (m *MockGateway) Charge(_ context.Context, ticketID string, amountMinor int64) (domain.PaymentReceipt, error) {
	m.ChargeCalls++
	m.LastAmount = amountMinor

	if m.ChargeErr != nil && (m.FailFirst == 0 || m.ChargeCalls <= m.FailFirst) {
		return domain.PaymentReceipt{}, m.ChargeErr
	}
	if m.ChargeStatus != "" {
		return m.receipt(m.ChargeStatus, "forced status"), nil
	}
	if m.FailAboveMinor > 0 && amountMinor > m.FailAboveMinor {
		return m.receipt(domain.PaymentStatusFailed, "amount above limit"), nil
	}
	return m.receipt(domain.PaymentStatusSuccess, ""), nil
}

func (m *MockGateway) receipt(status domain.PaymentStatus, reason string) domain.PaymentReceipt {
	receipt := domain.PaymentReceipt{Status: status, Reason: reason}
	if status == domain.PaymentStatusSuccess {
		receipt.PaymentRef = "pay-" + uuid.NewString()
	}
	return receipt
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
