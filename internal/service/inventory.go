package service

import (
	"context"

	"ticket-transaction-engine/internal/repository"
	apperrors "ticket-transaction-engine/pkg/app_errors"
)

// InventoryManager 票種座位數增減，必須在交易的 atomic unit 內呼叫
type InventoryManager struct{}

func NewInventoryManager() *InventoryManager {
	return &InventoryManager{}
}

// Reserve 扣座位；座位不足回傳 ErrInsufficientSeats
func (m *InventoryManager) Reserve(ctx context.Context, ticketTypes repository.TicketTypeRepository, ticketTypeID int64, qty int) error {
	if qty <= 0 {
		return apperrors.Validation("qty must be positive")
	}
	return ticketTypes.DecrementSeats(ctx, ticketTypeID, qty)
}

// Release 還座位。同一筆交易只能還一次，由狀態機保證
func (m *InventoryManager) Release(ctx context.Context, ticketTypes repository.TicketTypeRepository, ticketTypeID int64, qty int) error {
	if qty <= 0 {
		return apperrors.Validation("qty must be positive")
	}
	return ticketTypes.IncrementSeats(ctx, ticketTypeID, qty)
}
