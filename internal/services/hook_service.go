package services

import (
	"context"
	"fmt"

	"github.com/rxtech-lab/vesting-mcp/internal/models"
)

type HookService interface {
	AddHook(hook Hook) error
	OnTransactionResolved(ctx context.Context, tx models.Transaction) error
}

type hookService struct {
	hooks []Hook
}

func NewHookService() HookService {
	return &hookService{
		hooks: []Hook{},
	}
}

func (h *hookService) AddHook(hook Hook) error {
	if hook == nil {
		return fmt.Errorf("hook is nil")
	}
	h.hooks = append(h.hooks, hook)
	return nil
}

// OnTransactionResolved runs every hook registered for the transaction type in order and
// stops at the first error. Pending transactions are never dispatched.
func (h *hookService) OnTransactionResolved(ctx context.Context, tx models.Transaction) error {
	if tx.IsPending() {
		return newError(ErrInvalidState, nil, "transaction %d is still pending", tx.ID)
	}
	for _, hook := range h.hooks {
		if hook.CanHandle(tx.Type) {
			if err := hook.OnTransactionResolved(ctx, tx); err != nil {
				return err
			}
		}
	}
	return nil
}
