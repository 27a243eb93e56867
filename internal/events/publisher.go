package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rxtech-lab/vesting-mcp/internal/metrics"
	"github.com/rxtech-lab/vesting-mcp/internal/models"
)

// MessagePublisher is the part of *nats.Conn the publisher needs.
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// ResolvedEvent is published on <subject>.<transaction type> once an outcome has been applied.
type ResolvedEvent struct {
	TransactionID   uint                     `json:"transaction_id"`
	Hash            string                   `json:"hash"`
	ChainID         uint                     `json:"chain_id"`
	Type            models.TransactionType   `json:"type"`
	Status          models.TransactionStatus `json:"status"`
	OrganizationID  string                   `json:"organization_id"`
	ContractAddress *string                  `json:"contract_address,omitempty"`
	Metadata        models.JSON              `json:"metadata,omitempty"`
	ResolvedAt      *time.Time               `json:"resolved_at,omitempty"`
}

type Publisher struct {
	conn    MessagePublisher
	subject string
}

func NewPublisher(conn MessagePublisher, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

func (p *Publisher) SubjectFor(txType models.TransactionType) string {
	return p.subject + "." + string(txType)
}

// NotifyResolved implements services.ResolvedNotifier. Delivery is at-least-once: a
// transaction re-applied after a crash is announced again.
func (p *Publisher) NotifyResolved(ctx context.Context, tx models.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ResolvedEvent{
		TransactionID:   tx.ID,
		Hash:            tx.Hash,
		ChainID:         tx.ChainID,
		Type:            tx.Type,
		Status:          tx.Status,
		OrganizationID:  tx.OrganizationID,
		ContractAddress: tx.ContractAddress,
		Metadata:        tx.Metadata,
		ResolvedAt:      tx.ResolvedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode resolved event: %w", err)
	}

	subject := p.SubjectFor(tx.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	metrics.NATSMessagesPublished.WithLabelValues(string(tx.Type)).Inc()
	return nil
}
