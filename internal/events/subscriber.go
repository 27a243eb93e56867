package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rxtech-lab/vesting-mcp/internal/metrics"
	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
	"github.com/sirupsen/logrus"
)

// StatusApplier applies a terminal status reported by the chain layer.
type StatusApplier interface {
	ApplyStatus(ctx context.Context, update services.StatusUpdate) (*models.Transaction, error)
}

// statusReply is sent back when the status message was a request.
type statusReply struct {
	TransactionID uint   `json:"transaction_id,omitempty"`
	Status        string `json:"status,omitempty"`
	Error         string `json:"error,omitempty"`
	Code          string `json:"code,omitempty"`
}

// StatusSubscriber consumes chain status updates from a queue group, so that several
// instances can share the subject and each update is handled once.
type StatusSubscriber struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	applier    StatusApplier
	logger     *logrus.Logger
	sub        *nats.Subscription
}

func NewStatusSubscriber(conn *nats.Conn, subject, queueGroup string, applier StatusApplier, logger *logrus.Logger) *StatusSubscriber {
	return &StatusSubscriber{
		conn:       conn,
		subject:    subject,
		queueGroup: queueGroup,
		applier:    applier,
		logger:     logger,
	}
}

func (s *StatusSubscriber) Start(ctx context.Context) error {
	sub, err := s.conn.QueueSubscribe(s.subject, s.queueGroup, func(msg *nats.Msg) {
		reply := s.handleMessage(ctx, msg.Subject, msg.Data)
		if msg.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err == nil {
			err = msg.Respond(data)
		}
		if err != nil {
			s.logger.WithError(err).Warn("failed to reply to status update")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub
	s.logger.WithFields(logrus.Fields{"subject": s.subject, "queue": s.queueGroup}).Info("listening for transaction status updates")
	return nil
}

// Stop drains the subscription so in-flight updates finish before returning.
func (s *StatusSubscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Drain()
}

func (s *StatusSubscriber) handleMessage(ctx context.Context, subject string, data []byte) statusReply {
	metrics.NATSMessagesReceived.WithLabelValues(subject).Inc()

	var update services.StatusUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		metrics.NATSMessagesFailed.WithLabelValues(subject).Inc()
		s.logger.WithError(err).WithField("subject", subject).Warn("discarding malformed status update")
		return statusReply{Error: "malformed status update", Code: services.ErrValidation.Code}
	}

	log := s.logger.WithFields(logrus.Fields{
		"hash":     update.Hash,
		"chain_id": update.ChainID,
		"status":   update.Status,
	})

	tx, err := s.applier.ApplyStatus(ctx, update)
	var reply statusReply
	if tx != nil {
		reply.TransactionID = tx.ID
		reply.Status = string(tx.Status)
	}

	switch {
	case err == nil:
		log.Debug("applied status update")
		return reply
	case errors.Is(err, services.ErrAlreadyResolved):
		log.Info("status update already applied")
		return reply
	}

	metrics.NATSMessagesFailed.WithLabelValues(subject).Inc()
	log.WithError(err).Warn("failed to apply status update")
	reply.Error = err.Error()
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		reply.Code = svcErr.Code
	}
	return reply
}
