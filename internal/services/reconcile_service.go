package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/vesting-mcp/internal/metrics"
	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	defaultReconcileInterval = 15 * time.Second
	defaultReconcileBatch    = 100
)

// ReconcileService brings recorded transactions in line with the chain. A sweep resolves
// every pending transaction the adapter has a receipt for, then hands every resolved but
// not yet applied transaction to the hooks. Status updates pushed over the event bus take
// the same path through ApplyStatus.
type ReconcileService interface {
	Start(ctx context.Context)
	Stop()
	Sweep(ctx context.Context) (SweepResult, error)
	ApplyStatus(ctx context.Context, update StatusUpdate) (*models.Transaction, error)
}

// ResolvedNotifier is told about every transaction whose outcome has been applied.
type ResolvedNotifier interface {
	NotifyResolved(ctx context.Context, tx models.Transaction) error
}

type ReconcileConfig struct {
	Interval          time.Duration
	BatchSize         int
	PendingAlertAfter time.Duration
}

// StatusUpdate is a terminal status reported by the chain layer.
type StatusUpdate struct {
	ChainID         uint                     `json:"chain_id" validate:"required"`
	Hash            string                   `json:"hash" validate:"required"`
	Status          models.TransactionStatus `json:"status" validate:"required,oneof=SUCCESS FAILED"`
	ContractAddress *string                  `json:"contract_address,omitempty"`
}

type SweepResult struct {
	Checked       int `json:"checked"`
	Resolved      int `json:"resolved"`
	StillPending  int `json:"still_pending"`
	Stale         int `json:"stale"`
	AdapterErrors int `json:"adapter_errors"`
	Conflicts     int `json:"conflicts"`
	Applied       int `json:"applied"`
	HookErrors    int `json:"hook_errors"`
	Escalated     int `json:"escalated"`
}

type reconcileService struct {
	txs      TransactionService
	chains   ChainService
	adapter  ChainAdapter
	hooks    HookService
	notifier ResolvedNotifier
	cfg      ReconcileConfig
	logger   *logrus.Logger
	validate *validator.Validate
	now      func() time.Time

	sweepMu sync.Mutex
	// applying serializes hook runs per transaction between sweeps and pushed updates
	applying *keyedMutex
	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewReconcileService creates the reconciliation loop. notifier may be nil.
func NewReconcileService(txs TransactionService, chains ChainService, adapter ChainAdapter, hooks HookService, notifier ResolvedNotifier, cfg ReconcileConfig, logger *logrus.Logger) ReconcileService {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultReconcileInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultReconcileBatch
	}
	return &reconcileService{
		txs:      txs,
		chains:   chains,
		adapter:  adapter,
		hooks:    hooks,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
		applying: newKeyedMutex(),
	}
}

// Start runs a sweep immediately and then once per interval until Stop is called or ctx ends.
func (s *reconcileService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.WithField("interval", s.cfg.Interval).Info("reconciliation loop started")
}

func (s *reconcileService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).Error("reconciliation sweep failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the loop and waits for the running sweep to return.
func (s *reconcileService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("reconciliation loop stopped")
}

func (s *reconcileService) Sweep(ctx context.Context) (SweepResult, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	started := time.Now()
	metrics.SweepsTotal.Inc()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(started).Seconds())
	}()

	var result SweepResult
	if err := s.resolvePending(ctx, &result); err != nil {
		return result, err
	}
	if err := s.applyResolved(ctx, &result); err != nil {
		return result, err
	}

	if result.Checked > 0 || result.Applied > 0 || result.HookErrors > 0 {
		s.logger.WithFields(logrus.Fields{
			"checked":        result.Checked,
			"resolved":       result.Resolved,
			"still_pending":  result.StillPending,
			"adapter_errors": result.AdapterErrors,
			"applied":        result.Applied,
			"hook_errors":    result.HookErrors,
			"escalated":      result.Escalated,
		}).Debug("reconciliation sweep finished")
	}
	return result, nil
}

func (s *reconcileService) resolvePending(ctx context.Context, result *SweepResult) error {
	chains := make(map[uint]*models.Chain)
	var cursor uint

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.txs.ListPending(ctx, cursor, s.cfg.BatchSize)
		if err != nil {
			return err
		}

		for _, tx := range page {
			cursor = tx.ID
			result.Checked++
			s.checkPending(ctx, chains, tx, result)
		}
		if len(page) < s.cfg.BatchSize {
			break
		}
	}

	metrics.StalePendingTransactions.Set(float64(result.Stale))
	return nil
}

func (s *reconcileService) checkPending(ctx context.Context, chains map[uint]*models.Chain, tx models.Transaction, result *SweepResult) {
	log := s.logger.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"hash":           tx.Hash,
		"chain_id":       tx.ChainID,
		"type":           tx.Type,
	})

	chain, ok := chains[tx.ChainID]
	if !ok {
		c, err := s.chains.GetChain(ctx, tx.ChainID)
		if err != nil {
			log.WithError(err).Error("cannot reconcile transaction on an unknown chain")
			result.AdapterErrors++
			return
		}
		chains[tx.ChainID] = c
		chain = c
	}

	receipt, err := s.adapter.TransactionStatus(ctx, *chain, tx.Hash)
	if err != nil {
		// one bad RPC endpoint must not hold up the rest of the sweep
		metrics.AdapterErrors.WithLabelValues("status").Inc()
		result.AdapterErrors++
		log.WithError(err).Warn("failed to query transaction status")
		return
	}

	if receipt == nil {
		result.StillPending++
		if s.cfg.PendingAlertAfter > 0 {
			if age := s.now().Sub(tx.CreatedAt); age > s.cfg.PendingAlertAfter {
				result.Stale++
				log.WithField("age", age.Round(time.Second)).Warn("transaction has been pending longer than expected")
			}
		}
		return
	}

	_, err = s.txs.Resolve(ctx, tx.Hash, tx.ChainID, receipt.Outcome, receipt.ContractAddress)
	switch {
	case err == nil:
		result.Resolved++
	case errors.Is(err, ErrAlreadyResolved):
		// resolved by the event path in the meantime
	case errors.Is(err, ErrConflictingResolution):
		result.Conflicts++
	default:
		log.WithError(err).Error("failed to resolve transaction")
	}
}

func (s *reconcileService) applyResolved(ctx context.Context, result *SweepResult) error {
	var cursor uint
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.txs.ListUnapplied(ctx, cursor, s.cfg.BatchSize)
		if err != nil {
			return err
		}

		for _, tx := range page {
			cursor = tx.ID
			switch err := s.apply(ctx, tx); {
			case err == nil:
				result.Applied++
			case errors.Is(err, ErrConsistencyViolation):
				result.Escalated++
			default:
				result.HookErrors++
			}
		}
		if len(page) < s.cfg.BatchSize {
			return nil
		}
	}
}

// apply hands a resolved transaction to its hooks. A failed deployment is a normal
// outcome. Consistency violations are frozen for an operator and never retried; any
// other error leaves the transaction unapplied for the next sweep.
func (s *reconcileService) apply(ctx context.Context, tx models.Transaction) error {
	log := s.logger.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"hash":           tx.Hash,
		"type":           tx.Type,
		"status":         tx.Status,
	})

	unlock := s.applying.Lock(strconv.FormatUint(uint64(tx.ID), 10))
	defer unlock()
	current, err := s.txs.GetByID(ctx, tx.ID)
	if err != nil {
		return err
	}
	if current.Applied {
		log.Debug("transaction already applied")
		return nil
	}

	err = s.hooks.OnTransactionResolved(ctx, tx)
	switch {
	case err == nil, errors.Is(err, ErrDeploymentFailed):
		if err := s.txs.MarkApplied(ctx, tx.ID); err != nil {
			log.WithError(err).Error("failed to mark transaction as applied")
			return err
		}
		tx.Applied = true
		s.notify(ctx, tx, log)
		return nil

	case errors.Is(err, ErrConsistencyViolation), errors.Is(err, ErrNotFound):
		if errors.Is(err, ErrNotFound) {
			metrics.ConsistencyViolations.WithLabelValues(string(tx.Type)).Inc()
		}
		if ferr := s.txs.Freeze(ctx, tx.ID); ferr != nil {
			log.WithError(ferr).Error("failed to freeze transaction")
		}
		log.WithError(err).Error("transaction outcome disagrees with recorded state, frozen for operator review")
		return newError(ErrConsistencyViolation, err, "transaction %d escalated", tx.ID)

	default:
		metrics.HookFailures.WithLabelValues(string(tx.Type)).Inc()
		log.WithError(err).Warn("failed to apply transaction outcome, will retry")
		return err
	}
}

func (s *reconcileService) notify(ctx context.Context, tx models.Transaction, log *logrus.Entry) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyResolved(ctx, tx); err != nil {
		log.WithError(err).Warn("failed to publish resolved transaction")
	}
}

func (s *reconcileService) ApplyStatus(ctx context.Context, update StatusUpdate) (*models.Transaction, error) {
	if err := s.validate.Struct(update); err != nil {
		return nil, newError(ErrValidation, err, "invalid status update")
	}
	if update.ContractAddress != nil && !utils.IsValidEthereumAddress(*update.ContractAddress) {
		return nil, newError(ErrValidation, nil, "contract address %q is not an ethereum address", *update.ContractAddress)
	}
	outcome, _ := models.OutcomeFromStatus(update.Status)

	tx, err := s.txs.Resolve(ctx, update.Hash, update.ChainID, outcome, update.ContractAddress)
	if err != nil && !errors.Is(err, ErrAlreadyResolved) {
		return tx, err
	}
	// a redelivered update still applies the outcome if the first delivery crashed before it did
	if tx.Applied {
		return tx, err
	}
	if applyErr := s.apply(ctx, *tx); applyErr != nil {
		return tx, applyErr
	}
	tx.Applied = true
	return tx, err
}
