package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/vesting-mcp/internal/metrics"
	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const pendingPageSize = 100

type TransactionService interface {
	// Submit records a PENDING transaction. Submitting a hash already known on the chain
	// returns the existing record when it belongs to the same submission, meaning same type,
	// organization and owning entity. Any other reuse of the hash is an ErrInvalidState.
	Submit(ctx context.Context, req SubmitTransactionRequest) (*models.Transaction, error)
	// SubmitTx is Submit running inside the caller's database transaction.
	SubmitTx(tx *gorm.DB, req SubmitTransactionRequest) (*models.Transaction, error)
	// Resolve moves a PENDING transaction to its terminal outcome.
	Resolve(ctx context.Context, hash string, chainID uint, outcome models.Outcome, contractAddress *string) (*models.Transaction, error)
	PendingByOrganization(ctx context.Context, organizationID string, afterID uint) iter.Seq2[models.Transaction, error]
	ListPending(ctx context.Context, afterID uint, limit int) ([]models.Transaction, error)
	ListUnapplied(ctx context.Context, afterID uint, limit int) ([]models.Transaction, error)
	ListByOrganization(ctx context.Context, organizationID string, status *models.TransactionStatus) ([]models.Transaction, error)
	MarkApplied(ctx context.Context, id uint) error
	// Freeze takes a transaction out of reconciliation until an operator looks at it.
	Freeze(ctx context.Context, id uint) error
	Get(ctx context.Context, organizationID string, id uint) (*models.Transaction, error)
	GetByID(ctx context.Context, id uint) (*models.Transaction, error)
	GetByHash(ctx context.Context, hash string, chainID uint) (*models.Transaction, error)
}

type SubmitTransactionRequest struct {
	Type           models.TransactionType `json:"type" validate:"required"`
	ChainID        uint                   `json:"chain_id" validate:"required"`
	Hash           string                 `json:"hash" validate:"required"`
	SafeHash       *string                `json:"safe_hash,omitempty"`
	To             string                 `json:"to"`
	OrganizationID string                 `json:"organization_id" validate:"required"`
	Metadata       models.JSON            `json:"metadata,omitempty"`
}

type transactionService struct {
	db       *gorm.DB
	logger   *logrus.Logger
	validate *validator.Validate
}

func NewTransactionService(db *gorm.DB, logger *logrus.Logger) TransactionService {
	return &transactionService{db: db, logger: logger, validate: validator.New()}
}

func (s *transactionService) Submit(ctx context.Context, req SubmitTransactionRequest) (*models.Transaction, error) {
	return s.SubmitTx(s.db.WithContext(ctx), req)
}

func (s *transactionService) SubmitTx(tx *gorm.DB, req SubmitTransactionRequest) (*models.Transaction, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, newError(ErrValidation, err, "invalid transaction")
	}
	if !req.Type.Valid() {
		return nil, newError(ErrValidation, nil, "unknown transaction type %q", req.Type)
	}

	existing, err := findByHash(tx, req.Hash, req.ChainID)
	if err == nil {
		return sameSubmission(existing, req)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	record := &models.Transaction{
		Hash:           req.Hash,
		ChainID:        req.ChainID,
		SafeHash:       req.SafeHash,
		Status:         models.TransactionStatusPending,
		To:             req.To,
		Type:           req.Type,
		OrganizationID: req.OrganizationID,
		Metadata:       req.Metadata,
	}
	// a savepoint keeps the caller's transaction usable when the insert races another submit
	err = tx.Transaction(func(inner *gorm.DB) error {
		return inner.Create(record).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if existing, err = findByHash(tx, req.Hash, req.ChainID); err != nil {
			return nil, err
		}
		return sameSubmission(existing, req)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	metrics.TransactionsSubmitted.WithLabelValues(string(req.Type)).Inc()
	return record, nil
}

// ownerKeys are the metadata keys naming the entity a transaction belongs to.
var ownerKeys = []string{models.MetadataVestingID, models.MetadataTokenID, models.MetadataRevokingID}

func sameSubmission(existing *models.Transaction, req SubmitTransactionRequest) (*models.Transaction, error) {
	if existing.Type != req.Type || existing.OrganizationID != req.OrganizationID {
		return nil, newError(ErrInvalidState, nil, "hash %s is already recorded for another submission", req.Hash)
	}
	for _, key := range ownerKeys {
		want, _ := req.Metadata[key].(string)
		got, _ := existing.MetadataString(key)
		if want != got {
			return nil, newError(ErrInvalidState, nil, "hash %s is already recorded for another %s", req.Hash, key)
		}
	}
	return existing, nil
}

// requirePending rejects a deduplicated record that already resolved. An entity linked to
// it would wait for hooks that have already run.
func requirePending(record *models.Transaction) error {
	if record.Status != models.TransactionStatusPending {
		return newError(ErrInvalidState, nil, "transaction %s is already %s", record.Hash, record.Status)
	}
	return nil
}

func findByHash(db *gorm.DB, hash string, chainID uint) (*models.Transaction, error) {
	var record models.Transaction
	if err := db.Where("hash = ? AND chain_id = ?", hash, chainID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *transactionService) Resolve(ctx context.Context, hash string, chainID uint, outcome models.Outcome, contractAddress *string) (*models.Transaction, error) {
	if outcome.IsZero() {
		return nil, newError(ErrValidation, nil, "a transaction can only be resolved to SUCCESS or FAILED")
	}
	db := s.db.WithContext(ctx)
	log := s.logger.WithFields(logrus.Fields{"hash": hash, "chain_id": chainID, "outcome": outcome})

	updates := map[string]interface{}{
		"status":      outcome.Status(),
		"resolved_at": time.Now(),
	}
	if contractAddress != nil {
		updates["contract_address"] = *contractAddress
	}
	result := db.Model(&models.Transaction{}).
		Where("hash = ? AND chain_id = ? AND status = ? AND frozen = ?", hash, chainID, models.TransactionStatusPending, false).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to resolve transaction: %w", result.Error)
	}

	record, err := findByHash(db, hash, chainID)
	if err != nil {
		return nil, notFoundOr(err, "transaction")
	}

	if result.RowsAffected == 1 {
		metrics.TransactionsResolved.WithLabelValues(string(record.Type), outcome.String()).Inc()
		log.WithField("type", record.Type).Info("transaction resolved")
		return record, nil
	}

	if record.Frozen {
		return record, newError(ErrConflictingResolution, nil, "transaction %s is frozen", hash)
	}
	if record.Status == outcome.Status() {
		log.Info("transaction already resolved with the same outcome")
		return record, newError(ErrAlreadyResolved, nil, "transaction %s is already %s", hash, record.Status)
	}

	conflict := outcome.Status()
	err = db.Model(&models.Transaction{}).Where("id = ?", record.ID).Updates(map[string]interface{}{
		"frozen":          true,
		"conflict_status": conflict,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to freeze transaction: %w", err)
	}
	record.Frozen = true
	record.ConflictStatus = &conflict

	metrics.ConflictingResolutions.Inc()
	log.WithField("recorded", record.Status).Error("transaction received a conflicting outcome, frozen for operator review")
	return record, newError(ErrConflictingResolution, nil, "transaction %s is %s, cannot resolve to %s", hash, record.Status, outcome)
}

// PendingByOrganization yields the organization's pending transactions in id order,
// starting after afterID. Pages are loaded lazily, so a consumer can stop early and
// resume later from the last id it saw.
func (s *transactionService) PendingByOrganization(ctx context.Context, organizationID string, afterID uint) iter.Seq2[models.Transaction, error] {
	return func(yield func(models.Transaction, error) bool) {
		cursor := afterID
		for {
			var page []models.Transaction
			err := s.db.WithContext(ctx).
				Where("organization_id = ? AND status = ? AND id > ?", organizationID, models.TransactionStatusPending, cursor).
				Order("id").
				Limit(pendingPageSize).
				Find(&page).Error
			if err != nil {
				yield(models.Transaction{}, err)
				return
			}
			for _, tx := range page {
				if !yield(tx, nil) {
					return
				}
				cursor = tx.ID
			}
			if len(page) < pendingPageSize {
				return
			}
		}
	}
}

func (s *transactionService) ListPending(ctx context.Context, afterID uint, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("status = ? AND frozen = ? AND id > ?", models.TransactionStatusPending, false, afterID).
		Order("id").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

func (s *transactionService) ListUnapplied(ctx context.Context, afterID uint, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("status <> ? AND applied = ? AND frozen = ? AND id > ?", models.TransactionStatusPending, false, false, afterID).
		Order("id").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

func (s *transactionService) ListByOrganization(ctx context.Context, organizationID string, status *models.TransactionStatus) ([]models.Transaction, error) {
	query := s.db.WithContext(ctx).Where("organization_id = ?", organizationID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var txs []models.Transaction
	err := query.Order("id DESC").Find(&txs).Error
	return txs, err
}

func (s *transactionService) MarkApplied(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.Transaction{}).Where("id = ?", id).Update("applied", true).Error
}

func (s *transactionService) Freeze(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.Transaction{}).Where("id = ?", id).Updates(map[string]interface{}{
		"frozen":  true,
		"applied": true,
	}).Error
}

func (s *transactionService) Get(ctx context.Context, organizationID string, id uint) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, organizationID).First(&tx).Error; err != nil {
		return nil, notFoundOr(err, "transaction")
	}
	return &tx, nil
}

func (s *transactionService) GetByID(ctx context.Context, id uint) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).First(&tx, id).Error; err != nil {
		return nil, notFoundOr(err, "transaction")
	}
	return &tx, nil
}

func (s *transactionService) GetByHash(ctx context.Context, hash string, chainID uint) (*models.Transaction, error) {
	record, err := findByHash(s.db.WithContext(ctx), hash, chainID)
	if err != nil {
		return nil, notFoundOr(err, "transaction")
	}
	return record, nil
}
