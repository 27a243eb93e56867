package services

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rxtech-lab/vesting-mcp/internal/metrics"
	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RevocationService takes back the unvested part of a recipient's allocation.
// Only one revocation per recipient may be pending at a time.
type RevocationService interface {
	InitiateRevoke(ctx context.Context, organizationID string, req RevokeRequest) (*models.Revoking, error)
	OnRevokeResolved(ctx context.Context, revokingID string, outcome models.Outcome) error
	Get(ctx context.Context, organizationID, revokingID string) (*models.Revoking, error)
	GetByTransaction(ctx context.Context, transactionID uint) (*models.Revoking, error)
	ListByVesting(ctx context.Context, organizationID, vestingID string) ([]models.Revoking, error)
}

type RevokeRequest struct {
	VestingID string        `json:"vesting_id" validate:"required"`
	Recipient string        `json:"recipient" validate:"required,eth_addr"`
	Submit    SubmitRequest `json:"submit"`
}

type revocationService struct {
	db       *gorm.DB
	chains   ChainService
	txs      TransactionService
	adapter  ChainAdapter
	logger   *logrus.Logger
	validate *validator.Validate
	locks    *keyedMutex
	now      func() time.Time
}

// NewRevocationService creates a RevocationService. now is the clock unvested amounts are
// computed against; nil means time.Now.
func NewRevocationService(db *gorm.DB, chains ChainService, txs TransactionService, adapter ChainAdapter, logger *logrus.Logger, now func() time.Time) RevocationService {
	if now == nil {
		now = time.Now
	}
	return &revocationService{
		db:       db,
		chains:   chains,
		txs:      txs,
		adapter:  adapter,
		logger:   logger,
		validate: validator.New(),
		locks:    newKeyedMutex(),
		now:      now,
	}
}

func (s *revocationService) InitiateRevoke(ctx context.Context, organizationID string, req RevokeRequest) (*models.Revoking, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, newError(ErrValidation, err, "invalid revocation")
	}

	recipientAddress := utils.ChecksumAddress(req.Recipient)
	unlock := s.locks.Lock(req.VestingID + "/" + recipientAddress)
	defer unlock()

	db := s.db.WithContext(ctx)
	contract, err := findOrganizationContract(db, organizationID, req.VestingID)
	if err != nil {
		return nil, err
	}
	if contract.Status != models.VestingStatusActive {
		return nil, newError(ErrInvalidState, nil, "contract %s is %s, revocation needs an ACTIVE contract", contract.ID, contract.Status)
	}
	recipient, err := findRecipient(db, organizationID, contract.ID, recipientAddress)
	if err != nil {
		return nil, err
	}
	if recipient.Status != models.RecipientStatusAdded {
		return nil, newError(ErrInvalidState, nil, "recipient %s is %s, only ADDED recipients can be revoked", recipientAddress, recipient.Status)
	}

	var pending int64
	err = db.Model(&models.Revoking{}).
		Where("vesting_id = ? AND recipient = ? AND status = ?", contract.ID, recipientAddress, models.RevokingStatusPending).
		Count(&pending).Error
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, newError(ErrRevocationInProgress, nil, "recipient %s already has a pending revocation", recipientAddress)
	}
	if recipient.IsRevoked() {
		return nil, newError(ErrNothingToRevoke, nil, "recipient %s was already revoked", recipientAddress)
	}

	revokePoint := s.now().UTC()
	amount, err := vestedForContract(contract, recipient, revokePoint)
	if err != nil {
		return nil, err
	}
	if amount.Unvested.Sign() == 0 {
		return nil, newError(ErrNothingToRevoke, nil, "recipient %s is fully vested", recipientAddress)
	}

	chain, err := s.chains.GetChain(ctx, contract.ChainID)
	if err != nil {
		return nil, err
	}
	hash, err := submitToChain(ctx, s.adapter, *chain, req.Submit)
	if err != nil {
		return nil, err
	}

	revoking := &models.Revoking{
		ID:             uuid.New().String(),
		VestingID:      contract.ID,
		Recipient:      recipientAddress,
		OrganizationID: organizationID,
		ChainID:        contract.ChainID,
		Status:         models.RevokingStatusPending,
		UnvestedAmount: amount.Unvested.String(),
		VestedAmount:   amount.Vested.String(),
		RevokePoint:    revokePoint,
	}

	metadata := models.JSON{}
	for k, v := range req.Submit.Metadata {
		metadata[k] = v
	}
	metadata[models.MetadataVestingID] = contract.ID
	metadata[models.MetadataRecipient] = recipientAddress
	metadata[models.MetadataRevokingID] = revoking.ID

	err = db.Transaction(func(tx *gorm.DB) error {
		record, err := s.txs.SubmitTx(tx, SubmitTransactionRequest{
			Type:           models.TransactionTypeRevokeClaim,
			ChainID:        contract.ChainID,
			Hash:           hash,
			SafeHash:       req.Submit.SafeHash,
			To:             req.Submit.To,
			OrganizationID: organizationID,
			Metadata:       metadata,
		})
		if err != nil {
			return err
		}
		if err := requirePending(record); err != nil {
			return err
		}

		revoking.TransactionID = record.ID
		if err := tx.Create(revoking).Error; err != nil {
			// another process won the race for this recipient
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newError(ErrRevocationInProgress, err, "recipient %s already has a pending revocation", recipientAddress)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"vesting_id": contract.ID,
		"recipient":  recipientAddress,
		"unvested":   revoking.UnvestedAmount,
		"hash":       hash,
	}).Info("revocation submitted")
	return revoking, nil
}

func (s *revocationService) OnRevokeResolved(ctx context.Context, revokingID string, outcome models.Outcome) error {
	if outcome.IsZero() {
		return newError(ErrValidation, nil, "revocation outcome is required")
	}

	db := s.db.WithContext(ctx)
	var revoking models.Revoking
	if err := db.Where("id = ?", revokingID).First(&revoking).Error; err != nil {
		return notFoundOr(err, "revocation")
	}

	next := models.RevokingStatusFailed
	if outcome.Succeeded() {
		next = models.RevokingStatusSuccess
	}

	if revoking.IsTerminal() {
		if revoking.Status == next {
			return nil
		}
		return s.violation("revocation %s is %s, cannot become %s", revokingID, revoking.Status, next)
	}

	log := s.logger.WithFields(logrus.Fields{"revoking_id": revokingID, "vesting_id": revoking.VestingID, "recipient": revoking.Recipient})

	if !outcome.Succeeded() {
		err := db.Model(&models.Revoking{}).
			Where("id = ? AND status = ?", revokingID, models.RevokingStatusPending).
			Update("status", models.RevokingStatusFailed).Error
		if err != nil {
			return err
		}
		log.Warn("revocation failed")
		return nil
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Revoking{}).
			Where("id = ? AND status = ?", revokingID, models.RevokingStatusPending).
			Update("status", models.RevokingStatusSuccess)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errLostRace
		}

		result = tx.Model(&models.VestingRecipient{}).
			Where("vesting_id = ? AND address = ? AND revoked_at IS NULL", revoking.VestingID, revoking.Recipient).
			Updates(map[string]interface{}{
				"revoked_at":       revoking.RevokePoint,
				"vested_at_revoke": revoking.VestedAmount,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return s.violation("recipient %s of contract %s was already revoked", revoking.Recipient, revoking.VestingID)
		}
		return nil
	})
	if errors.Is(err, errLostRace) {
		return s.OnRevokeResolved(ctx, revokingID, outcome)
	}
	if err != nil {
		return err
	}

	log.WithField("unvested", revoking.UnvestedAmount).Info("recipient revoked")
	return nil
}

func (s *revocationService) violation(format string, args ...any) error {
	metrics.ConsistencyViolations.WithLabelValues(string(models.TransactionTypeRevokeClaim)).Inc()
	err := newError(ErrConsistencyViolation, nil, format, args...)
	s.logger.WithField("type", models.TransactionTypeRevokeClaim).Error(err.Error())
	return err
}

func (s *revocationService) Get(ctx context.Context, organizationID, revokingID string) (*models.Revoking, error) {
	var revoking models.Revoking
	err := s.db.WithContext(ctx).Where("id = ? AND organization_id = ?", revokingID, organizationID).First(&revoking).Error
	if err != nil {
		return nil, notFoundOr(err, "revocation")
	}
	return &revoking, nil
}

func (s *revocationService) GetByTransaction(ctx context.Context, transactionID uint) (*models.Revoking, error) {
	var revoking models.Revoking
	err := s.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&revoking).Error
	if err != nil {
		return nil, notFoundOr(err, "revocation")
	}
	return &revoking, nil
}

func (s *revocationService) ListByVesting(ctx context.Context, organizationID, vestingID string) ([]models.Revoking, error) {
	var revokings []models.Revoking
	err := s.db.WithContext(ctx).
		Where("vesting_id = ? AND organization_id = ?", vestingID, organizationID).
		Order("created_at DESC").
		Find(&revokings).Error
	return revokings, err
}
