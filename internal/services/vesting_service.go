package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rxtech-lab/vesting-mcp/internal/metrics"
	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/schedule"
	"github.com/rxtech-lab/vesting-mcp/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// VestingService owns vesting contracts and their recipients and drives the deployment
// state machine DRAFT -> DEPLOYING -> DEPLOYED -> ACTIVE -> DEACTIVATED.
type VestingService interface {
	CreateDraft(ctx context.Context, organizationID string, req CreateDraftRequest) (*models.VestingContract, error)
	SubmitDeployment(ctx context.Context, organizationID, contractID string, req SubmitRequest) (*models.Transaction, error)
	OnDeploymentResolved(ctx context.Context, contractID string, outcome DeploymentOutcome) error
	SubmitFunding(ctx context.Context, organizationID, contractID string, req SubmitRequest) (*models.Transaction, error)
	OnFundingResolved(ctx context.Context, contractID string, transactionID uint, outcome models.Outcome) error
	Activate(ctx context.Context, organizationID, contractID string) (*models.VestingContract, error)
	Deactivate(ctx context.Context, organizationID, contractID string) (*models.VestingContract, error)
	AddRecipients(ctx context.Context, organizationID, contractID string, recipients []RecipientInput, req SubmitRequest) (*models.Transaction, error)
	OnClaimsResolved(ctx context.Context, transactionID uint, outcome models.Outcome) error
	RecordMilestone(ctx context.Context, organizationID, contractID string, sequence int) (*models.VestingContract, error)
	// VestedAmount computes the vested split of one recipient at the given time, or of the
	// whole contract when recipient is empty.
	VestedAmount(ctx context.Context, organizationID, contractID, recipient string, at time.Time) (schedule.VestedAmount, error)
	Get(ctx context.Context, organizationID, contractID string) (*models.VestingContract, error)
	List(ctx context.Context, organizationID string) ([]models.VestingContract, error)
	ListRecipients(ctx context.Context, organizationID, contractID string) ([]models.VestingRecipient, error)
	GetRecipient(ctx context.Context, organizationID, contractID, address string) (*models.VestingRecipient, error)
}

type CreateDraftRequest struct {
	TemplateID string `json:"template_id" validate:"required"`
	ChainID    uint   `json:"chain_id" validate:"required"`
	TokenID    string `json:"token_id"`
	Name       string `json:"name" validate:"required"`
}

// DeploymentOutcome is what the chain reported for a deployment transaction.
type DeploymentOutcome struct {
	TransactionID uint
	Outcome       models.Outcome
	Address       *string
}

type RecipientInput struct {
	Address    string `json:"address" validate:"required,eth_addr"`
	Allocation string `json:"allocation" validate:"required,numeric"`
}

type vestingService struct {
	db       *gorm.DB
	chains   ChainService
	txs      TransactionService
	adapter  ChainAdapter
	logger   *logrus.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewVestingService(db *gorm.DB, chains ChainService, txs TransactionService, adapter ChainAdapter, logger *logrus.Logger) VestingService {
	return &vestingService{
		db:       db,
		chains:   chains,
		txs:      txs,
		adapter:  adapter,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *vestingService) CreateDraft(ctx context.Context, organizationID string, req CreateDraftRequest) (*models.VestingContract, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, newError(ErrValidation, err, "invalid draft")
	}

	db := s.db.WithContext(ctx)
	template, err := findTemplate(db, organizationID, req.TemplateID)
	if err != nil {
		return nil, err
	}
	// templates are validated on write, but the rules may have tightened since
	if err := validateSchedule(template.Schedule); err != nil {
		return nil, err
	}
	if _, err := s.chains.GetChain(ctx, req.ChainID); err != nil {
		return nil, err
	}

	tokenID := req.TokenID
	if tokenID == "" && template.TokenID != nil {
		tokenID = *template.TokenID
	}
	if tokenID != "" {
		token, err := findToken(db, organizationID, tokenID)
		if err != nil {
			return nil, err
		}
		if token.ChainID != req.ChainID {
			return nil, newError(ErrValidation, nil, "token %s is on chain %d, not %d", tokenID, token.ChainID, req.ChainID)
		}
	}

	contract := &models.VestingContract{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		TokenID:        tokenID,
		TemplateID:     template.ID,
		Name:           req.Name,
		ChainID:        req.ChainID,
		Status:         models.VestingStatusDraft,
		Schedule:       template.Schedule,
	}
	if err := db.Create(contract).Error; err != nil {
		return nil, err
	}
	return contract, nil
}

func (s *vestingService) SubmitDeployment(ctx context.Context, organizationID, contractID string, req SubmitRequest) (*models.Transaction, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, newError(ErrValidation, err, "invalid submission")
	}

	contract, err := s.Get(ctx, organizationID, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != models.VestingStatusDraft {
		return nil, newError(ErrInvalidState, nil, "contract %s is %s, only a DRAFT can be deployed", contractID, contract.Status)
	}

	chain, err := s.chains.GetChain(ctx, contract.ChainID)
	if err != nil {
		return nil, err
	}
	hash, err := submitToChain(ctx, s.adapter, *chain, req)
	if err != nil {
		return nil, err
	}

	var record *models.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err = s.txs.SubmitTx(tx, s.transactionRequest(contract, models.TransactionTypeVestingDeployment, hash, req))
		if err != nil {
			return err
		}
		if err := requirePending(record); err != nil {
			return err
		}

		result := tx.Model(&models.VestingContract{}).
			Where("id = ? AND status = ?", contract.ID, models.VestingStatusDraft).
			Updates(map[string]interface{}{
				"status":         models.VestingStatusDeploying,
				"transaction_id": record.ID,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return newError(ErrInvalidState, nil, "contract %s left DRAFT while the deployment was submitted", contractID)
		}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"vesting_id": contractID, "hash": hash}).
			Error("deployment was broadcast but could not be recorded")
		return nil, err
	}

	return record, nil
}

func (s *vestingService) transactionRequest(contract *models.VestingContract, txType models.TransactionType, hash string, req SubmitRequest) SubmitTransactionRequest {
	metadata := models.JSON{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata[models.MetadataVestingID] = contract.ID

	return SubmitTransactionRequest{
		Type:           txType,
		ChainID:        contract.ChainID,
		Hash:           hash,
		SafeHash:       req.SafeHash,
		To:             req.To,
		OrganizationID: contract.OrganizationID,
		Metadata:       metadata,
	}
}

func (s *vestingService) OnDeploymentResolved(ctx context.Context, contractID string, outcome DeploymentOutcome) error {
	if outcome.Outcome.IsZero() {
		return newError(ErrValidation, nil, "deployment outcome is required")
	}

	db := s.db.WithContext(ctx)
	contract, err := findContract(db, contractID)
	if err != nil {
		return err
	}
	log := s.logger.WithFields(logrus.Fields{
		"vesting_id":     contractID,
		"transaction_id": outcome.TransactionID,
		"outcome":        outcome.Outcome,
	})

	if contract.TransactionID == nil || *contract.TransactionID != outcome.TransactionID {
		if !outcome.Outcome.Succeeded() {
			log.Info("ignoring failure of a superseded deployment attempt")
			return nil
		}
		return s.violation(models.TransactionTypeVestingDeployment,
			"contract %s is tracking another deployment, transaction %d cannot have deployed it", contractID, outcome.TransactionID)
	}

	switch contract.Status {
	case models.VestingStatusDeploying:
		if !outcome.Outcome.Succeeded() {
			result := db.Model(&models.VestingContract{}).
				Where("id = ? AND status = ? AND transaction_id = ?", contractID, models.VestingStatusDeploying, outcome.TransactionID).
				Update("status", models.VestingStatusDraft)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				// another worker applied an outcome first, judge again against its result
				return s.OnDeploymentResolved(ctx, contractID, outcome)
			}
			log.Warn("vesting contract deployment failed, contract is back in DRAFT")
			return newError(ErrDeploymentFailed, nil, "deployment of contract %s failed", contractID)
		}

		if outcome.Address == nil || *outcome.Address == "" {
			return s.violation(models.TransactionTypeVestingDeployment,
				"deployment of contract %s succeeded without a contract address", contractID)
		}
		address := utils.ChecksumAddress(*outcome.Address)
		err := db.Transaction(func(tx *gorm.DB) error {
			result := tx.Model(&models.VestingContract{}).
				Where("id = ? AND status = ? AND transaction_id = ?", contractID, models.VestingStatusDeploying, outcome.TransactionID).
				Updates(map[string]interface{}{
					"status":      models.VestingStatusDeployed,
					"address":     address,
					"is_deployed": true,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return errLostRace
			}
			return lockTemplate(tx, contract.TemplateID, s.now())
		})
		if errors.Is(err, errLostRace) {
			return s.OnDeploymentResolved(ctx, contractID, outcome)
		}
		if err != nil {
			return err
		}
		log.WithField("address", address).Info("vesting contract deployed")
		return nil

	case models.VestingStatusDraft:
		// this attempt already failed
		if !outcome.Outcome.Succeeded() {
			return nil
		}
		return s.violation(models.TransactionTypeVestingDeployment,
			"deployment %d of contract %s was recorded as failed", outcome.TransactionID, contractID)

	default:
		if !outcome.Outcome.Succeeded() {
			return s.violation(models.TransactionTypeVestingDeployment,
				"contract %s is %s, its deployment cannot have failed", contractID, contract.Status)
		}
		if outcome.Address != nil && contract.Address != nil && utils.ChecksumAddress(*outcome.Address) != *contract.Address {
			return s.violation(models.TransactionTypeVestingDeployment,
				"contract %s is deployed at %s, not %s", contractID, *contract.Address, *outcome.Address)
		}
		return nil
	}
}

func (s *vestingService) violation(txType models.TransactionType, format string, args ...any) error {
	metrics.ConsistencyViolations.WithLabelValues(string(txType)).Inc()
	err := newError(ErrConsistencyViolation, nil, format, args...)
	s.logger.WithField("type", txType).Error(err.Error())
	return err
}

func (s *vestingService) SubmitFunding(ctx context.Context, organizationID, contractID string, req SubmitRequest) (*models.Transaction, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, newError(ErrValidation, err, "invalid submission")
	}

	contract, err := s.Get(ctx, organizationID, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != models.VestingStatusDeployed {
		return nil, newError(ErrInvalidState, nil, "contract %s is %s, only a DEPLOYED contract can be funded", contractID, contract.Status)
	}
	if contract.IsFunded {
		return nil, newError(ErrInvalidState, nil, "contract %s is already funded", contractID)
	}
	if contract.FundingTransactionID != nil {
		return nil, newError(ErrInvalidState, nil, "contract %s has a funding transaction in flight", contractID)
	}

	chain, err := s.chains.GetChain(ctx, contract.ChainID)
	if err != nil {
		return nil, err
	}
	hash, err := submitToChain(ctx, s.adapter, *chain, req)
	if err != nil {
		return nil, err
	}

	var record *models.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err = s.txs.SubmitTx(tx, s.transactionRequest(contract, models.TransactionTypeFundingVesting, hash, req))
		if err != nil {
			return err
		}
		if err := requirePending(record); err != nil {
			return err
		}

		result := tx.Model(&models.VestingContract{}).
			Where("id = ? AND status = ? AND is_funded = ? AND funding_transaction_id IS NULL", contract.ID, models.VestingStatusDeployed, false).
			Update("funding_transaction_id", record.ID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return newError(ErrInvalidState, nil, "contract %s changed while the funding was submitted", contractID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *vestingService) OnFundingResolved(ctx context.Context, contractID string, transactionID uint, outcome models.Outcome) error {
	if outcome.IsZero() {
		return newError(ErrValidation, nil, "funding outcome is required")
	}

	db := s.db.WithContext(ctx)
	contract, err := findContract(db, contractID)
	if err != nil {
		return err
	}

	if contract.FundingTransactionID == nil || *contract.FundingTransactionID != transactionID {
		if !outcome.Succeeded() {
			return nil
		}
		return s.violation(models.TransactionTypeFundingVesting,
			"funding %d succeeded but contract %s is not waiting for it", transactionID, contractID)
	}

	if outcome.Succeeded() {
		if contract.IsFunded {
			return nil
		}
		err := db.Model(&models.VestingContract{}).
			Where("id = ? AND funding_transaction_id = ?", contractID, transactionID).
			Update("is_funded", true).Error
		if err != nil {
			return err
		}
		s.logger.WithField("vesting_id", contractID).Info("vesting contract funded")
		return nil
	}

	if contract.IsFunded {
		return s.violation(models.TransactionTypeFundingVesting,
			"contract %s is funded by transaction %d, it cannot have failed", contractID, transactionID)
	}
	// clearing the reference lets the organization submit the funding again
	return db.Model(&models.VestingContract{}).
		Where("id = ? AND funding_transaction_id = ?", contractID, transactionID).
		Update("funding_transaction_id", nil).Error
}

func (s *vestingService) Activate(ctx context.Context, organizationID, contractID string) (*models.VestingContract, error) {
	result := s.db.WithContext(ctx).Model(&models.VestingContract{}).
		Where("id = ? AND organization_id = ? AND status = ? AND is_funded = ?", contractID, organizationID, models.VestingStatusDeployed, true).
		Updates(map[string]interface{}{
			"status":    models.VestingStatusActive,
			"is_active": true,
		})
	if result.Error != nil {
		return nil, result.Error
	}

	contract, err := s.Get(ctx, organizationID, contractID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		if contract.Status == models.VestingStatusDeployed {
			return nil, newError(ErrInvalidState, nil, "contract %s must be funded before it is activated", contractID)
		}
		return nil, newError(ErrInvalidState, nil, "contract %s is %s, only a DEPLOYED contract can be activated", contractID, contract.Status)
	}
	return contract, nil
}

func (s *vestingService) Deactivate(ctx context.Context, organizationID, contractID string) (*models.VestingContract, error) {
	result := s.db.WithContext(ctx).Model(&models.VestingContract{}).
		Where("id = ? AND organization_id = ? AND status = ?", contractID, organizationID, models.VestingStatusActive).
		Updates(map[string]interface{}{
			"status":    models.VestingStatusDeactivated,
			"is_active": false,
		})
	if result.Error != nil {
		return nil, result.Error
	}

	contract, err := s.Get(ctx, organizationID, contractID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, newError(ErrInvalidState, nil, "contract %s is %s, only an ACTIVE contract can be deactivated", contractID, contract.Status)
	}
	return contract, nil
}

func (s *vestingService) AddRecipients(ctx context.Context, organizationID, contractID string, recipients []RecipientInput, req SubmitRequest) (*models.Transaction, error) {
	if len(recipients) == 0 {
		return nil, newError(ErrValidation, nil, "at least one recipient is required")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, newError(ErrValidation, err, "invalid submission")
	}

	allocations := make(map[string]*big.Int, len(recipients))
	order := make([]string, 0, len(recipients))
	added := new(big.Int)
	for i, r := range recipients {
		if err := s.validate.Struct(r); err != nil {
			return nil, newError(ErrValidation, err, "invalid recipient %d", i)
		}
		allocation, err := schedule.ParseAmount(r.Allocation)
		if err != nil || allocation.Sign() == 0 {
			return nil, newError(ErrValidation, err, "recipient %s needs a positive allocation", r.Address)
		}
		address := utils.ChecksumAddress(r.Address)
		if _, dup := allocations[address]; dup {
			return nil, newError(ErrValidation, nil, "recipient %s is listed twice", address)
		}
		allocations[address] = allocation
		order = append(order, address)
		added.Add(added, allocation)
	}

	contract, err := s.Get(ctx, organizationID, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != models.VestingStatusDeployed && contract.Status != models.VestingStatusActive {
		return nil, newError(ErrInvalidState, nil, "contract %s is %s, recipients need a deployed contract", contractID, contract.Status)
	}
	def, err := schedule.Parse(contract.Schedule)
	if err != nil {
		return nil, newError(ErrValidation, err, "invalid schedule")
	}

	existing, err := s.ListRecipients(ctx, organizationID, contractID)
	if err != nil {
		return nil, err
	}
	reused := make(map[string]string)
	committed := new(big.Int)
	for _, r := range existing {
		if _, ok := allocations[r.Address]; ok {
			if r.Status != models.RecipientStatusPending {
				return nil, newError(ErrInvalidState, nil, "recipient %s is already %s", r.Address, r.Status)
			}
			reused[r.Address] = r.ID
			continue
		}
		allocation, err := schedule.ParseAmount(r.Allocation)
		if err != nil {
			return nil, fmt.Errorf("recipient %s has a corrupt allocation: %w", r.Address, err)
		}
		committed.Add(committed, allocation)
	}
	if committed.Add(committed, added).Cmp(def.Total()) > 0 {
		return nil, newError(ErrValidation, nil, "recipient allocations of %s exceed the schedule total of %s", committed, def.Total())
	}

	chain, err := s.chains.GetChain(ctx, contract.ChainID)
	if err != nil {
		return nil, err
	}
	hash, err := submitToChain(ctx, s.adapter, *chain, req)
	if err != nil {
		return nil, err
	}

	var record *models.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err = s.txs.SubmitTx(tx, s.transactionRequest(contract, models.TransactionTypeAddingClaims, hash, req))
		if err != nil {
			return err
		}
		if err := requirePending(record); err != nil {
			return err
		}

		for _, address := range order {
			if id, ok := reused[address]; ok {
				result := tx.Model(&models.VestingRecipient{}).
					Where("id = ? AND status = ?", id, models.RecipientStatusPending).
					Updates(map[string]interface{}{
						"allocation":           allocations[address].String(),
						"status":               models.RecipientStatusAdding,
						"claim_transaction_id": record.ID,
					})
				if result.Error != nil {
					return result.Error
				}
				if result.RowsAffected == 0 {
					return newError(ErrInvalidState, nil, "recipient %s changed while the claims were submitted", address)
				}
				continue
			}

			claimID := record.ID
			recipient := &models.VestingRecipient{
				ID:                 uuid.New().String(),
				VestingID:          contract.ID,
				OrganizationID:     organizationID,
				Address:            address,
				Allocation:         allocations[address].String(),
				Status:             models.RecipientStatusAdding,
				ClaimTransactionID: &claimID,
			}
			if err := tx.Create(recipient).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return newError(ErrInvalidState, err, "recipient %s was added concurrently", address)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *vestingService) OnClaimsResolved(ctx context.Context, transactionID uint, outcome models.Outcome) error {
	if outcome.IsZero() {
		return newError(ErrValidation, nil, "claims outcome is required")
	}

	next := models.RecipientStatusPending
	if outcome.Succeeded() {
		next = models.RecipientStatusAdded
	}

	db := s.db.WithContext(ctx)
	result := db.Model(&models.VestingRecipient{}).
		Where("claim_transaction_id = ? AND status = ?", transactionID, models.RecipientStatusAdding).
		Update("status", next)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		s.logger.WithFields(logrus.Fields{"transaction_id": transactionID, "recipients": result.RowsAffected}).
			Infof("recipients moved to %s", next)
		return nil
	}

	// replay: everything still attached to this transaction must already agree with the outcome
	var mismatched int64
	err := db.Model(&models.VestingRecipient{}).
		Where("claim_transaction_id = ? AND status <> ?", transactionID, next).
		Count(&mismatched).Error
	if err != nil {
		return err
	}
	if mismatched > 0 {
		return s.violation(models.TransactionTypeAddingClaims,
			"claims transaction %d resolved %s but %d recipients disagree", transactionID, outcome, mismatched)
	}
	return nil
}

func (s *vestingService) RecordMilestone(ctx context.Context, organizationID, contractID string, sequence int) (*models.VestingContract, error) {
	var contract *models.VestingContract
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		contract, err = findOrganizationContract(tx, organizationID, contractID)
		if err != nil {
			return err
		}

		def, err := schedule.Parse(contract.Schedule)
		if err != nil {
			return newError(ErrValidation, err, "invalid schedule")
		}
		if def.Kind() != schedule.KindMilestone {
			return newError(ErrValidation, nil, "contract %s does not vest by milestones", contractID)
		}
		if !def.HasMilestone(sequence) {
			return newError(ErrValidation, nil, "contract %s has no milestone %d", contractID, sequence)
		}
		if contract.HasAchieved(sequence) {
			return nil
		}

		contract.AchievedMilestones = append(contract.AchievedMilestones, sequence)
		slices.Sort(contract.AchievedMilestones)
		return tx.Model(contract).Select("achieved_milestones").Updates(contract).Error
	})
	if err != nil {
		return nil, err
	}
	return contract, nil
}

func (s *vestingService) VestedAmount(ctx context.Context, organizationID, contractID, recipient string, at time.Time) (schedule.VestedAmount, error) {
	contract, err := s.Get(ctx, organizationID, contractID)
	if err != nil {
		return schedule.VestedAmount{}, err
	}
	if recipient == "" {
		return vestedForContract(contract, nil, at)
	}

	r, err := s.GetRecipient(ctx, organizationID, contractID, recipient)
	if err != nil {
		return schedule.VestedAmount{}, err
	}
	return vestedForContract(contract, r, at)
}

// vestedForContract applies the contract's schedule to a recipient's allocation. A revoked
// recipient keeps what had vested at the revocation and nothing more is owed.
func vestedForContract(contract *models.VestingContract, recipient *models.VestingRecipient, at time.Time) (schedule.VestedAmount, error) {
	if recipient != nil && recipient.IsRevoked() {
		vested, err := schedule.ParseAmount(recipient.VestedAtRevoke)
		if err != nil {
			return schedule.VestedAmount{}, fmt.Errorf("recipient %s has a corrupt revocation snapshot: %w", recipient.Address, err)
		}
		return schedule.VestedAmount{Vested: vested, Unvested: new(big.Int)}, nil
	}

	def, err := schedule.Parse(contract.Schedule)
	if err != nil {
		return schedule.VestedAmount{}, newError(ErrValidation, err, "invalid schedule")
	}
	if recipient != nil {
		allocation, err := schedule.ParseAmount(recipient.Allocation)
		if err != nil {
			return schedule.VestedAmount{}, fmt.Errorf("recipient %s has a corrupt allocation: %w", recipient.Address, err)
		}
		if def, err = def.WithTotal(allocation); err != nil {
			return schedule.VestedAmount{}, newError(ErrValidation, err, "invalid allocation")
		}
	}

	achieved := slices.Clone(contract.AchievedMilestones)
	for _, sequence := range def.AchievedByTime(at) {
		if !slices.Contains(achieved, sequence) {
			achieved = append(achieved, sequence)
		}
	}
	return schedule.ComputeVested(def, schedule.Reference{At: at, Achieved: achieved})
}

func (s *vestingService) Get(ctx context.Context, organizationID, contractID string) (*models.VestingContract, error) {
	return findOrganizationContract(s.db.WithContext(ctx), organizationID, contractID)
}

func findOrganizationContract(db *gorm.DB, organizationID, contractID string) (*models.VestingContract, error) {
	var contract models.VestingContract
	err := db.Where("id = ? AND organization_id = ?", contractID, organizationID).First(&contract).Error
	if err != nil {
		return nil, notFoundOr(err, "vesting contract")
	}
	return &contract, nil
}

func findContract(db *gorm.DB, contractID string) (*models.VestingContract, error) {
	var contract models.VestingContract
	if err := db.Where("id = ?", contractID).First(&contract).Error; err != nil {
		return nil, notFoundOr(err, "vesting contract")
	}
	return &contract, nil
}

func (s *vestingService) List(ctx context.Context, organizationID string) ([]models.VestingContract, error) {
	var contracts []models.VestingContract
	err := s.db.WithContext(ctx).Where("organization_id = ?", organizationID).Order("created_at DESC").Find(&contracts).Error
	return contracts, err
}

func (s *vestingService) ListRecipients(ctx context.Context, organizationID, contractID string) ([]models.VestingRecipient, error) {
	var recipients []models.VestingRecipient
	err := s.db.WithContext(ctx).
		Where("vesting_id = ? AND organization_id = ?", contractID, organizationID).
		Order("created_at").
		Find(&recipients).Error
	return recipients, err
}

func (s *vestingService) GetRecipient(ctx context.Context, organizationID, contractID, address string) (*models.VestingRecipient, error) {
	return findRecipient(s.db.WithContext(ctx), organizationID, contractID, address)
}

func findRecipient(db *gorm.DB, organizationID, contractID, address string) (*models.VestingRecipient, error) {
	var recipient models.VestingRecipient
	err := db.Where("vesting_id = ? AND organization_id = ? AND address = ?", contractID, organizationID, utils.ChecksumAddress(address)).
		First(&recipient).Error
	if err != nil {
		return nil, notFoundOr(err, "recipient")
	}
	return &recipient, nil
}
