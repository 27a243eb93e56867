package services

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rxtech-lab/vesting-mcp/internal/metrics"
	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TokenService tracks the ERC-20 tokens that vesting contracts distribute
type TokenService interface {
	CreateToken(ctx context.Context, organizationID string, req CreateTokenRequest) (*models.Token, error)
	SubmitTokenDeployment(ctx context.Context, organizationID, tokenID string, req SubmitRequest) (*models.Transaction, error)
	OnTokenDeploymentResolved(ctx context.Context, tokenID string, transactionID uint, outcome models.Outcome, address *string) error
	Get(ctx context.Context, organizationID, tokenID string) (*models.Token, error)
	List(ctx context.Context, organizationID string) ([]models.Token, error)
}

type CreateTokenRequest struct {
	ChainID  uint   `json:"chain_id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Symbol   string `json:"symbol" validate:"required,max=11"`
	Decimals uint8  `json:"decimals" validate:"max=36"`
}

type tokenService struct {
	db       *gorm.DB
	chains   ChainService
	txs      TransactionService
	adapter  ChainAdapter
	logger   *logrus.Logger
	validate *validator.Validate
}

func NewTokenService(db *gorm.DB, chains ChainService, txs TransactionService, adapter ChainAdapter, logger *logrus.Logger) TokenService {
	return &tokenService{
		db:       db,
		chains:   chains,
		txs:      txs,
		adapter:  adapter,
		logger:   logger,
		validate: validator.New(),
	}
}

func (s *tokenService) CreateToken(ctx context.Context, organizationID string, req CreateTokenRequest) (*models.Token, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, newError(ErrValidation, err, "invalid token")
	}
	if _, err := s.chains.GetChain(ctx, req.ChainID); err != nil {
		return nil, err
	}

	token := &models.Token{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		ChainID:        req.ChainID,
		Name:           req.Name,
		Symbol:         req.Symbol,
		Decimals:       req.Decimals,
	}
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return nil, err
	}
	return token, nil
}

func (s *tokenService) SubmitTokenDeployment(ctx context.Context, organizationID, tokenID string, req SubmitRequest) (*models.Transaction, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, newError(ErrValidation, err, "invalid submission")
	}

	token, err := s.Get(ctx, organizationID, tokenID)
	if err != nil {
		return nil, err
	}
	if token.IsDeployed {
		return nil, newError(ErrInvalidState, nil, "token %s is already deployed", tokenID)
	}
	if token.TransactionID != nil {
		return nil, newError(ErrInvalidState, nil, "token %s has a deployment in flight", tokenID)
	}

	chain, err := s.chains.GetChain(ctx, token.ChainID)
	if err != nil {
		return nil, err
	}
	hash, err := submitToChain(ctx, s.adapter, *chain, req)
	if err != nil {
		return nil, err
	}

	metadata := models.JSON{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata[models.MetadataTokenID] = token.ID

	var record *models.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err = s.txs.SubmitTx(tx, SubmitTransactionRequest{
			Type:           models.TransactionTypeTokenDeployment,
			ChainID:        token.ChainID,
			Hash:           hash,
			SafeHash:       req.SafeHash,
			To:             req.To,
			OrganizationID: organizationID,
			Metadata:       metadata,
		})
		if err != nil {
			return err
		}
		if err := requirePending(record); err != nil {
			return err
		}

		result := tx.Model(&models.Token{}).
			Where("id = ? AND is_deployed = ? AND transaction_id IS NULL", token.ID, false).
			Update("transaction_id", record.ID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return newError(ErrInvalidState, nil, "token %s changed while the deployment was submitted", tokenID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *tokenService) OnTokenDeploymentResolved(ctx context.Context, tokenID string, transactionID uint, outcome models.Outcome, address *string) error {
	if outcome.IsZero() {
		return newError(ErrValidation, nil, "deployment outcome is required")
	}

	db := s.db.WithContext(ctx)
	var token models.Token
	if err := db.Where("id = ?", tokenID).First(&token).Error; err != nil {
		return notFoundOr(err, "token")
	}

	if token.TransactionID == nil || *token.TransactionID != transactionID {
		if !outcome.Succeeded() {
			return nil
		}
		return s.violation("token %s is not waiting for deployment %d", tokenID, transactionID)
	}

	if !outcome.Succeeded() {
		if token.IsDeployed {
			return s.violation("token %s is deployed by transaction %d, it cannot have failed", tokenID, transactionID)
		}
		return db.Model(&models.Token{}).
			Where("id = ? AND transaction_id = ?", tokenID, transactionID).
			Update("transaction_id", nil).Error
	}

	if token.IsDeployed {
		if address != nil && token.Address != nil && utils.ChecksumAddress(*address) != *token.Address {
			return s.violation("token %s is deployed at %s, not %s", tokenID, *token.Address, *address)
		}
		return nil
	}
	if address == nil || *address == "" {
		return s.violation("token deployment %d succeeded without a contract address", transactionID)
	}

	checksum := utils.ChecksumAddress(*address)
	err := db.Model(&models.Token{}).
		Where("id = ? AND transaction_id = ?", tokenID, transactionID).
		Updates(map[string]interface{}{
			"address":     checksum,
			"is_deployed": true,
		}).Error
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"token_id": tokenID, "address": checksum}).Info("token deployed")
	return nil
}

func (s *tokenService) violation(format string, args ...any) error {
	metrics.ConsistencyViolations.WithLabelValues(string(models.TransactionTypeTokenDeployment)).Inc()
	err := newError(ErrConsistencyViolation, nil, format, args...)
	s.logger.WithField("type", models.TransactionTypeTokenDeployment).Error(err.Error())
	return err
}

func (s *tokenService) Get(ctx context.Context, organizationID, tokenID string) (*models.Token, error) {
	return findToken(s.db.WithContext(ctx), organizationID, tokenID)
}

func findToken(db *gorm.DB, organizationID, tokenID string) (*models.Token, error) {
	var token models.Token
	err := db.Where("id = ? AND organization_id = ?", tokenID, organizationID).First(&token).Error
	if err != nil {
		return nil, notFoundOr(err, "token")
	}
	return &token, nil
}

func (s *tokenService) List(ctx context.Context, organizationID string) ([]models.Token, error) {
	var tokens []models.Token
	err := s.db.WithContext(ctx).Where("organization_id = ?", organizationID).Order("created_at DESC").Find(&tokens).Error
	return tokens, err
}
