package services

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"gorm.io/gorm"
)

// ChainService handles chain-related operations
type ChainService interface {
	CreateChain(ctx context.Context, chain *models.Chain) error
	GetChain(ctx context.Context, id uint) (*models.Chain, error)
	GetActiveChain(ctx context.Context) (*models.Chain, error)
	SetActiveChainByID(ctx context.Context, chainID uint) error
	UpdateChainConfig(ctx context.Context, chainID uint, rpc, networkID string) error
	ListChains(ctx context.Context) ([]models.Chain, error)
}

type chainService struct {
	db       *gorm.DB
	validate *validator.Validate
}

// NewChainService creates a new ChainService
func NewChainService(db *gorm.DB) ChainService {
	return &chainService{db: db, validate: validator.New()}
}

type chainInput struct {
	ChainType models.ChainType `validate:"required,oneof=ethereum solana"`
	RPC       string           `validate:"required,url"`
	NetworkID string           `validate:"required"`
	Name      string           `validate:"required"`
}

// CreateChain creates a new chain
func (s *chainService) CreateChain(ctx context.Context, chain *models.Chain) error {
	input := chainInput{ChainType: chain.ChainType, RPC: chain.RPC, NetworkID: chain.NetworkID, Name: chain.Name}
	if err := s.validate.Struct(input); err != nil {
		return newError(ErrValidation, err, "invalid chain")
	}
	return s.db.WithContext(ctx).Create(chain).Error
}

// GetChain returns the chain with the given ID
func (s *chainService) GetChain(ctx context.Context, id uint) (*models.Chain, error) {
	var chain models.Chain
	if err := s.db.WithContext(ctx).First(&chain, id).Error; err != nil {
		return nil, notFoundOr(err, "chain")
	}
	return &chain, nil
}

// GetActiveChain returns the currently active chain
func (s *chainService) GetActiveChain(ctx context.Context) (*models.Chain, error) {
	var chain models.Chain
	err := s.db.WithContext(ctx).Where("is_active = ?", true).First(&chain).Error
	if err != nil {
		return nil, notFoundOr(err, "active chain")
	}
	return &chain, nil
}

// SetActiveChainByID sets a chain as active by chain ID
func (s *chainService) SetActiveChainByID(ctx context.Context, chainID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Chain{}).Where("id = ?", chainID).Update("is_active", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return newError(ErrNotFound, nil, "chain %d not found", chainID)
		}
		// Deactivate all other chains
		return tx.Model(&models.Chain{}).Where("id <> ? AND is_active = ?", chainID, true).Update("is_active", false).Error
	})
}

// UpdateChainConfig updates the RPC endpoint and network id of a chain
func (s *chainService) UpdateChainConfig(ctx context.Context, chainID uint, rpc, networkID string) error {
	result := s.db.WithContext(ctx).Model(&models.Chain{}).
		Where("id = ?", chainID).
		Updates(map[string]interface{}{
			"rpc":        rpc,
			"network_id": networkID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return newError(ErrNotFound, nil, "chain %d not found", chainID)
	}
	return nil
}

// ListChains returns all chains
func (s *chainService) ListChains(ctx context.Context) ([]models.Chain, error) {
	var chains []models.Chain
	err := s.db.WithContext(ctx).Order("id").Find(&chains).Error
	return chains, err
}
