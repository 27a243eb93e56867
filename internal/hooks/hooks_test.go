package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// The recorders embed the service interfaces and only implement the callbacks the hooks
// use. Anything else panics on the nil embedded value.

type vestingCall struct {
	method        string
	contractID    string
	transactionID uint
	outcome       models.Outcome
	address       *string
}

type vestingRecorder struct {
	services.VestingService
	calls []vestingCall
	err   error
}

func (r *vestingRecorder) OnDeploymentResolved(ctx context.Context, contractID string, outcome services.DeploymentOutcome) error {
	r.calls = append(r.calls, vestingCall{"deployment", contractID, outcome.TransactionID, outcome.Outcome, outcome.Address})
	return r.err
}

func (r *vestingRecorder) OnFundingResolved(ctx context.Context, contractID string, transactionID uint, outcome models.Outcome) error {
	r.calls = append(r.calls, vestingCall{"funding", contractID, transactionID, outcome, nil})
	return r.err
}

func (r *vestingRecorder) OnClaimsResolved(ctx context.Context, transactionID uint, outcome models.Outcome) error {
	r.calls = append(r.calls, vestingCall{"claims", "", transactionID, outcome, nil})
	return r.err
}

type revocationRecorder struct {
	services.RevocationService
	byTransaction map[uint]string
	resolved      map[string]models.Outcome
}

func (r *revocationRecorder) GetByTransaction(ctx context.Context, transactionID uint) (*models.Revoking, error) {
	id, ok := r.byTransaction[transactionID]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &models.Revoking{ID: id, TransactionID: transactionID}, nil
}

func (r *revocationRecorder) OnRevokeResolved(ctx context.Context, revokingID string, outcome models.Outcome) error {
	r.resolved[revokingID] = outcome
	return nil
}

type tokenRecorder struct {
	services.TokenService
	tokenID string
	address *string
	outcome models.Outcome
}

func (r *tokenRecorder) OnTokenDeploymentResolved(ctx context.Context, tokenID string, transactionID uint, outcome models.Outcome, address *string) error {
	r.tokenID, r.outcome, r.address = tokenID, outcome, address
	return nil
}

type HooksTestSuite struct {
	suite.Suite
	vesting     *vestingRecorder
	revocations *revocationRecorder
	tokens      *tokenRecorder
	hookService services.HookService
}

func (s *HooksTestSuite) SetupTest() {
	s.vesting = &vestingRecorder{}
	s.revocations = &revocationRecorder{
		byTransaction: map[uint]string{},
		resolved:      map[string]models.Outcome{},
	}
	s.tokens = &tokenRecorder{}
	s.hookService = services.NewHookService()
	s.Require().NoError(RegisterAll(s.hookService, s.vesting, s.tokens, s.revocations))
}

func resolvedTx(id uint, txType models.TransactionType, status models.TransactionStatus, metadata models.JSON) models.Transaction {
	return models.Transaction{
		ID:       id,
		Type:     txType,
		Status:   status,
		Metadata: metadata,
	}
}

func (s *HooksTestSuite) TestVestingDeployment() {
	address := "0x3333333333333333333333333333333333333333"
	tx := resolvedTx(7, models.TransactionTypeVestingDeployment, models.TransactionStatusSuccess, models.JSON{
		models.MetadataVestingID: "v-1",
	})
	tx.ContractAddress = &address

	s.Require().NoError(s.hookService.OnTransactionResolved(context.Background(), tx))
	s.Require().Len(s.vesting.calls, 1)
	call := s.vesting.calls[0]
	s.Equal("deployment", call.method)
	s.Equal("v-1", call.contractID)
	s.Equal(uint(7), call.transactionID)
	s.True(call.outcome.Succeeded())
	s.Equal(&address, call.address)
}

func (s *HooksTestSuite) TestFundingAndClaims() {
	ctx := context.Background()

	s.Require().NoError(s.hookService.OnTransactionResolved(ctx, resolvedTx(8, models.TransactionTypeFundingVesting, models.TransactionStatusFailed, models.JSON{
		models.MetadataVestingID: "v-1",
	})))
	// claims need no metadata, recipients point at the transaction
	s.Require().NoError(s.hookService.OnTransactionResolved(ctx, resolvedTx(9, models.TransactionTypeAddingClaims, models.TransactionStatusSuccess, nil)))

	s.Require().Len(s.vesting.calls, 2)
	s.Equal(vestingCall{"funding", "v-1", 8, models.OutcomeFailed, nil}, s.vesting.calls[0])
	s.Equal(vestingCall{"claims", "", 9, models.OutcomeSuccess, nil}, s.vesting.calls[1])
}

func (s *HooksTestSuite) TestRevocationFallsBackToTransactionLookup() {
	ctx := context.Background()
	s.revocations.byTransaction[11] = "r-2"

	s.Require().NoError(s.hookService.OnTransactionResolved(ctx, resolvedTx(10, models.TransactionTypeRevokeClaim, models.TransactionStatusSuccess, models.JSON{
		models.MetadataRevokingID: "r-1",
	})))
	s.Require().NoError(s.hookService.OnTransactionResolved(ctx, resolvedTx(11, models.TransactionTypeRevokeClaim, models.TransactionStatusFailed, nil)))

	s.Equal(models.OutcomeSuccess, s.revocations.resolved["r-1"])
	s.Equal(models.OutcomeFailed, s.revocations.resolved["r-2"])

	err := s.hookService.OnTransactionResolved(ctx, resolvedTx(12, models.TransactionTypeRevokeClaim, models.TransactionStatusSuccess, nil))
	s.ErrorIs(err, services.ErrNotFound)
}

func (s *HooksTestSuite) TestTokenDeployment() {
	address := "0x4444444444444444444444444444444444444444"
	tx := resolvedTx(13, models.TransactionTypeTokenDeployment, models.TransactionStatusSuccess, models.JSON{
		models.MetadataTokenID: "t-1",
	})
	tx.ContractAddress = &address

	s.Require().NoError(s.hookService.OnTransactionResolved(context.Background(), tx))
	s.Equal("t-1", s.tokens.tokenID)
	s.Equal(&address, s.tokens.address)
	s.True(s.tokens.outcome.Succeeded())
}

func (s *HooksTestSuite) TestMissingMetadataIsAConsistencyViolation() {
	ctx := context.Background()

	for _, txType := range []models.TransactionType{
		models.TransactionTypeVestingDeployment,
		models.TransactionTypeFundingVesting,
		models.TransactionTypeTokenDeployment,
	} {
		err := s.hookService.OnTransactionResolved(ctx, resolvedTx(14, txType, models.TransactionStatusSuccess, models.JSON{}))
		s.ErrorIs(err, services.ErrConsistencyViolation, txType)
	}
	s.Empty(s.vesting.calls)
}

func (s *HooksTestSuite) TestPendingIsNeverDispatched() {
	err := s.hookService.OnTransactionResolved(context.Background(), resolvedTx(15, models.TransactionTypeVestingDeployment, models.TransactionStatusPending, models.JSON{
		models.MetadataVestingID: "v-1",
	}))
	s.ErrorIs(err, services.ErrInvalidState)
	s.Empty(s.vesting.calls)
}

func (s *HooksTestSuite) TestCallbackErrorsPropagate() {
	s.vesting.err = errors.New("database is locked")

	err := s.hookService.OnTransactionResolved(context.Background(), resolvedTx(16, models.TransactionTypeAddingClaims, models.TransactionStatusSuccess, nil))
	s.EqualError(err, "database is locked")
}

func TestHooksTestSuite(t *testing.T) {
	suite.Run(t, new(HooksTestSuite))
}

func TestCanHandle(t *testing.T) {
	tests := []struct {
		hook   services.Hook
		txType models.TransactionType
	}{
		{NewVestingDeploymentHook(nil), models.TransactionTypeVestingDeployment},
		{NewFundingHook(nil), models.TransactionTypeFundingVesting},
		{NewClaimsHook(nil), models.TransactionTypeAddingClaims},
		{NewRevocationHook(nil), models.TransactionTypeRevokeClaim},
		{NewTokenDeploymentHook(nil), models.TransactionTypeTokenDeployment},
	}

	for _, tt := range tests {
		t.Run(string(tt.txType), func(t *testing.T) {
			assert.True(t, tt.hook.CanHandle(tt.txType))
			for _, other := range tests {
				if other.txType != tt.txType {
					assert.False(t, tt.hook.CanHandle(other.txType))
				}
			}
		})
	}
}

func TestOutcomeOfPending(t *testing.T) {
	_, err := outcomeOf(models.Transaction{ID: 1, Status: models.TransactionStatusPending})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrInvalidState)
}
