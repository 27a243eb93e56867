package services_test

import (
	"context"
	"testing"

	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
	"github.com/rxtech-lab/vesting-mcp/internal/utils"
	"github.com/stretchr/testify/suite"
)

type TokenServiceTestSuite struct {
	suite.Suite
	env   *testEnv
	ctx   context.Context
	token *models.Token
}

func (s *TokenServiceTestSuite) SetupTest() {
	s.env = newTestEnv(s.T())
	s.ctx = context.Background()

	token, err := s.env.tokens.CreateToken(s.ctx, testOrg, services.CreateTokenRequest{
		ChainID:  s.env.chain.ID,
		Name:     "Vest",
		Symbol:   "VST",
		Decimals: 18,
	})
	s.Require().NoError(err)
	s.token = token
}

func (s *TokenServiceTestSuite) TestCreateTokenValidation() {
	_, err := s.env.tokens.CreateToken(s.ctx, testOrg, services.CreateTokenRequest{ChainID: s.env.chain.ID, Name: "Vest", Symbol: "WAYTOOLONGSYMBOL"})
	s.ErrorIs(err, services.ErrValidation)

	_, err = s.env.tokens.CreateToken(s.ctx, testOrg, services.CreateTokenRequest{ChainID: 999, Name: "Vest", Symbol: "VST"})
	s.ErrorIs(err, services.ErrNotFound)
}

func (s *TokenServiceTestSuite) TestDeploymentSuccess() {
	tx, err := s.env.tokens.SubmitTokenDeployment(s.ctx, testOrg, s.token.ID, submitRequest())
	s.Require().NoError(err)
	s.Equal(models.TransactionTypeTokenDeployment, tx.Type)
	tokenID, ok := tx.MetadataString(models.MetadataTokenID)
	s.True(ok)
	s.Equal(s.token.ID, tokenID)

	_, err = s.env.tokens.SubmitTokenDeployment(s.ctx, testOrg, s.token.ID, submitRequest())
	s.ErrorIs(err, services.ErrInvalidState)

	address := testContractAddr
	s.Require().NoError(s.env.tokens.OnTokenDeploymentResolved(s.ctx, s.token.ID, tx.ID, models.OutcomeSuccess, &address))
	s.Require().NoError(s.env.tokens.OnTokenDeploymentResolved(s.ctx, s.token.ID, tx.ID, models.OutcomeSuccess, &address))

	token, err := s.env.tokens.Get(s.ctx, testOrg, s.token.ID)
	s.Require().NoError(err)
	s.True(token.IsDeployed)
	s.Require().NotNil(token.Address)
	s.Equal(utils.ChecksumAddress(testContractAddr), *token.Address)

	s.ErrorIs(s.env.tokens.OnTokenDeploymentResolved(s.ctx, s.token.ID, tx.ID, models.OutcomeFailed, nil), services.ErrConsistencyViolation)

	other := deployedAddress
	s.ErrorIs(s.env.tokens.OnTokenDeploymentResolved(s.ctx, s.token.ID, tx.ID, models.OutcomeSuccess, &other), services.ErrConsistencyViolation)
}

func (s *TokenServiceTestSuite) TestDeploymentFailureAllowsRetry() {
	tx, err := s.env.tokens.SubmitTokenDeployment(s.ctx, testOrg, s.token.ID, submitRequest())
	s.Require().NoError(err)
	s.Require().NoError(s.env.tokens.OnTokenDeploymentResolved(s.ctx, s.token.ID, tx.ID, models.OutcomeFailed, nil))

	token, err := s.env.tokens.Get(s.ctx, testOrg, s.token.ID)
	s.Require().NoError(err)
	s.False(token.IsDeployed)
	s.Nil(token.TransactionID)

	_, err = s.env.tokens.SubmitTokenDeployment(s.ctx, testOrg, s.token.ID, submitRequest())
	s.NoError(err)

	// the old attempt failing again is harmless, succeeding is not
	s.NoError(s.env.tokens.OnTokenDeploymentResolved(s.ctx, s.token.ID, tx.ID, models.OutcomeFailed, nil))
	address := testContractAddr
	s.ErrorIs(s.env.tokens.OnTokenDeploymentResolved(s.ctx, s.token.ID, tx.ID, models.OutcomeSuccess, &address), services.ErrConsistencyViolation)
}

func (s *TokenServiceTestSuite) TestSuccessWithoutAddress() {
	tx, err := s.env.tokens.SubmitTokenDeployment(s.ctx, testOrg, s.token.ID, submitRequest())
	s.Require().NoError(err)
	s.ErrorIs(s.env.tokens.OnTokenDeploymentResolved(s.ctx, s.token.ID, tx.ID, models.OutcomeSuccess, nil), services.ErrConsistencyViolation)
}

func (s *TokenServiceTestSuite) TestList() {
	tokens, err := s.env.tokens.List(s.ctx, testOrg)
	s.Require().NoError(err)
	s.Len(tokens, 1)

	_, err = s.env.tokens.Get(s.ctx, "org-2", s.token.ID)
	s.ErrorIs(err, services.ErrNotFound)
}

func TestTokenServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TokenServiceTestSuite))
}
