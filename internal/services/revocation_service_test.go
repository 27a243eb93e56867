package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
	"github.com/rxtech-lab/vesting-mcp/internal/utils"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type RevocationServiceTestSuite struct {
	suite.Suite
	env      *testEnv
	ctx      context.Context
	contract *models.VestingContract
}

func (s *RevocationServiceTestSuite) SetupTest() {
	s.env = newTestEnv(s.T())
	s.ctx = context.Background()
	s.contract = s.env.activeContract(s.T(), timeSchedule(),
		services.RecipientInput{Address: testRecipient, Allocation: "400"},
		services.RecipientInput{Address: otherRecipient, Allocation: "600"},
	)
	s.env.clock = scheduleStart.Add(days(180))
}

func (s *RevocationServiceTestSuite) revokeRequest(recipient string) services.RevokeRequest {
	return services.RevokeRequest{
		VestingID: s.contract.ID,
		Recipient: recipient,
		Submit:    submitRequest(),
	}
}

func (s *RevocationServiceTestSuite) TestInitiateRevoke() {
	revoking, err := s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest(testRecipient))
	s.Require().NoError(err)
	s.Equal(models.RevokingStatusPending, revoking.Status)
	s.Equal("200", revoking.VestedAmount)
	s.Equal("200", revoking.UnvestedAmount)
	s.Equal(utils.ChecksumAddress(testRecipient), revoking.Recipient)
	s.True(revoking.RevokePoint.Equal(scheduleStart.Add(days(180))))

	tx, err := s.env.txs.GetByID(s.ctx, revoking.TransactionID)
	s.Require().NoError(err)
	s.Equal(models.TransactionTypeRevokeClaim, tx.Type)
	revokingID, ok := tx.MetadataString(models.MetadataRevokingID)
	s.True(ok)
	s.Equal(revoking.ID, revokingID)

	byTx, err := s.env.revocations.GetByTransaction(s.ctx, tx.ID)
	s.Require().NoError(err)
	s.Equal(revoking.ID, byTx.ID)
}

func (s *RevocationServiceTestSuite) TestRevocationInProgress() {
	_, err := s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest(testRecipient))
	s.Require().NoError(err)

	_, err = s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest(testRecipient))
	s.ErrorIs(err, services.ErrRevocationInProgress)
	s.Equal(services.KindBusinessRule, services.KindOf(err))

	// other recipients of the same contract are unaffected
	_, err = s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest(otherRecipient))
	s.NoError(err)
}

func (s *RevocationServiceTestSuite) TestReplayedHashLeavesNoPendingRevocation() {
	s.Require().NotNil(s.contract.FundingTransactionID)
	funding, err := s.env.txs.GetByID(s.ctx, *s.contract.FundingTransactionID)
	s.Require().NoError(err)

	s.env.adapter.replay = funding.Hash
	_, err = s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest(testRecipient))
	s.ErrorIs(err, services.ErrInvalidState)

	// nothing holds the recipient, a fresh submission goes through
	s.env.adapter.replay = ""
	revoking, err := s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest(testRecipient))
	s.Require().NoError(err)
	s.Equal(models.RevokingStatusPending, revoking.Status)
}

func (s *RevocationServiceTestSuite) TestConcurrentRevokesAdmitOne() {
	const callers = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest(testRecipient))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, services.ErrRevocationInProgress):
				rejected++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, succeeded)
	s.Equal(callers-1, rejected)
}

func (s *RevocationServiceTestSuite) TestRevokeSuccessFreezesVesting() {
	revoking, err := s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest(testRecipient))
	s.Require().NoError(err)

	s.Require().NoError(s.env.revocations.OnRevokeResolved(s.ctx, revoking.ID, models.OutcomeSuccess))

	stored, err := s.env.revocations.Get(s.ctx, testOrg, revoking.ID)
	s.Require().NoError(err)
	s.Equal(models.RevokingStatusSuccess, stored.Status)

	recipient, err := s.env.vesting.GetRecipient(s.ctx, testOrg, s.contract.ID, testRecipient)
	s.Require().NoError(err)
	s.True(recipient.IsRevoked())
	s.Equal("200", recipient.VestedAtRevoke)

	// nothing more vests once revoked
	amount, err := s.env.vesting.VestedAmount(s.ctx, testOrg, s.contract.ID, testRecipient, scheduleStart.Add(days(400)))
	s.Require().NoError(err)
	s.Equal("200", amount.Vested.String())
	s.Equal("0", amount.Unvested.String())

	s.NoError(s.env.revocations.OnRevokeResolved(s.ctx, revoking.ID, models.OutcomeSuccess))
	s.ErrorIs(s.env.revocations.OnRevokeResolved(s.ctx, revoking.ID, models.OutcomeFailed), services.ErrConsistencyViolation)

	_, err = s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest(testRecipient))
	s.ErrorIs(err, services.ErrNothingToRevoke)
}

func (s *RevocationServiceTestSuite) TestRevokeFailureAllowsRetry() {
	revoking, err := s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest(testRecipient))
	s.Require().NoError(err)
	s.Require().NoError(s.env.revocations.OnRevokeResolved(s.ctx, revoking.ID, models.OutcomeFailed))

	recipient, err := s.env.vesting.GetRecipient(s.ctx, testOrg, s.contract.ID, testRecipient)
	s.Require().NoError(err)
	s.False(recipient.IsRevoked())

	s.env.clock = scheduleStart.Add(days(270))
	retry, err := s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest(testRecipient))
	s.Require().NoError(err)
	s.NotEqual(revoking.ID, retry.ID)
	s.Equal("300", retry.VestedAmount)
	s.Equal("100", retry.UnvestedAmount)

	attempts, err := s.env.revocations.ListByVesting(s.ctx, testOrg, s.contract.ID)
	s.Require().NoError(err)
	s.Len(attempts, 2)
}

func (s *RevocationServiceTestSuite) TestNothingToRevokeWhenFullyVested() {
	s.env.clock = scheduleStart.Add(days(400))
	_, err := s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest(testRecipient))
	s.ErrorIs(err, services.ErrNothingToRevoke)
}

func (s *RevocationServiceTestSuite) TestRevokeNeedsActiveContract() {
	_, err := s.env.vesting.Deactivate(s.ctx, testOrg, s.contract.ID)
	s.Require().NoError(err)

	_, err = s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest(testRecipient))
	s.ErrorIs(err, services.ErrInvalidState)
}

func (s *RevocationServiceTestSuite) TestRevokeUnknownRecipient() {
	_, err := s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest("0x4444444444444444444444444444444444444444"))
	s.ErrorIs(err, services.ErrNotFound)
}

func (s *RevocationServiceTestSuite) TestSubmissionFailureLeavesNoAttempt() {
	s.env.adapter.submitErr = errors.New("insufficient funds")
	_, err := s.env.revocations.InitiateRevoke(s.ctx, testOrg, s.revokeRequest(testRecipient))
	s.ErrorIs(err, services.ErrSubmission)

	attempts, err := s.env.revocations.ListByVesting(s.ctx, testOrg, s.contract.ID)
	s.Require().NoError(err)
	s.Empty(attempts)
}

func (s *RevocationServiceTestSuite) TestOpenRevocationIndex() {
	db := s.env.db.GetDB()
	newRevoking := func(status models.RevokingStatus) *models.Revoking {
		return &models.Revoking{
			ID:             uuid.New().String(),
			VestingID:      s.contract.ID,
			Recipient:      utils.ChecksumAddress(testRecipient),
			TransactionID:  1,
			OrganizationID: testOrg,
			ChainID:        s.env.chain.ID,
			Status:         status,
			UnvestedAmount: "1",
			VestedAmount:   "1",
			RevokePoint:    time.Now(),
		}
	}

	s.Require().NoError(db.Create(newRevoking(models.RevokingStatusFailed)).Error)
	s.Require().NoError(db.Create(newRevoking(models.RevokingStatusFailed)).Error)
	s.Require().NoError(db.Create(newRevoking(models.RevokingStatusPending)).Error)

	err := db.Create(newRevoking(models.RevokingStatusPending)).Error
	s.True(errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)
}

func TestRevocationServiceTestSuite(t *testing.T) {
	suite.Run(t, new(RevocationServiceTestSuite))
}
