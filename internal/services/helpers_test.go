package services_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/schedule"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	testOrg          = "org-1"
	testRecipient    = "0x1111111111111111111111111111111111111111"
	otherRecipient   = "0x2222222222222222222222222222222222222222"
	deployedAddress  = "0xabcabcabcabcabcabcabcabcabcabcabcabcabca"
	testSignedTx     = "0xdeadbeef"
	testContractAddr = "0x3333333333333333333333333333333333333333"
)

var scheduleStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeAdapter stands in for the chain. Submissions get sequential hashes and stay
// pending until a receipt is set.
type fakeAdapter struct {
	mu        sync.Mutex
	next      int
	replay    string
	submitErr error
	receipts  map[string]*services.ChainReceipt
	statusErr map[string]error
	submitted []services.SubmitRequest
	queried   []string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		receipts:  make(map[string]*services.ChainReceipt),
		statusErr: make(map[string]error),
	}
}

func (f *fakeAdapter) SubmitTransaction(ctx context.Context, chain models.Chain, req services.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	// a node answering with the hash of an earlier transaction
	if f.replay != "" {
		return f.replay, nil
	}
	f.next++
	return fmt.Sprintf("0x%064x", f.next), nil
}

func (f *fakeAdapter) TransactionStatus(ctx context.Context, chain models.Chain, hash string) (*services.ChainReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, hash)
	if err := f.statusErr[hash]; err != nil {
		return nil, err
	}
	return f.receipts[hash], nil
}

func (f *fakeAdapter) confirm(hash string, outcome models.Outcome, address *string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = &services.ChainReceipt{Outcome: outcome, ContractAddress: address, BlockNumber: 1}
}

func (f *fakeAdapter) failStatus(hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusErr[hash] = errors.New("rpc unavailable")
}

// testEnv wires every service against one in-memory database.
type testEnv struct {
	db          services.DBService
	logger      *logrus.Logger
	adapter     *fakeAdapter
	clock       time.Time
	chains      services.ChainService
	txs         services.TransactionService
	templates   services.TemplateService
	vesting     services.VestingService
	tokens      services.TokenService
	revocations services.RevocationService
	chain       *models.Chain
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := services.NewSqliteDBService(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &testEnv{
		db:      db,
		logger:  logger,
		adapter: newFakeAdapter(),
		clock:   scheduleStart,
	}
	env.chains = services.NewChainService(db.GetDB())
	env.txs = services.NewTransactionService(db.GetDB(), logger)
	env.templates = services.NewTemplateService(db.GetDB())
	env.vesting = services.NewVestingService(db.GetDB(), env.chains, env.txs, env.adapter, logger)
	env.tokens = services.NewTokenService(db.GetDB(), env.chains, env.txs, env.adapter, logger)
	env.revocations = services.NewRevocationService(db.GetDB(), env.chains, env.txs, env.adapter, logger, func() time.Time { return env.clock })

	env.chain = &models.Chain{
		ChainType: models.ChainTypeEthereum,
		RPC:       "http://localhost:8545",
		NetworkID: "31337",
		Name:      "Local",
		IsActive:  true,
	}
	require.NoError(t, env.chains.CreateChain(context.Background(), env.chain))
	return env
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// timeSchedule is 1000 units over 360 days with a 90 day cliff, unlocking every 30 days.
func timeSchedule() schedule.Details {
	end := scheduleStart.Add(days(360))
	start := scheduleStart
	return schedule.Details{
		TotalAllocation:       "1000",
		StartTime:             &start,
		EndTime:               &end,
		CliffSeconds:          int64(days(90).Seconds()),
		UnlockIntervalSeconds: int64(days(30).Seconds()),
	}
}

func submitRequest() services.SubmitRequest {
	return services.SubmitRequest{SignedTransaction: testSignedTx}
}

func (e *testEnv) createTemplate(t *testing.T, details schedule.Details) *models.VestingTemplate {
	t.Helper()
	template, err := e.templates.CreateTemplate(context.Background(), testOrg, services.CreateTemplateRequest{
		Name:     "Team",
		Schedule: details,
	})
	require.NoError(t, err)
	return template
}

func (e *testEnv) createToken(t *testing.T, organizationID string, chainID uint) *models.Token {
	t.Helper()
	token, err := e.tokens.CreateToken(context.Background(), organizationID, services.CreateTokenRequest{
		ChainID:  chainID,
		Name:     "Vest",
		Symbol:   "VST",
		Decimals: 18,
	})
	require.NoError(t, err)
	return token
}

func (e *testEnv) createDraft(t *testing.T, details schedule.Details) *models.VestingContract {
	t.Helper()
	template := e.createTemplate(t, details)
	contract, err := e.vesting.CreateDraft(context.Background(), testOrg, services.CreateDraftRequest{
		TemplateID: template.ID,
		ChainID:    e.chain.ID,
		Name:       "Team vesting",
	})
	require.NoError(t, err)
	return contract
}

// resolve resolves a transaction and applies its outcome the way the reconcile loop does.
func (e *testEnv) resolve(t *testing.T, tx *models.Transaction, outcome models.Outcome, address *string) {
	t.Helper()
	_, err := e.txs.Resolve(context.Background(), tx.Hash, tx.ChainID, outcome, address)
	require.NoError(t, err)
}

func (e *testEnv) deploy(t *testing.T, contract *models.VestingContract) *models.VestingContract {
	t.Helper()
	ctx := context.Background()
	tx, err := e.vesting.SubmitDeployment(ctx, testOrg, contract.ID, submitRequest())
	require.NoError(t, err)
	address := deployedAddress
	e.resolve(t, tx, models.OutcomeSuccess, &address)
	require.NoError(t, e.vesting.OnDeploymentResolved(ctx, contract.ID, services.DeploymentOutcome{
		TransactionID: tx.ID,
		Outcome:       models.OutcomeSuccess,
		Address:       &address,
	}))
	deployed, err := e.vesting.Get(ctx, testOrg, contract.ID)
	require.NoError(t, err)
	return deployed
}

// activeContract returns an ACTIVE, funded contract with recipients added on chain.
func (e *testEnv) activeContract(t *testing.T, details schedule.Details, recipients ...services.RecipientInput) *models.VestingContract {
	t.Helper()
	ctx := context.Background()
	contract := e.deploy(t, e.createDraft(t, details))

	funding, err := e.vesting.SubmitFunding(ctx, testOrg, contract.ID, submitRequest())
	require.NoError(t, err)
	e.resolve(t, funding, models.OutcomeSuccess, nil)
	require.NoError(t, e.vesting.OnFundingResolved(ctx, contract.ID, funding.ID, models.OutcomeSuccess))

	_, err = e.vesting.Activate(ctx, testOrg, contract.ID)
	require.NoError(t, err)

	if len(recipients) > 0 {
		claims, err := e.vesting.AddRecipients(ctx, testOrg, contract.ID, recipients, submitRequest())
		require.NoError(t, err)
		e.resolve(t, claims, models.OutcomeSuccess, nil)
		require.NoError(t, e.vesting.OnClaimsResolved(ctx, claims.ID, models.OutcomeSuccess))
	}

	active, err := e.vesting.Get(ctx, testOrg, contract.ID)
	require.NoError(t, err)
	return active
}
