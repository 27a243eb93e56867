package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTransactionService(t *testing.T) *transactionService {
	db, err := NewSqliteDBService(":memory:")
	require.NoError(t, err, "Failed to connect to in-memory database")
	t.Cleanup(func() { db.Close() })

	gormDB := db.GetDB()
	// Enable debug mode to see SQL queries during test
	if testing.Verbose() {
		gormDB = gormDB.Debug()
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewTransactionService(gormDB, logger).(*transactionService)
}

func submitTestTx(t *testing.T, service *transactionService, hash string) *models.Transaction {
	tx, err := service.Submit(context.Background(), SubmitTransactionRequest{
		Type:           models.TransactionTypeVestingDeployment,
		ChainID:        1,
		Hash:           hash,
		OrganizationID: "org-1",
		Metadata:       models.JSON{models.MetadataVestingID: "vesting-1"},
	})
	require.NoError(t, err)
	return tx
}

func TestSubmitTransaction(t *testing.T) {
	service := setupTransactionService(t)
	ctx := context.Background()

	t.Run("records a pending transaction", func(t *testing.T) {
		tx := submitTestTx(t, service, "0x01")
		assert.NotZero(t, tx.ID)
		assert.Equal(t, models.TransactionStatusPending, tx.Status)
		assert.False(t, tx.Applied)

		vestingID, ok := tx.MetadataString(models.MetadataVestingID)
		assert.True(t, ok)
		assert.Equal(t, "vesting-1", vestingID)
	})

	t.Run("same hash twice returns the existing record", func(t *testing.T) {
		first := submitTestTx(t, service, "0xABC")
		second := submitTestTx(t, service, "0xABC")
		assert.Equal(t, first.ID, second.ID)

		var count int64
		require.NoError(t, service.db.Model(&models.Transaction{}).Where("hash = ?", "0xABC").Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("same hash on another chain is a different transaction", func(t *testing.T) {
		first := submitTestTx(t, service, "0x02")
		other, err := service.Submit(ctx, SubmitTransactionRequest{
			Type:           models.TransactionTypeVestingDeployment,
			ChainID:        2,
			Hash:           "0x02",
			OrganizationID: "org-1",
		})
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, other.ID)
	})

	t.Run("rejects unknown types", func(t *testing.T) {
		_, err := service.Submit(ctx, SubmitTransactionRequest{
			Type:           "SWAP",
			ChainID:        1,
			Hash:           "0x03",
			OrganizationID: "org-1",
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects a missing hash", func(t *testing.T) {
		_, err := service.Submit(ctx, SubmitTransactionRequest{
			Type:           models.TransactionTypeFundingVesting,
			ChainID:        1,
			OrganizationID: "org-1",
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("a known hash is not reused by another submission", func(t *testing.T) {
		original := submitTestTx(t, service, "0x04")

		tests := []struct {
			name string
			req  SubmitTransactionRequest
		}{
			{"another type", SubmitTransactionRequest{
				Type:           models.TransactionTypeFundingVesting,
				OrganizationID: "org-1",
				Metadata:       models.JSON{models.MetadataVestingID: "vesting-1"},
			}},
			{"another organization", SubmitTransactionRequest{
				Type:           models.TransactionTypeVestingDeployment,
				OrganizationID: "org-2",
				Metadata:       models.JSON{models.MetadataVestingID: "vesting-1"},
			}},
			{"another contract", SubmitTransactionRequest{
				Type:           models.TransactionTypeVestingDeployment,
				OrganizationID: "org-1",
				Metadata:       models.JSON{models.MetadataVestingID: "vesting-2"},
			}},
			{"no owner", SubmitTransactionRequest{
				Type:           models.TransactionTypeVestingDeployment,
				OrganizationID: "org-1",
			}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.req.ChainID = 1
				tt.req.Hash = "0x04"
				_, err := service.Submit(ctx, tt.req)
				assert.ErrorIs(t, err, ErrInvalidState)
			})
		}

		stored, err := service.GetByID(ctx, original.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionTypeVestingDeployment, stored.Type)
		assert.Equal(t, "org-1", stored.OrganizationID)
	})
}

func TestRequirePending(t *testing.T) {
	assert.NoError(t, requirePending(&models.Transaction{Status: models.TransactionStatusPending}))
	assert.ErrorIs(t, requirePending(&models.Transaction{Hash: "0x05", Status: models.TransactionStatusSuccess}), ErrInvalidState)
	assert.ErrorIs(t, requirePending(&models.Transaction{Hash: "0x06", Status: models.TransactionStatusFailed}), ErrInvalidState)
}

func TestResolveTransaction(t *testing.T) {
	service := setupTransactionService(t)
	ctx := context.Background()

	t.Run("pending to success", func(t *testing.T) {
		submitTestTx(t, service, "0x10")
		address := "0xabc"
		tx, err := service.Resolve(ctx, "0x10", 1, models.OutcomeSuccess, &address)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusSuccess, tx.Status)
		require.NotNil(t, tx.ContractAddress)
		assert.Equal(t, "0xabc", *tx.ContractAddress)
		assert.NotNil(t, tx.ResolvedAt)
	})

	t.Run("same outcome again is already resolved", func(t *testing.T) {
		submitTestTx(t, service, "0x11")
		_, err := service.Resolve(ctx, "0x11", 1, models.OutcomeFailed, nil)
		require.NoError(t, err)

		tx, err := service.Resolve(ctx, "0x11", 1, models.OutcomeFailed, nil)
		assert.ErrorIs(t, err, ErrAlreadyResolved)
		require.NotNil(t, tx)
		assert.Equal(t, models.TransactionStatusFailed, tx.Status)
		assert.False(t, tx.Frozen)
	})

	t.Run("different outcome freezes the record", func(t *testing.T) {
		submitTestTx(t, service, "0x12")
		_, err := service.Resolve(ctx, "0x12", 1, models.OutcomeSuccess, nil)
		require.NoError(t, err)

		_, err = service.Resolve(ctx, "0x12", 1, models.OutcomeFailed, nil)
		assert.ErrorIs(t, err, ErrConflictingResolution)

		stored, err := service.GetByHash(ctx, "0x12", 1)
		require.NoError(t, err)
		assert.True(t, stored.Frozen)
		assert.Equal(t, models.TransactionStatusSuccess, stored.Status)
		require.NotNil(t, stored.ConflictStatus)
		assert.Equal(t, models.TransactionStatusFailed, *stored.ConflictStatus)

		// a frozen record stays frozen whatever arrives next
		_, err = service.Resolve(ctx, "0x12", 1, models.OutcomeSuccess, nil)
		assert.ErrorIs(t, err, ErrConflictingResolution)
	})

	t.Run("unknown hash", func(t *testing.T) {
		_, err := service.Resolve(ctx, "0xmissing", 1, models.OutcomeSuccess, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("zero outcome", func(t *testing.T) {
		_, err := service.Resolve(ctx, "0x10", 1, models.Outcome{}, nil)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestPendingAndUnapplied(t *testing.T) {
	service := setupTransactionService(t)
	ctx := context.Background()

	a := submitTestTx(t, service, "0x20")
	b := submitTestTx(t, service, "0x21")
	c := submitTestTx(t, service, "0x22")
	_, err := service.Resolve(ctx, b.Hash, 1, models.OutcomeSuccess, nil)
	require.NoError(t, err)

	pending, err := service.ListPending(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a.ID, pending[0].ID)
	assert.Equal(t, c.ID, pending[1].ID)

	t.Run("pages by id", func(t *testing.T) {
		page, err := service.ListPending(ctx, a.ID, 10)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, c.ID, page[0].ID)
	})

	t.Run("resolved but not applied", func(t *testing.T) {
		unapplied, err := service.ListUnapplied(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, unapplied, 1)
		assert.Equal(t, b.ID, unapplied[0].ID)

		require.NoError(t, service.MarkApplied(ctx, b.ID))
		unapplied, err = service.ListUnapplied(ctx, 0, 10)
		require.NoError(t, err)
		assert.Empty(t, unapplied)
	})

	t.Run("frozen transactions leave reconciliation", func(t *testing.T) {
		require.NoError(t, service.Freeze(ctx, a.ID))
		pending, err := service.ListPending(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, c.ID, pending[0].ID)
	})

	t.Run("iterates pending by organization", func(t *testing.T) {
		var ids []uint
		for tx, err := range service.PendingByOrganization(ctx, "org-1", 0) {
			require.NoError(t, err)
			ids = append(ids, tx.ID)
		}
		// frozen records are still pending on paper
		assert.Equal(t, []uint{a.ID, c.ID}, ids)

		for range service.PendingByOrganization(ctx, "org-2", 0) {
			t.Fatal("org-2 has no transactions")
		}
	})

	t.Run("filters by status", func(t *testing.T) {
		status := models.TransactionStatusSuccess
		txs, err := service.ListByOrganization(ctx, "org-1", &status)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, b.ID, txs[0].ID)

		all, err := service.ListByOrganization(ctx, "org-1", nil)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestGetTransactionScopedByOrganization(t *testing.T) {
	service := setupTransactionService(t)
	ctx := context.Background()
	tx := submitTestTx(t, service, "0x30")

	got, err := service.Get(ctx, "org-1", tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash, got.Hash)

	_, err = service.Get(ctx, "org-2", tx.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = service.GetByID(ctx, tx.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}
