package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rxtech-lab/vesting-mcp/internal/metrics"
	"github.com/rxtech-lab/vesting-mcp/internal/models"
)

// SubmitRequest carries a transaction signed by the caller's wallet.
type SubmitRequest struct {
	To                string      `json:"to" validate:"omitempty,eth_addr"`
	SignedTransaction string      `json:"signed_transaction" validate:"required,hexadecimal"`
	SafeHash          *string     `json:"safe_hash,omitempty"`
	Metadata          models.JSON `json:"metadata,omitempty"`
}

// ChainReceipt is the terminal state of a transaction as seen on chain.
type ChainReceipt struct {
	Outcome         models.Outcome
	ContractAddress *string
	BlockNumber     uint64
}

// ChainAdapter is the boundary to the blockchain RPC layer. Submission never waits for
// confirmation; callers poll TransactionStatus, which returns a nil receipt while the
// transaction is still pending.
type ChainAdapter interface {
	SubmitTransaction(ctx context.Context, chain models.Chain, req SubmitRequest) (string, error)
	TransactionStatus(ctx context.Context, chain models.Chain, hash string) (*ChainReceipt, error)
}

// submitToChain hands a signed transaction to the adapter. Failures become ErrSubmission
// and nothing is recorded for them.
func submitToChain(ctx context.Context, adapter ChainAdapter, chain models.Chain, req SubmitRequest) (string, error) {
	hash, err := adapter.SubmitTransaction(ctx, chain, req)
	if err != nil {
		metrics.AdapterErrors.WithLabelValues("submit").Inc()
		return "", newError(ErrSubmission, err, "failed to submit transaction to %s", chain.Name)
	}
	if hash == "" {
		return "", newError(ErrSubmission, nil, "chain %s returned no transaction hash", chain.Name)
	}
	return hash, nil
}

// EvmChainAdapter talks to EVM chains over JSON-RPC. One client is kept per RPC URL.
type EvmChainAdapter struct {
	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

func NewEvmChainAdapter() *EvmChainAdapter {
	return &EvmChainAdapter{clients: make(map[string]*ethclient.Client)}
}

func (a *EvmChainAdapter) client(ctx context.Context, chain models.Chain) (*ethclient.Client, error) {
	if chain.ChainType != models.ChainTypeEthereum {
		return nil, fmt.Errorf("chain type %s is not supported", chain.ChainType)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if client, ok := a.clients[chain.RPC]; ok {
		return client, nil
	}
	client, err := ethclient.DialContext(ctx, chain.RPC)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", chain.Name, err)
	}
	a.clients[chain.RPC] = client
	return client, nil
}

// SubmitTransaction broadcasts a signed transaction and returns its hash.
func (a *EvmChainAdapter) SubmitTransaction(ctx context.Context, chain models.Chain, req SubmitRequest) (string, error) {
	raw, err := hexutil.Decode(req.SignedTransaction)
	if err != nil {
		return "", fmt.Errorf("invalid signed transaction: %w", err)
	}

	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", fmt.Errorf("failed to decode signed transaction: %w", err)
	}
	if chainID := tx.ChainId(); chainID.Sign() > 0 && chain.NetworkID != "" && chainID.String() != chain.NetworkID {
		return "", fmt.Errorf("transaction is signed for chain %s, expected %s", chainID, chain.NetworkID)
	}
	if req.To != "" && tx.To() != nil && *tx.To() != common.HexToAddress(req.To) {
		return "", fmt.Errorf("transaction is sent to %s, expected %s", tx.To().Hex(), req.To)
	}

	client, err := a.client(ctx, chain)
	if err != nil {
		return "", err
	}
	if err := client.SendTransaction(ctx, &tx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return tx.Hash().Hex(), nil
}

// TransactionStatus looks up the receipt of a transaction.
func (a *EvmChainAdapter) TransactionStatus(ctx context.Context, chain models.Chain, hash string) (*ChainReceipt, error) {
	client, err := a.client(ctx, chain)
	if err != nil {
		return nil, err
	}

	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}

	result := &ChainReceipt{Outcome: models.OutcomeFailed}
	if receipt.Status == types.ReceiptStatusSuccessful {
		result.Outcome = models.OutcomeSuccess
	}
	if receipt.ContractAddress != (common.Address{}) {
		address := receipt.ContractAddress.Hex()
		result.ContractAddress = &address
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return result, nil
}

// Close closes every cached RPC client.
func (a *EvmChainAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for url, client := range a.clients {
		client.Close()
		delete(a.clients, url)
	}
}
