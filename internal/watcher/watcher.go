// Package watcher monitors the Ethereum chain for payments landing on
// invoice deposit addresses.
//
// Each ETH invoice gets a provider-issued deposit address. The watcher
// polls for token Transfer events to tracked addresses and resolves the
// matching invoice, giving the engine a third resolution source that does
// not depend on the user pressing "check" or the expiry sweep's last look.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ERC20 Transfer event signature
var transferEventSig = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// Confirmer resolves invoices on out-of-band confirmation.
type Confirmer interface {
	ConfirmExternal(ctx context.Context, invoiceID string)
}

// Config for the deposit watcher.
type Config struct {
	RPCURL        string
	TokenContract common.Address
	PollInterval  time.Duration
	StartBlock    uint64 // 0 = latest
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 15 * time.Second,
		StartBlock:   0,
	}
}

// Watcher polls for transfers to tracked invoice addresses.
type Watcher struct {
	client    *ethclient.Client
	config    Config
	confirmer Confirmer
	logger    *slog.Logger

	// Invoice addresses still awaiting payment, keyed by lowercase hex.
	tracked map[string]string // address -> invoice ID
	mu      sync.Mutex

	lastBlock uint64

	stop chan struct{}
	done chan struct{}
}

// New creates a deposit watcher.
func New(cfg Config, confirmer Confirmer, logger *slog.Logger) (*Watcher, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	return &Watcher{
		client:    client,
		config:    cfg,
		confirmer: confirmer,
		logger:    logger,
		tracked:   make(map[string]string),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Track registers an invoice's deposit address for watching.
func (w *Watcher) Track(invoiceID, payAddress string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked[strings.ToLower(payAddress)] = invoiceID
}

// Untrack drops an address, used once the invoice reaches a terminal state.
func (w *Watcher) Untrack(payAddress string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.tracked, strings.ToLower(payAddress))
}

// Start begins watching for deposits.
func (w *Watcher) Start(ctx context.Context) error {
	if w.config.StartBlock == 0 {
		block, err := w.client.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to get block number: %w", err)
		}
		w.lastBlock = block
	} else {
		w.lastBlock = w.config.StartBlock
	}

	w.logger.Info("deposit watcher started",
		"token", w.config.TokenContract.Hex(),
		"startBlock", w.lastBlock,
	)

	go w.pollLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.checkForDeposits(ctx); err != nil {
				w.logger.Error("deposit check failed", "error", err)
			}
		}
	}
}

func (w *Watcher) checkForDeposits(ctx context.Context) error {
	w.mu.Lock()
	watching := len(w.tracked)
	w.mu.Unlock()
	if watching == 0 {
		return nil
	}

	currentBlock, err := w.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}
	if currentBlock <= w.lastBlock {
		return nil
	}

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(int64(w.lastBlock + 1)),
		ToBlock:   big.NewInt(int64(currentBlock)),
		Addresses: []common.Address{w.config.TokenContract},
		Topics: [][]common.Hash{
			{transferEventSig}, // Transfer event; recipients matched below
		},
	}

	logs, err := w.client.FilterLogs(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to filter logs: %w", err)
	}

	for _, vLog := range logs {
		w.processTransfer(ctx, vLog)
	}

	w.lastBlock = currentBlock
	return nil
}

func (w *Watcher) processTransfer(ctx context.Context, vLog types.Log) {
	// Topics[1] = from address (indexed)
	// Topics[2] = to address (indexed)
	// Data = amount
	if len(vLog.Topics) < 3 {
		return
	}

	to := strings.ToLower(common.HexToAddress(vLog.Topics[2].Hex()).Hex())

	w.mu.Lock()
	invoiceID, ok := w.tracked[to]
	if ok {
		delete(w.tracked, to)
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	amount := new(big.Int).SetBytes(vLog.Data)
	w.logger.Info("deposit observed",
		"invoice_id", invoiceID,
		"to", to,
		"amount", amount.String(),
		"tx", vLog.TxHash.Hex(),
	)

	// The registry's atomic transition makes a duplicate confirmation
	// harmless; the provider remains the authority on the paid amount.
	w.confirmer.ConfirmExternal(ctx, invoiceID)
}
