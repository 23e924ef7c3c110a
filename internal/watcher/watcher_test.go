package watcher

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type recordingConfirmer struct {
	mu       sync.Mutex
	invoices []string
}

func (r *recordingConfirmer) ConfirmExternal(ctx context.Context, invoiceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices = append(r.invoices, invoiceID)
}

func newTestWatcher(confirmer Confirmer) *Watcher {
	return &Watcher{
		config:    DefaultConfig(),
		confirmer: confirmer,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracked:   make(map[string]string),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func transferLog(to common.Address, amount int64) types.Log {
	return types.Log{
		Topics: []common.Hash{
			transferEventSig,
			common.BytesToHash(common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:   big.NewInt(amount).FillBytes(make([]byte, 32)),
		TxHash: common.HexToHash("0xdeadbeef"),
	}
}

func TestProcessTransfer_ConfirmsTrackedInvoice(t *testing.T) {
	c := &recordingConfirmer{}
	w := newTestWatcher(c)

	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	w.Track("inv_1", addr.Hex())

	w.processTransfer(context.Background(), transferLog(addr, 1_000_000))

	if len(c.invoices) != 1 || c.invoices[0] != "inv_1" {
		t.Fatalf("expected inv_1 confirmed, got %v", c.invoices)
	}

	// The address is dropped after confirmation, so a replayed log is inert.
	w.processTransfer(context.Background(), transferLog(addr, 1_000_000))
	if len(c.invoices) != 1 {
		t.Errorf("replayed transfer confirmed again: %v", c.invoices)
	}
}

func TestProcessTransfer_IgnoresUntrackedAddress(t *testing.T) {
	c := &recordingConfirmer{}
	w := newTestWatcher(c)

	w.Track("inv_1", "0x2222222222222222222222222222222222222222")
	other := common.HexToAddress("0x3333333333333333333333333333333333333333")

	w.processTransfer(context.Background(), transferLog(other, 500))

	if len(c.invoices) != 0 {
		t.Fatalf("untracked transfer confirmed: %v", c.invoices)
	}
}

func TestProcessTransfer_MalformedLog(t *testing.T) {
	c := &recordingConfirmer{}
	w := newTestWatcher(c)
	w.Track("inv_1", "0x2222222222222222222222222222222222222222")

	w.processTransfer(context.Background(), types.Log{Topics: []common.Hash{transferEventSig}})

	if len(c.invoices) != 0 {
		t.Fatalf("malformed log confirmed an invoice: %v", c.invoices)
	}
}

func TestUntrack(t *testing.T) {
	c := &recordingConfirmer{}
	w := newTestWatcher(c)

	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	w.Track("inv_1", addr.Hex())
	w.Untrack(addr.Hex())

	w.processTransfer(context.Background(), transferLog(addr, 100))
	if len(c.invoices) != 0 {
		t.Fatalf("untracked invoice confirmed: %v", c.invoices)
	}
}
