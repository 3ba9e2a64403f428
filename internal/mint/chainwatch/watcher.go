// Package chainwatch polls the minting contract for mint events and hands them
// to the reconciler in block-range batches.
package chainwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"mintgate/internal/mint/metrics"
	"mintgate/internal/mint/models"
)

// LogSource is the subset of the Ethereum RPC the watcher needs.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Batch is every mint event in [FromBlock, ToBlock]. The receiver must send
// exactly one result on Done.
type Batch struct {
	FromBlock uint64
	ToBlock   uint64
	Events    []models.ConfirmationEvidence
	Done      chan error
}

// Watcher walks the chain from its cursor to head. The cursor only moves past
// a range once the reconciler reports the batch applied, so a failed batch is
// fetched again on the next poll.
type Watcher struct {
	client       LogSource
	contract     common.Address
	event        abi.Event
	out          chan<- Batch
	pollInterval time.Duration
	blockBatch   uint64
	cursor       uint64
	startBlock   uint64
	started      bool
	cursors      CursorStore
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures a Watcher.
type Option func(*Watcher)

func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithBlockBatch caps the block span of one FilterLogs call.
func WithBlockBatch(n uint64) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.blockBatch = n
		}
	}
}

// WithStartBlock scans from block n instead of the head seen at startup. A
// saved cursor takes precedence.
func WithStartBlock(n uint64) Option {
	return func(w *Watcher) {
		w.startBlock = n
	}
}

// WithCursorStore resumes from, and records, the last applied block.
func WithCursorStore(store CursorStore) Option {
	return func(w *Watcher) {
		w.cursors = store
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Watcher) {
		w.metrics = m
	}
}

// New builds a watcher for eventName of contractABI at contract.
func New(client LogSource, contract common.Address, contractABI abi.ABI, eventName string, out chan<- Batch, opts ...Option) (*Watcher, error) {
	event, ok := contractABI.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("event %s not found in contract abi", eventName)
	}
	w := &Watcher{
		client:       client,
		contract:     contract,
		event:        event,
		out:          out,
		pollInterval: 15 * time.Second,
		blockBatch:   2000,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		if err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.logger.WarnContext(ctx, "chain poll failed", "cursor", w.cursor, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll catches up from the cursor to the current head.
func (w *Watcher) Poll(ctx context.Context) error {
	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("fetch head: %w", err)
	}
	if !w.started {
		atHead, err := w.resume(ctx, head)
		if err != nil {
			return err
		}
		if atHead {
			return nil
		}
	}

	for w.cursor < head {
		from := w.cursor + 1
		to := min(head, w.cursor+w.blockBatch)

		events, err := w.fetch(ctx, from, to)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			if err := w.deliver(ctx, Batch{FromBlock: from, ToBlock: to, Events: events}); err != nil {
				return fmt.Errorf("apply blocks %d-%d: %w", from, to, err)
			}
		}
		w.advance(ctx, to)
	}
	return nil
}

// resume picks the first cursor: the saved one, then the configured start
// block, then head. It reports whether the watcher started at head.
func (w *Watcher) resume(ctx context.Context, head uint64) (bool, error) {
	if w.cursors != nil {
		saved, ok, err := w.cursors.LoadCursor(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			w.cursor = saved
			w.started = true
			w.metrics.SetWatcherCursor(saved)
			w.logger.InfoContext(ctx, "chain watcher resuming", "block", saved+1, "head", head)
			return false, nil
		}
	}
	if w.startBlock > 0 {
		w.cursor = w.startBlock - 1
		w.started = true
		w.logger.InfoContext(ctx, "chain watcher starting at configured block", "block", w.startBlock, "head", head)
		return false, nil
	}
	w.started = true
	w.advance(ctx, head)
	w.logger.InfoContext(ctx, "chain watcher starting at head", "block", head)
	return true, nil
}

func (w *Watcher) advance(ctx context.Context, block uint64) {
	w.cursor = block
	w.metrics.SetWatcherCursor(block)
	if w.cursors == nil {
		return
	}
	// The in-memory cursor still moves; a lost save only means a rescan.
	if err := w.cursors.SaveCursor(ctx, block); err != nil {
		w.logger.WarnContext(ctx, "chain cursor not saved", "block", block, "error", err)
	}
}

// Cursor is the last fully applied block.
func (w *Watcher) Cursor() uint64 {
	return w.cursor
}

func (w *Watcher) deliver(ctx context.Context, b Batch) error {
	b.Done = make(chan error, 1)
	select {
	case w.out <- b:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-b.Done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Watcher) fetch(ctx context.Context, from, to uint64) ([]models.ConfirmationEvidence, error) {
	logs, err := w.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{w.contract},
		Topics:    [][]common.Hash{{w.event.ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}

	gasByTx := make(map[common.Hash]uint64)
	out := make([]models.ConfirmationEvidence, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := decodeMinted(w.event, lg)
		if err != nil {
			w.logger.WarnContext(ctx, "skipping undecodable mint log",
				"tx", lg.TxHash.Hex(),
				"index", lg.Index,
				"error", err,
			)
			continue
		}
		gas, ok := gasByTx[lg.TxHash]
		if !ok {
			gas = w.gasUsed(ctx, lg.TxHash)
			gasByTx[lg.TxHash] = gas
		}
		ev.GasUsed = gas
		out = append(out, ev)
	}
	return out, nil
}

func (w *Watcher) gasUsed(ctx context.Context, tx common.Hash) uint64 {
	receipt, err := w.client.TransactionReceipt(ctx, tx)
	if err != nil || receipt == nil {
		w.logger.WarnContext(ctx, "receipt unavailable, recording zero gas", "tx", tx.Hex(), "error", err)
		return 0
	}
	return receipt.GasUsed
}

// decodeMinted reads (uint256 tokenId, string tokenURI, address recipient)
// from lg regardless of which inputs are indexed.
func decodeMinted(event abi.Event, lg gethtypes.Log) (models.ConfirmationEvidence, error) {
	if len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
		return models.ConfirmationEvidence{}, errors.New("topic does not match event")
	}
	values := make(map[string]any, len(event.Inputs))
	var indexed abi.Arguments
	for _, in := range event.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, lg.Topics[1:]); err != nil {
		return models.ConfirmationEvidence{}, fmt.Errorf("parse topics: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(values, lg.Data); err != nil {
		return models.ConfirmationEvidence{}, fmt.Errorf("unpack data: %w", err)
	}

	ev := models.ConfirmationEvidence{
		TransactionHash: lg.TxHash.Hex(),
		BlockNumber:     lg.BlockNumber,
		Source:          models.SourceChainEvent,
	}
	var haveID, haveRecipient bool
	for _, in := range event.Inputs {
		switch v := values[in.Name].(type) {
		case *big.Int:
			if !haveID {
				if !v.IsInt64() {
					return ev, fmt.Errorf("token id %s overflows int64", v)
				}
				ev.TokenID, haveID = v.Int64(), true
			}
		case string:
			if ev.TokenURI == "" {
				ev.TokenURI = v
			}
		case common.Address:
			if !haveRecipient {
				ev.Recipient, haveRecipient = models.NormalizeAddress(v.Hex()), true
			}
		}
	}
	if !haveID || !haveRecipient {
		return ev, errors.New("event lacks token id or recipient")
	}
	return ev, nil
}
