// Package txn submits registry writes and tracks them to a terminal status.
//
// A write goes through two phases. Submit sends exactly one transaction through the live
// binding and returns once the node accepted it. AwaitConfirmation polls for the receipt
// until the transaction is mined, the confirmation timeout elapses or the caller gives up.
// Nothing is retried: a failed transaction is reported, never resubmitted.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/ruteri/credential-registry-client/interfaces"
	"github.com/ruteri/credential-registry-client/metrics"
	"github.com/ruteri/credential-registry-client/registry"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultTimeout      = 5 * time.Minute
)

// Status of a pending transaction. Submitted moves to exactly one of the terminal statuses.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// BindingSource provides the live contract binding, typically a wallet.SessionManager.
type BindingSource interface {
	Binding(ctx context.Context) (*registry.Binding, error)
}

// PendingTx tracks one submitted transaction.
type PendingTx struct {
	ID          uuid.UUID
	Hash        common.Hash
	Operation   Operation
	Status      Status
	Err         error
	Receipt     *types.Receipt
	Events      []registry.Event
	SubmittedAt time.Time

	call     Call
	tx       *types.Transaction
	contract interfaces.CredentialRegistry
}

// Message describes the transaction the way it is shown to the user.
func (p *PendingTx) Message() string {
	switch p.Status {
	case StatusConfirmed:
		return p.call.SuccessMessage()
	case StatusFailed:
		return fmt.Sprintf("Transaction %s failed: %v", p.Hash.Hex(), p.Err)
	default:
		return fmt.Sprintf("Transaction submitted, waiting for confirmation. Transaction hash: %s", p.Hash.Hex())
	}
}

// Config controls receipt polling.
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Orchestrator runs registry writes against the session's binding.
type Orchestrator struct {
	bindings BindingSource
	cfg      Config
	log      *slog.Logger
}

// New creates an orchestrator. Zero config values are replaced by the defaults.
func New(bindings BindingSource, cfg Config, log *slog.Logger) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Orchestrator{bindings: bindings, cfg: cfg, log: log}
}

// Submit sends call exactly once. The returned transaction is in StatusSubmitted; errors
// raised before the node accepted the transaction are classified and returned instead.
func (o *Orchestrator) Submit(ctx context.Context, call Call) (*PendingTx, error) {
	binding, err := o.bindings.Binding(ctx)
	if err != nil {
		return nil, err
	}

	contract := binding.Registry()
	tx, err := call.Send(ctx, contract)
	if err != nil {
		err = registry.ClassifyError(err)
		o.log.Warn("Transaction rejected before submission", "operation", call.Operation(), "account", binding.Account().Hex(), "err", err)
		return nil, err
	}

	pending := &PendingTx{
		ID:          uuid.New(),
		Hash:        tx.Hash(),
		Operation:   call.Operation(),
		Status:      StatusSubmitted,
		SubmittedAt: time.Now(),
		call:        call,
		tx:          tx,
		contract:    contract,
	}
	metrics.RecordTxSubmitted(string(pending.Operation))
	o.log.Info("Transaction submitted", "id", pending.ID, "operation", pending.Operation, "tx", pending.Hash.Hex())

	return pending, nil
}

// AwaitConfirmation polls for the receipt of pending. A mined transaction ends confirmed
// (status 1) or failed with a RevertError (status 0). A failed receipt lookup or an elapsed
// timeout ends failed with ErrNetwork. When ctx is cancelled first, the transaction stays
// submitted and ctx.Err() is returned.
func (o *Orchestrator) AwaitConfirmation(ctx context.Context, pending *PendingTx) (*PendingTx, error) {
	if pending.Status != StatusSubmitted {
		return pending, pending.Err
	}

	timeout := time.NewTimer(o.cfg.Timeout)
	defer timeout.Stop()
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	o.log.Debug("Waiting for receipt", "id", pending.ID, "tx", pending.Hash.Hex())

	for {
		receipt, err := pending.contract.TransactionReceipt(ctx, pending.Hash)
		switch {
		case err == nil && receipt != nil:
			return o.settle(ctx, pending, receipt)
		case ctx.Err() != nil:
			return pending, ctx.Err()
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return o.fail(pending, fmt.Errorf("%w: receipt lookup failed: %w", interfaces.ErrNetwork, err))
		}

		select {
		case <-ticker.C:
		case <-timeout.C:
			o.log.Debug("Pending transaction / Wait receipt timeout", "id", pending.ID, "tx", pending.Hash.Hex())
			return o.fail(pending, fmt.Errorf("%w: transaction not mined within %s", interfaces.ErrNetwork, o.cfg.Timeout))
		case <-ctx.Done():
			return pending, ctx.Err()
		}
	}
}

// Execute submits call and waits for its confirmation.
func (o *Orchestrator) Execute(ctx context.Context, call Call) (*PendingTx, error) {
	pending, err := o.Submit(ctx, call)
	if err != nil {
		return nil, err
	}
	return o.AwaitConfirmation(ctx, pending)
}

func (o *Orchestrator) settle(ctx context.Context, pending *PendingTx, receipt *types.Receipt) (*PendingTx, error) {
	pending.Receipt = receipt

	if receipt.Status == types.ReceiptStatusSuccessful {
		pending.Status = StatusConfirmed
		if parsed, err := registry.ParsedABI(); err == nil {
			pending.Events = registry.DecodeEvents(parsed, pending.contract.Address(), receipt)
		}
		for _, ev := range pending.Events {
			o.log.Info("Registry event", "id", pending.ID, "event", ev.Name, "fields", ev.Fields)
		}

		metrics.RecordTxFinished(string(pending.Operation), string(StatusConfirmed), time.Since(pending.SubmittedAt))
		o.log.Info("Transaction confirmed", "id", pending.ID, "operation", pending.Operation, "tx", pending.Hash.Hex(), "block", receipt.BlockNumber)
		return pending, nil
	}

	reason, err := pending.contract.RevertReason(ctx, pending.tx, receipt)
	if err != nil {
		o.log.Debug("Could not replay failed transaction", "tx", pending.Hash.Hex(), "err", err)
	}
	if reason == "" {
		reason = interfaces.GenericRevertReason
	}
	return o.fail(pending, &interfaces.RevertError{Reason: reason})
}

func (o *Orchestrator) fail(pending *PendingTx, err error) (*PendingTx, error) {
	pending.Status = StatusFailed
	pending.Err = err
	metrics.RecordTxFinished(string(pending.Operation), string(StatusFailed), time.Since(pending.SubmittedAt))
	o.log.Warn("Transaction failed", "id", pending.ID, "operation", pending.Operation, "tx", pending.Hash.Hex(), "err", err)
	return pending, err
}
