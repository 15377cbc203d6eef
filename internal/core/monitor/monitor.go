package monitor

import (
	"context"
	"fmt"

	"github.com/ark-network/watchtower/internal/core/domain"
	"github.com/ark-network/watchtower/internal/core/notification"
	"github.com/ark-network/watchtower/internal/core/ports"
	"github.com/sirupsen/logrus"
)

// Monitor runs the per-network reconciliation cycle: reconcile unchecked
// triggers, rescan a bounded window for reorgs, sweep disappearances,
// then run the notification scheduler. It owns its own block cache;
// nothing about a Monitor is shared across networks.
type Monitor struct {
	networkID string
	threshold int64
	chain     ports.ChainClient
	store     ports.Store
	verifier  ports.CommitmentVerifier
	scheduler *notification.Scheduler
	cache     *blockCache
	log       *logrus.Entry
}

func New(
	networkID string,
	chain ports.ChainClient,
	store ports.Store,
	verifier ports.CommitmentVerifier,
	scheduler *notification.Scheduler,
) *Monitor {
	return &Monitor{
		networkID: networkID,
		threshold: domain.IrreversibleThreshold,
		chain:     chain,
		store:     store,
		verifier:  verifier,
		scheduler: scheduler,
		cache:     newBlockCache(),
		log:       logrus.WithField("network", networkID),
	}
}

// RunCycle executes one full cycle. Any error returned is already
// logged with context: the cache is cleared and last_checked_height is
// left untouched so the next cycle retries from the same point.
func (m *Monitor) RunCycle(ctx context.Context) error {
	if err := m.runCycle(ctx); err != nil {
		m.log.WithError(err).Error("cycle failed, clearing cache")
		m.cache.clear()
		return err
	}
	return nil
}

func (m *Monitor) runCycle(ctx context.Context) error {
	lastHeight, hadLastHeight, err := m.store.LastCheckedHeight(ctx)
	if err != nil {
		return fmt.Errorf("monitor: read last checked height: %w", err)
	}

	currentHeight, err := m.chain.TipHeight(ctx)
	if err != nil {
		return fmt.Errorf("monitor: fetch tip height: %w", err)
	}

	if !hadLastHeight {
		if err := m.assertFirstRunInvariant(ctx); err != nil {
			return err
		}
	}

	mempoolTxids, err := m.chain.MempoolTxids(ctx)
	if err != nil {
		return fmt.Errorf("monitor: fetch mempool txids: %w", err)
	}

	if err := m.reconcileUnchecked(ctx, currentHeight, mempoolTxids); err != nil {
		return err
	}

	var scannedBlockTxids map[string]struct{}
	windowScanRan := hadLastHeight && lastHeight > 0
	if windowScanRan {
		scannedBlockTxids, err = m.windowScan(ctx, lastHeight, currentHeight, mempoolTxids)
		if err != nil {
			return err
		}
	}

	// Without a window scan, a reversible trigger has no "was it in a
	// scanned block" answer: running the sweep on the first cycle would
	// flip a trigger reconcileUnchecked just confirmed (but below the
	// irreversible threshold) straight back to unseen before the
	// scheduler below gets a chance to notify on it.
	if windowScanRan {
		if err := m.disappearanceSweep(ctx, scannedBlockTxids, mempoolTxids); err != nil {
			return err
		}
	}

	if err := m.scheduler.RunCycle(ctx); err != nil {
		return fmt.Errorf("monitor: notification scheduler: %w", err)
	}

	if err := m.store.SetLastCheckedHeight(ctx, currentHeight); err != nil {
		return fmt.Errorf("monitor: commit last checked height: %w", err)
	}

	return nil
}

// assertFirstRunInvariant is the corruption guard run on a cold store:
// on a fresh store no trigger may have progressed past 'unchecked'.
func (m *Monitor) assertFirstRunInvariant(ctx context.Context) error {
	violated, err := m.store.AnyTriggerNotUnchecked(ctx)
	if err != nil {
		return fmt.Errorf("monitor: first-run guard query: %w", err)
	}
	if violated {
		return fmt.Errorf("monitor: corrupted store: trigger with non-unchecked status found on first run")
	}
	return nil
}

func (m *Monitor) reconcileUnchecked(ctx context.Context, currentHeight int64, mempoolTxids map[string]struct{}) error {
	unchecked, err := m.store.TriggersByStatus(ctx, domain.StatusUnchecked)
	if err != nil {
		return fmt.Errorf("monitor: list unchecked triggers: %w", err)
	}

	for _, t := range unchecked {
		status, err := m.chain.TxStatus(ctx, t.Txid)
		if err != nil {
			return fmt.Errorf("monitor: tx_status(%s): %w", t.Txid, err)
		}

		present := status != nil || mempoolTxidsContains(mempoolTxids, t.Txid)

		var next domain.TriggerStatus
		switch {
		case status != nil && status.Confirmed:
			next = statusForConfirmations(currentHeight, status.BlockHeight, m.threshold)
		case present:
			next = domain.StatusReversible
		default:
			next = domain.StatusUnseen
		}

		if err := m.setTriggerStatus(ctx, t, next); err != nil {
			return fmt.Errorf("monitor: set trigger status: %w", err)
		}
	}
	return nil
}

// setTriggerStatus writes next through the store, refusing any move the
// state machine forbids. A no-op (next == t.Status) is silently skipped
// rather than rejected, since reconfirming a trigger at the same status
// during a window scan is not a transition.
func (m *Monitor) setTriggerStatus(ctx context.Context, t domain.TriggerTx, next domain.TriggerStatus) error {
	if next == t.Status {
		return nil
	}
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("monitor: illegal trigger status transition %s -> %s for %s", t.Status, next, t.Txid)
	}
	return m.store.SetTriggerStatus(ctx, t.Txid, next)
}

func mempoolTxidsContains(set map[string]struct{}, txid string) bool {
	_, ok := set[txid]
	return ok
}

func statusForConfirmations(currentHeight, blockHeight int64, threshold int64) domain.TriggerStatus {
	confirmations := int64(0)
	if blockHeight > 0 {
		confirmations = currentHeight - blockHeight + 1
	}
	if confirmations >= threshold {
		return domain.StatusIrreversible
	}
	return domain.StatusReversible
}

// windowScan rescans [last-threshold, tip]
// to absorb reorgs up to threshold deep and re-confirm reversible blocks.
func (m *Monitor) windowScan(ctx context.Context, lastHeight, currentHeight int64, mempoolTxids map[string]struct{}) (map[string]struct{}, error) {
	start := lastHeight - m.threshold
	if start < 0 {
		start = 0
	}

	scanned := make(map[string]struct{})
	blockTxidsByHeight := make(map[int64]map[string]struct{})

	for h := start; h <= currentHeight; h++ {
		hash, err := m.chain.BlockHash(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("monitor: block_hash(%d): %w", h, err)
		}

		txids, ok := m.cache.get(hash)
		if !ok {
			txids, err = m.chain.BlockTxids(ctx, hash)
			if err != nil {
				return nil, fmt.Errorf("monitor: block_txids(%s): %w", hash, err)
			}
			m.cache.put(hash, txids, int(m.threshold))
		}

		set := make(map[string]struct{}, len(txids))
		for _, t := range txids {
			set[t] = struct{}{}
			scanned[t] = struct{}{}
		}
		blockTxidsByHeight[h] = set
	}

	candidates, err := m.store.TriggersByStatus(ctx, domain.StatusUnseen, domain.StatusReversible)
	if err != nil {
		return nil, fmt.Errorf("monitor: list unseen/reversible triggers: %w", err)
	}

	for _, t := range candidates {
		found := false
		for h := start; h <= currentHeight; h++ {
			if _, ok := blockTxidsByHeight[h][t.Txid]; ok {
				next := statusForConfirmations(currentHeight, h, m.threshold)
				if err := m.setTriggerStatus(ctx, t, next); err != nil {
					return nil, fmt.Errorf("monitor: set trigger status: %w", err)
				}
				found = true
				break
			}
		}
		if found {
			continue
		}
		if t.Status == domain.StatusUnseen && mempoolTxidsContains(mempoolTxids, t.Txid) {
			if err := m.setTriggerStatus(ctx, t, domain.StatusReversible); err != nil {
				return nil, fmt.Errorf("monitor: set trigger status: %w", err)
			}
		}
	}

	return scanned, nil
}

// disappearanceSweep clears triggers that vanished from both chain and mempool.
func (m *Monitor) disappearanceSweep(ctx context.Context, scannedBlockTxids, mempoolTxids map[string]struct{}) error {
	reversible, err := m.store.TriggersByStatus(ctx, domain.StatusReversible)
	if err != nil {
		return fmt.Errorf("monitor: list reversible triggers: %w", err)
	}

	for _, t := range reversible {
		_, inBlocks := scannedBlockTxids[t.Txid]
		_, inMempool := mempoolTxids[t.Txid]
		if inBlocks || inMempool {
			continue
		}

		if err := m.setTriggerStatus(ctx, t, domain.StatusUnseen); err != nil {
			return fmt.Errorf("monitor: set trigger status: %w", err)
		}
		if err := m.store.ResetDeliveryBookkeeping(ctx, t.VaultID); err != nil {
			return fmt.Errorf("monitor: reset delivery bookkeeping: %w", err)
		}
		m.log.WithFields(logrus.Fields{"txid": t.Txid, "vaultId": t.VaultID}).
			Warn("trigger disappeared, reset to unseen")
	}
	return nil
}
