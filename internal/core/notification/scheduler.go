package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/ark-network/watchtower/internal/core/domain"
	"github.com/ark-network/watchtower/internal/core/ports"
	"github.com/sirupsen/logrus"
)

// Scheduler selects due notification registrations, gates the first
// attempt behind spend-proof when a commitment is bound, persists
// attempt bookkeeping before sending, and delivers the push.
type Scheduler struct {
	networkID string
	store     ports.Store
	verifier  ports.CommitmentVerifier
	sender    ports.PushSender
	now       func() time.Time
	log       *logrus.Entry
}

func New(networkID string, store ports.Store, verifier ports.CommitmentVerifier, sender ports.PushSender) *Scheduler {
	return &Scheduler{
		networkID: networkID,
		store:     store,
		verifier:  verifier,
		sender:    sender,
		now:       time.Now,
		log:       logrus.WithField("network", networkID),
	}
}

func (s *Scheduler) RunCycle(ctx context.Context) error {
	now := s.now().UTC()

	due, err := s.store.DueNotifications(ctx, now)
	if err != nil {
		return fmt.Errorf("notification scheduler: list due: %w", err)
	}

	for _, reg := range due {
		if err := s.attempt(ctx, reg, now); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"pushToken": reg.PushToken, "vaultId": reg.VaultID,
			}).Error("notification attempt failed")
		}
	}
	return nil
}

func (s *Scheduler) attempt(ctx context.Context, reg domain.NotificationRegistration, now time.Time) error {
	isFirstAttempt := reg.AttemptCount == 0

	if isFirstAttempt {
		ok, err := s.firstAttemptGate(ctx, reg)
		if err != nil {
			return err
		}
		if !ok {
			return nil // skipped this cycle, bookkeeping untouched
		}
	}

	// reg.RecordAttempt computes the bookkeeping mutation; the store call
	// right after is what actually persists it, before the push is sent.
	reg.RecordAttempt(now)

	if err := s.store.RecordAttempt(ctx, reg.PushToken, reg.VaultID, *reg.FirstAttemptAt, *reg.LastAttemptAt, reg.AttemptCount); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}

	msg, err := s.buildMessage(ctx, reg, *reg.FirstAttemptAt, isFirstAttempt, reg.AttemptCount, now)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		// DeliveryFailure: bookkeeping already recorded, retried on
		// the regular schedule by a later cycle.
		return fmt.Errorf("send push: %w", err)
	}
	return nil
}

// firstAttemptGate implements the spend-proof check: a
// trigger bound to a commitment may only receive its first push once
// the trigger is proven to spend from that commitment.
func (s *Scheduler) firstAttemptGate(ctx context.Context, reg domain.NotificationRegistration) (bool, error) {
	triggers, err := triggersForVault(ctx, s.store, reg.VaultID)
	if err != nil {
		return false, err
	}
	for _, t := range triggers {
		if t.CommitmentTxid == "" {
			continue
		}
		if !s.verifier.VerifySpend(ctx, t.Txid, t.CommitmentTxid) {
			return false, nil
		}
	}
	return true, nil
}

// triggersForVault enumerates every trigger row bound to a vault. The
// store is keyed by txid, not vaultId, so this scans triggers that are
// currently eligible for notification (reversible/irreversible) and
// filters by vault in Go rather than adding a vault-indexed query the
// rest of the store never needs.
func triggersForVault(ctx context.Context, store ports.Store, vaultID string) ([]domain.TriggerTx, error) {
	triggers, err := store.TriggersByStatus(ctx, domain.StatusReversible, domain.StatusIrreversible)
	if err != nil {
		return nil, fmt.Errorf("list triggers for vault: %w", err)
	}
	out := make([]domain.TriggerTx, 0, len(triggers))
	for _, t := range triggers {
		if t.VaultID == vaultID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Scheduler) buildMessage(ctx context.Context, reg domain.NotificationRegistration, firstAttemptAt time.Time, isFirstAttempt bool, attemptCount int64, now time.Time) (ports.PushMessage, error) {
	triggers, err := triggersForVault(ctx, s.store, reg.VaultID)
	if err != nil {
		return ports.PushMessage{}, err
	}
	var txid string
	if len(triggers) > 0 {
		txid = triggers[0].Txid
	}

	title, body := composeMessage(reg.Locale, reg.WalletName, reg.VaultNumber, firstAttemptAt, isFirstAttempt, now)

	return ports.PushMessage{
		To:    reg.PushToken,
		Title: title,
		Body:  body,
		Data: map[string]interface{}{
			"vaultId":         reg.VaultID,
			"walletId":        reg.WalletID,
			"walletName":      reg.WalletName,
			"vaultNumber":     reg.VaultNumber,
			"watchtowerId":    reg.WatchtowerID,
			"txid":            txid,
			"attemptCount":    attemptCount,
			"firstDetectedAt": firstAttemptAt.Unix(),
			"networkId":       s.networkID,
		},
	}, nil
}
