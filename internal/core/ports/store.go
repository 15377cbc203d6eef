package ports

import (
	"context"
	"errors"
	"time"

	"github.com/ark-network/watchtower/internal/core/domain"
)

// ErrCommitmentReused is returned when a commitment txid is already
// bound to a different vault than the one being registered.
var ErrCommitmentReused = errors.New("store: commitment already bound to another vault")

// VaultRegistration is the atomic unit of a single registration call:
// one commitment (optional), one set of trigger txids, and the devices
// that should be notified about it.
type VaultRegistration struct {
	VaultID      string
	WalletID     string
	WalletName   string
	VaultNumber  int64
	WatchtowerID string
	Locale       string
	PushToken    string
	TriggerTxids []string
	CommitmentTxid string // empty if the vault has no commitment
}

// Store is the transactional persistence layer over notifications,
// vault_txids, commitments and network_state. Every method
// that mutates more than one row executes inside a single transaction.
type Store interface {
	// RegisterVault atomically writes the commitment row (if any), the
	// notification row, and the trigger rows for one registration. A
	// trigger txid already registered under a different vault is a
	// silent no-op for that txid (first write wins); registering the
	// same commitment under a different vault returns ErrCommitmentReused.
	RegisterVault(ctx context.Context, reg VaultRegistration) error

	// LastCheckedHeight returns the persisted cycle-resumption height,
	// or (0, false) if the network_state row does not exist yet.
	LastCheckedHeight(ctx context.Context) (int64, bool, error)
	SetLastCheckedHeight(ctx context.Context, height int64) error

	// TriggersByStatus enumerates triggers in any of the given statuses.
	TriggersByStatus(ctx context.Context, statuses ...domain.TriggerStatus) ([]domain.TriggerTx, error)
	TriggerByTxid(ctx context.Context, txid string) (*domain.TriggerTx, error)
	// AnyTriggerNotUnchecked reports whether a trigger exists whose
	// status is not 'unchecked' — used by the first-run guard.
	AnyTriggerNotUnchecked(ctx context.Context) (bool, error)
	SetTriggerStatus(ctx context.Context, txid string, status domain.TriggerStatus) error

	CommitmentByTxid(ctx context.Context, txid string) (*domain.Commitment, error)

	// DueNotifications enumerates registrations eligible for a delivery
	// attempt at now.
	DueNotifications(ctx context.Context, now time.Time) ([]domain.NotificationRegistration, error)
	RecordAttempt(ctx context.Context, pushToken, vaultID string, firstAttemptAt, lastAttemptAt time.Time, attemptCount int64) error
	SetAcknowledged(ctx context.Context, pushToken, vaultID string) error
	// ResetDeliveryBookkeeping clears (firstAttemptAt, lastAttemptAt,
	// attemptCount) for every registration of vaultID, used when a
	// trigger disappears.
	ResetDeliveryBookkeeping(ctx context.Context, vaultID string) error

	NotificationsByPushToken(ctx context.Context, pushToken string) ([]domain.NotificationRegistration, error)

	Close() error
}
