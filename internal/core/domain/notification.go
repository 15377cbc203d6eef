package domain

import "time"

// NotificationRegistration is one (device, vault) pair registered for
// push delivery. It is created on registration and mutated only by the
// notification scheduler's attempt bookkeeping and by the ack endpoint.
type NotificationRegistration struct {
	PushToken      string
	VaultID        string
	WalletID       string
	WalletName     string
	VaultNumber    int64
	WatchtowerID   string
	Locale         string
	FirstAttemptAt *time.Time
	LastAttemptAt  *time.Time
	AttemptCount   int64
	Acknowledged   bool
}

// MaxRetryWindow bounds how long a registration keeps being retried from
// its first attempt before being permanently skipped.
const MaxRetryWindow = 7 * 24 * time.Hour

// FirstDayWindow is the span after the first attempt during which the
// retry cadence is every 6 hours instead of every 24 hours.
const FirstDayWindow = 24 * time.Hour

const (
	FirstDayRetryInterval = 6 * time.Hour
	LongTermRetryInterval = 24 * time.Hour
)

// ResetBookkeeping clears attempt tracking, e.g. when the underlying
// trigger disappears (reorg or mempool purge). The three fields move
// together.
func (r *NotificationRegistration) ResetBookkeeping() {
	r.FirstAttemptAt = nil
	r.LastAttemptAt = nil
	r.AttemptCount = 0
}

// RecordAttempt applies the bookkeeping mutation for a delivery attempt
// taken at now. It must be called, and persisted, before the push is
// actually sent.
func (r *NotificationRegistration) RecordAttempt(now time.Time) {
	if r.AttemptCount == 0 {
		r.FirstAttemptAt = &now
	}
	r.LastAttemptAt = &now
	r.AttemptCount++
}
