package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ark-network/watchtower/internal/core/domain"
	"github.com/ark-network/watchtower/internal/core/ports"
)

// Store is the sqlite-backed implementation of ports.Store for one
// network's watchtower.{networkId}.sqlite file.
type Store struct {
	db *sql.DB
}

var _ ports.Store = (*Store)(nil)

func NewStore(dbPath string) (*Store, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RegisterVault(ctx context.Context, reg ports.VaultRegistration) error {
	return execTx(ctx, s.db, func(tx *sql.Tx) error {
		if reg.CommitmentTxid != "" {
			var existingVaultID string
			err := tx.QueryRowContext(ctx,
				`SELECT vault_id FROM commitments WHERE txid = ?`, reg.CommitmentTxid,
			).Scan(&existingVaultID)
			switch {
			case err == sql.ErrNoRows:
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO commitments (txid, vault_id, created_at) VALUES (?, ?, ?)`,
					reg.CommitmentTxid, reg.VaultID, time.Now().UTC(),
				); err != nil {
					return fmt.Errorf("sqlite: insert commitment: %w", err)
				}
			case err != nil:
				return fmt.Errorf("sqlite: lookup commitment: %w", err)
			case existingVaultID != reg.VaultID:
				return ports.ErrCommitmentReused
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notifications (
				push_token, vault_id, wallet_id, wallet_name, vault_number,
				watchtower_id, locale, attempt_count, acknowledged
			) VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0)
			ON CONFLICT (push_token, vault_id) DO NOTHING`,
			reg.PushToken, reg.VaultID, reg.WalletID, reg.WalletName, reg.VaultNumber,
			reg.WatchtowerID, localeOrDefault(reg.Locale),
		); err != nil {
			return fmt.Errorf("sqlite: insert notification: %w", err)
		}

		for _, txid := range reg.TriggerTxids {
			var commitmentTxid sql.NullString
			if reg.CommitmentTxid != "" {
				commitmentTxid = sql.NullString{String: reg.CommitmentTxid, Valid: true}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vault_txids (txid, vault_id, status, commitment_txid)
				 VALUES (?, ?, 'unchecked', ?)
				 ON CONFLICT (txid) DO NOTHING`,
				txid, reg.VaultID, commitmentTxid,
			); err != nil {
				return fmt.Errorf("sqlite: insert trigger: %w", err)
			}
		}

		return nil
	})
}

func localeOrDefault(locale string) string {
	if locale == "" {
		return "en"
	}
	return locale
}

func (s *Store) LastCheckedHeight(ctx context.Context) (int64, bool, error) {
	var height sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_checked_height FROM network_state WHERE id = 1`,
	).Scan(&height)
	switch {
	case err == sql.ErrNoRows:
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("sqlite: read network state: %w", err)
	case !height.Valid:
		return 0, false, nil
	default:
		return height.Int64, true, nil
	}
}

func (s *Store) SetLastCheckedHeight(ctx context.Context, height int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO network_state (id, last_checked_height) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET last_checked_height = excluded.last_checked_height`,
		height,
	)
	if err != nil {
		return fmt.Errorf("sqlite: write network state: %w", err)
	}
	return nil
}

func (s *Store) TriggersByStatus(ctx context.Context, statuses ...domain.TriggerStatus) ([]domain.TriggerTx, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT txid, vault_id, status, commitment_txid FROM vault_txids WHERE status IN (` + placeholders(len(statuses)) + `)`
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query triggers by status: %w", err)
	}
	defer rows.Close()
	return scanTriggers(rows)
}

func (s *Store) TriggerByTxid(ctx context.Context, txid string) (*domain.TriggerTx, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT txid, vault_id, status, commitment_txid FROM vault_txids WHERE txid = ?`, txid,
	)
	t, err := scanTrigger(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: query trigger: %w", err)
	}
	return t, nil
}

func (s *Store) AnyTriggerNotUnchecked(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM vault_txids WHERE status != 'unchecked'`,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: count checked triggers: %w", err)
	}
	return count > 0, nil
}

func (s *Store) SetTriggerStatus(ctx context.Context, txid string, status domain.TriggerStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vault_txids SET status = ? WHERE txid = ?`, string(status), txid,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update trigger status: %w", err)
	}
	return nil
}

func (s *Store) CommitmentByTxid(ctx context.Context, txid string) (*domain.Commitment, error) {
	var c domain.Commitment
	err := s.db.QueryRowContext(ctx,
		`SELECT txid, vault_id, created_at FROM commitments WHERE txid = ?`, txid,
	).Scan(&c.Txid, &c.VaultID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: query commitment: %w", err)
	}
	return &c, nil
}

func (s *Store) DueNotifications(ctx context.Context, now time.Time) ([]domain.NotificationRegistration, error) {
	// The "due" predicate is evaluated in Go rather than SQL
	// time arithmetic: it keeps the scheduler's retry cadence readable
	// and testable without depending on sqlite's date functions.
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.push_token, n.vault_id, n.wallet_id, n.wallet_name, n.vault_number,
		       n.watchtower_id, n.locale, n.first_attempt_at, n.last_attempt_at,
		       n.attempt_count, n.acknowledged, v.status
		FROM notifications n
		JOIN vault_txids v ON v.vault_id = n.vault_id
		WHERE n.acknowledged = 0
		  AND v.status IN ('reversible', 'irreversible')
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query due notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.NotificationRegistration
	seen := make(map[string]struct{})
	for rows.Next() {
		var reg domain.NotificationRegistration
		var firstAttempt, lastAttempt sql.NullTime
		var ack int
		var status string
		if err := rows.Scan(
			&reg.PushToken, &reg.VaultID, &reg.WalletID, &reg.WalletName, &reg.VaultNumber,
			&reg.WatchtowerID, &reg.Locale, &firstAttempt, &lastAttempt, &reg.AttemptCount,
			&ack, &status,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan due notification: %w", err)
		}
		reg.Acknowledged = ack != 0
		if firstAttempt.Valid {
			t := firstAttempt.Time
			reg.FirstAttemptAt = &t
		}
		if lastAttempt.Valid {
			t := lastAttempt.Time
			reg.LastAttemptAt = &t
		}

		key := reg.PushToken + "|" + reg.VaultID
		if _, dup := seen[key]; dup {
			continue
		}
		if !isDue(reg, now) {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func isDue(reg domain.NotificationRegistration, now time.Time) bool {
	if reg.FirstAttemptAt != nil && now.Sub(*reg.FirstAttemptAt) > domain.MaxRetryWindow {
		return false
	}
	if reg.AttemptCount == 0 {
		return true
	}
	if reg.FirstAttemptAt == nil || reg.LastAttemptAt == nil {
		return false
	}
	sinceFirst := now.Sub(*reg.FirstAttemptAt)
	sinceLast := now.Sub(*reg.LastAttemptAt)
	if sinceFirst <= domain.FirstDayWindow {
		return sinceLast >= domain.FirstDayRetryInterval
	}
	return sinceLast >= domain.LongTermRetryInterval
}

func (s *Store) RecordAttempt(ctx context.Context, pushToken, vaultID string, firstAttemptAt, lastAttemptAt time.Time, attemptCount int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET first_attempt_at = ?, last_attempt_at = ?, attempt_count = ?
		 WHERE push_token = ? AND vault_id = ?`,
		firstAttemptAt, lastAttemptAt, attemptCount, pushToken, vaultID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: record attempt: %w", err)
	}
	return nil
}

func (s *Store) SetAcknowledged(ctx context.Context, pushToken, vaultID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET acknowledged = 1 WHERE push_token = ? AND vault_id = ?`,
		pushToken, vaultID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: set acknowledged: %w", err)
	}
	return nil
}

func (s *Store) ResetDeliveryBookkeeping(ctx context.Context, vaultID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET first_attempt_at = NULL, last_attempt_at = NULL, attempt_count = 0
		 WHERE vault_id = ?`,
		vaultID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: reset delivery bookkeeping: %w", err)
	}
	return nil
}

// NotificationsByPushToken returns every registration for pushToken,
// unfiltered by acknowledgement or trigger visibility: callers (the HTTP
// handlers) apply whichever filter their endpoint needs.
func (s *Store) NotificationsByPushToken(ctx context.Context, pushToken string) ([]domain.NotificationRegistration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT push_token, vault_id, wallet_id, wallet_name, vault_number,
		       watchtower_id, locale, first_attempt_at, last_attempt_at,
		       attempt_count, acknowledged
		FROM notifications
		WHERE push_token = ?
	`, pushToken)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query notifications by push token: %w", err)
	}
	defer rows.Close()

	var out []domain.NotificationRegistration
	for rows.Next() {
		var reg domain.NotificationRegistration
		var firstAttempt, lastAttempt sql.NullTime
		var ack int
		if err := rows.Scan(
			&reg.PushToken, &reg.VaultID, &reg.WalletID, &reg.WalletName, &reg.VaultNumber,
			&reg.WatchtowerID, &reg.Locale, &firstAttempt, &lastAttempt, &reg.AttemptCount, &ack,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan notification: %w", err)
		}
		reg.Acknowledged = ack != 0
		if firstAttempt.Valid {
			t := firstAttempt.Time
			reg.FirstAttemptAt = &t
		}
		if lastAttempt.Valid {
			t := lastAttempt.Time
			reg.LastAttemptAt = &t
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func scanTriggers(rows *sql.Rows) ([]domain.TriggerTx, error) {
	var out []domain.TriggerTx
	for rows.Next() {
		var t domain.TriggerTx
		var status string
		var commitmentTxid sql.NullString
		if err := rows.Scan(&t.Txid, &t.VaultID, &status, &commitmentTxid); err != nil {
			return nil, fmt.Errorf("sqlite: scan trigger: %w", err)
		}
		t.Status = domain.TriggerStatus(status)
		if commitmentTxid.Valid {
			t.CommitmentTxid = commitmentTxid.String
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type row interface {
	Scan(dest ...interface{}) error
}

func scanTrigger(r row) (*domain.TriggerTx, error) {
	var t domain.TriggerTx
	var status string
	var commitmentTxid sql.NullString
	if err := r.Scan(&t.Txid, &t.VaultID, &status, &commitmentTxid); err != nil {
		return nil, err
	}
	t.Status = domain.TriggerStatus(status)
	if commitmentTxid.Valid {
		t.CommitmentTxid = commitmentTxid.String
	}
	return &t, nil
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ", "
		}
		s += "?"
	}
	return s
}
