package ports

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized is returned when none of a commitment's output
	// addresses are present in the authorized-addresses database.
	ErrUnauthorized = errors.New("commitment: no output pays an authorized address")
	// ErrCommitmentReusedVault mirrors ports.ErrCommitmentReused at the
	// verifier boundary, before any store write is attempted.
	ErrCommitmentReusedVault = errors.New("commitment: already bound to a different vault")
	// ErrAuthorizationUnavailable is returned when the authorized
	// addresses database file or table is missing.
	ErrAuthorizationUnavailable = errors.New("commitment: authorized addresses database unavailable")
)

// CommitmentVerifier performs two checks:
// authorization at registration time, and spend-proof before the first
// notification for a trigger bound to a commitment.
type CommitmentVerifier interface {
	// VerifyAuthorization decodes commitmentHex, checks for reuse under
	// a different vault, extracts its output addresses and checks them
	// against the authorized-addresses database for networkID. Returns
	// the commitment's txid on success.
	VerifyAuthorization(ctx context.Context, networkID, dbFolder, vaultID, commitmentHex string) (txid string, err error)

	// VerifySpend reports whether triggerTxid spends from commitmentTxid,
	// by inspecting triggerTxid's inputs via the chain client. Any chain
	// client error is swallowed and reported as false — the caller
	// retries on a later cycle.
	VerifySpend(ctx context.Context, triggerTxid, commitmentTxid string) bool
}
