package commitment

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/ark-network/watchtower/internal/core/ports"
	sqlitedb "github.com/ark-network/watchtower/internal/infrastructure/db/sqlite"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"
)

// networkParams maps a watchtower network id to the btcsuite chain
// parameters used for address decoding. Tape, like regtest, is treated
// as a regression-network variant (it has no standalone chaincfg entry).
var networkParams = map[string]*chaincfg.Params{
	"bitcoin": &chaincfg.MainNetParams,
	"testnet": &chaincfg.TestNet3Params,
	"tape":    &chaincfg.RegressionNetParams,
	"regtest": &chaincfg.RegressionNetParams,
}

// Verifier implements ports.CommitmentVerifier for one network. It reads
// the network's own Store to detect commitment reuse and calls the
// network's ChainClient to verify trigger spend-proofs.
type Verifier struct {
	store       ports.Store
	chainClient ports.ChainClient
}

func New(store ports.Store, chainClient ports.ChainClient) *Verifier {
	return &Verifier{store: store, chainClient: chainClient}
}

var _ ports.CommitmentVerifier = (*Verifier)(nil)

func (v *Verifier) VerifyAuthorization(ctx context.Context, networkID, dbFolder, vaultID, commitmentHex string) (string, error) {
	rawTx, err := hex.DecodeString(commitmentHex)
	if err != nil {
		return "", fmt.Errorf("commitment: invalid hex: %w", err)
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return "", fmt.Errorf("commitment: decode transaction: %w", err)
	}
	txid := tx.TxHash().String()

	existing, err := v.store.CommitmentByTxid(ctx, txid)
	if err != nil {
		return "", fmt.Errorf("commitment: lookup existing: %w", err)
	}
	if existing != nil {
		if existing.VaultID == vaultID {
			return txid, nil // idempotent re-registration
		}
		return "", ports.ErrCommitmentReusedVault
	}

	params, ok := networkParams[networkID]
	if !ok {
		return "", fmt.Errorf("commitment: unknown network %q", networkID)
	}

	addressesDB, err := sqlitedb.OpenReadOnlyAddresses(filepath.Join(dbFolder, networkID+".sqlite"))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ports.ErrAuthorizationUnavailable, err)
	}
	defer addressesDB.Close()

	if err := ensureAddressesTable(ctx, addressesDB); err != nil {
		return "", err
	}

	authorized := false
	for _, out := range tx.TxOut {
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(out.PkScript, params)
		if err != nil || len(addrs) == 0 {
			continue // non-standard output, dropped
		}
		for _, addr := range addrs {
			ok, err := addressAuthorized(ctx, addressesDB, addr)
			if err != nil {
				return "", err
			}
			if ok {
				authorized = true
			}
		}
	}

	if !authorized {
		return "", ports.ErrUnauthorized
	}

	logrus.WithFields(logrus.Fields{"network": networkID, "vaultId": vaultID, "txid": txid}).
		Info("commitment authorized")
	return txid, nil
}

func ensureAddressesTable(ctx context.Context, db *sql.DB) error {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'addresses'`,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return ports.ErrAuthorizationUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s", ports.ErrAuthorizationUnavailable, err)
	}
	return nil
}

func addressAuthorized(ctx context.Context, db *sql.DB, addr btcutil.Address) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM addresses WHERE address = ?`, addr.EncodeAddress(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("commitment: query authorized addresses: %w", err)
	}
	return count > 0, nil
}

// VerifySpend fetches the trigger's tx details from the chain client and
// checks that one of its inputs spends the commitment txid. Any chain
// client error is swallowed to false: the caller retries next cycle.
func (v *Verifier) VerifySpend(ctx context.Context, triggerTxid, commitmentTxid string) bool {
	details, err := v.chainClient.TxDetails(ctx, triggerTxid)
	if err != nil || details == nil {
		return false
	}
	for _, in := range details.Vin {
		if in.Txid == commitmentTxid {
			return true
		}
	}
	return false
}
