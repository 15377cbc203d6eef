package ports

import (
	"context"
	"errors"
)

// ErrTimeout is returned when a chain client request fails at the
// transport level, including when it does not complete within its 30s
// deadline.
var ErrTimeout = errors.New("chain client: timeout")

// TxStatus is the confirmation status of a transaction as reported by
// tx_status. A nil *TxStatus from ChainClient.TxStatus means absent
// (404), which is not an error.
type TxStatus struct {
	Confirmed   bool
	BlockHeight int64
	BlockHash   string
}

// TxIn is one input of a transaction, as needed for spend-proof checks.
type TxIn struct {
	Txid string
	Vout uint32
}

// TxOut is one output of a transaction, as needed for address decoding.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// TxDetails is the subset of an Esplora tx_details response the core
// needs: enough to decide whether a trigger spends from its commitment.
type TxDetails struct {
	Txid string
	Vin  []TxIn
	Vout []TxOut
}

// ChainClient is a typed wrapper over an Esplora-style REST API for one
// network. Every call has a 30s deadline and is paced by a per-network
// rate limiter; a 404 on TxStatus/TxDetails is not an error, it is a nil
// result.
type ChainClient interface {
	TipHeight(ctx context.Context) (int64, error)
	BlockHash(ctx context.Context, height int64) (string, error)
	BlockTxids(ctx context.Context, hash string) ([]string, error)
	MempoolTxids(ctx context.Context) (map[string]struct{}, error)
	TxStatus(ctx context.Context, txid string) (*TxStatus, error)
	TxDetails(ctx context.Context, txid string) (*TxDetails, error)
}
