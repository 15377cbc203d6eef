package domain

import "time"

// Commitment is the on-chain transaction that created a vault. Its txid
// is expected to appear as one of the vin[].txid of any legitimate
// trigger for the same vault.
type Commitment struct {
	Txid      string
	VaultID   string
	CreatedAt time.Time
}
