package domain

// TriggerStatus is the visibility state of a trigger transaction as seen
// by the monitor against the upstream chain/mempool view.
type TriggerStatus string

const (
	StatusUnchecked    TriggerStatus = "unchecked"
	StatusUnseen       TriggerStatus = "unseen"
	StatusReversible   TriggerStatus = "reversible"
	StatusIrreversible TriggerStatus = "irreversible"
)

// TriggerTx is a transaction whose appearance on-chain or in mempool
// indicates that a vault is being accessed. Txid is unique per network
// across all vaults: the store enforces first-write-wins on registration.
type TriggerTx struct {
	Txid           string
	VaultID        string
	Status         TriggerStatus
	CommitmentTxid string // empty when the vault has no commitment binding
}

// CanTransitionTo reports whether the state machine allows
// moving from the receiver's status to next.
func (t TriggerStatus) CanTransitionTo(next TriggerStatus) bool {
	if t == StatusIrreversible {
		return false
	}
	switch t {
	case StatusUnchecked:
		return next == StatusUnseen || next == StatusReversible || next == StatusIrreversible
	case StatusUnseen:
		return next == StatusReversible || next == StatusIrreversible
	case StatusReversible:
		return next == StatusIrreversible || next == StatusUnseen
	}
	return false
}
