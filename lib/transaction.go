package lib

import (
	"github.com/leet4tari/tari-dan/lib/codec"
	"github.com/leet4tari/tari-dan/lib/crypto"
)

/* This file defines the Transaction entity and its lifecycle outcomes, §3/§7 */

// SubstateRequirement is a declared input: an id plus an optional version —
// unresolved until execution fills it in.
type SubstateRequirement struct {
	SubstateID string  `json:"substateId"`
	Version    *uint64 `json:"version,omitempty"`
}

// FilledInput is a version-resolved input produced by execution.
type FilledInput struct {
	SubstateID string `json:"substateId"`
	Version    uint64 `json:"version"`
}

// AbortReason enumerates the transaction abort taxonomy, §7.
type AbortReason int32

const (
	AbortNone AbortReason = iota
	AbortInvalidTransaction
	AbortExecutionFailure
	AbortOneOrMoreInputsNotFound
	AbortInputLockConflict
	AbortLockInputsFailed
	AbortLockOutputsFailed
	AbortLockInputsOutputsFailed
	AbortForeignShardGroupDecidedToAbort
	AbortForeignPledgeInputConflict
	AbortInsufficientFeesPaid // normalized synonym of legacy FeesNotPaid, §9 Open Question
	AbortEarlyAbort
	AbortTransactionAtomMustBeAbort
	AbortTransactionAtomMustBeCommit
)

func (r AbortReason) String() string {
	switch r {
	case AbortInvalidTransaction:
		return "InvalidTransaction"
	case AbortExecutionFailure:
		return "ExecutionFailure"
	case AbortOneOrMoreInputsNotFound:
		return "OneOrMoreInputsNotFound"
	case AbortInputLockConflict:
		return "InputLockConflict"
	case AbortLockInputsFailed:
		return "LockInputsFailed"
	case AbortLockOutputsFailed:
		return "LockOutputsFailed"
	case AbortLockInputsOutputsFailed:
		return "LockInputsOutputsFailed"
	case AbortForeignShardGroupDecidedToAbort:
		return "ForeignShardGroupDecidedToAbort"
	case AbortForeignPledgeInputConflict:
		return "ForeignPledgeInputConflict"
	case AbortInsufficientFeesPaid:
		return "InsufficientFeesPaid"
	case AbortEarlyAbort:
		return "EarlyAbort"
	case AbortTransactionAtomMustBeAbort:
		return "TransactionAtomMustBeAbort"
	case AbortTransactionAtomMustBeCommit:
		return "TransactionAtomMustBeCommit"
	default:
		return "None"
	}
}

// FinalDecision is set atomically with substate application when a block
// commits the transaction's terminal *Accept* command, §3/§4.3.
type FinalDecision struct {
	Decision Decision    `json:"decision"`
	Reason   AbortReason `json:"reason,omitempty"`
}

// Transaction is identified by a content hash tx_id, §3.
type Transaction struct {
	FeeInstructions  []byte                 `json:"feeInstructions"`
	Instructions     []byte                 `json:"instructions"`
	DeclaredInputs   []SubstateRequirement  `json:"declaredInputs"`
	Signatures       []HexBytes             `json:"signatures"`
	SealSignature    HexBytes               `json:"sealSignature"`
	MinEpoch         *uint64                `json:"minEpoch,omitempty"`
	MaxEpoch         *uint64                `json:"maxEpoch,omitempty"`

	// populated once executed
	ResolvedInputs   []FilledInput  `json:"resolvedInputs,omitempty"`
	ResultingOutputs []FilledInput  `json:"resultingOutputs,omitempty"`
	ExecutionOK      bool           `json:"executionOk"`

	FinalDecision *FinalDecision `json:"finalDecision,omitempty"`
}

// ID computes tx_id = H(fee_instructions || instructions || declared_inputs || signatures || seal_signature || min_epoch || max_epoch), §3.
func (t *Transaction) ID(h crypto.Hasher) string {
	bz, _ := codec.Default.Marshal(signablePart(t))
	return BytesToString(h.Hash(bz))
}

// signablePart excludes execution-derived fields so tx_id is stable across re-execution.
func signablePart(t *Transaction) any {
	return struct {
		FeeInstructions []byte
		Instructions    []byte
		DeclaredInputs  []SubstateRequirement
		Signatures      []HexBytes
		SealSignature   HexBytes
		MinEpoch        *uint64
		MaxEpoch        *uint64
	}{t.FeeInstructions, t.Instructions, t.DeclaredInputs, t.Signatures, t.SealSignature, t.MinEpoch, t.MaxEpoch}
}

// IsWithinEpochBounds checks the optional min/max epoch window, §3.
func (t *Transaction) IsWithinEpochBounds(epoch uint64) bool {
	if t.MinEpoch != nil && epoch < *t.MinEpoch {
		return false
	}
	if t.MaxEpoch != nil && epoch > *t.MaxEpoch {
		return false
	}
	return true
}
