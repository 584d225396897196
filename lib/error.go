package lib

import (
	"fmt"
	"math"
)

// ErrorI is the interface implemented by every error this module returns.
// Bare `error` is reserved for satisfying stdlib interfaces (io.Closer etc).
type ErrorI interface {
	Code() ErrorCode
	Module() ErrorModule
	error
}

var _ ErrorI = &Error{}

type ErrorCode uint32
type ErrorModule string

// Error is the concrete ErrorI implementation shared by every package in
// this module, mirroring the teacher's module+code+message triple so a
// caller can branch on (Module, Code) without string matching.
type Error struct {
	ECode   ErrorCode   `json:"code"`
	EModule ErrorModule `json:"module"`
	Msg     string      `json:"msg"`
}

func NewError(code ErrorCode, module ErrorModule, msg string) *Error {
	return &Error{ECode: code, EModule: module, Msg: msg}
}

func (p *Error) Code() ErrorCode     { return p.ECode }
func (p *Error) Module() ErrorModule { return p.EModule }
func (p *Error) String() string      { return p.Error() }

func (p *Error) Error() string {
	return fmt.Sprintf("Module: %s, Code: %d, Message: %s", p.EModule, p.ECode, p.Msg)
}

const NoCode ErrorCode = math.MaxUint32

const (
	MainModule       ErrorModule = "main"
	ConsensusModule  ErrorModule = "consensus"
	PoolModule       ErrorModule = "pool"
	SubstateModule   ErrorModule = "substate"
	BlockStoreModule ErrorModule = "blockstore"
	CrossShardModule ErrorModule = "crossshard"
)

// Main module codes (codec, generic validation)

const (
	CodeJSONMarshal ErrorCode = iota + 1
	CodeJSONUnmarshal
	CodeNilParam
	CodeInvalidHashLength
	CodeInvalidAddress
	CodePersistence
)

func ErrJSONMarshal(err error) ErrorI {
	return NewError(CodeJSONMarshal, MainModule, fmt.Sprintf("json.Marshal() failed with err: %s", err.Error()))
}
func ErrJSONUnmarshal(err error) ErrorI {
	return NewError(CodeJSONUnmarshal, MainModule, fmt.Sprintf("json.Unmarshal() failed with err: %s", err.Error()))
}
func ErrNilParam(what string) ErrorI {
	return NewError(CodeNilParam, MainModule, fmt.Sprintf("%s is nil", what))
}
func ErrInvalidHashLength() ErrorI {
	return NewError(CodeInvalidHashLength, MainModule, "invalid hash length")
}
func ErrInvalidAddress() ErrorI {
	return NewError(CodeInvalidAddress, MainModule, "invalid address")
}

// ErrPersistence wraps a failed write/read against the persistence backend.
// Per spec §7 these are fatal: the node must not diverge silently and halts
// rather than continuing with an uncertain on-disk state.
func ErrPersistence(err error) ErrorI {
	return NewError(CodePersistence, MainModule, fmt.Sprintf("persistence layer failed: %s", err.Error()))
}

// Consensus module codes

const (
	CodeInvalidJustifyQC ErrorCode = iota + 1
	CodeWrongParent
	CodeWrongHeight
	CodeUnexpectedLeader
	CodeStaleTimestamp
	CodeCommandNotAdmissible
	CodeAlreadyVoted
	CodeSafeNodeFailed
	CodeNoMaj23
	CodeUnknownCommittee
	CodeInvalidSignature
	CodeEquivocation
	CodeEpochEnded
	CodeUnknownTransaction
	CodeNilBlock
	CodeNilQC
	CodeEvicted
)

func ErrInvalidJustifyQC() ErrorI {
	return NewError(CodeInvalidJustifyQC, ConsensusModule, "justify QC failed committee threshold validation")
}
func ErrWrongParent() ErrorI {
	return NewError(CodeWrongParent, ConsensusModule, "block.parent != block.justify.block_id")
}
func ErrWrongHeight() ErrorI {
	return NewError(CodeWrongHeight, ConsensusModule, "block.height != block.justify.height + 1")
}
func ErrUnexpectedLeader(got []byte) ErrorI {
	return NewError(CodeUnexpectedLeader, ConsensusModule, fmt.Sprintf("proposer %x is not the expected leader", got))
}
func ErrStaleTimestamp() ErrorI {
	return NewError(CodeStaleTimestamp, ConsensusModule, "block timestamp / base layer anchor failed monotonicity or staleness bound")
}
func ErrCommandNotAdmissible(reason string) ErrorI {
	return NewError(CodeCommandNotAdmissible, ConsensusModule, fmt.Sprintf("command not admissible: %s", reason))
}
func ErrAlreadyVoted() ErrorI {
	return NewError(CodeAlreadyVoted, ConsensusModule, "a vote was already sent for this (epoch, block_id)")
}
func ErrSafeNodeFailed() ErrorI {
	return NewError(CodeSafeNodeFailed, ConsensusModule, "proposal failed the safe-node predicate")
}
func ErrNoMaj23() ErrorI {
	return NewError(CodeNoMaj23, ConsensusModule, "signatures do not form a +2/3 threshold over the committee")
}
func ErrUnknownCommittee(epoch, shard uint64) ErrorI {
	return NewError(CodeUnknownCommittee, ConsensusModule, fmt.Sprintf("no committee known for epoch %d shard_group %d", epoch, shard))
}
func ErrInvalidSignature() ErrorI {
	return NewError(CodeInvalidSignature, ConsensusModule, "signature verification failed")
}
func ErrEquivocation(height uint64, proposer []byte) ErrorI {
	return NewError(CodeEquivocation, ConsensusModule, fmt.Sprintf("leader %x equivocated at height %d", proposer, height))
}
func ErrEpochEnded(epoch uint64) ErrorI {
	return NewError(CodeEpochEnded, ConsensusModule, fmt.Sprintf("epoch %d has already ended", epoch))
}
func ErrUnknownTransaction(txID string) ErrorI {
	return NewError(CodeUnknownTransaction, ConsensusModule, fmt.Sprintf("unknown transaction %s", txID))
}
func ErrNilBlock() ErrorI { return NewError(CodeNilBlock, ConsensusModule, "block is nil") }
func ErrNilQC() ErrorI    { return NewError(CodeNilQC, ConsensusModule, "quorum certificate is nil") }
func ErrEvicted(pub []byte) ErrorI {
	return NewError(CodeEvicted, ConsensusModule, fmt.Sprintf("validator %x was evicted this epoch", pub))
}

// Pool module codes

const (
	CodePoolDuplicateTx ErrorCode = iota + 1
	CodePoolUnknownTx
	CodeEvidenceRegression
	CodeInvalidStageTransition
	CodeNotReady
)

func ErrPoolDuplicateTx(txID string) ErrorI {
	return NewError(CodePoolDuplicateTx, PoolModule, fmt.Sprintf("transaction %s already pooled", txID))
}
func ErrPoolUnknownTx(txID string) ErrorI {
	return NewError(CodePoolUnknownTx, PoolModule, fmt.Sprintf("transaction %s not found in pool", txID))
}
func ErrForeignPledgeInputConflict(txID string) ErrorI {
	return NewError(CodeEvidenceRegression, PoolModule, fmt.Sprintf("evidence for %s regressed, ForeignPledgeInputConflict", txID))
}
func ErrInvalidStageTransition(from, to string) ErrorI {
	return NewError(CodeInvalidStageTransition, PoolModule, fmt.Sprintf("invalid stage transition %s -> %s", from, to))
}
func ErrNotReady(txID string) ErrorI {
	return NewError(CodeNotReady, PoolModule, fmt.Sprintf("transaction %s is not ready for inclusion", txID))
}

// Substate module codes

const (
	CodeSubstateNotFound ErrorCode = iota + 1
	CodeSubstateAlreadyLive
	CodeSubstateAlreadyDestroyed
	CodeLockConflict
	CodeNonContiguousSeq
	CodeBadVersionSequence
)

func ErrSubstateNotFound(id string, version uint64) ErrorI {
	return NewError(CodeSubstateNotFound, SubstateModule, fmt.Sprintf("substate %s@%d not found", id, version))
}
func ErrSubstateAlreadyLive(id string) ErrorI {
	return NewError(CodeSubstateAlreadyLive, SubstateModule, fmt.Sprintf("substate %s already has a live version", id))
}
func ErrSubstateAlreadyDestroyed(id string, version uint64) ErrorI {
	return NewError(CodeSubstateAlreadyDestroyed, SubstateModule, fmt.Sprintf("substate %s@%d already destroyed", id, version))
}
func ErrLockConflict(id string, version uint64) ErrorI {
	return NewError(CodeLockConflict, SubstateModule, fmt.Sprintf("incompatible lock on %s@%d", id, version))
}
func ErrNonContiguousSeq(shard, want, got uint64) ErrorI {
	return NewError(CodeNonContiguousSeq, SubstateModule, fmt.Sprintf("shard %d expected seq %d, got %d", shard, want, got))
}
func ErrBadVersionSequence(id string, version uint64) ErrorI {
	return NewError(CodeBadVersionSequence, SubstateModule, fmt.Sprintf("substate %s version %d created before prior version destroyed", id, version))
}

// Block store module codes

const (
	CodeBlockNotFound ErrorCode = iota + 1
	CodeUnknownParent
	CodeAlreadyCommitted
)

func ErrBlockNotFound(id string) ErrorI {
	return NewError(CodeBlockNotFound, BlockStoreModule, fmt.Sprintf("block %s not found", id))
}
func ErrUnknownParent(id string) ErrorI {
	return NewError(CodeUnknownParent, BlockStoreModule, fmt.Sprintf("parent block %s not found, parking", id))
}
func ErrAlreadyCommitted(id string) ErrorI {
	return NewError(CodeAlreadyCommitted, BlockStoreModule, fmt.Sprintf("block %s already committed", id))
}

// Cross-shard module codes

const (
	CodeForeignQCInvalid ErrorCode = iota + 1
	CodeMissingTransactions
	CodePledgeViolation
	CodeAlreadyParked
)

func ErrForeignQCInvalid() ErrorI {
	return NewError(CodeForeignQCInvalid, CrossShardModule, "foreign proposal's justify QC failed committee threshold validation")
}
func ErrMissingTransactions(n int) ErrorI {
	return NewError(CodeMissingTransactions, CrossShardModule, fmt.Sprintf("parked: %d referenced transactions missing locally", n))
}
func ErrPledgeViolation(txID, substateID string) ErrorI {
	return NewError(CodePledgeViolation, CrossShardModule, fmt.Sprintf("proposal violates pledge for tx %s on substate %s", txID, substateID))
}
func ErrAlreadyParked(blockID string) ErrorI {
	return NewError(CodeAlreadyParked, CrossShardModule, fmt.Sprintf("foreign proposal %s already parked", blockID))
}
