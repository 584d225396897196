package lib

import (
	"sort"

	"github.com/leet4tari/tari-dan/lib/codec"
	"github.com/leet4tari/tari-dan/lib/crypto"
)

/* This file defines the Block and Command entities of the data model, §3 */

// BlockHeader carries every field that participates in the block hash and
// that proposal admission (§4.1) checks against the chain and the justify QC.
type BlockHeader struct {
	ParentID            HexBytes `json:"parentId"`
	Height              uint64   `json:"height"`
	Epoch               uint64   `json:"epoch"`
	ShardGroup          uint64   `json:"shardGroup"`
	ProposedBy          HexBytes `json:"proposedBy"`
	StateMerkleRoot     HexBytes `json:"stateMerkleRoot"`
	CommandMerkleRoot   HexBytes `json:"commandMerkleRoot"`
	TimestampUnixMicro  uint64   `json:"timestampUnixMicro"`
	BaseLayerBlockHash  HexBytes `json:"baseLayerBlockHash"`
	BaseLayerBlockHeight uint64  `json:"baseLayerBlockHeight"`
	IsDummy             bool     `json:"isDummy"`
}

// Block is (header, justify_qc, commands[]) per §3. Command ordering is part
// of the header hash — CommandMerkleRoot is a function of the ordered list.
type Block struct {
	Header   *BlockHeader        `json:"header"`
	Justify  *QuorumCertificate  `json:"justify"`
	Commands []*Command          `json:"commands"`
}

// Hash computes the block_id: H(encoded header). The commands enter the hash
// only through the header's CommandMerkleRoot field, which the proposer sets
// before hashing, per §4.3.
func (b *Block) Hash() HexBytes {
	if b == nil || b.Header == nil {
		return nil
	}
	bz, _ := codec.Default.Marshal(b.Header)
	return crypto.Hash(bz)
}

// CommandMerkleRoot recomputes the command merkle root from the block's
// current command list, used by proposal validation to check the header's
// claimed CommandMerkleRoot, §4.3.
func (b *Block) CommandMerkleRoot() HexBytes {
	leaves := make([][]byte, 0, len(b.Commands))
	for _, c := range b.Commands {
		bz, _ := codec.Default.Marshal(c)
		leaves = append(leaves, bz)
	}
	return crypto.MerkleRoot(leaves)
}

// CommandKind is the tag discriminating the twelve Command variants of §3.
// The type is a Go-native sum-of-products: every matcher (admission,
// pool-transition, substate-diff-extraction) must switch exhaustively, and
// the 'default: panic' branch in String enforces that adding a
// variant forces every matcher to re-decide behavior, per DESIGN NOTES §9.
type CommandKind int32

const (
	CmdLocalOnly CommandKind = iota
	CmdPrepare
	CmdLocalPrepare
	CmdAllPrepare
	CmdSomePrepare
	CmdLocalAccept
	CmdAllAccept
	CmdSomeAccept
	CmdForeignProposal
	CmdMintConfidentialOutput
	CmdEvictNode
	CmdEndEpoch
)

func (k CommandKind) String() string {
	switch k {
	case CmdLocalOnly:
		return "LocalOnly"
	case CmdPrepare:
		return "Prepare"
	case CmdLocalPrepare:
		return "LocalPrepare"
	case CmdAllPrepare:
		return "AllPrepare"
	case CmdSomePrepare:
		return "SomePrepare"
	case CmdLocalAccept:
		return "LocalAccept"
	case CmdAllAccept:
		return "AllAccept"
	case CmdSomeAccept:
		return "SomeAccept"
	case CmdForeignProposal:
		return "ForeignProposal"
	case CmdMintConfidentialOutput:
		return "MintConfidentialOutput"
	case CmdEvictNode:
		return "EvictNode"
	case CmdEndEpoch:
		return "EndEpoch"
	default:
		panic("unhandled CommandKind — every matcher must be extended when adding a variant")
	}
}

// IsAccept reports whether this kind is one of the *Accept* family that
// fixes final_decision and triggers substate application on commit, §4.2/§4.3.
func (k CommandKind) IsAccept() bool {
	return k == CmdLocalAccept || k == CmdAllAccept || k == CmdSomeAccept
}

// IsPrepare reports whether this kind is one of the *Prepare* family.
func (k CommandKind) IsPrepare() bool {
	return k == CmdPrepare || k == CmdLocalPrepare || k == CmdAllPrepare || k == CmdSomePrepare
}

// priority returns the stage-priority used for within-block ordering, §4.2:
// LocalOnly > *Accept* > *Prepare* > Foreign > Maintenance.
func (k CommandKind) priority() int {
	switch {
	case k == CmdLocalOnly:
		return 0
	case k.IsAccept():
		return 1
	case k.IsPrepare():
		return 2
	case k == CmdForeignProposal:
		return 3
	default: // MintConfidentialOutput, EvictNode, EndEpoch (Maintenance)
		return 4
	}
}

// TransactionAtom carries the per-transaction payload for transactional
// command kinds, §3.
type TransactionAtom struct {
	TxID      string     `json:"txId"`
	Decision  Decision   `json:"decision"`
	Evidence  *Evidence  `json:"evidence,omitempty"`
	Fee       uint64     `json:"fee"`
	LeaderFee uint64     `json:"leaderFee"`
}

type Decision int32

const (
	DecisionAccept Decision = iota
	DecisionReject
)

// Command is a tagged variant over the twelve kinds of §3. Exactly one of
// the payload fields is populated, selected by Kind — this mirrors the
// teacher's oneof-style command payloads (fsm/message.go) without requiring
// generated protobuf oneofs.
type Command struct {
	Kind CommandKind `json:"kind"`

	Atom *TransactionAtom `json:"atom,omitempty"` // LocalOnly, Prepare, LocalPrepare, AllPrepare, SomePrepare, LocalAccept, AllAccept, SomeAccept

	ForeignBlockID   HexBytes `json:"foreignBlockId,omitempty"`   // ForeignProposal
	ForeignShardGroup uint64  `json:"foreignShardGroup,omitempty"` // ForeignProposal

	MintCommitment HexBytes `json:"mintCommitment,omitempty"` // MintConfidentialOutput

	EvictPublicKey HexBytes `json:"evictPublicKey,omitempty"` // EvictNode

	// EndEpoch carries no payload.
}

// TxID returns the transaction this command pertains to, or "" for
// non-transactional commands (ForeignProposal, MintConfidentialOutput,
// EvictNode, EndEpoch).
func (c *Command) TxID() string {
	if c.Atom == nil {
		return ""
	}
	return c.Atom.TxID
}

// SortCommands orders a command slice per §4.2 "Ordering within a block":
// (1) stage priority, (2) ascending tx_id. The ordering is part of the
// header hash, so this must be called before CommandMerkleRoot/Hash.
func SortCommands(cmds []*Command) {
	sort.SliceStable(cmds, func(i, j int) bool {
		pi, pj := cmds[i].Kind.priority(), cmds[j].Kind.priority()
		if pi != pj {
			return pi < pj
		}
		return cmds[i].TxID() < cmds[j].TxID()
	})
}

// HexBytes is a byte slice that (un)marshals to/from a hex string in JSON,
// mirroring the teacher's lib.HexBytes convenience type used throughout its
// wire structures.
type HexBytes []byte
