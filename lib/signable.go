package lib

import "github.com/leet4tari/tari-dan/lib/codec"

/* This file defines the consensus message surface, §6 */

// Signable is anything that carries a signer public key and a signature over
// its own SignBytes — mirrors the teacher's lib.Signable contract used by
// bft.go to validate inbound votes and proposals before touching engine state.
type Signable interface {
	SignBytes() []byte
	GetSignature() HexBytes
	GetSignerPublicKey() HexBytes
}

// base embeds the signer/signature pair common to every message below.
type base struct {
	SignerPublicKey HexBytes `json:"signerPublicKey"`
	Signature       HexBytes `json:"signature"`
}

func (b *base) GetSignature() HexBytes       { return b.Signature }
func (b *base) GetSignerPublicKey() HexBytes { return b.SignerPublicKey }

// VoteMessage is a validator's signed vote for a (view, header_hash), carrying
// the phase it votes for so the same type serves ProposeVote and
// PrecommitVote, §6.
type VoteMessage struct {
	base
	View       View     `json:"view"`
	HeaderHash HexBytes `json:"headerHash"`
	Decision   Decision `json:"decision"`
}

func (v *VoteMessage) SignBytes() []byte {
	cp := *v
	cp.Signature = nil
	bz, _ := codec.Default.Marshal(&cp)
	return bz
}

// NewViewMessage is sent by a replica when its view timer fires, carrying the
// HighQC it knows about so the new leader can catch up, §5 "Cancellation".
type NewViewMessage struct {
	base
	View  View               `json:"view"`
	HighQC *QuorumCertificate `json:"highQc"`
}

func (m *NewViewMessage) SignBytes() []byte {
	cp := *m
	cp.Signature = nil
	bz, _ := codec.Default.Marshal(&cp)
	return bz
}

// ProposalMessage carries a leader's proposed Block for a view, §4.1.
type ProposalMessage struct {
	base
	Block *Block `json:"block"`
}

func (p *ProposalMessage) SignBytes() []byte {
	cp := *p
	cp.Signature = nil
	bz, _ := codec.Default.Marshal(&cp)
	return bz
}

// ForeignProposalMessage notifies a foreign shard group's coordinator of a
// locally-committed block so it can extract the commands relevant to shared
// transactions, §4.4 "Cross-shard proposal ingestion".
type ForeignProposalMessage struct {
	base
	Block         *Block `json:"block"`
	FromShardGroup uint64 `json:"fromShardGroup"`
}

func (f *ForeignProposalMessage) SignBytes() []byte {
	cp := *f
	cp.Signature = nil
	bz, _ := codec.Default.Marshal(&cp)
	return bz
}

// ForeignProposalNotification is a lightweight header-only announcement that
// precedes the full ForeignProposalMessage, used to let a parked proposal's
// shard group know a fetch is now worth retrying, §4.4.
type ForeignProposalNotification struct {
	base
	BlockID        HexBytes `json:"blockId"`
	FromShardGroup uint64   `json:"fromShardGroup"`
	Height         uint64   `json:"height"`
}

func (n *ForeignProposalNotification) SignBytes() []byte {
	cp := *n
	cp.Signature = nil
	bz, _ := codec.Default.Marshal(&cp)
	return bz
}

// ForeignProposalRequest asks a shard group for one of its committed blocks
// by id, the pull side of ForeignProposalNotification, §4.4.
type ForeignProposalRequest struct {
	base
	BlockID    HexBytes `json:"blockId"`
	ShardGroup uint64   `json:"shardGroup"`
}

func (r *ForeignProposalRequest) SignBytes() []byte {
	cp := *r
	cp.Signature = nil
	bz, _ := codec.Default.Marshal(&cp)
	return bz
}

// MissingTransactionsRequest is sent by a replica that received a Proposal
// referencing tx_ids it has not seen locally, §4.1 "Missing transaction
// handling" / §5.
type MissingTransactionsRequest struct {
	base
	BlockID HexBytes `json:"blockId"`
	TxIDs   []string `json:"txIds"`
}

func (r *MissingTransactionsRequest) SignBytes() []byte {
	cp := *r
	cp.Signature = nil
	bz, _ := codec.Default.Marshal(&cp)
	return bz
}

// MissingTransactionsResponse carries the requested transactions back, or as
// many as the responder actually has.
type MissingTransactionsResponse struct {
	base
	BlockID      HexBytes        `json:"blockId"`
	Transactions []*Transaction  `json:"transactions"`
}

func (r *MissingTransactionsResponse) SignBytes() []byte {
	cp := *r
	cp.Signature = nil
	bz, _ := codec.Default.Marshal(&cp)
	return bz
}

// SyncRequest asks a peer for committed blocks strictly after `fromHeight`,
// used by a replica that fell behind to catch up its BlockStore, §4.5.
type SyncRequest struct {
	base
	ShardGroup uint64 `json:"shardGroup"`
	FromHeight uint64 `json:"fromHeight"`
}

func (r *SyncRequest) SignBytes() []byte {
	cp := *r
	cp.Signature = nil
	bz, _ := codec.Default.Marshal(&cp)
	return bz
}

// SyncResponse carries a contiguous run of committed blocks starting at
// FromHeight+1, oldest first.
type SyncResponse struct {
	base
	Blocks []*Block `json:"blocks"`
}

func (r *SyncResponse) SignBytes() []byte {
	cp := *r
	cp.Signature = nil
	bz, _ := codec.Default.Marshal(&cp)
	return bz
}
