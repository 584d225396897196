package lib

import (
	"bytes"

	"github.com/leet4tari/tari-dan/lib/codec"
	"github.com/leet4tari/tari-dan/lib/crypto"
)

/* This file implements the QuorumCertificate entity and its validation, §3/§6 */

// AggregateSignature carries a threshold-aggregated signature over a header
// hash plus the bitmap of which committee members signed, mirroring the
// teacher's lib.AggregateSignature (validator_set.go) but expressed over the
// ThresholdVerifier boundary instead of a concrete BLS call site.
type AggregateSignature struct {
	Signature HexBytes `json:"signature"`
	Bitmap    HexBytes `json:"bitmap"`
}

// QuorumCertificate is (header_hash, parent_id, height, epoch, shard_group,
// decision, signatures, leaf_hashes), §3.
type QuorumCertificate struct {
	HeaderHash HexBytes             `json:"headerHash"`
	ParentID   HexBytes             `json:"parentId"`
	Height     uint64               `json:"height"`
	Epoch      uint64               `json:"epoch"`
	ShardGroup uint64               `json:"shardGroup"`
	Phase      Phase                `json:"phase"`
	Decision   Decision             `json:"decision"`
	Signature  *AggregateSignature  `json:"signature"`
	LeafHashes []HexBytes           `json:"leafHashes,omitempty"`
}

// SignBytes returns the canonical bytes signed by committee members — the
// QC minus its own signature field, mirroring lib.QuorumCertificate.SignBytes.
func (x *QuorumCertificate) SignBytes() []byte {
	cp := *x
	cp.Signature = nil
	bz, _ := codec.Default.Marshal(&cp)
	return bz
}

// ID computes qc_id = H(contents), §3.
func (x *QuorumCertificate) ID() HexBytes {
	bz, _ := codec.Default.Marshal(x)
	return crypto.Hash(bz)
}

// CheckBasic performs structural sanity checks independent of any committee.
func (x *QuorumCertificate) CheckBasic() ErrorI {
	if x == nil {
		return ErrNilQC()
	}
	if len(x.HeaderHash) != crypto.HashSize {
		return ErrInvalidHashLength()
	}
	if x.Signature == nil || len(x.Signature.Signature) == 0 {
		return ErrInvalidSignature()
	}
	return nil
}

// Check validates the QC against the committee of its claimed (epoch,
// shard_group): CheckBasic, then delegates threshold verification to the
// ThresholdVerifier, §4.1 admission rule (a), §6 "QC signature verification
// is delegated; the engine only trusts a QC after the verifier reports a
// valid threshold for the claimed committee."
func (x *QuorumCertificate) Check(verifier crypto.ThresholdVerifier, committee Committee) (isPartial bool, err ErrorI) {
	if e := x.CheckBasic(); e != nil {
		return false, e
	}
	ok, partial, verr := verifier.Verify(
		x.SignBytes(), x.Signature.Signature, x.Signature.Bitmap,
		committee.PublicKeys, committee.VotingPower,
		committee.QuorumThreshold, committee.TotalVotingPower,
	)
	if verr != nil {
		return false, NewError(CodeInvalidSignature, ConsensusModule, verr.Error())
	}
	if !ok {
		return partial, ErrNoMaj23()
	}
	return partial, nil
}

// Equals reports structural equality, rejecting nil QCs (mirrors lib.QuorumCertificate.Equals).
func (x *QuorumCertificate) Equals(o *QuorumCertificate) bool {
	if x == nil || o == nil {
		return false
	}
	return bytes.Equal(x.HeaderHash, o.HeaderHash) && x.Height == o.Height &&
		x.Epoch == o.Epoch && x.ShardGroup == o.ShardGroup && x.Phase == o.Phase && x.Decision == o.Decision
}

// Committee is the read-only committee description the epoch.Oracle hands
// back for a given (epoch, shard_group), §4.6.
type Committee struct {
	Epoch            uint64
	ShardGroup       uint64
	PublicKeys       [][]byte
	VotingPower      []uint64
	TotalVotingPower uint64
	QuorumThreshold  uint64 // the minimum aggregate voting power for a valid QC (>= 2/3 of TotalVotingPower)
}

// IndexOf returns the committee index of a public key, or -1.
func (c *Committee) IndexOf(pub []byte) int {
	for i, p := range c.PublicKeys {
		if bytes.Equal(p, pub) {
			return i
		}
	}
	return -1
}
