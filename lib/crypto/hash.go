package crypto

import (
	"bytes"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

/*
The core treats hashing and signature verification as black-box (spec §1:
"the core assumes black-box verifiers and hashers"). This package is the
narrow boundary: a default implementation is provided so the module is
runnable standalone. Some consumers take the Hasher/Verifier interfaces;
others (block hashes, QC ids, merkle roots) call the package-level Hash,
which goes through the replaceable DefaultHasher.
*/

const HashSize = 32

var MaxHash = bytes.Repeat([]byte{0xFF}, HashSize)

// Hasher is the black-box hashing boundary used to compute substate
// addresses, block hashes, command-merkle roots and state-tree node hashes.
type Hasher interface {
	Hash(msg []byte) []byte
}

var _ Hasher = Blake2bHasher{}

// Blake2bHasher is the default Hasher, grounded on the golang.org/x/crypto
// module already present in the teacher's dependency graph.
type Blake2bHasher struct{}

func (Blake2bHasher) Hash(msg []byte) []byte {
	h := blake2b.Sum256(msg)
	return h[:]
}

// DefaultHasher is the package-level Hasher used where a caller hasn't
// injected one explicitly (tests, CLI tools).
var DefaultHasher Hasher = Blake2bHasher{}

func Hash(msg []byte) []byte { return DefaultHasher.Hash(msg) }

func HashString(msg []byte) string { return hex.EncodeToString(Hash(msg)) }

// Concat2Hash hashes the concatenation of two byte slices — the shape used
// to derive a substate's address from (substate_id, version).
func Concat2Hash(a, b []byte) []byte {
	buf := make([]byte, 0, len(a)+len(b))
	buf = append(buf, a...)
	buf = append(buf, b...)
	return Hash(buf)
}

// MerkleRoot builds a binary merkle root over the leaves in the order given
// (it does not sort them; an odd node is paired with itself), used for the
// block header's command_merkle_root and the per-shard state tree root, whose
// caller sorts the leaves first. Full Jellyfish/sparse Merkle trees are a
// cryptographic-primitive concern (out of scope per spec §1); the root is a
// deterministic function of the leaf sequence.
func MerkleRoot(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		return Hash(nil)
	}
	level := make([][]byte, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		var next [][]byte
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, Concat2Hash(level[i], level[i+1]))
			} else {
				next = append(next, Concat2Hash(level[i], level[i]))
			}
		}
		level = next
	}
	return level[0]
}
