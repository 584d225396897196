package lib

import "github.com/leet4tari/tari-dan/lib/crypto"

/* This file defines the Substate entity, §3 */

// SubstateCoordinates records where a substate transition happened, reused
// for both creation and (optional) destruction coordinates.
type SubstateCoordinates struct {
	TxID   string `json:"txId"`
	Block  HexBytes `json:"block"`
	Height uint64 `json:"height"`
	Epoch  uint64 `json:"epoch"`
	Shard  uint64 `json:"shard"`
}

// Substate is identified by (substate_id, version); Address is globally
// unique across all versions ever created, §3.
type Substate struct {
	SubstateID string    `json:"substateId"`
	Version    uint64    `json:"version"`
	Value      []byte    `json:"value,omitempty"` // present while live
	StateHash  HexBytes  `json:"stateHash"`

	CreatedBy SubstateCoordinates  `json:"createdBy"`
	// DestroyedBy is nil while the substate is live.
	DestroyedBy *SubstateCoordinates `json:"destroyedBy,omitempty"`
}

// Address computes address = H(substate_id, version), §3.
func (s *Substate) Address(h crypto.Hasher) HexBytes {
	return h.Hash(append([]byte(s.SubstateID), uint64ToBytes(s.Version)...))
}

func (s *Substate) IsLive() bool { return s.DestroyedBy == nil }

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
