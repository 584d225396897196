package consensus

import (
	"fmt"

	"github.com/leet4tari/tari-dan/lib"
)

/*
SafetyState is the small typed facade over the six safety singletons of
spec §3 (HighQC, LockedBlock, LastVoted, LastExecuted, LastProposed, plus
LeafBlock). The reference schema models each as an append-only table whose
active row is "the last row for this epoch" (DESIGN NOTES §9); this facade
is that row, loaded from the SingletonStore by Engine.Hydrate at startup and written
back only inside the same operation that performs the associated state
change, mirroring the teacher's bft.BFT holding HighQC/LockedBlock as plain
struct fields hydrated by RefreshRootChainInfo/NewHeight.
*/
type SafetyState struct {
	LeafBlockID   lib.HexBytes
	HighQC        *lib.QuorumCertificate
	LockedBlock   *lib.BlockHeader
	LastVoted     *lib.View
	LastExecuted  *lib.View
	LastProposed  *lib.View
	LastSentVote  map[string]bool // keyed by fmt.Sprintf("%d:%x", epoch, block_id) — enforces O3
}

func NewSafetyState() *SafetyState {
	return &SafetyState{LastSentVote: make(map[string]bool)}
}

// VoteKey is the (epoch, block_id) key guarding the "one vote per
// (epoch, block_id)" rule of §5 O3.
func VoteKey(epoch uint64, blockID lib.HexBytes) string {
	return fmt.Sprintf("%d:%s", epoch, lib.BytesToString(blockID))
}
