package txpool

import (
	"sort"

	"github.com/leet4tari/tari-dan/lib"
)

/*
LockConflict records that a ready transaction lost a lock race to another
and must wait, spec §4.2 "Lock conflicts": when two ready transactions
require incompatible locks on the same (substate_id, version), the leader
selects the one with lexicographically smaller tx_id.
*/
type LockConflict struct {
	BlockID      lib.HexBytes
	TransactionID string
	DependsOnTx  string
	LockType     lib.LockType
}

// ResolveLockConflicts partitions a candidate set into winners (no
// conflicting lock, or smallest tx_id among conflicting peers) and losers,
// recording a LockConflict for each loser. The caller marks losers
// not-ready until the winner finalizes.
func ResolveLockConflicts(blockID lib.HexBytes, candidates []*Entry, requirements map[string][]lib.SubstateRequirement, lockTypes map[string]lib.LockType) (winners []*Entry, conflicts []LockConflict) {
	// heldBy maps a substate key string to the tx_id currently winning it.
	heldBy := make(map[string]string)
	winnerSet := make(map[string]bool)
	for _, e := range candidates {
		winnerSet[e.TxID] = true
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].TxID < candidates[j].TxID })
	for _, e := range candidates {
		reqs := requirements[e.TxID]
		conflicted := false
		for _, req := range reqs {
			version := uint64(0)
			if req.Version != nil {
				version = *req.Version
			}
			key := req.SubstateID + ":" + lib.BytesToString(uint64KeyBytes(version))
			holder, ok := heldBy[key]
			if !ok {
				heldBy[key] = e.TxID
				continue
			}
			if !locksCompatible(lockTypes[holder], lockTypes[e.TxID]) {
				conflicted = true
				conflicts = append(conflicts, LockConflict{
					BlockID: blockID, TransactionID: e.TxID, DependsOnTx: holder, LockType: lockTypes[e.TxID],
				})
			}
		}
		if conflicted {
			winnerSet[e.TxID] = false
			continue
		}
	}
	for _, e := range candidates {
		if winnerSet[e.TxID] {
			winners = append(winners, e)
		}
	}
	return winners, conflicts
}

// locksCompatible mirrors the substate package's compatibility matrix
// (Read/Write/Output) so the pool can pre-filter before handing a batch to
// the substate store, avoiding a round trip for the common case.
func locksCompatible(holder, requester lib.LockType) bool {
	if holder == lib.LockWrite || requester == lib.LockWrite {
		return false
	}
	return true
}

func uint64KeyBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
