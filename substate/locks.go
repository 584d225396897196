package substate

import (
	"sync"

	"github.com/leet4tari/tari-dan/lib"
)

/*
Locks implements the substate_lock bookkeeping and compatibility matrix of
spec §4.3: acquired at proposal time, released on commit or when the
owning block is pruned. Held in memory per (block_id) the way pending
state-tree diffs are — both are proposal-time speculative state that
either commits or is discarded atomically with the block.
*/
type Lock struct {
	BlockID    lib.HexBytes
	TxID       string
	SubstateID string
	Version    uint64
	LockType   lib.LockType
	IsLocalOnly bool
}

type Locks struct {
	mu   sync.Mutex
	byKey map[string][]*Lock // substate_id:version -> holders
}

func NewLocks() *Locks { return &Locks{byKey: make(map[string][]*Lock)} }

func lockMapKey(substateID string, version uint64) string {
	return substateID + ":" + string(uint64BE(version))
}

// compatible implements the §4.3 matrix:
//
//	holder \ requester | Read | Write | Output
//	Read                 OK     conflict  OK
//	Write                 conflict conflict conflict
//	Output                OK     conflict  OK
func compatible(holder, requester lib.LockType) bool {
	if holder == lib.LockWrite || requester == lib.LockWrite {
		return false
	}
	return true
}

// Acquire attempts to add a lock for (substateID, version), returning
// ErrLockConflict if an incompatible lock is already held.
func (l *Locks) Acquire(lock *Lock) lib.ErrorI {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := lockMapKey(lock.SubstateID, lock.Version)
	for _, held := range l.byKey[key] {
		if !compatible(held.LockType, lock.LockType) {
			return lib.ErrLockConflict(lock.SubstateID, lock.Version)
		}
	}
	l.byKey[key] = append(l.byKey[key], lock)
	return nil
}

// ReleaseForBlock drops every lock held by blockID, called on commit or
// prune (spec §4.3/I4).
func (l *Locks) ReleaseForBlock(blockID lib.HexBytes) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, holders := range l.byKey {
		kept := holders[:0]
		for _, h := range holders {
			if !bytesEqualHex(h.BlockID, blockID) {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(l.byKey, key)
		} else {
			l.byKey[key] = kept
		}
	}
}

func bytesEqualHex(a, b lib.HexBytes) bool { return a.String() == b.String() }
