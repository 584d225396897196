package substate

import (
	"sort"
	"sync"

	"github.com/leet4tari/tari-dan/lib"
	"github.com/leet4tari/tari-dan/lib/crypto"
)

/*
Tree is the per-shard authenticated state tree of spec §4.3, mapping live
substate_id -> state_hash. Supplementing original_source/dan_layer's
state_tree crate (a Jellyfish Merkle Tree over substates): building a full
JMT is a cryptographic-primitive concern out of scope per spec §1, so this
core uses the same minimal binary-Merkle-on-sorted-leaves construction as
lib/crypto.MerkleRoot for block command roots, applied here to live
substate leaves instead.
*/
type Tree struct {
	mu     sync.RWMutex
	hasher crypto.Hasher
	live   map[string]lib.HexBytes // substate_id -> state_hash
}

func NewTree(hasher crypto.Hasher) *Tree {
	return &Tree{hasher: hasher, live: make(map[string]lib.HexBytes)}
}

func (t *Tree) Upsert(substateID string, stateHash lib.HexBytes) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live[substateID] = stateHash
}

func (t *Tree) Remove(substateID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.live, substateID)
}

// Root recomputes the tree's merkle root over every live leaf, sorted by
// substate_id for determinism — the value proposal validation checks
// against the block header's state_merkle_root, §4.3.
func (t *Tree) Root() lib.HexBytes {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.live))
	for id := range t.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	leaves := make([][]byte, 0, len(ids))
	for _, id := range ids {
		leaves = append(leaves, crypto.Concat2Hash([]byte(id), t.live[id]))
	}
	return crypto.MerkleRoot(leaves)
}

// PendingDiffs buffers per-(block_id, shard) state-tree diffs from proposal
// time until commit, §4.3 "pending_state_tree_diffs". Purged on fork
// resolution per invariant I4.
type PendingDiffs struct {
	mu    sync.Mutex
	diffs map[string]Diff // keyed by block_id hex
}

func NewPendingDiffs() *PendingDiffs { return &PendingDiffs{diffs: make(map[string]Diff)} }

func (p *PendingDiffs) Stage(blockID lib.HexBytes, diff Diff) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.diffs[blockID.String()] = diff
}

func (p *PendingDiffs) Take(blockID lib.HexBytes) (Diff, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.diffs[blockID.String()]
	if ok {
		delete(p.diffs, blockID.String())
	}
	return d, ok
}

// Purge discards pending diffs for pruned blocks, invariant I4.
func (p *PendingDiffs) Purge(blockIDs []lib.HexBytes) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range blockIDs {
		delete(p.diffs, id.String())
	}
}
