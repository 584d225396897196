package blockstore

import (
	badger "github.com/dgraph-io/badger/v4"
	"github.com/leet4tari/tari-dan/lib"
	"github.com/leet4tari/tari-dan/lib/codec"
)

/*
Prune implements spec §4.4 "delete non-committed siblings and their
pending locks/diffs" and I4's "on fork resolution, pending diffs and locks
of discarded proposals are purged before the alternate chain's locks are
admitted." Discarded blocks are copied into diagnostic_deleted_blocks
(full header) for forensics before deletion, mirroring the teacher's
indexer pattern of a forensic side-table distinct from the live index.
*/

// Prune walks the descendants of forkRoot and deletes every one that is not
// committed. The subtree under keep, and under any committed child, is not
// visited. It returns the pruned block ids so the caller
// (consensus.Engine.commitBlock) can purge their staged diffs per I4.
func (s *Store) Prune(forkRoot lib.HexBytes, keep lib.HexBytes) ([]lib.HexBytes, lib.ErrorI) {
	var pruned []lib.HexBytes
	children, err := s.Children(forkRoot)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if string(child) == string(keep) {
			continue
		}
		if s.IsCommitted(child) {
			continue
		}
		if err := s.diagnosticCopy(child); err != nil {
			return nil, err
		}
		grandchildren, perr := s.Prune(child, keep)
		if perr != nil {
			return nil, perr
		}
		pruned = append(pruned, grandchildren...)
		if e := s.delete(child); e != nil {
			return nil, e
		}
		pruned = append(pruned, child)
	}
	return pruned, nil
}

func (s *Store) diagnosticCopy(id lib.HexBytes) lib.ErrorI {
	block, err := s.Get(id)
	if err != nil {
		return err
	}
	bz, merr := codec.Default.Marshal(block.Header)
	if merr != nil {
		return lib.ErrJSONMarshal(merr)
	}
	if e := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixDiagDeleted+id.String()), bz)
	}); e != nil {
		return lib.ErrPersistence(e)
	}
	return nil
}

func (s *Store) delete(id lib.HexBytes) lib.ErrorI {
	if e := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(blockKey(id))
	}); e != nil {
		return lib.ErrPersistence(e)
	}
	return nil
}
