package blockstore

import (
	"encoding/binary"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/leet4tari/tari-dan/lib"
	"github.com/leet4tari/tari-dan/lib/codec"
)

/*
Store is the block DAG of spec §4.4: blocks keyed by block_id with parent
edges, an (epoch, height) index, justified/committed flags, and validator
epoch stats. Backed by github.com/dgraph-io/badger/v4, mirroring the
teacher's store/wrapper_txn.go convention of one logical table per key
prefix within a single embedded KV store — the teacher's own go.mod lists
Badger as a direct dependency, unlike the substate store's Pebble (see
substate.Store doc comment for that split's rationale).
*/
type Store struct {
	db *badger.DB
}

func Open(dir string) (*Store, lib.ErrorI) {
	db, err := badger.Open(badger.DefaultOptions(dir))
	if err != nil {
		return nil, lib.ErrPersistence(err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const (
	prefixBlock        = "block/"
	prefixChildren     = "children/"
	prefixHeightIdx    = "heightidx/"
	prefixJustified    = "justified/"
	prefixCommitted    = "committed/"
	prefixDiagDeleted  = "diag_deleted/"
)

func blockKey(id lib.HexBytes) []byte { return append([]byte(prefixBlock), id...) }

func heightIdxKey(epoch, shardGroup, height uint64) []byte {
	k := make([]byte, 0, len(prefixHeightIdx)+24)
	k = append(k, prefixHeightIdx...)
	k = binary.BigEndian.AppendUint64(k, epoch)
	k = binary.BigEndian.AppendUint64(k, shardGroup)
	k = binary.BigEndian.AppendUint64(k, height)
	return k
}

func childrenKey(parent lib.HexBytes, child lib.HexBytes) []byte {
	return append(append([]byte(prefixChildren), parent...), child...)
}

// Insert validates nothing itself — admission (spec §4.1) is the Engine's
// job — it persists the block, updates the (epoch,height) index and the
// parent->children edge, mirroring Store.Insert-proposal of §4.4.
func (s *Store) Insert(block *lib.Block) lib.ErrorI {
	id := block.Hash()
	bz, err := codec.Default.Marshal(block)
	if err != nil {
		return lib.ErrJSONMarshal(err)
	}
	if e := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(blockKey(id), bz); err != nil {
			return err
		}
		if err := txn.Set(heightIdxKey(block.Header.Epoch, block.Header.ShardGroup, block.Header.Height), id); err != nil {
			return err
		}
		if len(block.Header.ParentID) > 0 {
			if err := txn.Set(childrenKey(block.Header.ParentID, id), []byte{1}); err != nil {
				return err
			}
		}
		return nil
	}); e != nil {
		return lib.ErrPersistence(e)
	}
	return nil
}

func (s *Store) Get(id lib.HexBytes) (*lib.Block, lib.ErrorI) {
	var out *lib.Block
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = &lib.Block{}
			return codec.Default.Unmarshal(val, out)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, lib.ErrBlockNotFound(id.String())
	}
	if err != nil {
		return nil, lib.ErrPersistence(err)
	}
	return out, nil
}

func (s *Store) Has(id lib.HexBytes) bool {
	_, err := s.Get(id)
	return err == nil
}

// Children returns every block that declares id as its parent, used by the
// locking rule ("target block b has an accepted child in the observed
// chain") and by Prune.
func (s *Store) Children(id lib.HexBytes) ([]lib.HexBytes, lib.ErrorI) {
	var out []lib.HexBytes
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := childrenKey(id, nil)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			child := key[len(prefix):]
			out = append(out, lib.HexBytes(child))
		}
		return nil
	})
	if err != nil {
		return nil, lib.ErrPersistence(err)
	}
	return out, nil
}

func (s *Store) SetJustified(id lib.HexBytes) lib.ErrorI {
	if e := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixJustified+id.String()), []byte{1})
	}); e != nil {
		return lib.ErrPersistence(e)
	}
	return nil
}

func (s *Store) IsJustified(id lib.HexBytes) bool {
	found := false
	_ = s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(prefixJustified + id.String()))
		found = err == nil
		return nil
	})
	return found
}

func (s *Store) SetCommitted(id lib.HexBytes) lib.ErrorI {
	if s.IsCommitted(id) {
		return lib.ErrAlreadyCommitted(id.String())
	}
	if e := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixCommitted+id.String()), []byte{1})
	}); e != nil {
		return lib.ErrPersistence(e)
	}
	return nil
}

func (s *Store) IsCommitted(id lib.HexBytes) bool {
	found := false
	_ = s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(prefixCommitted + id.String()))
		found = err == nil
		return nil
	})
	return found
}

// AtHeight returns the block_id persisted at (epoch, shardGroup, height), or
// nil if none, used by proposal admission to detect leader equivocation
// (spec §4.1 "A leader may not propose two distinct blocks at the same
// (epoch, height)").
func (s *Store) AtHeight(epoch, shardGroup, height uint64) (lib.HexBytes, lib.ErrorI) {
	var out lib.HexBytes
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(heightIdxKey(epoch, shardGroup, height))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append(lib.HexBytes{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, lib.ErrPersistence(err)
	}
	return out, nil
}
