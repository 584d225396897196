package consensus

import (
	"encoding/binary"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/leet4tari/tari-dan/lib"
	"github.com/leet4tari/tari-dan/lib/codec"
)

/*
SingletonStore persists the append-only singleton rows of spec §6
(high_qcs, locked_block, last_voted, last_executed, last_proposed) keyed
by (epoch, seq), plus one last_sent_vote key per VoteKey, under one Badger
prefix per singleton kind. The leaf block is not stored; it is derived
from the high QC, mirroring the teacher's store/wrapper_txn.go
convention of one logical table per key prefix. The "active row" is the
highest-seq row for the current epoch — SingletonStore never overwrites,
it only appends, matching DESIGN NOTES §9's guidance for global mutable
singletons.
*/
type SingletonStore struct {
	db *badger.DB
}

func NewSingletonStore(db *badger.DB) *SingletonStore { return &SingletonStore{db: db} }

const (
	prefixHighQC       = "singleton/high_qc/"
	prefixLockedBlock  = "singleton/locked_block/"
	prefixLastVoted    = "singleton/last_voted/"
	prefixLastExecuted = "singleton/last_executed/"
	prefixLastProposed = "singleton/last_proposed/"
	prefixLastSentVote = "singleton/last_sent_vote/"
)

func seqKey(prefix string, epoch, seq uint64) []byte {
	k := make([]byte, 0, len(prefix)+16)
	k = append(k, prefix...)
	k = binary.BigEndian.AppendUint64(k, epoch)
	k = binary.BigEndian.AppendUint64(k, seq)
	return k
}

// appendRow is the shared write path behind every Append* method: marshal v
// and set it at (prefix, epoch, seq).
func (s *SingletonStore) appendRow(prefix string, epoch, seq uint64, v interface{}) lib.ErrorI {
	bz, err := codec.Default.Marshal(v)
	if err != nil {
		return lib.ErrJSONMarshal(err)
	}
	if e := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(seqKey(prefix, epoch, seq), bz)
	}); e != nil {
		return lib.ErrPersistence(e)
	}
	return nil
}

// scanLatest scans backwards from the given epoch's highest possible seq for
// the most recent row under prefix, decoding it via decode — the shared read
// path behind every Latest* method, implementing "the active value is the
// last row for this epoch".
func (s *SingletonStore) scanLatest(prefix string, epoch uint64, decode func([]byte) error) (bool, lib.ErrorI) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		pfx := []byte(prefix)
		seekFrom := seqKey(prefix, epoch, ^uint64(0))
		for it.Seek(seekFrom); it.ValidForPrefix(pfx); it.Next() {
			return it.Item().Value(func(val []byte) error {
				found = true
				return decode(val)
			})
		}
		return nil
	})
	if err != nil {
		return false, lib.ErrPersistence(err)
	}
	return found, nil
}

// AppendHighQC appends a new HighQC row for epoch at seq, the Badger
// analogue of an INSERT into high_qcs.
func (s *SingletonStore) AppendHighQC(epoch, seq uint64, qc *lib.QuorumCertificate) lib.ErrorI {
	return s.appendRow(prefixHighQC, epoch, seq, qc)
}

// LatestHighQC scans backwards from the given epoch for the most recent row,
// mirroring "the active value is the last row for this epoch".
func (s *SingletonStore) LatestHighQC(epoch uint64) (*lib.QuorumCertificate, lib.ErrorI) {
	out := &lib.QuorumCertificate{}
	found, err := s.scanLatest(prefixHighQC, epoch, func(val []byte) error { return codec.Default.Unmarshal(val, out) })
	if err != nil || !found {
		return nil, err
	}
	return out, nil
}

// AppendLockedBlock persists the one-chain lock's target header at (epoch,
// seq), spec §4.1 "one-chain locking rule" / §6 "locked_block".
func (s *SingletonStore) AppendLockedBlock(epoch, seq uint64, h *lib.BlockHeader) lib.ErrorI {
	return s.appendRow(prefixLockedBlock, epoch, seq, h)
}

func (s *SingletonStore) LatestLockedBlock(epoch uint64) (*lib.BlockHeader, lib.ErrorI) {
	out := &lib.BlockHeader{}
	found, err := s.scanLatest(prefixLockedBlock, epoch, func(val []byte) error { return codec.Default.Unmarshal(val, out) })
	if err != nil || !found {
		return nil, err
	}
	return out, nil
}

// AppendLastVoted persists the last_voted singleton, §6.
func (s *SingletonStore) AppendLastVoted(epoch, seq uint64, v *lib.View) lib.ErrorI {
	return s.appendRow(prefixLastVoted, epoch, seq, v)
}

func (s *SingletonStore) LatestLastVoted(epoch uint64) (*lib.View, lib.ErrorI) {
	return s.latestView(prefixLastVoted, epoch)
}

// AppendLastExecuted persists the last_executed singleton, §6.
func (s *SingletonStore) AppendLastExecuted(epoch, seq uint64, v *lib.View) lib.ErrorI {
	return s.appendRow(prefixLastExecuted, epoch, seq, v)
}

func (s *SingletonStore) LatestLastExecuted(epoch uint64) (*lib.View, lib.ErrorI) {
	return s.latestView(prefixLastExecuted, epoch)
}

// AppendLastProposed persists the last_proposed singleton, §6.
func (s *SingletonStore) AppendLastProposed(epoch, seq uint64, v *lib.View) lib.ErrorI {
	return s.appendRow(prefixLastProposed, epoch, seq, v)
}

func (s *SingletonStore) LatestLastProposed(epoch uint64) (*lib.View, lib.ErrorI) {
	return s.latestView(prefixLastProposed, epoch)
}

func (s *SingletonStore) latestView(prefix string, epoch uint64) (*lib.View, lib.ErrorI) {
	out := &lib.View{}
	found, err := s.scanLatest(prefix, epoch, func(val []byte) error { return codec.Default.Unmarshal(val, out) })
	if err != nil || !found {
		return nil, err
	}
	return out, nil
}

// MarkVoteSent records that a vote was sent for (epoch, block_id), enforcing
// §5 O3 "at most once per (block_id, voter)" across restarts.
func (s *SingletonStore) MarkVoteSent(key string) lib.ErrorI {
	if e := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixLastSentVote+key), []byte{1})
	}); e != nil {
		return lib.ErrPersistence(e)
	}
	return nil
}

// HasVoteSent reports whether MarkVoteSent was previously called for key.
func (s *SingletonStore) HasVoteSent(key string) (bool, lib.ErrorI) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(prefixLastSentVote + key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, lib.ErrPersistence(err)
	}
	return found, nil
}

// Hydrate repopulates the engine's safety state and view from the
// SingletonStore's persisted rows for epoch, the replay property of spec §8
// ("replaying proposals/QCs reproduces HighQC, LockedBlock, committed set")
// applied to a restarting process rather than a log replay.
func (e *Engine) Hydrate(epoch uint64) lib.ErrorI {
	e.mu.Lock()
	defer e.mu.Unlock()

	qc, err := e.singletons.LatestHighQC(epoch)
	if err != nil {
		return err
	}
	if qc != nil {
		e.safety.HighQC = qc
		e.safety.LeafBlockID = qc.HeaderHash
	}
	lockedBlock, err := e.singletons.LatestLockedBlock(epoch)
	if err != nil {
		return err
	}
	if lockedBlock != nil {
		e.safety.LockedBlock = lockedBlock
	}
	lastVoted, err := e.singletons.LatestLastVoted(epoch)
	if err != nil {
		return err
	}
	if lastVoted != nil {
		e.safety.LastVoted = lastVoted
	}
	lastExecuted, err := e.singletons.LatestLastExecuted(epoch)
	if err != nil {
		return err
	}
	if lastExecuted != nil {
		e.safety.LastExecuted = lastExecuted
	}
	lastProposed, err := e.singletons.LatestLastProposed(epoch)
	if err != nil {
		return err
	}
	if lastProposed != nil {
		e.safety.LastProposed = lastProposed
		if lastProposed.Epoch > e.view.Epoch || (lastProposed.Epoch == e.view.Epoch && lastProposed.Height > e.view.Height) {
			e.view = lib.View{Height: lastProposed.Height, Epoch: lastProposed.Epoch, ShardGroup: lastProposed.ShardGroup, Phase: lib.Propose}
		}
	}
	return nil
}
