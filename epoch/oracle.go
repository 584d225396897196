package epoch

import "github.com/leet4tari/tari-dan/lib"

/*
Oracle is the narrow, read-only boundary of spec §4.6: for any (epoch,
shard_group), the core asks it who the committee is, who the expected
leader is at a given height, the quorum threshold, and this node's role.
The core never computes membership itself — that is maintained externally
by L1 scanning (out of scope per spec §1). Modeled as a plain Go interface
the way the teacher's controller.Controller exposes LoadCommittee /
LoadCommitteeData to bft.BFT without bft ever touching the root chain
client directly.
*/
type Oracle interface {
	// Committee returns the committee description for (epoch, shardGroup),
	// or an error if no committee is known yet (ErrUnknownCommittee).
	Committee(epoch, shardGroup uint64) (lib.Committee, lib.ErrorI)

	// ExpectedLeader returns the public key expected to propose at
	// (epoch, shardGroup, height).
	ExpectedLeader(epoch, shardGroup, height uint64) (lib.HexBytes, lib.ErrorI)

	// SelfRole reports whether this node is a committee member (and thus a
	// voter) for (epoch, shardGroup), and if so its own public key.
	SelfRole(epoch, shardGroup uint64) (isMember bool, publicKey lib.HexBytes)
}

// StaticOracle is a fixed-committee, round-robin-leader Oracle used by
// tests, mirroring the teacher's bft/mock_test.go test fixtures rather
// than its production controller.LoadCommittee RPC-backed path.
type StaticOracle struct {
	committees map[uint64]lib.Committee // keyed by shardGroup; same committee used across epochs in the fixture
	self       lib.HexBytes
}

func NewStaticOracle(committee lib.Committee, self lib.HexBytes) *StaticOracle {
	return &StaticOracle{committees: map[uint64]lib.Committee{committee.ShardGroup: committee}, self: self}
}

func (o *StaticOracle) Committee(epoch, shardGroup uint64) (lib.Committee, lib.ErrorI) {
	c, ok := o.committees[shardGroup]
	if !ok {
		return lib.Committee{}, lib.ErrUnknownCommittee(epoch, shardGroup)
	}
	c.Epoch = epoch
	return c, nil
}

func (o *StaticOracle) ExpectedLeader(epoch, shardGroup, height uint64) (lib.HexBytes, lib.ErrorI) {
	c, err := o.Committee(epoch, shardGroup)
	if err != nil {
		return nil, err
	}
	if len(c.PublicKeys) == 0 {
		return nil, lib.ErrUnknownCommittee(epoch, shardGroup)
	}
	idx := height % uint64(len(c.PublicKeys))
	return c.PublicKeys[idx], nil
}

func (o *StaticOracle) SelfRole(epoch, shardGroup uint64) (bool, lib.HexBytes) {
	c, err := o.Committee(epoch, shardGroup)
	if err != nil {
		return false, nil
	}
	return c.IndexOf(o.self) >= 0, o.self
}
