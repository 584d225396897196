package lib

import "fmt"

// Phase enumerates the chained HotStuff pipeline's voting phases, §4.1.
// Unlike the teacher's 10-phase sortition pipeline, the spec's leader comes
// from the epoch oracle (Non-goal: "the core does not choose leaders by
// itself"), so there is no Election/ElectionVote phase here.
type Phase int32

const (
	Propose Phase = iota
	ProposeVote
	Precommit
	PrecommitVote
	Commit
	NewViewPhase
)

func (p Phase) String() string {
	switch p {
	case Propose:
		return "PROPOSE"
	case ProposeVote:
		return "PROPOSE_VOTE"
	case Precommit:
		return "PRECOMMIT"
	case PrecommitVote:
		return "PRECOMMIT_VOTE"
	case Commit:
		return "COMMIT"
	case NewViewPhase:
		return "NEW_VIEW"
	default:
		return "UNKNOWN"
	}
}

// View identifies the period during which consensus is occurring for one
// shard group: a height within an epoch, and the phase within that height's
// voting round. Spec §4.1 "States per view".
type View struct {
	Height     uint64 `json:"height"`
	Epoch      uint64 `json:"epoch"`
	ShardGroup uint64 `json:"shardGroup"`
	Phase      Phase  `json:"phase"`
}

func (v *View) Copy() *View {
	if v == nil {
		return nil
	}
	return &View{Height: v.Height, Epoch: v.Epoch, ShardGroup: v.ShardGroup, Phase: v.Phase}
}

func (v *View) Equals(o *View) bool {
	if v == nil || o == nil {
		return v == o
	}
	return v.Height == o.Height && v.Epoch == o.Epoch && v.ShardGroup == o.ShardGroup && v.Phase == o.Phase
}

// SameHeightEpochShard returns true if two views address the same height
// within the same (epoch, shard_group), ignoring phase — the granularity at
// which votes and proposals are keyed.
func (v *View) SameHeightEpochShard(o *View) bool {
	if v == nil || o == nil {
		return false
	}
	return v.Height == o.Height && v.Epoch == o.Epoch && v.ShardGroup == o.ShardGroup
}

func (v *View) String() string {
	return fmt.Sprintf("(H:%d E:%d SG:%d P:%s)", v.Height, v.Epoch, v.ShardGroup, v.Phase)
}
