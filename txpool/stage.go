package txpool

import "github.com/leet4tari/tari-dan/lib"

/* Stage is the spec §4.2 PoolEntry.stage DAG node. */
type Stage int32

const (
	StageNew Stage = iota
	StagePrepared
	StageLocalPrepared
	StageAllPrepared
	StageSomePrepared
	StageLocalAccepted
	StageAllAccepted
	StageSomeAccepted
	StageLocalOnly
)

func (s Stage) String() string {
	switch s {
	case StageNew:
		return "New"
	case StagePrepared:
		return "Prepared"
	case StageLocalPrepared:
		return "LocalPrepared"
	case StageAllPrepared:
		return "AllPrepared"
	case StageSomePrepared:
		return "SomePrepared"
	case StageLocalAccepted:
		return "LocalAccepted"
	case StageAllAccepted:
		return "AllAccepted"
	case StageSomeAccepted:
		return "SomeAccepted"
	case StageLocalOnly:
		return "LocalOnly"
	default:
		return "Unknown"
	}
}

// IsAccepted reports whether stage is one of the terminal-before-finalize
// accept stages that a commit of the owning block finalizes, §4.2 table's
// "AllAccepted / SomeAccepted -> (commit of that block) -> Finalized" row.
func (s Stage) IsAccepted() bool {
	return s == StageAllAccepted || s == StageSomeAccepted || s == StageLocalOnly
}

// Transition applies the command-kind-driven transition table of spec §4.2.
// `ours` distinguishes a *Prepare*/*Accept* command this shard group itself
// committed from the same kind observed as foreign evidence (the table's
// "(ours)" qualifier on LocalPrepare). It returns the new stage and whether
// the transition was recognized; unrecognized combinations leave the stage
// unchanged so the caller can treat them as no-ops rather than panicking —
// a committed block may contain commands for transactions this pool has
// already evicted (replay, restart-rebuild).
func Transition(from Stage, kind lib.CommandKind, ours bool) (to Stage, ok bool) {
	switch {
	case from == StageNew && kind == lib.CmdLocalOnly:
		return StageLocalOnly, true
	case from == StageNew && kind == lib.CmdPrepare:
		return StagePrepared, true
	case from == StagePrepared && kind == lib.CmdLocalPrepare && ours:
		return StageLocalPrepared, true
	case from == StageLocalPrepared && kind == lib.CmdAllPrepare:
		return StageAllPrepared, true
	case from == StageLocalPrepared && kind == lib.CmdSomePrepare:
		return StageSomePrepared, true
	case (from == StageAllPrepared || from == StageSomePrepared) && kind == lib.CmdLocalAccept:
		return StageLocalAccepted, true
	case from == StageLocalAccepted && kind == lib.CmdAllAccept:
		return StageAllAccepted, true
	case from == StageLocalAccepted && kind == lib.CmdSomeAccept:
		return StageSomeAccepted, true
	default:
		return from, false
	}
}
