package txpool

import (
	"sort"

	"github.com/leet4tari/tari-dan/lib"
)

/*
isReady implements spec §4.2 "Readiness": is_ready = true iff the entry has
all prerequisites for inclusion at the leader's next proposal. The
predicate table is per-stage, mirroring the transition table it gates.
*/
func isReady(e *Entry) bool {
	if e.Evidence.AnyAbort() {
		return false
	}
	switch e.Stage {
	case StageNew:
		// ready for Prepare/LocalOnly inclusion as soon as local execution
		// has produced an original_decision; modeled here as "always ready
		// once pooled" since Insert only happens post-execution in this
		// core (execution itself is out of scope, §1).
		return true
	case StagePrepared:
		// Prepared -> LocalPrepared requires the local execution result,
		// which for this core is the existence of a local decision.
		return e.LocalDecision != nil
	case StageLocalPrepared:
		// LocalPrepared -> AllPrepared/SomePrepared requires Prepared evidence
		// from every foreign group, or from a strict majority of them.
		return e.Evidence.HasStatusEverywhere(e.ForeignGroups, lib.StatusPrepared) ||
			e.Evidence.HasStatusSomewhere(e.ForeignGroups, lib.StatusPrepared)
	case StageAllPrepared, StageSomePrepared:
		return true // ready for LocalAccept
	case StageLocalAccepted:
		return e.Evidence.HasStatusEverywhere(e.ForeignGroups, lib.StatusAccepted) ||
			e.Evidence.HasStatusSomewhere(e.ForeignGroups, lib.StatusAccepted)
	default:
		return false // AllAccepted/SomeAccepted/LocalOnly await commit, not further inclusion
	}
}

// stagePriority mirrors lib.CommandKind's priority ordering but at the
// pool-entry level: LocalOnly > *Accept* > *Prepare* > everything else,
// §4.2 "Ordering within a block".
func stagePriority(s Stage) int {
	switch s {
	case StageLocalOnly:
		return 0
	case StageAllAccepted, StageSomeAccepted, StageLocalAccepted:
		return 1
	case StageAllPrepared, StageSomePrepared, StageLocalPrepared, StagePrepared:
		return 2
	default:
		return 3
	}
}

// SortEntries orders ready entries by (1) stage priority, (2) ascending
// tx_id, the same two-key rule lib.SortCommands applies to the resulting
// commands, §4.2.
func SortEntries(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := stagePriority(entries[i].Stage), stagePriority(entries[j].Stage)
		if pi != pj {
			return pi < pj
		}
		return entries[i].TxID < entries[j].TxID
	})
}
