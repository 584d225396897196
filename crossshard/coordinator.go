package crossshard

import (
	"github.com/leet4tari/tari-dan/epoch"
	"github.com/leet4tari/tari-dan/lib"
	"github.com/leet4tari/tari-dan/lib/crypto"
	"github.com/leet4tari/tari-dan/txpool"
)

/*
Coordinator is the cross-shard boundary of spec §4.5. Foreign-proposal
ingestion is exposed as the single all-or-nothing operation Ingest, per
DESIGN NOTES §9: "expose foreign-proposal ingestion as a single operation
(block, justify_qc, pledges) -> effects that is either fully applied or
fully rejected." Cross-shard evidence is never trusted without the
accompanying QC (same note).
*/
type Coordinator struct {
	oracle   epoch.Oracle
	verifier crypto.ThresholdVerifier
	pool     *txpool.Pool
	pledges  *Pledges
	parking  *parking
	log      lib.LoggerI
}

func NewCoordinator(oracle epoch.Oracle, verifier crypto.ThresholdVerifier, pool *txpool.Pool, log lib.LoggerI) *Coordinator {
	return &Coordinator{
		oracle: oracle, verifier: verifier, pool: pool,
		pledges: NewPledges(), parking: newParking(), log: log,
	}
}

// Ingest validates a foreign proposal's justify QC against the claimed
// committee, checks every pledge it carries, and — only if every check
// passes — applies the resulting evidence updates to the local pool. Any
// failure leaves pool state untouched (spec §4.5, DESIGN NOTES §9).
func (c *Coordinator) Ingest(block *lib.Block, justify *lib.QuorumCertificate, pledges []lib.SubstatePledge) lib.ErrorI {
	committee, err := c.oracle.Committee(block.Header.Epoch, block.Header.ShardGroup)
	if err != nil {
		return err
	}
	if _, cerr := justify.Check(c.verifier, committee); cerr != nil {
		return lib.ErrForeignQCInvalid()
	}

	missing := c.findMissingTransactions(block)
	if len(missing) > 0 {
		blockID := block.Hash().String()
		if perr := c.parking.park(blockID, &ParkedBlock{
			Block: block, Justify: justify, Pledges: pledges,
			FromShardGroup: block.Header.ShardGroup, MissingTxIDs: missing,
		}); perr != nil {
			return perr
		}
		return lib.ErrMissingTransactions(len(missing))
	}

	for _, p := range pledges {
		if verr := c.pledges.Check(p); verr != nil {
			return verr
		}
	}

	effects := extractEvidence(block)
	merged := make(map[*txpool.Entry]*lib.Evidence)
	for txID, ge := range effects {
		if e, ok := c.pool.Get(txID); ok {
			ev := e.Evidence.Clone()
			if merr := ev.Merge(block.Header.ShardGroup, ge); merr != nil {
				return merr
			}
			merged[e] = ev
		}
	}
	for e, ev := range merged {
		e.Evidence = ev
	}
	for _, p := range pledges {
		c.pledges.Record(p)
	}
	return nil
}

// findMissingTransactions reports which tx_ids referenced by block's
// commands are not present in the local pool, spec §4.5 "Foreign parking".
func (c *Coordinator) findMissingTransactions(block *lib.Block) []string {
	var missing []string
	for _, cmd := range block.Commands {
		txID := cmd.TxID()
		if txID == "" {
			continue
		}
		if !c.pool.Contains(txID) {
			missing = append(missing, txID)
		}
	}
	return missing
}

// extractEvidence derives the per-tx GroupEvidence a foreign block implies
// for the ingesting shard group, from the block's committed commands.
func extractEvidence(block *lib.Block) map[string]lib.GroupEvidence {
	out := make(map[string]lib.GroupEvidence)
	for _, cmd := range block.Commands {
		txID := cmd.TxID()
		if txID == "" || cmd.Atom == nil {
			continue
		}
		status := lib.StatusNone
		switch {
		case cmd.Kind.IsPrepare():
			status = lib.StatusPrepared
		case cmd.Kind.IsAccept():
			status = lib.StatusAccepted
		}
		if cmd.Atom.Decision == lib.DecisionReject {
			status = lib.StatusAbort
		}
		if status == lib.StatusNone {
			continue
		}
		out[txID] = lib.GroupEvidence{LockType: lib.LockWrite, Status: status}
	}
	return out
}

// OnTransactionArrived drains the parking index for txID, re-attempting
// Ingest for every parked block that is now fully satisfied — DESIGN NOTES
// §9's "drain on each new transaction insert". Neither txpool.Pool.Insert
// nor consensus.Engine calls it; it runs only when invoked directly.
func (c *Coordinator) OnTransactionArrived(txID string) []lib.ErrorI {
	var errs []lib.ErrorI
	for _, parked := range c.parking.onTransactionArrived(txID) {
		if err := c.Ingest(parked.Block, parked.Justify, parked.Pledges); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
