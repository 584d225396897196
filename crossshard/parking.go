package crossshard

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/leet4tari/tari-dan/lib"
)

/*
ParkedBlock holds a foreign proposal that referenced transactions not yet
known locally, spec §4.5 "Foreign parking". The inbound dependency index
(tx_id -> waiting block_ids) is DESIGN NOTES §9's "model as an index from
missing tx_id to parked block_ids and drain on each new transaction
insert."
*/
type ParkedBlock struct {
	Block          *lib.Block
	Justify        *lib.QuorumCertificate
	Pledges        []lib.SubstatePledge
	FromShardGroup uint64
	MissingTxIDs   []string
}

type parking struct {
	mu         sync.Mutex
	byBlockID  map[string]*ParkedBlock
	missingIdx map[string][]string // tx_id -> []block_id waiting on it
}

func newParking() *parking {
	return &parking{byBlockID: make(map[string]*ParkedBlock), missingIdx: make(map[string][]string)}
}

func (pk *parking) park(blockID string, p *ParkedBlock) lib.ErrorI {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	if _, ok := pk.byBlockID[blockID]; ok {
		return lib.ErrAlreadyParked(blockID)
	}
	pk.byBlockID[blockID] = p
	for _, txID := range p.MissingTxIDs {
		pk.missingIdx[txID] = append(pk.missingIdx[txID], blockID)
	}
	return nil
}

// onTransactionArrived removes txID from every parked block waiting on it
// and returns (and unparks) only the blocks with no missing tx_id left;
// blocks still missing other tx_ids stay parked.
func (pk *parking) onTransactionArrived(txID string) []*ParkedBlock {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	blockIDs := pk.missingIdx[txID]
	delete(pk.missingIdx, txID)
	var out []*ParkedBlock
	for _, bID := range blockIDs {
		p, ok := pk.byBlockID[bID]
		if !ok {
			continue
		}
		p.MissingTxIDs = removeString(p.MissingTxIDs, txID)
		if len(p.MissingTxIDs) == 0 {
			delete(pk.byBlockID, bID)
			out = append(out, p)
		}
	}
	return out
}

func removeString(s []string, target string) []string {
	out := s[:0]
	for _, v := range s {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// RetryBackoff builds the exponential backoff policy for
// MissingTransactionsRequest/SyncRequest retries, mirroring the teacher's
// p2p dial/retry loop (p2p/p2p.go) — this is §7's "park-and-retry"
// missing-data policy's natural home for a retry schedule.
func RetryBackoff(ctx context.Context, cfg lib.CrossShardConfig) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(cfg.RetryInitialMS) * time.Millisecond
	b.MaxInterval = time.Duration(cfg.RetryMaxMS) * time.Millisecond
	b.Multiplier = cfg.RetryMultiplier
	return backoff.WithContext(b, ctx)
}
