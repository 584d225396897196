package txpool

import (
	"sync"

	"github.com/leet4tari/tari-dan/lib"
)

/*
Pool is the in-memory transaction-pool state machine of spec §4.2,
mirroring the teacher's lib.FeeMempool shape (RWMutex-guarded de-dup map
plus an ordered working set) but re-purposed: entries carry Stage,
Evidence and IsReady rather than raw fee-ordered bytes, and ordering for
inclusion is the spec's stage-priority/tx_id rule (see ordering.go)
instead of fee-descending.
*/
type Pool struct {
	mu      sync.RWMutex
	entries map[string]*Entry // keyed by tx_id
	config  lib.PoolConfig
	log     lib.LoggerI

	// waiters maps a tx_id to the channels blocked on it. Populated by
	// AwaitTransaction and drained here on every Insert.
	waiters map[string][]chan struct{}
}

// Entry is the spec §3 PoolEntry.
type Entry struct {
	TxID             string
	OriginalDecision lib.Decision
	LocalDecision    *lib.Decision
	RemoteDecision   *lib.Decision
	Evidence         *lib.Evidence
	Stage            Stage
	PendingStage     *Stage
	IsReady          bool
	ConfirmStage     *Stage
	IsGlobal         bool
	TransactionFee   uint64
	LeaderFee        uint64
	ForeignGroups    []uint64 // declared foreign shard groups this tx touches, for readiness predicates
}

func NewPool(config lib.PoolConfig, log lib.LoggerI) *Pool {
	return &Pool{
		entries: make(map[string]*Entry),
		waiters: make(map[string][]chan struct{}),
		config:  config,
		log:     log,
	}
}

// Insert adds a brand-new transaction to the pool at StageNew, §3
// "pooled" lifecycle step. isGlobal/foreignGroups classify it as
// local-only, local-multi or global per §4.2's opening paragraph.
func (p *Pool) Insert(txID string, originalDecision lib.Decision, fee uint64, isGlobal bool, foreignGroups []uint64) lib.ErrorI {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[txID]; ok {
		return lib.ErrPoolDuplicateTx(txID)
	}
	if len(p.entries) >= p.config.MaxPoolSize {
		return lib.NewError(lib.CodeNotReady, lib.PoolModule, "pool is full")
	}
	entry := &Entry{
		TxID:             txID,
		OriginalDecision: originalDecision,
		Evidence:         lib.NewEvidence(),
		Stage:            StageNew,
		IsGlobal:         isGlobal,
		TransactionFee:   fee,
		ForeignGroups:    foreignGroups,
	}
	recomputeReadiness(entry)
	p.entries[txID] = entry
	p.drainWaiters(txID)
	return nil
}

func (p *Pool) drainWaiters(txID string) {
	for _, ch := range p.waiters[txID] {
		close(ch)
	}
	delete(p.waiters, txID)
}

// AwaitTransaction returns a channel closed once txID is inserted, or
// immediately closed if it's already present. The crossshard coordinator
// does not use it; it keeps its own parking index.
func (p *Pool) AwaitTransaction(txID string) <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan struct{})
	if _, ok := p.entries[txID]; ok {
		close(ch)
		return ch
	}
	p.waiters[txID] = append(p.waiters[txID], ch)
	return ch
}

func (p *Pool) Get(txID string) (*Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[txID]
	return e, ok
}

func (p *Pool) Contains(txID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[txID]
	return ok
}

// Evict removes a pool entry on commit of its terminal *Accept* command,
// §4.2 "Eviction from pool". It only deletes the entry; neither the pool
// nor its caller records the final outcome on a transaction record.
func (p *Pool) Evict(txID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, txID)
}

// ApplyCommand advances the pool entry for cmd's transaction per the
// Transition table in stage.go, driven by an observed command in a
// committed block (spec §4.2: "Transitions are driven exclusively by
// observed commands in committed blocks"). ours indicates the command was
// produced by this shard group's own committed block rather than learned
// as foreign evidence.
func (p *Pool) ApplyCommand(cmd *lib.Command, ours bool) lib.ErrorI {
	txID := cmd.TxID()
	if txID == "" {
		return nil // non-transactional command, nothing to transition
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[txID]
	if !ok {
		return nil // already evicted (restart replay) or genuinely unknown; not an error here
	}
	if cmd.Atom != nil && cmd.Atom.Decision == lib.DecisionReject {
		p.finalizeLocked(e, lib.AbortTransactionAtomMustBeCommit)
		return nil
	}
	to, recognized := Transition(e.Stage, cmd.Kind, ours)
	if recognized {
		e.Stage = to
	}
	if cmd.Atom != nil && cmd.Atom.Evidence != nil {
		for g, ge := range cmd.Atom.Evidence.ByGroup {
			if err := e.Evidence.Merge(g, ge); err != nil {
				p.finalizeLocked(e, lib.AbortForeignPledgeInputConflict)
				return nil
			}
		}
	}
	if e.Evidence.AnyAbort() {
		p.finalizeLocked(e, lib.AbortForeignShardGroupDecidedToAbort)
		return nil
	}
	recomputeReadiness(e)
	return nil
}

func (p *Pool) finalizeLocked(e *Entry, reason lib.AbortReason) {
	_ = reason // the abort reason is not recorded; the entry is only deleted
	delete(p.entries, e.TxID)
}

// recomputeReadiness re-derives IsReady per §4.2 "recomputed on every
// evidence or decision change", delegated to ordering.go's predicate table.
func recomputeReadiness(e *Entry) {
	e.IsReady = isReady(e)
}

// ReadySet returns every entry with IsReady=true, ordered per §4.2
// "Ordering within a block", capped at MaxReadySetSize — excess ready
// transactions are deferred (kept in the pool, simply not returned here),
// never dropped, per §5 resource caps.
func (p *Pool) ReadySet() []*Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Entry, 0, len(p.entries))
	for _, e := range p.entries {
		if e.IsReady {
			out = append(out, e)
		}
	}
	SortEntries(out)
	if len(out) > p.config.MaxReadySetSize {
		out = out[:p.config.MaxReadySetSize]
	}
	return out
}

func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
