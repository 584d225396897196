package crossshard

import (
	"sync"

	"github.com/leet4tari/tari-dan/lib"
)

/*
Pledges tracks foreign_substate_pledges: a group records a pledge on
accepting a local *Prepare* for a tx with foreign-visible inputs, spec
§4.5. The pledge binds the group's vote — a later local proposal violating
it must be refused.
*/
type Pledges struct {
	mu  sync.Mutex
	byKey map[string]*lib.SubstatePledge // Key() -> pledge
}

func NewPledges() *Pledges { return &Pledges{byKey: make(map[string]*lib.SubstatePledge)} }

// Record stores a new pledge, overwriting any prior pledge for the same
// key only if it came from the same tx_id (re-proposal of the same block
// plan); a pledge from a different tx_id for the same key is a genuine
// violation the caller should have already rejected via Check.
func (p *Pledges) Record(pledge lib.SubstatePledge) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := pledgeKeyString(pledge.Key())
	if existing, ok := p.byKey[key]; ok && existing.TxID != pledge.TxID {
		return
	}
	p.byKey[key] = &pledge
}

// Check reports whether a proposed pledge would violate an existing one
// for the same (substate_id, version) held by a different transaction,
// spec §4.5 "a subsequent local proposal that violates the pledge must be
// refused".
func (p *Pledges) Check(pledge lib.SubstatePledge) lib.ErrorI {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := pledgeKeyString(pledge.Key())
	existing, ok := p.byKey[key]
	if !ok {
		return nil
	}
	if existing.TxID != pledge.TxID {
		return lib.ErrPledgeViolation(pledge.TxID, pledge.SubstateID)
	}
	return nil
}

func pledgeKeyString(k lib.SubstateKey) string {
	return k.SubstateID + ":" + lib.BytesToString(uint64ToKeyBytes(k.Version))
}

func uint64ToKeyBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
