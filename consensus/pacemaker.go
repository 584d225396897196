package consensus

import (
	"context"
	"fmt"
	"time"

	"github.com/leet4tari/tari-dan/lib"
)

/*
Pacemaker: view-timeout and NewView handling, spec §4.1 "a view advances
on receipt of a valid NewView or a Proposal whose justify-QC has height
>= current" and the "Cancellation" note that a view timeout cancels the
wait for the current proposal and triggers a NewView carrying HighQC.
Mirrors the teacher's bft.BFT.Start() select loop over PhaseTimer.C,
collapsed to the spec's single fallback timer per view rather than the
teacher's per-phase timer ladder.
*/

const pacemakerTickInterval = 250 * time.Millisecond

func viewKey(v lib.View) string {
	return fmt.Sprintf("%d/%d/%d", v.Epoch, v.Height, v.ShardGroup)
}

// resetViewDeadlineLocked arms the view's fallback deadline NewViewTimeoutMS
// out from now. Must be called with e.mu held.
func (e *Engine) resetViewDeadlineLocked(now time.Time) {
	e.viewDeadline = now.Add(time.Duration(e.cfg.NewViewTimeoutMS) * time.Millisecond)
}

// advanceView moves the engine to a new (height, epoch, shard_group),
// discarding the vote/new-view accumulators of the view it's leaving and
// rearming the fallback deadline. A regression (height/epoch no greater
// than the current view) is a no-op. Must be called with e.mu held.
func (e *Engine) advanceView(height, epoch, shardGroup uint64, now time.Time) {
	if epoch < e.view.Epoch || (epoch == e.view.Epoch && height <= e.view.Height) {
		return
	}
	e.view = lib.View{Height: height, Epoch: epoch, ShardGroup: shardGroup, Phase: lib.Propose}
	e.pendingVotes = make(map[string][]*lib.VoteMessage)
	e.pendingNewViews = make(map[string][]*lib.NewViewMessage)
	e.resetViewDeadlineLocked(now)
}

// onQCLocked applies a freshly-learned QC against the engine's safety
// state: HighQC update, one-chain lock, three-chain commit, and the view
// advance "a Proposal whose justify-QC has height >= current" of §4.1.
// Callers must hold e.mu.
func (e *Engine) onQCLocked(qc *lib.QuorumCertificate) lib.ErrorI {
	if qc == nil {
		return nil
	}
	if err := e.advanceHighQC(qc); err != nil {
		return err
	}
	if err := e.advanceLock(qc); err != nil {
		return err
	}
	if err := e.tryCommit(qc); err != nil {
		return err
	}
	if qc.Height >= e.view.Height {
		e.advanceView(qc.Height+1, qc.Epoch, qc.ShardGroup, time.Now())
	}
	return nil
}

// OnQC is the externally callable counterpart of onQCLocked, for a QC
// learned through a channel other than OnVote/OnProposal — e.g. catch-up
// sync with a peer.
func (e *Engine) OnQC(qc *lib.QuorumCertificate) lib.ErrorI {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onQCLocked(qc)
}

// Tick drives the pacemaker from a wall-clock source: on the first call it
// merely arms the deadline, on every later call it fires onViewTimeoutLocked
// once the current view's deadline has elapsed.
func (e *Engine) Tick(now time.Time) lib.ErrorI {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.viewDeadline.IsZero() {
		e.resetViewDeadlineLocked(now)
		return nil
	}
	if now.Before(e.viewDeadline) {
		return nil
	}
	return e.onViewTimeoutLocked(now)
}

// onViewTimeoutLocked implements spec's "Cancellation": a view timeout
// cancels the wait for the current proposal and triggers a NewView
// carrying HighQC, after crediting the expected leader's missed proposal,
// §4.4. Callers must hold e.mu.
func (e *Engine) onViewTimeoutLocked(now time.Time) lib.ErrorI {
	nextHeight := e.view.Height + 1
	if leader, lerr := e.ctrl.Oracle().ExpectedLeader(e.view.Epoch, e.shardGroup, nextHeight); lerr == nil {
		stats, serr := e.blocks.RecordMissedProposal(e.view.Epoch, lib.HexBytes(leader), e.cfg.EvictionThreshold)
		if serr != nil {
			return serr
		}
		if stats.MissedProposalsCapped >= e.cfg.EvictionThreshold {
			e.log.Warnf("leader %x eligible for eviction: %d missed proposals", leader, stats.MissedProposalsCapped)
		}
	}

	nv := &lib.NewViewMessage{
		View:   lib.View{Height: nextHeight, Epoch: e.view.Epoch, ShardGroup: e.shardGroup, Phase: lib.NewViewPhase},
		HighQC: e.safety.HighQC,
	}
	sig, serr := e.ctrl.Sign(nv.SignBytes())
	if serr != nil {
		return serr
	}
	nv.Signature = sig
	nv.SignerPublicKey = lib.HexBytes(e.ctrl.PublicKey())

	e.advanceView(nextHeight, e.view.Epoch, e.shardGroup, now)
	e.ctrl.SendNewView(nv)
	return nil
}

// OnNewView accumulates a replica's NewView as the prospective leader of
// its view; once a quorum of voting power has sent a NewView for the same
// view, the view advances locally using the highest HighQC any of them
// carried, spec §4.1 "a view advances on receipt of a valid NewView".
func (e *Engine) OnNewView(msg *lib.NewViewMessage) lib.ErrorI {
	e.mu.Lock()
	defer e.mu.Unlock()

	committee, err := e.ctrl.Oracle().Committee(msg.View.Epoch, msg.View.ShardGroup)
	if err != nil {
		return err
	}
	if committee.IndexOf(msg.SignerPublicKey) < 0 {
		return lib.ErrUnknownCommittee(msg.View.Epoch, msg.View.ShardGroup)
	}
	if msg.HighQC != nil {
		if err := e.advanceHighQC(msg.HighQC); err != nil {
			return err
		}
	}

	key := viewKey(msg.View)
	e.pendingNewViews[key] = append(e.pendingNewViews[key], msg)

	votedPower := uint64(0)
	seen := make(map[string]bool, len(e.pendingNewViews[key]))
	for _, m := range e.pendingNewViews[key] {
		signer := m.SignerPublicKey.String()
		if seen[signer] {
			continue
		}
		if idx := committee.IndexOf(m.SignerPublicKey); idx >= 0 {
			seen[signer] = true
			votedPower += committee.VotingPower[idx]
		}
	}
	if votedPower < committee.QuorumThreshold {
		return nil
	}
	delete(e.pendingNewViews, key)
	e.advanceView(msg.View.Height, msg.View.Epoch, msg.View.ShardGroup, time.Now())
	return nil
}

// Run is the engine's single-writer consensus task, spec §5 "exactly one
// logical task may mutate consensus state... suspension points are: an
// inbound message handler returns, a timer fires, a persistence commit
// completes." It owns the pacemaker tick and the leader's propose attempt;
// inbound message handlers (OnProposal/OnVote/OnNewView) are called
// directly by the transport layer, each independently taking e.mu, mirroring
// the teacher's bft.BFT.Start() select loop over PhaseTimer.C.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(pacemakerTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return e.Drain()
		case now := <-ticker.C:
			if err := e.Tick(now); err != nil {
				if err.Module() == lib.MainModule && err.Code() == lib.CodePersistence {
					return err
				}
				e.log.Warnf("pacemaker tick failed: %s", err.Error())
			}
			if _, err := e.ProposeNext(now); err != nil {
				if err.Module() == lib.MainModule && err.Code() == lib.CodePersistence {
					return err
				}
				e.log.Warnf("propose attempt failed: %s", err.Error())
			}
		}
	}
}
