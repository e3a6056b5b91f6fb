package cluster

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmapstore/engine/internal/core/ids"
)

// peerState names one state of the per-peer leader replication loop
// described by spec §4.7's BecomeLeader / Synchronize / AppendEntries /
// Wait / PushChanges table.
type peerState uint8

const (
	stateBecomeLeader peerState = iota
	stateSynchronize
	stateAppendEntries
	stateWait
	statePushChanges
)

const (
	// BatchMaxEntries and BatchMaxBytes bound one AppendEntries::UpdateLog
	// or UpdateStore batch.
	BatchMaxEntries = 256
	BatchMaxBytes   = 10 << 20

	rpcTimeout = 5 * time.Second
)

// PeerReplicator drives replication to one follower as a single blocking
// task; cancellation is via Stop, which the transport's Conn honors through
// SetDeadline rather than a select-based cancellation channel (see
// spec.md's design notes: a blocking thread-per-peer shape is acceptable
// provided the RPC layer supports cancellation).
type PeerReplicator struct {
	peerAddr  string
	term      uint64
	transport *Transport
	logs      *LogStore
	catchup   *CatchUp
	logger    *slog.Logger
	limiter   *rate.Limiter // paces PushChanges bytes/sec; nil means unlimited

	commitCh chan struct{} // signalled by the appender's OnAppend hook
	stopCh   chan struct{}
}

// NewPeerReplicator builds a replication task for one follower. commitCh
// should be signalled (non-blocking, buffered size 1 is enough) whenever the
// local log gains a new entry, waking the task out of Wait.
func NewPeerReplicator(peerAddr string, term uint64, transport *Transport, logs *LogStore, catchup *CatchUp, logger *slog.Logger) *PeerReplicator {
	return NewPeerReplicatorWithLimiter(peerAddr, term, transport, logs, catchup, logger, nil)
}

// NewPeerReplicatorWithLimiter is NewPeerReplicator plus a shared bandwidth
// limiter for catch-up pushes, so one lagging peer's bulk mail replay can't
// starve the cluster link the other peers' AppendEntries traffic shares.
func NewPeerReplicatorWithLimiter(peerAddr string, term uint64, transport *Transport, logs *LogStore, catchup *CatchUp, logger *slog.Logger, limiter *rate.Limiter) *PeerReplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeerReplicator{
		peerAddr:  peerAddr,
		term:      term,
		transport: transport,
		logs:      logs,
		catchup:   catchup,
		logger:    logger,
		limiter:   limiter,
		commitCh:  make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// NotifyCommit wakes the task out of Wait; safe to call from any goroutine.
func (p *PeerReplicator) NotifyCommit() {
	select {
	case p.commitCh <- struct{}{}:
	default:
	}
}

// Stop ends the task after its current RPC returns.
func (p *PeerReplicator) Stop() { close(p.stopCh) }

// Run drives the state machine until Stop is called. It never returns an
// error: every failure mode here maps to "wait and retry from
// BecomeLeader", matching the None response's documented handling.
func (p *PeerReplicator) Run() {
	state := stateBecomeLeader
	var matched ids.RaftId
	var pending []UpdateCollection

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		switch state {
		case stateBecomeLeader:
			if p.becomeLeader() {
				state = stateSynchronize
			} else {
				state = p.waitLiveness()
			}

		case stateSynchronize:
			m, ok := p.synchronize()
			if !ok {
				state = p.waitLiveness()
				continue
			}
			matched = m
			state = stateAppendEntries

		case stateAppendEntries:
			needs, sent, ok := p.appendEntries(matched)
			switch {
			case !ok:
				state = p.waitLiveness()
			case len(needs) > 0:
				pending = needs
				state = statePushChanges
			case sent:
				matched = p.lastLocal()
			default:
				state = stateWait
			}

		case stateWait:
			select {
			case <-p.commitCh:
				state = stateAppendEntries
			case <-p.stopCh:
				return
			case <-time.After(rpcTimeout):
				// no new commit: stay in Wait, re-checking Stop
			}

		case statePushChanges:
			if p.pushChanges(pending) {
				pending = nil
				state = stateAppendEntries
			} else {
				state = p.waitLiveness()
			}
		}
	}
}

func (p *PeerReplicator) waitLiveness() peerState {
	select {
	case <-time.After(rpcTimeout):
	case <-p.stopCh:
	}
	return stateBecomeLeader
}

func (p *PeerReplicator) conn() (*Conn, bool) {
	c, err := p.transport.Dial(p.peerAddr)
	if err != nil {
		p.logger.Warn("cluster: dial peer failed", "peer", p.peerAddr, "error", err)
		return nil, false
	}
	c.SetDeadline(time.Now().Add(rpcTimeout))
	return c, true
}

func (p *PeerReplicator) lastLocal() ids.RaftId {
	idx, err := p.logs.LastIndex()
	if err != nil {
		return ids.RaftIdNone()
	}
	raftID, err := p.logs.RaftIDAt(idx)
	if err != nil {
		return ids.RaftIdNone()
	}
	return raftID
}

func (p *PeerReplicator) becomeLeader() bool {
	c, ok := p.conn()
	if !ok {
		return false
	}
	if err := c.Send(MsgBecomeFollower, BecomeFollower{Term: p.term, LastLog: p.lastLocal()}); err != nil {
		p.transport.Drop(p.peerAddr)
		return false
	}

	msgType, body, err := c.Receive()
	if err != nil {
		p.transport.Drop(p.peerAddr)
		return false
	}
	if msgType != MsgBecomeFollowerResponse {
		p.logUnexpected(msgType)
		return false
	}
	resp, err := decodePayload[BecomeFollowerResponse](body)
	if err != nil || !resp.Success || resp.Term > p.term {
		return false
	}
	return true
}

func (p *PeerReplicator) synchronize() (ids.RaftId, bool) {
	c, ok := p.conn()
	if !ok {
		return ids.RaftId{}, false
	}
	if err := c.Send(MsgAppendEntriesSynchronize, Synchronize{LastLog: p.lastLocal()}); err != nil {
		p.transport.Drop(p.peerAddr)
		return ids.RaftId{}, false
	}

	msgType, body, err := c.Receive()
	if err != nil {
		p.transport.Drop(p.peerAddr)
		return ids.RaftId{}, false
	}
	switch msgType {
	case MsgSynchronizeLog:
		resp, err := decodePayload[SynchronizeLog](body)
		if err != nil {
			return ids.RaftId{}, false
		}
		return resp.Matched, true
	case MsgNone:
		return ids.RaftId{}, false
	default:
		p.logUnexpected(msgType)
		return ids.RaftId{}, false
	}
}

// appendEntries reads the next batch after matched and ships it. It reports
// needs (non-nil when the follower replied NeedUpdates), whether a
// non-empty batch was actually sent, and whether the RPC itself succeeded.
func (p *PeerReplicator) appendEntries(matched ids.RaftId) (needs []UpdateCollection, sent bool, ok bool) {
	last, err := p.logs.LastIndex()
	if err != nil {
		return nil, false, false
	}
	entries, err := p.logs.Range(matched.Index, last, BatchMaxEntries, BatchMaxBytes)
	if err != nil {
		return nil, false, false
	}
	if len(entries) == 0 {
		return nil, false, true
	}

	c, connOK := p.conn()
	if !connOK {
		return nil, false, false
	}
	lastLog := entries[len(entries)-1].RaftID
	if err := c.Send(MsgAppendEntriesUpdateLog, UpdateLog{LastLog: lastLog, Entries: entries}); err != nil {
		p.transport.Drop(p.peerAddr)
		return nil, false, false
	}

	msgType, body, err := c.Receive()
	if err != nil {
		p.transport.Drop(p.peerAddr)
		return nil, false, false
	}
	switch msgType {
	case MsgContinue:
		return nil, true, true
	case MsgNeedUpdates:
		resp, err := decodePayload[NeedUpdates](body)
		if err != nil {
			return nil, false, false
		}
		return resp.Collections, true, true
	case MsgNone:
		return nil, false, false
	default:
		p.logUnexpected(msgType)
		return nil, false, false
	}
}

// pushChanges streams UpdateStore batches for every collection needs names,
// until each is drained, then lets AppendEntries resume from the top.
func (p *PeerReplicator) pushChanges(needs []UpdateCollection) bool {
	c, ok := p.conn()
	if !ok {
		return false
	}

	for _, need := range needs {
		since := ids.ChangeId(0)
		if need.HasChangeID {
			since = need.FromChangeID
		}
		for {
			batch, done, err := p.catchup.Next(need.Account, need.Collection, since, BatchMaxBytes)
			if err != nil {
				p.logger.Error("cluster: catch-up failed", "peer", p.peerAddr, "error", err)
				return false
			}
			if len(batch) > 0 {
				if p.limiter != nil {
					n := batchByteSize(batch)
					if burst := p.limiter.Burst(); n > burst {
						n = burst
					}
					if err := p.limiter.WaitN(context.Background(), n); err != nil {
						p.logger.Warn("cluster: catch-up rate limiter wait failed", "peer", p.peerAddr, "error", err)
					}
				}
				if !p.sendUpdateStore(c, need.Account, need.Collection, batch) {
					return false
				}
				if last := lastChangeIDIn(batch); last > since {
					since = last
				}
			}
			if done {
				break
			}
		}
	}

	return p.sendUpdateStore(c, 0, 0, []Change{{Kind: ChangeCommit}})
}

// sendUpdateStore ships one UpdateStore batch and waits for the follower's
// Continue before the caller proceeds to the next batch or the Commit
// marker, so application on the follower side is always acknowledged.
func (p *PeerReplicator) sendUpdateStore(c *Conn, account ids.AccountId, collection ids.CollectionId, changes []Change) bool {
	if err := c.Send(MsgAppendEntriesUpdateStore, UpdateStore{Account: account, Collection: collection, Changes: changes}); err != nil {
		p.transport.Drop(p.peerAddr)
		return false
	}
	msgType, _, err := c.Receive()
	if err != nil {
		p.transport.Drop(p.peerAddr)
		return false
	}
	return msgType == MsgContinue
}

func (p *PeerReplicator) logUnexpected(msgType MessageType) {
	switch msgType {
	case MsgUpdatePeers, MsgVote, MsgPong:
		p.logger.Debug("cluster: ignoring out-of-scope response", "peer", p.peerAddr, "type", msgType)
	default:
		p.logger.Warn("cluster: unexpected response", "peer", p.peerAddr, "type", msgType)
	}
}

// batchByteSize approximates a batch's wire size for rate limiting. It
// counts at least as much per change as CatchUp.Next's own approxSize
// accounting, so a batch Next cut at BatchMaxBytes can exceed a limiter
// burst of BatchMaxBytes; pushChanges caps the count at the burst so
// WaitN never sees an over-burst call.
func batchByteSize(batch []Change) int {
	size := 0
	for _, c := range batch {
		size += len(c.Body) + len(c.EntryBytes) + len(c.Mailbox) + 64
	}
	return size
}

func lastChangeIDIn(batch []Change) ids.ChangeId {
	var max ids.ChangeId
	for _, c := range batch {
		if c.Kind == ChangeInsertChange && c.ChangeID > max {
			max = c.ChangeID
		}
	}
	return max
}
