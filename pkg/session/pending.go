package session

import (
	"sync"
	"time"

	"github.com/maxubrq/redisX/pkg/resp"
)

// sendResult is what a pendingRequest's future resolves to.
type sendResult struct {
	value resp.Value
	err   error
}

// pendingRequest is one in-flight command waiting for its correlated
// reply. A tombstoned request stays in the FIFO at its original position
// so a late reply is consumed and discarded rather than misassigned to
// whatever request happens to be at the head when it arrives — the
// fix for the timeout/cancel race.
type pendingRequest struct {
	id   uint64
	verb string

	mu        sync.Mutex
	resolved  bool
	tombstone bool
	resultCh  chan sendResult
	timer     *time.Timer
}

func newPendingRequest(id uint64, verb string) *pendingRequest {
	return &pendingRequest{
		id:       id,
		verb:     verb,
		resultCh: make(chan sendResult, 1),
	}
}

// resolve delivers a successful reply. A no-op if the request was already
// tombstoned by a timeout or cancellation.
func (p *pendingRequest) resolve(v resp.Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return
	}
	p.resolved = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.resultCh <- sendResult{value: v}
}

// fail marks the request resolved with an error and tombstones it so the
// eventual real reply (if any) is discarded on arrival.
func (p *pendingRequest) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tombstone = true
	if p.resolved {
		return
	}
	p.resolved = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.resultCh <- sendResult{err: err}
}

func (p *pendingRequest) isTombstone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tombstone
}

// requestFIFO is a simple ordered queue of pending requests. It has no
// internal locking — callers serialize access through Session.mu, per the
// single-actor concurrency model.
type requestFIFO struct {
	items []*pendingRequest
}

func (q *requestFIFO) push(p *pendingRequest) {
	q.items = append(q.items, p)
}

func (q *requestFIFO) popFront() (*pendingRequest, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p, true
}

func (q *requestFIFO) len() int {
	return len(q.items)
}

// failAll tombstones and fails every request still queued, in order —
// used at teardown.
func (q *requestFIFO) failAll(err error) {
	for _, p := range q.items {
		p.fail(err)
	}
	q.items = nil
}
