package authcore

import (
	"context"
	"sync"
	"sync/atomic"
)

// queuedEvent keeps the emitting request's context values (trace ids, client
// info) while shedding its deadline, so a sink may outlive the request.
type queuedEvent struct {
	ctx   context.Context
	event AuditEvent
}

// auditQueue moves audit events off the login, refresh and logout paths onto
// a single delivery goroutine. A lossy queue sheds events when full and
// counts them; otherwise Publish waits for room.
type auditQueue struct {
	sink    AuditSink
	pending chan queuedEvent
	lossy   bool

	stop     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	shed     atomic.Uint64
}

// startAuditQueue returns nil when auditing is disabled; every method is
// safe on a nil queue.
func startAuditQueue(cfg AuditConfig, sink AuditSink) *auditQueue {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	q := &auditQueue{
		sink:     sink,
		pending:  make(chan queuedEvent, max(cfg.BufferSize, 1)),
		lossy:    cfg.DropIfFull,
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go q.deliver()
	return q
}

func (q *auditQueue) deliver() {
	defer close(q.finished)

	for {
		select {
		case item := <-q.pending:
			q.sink.Emit(item.ctx, item.event)
		case <-q.stop:
			q.flush()
			return
		}
	}
}

// flush hands whatever is still buffered to the sink after a stop.
func (q *auditQueue) flush() {
	for {
		select {
		case item := <-q.pending:
			q.sink.Emit(item.ctx, item.event)
		default:
			return
		}
	}
}

func (q *auditQueue) stopping() bool {
	select {
	case <-q.stop:
		return true
	default:
		return false
	}
}

// Publish enqueues event. Events published after Close are discarded.
func (q *auditQueue) Publish(ctx context.Context, event AuditEvent) {
	if q == nil || q.stopping() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	item := queuedEvent{ctx: context.WithoutCancel(ctx), event: event}

	if q.lossy {
		select {
		case q.pending <- item:
		default:
			q.shed.Add(1)
		}
		return
	}

	select {
	case q.pending <- item:
	case <-ctx.Done():
	case <-q.stop:
	}
}

// Close stops intake, delivers buffered events and waits for the delivery
// goroutine. Repeated calls return immediately.
func (q *auditQueue) Close() {
	if q == nil {
		return
	}
	q.stopOnce.Do(func() {
		close(q.stop)
	})
	<-q.finished
}

// Dropped counts events shed by a full lossy queue.
func (q *auditQueue) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.shed.Load()
}
