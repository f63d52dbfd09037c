package authgate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// operationSlots sizes the per-operation drop counters. Unknown operations
// share the last slot.
const operationSlots = int(OpGeneric) + 1

// auditEntry is what a request queues: the record plus the request facts that
// are gone once the call returns. The AuditEvent is rendered on the dispatcher
// goroutine.
type auditEntry struct {
	at     time.Time
	ip     string
	record auditRecord
}

func (e auditEntry) event() AuditEvent {
	ev := AuditEvent{
		Timestamp: e.at,
		EventType: e.record.eventType,
		Operation: e.record.op.String(),
		Username:  e.record.username,
		UserID:    e.record.userID,
		TokenID:   e.record.tokenID,
		IP:        e.ip,
		Success:   e.record.success,
		Metadata:  e.record.metadata,
	}
	if code := auditErrorCode(e.record.err); code != "" {
		ev.Error = string(code)
	}
	return ev
}

// auditDispatcher delivers audit entries to the sink from one goroutine.
// With dropIfFull a full queue drops the entry and counts it against its
// operation; otherwise the caller waits for room or for its context.
type auditDispatcher struct {
	sink       AuditSink
	logger     *zap.Logger
	dropIfFull bool

	queue     chan auditEntry
	stop      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once

	dropped [operationSlots]atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger *zap.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &auditDispatcher{
		sink:       sink,
		logger:     logger,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan auditEntry, cfg.BufferSize),
		stop:       make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case e := <-d.queue:
			d.deliver(e)
		case <-d.stop:
			for {
				select {
				case e := <-d.queue:
					d.deliver(e)
				default:
					return
				}
			}
		}
	}
}

// deliver hands one event to the sink. A panicking sink loses that event
// only; the goroutine keeps draining so blocked callers are released.
func (d *auditDispatcher) deliver(e auditEntry) {
	ev := e.event()
	defer func() {
		if r := recover(); r != nil {
			d.dropped[slot(e.record.op)].Add(1)
			d.logger.Error("audit sink panicked",
				zap.String("event_type", ev.EventType),
				zap.String("operation", ev.Operation),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

func (d *auditDispatcher) enqueue(ctx context.Context, e auditEntry) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- e:
		case <-d.stop:
		default:
			d.dropped[slot(e.record.op)].Add(1)
		}
		return
	}

	select {
	case d.queue <- e:
	case <-ctx.Done():
		d.dropped[slot(e.record.op)].Add(1)
	case <-d.stop:
	}
}

// Close stops accepting entries, flushes the queue and waits for the sink.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	var n uint64
	for i := range d.dropped {
		n += d.dropped[i].Load()
	}
	return n
}

func (d *auditDispatcher) DroppedFor(op Operation) uint64 {
	if d == nil {
		return 0
	}
	return d.dropped[slot(op)].Load()
}

func slot(op Operation) int {
	if int(op) >= operationSlots {
		return operationSlots - 1
	}
	return int(op)
}
