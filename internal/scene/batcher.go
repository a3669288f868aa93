package scene

import (
	"sync"
	"time"
)

// DeltaOp is one ordered change in a scene_delta message.
type DeltaOp struct {
	Op     string   `json:"op"` // "add", "update" or "remove"
	ID     EntityID `json:"id"`
	Module string   `json:"module,omitempty"`
	Entity *Entity  `json:"entity,omitempty"`
}

// Batcher is an Observer that collects entity changes and hands them to flush
// at most once per throttle interval. Repeated updates of the same entity
// within a batch collapse into the latest one. A zero throttle flushes on
// every change.
type Batcher struct {
	throttle time.Duration
	flush    func([]DeltaOp)

	flushMu sync.Mutex // keeps batches in order
	mu      sync.Mutex
	ops     []DeltaOp
	updates map[EntityID]int
	timer   *time.Timer
	closed  bool
}

func NewBatcher(throttle time.Duration, flush func([]DeltaOp)) *Batcher {
	return &Batcher{
		throttle: throttle,
		flush:    flush,
		updates:  make(map[EntityID]int),
	}
}

func (b *Batcher) EntityAdded(e Entity) {
	b.push(DeltaOp{Op: "add", ID: e.ID, Module: e.Module, Entity: &e})
}

func (b *Batcher) EntityUpdated(e Entity) {
	b.mu.Lock()
	if i, ok := b.updates[e.ID]; ok && !b.closed {
		b.ops[i].Entity = &e
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	b.push(DeltaOp{Op: "update", ID: e.ID, Module: e.Module, Entity: &e})
}

func (b *Batcher) EntityRemoved(id EntityID, module string) {
	b.push(DeltaOp{Op: "remove", ID: id, Module: module})
}

func (b *Batcher) push(op DeltaOp) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	switch op.Op {
	case "update":
		b.updates[op.ID] = len(b.ops)
	default:
		// an add or remove ends update coalescing for this id
		delete(b.updates, op.ID)
	}
	b.ops = append(b.ops, op)

	if b.throttle <= 0 {
		b.mu.Unlock()
		b.Flush()
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.throttle, b.Flush)
	}
	b.mu.Unlock()
}

// take must be called with b.mu held.
func (b *Batcher) take() []DeltaOp {
	ops := b.ops
	b.ops = nil
	clear(b.updates)
	b.timer = nil
	return ops
}

// Flush delivers any pending ops immediately.
func (b *Batcher) Flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	ops := b.take()
	b.mu.Unlock()

	if len(ops) > 0 {
		b.flush(ops)
	}
}

// Close flushes what is pending and drops later changes.
func (b *Batcher) Close() {
	b.Flush()
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}
