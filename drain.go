package spsc

// Drain is a batched reader over a shared-cursor Receiver, created by
// Receiver.Drain. It snapshots the cursors once, yields slots sequentially
// without touching the shared head, and commits all consumed progress with a
// single head store when closed or exhausted. Synchronization cost is paid
// once per batch instead of once per item.
//
// Snapshot semantics: values published after construction are not visible to
// this Drain even if capacity exists. Non-restartable. Disconnection is not
// signalled; check IsClosed after the batch.
//
// Closing early (including via a deferred Close that runs during a panic)
// commits exactly the items actually consumed: a later Drain resumes at the
// next unconsumed value, nothing repeated, nothing lost.
type Drain[T any] struct {
	rx    *Receiver[T]
	start uint64 // head at construction; commit is skipped if nothing moved
	head  uint64 // ephemeral head, advanced per item
	tail  uint64 // fixed at construction, clamped to start+max
	done  bool
}

// Drain returns a batched reader yielding at most max of the values
// available right now. The Receiver must not be used again until the Drain
// is closed; close it with a defer so a panic mid-batch still commits the
// consumed items.
func (r *Receiver[T]) Drain(max uint64) *Drain[T] {
	ch := r.ch
	head := ch.head.Load()
	// Pairs with the producer's tail store, once for the whole batch.
	tail := ch.tail.Load()

	// Clamp by comparing counts, not raw sequence numbers, so cursor
	// wraparound cannot produce an oversized window.
	if avail := tail - head; max < avail {
		tail = head + max
	}

	return &Drain[T]{rx: r, start: head, head: head, tail: tail}
}

// Next moves the next value out of the batch. ok is false once the batch is
// exhausted, which also commits the consumed progress.
func (d *Drain[T]) Next() (v T, ok bool) {
	if d.done || d.head == d.tail {
		d.commit()
		return v, false
	}
	ch := d.rx.ch
	v = ch.ring.read(ch.ring.index(d.head))
	d.head++
	return v, true
}

// Remaining returns how many values are left in this batch.
func (d *Drain[T]) Remaining() uint64 {
	return d.tail - d.head
}

// IsClosed reports whether the sender has closed.
func (d *Drain[T]) IsClosed() bool {
	return d.rx.IsClosed()
}

// Close commits the consumed progress and ends the batch. Idempotent.
func (d *Drain[T]) Close() {
	d.commit()
}

func (d *Drain[T]) commit() {
	if d.done {
		return
	}
	d.done = true
	if d.head == d.start {
		return
	}
	// One store publishes every slot freed by this batch.
	d.rx.ch.head.Store(d.head)
	d.rx.ch.sendWaker.wake()
}

// StampedDrain is the batched reader over a per-slot-stamp StampedReceiver,
// created by StampedReceiver.Drain. Freeing is per-slot in this protocol, so
// each consumed value immediately republishes its own slot and the producer
// can observe freed capacity mid-batch; there is no deferred commit step.
// The batch only bounds how many values one pass may take.
type StampedDrain[T any] struct {
	rx       *StampedReceiver[T]
	left     uint64
	consumed uint64
	done     bool
}

// Drain returns a batched reader yielding at most max values. The batch ends
// at the first empty slot; disconnection is not signalled, check IsClosed
// after. Safe to abandon at any point, but Close wakes a producer pending on
// freed capacity and should still be deferred.
func (r *StampedReceiver[T]) Drain(max uint64) *StampedDrain[T] {
	return &StampedDrain[T]{rx: r, left: max}
}

// Next moves the next value out of the batch. ok is false once the budget is
// spent, the buffer is empty, or the channel is disconnected.
func (d *StampedDrain[T]) Next() (v T, ok bool) {
	if d.done || d.left == 0 {
		d.finish()
		return v, false
	}
	v, ok, err := d.rx.TryRecv()
	if !ok || err != nil {
		d.finish()
		var zero T
		return zero, false
	}
	d.left--
	d.consumed++
	return v, true
}

// Remaining returns how many values this batch may still yield. Best-effort:
// it clamps the budget by the approximate length.
func (d *StampedDrain[T]) Remaining() uint64 {
	if avail := d.rx.Len(); avail < d.left {
		return avail
	}
	return d.left
}

// IsClosed reports whether the sender has closed.
func (d *StampedDrain[T]) IsClosed() bool {
	return d.rx.IsClosed()
}

// Close ends the batch. Idempotent. Slots were already republished per item;
// this only notifies a pending producer once for the whole batch.
func (d *StampedDrain[T]) Close() {
	d.finish()
}

func (d *StampedDrain[T]) finish() {
	if d.done {
		return
	}
	d.done = true
	if d.consumed > 0 {
		d.rx.ch.sendWaker.wake()
	}
}
