package spsc

import (
	"context"
	"sync/atomic"
)

// waker holds at most one pending wake callback per channel side,
// last-registered-wins. wake consumes the callback: a single registration
// produces at most one invocation.
type waker struct {
	fn atomic.Pointer[func()]
}

func (w *waker) register(fn func()) {
	w.fn.Store(&fn)
}

func (w *waker) wake() {
	if fn := w.fn.Swap(nil); fn != nil {
		(*fn)()
	}
}

// The poll surface layers cooperative suspension over the non-blocking core
// without changing the protocols: one TrySend/TryRecv attempt per call, and
// on failure the caller's callback is parked on the channel. Registration
// alone would race with the peer publishing between the failed attempt and
// the store of the callback — a missed wakeup — so every registration is
// followed by one re-check of the condition, self-waking if it now holds.

// SendPoll attempts one non-blocking send. On success the receiver's pending
// callback (if any) is woken. On ErrFull, wake is registered to fire when a
// slot frees up or the channel closes, and the caller should yield to its
// scheduler; the caller keeps ownership of v and must retry with it, so
// abandoning the retry loop after ErrFull loses nothing, while a nil return
// means the channel owns the value.
func (s *Sender[T]) SendPoll(v T, wake func()) error {
	err := s.TrySend(v)
	if err != ErrFull {
		if err == nil {
			s.ch.recvWaker.wake()
		}
		return err
	}

	ch := s.ch
	ch.sendWaker.register(wake)

	// Re-check after registering: the consumer may have freed a slot (or
	// closed) in between, with no callback registered yet to notify.
	tail := ch.tail.Load()
	head := ch.head.Load()
	if tail-head < ch.ring.capacity() || ch.closed.Load() {
		ch.sendWaker.wake()
	}
	return ErrFull
}

// RecvPoll attempts one non-blocking receive. On success the sender's
// pending callback (if any) is woken. When no value is ready, wake is
// registered to fire when a value arrives or the channel closes, and the
// caller should yield to its scheduler. Safe to abandon at any point with no
// data loss.
func (r *Receiver[T]) RecvPoll(wake func()) (T, bool, error) {
	v, ok, err := r.TryRecv()
	if ok || err != nil {
		if ok {
			r.ch.sendWaker.wake()
		}
		return v, ok, err
	}

	ch := r.ch
	ch.recvWaker.register(wake)

	// Re-check after registering: the producer may have published (or
	// closed) in between, with no callback registered yet to notify.
	tail := ch.tail.Load()
	head := ch.head.Load()
	if tail != head || ch.closed.Load() {
		ch.recvWaker.wake()
	}
	return v, false, nil
}

// SendPoll attempts one non-blocking send on a per-slot-stamp channel; the
// contract matches Sender.SendPoll.
func (s *StampedSender[T]) SendPoll(v T, wake func()) error {
	err := s.TrySend(v)
	if err != ErrFull {
		if err == nil {
			s.ch.recvWaker.wake()
		}
		return err
	}

	ch := s.ch
	ch.sendWaker.register(wake)

	// Re-check the stamp of the slot we are blocked on.
	slot := &ch.slots[s.tail&ch.mask]
	if slot.stamp.Load() == s.tail || ch.closed.Load() {
		ch.sendWaker.wake()
	}
	return ErrFull
}

// RecvPoll attempts one non-blocking receive on a per-slot-stamp channel;
// the contract matches Receiver.RecvPoll.
func (r *StampedReceiver[T]) RecvPoll(wake func()) (T, bool, error) {
	v, ok, err := r.TryRecv()
	if ok || err != nil {
		if ok {
			r.ch.sendWaker.wake()
		}
		return v, ok, err
	}

	ch := r.ch
	ch.recvWaker.register(wake)

	// Re-check the stamp of the slot we are blocked on.
	slot := &ch.slots[r.head&ch.mask]
	if slot.stamp.Load() == r.head+1 || ch.closed.Load() {
		ch.recvWaker.wake()
	}
	return v, false, nil
}

// notifier adapts a wake callback to a parkable signal for the context-based
// wrappers. The buffered channel coalesces wakes: a wake before the park is
// not lost, repeated wakes collapse into one.
type notifier struct {
	ready chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ready: make(chan struct{}, 1)}
}

func (n *notifier) wake() {
	select {
	case n.ready <- struct{}{}:
	default:
	}
}

func (n *notifier) park(ctx context.Context) error {
	select {
	case <-n.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send delivers a value, parking the goroutine between poll attempts until a
// slot frees up, the receiver closes, or ctx is cancelled. The channel core
// itself never blocks; parking happens here, outside the protocol. On a
// non-nil return the caller still owns v.
func (s *Sender[T]) Send(ctx context.Context, v T) error {
	n := newNotifier()
	for {
		if err := s.SendPoll(v, n.wake); err != ErrFull {
			return err
		}
		if err := n.park(ctx); err != nil {
			return err
		}
	}
}

// Recv receives a value, parking the goroutine between poll attempts until a
// value arrives, the channel disconnects, or ctx is cancelled. Safe to
// abandon on cancellation with no data loss.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	n := newNotifier()
	for {
		v, ok, err := r.RecvPoll(n.wake)
		if ok || err != nil {
			return v, err
		}
		if err := n.park(ctx); err != nil {
			var zero T
			return zero, err
		}
	}
}

// Send delivers a value on a per-slot-stamp channel; the contract matches
// Sender.Send.
func (s *StampedSender[T]) Send(ctx context.Context, v T) error {
	n := newNotifier()
	for {
		if err := s.SendPoll(v, n.wake); err != ErrFull {
			return err
		}
		if err := n.park(ctx); err != nil {
			return err
		}
	}
}

// Recv receives a value on a per-slot-stamp channel; the contract matches
// Receiver.Recv.
func (r *StampedReceiver[T]) Recv(ctx context.Context) (T, error) {
	n := newNotifier()
	for {
		v, ok, err := r.RecvPoll(n.wake)
		if ok || err != nil {
			return v, err
		}
		if err := n.park(ctx); err != nil {
			var zero T
			return zero, err
		}
	}
}
