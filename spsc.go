// Package spsc provides bounded single-producer single-consumer channels
// built on lock-free ring buffers.
//
// Exactly one goroutine may send and exactly one may receive on a given
// channel instance. Within that contract no locks, mutexes or OS waits are
// used; coordination happens through atomic loads and stores only.
//
//	                  tail (producer writes here)
//	                  ↓
//	┌───┬───┬───┬───┬───┬───┬───┬───┐
//	│ 0 │ 1 │ 2 │ 3 │ 4 │ 5 │ 6 │ 7 │  ring of N slots (N power of two)
//	└───┴───┴───┴───┴───┴───┴───┴───┘
//	      ↑
//	      head (consumer reads here)
//
// Two synchronization protocols are available, chosen at construction time:
//
//   - New: shared-cursor (Lamport style). Producer and consumer advance two
//     shared counters; fullness and emptiness are derived from their
//     difference. One atomic field per side for the whole buffer.
//   - NewStamped: per-slot-stamp (Vyukov style). Each slot carries its own
//     sequence stamp and each side keeps a private, unshared cursor.
//     Neither side ever loads the peer's cursor; cross-core traffic is
//     limited to the slots actually being touched.
//
// Cursors are unbounded counters that wrap at the integer width, not at the
// capacity; only the low bits select the physical slot. Values are delivered
// strictly first-in-first-out, never reordered, skipped or duplicated.
//
// On top of the non-blocking TrySend/TryRecv core both protocols expose
// busy-spin wrappers (SendSpin/RecvSpin), a batched reader (Drain), and a
// poll-based surface (SendPoll/RecvPoll plus the context-driven Send/Recv)
// for cooperative schedulers.
package spsc

import "fmt"

var (
	// ErrFull reports that the ring is at capacity. Transient: retryable by
	// the producer once the consumer frees a slot.
	ErrFull = fmt.Errorf("spsc: buffer is full")

	// ErrDisconnected reports that the peer handle has been closed.
	// Terminal. On the send path the caller still owns the value it tried
	// to send; on the receive path it is returned only after all buffered
	// data has been drained.
	ErrDisconnected = fmt.Errorf("spsc: peer handle is closed")
)

const goschedEvery = 64 // reduce runtime.Gosched() frequency in hot spin loops
