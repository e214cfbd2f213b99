package spsc

import (
	"math"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"
)

func fill(t *testing.T, tx *Sender[int], vals ...int) {
	t.Helper()
	for _, v := range vals {
		require.NoError(t, tx.TrySend(v))
	}
}

// Drain with a max larger than availability yields exactly the available
// items, in order; the channel is empty afterwards.
func TestDrainYieldsAvailable(t *testing.T) {
	tx, rx := New[int](8)
	defer tx.Close()
	defer rx.Close()
	fill(t, tx, 1, 2, 3)

	d := rx.Drain(math.MaxUint64)
	defer d.Close()

	require.EqualValues(t, 3, d.Remaining())
	for _, want := range []int{1, 2, 3} {
		v, ok := d.Next()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
	_, ok := d.Next()
	require.False(t, ok)
	require.EqualValues(t, 0, d.Remaining())
	require.True(t, rx.IsEmpty())
}

// Concrete scenario: capacity 4, send 1 and 2, close the sender, a drain
// yields [1 2] and IsClosed reports true afterwards.
func TestDrainAfterSenderClose(t *testing.T) {
	tx, rx := New[int](4)
	defer rx.Close()
	fill(t, tx, 1, 2)
	tx.Close()

	d := rx.Drain(math.MaxUint64)
	defer d.Close()

	var got []int
	for {
		v, ok := d.Next()
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Equal(t, []int{1, 2}, got)
	require.True(t, d.IsClosed())
}

// max clamps the batch: a drain for two out of four yields two, a second
// drain picks up the rest, nothing repeated, nothing lost.
func TestDrainClampsToMax(t *testing.T) {
	tx, rx := New[int](8)
	defer tx.Close()
	defer rx.Close()
	fill(t, tx, 1, 2, 3, 4)

	d := rx.Drain(2)
	require.EqualValues(t, 2, d.Remaining())
	v, _ := d.Next()
	require.Equal(t, 1, v)
	v, _ = d.Next()
	require.Equal(t, 2, v)
	_, ok := d.Next()
	require.False(t, ok)
	d.Close()

	d = rx.Drain(math.MaxUint64)
	v, _ = d.Next()
	require.Equal(t, 3, v)
	v, _ = d.Next()
	require.Equal(t, 4, v)
	d.Close()
}

// Snapshot semantics: values sent after construction are invisible to the
// running drain even though capacity and budget both allow them.
func TestDrainSnapshot(t *testing.T) {
	tx, rx := New[int](8)
	defer tx.Close()
	defer rx.Close()
	fill(t, tx, 1)

	d := rx.Drain(math.MaxUint64)
	require.NoError(t, tx.TrySend(2))

	v, ok := d.Next()
	require.True(t, ok)
	require.Equal(t, 1, v)
	_, ok = d.Next()
	require.False(t, ok)
	d.Close()

	// the later value is there for the next batch
	v, ok, err := rx.TryRecv()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, v)
}

// An abandoned drain commits exactly what it consumed. The shared head moves
// only on Close, so the producer sees no freed capacity mid-batch.
func TestDrainEarlyClose(t *testing.T) {
	tx, rx := New[int](4)
	defer tx.Close()
	defer rx.Close()
	fill(t, tx, 1, 2, 3, 4)

	d := rx.Drain(math.MaxUint64)
	v, _ := d.Next()
	require.Equal(t, 1, v)

	// batched commit: capacity is not republished yet
	require.ErrorIs(t, tx.TrySend(5), ErrFull)

	d.Close()
	require.NoError(t, tx.TrySend(5))

	// Next after Close yields nothing even though items remain
	_, ok := d.Next()
	require.False(t, ok)

	d = rx.Drain(math.MaxUint64)
	defer d.Close()
	for _, want := range []int{2, 3, 4, 5} {
		v, ok := d.Next()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
}

// A drain that consumed nothing commits nothing: the head store is skipped
// and a follow-up receive still works.
func TestDrainEmptyCommit(t *testing.T) {
	tx, rx := New[int](4)
	defer tx.Close()
	defer rx.Close()

	d := rx.Drain(4)
	_, ok := d.Next()
	require.False(t, ok)
	d.Close()

	fill(t, tx, 7)
	v, ok, err := rx.TryRecv()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 7, v)
}

// Panic safety: a panic in the consuming loop with a deferred Close commits
// the items consumed before the panic; they are not re-read afterwards.
func TestDrainPanicDuringIteration(t *testing.T) {
	tx, rx := New[int](8)
	defer tx.Close()
	defer rx.Close()
	fill(t, tx, 1, 2, 3)

	func() {
		defer func() {
			require.NotNil(t, recover())
		}()

		d := rx.Drain(math.MaxUint64)
		defer d.Close()
		for {
			v, ok := d.Next()
			require.True(t, ok)
			if v == 2 {
				panic("consumer blew up")
			}
		}
	}()

	d := rx.Drain(math.MaxUint64)
	defer d.Close()
	v, ok := d.Next()
	require.True(t, ok)
	require.Equal(t, 3, v)
	_, ok = d.Next()
	require.False(t, ok)
}

// Stamped drain: each consumed value republishes its slot immediately, so
// the producer regains capacity mid-batch, unlike the cursor drain.
func TestStampedDrainRepublishesPerSlot(t *testing.T) {
	tx, rx := NewStamped[int](4)
	defer tx.Close()
	defer rx.Close()

	for i := 1; i <= 4; i++ {
		require.NoError(t, tx.TrySend(i))
	}
	require.ErrorIs(t, tx.TrySend(5), ErrFull)

	d := rx.Drain(math.MaxUint64)
	v, ok := d.Next()
	require.True(t, ok)
	require.Equal(t, 1, v)

	// slot 0 is already free for the next lap
	require.NoError(t, tx.TrySend(5))

	for _, want := range []int{2, 3, 4, 5} {
		v, ok := d.Next()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
	_, ok = d.Next()
	require.False(t, ok)
	d.Close()
}

// Stamped drain respects the budget and ends at the first empty slot.
func TestStampedDrainBudget(t *testing.T) {
	tx, rx := NewStamped[int](8)
	defer tx.Close()
	defer rx.Close()

	for i := 1; i <= 5; i++ {
		require.NoError(t, tx.TrySend(i))
	}

	d := rx.Drain(3)
	for _, want := range []int{1, 2, 3} {
		v, ok := d.Next()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
	_, ok := d.Next()
	require.False(t, ok)
	d.Close()

	d = rx.Drain(math.MaxUint64)
	require.EqualValues(t, 2, d.Remaining())
	d.Close()
}

// Randomized batching against a reference sequence: interleaved sends and
// randomly sized drains never lose, duplicate or reorder values.
func TestDrainRandomizedBatches(t *testing.T) {
	const total = 50_000
	tx, rx := New[int](1 << 8)

	go func() {
		defer tx.Close()
		for i := 0; i < total; i++ {
			if err := tx.SendSpin(i); err != nil {
				return
			}
		}
	}()

	next := 0
	for next < total {
		d := rx.Drain(uint64(1 + fastrand.Uint32n(64)))
		got := 0
		for {
			v, ok := d.Next()
			if !ok {
				break
			}
			if v != next {
				t.Fatalf("expected %d, got %d", next, v)
			}
			next++
			got++
		}
		d.Close()
		if got == 0 {
			runtime.Gosched()
		}
	}
	rx.Close()
}
