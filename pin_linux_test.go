//go:build linux

package spsc

import "golang.org/x/sys/unix"

// pinThread binds the calling OS thread to a single logical CPU so the
// latency benchmarks measure cross-core signalling instead of scheduler
// migration noise. Callers hold runtime.LockOSThread for the duration.
func pinThread(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
