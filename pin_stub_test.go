//go:build !linux

package spsc

import "errors"

// pinThread is a stub for platforms without thread affinity support; the
// pinned benchmarks still run, just unpinned.
func pinThread(cpu int) error {
	return errors.New("spsc: thread pinning not supported on this platform")
}
