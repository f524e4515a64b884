package event

import (
	"testing"
	"time"
)

// ReceiveWithTimeout returns the next value from ch. It fails the test when
// ch closes or nothing arrives within timeout.
func ReceiveWithTimeout[T any](t testing.TB, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatal("channel closed while waiting for a value")
		}
		return value
	case <-timer.C:
		t.Fatalf("nothing received within %s", timeout)
	}
	var zero T
	return zero
}

// ExpectNoEvent fails the test if ch yields a value or closes within wait.
func ExpectNoEvent[T any](t testing.TB, ch <-chan T, wait time.Duration) {
	t.Helper()
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatal("channel closed unexpectedly")
		}
		t.Fatalf("unexpected value %#v", value)
	case <-timer.C:
	}
}

// ExpectClosed waits for ch to close, discarding anything still buffered.
func ExpectClosed[T any](t testing.TB, ch <-chan T, timeout time.Duration) {
	t.Helper()
	CollectUntilClosed(t, ch, timeout)
}

// CollectUntilClosed returns every value ch yields before it closes.
func CollectUntilClosed[T any](t testing.TB, ch <-chan T, timeout time.Duration) []T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var values []T
	for {
		select {
		case value, ok := <-ch:
			if !ok {
				return values
			}
			values = append(values, value)
		case <-timer.C:
			t.Fatalf("channel still open after %s", timeout)
			return values
		}
	}
}
