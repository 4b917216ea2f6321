package pool

import (
	"testing"
	"time"
)

func TestFifoMutexServesWaitersInArrivalOrder(t *testing.T) {
	m := newFifoMutex()
	m.Lock(nil) // hold the lock so subsequent Lock calls queue up

	const n = 5
	arrived := make(chan int, n)
	order := make(chan int, n)

	for i := 0; i < n; i++ {
		i := i
		go func() {
			arrived <- i
			m.Lock(nil)
			order <- i
			m.Unlock()
		}()
		<-arrived
		time.Sleep(10 * time.Millisecond) // let this goroutine block on Lock before starting the next
	}

	m.Unlock() // release the initial hold, letting waiters proceed

	got := make([]int, n)
	for i := 0; i < n; i++ {
		got[i] = <-order
	}

	for i, v := range got {
		if v != i {
			t.Errorf("expected waiter %d to acquire in position %d, got order %v", i, i, got)
			break
		}
	}
}

func TestFifoMutexLockReturnsFalseOnDone(t *testing.T) {
	m := newFifoMutex()
	m.Lock(nil) // held

	done := make(chan struct{})
	close(done)

	if m.Lock(done) {
		t.Error("expected Lock to return false once done is closed")
	}
}

func TestFifoMutexTryLock(t *testing.T) {
	m := newFifoMutex()

	if !m.TryLock() {
		t.Fatal("expected TryLock to succeed on a free mutex")
	}
	if m.TryLock() {
		t.Error("expected TryLock to fail while already held")
	}

	m.Unlock()
	if !m.TryLock() {
		t.Error("expected TryLock to succeed again once unlocked")
	}
}

func TestFifoMutexUnlockWakesWaiter(t *testing.T) {
	m := newFifoMutex()
	if !m.Lock(nil) {
		t.Fatal("expected initial Lock to succeed immediately")
	}

	acquired := make(chan struct{})
	go func() {
		m.Lock(nil)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock should not succeed before Unlock")
	case <-time.After(20 * time.Millisecond):
	}

	m.Unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock should succeed after Unlock")
	}
}
