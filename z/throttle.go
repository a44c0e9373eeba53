package z

import (
	"sync"
)

type (
	// Throttle bounds how many workers run at the same time and remembers the first error any of them returned.
	// Once a worker has failed no new worker is started.
	Throttle struct {
		slots     chan struct{}
		waitGroup sync.WaitGroup

		lock sync.Mutex
		err  error
	}
)

// NewThrottle creates a throttle that lets up to max workers run at once.
func NewThrottle(max int) *Throttle {
	AssertTruef(max > 0, "throttle needs at least one slot, got %d", max)
	return &Throttle{
		slots: make(chan struct{}, max),
	}
}

// Err returns the first error a worker passed to Done, or nil.
func (t *Throttle) Err() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.err
}

// Do claims a slot for a worker, blocking while every slot is taken. Every successful Do must be paired with a Done.
// If a worker has already failed the slot is not claimed and that failure is returned.
func (t *Throttle) Do() error {
	if err := t.Err(); err != nil {
		return err
	}

	t.slots <- struct{}{}

	// A worker may have failed while this one was waiting for a slot.
	if err := t.Err(); err != nil {
		<-t.slots
		return err
	}

	t.waitGroup.Add(1)
	return nil
}

// Go claims a slot and runs fn on its own goroutine, handing its result to Done.
func (t *Throttle) Go(fn func() error) error {
	if err := t.Do(); err != nil {
		return err
	}

	go func() {
		t.Done(fn())
	}()

	return nil
}

// Done releases the slot claimed by Do. A non-nil err is kept if it is the first one reported.
func (t *Throttle) Done(err error) {
	if err != nil {
		t.lock.Lock()
		if t.err == nil {
			t.err = err
		}
		t.lock.Unlock()
	}

	select {
	case <-t.slots:
	default:
		panic("throttle: Done called without a matching Do")
	}

	t.waitGroup.Done()
}

// Finish waits for every started worker and returns the first error reported by any of them. It can be called more
// than once.
func (t *Throttle) Finish() error {
	t.waitGroup.Wait()
	return t.Err()
}
