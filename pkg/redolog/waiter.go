package redolog

import "context"

// Waiter resolves once the record it was handed back for has been
// durably flushed (and everything pushed before it). A caller that
// wants to know an update has survived a crash awaits the Waiter Push
// returned for that update rather than forcing a flush itself.
type Waiter struct {
	done chan struct{}
	err  error
}

func newWaiter() *Waiter {
	return &Waiter{done: make(chan struct{})}
}

func (w *Waiter) resolve(err error) {
	w.err = err
	close(w.done)
}

// Wait blocks until w resolves or ctx is done, whichever comes first.
func (w *Waiter) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
