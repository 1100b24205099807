package session

import "sync"

// dispatcher delivers updates to the observer in order, on its own
// goroutine, so the controller never calls out while holding its lock.
type dispatcher struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Update
	closed   bool
	observer Observer
}

func newDispatcher() *dispatcher {
	d := &dispatcher{observer: func(Update) {}}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *dispatcher) push(u Update) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, u)
	d.cond.Signal()
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		u := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()
		d.observer(u)
	}
}

// close stops the dispatcher once the queued updates have been delivered.
func (d *dispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cond.Broadcast()
}
