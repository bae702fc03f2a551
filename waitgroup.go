package obi

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WaitGroup tracks outstanding asynchronous operations started by native
// functions. Their callbacks are queued and run one at a time on the
// goroutine calling Wait, so evaluator state is never touched concurrently.
type WaitGroup struct {
	mutex   sync.Mutex
	pending int
	queue   []func() error
	wake    chan struct{}
	timers  map[int]*time.Timer
	nextID  int
	logger  *slog.Logger
}

func NewWaitGroup(logger *slog.Logger) *WaitGroup {
	return &WaitGroup{
		wake:   make(chan struct{}, 1),
		timers: map[int]*time.Timer{},
		logger: logger,
	}
}

func (self *WaitGroup) signal() {
	select {
	case self.wake <- struct{}{}:
	default:
	}
}

// Add records n operations that have started and not yet finished.
func (self *WaitGroup) Add(n int) {
	self.mutex.Lock()
	self.pending += n
	self.mutex.Unlock()
}

// Done marks one operation finished. Safe to call from any goroutine.
func (self *WaitGroup) Done() {
	self.mutex.Lock()
	self.pending -= 1
	self.mutex.Unlock()
	self.signal()
}

func (self *WaitGroup) Pending() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.pending
}

// Post queues a callback to run on the waiting goroutine.
func (self *WaitGroup) Post(fn func() error) {
	self.mutex.Lock()
	self.queue = append(self.queue, fn)
	self.mutex.Unlock()
	self.signal()
}

// Finish queues a callback and marks one operation finished in a single
// step, so Wait cannot observe the count reaching zero before the callback
// is visible.
func (self *WaitGroup) Finish(fn func() error) {
	self.mutex.Lock()
	self.queue = append(self.queue, fn)
	self.pending -= 1
	self.mutex.Unlock()
	self.signal()
}

// Defer schedules fn to be queued after d and returns an id for Cancel.
func (self *WaitGroup) Defer(d time.Duration, fn func() error) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.nextID += 1
	id := self.nextID
	self.pending += 1
	self.timers[id] = time.AfterFunc(d, func() {
		self.mutex.Lock()
		if _, ok := self.timers[id]; !ok {
			self.mutex.Unlock()
			return
		}
		delete(self.timers, id)
		self.queue = append(self.queue, fn)
		self.pending -= 1
		self.mutex.Unlock()
		self.signal()
		self.logger.Debug("deferred callback fired", "id", id)
	})
	self.logger.Debug("deferred callback scheduled", "id", id, "delay", d)
	return id
}

// Cancel stops a deferred callback that has not fired yet. It reports
// whether anything was cancelled.
func (self *WaitGroup) Cancel(id int) bool {
	self.mutex.Lock()
	timer, ok := self.timers[id]
	if !ok {
		self.mutex.Unlock()
		return false
	}
	delete(self.timers, id)
	timer.Stop()
	self.pending -= 1
	self.mutex.Unlock()
	self.signal()
	self.logger.Debug("deferred callback cancelled", "id", id)
	return true
}

// Wait runs queued callbacks until no operation is outstanding. It returns
// the first callback error, or the context error if ctx ends first.
func (self *WaitGroup) Wait(ctx context.Context) error {
	for {
		self.mutex.Lock()
		if len(self.queue) > 0 {
			fn := self.queue[0]
			self.queue = self.queue[1:]
			self.mutex.Unlock()
			if err := fn(); err != nil {
				return err
			}
			continue
		}
		if self.pending <= 0 {
			self.mutex.Unlock()
			return nil
		}
		pending := self.pending
		self.mutex.Unlock()

		self.logger.Debug("waiting for asynchronous operations", "pending", pending)
		select {
		case <-self.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
