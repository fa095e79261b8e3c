package mode

import (
	"sync"
	"time"

	"voxkey/hotkey"
)

// Controller drives a Machine from hotkey presses and a timer on its own
// goroutine. It is the only writer of the listening state.
type Controller struct {
	m     *Machine
	out   chan Transition
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
	mu    sync.Mutex
	state State
	now   func() time.Time
}

func NewController(hk hotkey.Hotkey, m *Machine) *Controller {
	c := &Controller{
		m:     m,
		out:   make(chan Transition, 8),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		state: m.State(),
		now:   time.Now,
	}
	go c.run(hk)
	return c
}

// Transitions delivers every committed transition in order.
func (c *Controller) Transitions() <-chan Transition { return c.out }

// State returns a snapshot of the listening state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Stop() {
	c.once.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Controller) run(hk hotkey.Hotkey) {
	defer close(c.done)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	arm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if d, ok := c.m.Deadline(); ok {
			timer.Reset(max(d.Sub(c.now()), 0))
		}
	}

	for {
		select {
		case <-c.stop:
			return
		case <-hk.Keydown():
			tr, ok := c.m.Press(c.now())
			if ok && !c.emit(tr) {
				return
			}
			arm()
		case <-timer.C:
			tr, ok := c.m.Expire(c.now())
			if ok && !c.emit(tr) {
				return
			}
			arm()
		}
	}
}

func (c *Controller) emit(tr Transition) bool {
	c.mu.Lock()
	c.state = tr.To
	c.mu.Unlock()
	select {
	case c.out <- tr:
		return true
	case <-c.stop:
		return false
	}
}
