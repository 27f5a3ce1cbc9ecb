package node

import (
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer drives the gossip rounds of a node. It ticks once per armed
// duration and must be re-armed with Reset after every tick.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the heartbeatTimer
	stopCh       chan struct{}      //receives instruction to stop the heartbeatTimer
	shutdownCh   chan struct{}      //receives instruction to exit Run loop
}

// NewControlTimer ...
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewClockControlTimer returns a ControlTimer that fires exactly after the
// armed duration on clk.
func NewClockControlTimer(clk clock.Clock) *ControlTimer {
	return NewControlTimer(func(d time.Duration) <-chan time.Time {
		if d == 0 {
			return nil
		}
		return clk.After(d)
	})
}

// NewRandomControlTimer returns a ControlTimer that fires after the armed
// duration plus a random extra of up to the same duration, so that nodes
// started together drift apart.
func NewRandomControlTimer(clk clock.Clock) *ControlTimer {
	randomTimeout := func(min time.Duration) <-chan time.Time {
		if min == 0 {
			return nil
		}
		extra := (time.Duration(rand.Int63()) % min)
		return clk.After(min + extra)
	}
	return NewControlTimer(randomTimeout)
}

// Run arms the timer with init and loops until Shutdown.
func (c *ControlTimer) Run(init time.Duration) {
	timer := c.timerFactory(init)
	for {
		select {
		case <-timer:
			timer = nil
			select {
			case c.tickCh <- struct{}{}:
			case <-c.shutdownCh:
				return
			}
		case t := <-c.resetCh:
			timer = c.timerFactory(t)
		case <-c.stopCh:
			timer = nil
		case <-c.shutdownCh:
			return
		}
	}
}

// Ticks returns the channel on which the timer signals.
func (c *ControlTimer) Ticks() <-chan struct{} {
	return c.tickCh
}

// Reset re-arms the timer. It returns immediately if the timer was shut
// down.
func (c *ControlTimer) Reset(d time.Duration) {
	select {
	case c.resetCh <- d:
	case <-c.shutdownCh:
	}
}

// Stop disarms the timer without terminating it.
func (c *ControlTimer) Stop() {
	select {
	case c.stopCh <- struct{}{}:
	case <-c.shutdownCh:
	}
}

// Shutdown terminates the Run loop.
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
