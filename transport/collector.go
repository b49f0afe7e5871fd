// Idle-channel collector: periodically tears down transport endpoints that
// have gone quiet, so a tracked endpoint left connected to a peer that disconnected
// without a clean teardown (a crashed Scene, a killed World) does not pin
// an mmap/socket open forever.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"container/heap"
	"io"
	"sync"
	"time"

	"github.com/paperManu/splash/internal/xdebug"
	"github.com/paperManu/splash/internal/xlog"
)

const (
	tickUnit            = time.Second
	defaultIdleTeardown = 30 * time.Second
)

// managedChannel is one entry the Collector is watching: a closer (the
// Output or Input whose peer went idle) plus its position in the min-heap.
type managedChannel struct {
	name   string
	closer io.Closer
	ticks  int // remaining ticks before teardown; reset by Touch
	idle   int // tick count a fresh Touch resets to
	index  int
}

type ctrl struct {
	ch  *managedChannel
	add bool
}

// Collector is a housekeeping loop: one ticker, one min-heap ordered by
// remaining idle ticks; Touch resets a channel's countdown, so a channel
// touched often enough never reaches the front of the heap. Only channels
// registered with Track are watched; link.Link registers none.
type Collector struct {
	mu     sync.Mutex
	byName map[string]*managedChannel
	heap   []*managedChannel
	ctrlCh chan ctrl
	quit   chan struct{}
}

// NewCollector starts the collector's background loop; callers must Stop it
// on shutdown.
func NewCollector() *Collector {
	c := &Collector{
		byName: make(map[string]*managedChannel),
		ctrlCh: make(chan ctrl, 64),
		quit:   make(chan struct{}),
	}
	heap.Init(c)
	go c.run()
	return c
}

// Track registers closer under name with the default idle timeout; it is
// closed automatically if Touch(name) is not called again within
// defaultIdleTeardown.
func (c *Collector) Track(name string, closer io.Closer) {
	ticks := int(defaultIdleTeardown / tickUnit)
	mc := &managedChannel{name: name, closer: closer, ticks: ticks, idle: ticks}
	c.ctrlCh <- ctrl{ch: mc, add: true}
}

// Touch resets name's idle countdown; call on every successful send or
// receive on the channel it names.
func (c *Collector) Touch(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc, ok := c.byName[name]
	if !ok {
		return
	}
	mc.ticks = mc.idle
	heap.Fix(c, mc.index)
}

// Untrack stops watching name without closing it (used when a Link tears a
// channel down itself and wants to avoid a redundant double-close).
func (c *Collector) Untrack(name string) {
	c.mu.Lock()
	mc, ok := c.byName[name]
	c.mu.Unlock()
	if ok {
		c.ctrlCh <- ctrl{ch: mc, add: false}
	}
}

func (c *Collector) Stop() {
	close(c.quit)
}

func (c *Collector) run() {
	ticker := time.NewTicker(tickUnit)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.tick()
		case ctl := <-c.ctrlCh:
			c.mu.Lock()
			_, exists := c.byName[ctl.ch.name]
			if ctl.add {
				xdebug.AssertMsg(!exists, "collector: duplicate track for "+ctl.ch.name)
				c.byName[ctl.ch.name] = ctl.ch
				heap.Push(c, ctl.ch)
			} else if exists {
				heap.Remove(c, c.byName[ctl.ch.name].index)
				delete(c.byName, ctl.ch.name)
			}
			c.mu.Unlock()
		case <-c.quit:
			c.mu.Lock()
			for _, mc := range c.byName {
				mc.closer.Close()
			}
			c.byName = nil
			c.mu.Unlock()
			return
		}
	}
}

func (c *Collector) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, mc := range c.byName {
		mc.ticks--
		if mc.ticks > 0 {
			heap.Fix(c, mc.index)
			continue
		}
		xlog.Warningf("transport: channel %q idle for %s, tearing down", name, defaultIdleTeardown)
		mc.closer.Close()
		heap.Remove(c, mc.index)
		delete(c.byName, name)
	}
}

// container/heap.Interface, ordered by soonest-to-expire first.
func (c *Collector) Len() int { return len(c.heap) }
func (c *Collector) Less(i, j int) bool { return c.heap[i].ticks < c.heap[j].ticks }
func (c *Collector) Swap(i, j int) {
	c.heap[i], c.heap[j] = c.heap[j], c.heap[i]
	c.heap[i].index = i
	c.heap[j].index = j
}
func (c *Collector) Push(x interface{}) {
	mc := x.(*managedChannel)
	mc.index = len(c.heap)
	c.heap = append(c.heap, mc)
}
func (c *Collector) Pop() interface{} {
	old := c.heap
	n := len(old)
	mc := old[n-1]
	old[n-1] = nil
	c.heap = old[:n-1]
	return mc
}
