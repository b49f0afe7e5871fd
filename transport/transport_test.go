package transport

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/paperManu/splash/sobj"
)

func uniquePrefix(t *testing.T) string {
	return fmt.Sprintf("test%d", time.Now().UnixNano()%1_000_000_000)
}

// TestSharedMemoryBufferRoundTrip is spec scenario S3: send a buffer over
// the shared-memory transport and observe it arrive intact.
func TestSharedMemoryBufferRoundTrip(t *testing.T) {
	prefix := uniquePrefix(t)
	name := "A"

	var (
		mu       sync.Mutex
		received []byte
		got      bool
	)
	in := NewInput(Config{Kind: KindSharedMemory, Prefix: prefix, Name: "B"}, nil, func(obj *sobj.Serialized) {
		mu.Lock()
		received = obj.GrabData()
		got = true
		mu.Unlock()
	})

	out := NewOutput(Config{Kind: KindSharedMemory, Prefix: prefix, Name: name})
	if !out.ConnectTo("scene") {
		t.Fatalf("ConnectTo(scene) should return immediately true for a non-world peer")
	}
	if !in.ConnectTo(name) {
		t.Fatalf("input ConnectTo(%s) failed", name)
	}

	if !out.SendBuffer(sobj.NewFromBytes([]byte{0x01, 0x02, 0x03})) {
		t.Fatalf("SendBuffer failed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := got
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if !got {
		t.Fatalf("buffer never arrived")
	}
	if len(received) != 3 || received[0] != 1 || received[1] != 2 || received[2] != 3 {
		t.Fatalf("received %v, want [1 2 3]", received)
	}

	out.Close()
	in.Close()
}

// TestSharedMemoryWorldConnectWaitsForFollower is spec §4.4: connectTo
// ("world") blocks until the follower attaches, up to a fixed timeout.
func TestSharedMemoryWorldConnectWaitsForFollower(t *testing.T) {
	prefix := uniquePrefix(t)
	out := NewOutput(Config{Kind: KindSharedMemory, Prefix: prefix, Name: "world-writer"})

	done := make(chan bool, 1)
	go func() { done <- out.ConnectTo("world") }()

	time.Sleep(20 * time.Millisecond) // give ConnectTo time to start waiting
	in := NewInput(Config{Kind: KindSharedMemory, Prefix: prefix, Name: "follower"}, nil, nil)
	if !in.ConnectTo("world-writer") {
		t.Fatalf("follower ConnectTo failed")
	}

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("world ConnectTo reported failure after follower attached")
		}
	case <-time.After(connectTimeout + time.Second):
		t.Fatalf("world ConnectTo never returned after follower attached")
	}

	out.Close()
	in.Close()
}

func TestShmEndpointRingBufferWraps(t *testing.T) {
	prefix := uniquePrefix(t)
	e, err := newShmEndpoint(shmDir()+"/splash_"+prefix+"_msg_ring", true)
	if err != nil {
		t.Fatalf("newShmEndpoint: %v", err)
	}
	defer e.close()

	for i := 0; i < shmRingSlots*2; i++ {
		if !e.pushSlot([]byte{byte(i)}) {
			t.Fatalf("pushSlot(%d) failed", i)
		}
	}
	data, ok := e.readSlot(e.writeSeq())
	if !ok || len(data) != 1 || data[0] != byte(shmRingSlots*2-1) {
		t.Fatalf("readSlot at latest seq = %v, %v", data, ok)
	}
}

func TestCollectorReapsIdleChannel(t *testing.T) {
	c := NewCollector()
	defer c.Stop()

	closed := make(chan struct{}, 1)
	c.Track("peer-a", closerFunc(func() error { close(closed); return nil }))

	// force an immediate reap instead of waiting defaultIdleTeardown out
	c.mu.Lock()
	mc := c.byName["peer-a"]
	mc.ticks = 1
	c.mu.Unlock()

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatalf("collector did not reap idle channel")
	}
}

func TestCollectorTouchResetsCountdown(t *testing.T) {
	c := NewCollector()
	defer c.Stop()

	closed := make(chan struct{}, 1)
	c.Track("peer-b", closerFunc(func() error { close(closed); return nil }))
	c.mu.Lock()
	c.byName["peer-b"].idle = 5
	c.byName["peer-b"].ticks = 2
	c.mu.Unlock()

	time.Sleep(1200 * time.Millisecond)
	c.Touch("peer-b")

	select {
	case <-closed:
		t.Fatalf("collector reaped a channel right after Touch")
	case <-time.After(1500 * time.Millisecond):
	}
	c.Untrack("peer-b")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
