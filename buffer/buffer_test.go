package buffer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paperManu/splash/graph"
	"github.com/paperManu/splash/sobj"
)

type fakeCodec struct {
	mu      sync.Mutex
	payload []byte
	fail    bool
}

func (c *fakeCodec) Serialize(name string) *sobj.Serialized {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sobj.NewFromRange(c.payload)
}

func (c *fakeCodec) Deserialize(obj *sobj.Serialized) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("forced failure")
	}
	c.payload = obj.GrabData()
	return nil
}

func (c *fakeCodec) get() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.payload))
	copy(out, c.payload)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition never became true")
}

func TestSetSerializedObjectDeserializesAsynchronously(t *testing.T) {
	codec := &fakeCodec{}
	o := New("img", "image", graph.CategoryImage, codec)
	defer o.Stop()

	o.SetSerializedObject(sobj.NewFromBytes([]byte{1, 2, 3}))
	waitFor(t, func() bool { return !o.HasSerializedObjectWaiting() })

	got := codec.get()
	if len(got) != 3 || got[0] != 1 {
		t.Fatalf("payload = %v, want [1 2 3]", got)
	}
	if o.Timestamp() == 0 {
		t.Fatalf("timestamp should be set after a successful deserialize")
	}
}

func TestSetSerializedObjectDropsWhileInProgress(t *testing.T) {
	codec := &fakeCodec{}
	o := New("img", "image", graph.CategoryImage, codec)
	defer o.Stop()

	// Claim the slot directly to simulate an in-flight deserialization,
	// without letting the worker drain it yet.
	if !o.inProgress.CompareAndSwap(false, true) {
		t.Fatalf("failed to claim in-progress flag")
	}
	o.SetSerializedObject(sobj.NewFromBytes([]byte{9, 9, 9}))
	if got := codec.get(); len(got) != 0 {
		t.Fatalf("second buffer should have been dropped, got %v", got)
	}
	o.inProgress.Store(false)
}

func TestDeserializeFailureKeepsPreviousPayload(t *testing.T) {
	codec := &fakeCodec{payload: []byte{1, 2, 3}}
	o := New("img", "image", graph.CategoryImage, codec)
	defer o.Stop()

	codec.mu.Lock()
	codec.fail = true
	codec.mu.Unlock()

	o.SetSerializedObject(sobj.NewFromBytes([]byte{9, 9, 9}))
	waitFor(t, func() bool { return !o.HasSerializedObjectWaiting() })

	got := codec.get()
	if len(got) != 3 || got[0] != 1 {
		t.Fatalf("payload changed after a failed deserialize: %v", got)
	}
}

func TestSerializeDelegatesToCodec(t *testing.T) {
	codec := &fakeCodec{payload: []byte{5, 6, 7}}
	o := New("img", "image", graph.CategoryImage, codec)
	defer o.Stop()

	s := o.Serialize()
	if s.Size() != 3 {
		t.Fatalf("Serialize() size = %d, want 3", s.Size())
	}
}
