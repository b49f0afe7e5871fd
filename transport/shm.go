package transport

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edsrzf/mmap-go"

	"github.com/paperManu/splash/internal/xlog"
	"github.com/paperManu/splash/sobj"
)

// Shared-memory ring buffer layout (one per endpoint file):
//
//	offset 0:  uint64 writeSeq      (little-endian, bumped by the writer after each slot is filled)
//	offset 8:  uint64 readerAttached (0 or 1, set by the follower on ConnectTo)
//	offset 16: shmRingSlots slots, each: uint32 length, then slotPayload bytes
const (
	shmHeaderSize  = 16
	shmSlotPayload = 1 << 20 // 1MiB, large enough for a typical serialized frame
	shmSlotHeader  = 4
	shmSlotSize    = shmSlotHeader + shmSlotPayload
	shmRingSlots   = 64
	shmFileSize    = shmHeaderSize + shmRingSlots*shmSlotSize
)

func shmDir() string { return os.TempDir() }

func openShmFile(path string, create bool) (*os.File, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}
	if create {
		if err := f.Truncate(shmFileSize); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

type shmEndpoint struct {
	f   *os.File
	m   mmap.MMap
	seq uint64 // writer's local mirror of the last slot index written
}

func newShmEndpoint(path string, create bool) (*shmEndpoint, error) {
	f, err := openShmFile(path, create)
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &shmEndpoint{f: f, m: m}, nil
}

func (e *shmEndpoint) close() {
	e.m.Unmap()
	e.f.Close()
}

func (e *shmEndpoint) writeSeq() uint64 {
	return binary.LittleEndian.Uint64(e.m[0:8])
}

func (e *shmEndpoint) setWriteSeq(v uint64) {
	binary.LittleEndian.PutUint64(e.m[0:8], v)
}

func (e *shmEndpoint) readerAttached() bool {
	return binary.LittleEndian.Uint64(e.m[8:16]) != 0
}

func (e *shmEndpoint) setReaderAttached(v bool) {
	var n uint64
	if v {
		n = 1
	}
	binary.LittleEndian.PutUint64(e.m[8:16], n)
}

// pushSlot writes data into the ring slot at index seq%shmRingSlots and
// bumps the published writeSeq so a follower's poll loop picks it up. Data
// larger than shmSlotPayload is dropped with a warning (a known bound on
// this transport, not a spec requirement).
func (e *shmEndpoint) pushSlot(data []byte) bool {
	if len(data) > shmSlotPayload {
		xlog.Warningf("transport: shm frame of %d bytes exceeds slot size %d, dropped", len(data), shmSlotPayload)
		return false
	}
	next := e.writeSeq() + 1
	off := shmHeaderSize + int(next%shmRingSlots)*shmSlotSize
	binary.LittleEndian.PutUint32(e.m[off:off+4], uint32(len(data)))
	copy(e.m[off+shmSlotHeader:off+shmSlotHeader+len(data)], data)
	e.setWriteSeq(next)
	return true
}

// readSlot copies out the slot at index seq, returning false if its length
// marker reads zero (not yet written).
func (e *shmEndpoint) readSlot(seq uint64) ([]byte, bool) {
	off := shmHeaderSize + int(seq%shmRingSlots)*shmSlotSize
	n := binary.LittleEndian.Uint32(e.m[off : off+4])
	if n == 0 {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, e.m[off+shmSlotHeader:off+shmSlotHeader+int(n)])
	return out, true
}

type shmOutput struct {
	cfg Config

	mu       sync.Mutex
	msg, buf *shmEndpoint
	peers    map[string]bool

	pending int32 // outstanding buffer sends not yet observed drained
}

func newShmOutput(cfg Config) *shmOutput {
	return &shmOutput{cfg: cfg, peers: make(map[string]bool)}
}

func (o *shmOutput) ConnectTo(peerName string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.msg == nil {
		msgPath := filepath.Join(shmDir(), msgEndpointName(o.cfg.Prefix, o.cfg.Name))
		bufPath := filepath.Join(shmDir(), bufEndpointName(o.cfg.Prefix, o.cfg.Name))
		m, err := newShmEndpoint(msgPath, true)
		if err != nil {
			xlog.Errorf("transport: shm output create %s: %v", msgPath, err)
			return false
		}
		b, err := newShmEndpoint(bufPath, true)
		if err != nil {
			xlog.Errorf("transport: shm output create %s: %v", bufPath, err)
			m.close()
			return false
		}
		o.msg, o.buf = m, b
	}
	o.peers[peerName] = true

	if peerName == "world" {
		deadline := time.Now().Add(connectTimeout)
		for time.Now().Before(deadline) {
			if o.msg.readerAttached() {
				return true
			}
			time.Sleep(10 * time.Millisecond)
		}
		xlog.Warningf("transport: shm connectTo(world) timed out after %s", connectTimeout)
		return false
	}
	return true
}

func (o *shmOutput) DisconnectFrom(peerName string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.peers, peerName)
	return true
}

func (o *shmOutput) SendMessage(data []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.msg == nil || len(o.peers) == 0 {
		return false
	}
	return o.msg.pushSlot(data)
}

func (o *shmOutput) SendBuffer(obj *sobj.Serialized) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buf == nil || len(o.peers) == 0 {
		return false
	}
	data := obj.GrabData()
	atomic.AddInt32(&o.pending, 1)
	ok := o.buf.pushSlot(data)
	atomic.AddInt32(&o.pending, -1)
	return ok
}

// WaitForBufferSending: shm sends are synchronous copies into the mmapped
// ring (no async deque to drain), so this only waits out any send() call
// that is concurrently in flight.
func (o *shmOutput) WaitForBufferSending(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for atomic.LoadInt32(&o.pending) > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

func (o *shmOutput) IsReady() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.msg != nil
}

func (o *shmOutput) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.msg != nil {
		o.msg.close()
		o.buf.close()
		o.msg, o.buf = nil, nil
	}
}

type shmInput struct {
	cfg       Config
	onMessage MessageHandler
	onBuffer  BufferHandler

	mu    sync.Mutex
	conns map[string]*shmConn
}

type shmConn struct {
	msg, buf *shmEndpoint
	quit     chan struct{}
}

func newShmInput(cfg Config, onMessage MessageHandler, onBuffer BufferHandler) *shmInput {
	return &shmInput{cfg: cfg, onMessage: onMessage, onBuffer: onBuffer, conns: make(map[string]*shmConn)}
}

// ConnectTo attaches as a follower to peerName's writer endpoints, waiting
// for the files to exist (the writer may not have created them yet) and
// launching one poll goroutine per direction.
func (i *shmInput) ConnectTo(peerName string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.conns[peerName]; ok {
		return true
	}
	msgPath := filepath.Join(shmDir(), msgEndpointName(i.cfg.Prefix, peerName))
	bufPath := filepath.Join(shmDir(), bufEndpointName(i.cfg.Prefix, peerName))

	deadline := time.Now().Add(connectTimeout)
	for {
		if _, err := os.Stat(msgPath); err == nil {
			if _, err := os.Stat(bufPath); err == nil {
				break
			}
		}
		if time.Now().After(deadline) {
			xlog.Warningf("transport: shm connectTo(%s) timed out waiting for writer endpoints", peerName)
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}

	m, err := newShmEndpoint(msgPath, false)
	if err != nil {
		xlog.Errorf("transport: shm input attach %s: %v", msgPath, err)
		return false
	}
	b, err := newShmEndpoint(bufPath, false)
	if err != nil {
		xlog.Errorf("transport: shm input attach %s: %v", bufPath, err)
		m.close()
		return false
	}
	m.setReaderAttached(true)

	conn := &shmConn{msg: m, buf: b, quit: make(chan struct{})}
	i.conns[peerName] = conn
	go i.pollMessages(conn)
	go i.pollBuffers(conn)
	return true
}

func (i *shmInput) pollMessages(conn *shmConn) {
	var last uint64
	for {
		select {
		case <-conn.quit:
			return
		default:
		}
		cur := conn.msg.writeSeq()
		for last < cur {
			last++
			if data, ok := conn.msg.readSlot(last); ok && i.onMessage != nil {
				i.onMessage(data)
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (i *shmInput) pollBuffers(conn *shmConn) {
	var last uint64
	for {
		select {
		case <-conn.quit:
			return
		default:
		}
		cur := conn.buf.writeSeq()
		for last < cur {
			last++
			if data, ok := conn.buf.readSlot(last); ok && i.onBuffer != nil {
				i.onBuffer(sobj.NewFromBytes(data))
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (i *shmInput) DisconnectFrom(peerName string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	conn, ok := i.conns[peerName]
	if !ok {
		return false
	}
	close(conn.quit)
	conn.msg.close()
	conn.buf.close()
	delete(i.conns, peerName)
	return true
}

func (i *shmInput) Close() {
	i.mu.Lock()
	peers := make([]string, 0, len(i.conns))
	for p := range i.conns {
		peers = append(peers, p)
	}
	i.mu.Unlock()
	for _, p := range peers {
		i.DisconnectFrom(p)
	}
}
