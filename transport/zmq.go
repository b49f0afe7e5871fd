package transport

import (
	"context"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/paperManu/splash/internal/xlog"
	"github.com/paperManu/splash/sobj"
)

// Messaging-socket transport: two PUB/SUB socket pairs per Channel (one for
// messages, one for buffers), high-water-mark 1000/1 respectively, endpoints
// named "ipc:///tmp/splash_<prefix>_{msg,buf}_<name>" (spec §4.4, §6.3).
const (
	msgHighWaterMark = 1000
	bufHighWaterMark = 1
)

func zmqEndpoint(kind string, prefix, name string) string {
	if kind == "msg" {
		return "ipc:///tmp/" + msgEndpointName(prefix, name)
	}
	return "ipc:///tmp/" + bufEndpointName(prefix, name)
}

type zmqOutput struct {
	cfg Config
	ctx context.Context

	mu       sync.Mutex
	msg, buf zmq4.Socket
	peers    map[string]bool

	pendingMu sync.Mutex
	pending   []struct{} // local deque of outbound buffers not yet confirmed sent
}

func newZmqOutput(cfg Config) *zmqOutput {
	return &zmqOutput{cfg: cfg, ctx: context.Background(), peers: make(map[string]bool)}
}

func (o *zmqOutput) ensureSockets() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.msg != nil {
		return true
	}
	msg := zmq4.NewPub(o.ctx)
	if err := msg.SetOption(zmq4.OptionHWM, msgHighWaterMark); err != nil {
		xlog.Warningf("transport: zmq set msg HWM: %v", err)
	}
	if err := msg.Listen(zmqEndpoint("msg", o.cfg.Prefix, o.cfg.Name)); err != nil {
		xlog.Errorf("transport: zmq msg listen: %v", err)
		return false
	}
	buf := zmq4.NewPub(o.ctx)
	if err := buf.SetOption(zmq4.OptionHWM, bufHighWaterMark); err != nil {
		xlog.Warningf("transport: zmq set buf HWM: %v", err)
	}
	if err := buf.Listen(zmqEndpoint("buf", o.cfg.Prefix, o.cfg.Name)); err != nil {
		xlog.Errorf("transport: zmq buf listen: %v", err)
		msg.Close()
		return false
	}
	o.msg, o.buf = msg, buf
	return true
}

// ConnectTo on the messaging-socket output is a PUB socket: the bind already
// happened in ensureSockets, so connecting a peer is bookkeeping only — it
// is the SUB side (zmqInput) that dials in (spec §4.4: "for messaging-socket
// transport the writer does [connect]" refers to dial direction, not PUB
// bind, which happens once per Channel regardless of peer count).
func (o *zmqOutput) ConnectTo(peerName string) bool {
	if !o.ensureSockets() {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.peers[peerName] = true
	return true
}

func (o *zmqOutput) DisconnectFrom(peerName string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.peers, peerName)
	return true
}

func (o *zmqOutput) SendMessage(data []byte) bool {
	o.mu.Lock()
	msg := o.msg
	o.mu.Unlock()
	if msg == nil {
		return false
	}
	if err := msg.Send(zmq4.NewMsg(data)); err != nil {
		xlog.Warningf("transport: zmq send message: %v", err)
		return false
	}
	return true
}

func (o *zmqOutput) SendBuffer(obj *sobj.Serialized) bool {
	o.mu.Lock()
	buf := o.buf
	o.mu.Unlock()
	if buf == nil {
		return false
	}
	o.pendingMu.Lock()
	o.pending = append(o.pending, struct{}{})
	o.pendingMu.Unlock()

	data := obj.GrabData()
	err := buf.Send(zmq4.NewMsg(data))

	o.pendingMu.Lock()
	o.pending = o.pending[1:]
	o.pendingMu.Unlock()

	if err != nil {
		xlog.Warningf("transport: zmq send buffer: %v", err)
		return false
	}
	return true
}

func (o *zmqOutput) WaitForBufferSending(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		o.pendingMu.Lock()
		empty := len(o.pending) == 0
		o.pendingMu.Unlock()
		if empty {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func (o *zmqOutput) IsReady() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.msg != nil
}

func (o *zmqOutput) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.msg != nil {
		o.msg.Close()
		o.buf.Close()
		o.msg, o.buf = nil, nil
	}
}

type zmqInput struct {
	cfg       Config
	ctx       context.Context
	onMessage MessageHandler
	onBuffer  BufferHandler

	mu    sync.Mutex
	conns map[string]*zmqConn
}

type zmqConn struct {
	msg, buf zmq4.Socket
	quit     chan struct{}
}

func newZmqInput(cfg Config, onMessage MessageHandler, onBuffer BufferHandler) *zmqInput {
	return &zmqInput{cfg: cfg, ctx: context.Background(), onMessage: onMessage, onBuffer: onBuffer, conns: make(map[string]*zmqConn)}
}

func (i *zmqInput) ConnectTo(peerName string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.conns[peerName]; ok {
		return true
	}

	msg := zmq4.NewSub(i.ctx)
	if err := msg.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		xlog.Warningf("transport: zmq sub subscribe msg: %v", err)
	}
	if err := msg.Dial(zmqEndpoint("msg", i.cfg.Prefix, peerName)); err != nil {
		xlog.Errorf("transport: zmq msg dial %s: %v", peerName, err)
		return false
	}
	buf := zmq4.NewSub(i.ctx)
	if err := buf.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		xlog.Warningf("transport: zmq sub subscribe buf: %v", err)
	}
	if err := buf.Dial(zmqEndpoint("buf", i.cfg.Prefix, peerName)); err != nil {
		xlog.Errorf("transport: zmq buf dial %s: %v", peerName, err)
		msg.Close()
		return false
	}

	conn := &zmqConn{msg: msg, buf: buf, quit: make(chan struct{})}
	i.conns[peerName] = conn
	go i.recvLoop(conn.msg, conn.quit, func(b []byte) {
		if i.onMessage != nil {
			i.onMessage(b)
		}
	})
	go i.recvLoop(conn.buf, conn.quit, func(b []byte) {
		if i.onBuffer != nil {
			i.onBuffer(sobj.NewFromBytes(b))
		}
	})
	return true
}

// recvLoop runs until quit is closed, translating blocking Recv calls into
// handler invocations — the "separate receive thread per socket" the spec
// requires (spec §4.4).
func (i *zmqInput) recvLoop(sock zmq4.Socket, quit chan struct{}, handle func([]byte)) {
	for {
		select {
		case <-quit:
			return
		default:
		}
		m, err := sock.Recv()
		if err != nil {
			select {
			case <-quit:
				return
			default:
				xlog.Warningf("transport: zmq recv: %v", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}
		handle(m.Bytes())
	}
}

func (i *zmqInput) DisconnectFrom(peerName string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	conn, ok := i.conns[peerName]
	if !ok {
		return false
	}
	close(conn.quit)
	conn.msg.Close()
	conn.buf.Close()
	delete(i.conns, peerName)
	return true
}

func (i *zmqInput) Close() {
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
