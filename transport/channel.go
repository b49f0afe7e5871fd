// Package transport implements Splash's Channel abstraction: unidirectional
// byte-stream endpoints carrying framed messages (attribute sets) or large
// opaque buffers (serialized frames, meshes), over one of two interchangeable
// transports — shared memory or a messaging socket (spec §4.4).
package transport

import (
	"time"

	"github.com/paperManu/splash/sobj"
)

// Kind selects which concrete transport a Channel pair uses. The choice is
// resolved once at Link construction time (spec §9 redesign note: "do not
// make the choice dynamic-dispatch through virtual calls on the hot path").
type Kind uint8

const (
	// KindSharedMemory backs a Channel with an mmapped ring buffer file per
	// direction, one writer, multiple followers (spec §4.4 shm contract).
	KindSharedMemory Kind = iota
	// KindMessagingSocket backs a Channel with a ZeroMQ PUB/SUB socket pair
	// per direction (spec §4.4 messaging-socket contract).
	KindMessagingSocket
)

func (k Kind) String() string {
	if k == KindSharedMemory {
		return "shmdata"
	}
	return "msgsocket"
}

// MessageHandler is invoked once per received message, with a private copy
// of the decoded bytes (the spec's "byte vector copied" contract).
type MessageHandler func(data []byte)

// BufferHandler is invoked once per received buffer; ownership of obj passes
// to the handler (the spec's "SerializedObject moved in" contract) — the
// handler must not assume obj's backing storage survives past GrabData().
type BufferHandler func(obj *sobj.Serialized)

// Output is the producer side of a Channel (spec §4.4 "Channel output").
type Output interface {
	// ConnectTo establishes delivery to peerName. For KindSharedMemory the
	// reader initiates the connection; this call waits (up to a fixed
	// timeout) for a follower to attach only when peerName is "world", and
	// returns at once for any other peer. For KindMessagingSocket the
	// writer binds its sockets once and records the peer; the reader side
	// dials in.
	ConnectTo(peerName string) bool
	DisconnectFrom(peerName string) bool
	// SendMessage delivers an opaque byte frame to every connected peer.
	SendMessage(data []byte) bool
	// SendBuffer delivers a large opaque byte frame, consuming ownership of
	// obj (obj is empty on return, per sobj's move-only convention).
	SendBuffer(obj *sobj.Serialized) bool
	// WaitForBufferSending blocks until all outbound buffers drain or
	// timeout elapses, returning false on timeout.
	WaitForBufferSending(timeout time.Duration) bool
	IsReady() bool
	Close()
}

// Input is the consumer side of a Channel (spec §4.4 "Channel input").
type Input interface {
	ConnectTo(peerName string) bool
	DisconnectFrom(peerName string) bool
	Close()
}

// Config parameterizes a Channel endpoint pair: the transport kind, the
// local process's name prefix (defaults to the World pid per spec §6.3),
// and the local endpoint name this Channel is known as to its peers.
type Config struct {
	Kind   Kind
	Prefix string
	Name   string
}

// NewOutput constructs the producer side of a Channel for cfg.Kind.
func NewOutput(cfg Config) Output {
	switch cfg.Kind {
	case KindSharedMemory:
		return newShmOutput(cfg)
	default:
		return newZmqOutput(cfg)
	}
}

// NewInput constructs the consumer side of a Channel for cfg.Kind. onMessage
// and onBuffer are invoked synchronously from the channel's own receive
// goroutine, matching the spec's "invoked synchronously from the consume
// thread" contract — callers that need main-thread delivery (Link) must
// hop through their own queue.
func NewInput(cfg Config, onMessage MessageHandler, onBuffer BufferHandler) Input {
	switch cfg.Kind {
	case KindSharedMemory:
		return newShmInput(cfg, onMessage, onBuffer)
	default:
		return newZmqInput(cfg, onMessage, onBuffer)
	}
}

// connectTimeout is the shared-memory transport's hard-coded follower
// attach timeout (spec §4.4: "waits up to a connection-timeout (5s)").
const connectTimeout = 5 * time.Second

// msgEndpointName/bufEndpointName mirror spec §6.3's naming convention for
// the two per-channel endpoints.
func msgEndpointName(prefix, name string) string { return "splash_" + prefix + "_msg_" + name }
func bufEndpointName(prefix, name string) string { return "splash_" + prefix + "_buf_" + name }
