// Package link implements Link: the per-RootObject owner of one Channel
// pair, translating wire messages and buffers into calls on the owning
// root (spec §4.5).
package link

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/paperManu/splash/internal/xlog"
	"github.com/paperManu/splash/sobj"
	"github.com/paperManu/splash/transport"
	"github.com/paperManu/splash/value"
)

// BroadcastName is the reserved target name that every receiving root
// executes against, regardless of its own name (spec §4.5).
const BroadcastName = "__ALL__"

// Root is the subset of RootObject that Link calls into; kept narrow so
// link can be unit-tested without constructing a full root.
type Root interface {
	// Set routes a decoded message to the named target's attribute setter
	// (or the root's own, for BroadcastName or a name match).
	Set(target, attribute string, args value.Value)
	// SetFromSerializedObject routes a decoded buffer to the named
	// BufferObject, or to the root's handleSerializedObject hook if no
	// such object exists locally. The bool result (true if something
	// consumed the buffer) is Link's caller's to ignore; root.RootObject
	// exposes and tests it directly.
	SetFromSerializedObject(target string, obj *sobj.Serialized) bool
}

// Message is the decoded form of a wire message frame (spec §6.2): a target
// name, an attribute name, and its argument list.
type Message struct {
	Target    string
	Attribute string
	Args      value.Value // always a List
}

// Encode serializes a Message as a 3-element tuple {target, attribute,
// args}, reusing Value's own wire codec rather than a parallel one (spec
// §6.2: "Message frames ... share a common length-prefixed byte encoding").
func (m Message) Encode() []byte {
	return value.NewTuple(
		[]value.Value{value.NewString(m.Target), value.NewString(m.Attribute), m.Args},
		[]string{"target", "attribute", "args"},
	).Encode()
}

// DecodeMessage reads one Message from data.
func DecodeMessage(data []byte) (Message, error) {
	v, rest, err := value.Decode(data)
	if err != nil {
		return Message{}, fmt.Errorf("link: decode message: %w", err)
	}
	if len(rest) != 0 {
		return Message{}, fmt.Errorf("link: decode message: %d trailing bytes", len(rest))
	}
	fields, err := v.AsList()
	if err != nil || len(fields) != 3 {
		return Message{}, fmt.Errorf("link: decode message: malformed frame")
	}
	target, _ := fields[0].AsString()
	attribute, _ := fields[1].AsString()
	return Message{Target: target, Attribute: attribute, Args: fields[2]}, nil
}

// encodeBufferFrame/decodeBufferFrame implement spec §6.2's buffer frame:
// {string target-name, opaque bytes}, with the target name read without
// decoding the payload so Link can route before the object-specific
// deserializer ever sees the bytes.
func encodeBufferFrame(target string, payload []byte) []byte {
	out := make([]byte, 0, 4+len(target)+len(payload))
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(target)))
	out = append(out, tmp[:]...)
	out = append(out, target...)
	out = append(out, payload...)
	return out
}

func decodeBufferFrame(data []byte) (target string, payload []byte, err error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("link: buffer frame: short header")
	}
	n := int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]
	if len(data) < n {
		return "", nil, fmt.Errorf("link: buffer frame: short target name")
	}
	return string(data[:n]), data[n:], nil
}

// Link owns one ChannelOutput/ChannelInput pair over a single transport,
// and the root they feed into.
type Link struct {
	root Root
	out  transport.Output
	in   transport.Input
}

// New constructs a Link for root using cfg's transport kind; the Input side
// is wired immediately so inbound traffic can be routed as soon as a peer
// connects.
func New(root Root, cfg transport.Config) *Link {
	l := &Link{root: root}
	l.out = transport.NewOutput(cfg)
	l.in = transport.NewInput(cfg, l.handleMessage, l.handleBuffer)
	return l
}

func (l *Link) handleMessage(data []byte) {
	msg, err := DecodeMessage(data)
	if err != nil {
		xlog.Warningf("link: dropping malformed message: %v", err)
		return
	}
	l.root.Set(msg.Target, msg.Attribute, msg.Args)
}

func (l *Link) handleBuffer(obj *sobj.Serialized) {
	data := obj.GrabData()
	target, payload, err := decodeBufferFrame(data)
	if err != nil {
		xlog.Warningf("link: dropping malformed buffer frame: %v", err)
		return
	}
	l.root.SetFromSerializedObject(target, sobj.NewFromBytes(payload))
}

func (l *Link) ConnectTo(peerName string) bool {
	okOut := l.out.ConnectTo(peerName)
	okIn := l.in.ConnectTo(peerName)
	return okOut && okIn
}

func (l *Link) DisconnectFrom(peerName string) bool {
	okOut := l.out.DisconnectFrom(peerName)
	okIn := l.in.DisconnectFrom(peerName)
	return okOut && okIn
}

// SendMessage encodes and publishes {target, attribute, args} to every
// connected peer.
func (l *Link) SendMessage(target, attribute string, args value.Value) bool {
	msg := Message{Target: target, Attribute: attribute, Args: args}
	return l.out.SendMessage(msg.Encode())
}

// SendBuffer prefixes obj's already-serialized bytes with target and
// publishes the result, consuming obj per the move-only contract.
func (l *Link) SendBuffer(target string, obj *sobj.Serialized) bool {
	framed := encodeBufferFrame(target, obj.GrabData())
	return l.out.SendBuffer(sobj.NewFromBytes(framed))
}

func (l *Link) WaitForBufferSending(timeout time.Duration) bool {
	return l.out.WaitForBufferSending(timeout)
}

func (l *Link) IsReady() bool { return l.out.IsReady() }

func (l *Link) Close() {
	l.out.Close()
	l.in.Close()
}
