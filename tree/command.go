package tree

import (
	"fmt"

	"github.com/paperManu/splash/value"
)

// Op is the kind of mutation a Command records.
type Op uint8

const (
	OpAddBranch Op = iota
	OpRemoveBranch
	OpAddLeaf
	OpRemoveLeaf
	OpSetLeaf
	// OpCallback carries a meta-command (callObject/callRoot, spec §4.8)
	// rather than a tree mutation; RootObject.executeTreeCommands turns it
	// into an attribute set on Target/Attribute instead of touching the tree.
	OpCallback
)

func (o Op) String() string {
	switch o {
	case OpAddBranch:
		return "add_branch"
	case OpRemoveBranch:
		return "remove_branch"
	case OpAddLeaf:
		return "add_leaf"
	case OpRemoveLeaf:
		return "remove_leaf"
	case OpSetLeaf:
		return "set_leaf"
	case OpCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Command is one entry in a per-peer replication log: {seed-id, timestamp,
// operation, path, payload} per spec §3/§4.3.
type Command struct {
	Seed      uint64
	Timestamp int64
	Op        Op
	Path      string
	Value     value.Value

	// Target/Attribute are only meaningful for Op == OpCallback.
	Target    string
	Attribute string
}

// Encode serializes a Command using the same TLV framing Value uses for its
// own payloads (spec §6.2: "serializable as byte sequences using the same
// framing as Value").
func (c Command) Encode() []byte {
	header := value.NewTuple(
		[]value.Value{
			value.NewInt(int64(c.Seed)),
			value.NewInt(c.Timestamp),
			value.NewInt(int64(c.Op)),
			value.NewString(c.Path),
			value.NewString(c.Target),
			value.NewString(c.Attribute),
		},
		[]string{"seed", "ts", "op", "path", "target", "attribute"},
	)
	buf := header.Encode()
	buf = append(buf, c.Value.Encode()...)
	return buf
}

// DecodeCommand reads one Command from the front of data, returning the
// unconsumed remainder.
func DecodeCommand(data []byte) (Command, []byte, error) {
	header, rest, err := value.Decode(data)
	if err != nil {
		return Command{}, nil, fmt.Errorf("tree: decode command header: %w", err)
	}
	fields, err := header.AsList()
	if err != nil || len(fields) != 6 {
		return Command{}, nil, fmt.Errorf("tree: decode command: malformed header")
	}
	seed, _ := fields[0].AsInt()
	ts, _ := fields[1].AsInt()
	op, _ := fields[2].AsInt()
	path, _ := fields[3].AsString()
	target, _ := fields[4].AsString()
	attribute, _ := fields[5].AsString()

	val, rest, err := value.Decode(rest)
	if err != nil {
		return Command{}, nil, fmt.Errorf("tree: decode command value: %w", err)
	}
	return Command{
		Seed:      uint64(seed),
		Timestamp: ts,
		Op:        Op(op),
		Path:      path,
		Value:     val,
		Target:    target,
		Attribute: attribute,
	}, rest, nil
}

// EncodeCommands/DecodeCommands frame a whole batch, as drained from one
// peer's outbound queue and handed to Link in one message.
func EncodeCommands(cmds []Command) []byte {
	out := make([]byte, 0, 64*len(cmds))
	out = append(out, value.NewInt(int64(len(cmds))).Encode()...)
	for _, c := range cmds {
		out = append(out, c.Encode()...)
	}
	return out
}

func DecodeCommands(data []byte) ([]Command, error) {
	countV, rest, err := value.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("tree: decode commands count: %w", err)
	}
	count, _ := countV.AsInt()
	cmds := make([]Command, 0, count)
	for i := int64(0); i < count; i++ {
		var c Command
		c, rest, err = DecodeCommand(rest)
		if err != nil {
			return nil, fmt.Errorf("tree: decode commands[%d]: %w", i, err)
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}
