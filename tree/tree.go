// Package tree implements Splash's replicated hierarchical key/value store:
// a rooted labeled tree of Branch/Leaf nodes, each mutation recorded as a
// Command in a per-peer outbound log so the mutation can be reproduced on
// every other process sharing the tree (spec §3, §4.3).
package tree

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/paperManu/splash/internal/xdebug"
	"github.com/paperManu/splash/internal/xlog"
	"github.com/paperManu/splash/value"
)

// MaxQueueDepth bounds each peer's outbound command queue (spec §9 open
// question: the C++ original leaves this unbounded). Past this depth the
// oldest unsent command for that peer is dropped; the dropped peer is
// expected to resync the way Scenes already do on (re)connection, by
// receiving a full object/attribute resend rather than relying on replay
// alone.
const MaxQueueDepth = 4096

// Leaf holds one Value and a monotonically increasing microsecond
// timestamp, plus any subscriber callbacks registered on it.
type Leaf struct {
	value     value.Value
	timestamp int64
	subs      []func(value.Value)
}

func (l *Leaf) Value() value.Value { return l.value }
func (l *Leaf) Timestamp() int64   { return l.timestamp }

// Branch is an interior node: an ordered map of child branches plus an
// ordered map of leaves, both keyed by name unique within the parent.
type Branch struct {
	childOrder []string
	children   map[string]*Branch
	leafOrder  []string
	leaves     map[string]*Leaf
}

func newBranch() *Branch {
	return &Branch{children: make(map[string]*Branch), leaves: make(map[string]*Leaf)}
}

// Tree is a rooted labeled tree guarded by a single lock; reads are
// reentrant (RLock), writes are exclusive.
type Tree struct {
	mu   sync.RWMutex
	seed uint64
	root *Branch

	peers   map[uint64]*peerQueue // outbound, keyed by connected peer's seed
	inbound []Command             // commands received from peers, awaiting ProcessQueue
}

type peerQueue struct {
	cmds []Command
}

// New creates an empty Tree identifying itself with seed. Seeds are chosen
// by the owning RootObject (root.SeedForName hashes the process name) and
// must be unique among processes sharing this tree.
func New(seed uint64) *Tree {
	return &Tree{
		seed:  seed,
		root:  newBranch(),
		peers: make(map[uint64]*peerQueue),
	}
}

func (t *Tree) Seed() uint64 { return t.seed }

// QueueDepth returns the total number of commands pending across every
// connected peer's outbound queue, for RootObject.propagateTree's callers
// to publish as the `splash_tree_queue_depth` metric.
func (t *Tree) QueueDepth() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, q := range t.peers {
		n += len(q.cmds)
	}
	return n
}

// AddSeed registers a connected peer, creating its outbound queue. Future
// local mutations are appended to this queue until the peer disconnects.
func (t *Tree) AddSeed(seed uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.peers[seed]; !ok {
		t.peers[seed] = &peerQueue{}
	}
}

// RemoveSeed drops a disconnected peer's outbound queue.
func (t *Tree) RemoveSeed(seed uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, seed)
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// navigate walks to the parent branch of the final path component, creating
// nothing; it returns the parent branch and the final component name.
func (t *Tree) navigate(path string) (*Branch, string, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, "", fmt.Errorf("tree: empty path")
	}
	b := t.root
	for _, p := range parts[:len(parts)-1] {
		child, ok := b.children[p]
		if !ok {
			return nil, "", fmt.Errorf("tree: no branch at %q", p)
		}
		b = child
	}
	return b, parts[len(parts)-1], nil
}

func (t *Tree) HasBranchAt(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, name, err := t.navigate(path)
	if err != nil {
		return false
	}
	_, ok := b.children[name]
	return ok
}

func (t *Tree) HasLeafAt(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, name, err := t.navigate(path)
	if err != nil {
		return false
	}
	_, ok := b.leaves[name]
	return ok
}

func (t *Tree) CreateBranchAt(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createBranchAt(path, t.seed, nowMicros(), false)
}

// createBranchAt, like setValueForLeafAt, takes fromReplay so commands
// applied from a peer's replay log are not re-recorded onto every other
// peer's outbound queue (spec §9 "silent" detail, kept internal).
func (t *Tree) createBranchAt(path string, seed uint64, ts int64, fromReplay bool) error {
	parent, name, err := t.navigate(path)
	if err != nil {
		return err
	}
	if _, ok := parent.children[name]; ok {
		return nil // idempotent
	}
	if _, ok := parent.leaves[name]; ok {
		return fmt.Errorf("tree: %q already exists as a leaf", path)
	}
	parent.children[name] = newBranch()
	parent.childOrder = append(parent.childOrder, name)
	if !fromReplay {
		t.record(Command{Seed: seed, Timestamp: ts, Op: OpAddBranch, Path: path}, seed)
	}
	return nil
}

func (t *Tree) RemoveBranchAt(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeBranchAt(path, t.seed, nowMicros(), false)
}

func (t *Tree) removeBranchAt(path string, seed uint64, ts int64, fromReplay bool) error {
	parent, name, err := t.navigate(path)
	if err != nil {
		return err
	}
	if _, ok := parent.children[name]; !ok {
		return fmt.Errorf("tree: no branch at %q", path)
	}
	delete(parent.children, name)
	parent.childOrder = removeName(parent.childOrder, name)
	if !fromReplay {
		t.record(Command{Seed: seed, Timestamp: ts, Op: OpRemoveBranch, Path: path}, seed)
	}
	return nil
}

func (t *Tree) CreateLeafAt(path string, initial ...value.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var v value.Value
	if len(initial) > 0 {
		v = initial[0]
	}
	return t.createLeafAt(path, v, t.seed, nowMicros(), false)
}

func (t *Tree) createLeafAt(path string, v value.Value, seed uint64, ts int64, fromReplay bool) error {
	parent, name, err := t.navigate(path)
	if err != nil {
		return err
	}
	if _, ok := parent.leaves[name]; ok {
		return nil // idempotent
	}
	if _, ok := parent.children[name]; ok {
		return fmt.Errorf("tree: %q already exists as a branch", path)
	}
	// The leaf starts at timestamp zero so the first set with any explicit
	// timestamp applies; ts is still recorded on the add_leaf command.
	parent.leaves[name] = &Leaf{value: v}
	parent.leafOrder = append(parent.leafOrder, name)
	if !fromReplay {
		t.record(Command{Seed: seed, Timestamp: ts, Op: OpAddLeaf, Path: path, Value: v}, seed)
	}
	return nil
}

func (t *Tree) RemoveLeafAt(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLeafAt(path, t.seed, nowMicros(), false)
}

func (t *Tree) removeLeafAt(path string, seed uint64, ts int64, fromReplay bool) error {
	parent, name, err := t.navigate(path)
	if err != nil {
		return err
	}
	if _, ok := parent.leaves[name]; !ok {
		return fmt.Errorf("tree: no leaf at %q", path)
	}
	delete(parent.leaves, name)
	parent.leafOrder = removeName(parent.leafOrder, name)
	if !fromReplay {
		t.record(Command{Seed: seed, Timestamp: ts, Op: OpRemoveLeaf, Path: path}, seed)
	}
	return nil
}

// SetValueForLeafAt sets the leaf's value, defaulting the timestamp to now.
// A set whose timestamp is not strictly greater than the leaf's current
// timestamp is dropped (last-writer-wins by time, spec §3 invariant); on a
// tie the current value is kept, and the originating seed-id is not
// compared.
func (t *Tree) SetValueForLeafAt(path string, v value.Value, timestamp ...int64) error {
	ts := nowMicros()
	if len(timestamp) > 0 {
		ts = timestamp[0]
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setValueForLeafAt(path, v, t.seed, ts, false)
}

// setValueForLeafAt is the shared implementation for local sets (record=true,
// appended to every peer's outbound queue) and replayed remote sets
// (record=false, applied without re-broadcasting — the "silent" detail of
// the spec kept internal per the §9 redesign note).
func (t *Tree) setValueForLeafAt(path string, v value.Value, seed uint64, ts int64, fromReplay bool) error {
	parent, name, err := t.navigate(path)
	if err != nil {
		return err
	}
	leaf, ok := parent.leaves[name]
	if !ok {
		return fmt.Errorf("tree: no leaf at %q", path)
	}
	if ts <= leaf.timestamp {
		if xlog.FastV(4, xlog.SmoduleTree) {
			xlog.Infof("tree: drop stale set at %q (ts=%d <= %d)", path, ts, leaf.timestamp)
		}
		return nil
	}
	leaf.value = v.WithName(name)
	leaf.timestamp = ts
	for _, cb := range leaf.subs {
		cb(leaf.value)
	}
	if !fromReplay {
		t.record(Command{Seed: seed, Timestamp: ts, Op: OpSetLeaf, Path: path, Value: v}, seed)
	}
	return nil
}

func (t *Tree) GetValueForLeafAt(path string) (value.Value, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	parent, name, err := t.navigate(path)
	if err != nil {
		return value.Value{}, err
	}
	leaf, ok := parent.leaves[name]
	if !ok {
		return value.Value{}, fmt.Errorf("tree: no leaf at %q", path)
	}
	return leaf.value, nil
}

// GetBranchListAt/GetLeafListAt return names in insertion order.
func (t *Tree) GetBranchListAt(path string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, err := t.branchAt(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(b.childOrder))
	copy(out, b.childOrder)
	return out, nil
}

func (t *Tree) GetLeafListAt(path string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, err := t.branchAt(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(b.leafOrder))
	copy(out, b.leafOrder)
	return out, nil
}

func (t *Tree) branchAt(path string) (*Branch, error) {
	parts := splitPath(path)
	b := t.root
	for _, p := range parts {
		child, ok := b.children[p]
		if !ok {
			return nil, fmt.Errorf("tree: no branch at %q", path)
		}
		b = child
	}
	return b, nil
}

// Subscribe registers fn to be invoked on every successful SetValueForLeafAt
// (local or replayed) on the leaf at path. It returns an unsubscribe
// function. Used by RootObject to mirror leaf updates into live attribute
// setters (spec §4.3).
func (t *Tree) Subscribe(path string, fn func(value.Value)) (unsubscribe func(), err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	parent, name, err := t.navigate(path)
	if err != nil {
		return nil, err
	}
	leaf, ok := parent.leaves[name]
	if !ok {
		return nil, fmt.Errorf("tree: no leaf at %q", path)
	}
	idx := len(leaf.subs)
	leaf.subs = append(leaf.subs, fn)
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if idx < len(leaf.subs) {
			leaf.subs[idx] = nil
		}
	}, nil
}

// record appends cmd to every connected peer's outbound queue except the
// peer matching cmd's own seed (there is none locally, but symmetric
// bookkeeping keeps this function usable from both local and replay paths).
func (t *Tree) record(cmd Command, originSeed uint64) {
	for seed, q := range t.peers {
		if seed == originSeed {
			continue
		}
		if len(q.cmds) >= MaxQueueDepth {
			xlog.Warningf("tree: peer %d outbound queue full, dropping oldest command", seed)
			q.cmds = q.cmds[1:]
		}
		q.cmds = append(q.cmds, cmd)
	}
}

// DrainOutbound removes and returns all pending commands for peer, in
// order, for RootObject.propagateTree to hand to the link.
func (t *Tree) DrainOutbound(peerSeed uint64) []Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.peers[peerSeed]
	if !ok || len(q.cmds) == 0 {
		return nil
	}
	out := q.cmds
	q.cmds = nil
	return out
}

// ReceiveCommands is called by Link when it decodes an inbound batch of
// tree commands from a peer; they are queued for the next ProcessQueue.
func (t *Tree) ReceiveCommands(cmds []Command) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbound = append(t.inbound, cmds...)
}

// ProcessQueue drains the inbound command queue, applies every tree-mutating
// command whose seed differs from this tree's own (spec §4.3: "replaying
// one's own commands is a no-op"), and returns the OpCallback meta-commands
// it encountered, in order, for RootObject.executeTreeCommands to turn into
// attribute sets on Target/Attribute (spec §4.8 step 2) — the tree itself
// has no notion of "object" or "attribute" and cannot apply those.
func (t *Tree) ProcessQueue() []Command {
	t.mu.Lock()
	cmds := t.inbound
	t.inbound = nil
	t.mu.Unlock()

	var callbacks []Command
	for _, cmd := range cmds {
		if cmd.Seed == t.seed {
			continue
		}
		if cmd.Op == OpCallback {
			callbacks = append(callbacks, cmd)
			continue
		}
		if err := t.apply(cmd); err != nil {
			xlog.Warningf("tree: failed to apply replayed command %s at %q: %v", cmd.Op, cmd.Path, err)
		}
	}
	return callbacks
}

func (t *Tree) apply(cmd Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch cmd.Op {
	case OpAddBranch:
		return t.createBranchAt(cmd.Path, cmd.Seed, cmd.Timestamp, true)
	case OpRemoveBranch:
		return t.removeBranchAt(cmd.Path, cmd.Seed, cmd.Timestamp, true)
	case OpAddLeaf:
		return t.createLeafAt(cmd.Path, cmd.Value, cmd.Seed, cmd.Timestamp, true)
	case OpRemoveLeaf:
		return t.removeLeafAt(cmd.Path, cmd.Seed, cmd.Timestamp, true)
	case OpSetLeaf:
		return t.setValueForLeafAt(cmd.Path, cmd.Value, cmd.Seed, cmd.Timestamp, true)
	default:
		return fmt.Errorf("tree: unknown op %v", cmd.Op)
	}
}

// EnqueueCallback appends an OpCallback meta-command to every connected
// peer's outbound queue without touching the tree itself, used by
// RootObject.set() when routing a message that must also replicate as a
// tree-delivered call (spec §4.8).
func (t *Tree) EnqueueCallback(target, attribute string, args value.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cmd := Command{Seed: t.seed, Timestamp: nowMicros(), Op: OpCallback, Target: target, Attribute: attribute, Value: args}
	t.record(cmd, t.seed)
}

func removeName(names []string, name string) []string {
	for i, n := range names {
		if n == name {
			return append(names[:i], names[i+1:]...)
		}
	}
	xdebug.Assertf(false, "tree: removeName(%q) missing from %v", name, names)
	return names
}

func nowMicros() int64 { return time.Now().UnixMicro() }
