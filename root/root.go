package root

import (
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/paperManu/splash/graph"
	"github.com/paperManu/splash/internal/xlog"
	"github.com/paperManu/splash/link"
	"github.com/paperManu/splash/objects"
	"github.com/paperManu/splash/sobj"
	"github.com/paperManu/splash/tree"
	"github.com/paperManu/splash/value"
)

// treeRoot is the fixed segment every process's tree mirrors its state
// under, regardless of that process's own name — World and every Scene
// share one "world" namespace rather than one per process (confirmed by
// original_source's root_object construction test, which checks these
// branches before any setName call).
const treeRoot = "world"

// WorldName is the master process's reserved peer name: every Scene
// addresses it by this literal name (transport/shm.go's ConnectTo treats
// it specially as the connection-initiating peer), rather than any
// configurable value.
const WorldName = "world"

var treeBranches = []string{"attributes", "commands", "durations", "logs", "objects"}

// treeCommandAttribute is the reserved attribute name propagateTree uses
// to carry an encoded command batch to a peer (spec §4.8 step 8); it never
// reaches an object's own attribute map because SetValues intercepts it
// first.
const treeCommandAttribute = "__treeCommands__"

// bufferSendDeadline bounds step 5's waitForBufferSending call (spec §4.8:
// "a short deadline").
const bufferSendDeadline = 10 * time.Millisecond

// SeedForName derives a deterministic tree seed from a process name alone
// (an FNV-1a hash; the role is not part of it), so peers agree on each
// other's seed without a handshake.
func SeedForName(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// RootObject is the cooperative step loop and object slab shared by World
// and Scene (spec §4.8); the alias and savable self-attributes are inherited
// from the embedded GraphObject, and answerMessage is registered by New.
type RootObject struct {
	*graph.Object

	name    string
	ctx     Context
	factory Factory
	role    Role

	tree *tree.Tree
	link *link.Link

	mu         sync.Mutex
	handles    map[Handle]Entity
	byName     map[string]Handle
	nextHandle uint64
	dispose    []Handle

	peersMu   sync.Mutex
	peerSeeds map[string]uint64

	updatedFlag atomic.Bool
	updatedCh   chan struct{}

	treeQueueDepth atomic.Int64

	answerMu      sync.Mutex
	pendingAnswer chan []value.Value

	quit atomic.Bool
}

// New constructs a RootObject named name. factory and role may be nil in
// tests that only exercise the object-slab/tree/attribute machinery; a
// production World/Scene supplies both and calls AttachLink afterward.
func New(name string, ctx Context, factory Factory, role Role) *RootObject {
	r := &RootObject{
		Object:    graph.New(name, "root", graph.CategoryMisc),
		name:      name,
		ctx:       ctx,
		factory:   factory,
		role:      role,
		tree:      tree.New(SeedForName(name)),
		handles:   make(map[Handle]Entity),
		byName:    make(map[string]Handle),
		peerSeeds: make(map[string]uint64),
		updatedCh: make(chan struct{}, 1),
	}
	r.ensureTreeLayout()
	r.registerAttributes()
	return r
}

func (r *RootObject) ensureTreeLayout() {
	if err := r.tree.CreateBranchAt(treeRoot); err != nil {
		xlog.Warningf("root: %s: create tree root: %v", r.name, err)
	}
	for _, b := range treeBranches {
		if err := r.tree.CreateBranchAt(treeRoot + "/" + b); err != nil {
			xlog.Warningf("root: %s: create tree branch %q: %v", r.name, b, err)
		}
	}
}

func (r *RootObject) registerAttributes() {
	r.AddAttribute(graph.NewAttribute(
		"answerMessage", []byte{}, "rendezvous delivery for sendMessageWithAnswer replies", graph.ForceSync, false,
		func(args []value.Value) (bool, error) {
			r.deliverAnswer(args)
			return true, nil
		},
		nil,
	))
}

// Name/Tree/AttachLink expose what World/Scene and tests need beyond the
// RootObject/Entity surface.
func (r *RootObject) Tree() *tree.Tree { return r.tree }
func (r *RootObject) AttachLink(l *link.Link) { r.link = l }

func (r *RootObject) SocketPrefix() string      { return r.ctx.SocketPrefix }
func (r *RootObject) ConfigurationPath() string { return r.ctx.ConfigurationPath }
func (r *RootObject) MediaPath() string         { return r.ctx.MediaPath }

// CreateObject implements spec §4.8's createObject contract: idempotent by
// (name, type), logs and reports false on a type mismatch against an
// existing name.
func (r *RootObject) CreateObject(typ, name string) (Handle, bool) {
	r.mu.Lock()
	if h, ok := r.byName[name]; ok {
		if e, alive := r.handles[h]; alive {
			if e.Type() == typ {
				r.mu.Unlock()
				return h, true
			}
			r.mu.Unlock()
			xlog.Warningf("root: %s: createObject(%s, %s): existing object has type %q", r.name, typ, name, e.Type())
			return 0, false
		}
	}
	r.mu.Unlock()

	if r.factory == nil {
		xlog.Warningf("root: %s: createObject(%s, %s): no factory attached", r.name, typ, name)
		return 0, false
	}
	entity, err := r.factory.Create(name, typ)
	if err != nil {
		xlog.Warningf("root: %s: createObject(%s, %s): %v", r.name, typ, name, err)
		return 0, false
	}

	r.mu.Lock()
	r.nextHandle++
	h := Handle(r.nextHandle)
	r.handles[h] = entity
	r.byName[name] = h
	r.mu.Unlock()

	// A Controller (spec SPEC_FULL.md supplemented feature 2) drives its
	// Call round trips through whichever RootObject created it; this is
	// the one place that holds both, so the wiring happens here instead
	// of requiring every caller to remember it.
	if attacher, ok := entity.(interface{ Attach(objects.AnswerSender) }); ok {
		attacher.Attach(r)
	}
	return h, true
}

// DisposeObject marks name for deferred delete; the erase happens at the
// top of the next Step (spec §4.8: "a disposed object is not freed while
// any task holds it").
func (r *RootObject) DisposeObject(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.byName[name]; ok {
		r.dispose = append(r.dispose, h)
	}
}

// DisposeSavableObjects marks every currently owned object whose Savable()
// reports true for deferred deletion (spec §6.1: loading a project file
// "deletes existing project-savable objects and rebuilds them from the
// file"). Entities that don't expose a Savable() method (every type this
// module's objects.Factory produces embeds *graph.Object, which does) are
// left untouched.
func (r *RootObject) DisposeSavableObjects() {
	for _, e := range r.snapshotEntities() {
		if s, ok := e.(interface{ Savable() bool }); ok && s.Savable() {
			r.DisposeObject(e.Name())
		}
	}
}

func (r *RootObject) reapDisposed() {
	r.mu.Lock()
	pending := r.dispose
	r.dispose = nil
	for _, h := range pending {
		if e, ok := r.handles[h]; ok {
			if stopper, ok := e.(interface{ Stop() }); ok {
				stopper.Stop()
			}
			delete(r.handles, h)
		}
	}
	for name, h := range r.byName {
		if _, alive := r.handles[h]; !alive {
			delete(r.byName, name)
		}
	}
	r.mu.Unlock()
}

// Lookup dereferences an object by name; ok is false once the object has
// been disposed and reaped (the Go analogue of an expired weak reference).
func (r *RootObject) Lookup(name string) (Entity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	e, alive := r.handles[h]
	return e, alive
}

// Entity dereferences a Handle directly.
func (r *RootObject) Entity(h Handle) (Entity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.handles[h]
	return e, ok
}

// Snapshot returns every currently owned Entity, for callers (World's
// object-shadow bookkeeping, Scene's render-step buffer collection) that
// need to walk the full object slab rather than look up one name.
func (r *RootObject) Snapshot() []Entity { return r.snapshotEntities() }

func (r *RootObject) snapshotEntities() []Entity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entity, 0, len(r.handles))
	for _, e := range r.handles {
		out = append(out, e)
	}
	return out
}

// targetEntity resolves a message/command target the way spec §4.8's set()
// does: the root's own name or link.BroadcastName address the root itself.
func (r *RootObject) targetEntity(target string) Entity {
	if target == r.name || target == link.BroadcastName {
		return r
	}
	e, ok := r.Lookup(target)
	if !ok {
		return nil
	}
	return e
}

// Set satisfies link.Root: every wire-delivered message arrives async,
// matching spec §4.8 ("set(name, attribute, values, async?=true)").
func (r *RootObject) Set(target, attribute string, args value.Value) {
	items, _ := args.AsList()
	r.SetValues(target, attribute, items, true)
}

// SetValues is the full local-call contract: async defaults to true and is
// forced to false when the target attribute is ForceSync (spec §4.8). A
// failed set is logged, matching the contract's "reported to the caller
// and logged" (there is no caller-visible return since async sets have no
// synchronous result to report).
func (r *RootObject) SetValues(target, attribute string, args []value.Value, async ...bool) {
	doAsync := true
	if len(async) > 0 {
		doAsync = async[0]
	}

	if attribute == treeCommandAttribute {
		r.receiveTreeCommands(args)
		return
	}

	entity := r.targetEntity(target)
	if entity == nil {
		xlog.Warningf("root: %s: set %s.%s: no such target", r.name, target, attribute)
		return
	}
	if entity.SyncPolicyOf(attribute) == graph.ForceSync {
		doAsync = false
	}

	apply := func() {
		if result := entity.SetAttribute(attribute, args...); result == graph.SetFailure {
			xlog.Warningf("root: %s: set %s.%s failed", r.name, target, attribute)
		}
	}
	if doAsync {
		r.AddTask(apply)
		return
	}
	apply()
}

func (r *RootObject) receiveTreeCommands(args []value.Value) {
	if len(args) != 1 {
		return
	}
	raw, err := args[0].AsString()
	if err != nil {
		return
	}
	cmds, err := tree.DecodeCommands([]byte(raw))
	if err != nil {
		xlog.Warningf("root: %s: decode tree commands: %v", r.name, err)
		return
	}
	r.tree.ReceiveCommands(cmds)
}

// SetFromSerializedObject implements spec §4.8's setFromSerializedObject:
// routes to an owned BufferObject if the name matches one, otherwise
// delegates to the role's handleSerializedObject hook. Reports whether
// anything consumed the buffer.
func (r *RootObject) SetFromSerializedObject(target string, obj *sobj.Serialized) bool {
	r.mu.Lock()
	h, ok := r.byName[target]
	var e Entity
	if ok {
		e, ok = r.handles[h]
	}
	r.mu.Unlock()

	if ok {
		if be, isBuffer := e.(bufferEntity); isBuffer {
			be.SetSerializedObject(obj)
			return true
		}
	}
	if r.role != nil {
		return r.role.HandleSerializedObject(r, target, obj)
	}
	return false
}

// SignalBufferObjectUpdated notifies the step loop's waiter, using a
// single-waker pattern so only the first signal since the last wait pays
// the notification cost (spec §4.8).
func (r *RootObject) SignalBufferObjectUpdated() {
	if r.updatedFlag.CompareAndSwap(false, true) {
		select {
		case r.updatedCh <- struct{}{}:
		default:
		}
	}
}

// WaitSignalBufferObjectUpdated waits up to timeout for a signal, returning
// whether one arrived.
func (r *RootObject) WaitSignalBufferObjectUpdated(timeout time.Duration) bool {
	select {
	case <-r.updatedCh:
		r.updatedFlag.Store(false)
		return true
	case <-time.After(timeout):
		return false
	}
}

// SendMessageWithAnswer implements spec §4.8's round trip: send, then wait
// on the answerMessage rendezvous. timeout <= 0 waits indefinitely.
func (r *RootObject) SendMessageWithAnswer(target, attribute string, args []value.Value, timeout time.Duration) ([]value.Value, bool) {
	ch := make(chan []value.Value, 1)
	r.answerMu.Lock()
	r.pendingAnswer = ch
	r.answerMu.Unlock()

	if r.link != nil {
		r.link.SendMessage(target, attribute, value.NewList(args...))
	} else {
		r.SetValues(target, attribute, args, true)
	}

	if timeout <= 0 {
		return <-ch, true
	}
	select {
	case answer := <-ch:
		return answer, true
	case <-time.After(timeout):
		return nil, false
	}
}

func (r *RootObject) deliverAnswer(args []value.Value) {
	r.answerMu.Lock()
	ch := r.pendingAnswer
	r.pendingAnswer = nil
	r.answerMu.Unlock()
	if ch != nil {
		ch <- args
	}
}

// ConnectTo/DisconnectFrom register peerName with the tree's seed map (so
// outbound commands queue for it) and, if a Link is attached, open the
// underlying transport connection.
func (r *RootObject) ConnectTo(peerName string) bool {
	seed := SeedForName(peerName)
	r.peersMu.Lock()
	r.peerSeeds[peerName] = seed
	r.peersMu.Unlock()
	r.tree.AddSeed(seed)
	if r.link == nil {
		return true
	}
	return r.link.ConnectTo(peerName)
}

// SendMessage publishes {target, attribute, args} to every connected peer
// over the attached Link, or applies it locally when no Link is attached
// (the same fallback SendMessageWithAnswer uses, so World/Scene logic is
// unit-testable without a transport).
func (r *RootObject) SendMessage(target, attribute string, args []value.Value) bool {
	if r.link != nil {
		return r.link.SendMessage(target, attribute, value.NewList(args...))
	}
	r.SetValues(target, attribute, args, true)
	return true
}

// CallObject implements original_source's controller.cpp setObjectAttribute/
// setWorldAttribute/setInScene/setObjectsOfType fallback: when target's
// attribute is already mirrored into this process's own tree, the call is
// delivered immediately via SendMessage; otherwise target hasn't been
// mirrored into the tree yet, so the call is queued as an OpCallback tree
// command instead, to be applied in order with whatever tree-structure
// commands eventually mirror that object in, rather than racing ahead of
// them over the separate message channel.
func (r *RootObject) CallObject(target, attribute string, args []value.Value) {
	leaf := treeRoot + "/objects/" + target + "/attributes/" + attribute
	if r.tree.HasLeafAt(leaf) {
		r.SendMessage(target, attribute, args)
		return
	}
	r.tree.EnqueueCallback(target, attribute, value.NewList(args...))
}

// SendBuffer publishes obj addressed to target over the attached Link; it
// is a no-op success when no Link is attached, since a buffer with nowhere
// to go has nothing further to do.
func (r *RootObject) SendBuffer(target string, obj *sobj.Serialized) bool {
	if r.link == nil {
		return true
	}
	return r.link.SendBuffer(target, obj)
}

func (r *RootObject) DisconnectFrom(peerName string) bool {
	r.peersMu.Lock()
	seed, ok := r.peerSeeds[peerName]
	delete(r.peerSeeds, peerName)
	r.peersMu.Unlock()
	if ok {
		r.tree.RemoveSeed(seed)
	}
	if r.link == nil {
		return true
	}
	return r.link.DisconnectFrom(peerName)
}

type stagedBuffer struct {
	name string
	obj  *sobj.Serialized
}

// Step runs one full iteration of spec §4.8's nine-step loop.
func (r *RootObject) Step() {
	r.reapDisposed()

	// 1. processTreeQueue
	callbacks := r.tree.ProcessQueue()

	// 2. executeTreeCommands — already-replicated, so applied inline.
	for _, cmd := range callbacks {
		items, _ := cmd.Value.AsList()
		r.SetValues(cmd.Target, cmd.Attribute, items, false)
	}

	// 3. runTasks (root's own)
	r.RunTasks()

	// 4. per-object runTasks/update/serialize
	entities := r.snapshotEntities()
	var staged []stagedBuffer
	for _, e := range entities {
		e.RunTasks()
		if be, ok := e.(bufferEntity); ok && be.WasBufferUpdated() {
			staged = append(staged, stagedBuffer{name: be.Name(), obj: be.Serialize()})
			be.ClearBufferUpdated()
		}
	}

	// 5. waitForBufferSending then broadcast uploadTextures
	if r.link != nil {
		r.link.WaitForBufferSending(bufferSendDeadline)
		r.link.SendMessage(link.BroadcastName, "uploadTextures", value.NewList())

		// 6. send the serialized objects
		for _, s := range staged {
			r.link.SendBuffer(s.name, s.obj)
		}
	}

	// 7. updateTreeFromObjects
	r.updateTreeFromObjects(entities)

	// 8. propagateTree
	r.propagateTree()

	if r.role != nil {
		r.role.OnStep(r)
	}

	// 9. wait on the buffer-updated condition
	r.WaitSignalBufferObjectUpdated(r.stepDeadline())
}

func (r *RootObject) updateTreeFromObjects(entities []Entity) {
	for _, e := range entities {
		if !e.WasUpdated() {
			continue
		}
		base := treeRoot + "/objects/" + e.Name()
		_ = r.tree.CreateBranchAt(base)
		_ = r.tree.CreateBranchAt(base + "/attributes")
		for _, attr := range e.AttributesList() {
			vals, ok := e.GetAttribute(attr)
			if !ok {
				continue
			}
			leaf := base + "/attributes/" + attr
			packed := value.NewList(vals...)
			if !r.tree.HasLeafAt(leaf) {
				_ = r.tree.CreateLeafAt(leaf, packed)
			} else {
				_ = r.tree.SetValueForLeafAt(leaf, packed)
			}
		}
		e.SetNotUpdated()
	}
}

// TreeQueueDepth returns the total outbound tree-command backlog observed
// across every connected peer as of the most recent propagateTree call, for
// Role.OnStep implementations to publish as the `splash_tree_queue_depth`
// metric — by the time OnStep runs, propagateTree has already drained the
// queues, so the depth must be captured here rather than read afterward.
func (r *RootObject) TreeQueueDepth() int { return int(r.treeQueueDepth.Load()) }

func (r *RootObject) propagateTree() {
	r.treeQueueDepth.Store(int64(r.tree.QueueDepth()))
	if r.link == nil {
		return
	}
	r.peersMu.Lock()
	peers := make(map[string]uint64, len(r.peerSeeds))
	for name, seed := range r.peerSeeds {
		peers[name] = seed
	}
	r.peersMu.Unlock()

	for name, seed := range peers {
		cmds := r.tree.DrainOutbound(seed)
		if len(cmds) == 0 {
			continue
		}
		encoded := tree.EncodeCommands(cmds)
		r.link.SendMessage(name, treeCommandAttribute, value.NewList(value.NewString(string(encoded))))
	}
}

func (r *RootObject) stepDeadline() time.Duration {
	return time.Duration(float64(time.Second) / r.ctx.frameDeadline())
}

// Quit requests the step loop stop (spec §5: "A root shutdown sets _quit,
// the step loop exits"); the caller's loop must poll ShouldQuit itself.
func (r *RootObject) Quit()            { r.quit.Store(true) }
func (r *RootObject) ShouldQuit() bool { return r.quit.Load() }

// Close stops every owned entity's background worker (BufferObjects'
// deserialize goroutines) and tears down the link.
func (r *RootObject) Close() {
	r.mu.Lock()
	entities := make([]Entity, 0, len(r.handles))
	for _, e := range r.handles {
		entities = append(entities, e)
	}
	r.handles = make(map[Handle]Entity)
	r.byName = make(map[string]Handle)
	r.mu.Unlock()

	for _, e := range entities {
		if stopper, ok := e.(interface{ Stop() }); ok {
			stopper.Stop()
		}
	}
	if r.link != nil {
		r.link.Close()
	}
}
