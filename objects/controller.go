package objects

import (
	"time"

	"github.com/paperManu/splash/graph"
	"github.com/paperManu/splash/value"
)

// AnswerSender is the subset of RootObject a Controller drives a
// sendMessageWithAnswer round trip through (spec §4.8); kept narrow so
// Controller is unit-testable against a fake.
type AnswerSender interface {
	// SendMessageWithAnswer sends {target, attribute, args}, then waits up
	// to timeout (0 means indefinite) for target's answer rendezvous,
	// returning the received values or ok=false on timeout.
	SendMessageWithAnswer(target, attribute string, args []value.Value, timeout time.Duration) (answer []value.Value, ok bool)
}

// ObjectCaller is the subset of RootObject a Controller uses to route an
// attribute set at a target that may not yet be mirrored into the local
// tree, generalizing original_source's controller.cpp
// setObjectAttribute/setWorldAttribute/setInScene/setObjectsOfType into one
// target-agnostic call (spec §4.8 step 2): RootObject.CallObject already
// implements the has-leaf-or-fall-back-to-tree-callback choice those four
// methods each made, so Controller only forwards to it.
type ObjectCaller interface {
	CallObject(target, attribute string, args []value.Value)
}

// Controller is a GraphObject generalizing original_source's
// controller.cpp "attribute call with answer" scripting hook into a
// first-class, unit-testable object (spec SPEC_FULL.md supplemented
// feature 2): any local code — not only a Python runtime — can drive a
// sendMessageWithAnswer round trip through it.
type Controller struct {
	*graph.Object

	sender AnswerSender
	caller ObjectCaller

	scriptPath string
	lastTarget string
	lastAnswer []value.Value
	lastOK     bool
}

// NewController constructs a Controller named name; Attach must be called
// before Call can do anything useful.
func NewController(name string) *Controller {
	c := &Controller{Object: graph.New(name, "controller", graph.CategoryMisc)}
	c.AddAttribute(graph.NewAttribute(
		"lastAnswer", []byte{}, "values returned by the most recent Call, if any", graph.Async, true,
		nil,
		func() []value.Value { return c.lastAnswer },
	))
	c.AddAttribute(graph.NewAttribute(
		"scriptPath", []byte{'s'}, "path of the script this Controller was registered for (spec §6.4 -P; the script itself is never interpreted, only recorded)", graph.Async, false,
		func(args []value.Value) (bool, error) {
			s, _ := args[0].AsString()
			changed := s != c.scriptPath
			c.scriptPath = s
			return changed, nil
		},
		func() []value.Value { return []value.Value{value.NewString(c.scriptPath)} },
	))
	return c
}

// Attach wires the RootObject (or a fake, in tests) this Controller routes
// calls through. If sender also implements ObjectCaller — the real
// RootObject does — CallObject becomes usable too.
func (c *Controller) Attach(sender AnswerSender) {
	c.sender = sender
	c.caller, _ = sender.(ObjectCaller)
}

// Call drives one sendMessageWithAnswer round trip against target's
// attribute, recording the result for the lastAnswer attribute and for the
// caller's immediate use.
func (c *Controller) Call(target, attribute string, args []value.Value, timeout time.Duration) ([]value.Value, bool) {
	if c.sender == nil {
		return nil, false
	}
	answer, ok := c.sender.SendMessageWithAnswer(target, attribute, args, timeout)
	c.lastTarget, c.lastAnswer, c.lastOK = target, answer, ok
	if ok {
		c.MarkDirty()
	}
	return answer, ok
}

// CallObject drives a fire-and-forget attribute set at target through the
// attached RootObject's has-leaf-or-fall-back-to-tree-callback routing
// (spec §4.8 step 2), unlike Call it waits for no answer, matching the
// original's setObjectAttribute family having no return value.
func (c *Controller) CallObject(target, attribute string, args []value.Value) bool {
	if c.caller == nil {
		return false
	}
	c.caller.CallObject(target, attribute, args)
	c.lastTarget = target
	c.MarkDirty()
	return true
}

// LastCall reports the target of the most recent Call or CallObject, and
// the answer and outcome of the most recent Call.
func (c *Controller) LastCall() (target string, answer []value.Value, ok bool) {
	return c.lastTarget, c.lastAnswer, c.lastOK
}
