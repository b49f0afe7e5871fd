package root

import "github.com/paperManu/splash/sobj"

// Role is the World/Scene-specific behavior layered onto the shared
// RootObject step loop: composition in place of the inheritance the
// original used for the master/worker split (spec §9 design note,
// "give each role a RoleStrategy that receives step callbacks from the
// shared root step loop").
type Role interface {
	// OnStep runs once per Step, after the shared tree/buffer work for
	// that step has completed.
	OnStep(root *RootObject)
	// HandleSerializedObject is RootObject's subclass hook for a buffer
	// whose target matches no locally owned BufferObject (spec §4.8); it
	// reports whether anything ended up consuming the buffer. World's
	// implementation re-sends it to every Scene.
	HandleSerializedObject(root *RootObject, target string, obj *sobj.Serialized) bool
}
