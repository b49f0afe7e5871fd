package root

// Handle is a stable index into a RootObject's entity slab, replacing the
// original's shared_ptr/weak_ptr pair (spec §9 design note: "the
// RootObject owns a slab indexed by stable 64-bit handles; consumers hold
// handles and dereference through the root"). The zero Handle is never
// issued and reads back as "not found".
type Handle uint64
