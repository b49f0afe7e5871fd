// Package xdebug provides assertion helpers that panic when Enabled and are
// a no-op otherwise, mirroring the teacher's cmn/debug package. Assertions
// check invariants that are the implementation's own bug if violated; they
// are never a substitute for returning an error across a process or
// package boundary.
package xdebug

import "fmt"

// Enabled toggles assertion checking; flipped to true by `cmd/splash`'s
// `-d` debug CLI flag so a production run without `-d` doesn't pay for it
// or crash on an assertion an operator never asked to check.
var Enabled = false

func Assert(cond bool) {
	if Enabled && !cond {
		panic("assertion failed")
	}
}

func AssertMsg(cond bool, msg string) {
	if Enabled && !cond {
		panic("assertion failed: " + msg)
	}
}

func Assertf(cond bool, format string, args ...interface{}) {
	if Enabled && !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}

func AssertNoErr(err error) {
	if Enabled && err != nil {
		panic("assertion failed: unexpected error: " + err.Error())
	}
}
