package xdebug

import "testing"

func withEnabled(t *testing.T, fn func()) {
	t.Helper()
	prev := Enabled
	Enabled = true
	defer func() { Enabled = prev }()
	fn()
}

func TestAssertPanicsOnlyWhenEnabled(t *testing.T) {
	Enabled = false
	Assert(false) // must not panic

	withEnabled(t, func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("Assert(false) should panic when Enabled")
			}
		}()
		Assert(false)
	})
}

func TestAssertMsgIncludesMessage(t *testing.T) {
	withEnabled(t, func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatalf("AssertMsg(false, ...) should panic when Enabled")
			}
			if s, _ := r.(string); s != "assertion failed: boom" {
				t.Fatalf("panic value = %v, want %q", r, "assertion failed: boom")
			}
		}()
		AssertMsg(false, "boom")
	})
}

func TestAssertNoErrPanicsOnNonNilError(t *testing.T) {
	Enabled = false
	AssertNoErr(errBoom{}) // must not panic

	withEnabled(t, func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("AssertNoErr(err) should panic when Enabled")
			}
		}()
		AssertNoErr(errBoom{})
	})
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
