package render

import "testing"

func TestNullDriverIsInert(t *testing.T) {
	d := NewNullDriver()
	if err := d.UploadTextures(nil, []BufferHandle{{Name: "img", Kind: "image"}}); err != nil {
		t.Fatalf("UploadTextures: %v", err)
	}
	if err := d.RenderFrame(nil); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	d.SwapInterval(2)
	if d.SwapIntervalValue() != 2 {
		t.Fatalf("SwapIntervalValue() = %d, want 2", d.SwapIntervalValue())
	}
}
