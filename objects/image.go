package objects

import (
	"encoding/binary"
	"fmt"

	"github.com/paperManu/splash/buffer"
	"github.com/paperManu/splash/graph"
	"github.com/paperManu/splash/sobj"
	"github.com/paperManu/splash/value"
)

// Image is a BufferObject carrying a flat RGBA(-ish) pixel buffer: width,
// height, channel count, and raw bytes (spec §3's "image" category,
// scenario S5).
type Image struct {
	*buffer.Object

	width, height, channels int
	data                    []byte
}

// NewImage constructs an empty Image BufferObject named name.
func NewImage(name string) *Image {
	img := &Image{}
	img.Object = buffer.New(name, "image", graph.CategoryImage, img)
	img.AddAttribute(graph.NewAttribute(
		"size", []byte{'i', 'i', 'i'}, "width, height, channel count", graph.Async, false,
		func(args []value.Value) (bool, error) {
			w, _ := args[0].AsInt()
			h, _ := args[1].AsInt()
			c, _ := args[2].AsInt()
			img.WriteLock()
			changed := int(w) != img.width || int(h) != img.height || int(c) != img.channels
			img.width, img.height, img.channels = int(w), int(h), int(c)
			img.WriteUnlock()
			return changed, nil
		},
		func() []value.Value {
			w, h, c := img.Dimensions()
			return []value.Value{value.NewInt(int64(w)), value.NewInt(int64(h)), value.NewInt(int64(c))}
		},
	))
	return img
}

// SetImage replaces the pixel buffer under the write lock, then marks the
// buffer updated so the owning root knows to re-serialize and broadcast it
// (spec §4.7's producer-fills-buffer half of the lifecycle).
func (img *Image) SetImage(width, height, channels int, data []byte) {
	img.WriteLock()
	img.width, img.height, img.channels = width, height, channels
	img.data = append([]byte(nil), data...)
	img.WriteUnlock()
	img.UpdateTimestamp(nil)
}

// Dimensions returns the current width, height and channel count.
func (img *Image) Dimensions() (width, height, channels int) {
	img.ReadLock()
	defer img.ReadUnlock()
	return img.width, img.height, img.channels
}

// Serialize implements buffer.Codec: {namelen,name,width,height,channels,datalen,data}.
// Called with the read lock already held by Object.Serialize.
func (img *Image) Serialize(name string) *sobj.Serialized {
	out := make([]byte, 0, 4+len(name)+12+4+len(img.data))
	out = appendLengthPrefixed(out, []byte(name))
	out = appendUint32(out, uint32(img.width))
	out = appendUint32(out, uint32(img.height))
	out = appendUint32(out, uint32(img.channels))
	out = appendLengthPrefixed(out, img.data)
	return sobj.NewFromBytes(out)
}

// Deserialize implements buffer.Codec, replacing the payload atomically:
// on any malformed input the previous width/height/channels/data are left
// untouched (spec §4.7). Width, height, channels and pixel bytes round-trip
// exactly; the timestamp is not part of the frame, so the receiving object
// stamps its own time on success rather than taking the sender's.
// Called with the write lock already held by Object.deserializeWorker.
func (img *Image) Deserialize(obj *sobj.Serialized) error {
	data := obj.Data()
	_, rest, err := readLengthPrefixed(data) // target name, ignored here
	if err != nil {
		return fmt.Errorf("objects: image: %w", err)
	}
	width, rest, err := readUint32(rest)
	if err != nil {
		return fmt.Errorf("objects: image: %w", err)
	}
	height, rest, err := readUint32(rest)
	if err != nil {
		return fmt.Errorf("objects: image: %w", err)
	}
	channels, rest, err := readUint32(rest)
	if err != nil {
		return fmt.Errorf("objects: image: %w", err)
	}
	pixels, _, err := readLengthPrefixed(rest)
	if err != nil {
		return fmt.Errorf("objects: image: %w", err)
	}
	img.width, img.height, img.channels = int(width), int(height), int(channels)
	img.data = append([]byte(nil), pixels...)
	return nil
}

func appendUint32(out []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(out, tmp[:]...)
}

func readUint32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, fmt.Errorf("short uint32 field")
	}
	return binary.LittleEndian.Uint32(data[:4]), data[4:], nil
}

func appendLengthPrefixed(out []byte, b []byte) []byte {
	out = appendUint32(out, uint32(len(b)))
	return append(out, b...)
}

func readLengthPrefixed(data []byte) ([]byte, []byte, error) {
	n, rest, err := readUint32(data)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, nil, fmt.Errorf("short length-prefixed field")
	}
	return rest[:n], rest[n:], nil
}
