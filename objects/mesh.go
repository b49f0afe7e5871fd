package objects

import (
	"fmt"
	"math"

	"github.com/paperManu/splash/buffer"
	"github.com/paperManu/splash/graph"
	"github.com/paperManu/splash/sobj"
	"github.com/paperManu/splash/value"
)

// Mesh is a BufferObject carrying a flat vertex/UV/normal buffer plus a
// face-index buffer, the "mesh" category spec §3 names but never
// exemplifies; layout grounded on original_source/src/mesh/mesh.cpp and
// meshloader.h.
type Mesh struct {
	*buffer.Object

	vertices, uvs, normals []float32
	faces                  []uint32
}

// NewMesh constructs an empty Mesh BufferObject named name.
func NewMesh(name string) *Mesh {
	m := &Mesh{}
	m.Object = buffer.New(name, "mesh", graph.CategoryMesh, m)
	m.AddAttribute(graph.NewAttribute(
		"vertexCount", []byte{}, "number of vertices in the current mesh", graph.Async, true,
		nil,
		func() []value.Value {
			m.ReadLock()
			defer m.ReadUnlock()
			return []value.Value{value.NewInt(int64(len(m.vertices) / 3))}
		},
	))
	return m
}

// SetMesh replaces the vertex/UV/normal/face buffers under the write lock
// (vertices and normals are 3 floats/vertex, uvs are 2 floats/vertex, faces
// are flat vertex-index triples).
func (m *Mesh) SetMesh(vertices, uvs, normals []float32, faces []uint32) {
	m.WriteLock()
	m.vertices = append([]float32(nil), vertices...)
	m.uvs = append([]float32(nil), uvs...)
	m.normals = append([]float32(nil), normals...)
	m.faces = append([]uint32(nil), faces...)
	m.WriteUnlock()
	m.UpdateTimestamp(nil)
}

// Buffers returns copies of the current vertex/UV/normal/face buffers.
func (m *Mesh) Buffers() (vertices, uvs, normals []float32, faces []uint32) {
	m.ReadLock()
	defer m.ReadUnlock()
	return append([]float32(nil), m.vertices...),
		append([]float32(nil), m.uvs...),
		append([]float32(nil), m.normals...),
		append([]uint32(nil), m.faces...)
}

// Serialize implements buffer.Codec, writing each buffer as a
// {float-count, float32 little-endian ...} or {uint32-count, uint32 ...}
// section, name-prefixed per the Codec contract.
func (m *Mesh) Serialize(name string) *sobj.Serialized {
	var out []byte
	out = appendLengthPrefixed(out, []byte(name))
	out = appendFloat32s(out, m.vertices)
	out = appendFloat32s(out, m.uvs)
	out = appendFloat32s(out, m.normals)
	out = appendUint32s(out, m.faces)
	return sobj.NewFromBytes(out)
}

// Deserialize implements buffer.Codec; on any malformed input the previous
// buffers are left untouched (spec §8 property 4).
func (m *Mesh) Deserialize(obj *sobj.Serialized) error {
	rest := obj.Data()
	_, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return fmt.Errorf("objects: mesh: %w", err)
	}
	vertices, rest, err := readFloat32s(rest)
	if err != nil {
		return fmt.Errorf("objects: mesh: %w", err)
	}
	uvs, rest, err := readFloat32s(rest)
	if err != nil {
		return fmt.Errorf("objects: mesh: %w", err)
	}
	normals, rest, err := readFloat32s(rest)
	if err != nil {
		return fmt.Errorf("objects: mesh: %w", err)
	}
	faces, _, err := readUint32s(rest)
	if err != nil {
		return fmt.Errorf("objects: mesh: %w", err)
	}
	m.vertices, m.uvs, m.normals, m.faces = vertices, uvs, normals, faces
	return nil
}

func appendFloat32s(out []byte, vals []float32) []byte {
	out = appendUint32(out, uint32(len(vals)))
	for _, v := range vals {
		out = appendUint32(out, math.Float32bits(v))
	}
	return out
}

func readFloat32s(data []byte) ([]float32, []byte, error) {
	n, rest, err := readUint32(data)
	if err != nil {
		return nil, nil, err
	}
	out := make([]float32, n)
	for i := range out {
		bits, r, err := readUint32(rest)
		if err != nil {
			return nil, nil, err
		}
		out[i] = math.Float32frombits(bits)
		rest = r
	}
	return out, rest, nil
}

func appendUint32s(out []byte, vals []uint32) []byte {
	out = appendUint32(out, uint32(len(vals)))
	for _, v := range vals {
		out = appendUint32(out, v)
	}
	return out
}

func readUint32s(data []byte) ([]uint32, []byte, error) {
	n, rest, err := readUint32(data)
	if err != nil {
		return nil, nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		v, r, err := readUint32(rest)
		if err != nil {
			return nil, nil, err
		}
		out[i] = v
		rest = r
	}
	return out, rest, nil
}
