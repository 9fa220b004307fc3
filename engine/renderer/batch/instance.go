package batch

import (
	"encoding/binary"
	stdmath "math"

	"github.com/spaghettifunk/anima2d/engine/math"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

// Instance record layout, little endian, matching the sprite vertex shader:
//
//	 0  affine   6 x float32   (a b c d e f), maps the unit quad to world space
//	24  layer    uint32
//	28  depth    float32
//	32  uv       4 x float32   (u v w h), negative w or h flips
//	48  tint     4 x float32   (r g b a)
const (
	offAffine = 0
	offLayer  = 24
	offDepth  = 28
	offUV     = 32
	offTint   = 48
)

// Instance is the decoded form of one record, used by tests and tooling.
type Instance struct {
	Affine math.Affine2D
	Layer  uint32
	Depth  float32
	UV     [4]float32
	Tint   math.Color
}

func encode(dst []byte, r *metadata.SpriteDrawRequest, region metadata.Region) {
	size := r.Size
	if size.X == 0 && size.Y == 0 {
		w, h := region.Rect.W, region.Rect.H
		if !r.Source.Empty() {
			w, h = r.Source.W, r.Source.H
		}
		size = math.Vec2{X: float32(w), Y: float32(h)}
	}
	affine := math.NewAffineTRS(r.Position, r.Rotation, size, r.Origin)

	uv := region.UV(r.Source)
	if r.FlipX {
		uv[0] += uv[2]
		uv[2] = -uv[2]
	}
	if r.FlipY {
		uv[1] += uv[3]
		uv[3] = -uv[3]
	}

	tint := r.Tint
	if tint == (math.Color{}) {
		tint = math.White
	}

	m := affine.Array()
	c := tint.Array()
	putFloats(dst[offAffine:], m[:]...)
	binary.LittleEndian.PutUint32(dst[offLayer:], region.Layer)
	putFloats(dst[offDepth:], r.Depth)
	putFloats(dst[offUV:], uv[:]...)
	putFloats(dst[offTint:], c[:]...)
}

func putFloats(dst []byte, fs ...float32) {
	for i, f := range fs {
		binary.LittleEndian.PutUint32(dst[i*4:], stdmath.Float32bits(f))
	}
}

func getFloat(src []byte) float32 {
	return stdmath.Float32frombits(binary.LittleEndian.Uint32(src))
}

// Decode reads instance i back out of an instance buffer.
func Decode(instances []byte, i int) Instance {
	rec := instances[i*metadata.InstanceStride : (i+1)*metadata.InstanceStride]
	var in Instance
	in.Affine = math.Affine2D{
		A: getFloat(rec[0:]), B: getFloat(rec[4:]),
		C: getFloat(rec[8:]), D: getFloat(rec[12:]),
		E: getFloat(rec[16:]), F: getFloat(rec[20:]),
	}
	in.Layer = binary.LittleEndian.Uint32(rec[offLayer:])
	in.Depth = getFloat(rec[offDepth:])
	for j := range in.UV {
		in.UV[j] = getFloat(rec[offUV+j*4:])
	}
	in.Tint = math.Color{
		X: getFloat(rec[offTint:]), Y: getFloat(rec[offTint+4:]),
		Z: getFloat(rec[offTint+8:]), W: getFloat(rec[offTint+12:]),
	}
	return in
}
