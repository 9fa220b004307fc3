package math

import (
	m "math"
	"time"

	"golang.org/x/exp/rand"
)

const (
	/** @brief An approximate representation of PI. */
	K_PI float32 = 3.14159265358979323846
	/** @brief An approximate representation of PI multiplied by 2. */
	K_PI_2 float32 = 2.0 * K_PI
	/** @brief An approximate representation of PI divided by 2. */
	K_HALF_PI float32 = 0.5 * K_PI
	/** @brief Smallest positive number where 1.0 + FLOAT_EPSILON != 0 */
	K_FLOAT_EPSILON float32 = 1.192092896e-07
)

var rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))

func ksin(x float32) float32 {
	return float32(m.Sin(float64(x)))
}

func kcos(x float32) float32 {
	return float32(m.Cos(float64(x)))
}

func ksqrt(x float32) float32 {
	return float32(m.Sqrt(float64(x)))
}

func kabs(x float32) float32 {
	return float32(m.Abs(float64(x)))
}

func Sin(x float32) float32 { return ksin(x) }
func Cos(x float32) float32 { return kcos(x) }

// Seed resets the package random source, for reproducible runs.
func Seed(seed uint64) {
	rng.Seed(seed)
}

// RandomInRange returns an integer in [min, max].
func RandomInRange(min, max int32) int32 {
	if max <= min {
		return min
	}
	return min + rng.Int31n(max-min+1)
}

// FRandomInRange returns a float in [min, max).
func FRandomInRange(min, max float32) float32 {
	return min + rng.Float32()*(max-min)
}

// ------------------------------------------
// Vector 2
// ------------------------------------------

func NewVec2(x, y float32) Vec2 {
	return Vec2{X: x, Y: y}
}

func NewVec2One() Vec2 {
	return Vec2{X: 1, Y: 1}
}

func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{X: v.X - other.X, Y: v.Y - other.Y}
}

func (v Vec2) Mul(other Vec2) Vec2 {
	return Vec2{X: v.X * other.X, Y: v.Y * other.Y}
}

func (v Vec2) Scale(s float32) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

func (v Vec2) LengthSquared() float32 {
	return v.X*v.X + v.Y*v.Y
}

func (v Vec2) Length() float32 {
	return ksqrt(v.LengthSquared())
}

// Compare reports whether every component of v is within tolerance of other.
func (v Vec2) Compare(other Vec2, tolerance float32) bool {
	return kabs(v.X-other.X) <= tolerance && kabs(v.Y-other.Y) <= tolerance
}

// FromAngle returns a vector of the given length pointing at angle radians.
func FromAngle(angle, length float32) Vec2 {
	return Vec2{X: kcos(angle) * length, Y: ksin(angle) * length}
}

// ------------------------------------------
// Rect
// ------------------------------------------

func NewRect(x, y, w, h float32) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Overlaps reports whether r and o touch or intersect, edges included.
func (r Rect) Overlaps(o Rect) bool {
	return r.X <= o.X+o.W && r.X+r.W >= o.X && r.Y <= o.Y+o.H && r.Y+r.H >= o.Y
}

func (r URect) Empty() bool {
	return r.W == 0 || r.H == 0
}

// Intersects reports whether r and o share at least one pixel.
func (r URect) Intersects(o URect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Contains reports whether o lies entirely inside r.
func (r URect) Contains(o URect) bool {
	return o.X >= r.X && o.Y >= r.Y && o.X+o.W <= r.X+r.W && o.Y+o.H <= r.Y+r.H
}

func (r URect) Area() uint64 {
	return uint64(r.W) * uint64(r.H)
}

// ------------------------------------------
// Color
// ------------------------------------------

func NewColor(r, g, b, a float32) Color {
	return Color{X: r, Y: g, Z: b, W: a}
}

func (c Color) WithAlpha(a float32) Color {
	c.W = Clamp(a, 0, 1)
	return c
}

func (c Color) Array() [4]float32 {
	return [4]float32{c.X, c.Y, c.Z, c.W}
}

// ------------------------------------------
// Affine2D
// ------------------------------------------

func NewAffineIdentity() Affine2D {
	return Affine2D{A: 1, D: 1}
}

// NewAffineTRS builds translate * rotate * scale * translate(-origin).
// The origin is expressed in the scaled space, in units of the quad size.
func NewAffineTRS(position Vec2, rotation float32, scale Vec2, origin Vec2) Affine2D {
	c, s := float32(1), float32(0)
	if rotation != 0 {
		c, s = kcos(rotation), ksin(rotation)
	}
	a := c * scale.X
	b := s * scale.X
	cc := -s * scale.Y
	d := c * scale.Y
	ox, oy := origin.X, origin.Y
	return Affine2D{
		A: a, B: b,
		C: cc, D: d,
		E: position.X - (a*ox + cc*oy),
		F: position.Y - (b*ox + d*oy),
	}
}

func (t Affine2D) Apply(p Vec2) Vec2 {
	return Vec2{
		X: t.A*p.X + t.C*p.Y + t.E,
		Y: t.B*p.X + t.D*p.Y + t.F,
	}
}

// Mul returns t * o, applying o first.
func (t Affine2D) Mul(o Affine2D) Affine2D {
	return Affine2D{
		A: t.A*o.A + t.C*o.B,
		B: t.B*o.A + t.D*o.B,
		C: t.A*o.C + t.C*o.D,
		D: t.B*o.C + t.D*o.D,
		E: t.A*o.E + t.C*o.F + t.E,
		F: t.B*o.E + t.D*o.F + t.F,
	}
}

func (t Affine2D) Array() [6]float32 {
	return [6]float32{t.A, t.B, t.C, t.D, t.E, t.F}
}
