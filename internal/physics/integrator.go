package physics

import "math"

// Vec3 is a lightweight vector helper used by the reconciliation and scheduling code.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// Add returns the component-wise sum.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

// Sub returns the component-wise difference.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

// Scale multiplies every component by s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s} }

// LengthSq returns the squared magnitude.
func (v Vec3) LengthSq() float64 { return v.X*v.X + v.Y*v.Y + v.Z*v.Z }

// Length returns the magnitude.
func (v Vec3) Length() float64 { return math.Sqrt(v.LengthSq()) }

// DistanceTo returns the euclidean distance between two points.
func (v Vec3) DistanceTo(o Vec3) float64 { return v.Sub(o).Length() }

// IsFinite reports whether every component is a finite number.
func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// Lerp blends from a toward b by t, where t=0 yields a and t=1 yields b.
func Lerp(a, b Vec3, t float64) Vec3 {
	return Vec3{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
	}
}

// GroundDistanceSq returns the squared distance on the XZ ground plane.
func GroundDistanceSq(ax, az, bx, bz float64) float64 {
	dx := ax - bx
	dz := az - bz
	return dx*dx + dz*dz
}

// ClampMagnitude scales the vector down so its magnitude does not exceed limit.
// A non-positive limit disables the clamp.
func ClampMagnitude(v Vec3, limit float64) Vec3 {
	if !(limit > 0) {
		return v
	}
	magnitudeSq := v.LengthSq()
	if magnitudeSq == 0 || magnitudeSq <= limit*limit {
		return v
	}
	//1.- Scale each axis uniformly so the resulting magnitude matches the limit.
	return v.Scale(limit / math.Sqrt(magnitudeSq))
}

// Integrate advances position by velocity over step seconds using explicit Euler.
func Integrate(position, velocity Vec3, stepSeconds float64) Vec3 {
	//1.- Skip integration when the timestep is invalid so callers can pass raw frame deltas.
	if !(stepSeconds > 0) || !isFinite(stepSeconds) {
		return position
	}
	return position.Add(velocity.Scale(stepSeconds))
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
