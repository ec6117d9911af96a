package physics

// Object is a point-mass particle owned by exactly one Engine.
type Object struct {
	ID       uint64
	Position Vec3
	Velocity Vec3
	Mass     float64
	Radius   float64
	Charge   float64
}

// ObjectState is the per-tick snapshot of one particle.
type ObjectState struct {
	ID       uint64 `json:"id"`
	Position Vec3   `json:"position"`
	Velocity Vec3   `json:"velocity"`
}

// KineticEnergy returns ½·m·v² for the object.
func (o *Object) KineticEnergy() float64 {
	return 0.5 * o.Mass * o.Velocity.LenSq()
}
