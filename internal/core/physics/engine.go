package physics

import "fmt"

// Constants are the global simulation parameters of one engine.
type Constants struct {
	// G is the gravitational constant in simulation units.
	G float64
	// K is the Coulomb constant in simulation units.
	K float64
	// Damping is the linear velocity damping coefficient.
	Damping float64
	// Restitution governs collision energy retention (0 inelastic, 1 elastic).
	Restitution float64
	// MinDistance is the separation below which pair forces are zeroed
	// instead of divided through, so near-overlaps never produce NaN/Inf.
	MinDistance float64
}

// DefaultConstants returns the simulation-unit defaults.
func DefaultConstants() Constants {
	return Constants{
		G:           1.0,
		K:           1.0,
		Damping:     0.0,
		Restitution: 0.8,
		MinDistance: 1e-6,
	}
}

// Validate checks the constants for values the step loop cannot work with.
func (c Constants) Validate() error {
	if !isFinite(c.G) || !isFinite(c.K) || !isFinite(c.Damping) {
		return fmt.Errorf("%w: non-finite constant", ErrInvalidConstants)
	}
	if c.Restitution < 0 || c.Restitution > 1 || !isFinite(c.Restitution) {
		return fmt.Errorf("%w: restitution %v outside [0,1]", ErrInvalidConstants, c.Restitution)
	}
	if c.MinDistance <= 0 || !isFinite(c.MinDistance) {
		return fmt.Errorf("%w: min distance %v must be positive", ErrInvalidConstants, c.MinDistance)
	}
	return nil
}

// Engine owns the particle list of one room and advances it tick by tick.
// It has no locking of its own; the owning room's lock must be held around
// every call.
type Engine struct {
	objects []*Object
	consts  Constants
	nextID  uint64
	tick    uint64
	forces  []Vec3 // scratch buffer reused across steps
}

// NewEngine creates an empty engine with the given constants.
func NewEngine(consts Constants) *Engine {
	return &Engine{consts: consts}
}

// AddObject appends a new particle and returns its engine-local ID.
// The object list is untouched when validation fails.
func (e *Engine) AddObject(position, velocity Vec3, mass, radius, charge float64) (uint64, error) {
	if mass <= 0 || !isFinite(mass) {
		return 0, fmt.Errorf("%w: mass must be positive, got %v", ErrInvalidParameter, mass)
	}
	if radius < 0 || !isFinite(radius) {
		return 0, fmt.Errorf("%w: radius must be non-negative, got %v", ErrInvalidParameter, radius)
	}
	if !isFinite(charge) {
		return 0, fmt.Errorf("%w: charge must be finite", ErrInvalidParameter)
	}
	if !position.IsFinite() || !velocity.IsFinite() {
		return 0, fmt.Errorf("%w: position and velocity must be finite", ErrInvalidParameter)
	}

	e.nextID++
	e.objects = append(e.objects, &Object{
		ID:       e.nextID,
		Position: position,
		Velocity: velocity,
		Mass:     mass,
		Radius:   radius,
		Charge:   charge,
	})
	return e.nextID, nil
}

// RemoveObject drops the particle with the given ID. Removing an unknown ID
// is a no-op; deletions may race harmlessly with a tick that already dropped
// the object.
func (e *Engine) RemoveObject(id uint64) {
	for i, o := range e.objects {
		if o.ID == id {
			e.objects = append(e.objects[:i], e.objects[i+1:]...)
			return
		}
	}
}

// Clear removes all particles. Idempotent.
func (e *Engine) Clear() {
	e.objects = e.objects[:0]
}

// Len returns the number of live particles.
func (e *Engine) Len() int {
	return len(e.objects)
}

// Tick returns the number of completed steps.
func (e *Engine) Tick() uint64 {
	return e.tick
}

// Constants returns the current simulation constants.
func (e *Engine) Constants() Constants {
	return e.consts
}

// SetConstants replaces the simulation constants after validating them.
func (e *Engine) SetConstants(consts Constants) error {
	if err := consts.Validate(); err != nil {
		return err
	}
	e.consts = consts
	return nil
}

// Energy returns the total kinetic energy of all particles.
func (e *Engine) Energy() float64 {
	total := 0.0
	for _, o := range e.objects {
		total += o.KineticEnergy()
	}
	return total
}

// Step advances the simulation by dt seconds and returns the state of every
// surviving particle. The pairwise loop visits each unordered pair exactly
// once and applies equal and opposite forces, so Newton's third law holds by
// construction. Integration is semi-implicit Euler: velocity first, then
// position with the updated velocity.
func (e *Engine) Step(dt float64) ([]ObjectState, error) {
	n := len(e.objects)
	if cap(e.forces) < n {
		e.forces = make([]Vec3, n)
	}
	forces := e.forces[:n]
	for i := range forces {
		forces[i] = Vec3{}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			f := e.pairForce(e.objects[i], e.objects[j])
			forces[i] = forces[i].Add(f)
			forces[j] = forces[j].Sub(f)
		}
	}

	for i, o := range e.objects {
		f := forces[i].Sub(o.Velocity.Scale(e.consts.Damping))
		o.Velocity = o.Velocity.Add(f.Scale(dt / o.Mass))
		o.Position = o.Position.Add(o.Velocity.Scale(dt))
		if !o.Position.IsFinite() || !o.Velocity.IsFinite() {
			return nil, fmt.Errorf("%w: object %d at tick %d", ErrNumericalInstability, o.ID, e.tick)
		}
	}

	e.resolveCollisions()
	e.tick++

	states := make([]ObjectState, n)
	for i, o := range e.objects {
		states[i] = ObjectState{ID: o.ID, Position: o.Position, Velocity: o.Velocity}
	}
	return states, nil
}

// pairForce returns the force exerted on a by b; attraction points from a
// toward b. The caller applies the exact negation to b.
func (e *Engine) pairForce(a, b *Object) Vec3 {
	delta := b.Position.Sub(a.Position)
	r := delta.Len()
	if r < e.consts.MinDistance {
		return Vec3{}
	}
	invR2 := 1.0 / (r * r)
	dir := delta.Scale(1.0 / r)

	// Gravity always attracts; the Coulomb term repels when the charge
	// product is positive and attracts when it is negative.
	gravity := e.consts.G * a.Mass * b.Mass * invR2
	coulomb := e.consts.K * a.Charge * b.Charge * invR2

	return dir.Scale(gravity - coulomb)
}

// resolveCollisions runs one elastic collision pass over all overlapping
// pairs: impulse along the contact normal scaled by the restitution
// coefficient, then positional separation by half the overlap on each side
// so resting contacts do not sink into each other.
func (e *Engine) resolveCollisions() {
	n := len(e.objects)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := e.objects[i], e.objects[j]
			delta := b.Position.Sub(a.Position)
			r := delta.Len()
			sum := a.Radius + b.Radius
			if r >= sum || r < e.consts.MinDistance {
				// Not touching, or centers so close no contact normal
				// can be derived.
				continue
			}
			normal := delta.Scale(1.0 / r)

			// Impulse only when the pair is still approaching; separating
			// pairs already had their bounce.
			relVel := b.Velocity.Sub(a.Velocity).Dot(normal)
			if relVel < 0 {
				impulse := -(1 + e.consts.Restitution) * relVel / (1/a.Mass + 1/b.Mass)
				a.Velocity = a.Velocity.Sub(normal.Scale(impulse / a.Mass))
				b.Velocity = b.Velocity.Add(normal.Scale(impulse / b.Mass))
			}

			half := (sum - r) / 2
			a.Position = a.Position.Sub(normal.Scale(half))
			b.Position = b.Position.Add(normal.Scale(half))
		}
	}
}
