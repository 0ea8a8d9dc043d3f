// Package motion carries simulation results from the simulation goroutine to
// consumer goroutines.
//
// Each simulated body owns a State: a small buffer in the foreign heap that
// holds the body's latest world location and rotation together with a
// publication counter. The simulation calls Publish once per step. Consumers
// call ApplyTo at their own cadence, which writes the latest pair onto a
// Frame only when something new was published.
//
// Reads and writes of one buffer go through the heap's Load and Store, which
// never interleave for the same object, so a reader always sees a location
// and rotation from the same step.
//
// Frames that have a parent receive parent-relative values by default:
//
//	local = S⁻¹ ⊙ R⁻¹(world - T)
//	rot   = R⁻¹ * worldRot
//
// where T, R, S are the parent's world translation, rotation, and scale.
// Use SetConvention(World) to write physics-space values unchanged.
package motion
