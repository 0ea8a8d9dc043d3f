// Package sim is a kinematic stand-in for a foreign physics engine.
//
// A World advances bodies by their linear and angular velocity at a fixed
// step and publishes each result to the body's motion.State, playing the
// role of the simulation goroutine. It does not detect collisions or solve
// constraints.
package sim
