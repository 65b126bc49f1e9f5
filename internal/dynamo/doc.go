// Package dynamo provides the core state primitives for lazily simulated bodies.
//
// The package defines the types shared by every layer of the simulation:
//
//   - [Body]: one simulated object (transform, velocity, grounded flag, last update)
//   - [Integrator]: advances a [Body] by an elapsed-time fraction
//   - [IndexError]: an out-of-range body access
//
// A body is never stepped in the background. The query engine in package sim
// computes the elapsed-time fraction since the body's last query and hands it
// to an [Integrator] while holding that body's lock.
//
// # Transform layout
//
// The transform is an [mgl32.Mat4] in column-major order, so the translation
// occupies cells 12 (X), 13 (Y) and 14 (Z):
//
//	b := dynamo.NewBody(start)
//	b.Move(mgl32.Vec3{-3, 10, 1.2})
//	y := b.Y()
//
// # Thread Safety
//
// Body values are NOT thread-safe. Package sim wraps each one in its own
// mutex and never hands out a body without holding it.
package dynamo
