// Package dynamo provides the core types shared by the controller, the
// plant model and the offline simulator.
//
//   - [State], [Control]: plain vectors stepped by an [Integrator]
//   - [System]: continuous-time plant dX/dt = f(X, u, t)
//   - [Pose], [VehicleState]: world pose and the optimizer's 6-tuple
//   - [Actuation], [Command]: optimizer and wire forms of a control pair
//   - [Metric], [Observer]: per-tick consumers of [Sample]
//
// # Steering convention
//
// Inside the controller a positive steering angle turns the vehicle
// counter-clockwise (psi increases). The simulator uses the opposite sign
// on the wire. [Actuation.Command] and [Command.Actuation] are the only
// conversions between the two.
package dynamo
