// Package control runs one planning cycle per telemetry event.
//
// A [Loop] chains the cycle stages in order:
//
//   - delay compensation of the pose using the command in flight
//   - world to vehicle frame transform of the waypoints
//   - cubic fit of the reference path
//   - cross-track and heading error estimation
//   - the horizon solve
//
// and returns the first actuation together with the predicted and reference
// points used for visualisation. [PID] is a baseline driver sharing the same
// front half of the pipeline, used by the offline tools for comparison.
//
// Both implement [Controller]:
//
//	loop, err := control.NewLoop(cfg, nil, logger)
//	out, err := loop.Step(ctx, obs)
//	// out.Command is ready for the wire
package control
