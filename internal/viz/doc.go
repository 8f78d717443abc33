// Package viz renders a closed-loop run in the terminal.
//
// [Model] is a Bubble Tea program that advances a simulator one control tick
// per frame and draws the track, the driven trail and the planned trajectory
// on a Braille [Canvas], next to live tracking statistics.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	N     - Single tick while paused
//	R     - Restart from the start pose
//	F     - Follow the car or show the whole track
//	T     - Cycle color themes
//	?     - Show help
package viz
