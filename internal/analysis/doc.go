// Package analysis characterises the closed-loop steering signal.
//
// Weight tunings with too little rate penalty make the vehicle weave; the
// weave shows up as a narrow peak in the steering spectrum:
//
//   - [PowerSpectrum]: one-sided power of a uniformly sampled signal
//   - [DominantFrequency]: strongest non-DC component in Hz
//   - [Oscillation]: summary of a run's steering commands
//
// # Usage
//
//	rep := analysis.Oscillation(result.Samples, period)
//	if rep.Weaving() {
//	    // raise weights.steer_rate
//	}
package analysis
