// Package mpc implements the receding-horizon trajectory optimizer and the
// preprocessing that feeds it: latency compensation and tracking-error
// estimation.
//
// The horizon decision vector holds N state tuples (x, y, psi, v, cte, epsi)
// and N-1 control tuples (delta, a), laid out by kind: all x values, then all
// y values, and so on. Layout maps kinds to spans of that buffer.
//
// Steering angles are counter-clockwise positive throughout this package.
package mpc
