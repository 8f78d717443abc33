// Package nlp solves smooth nonlinear programs of the form
//
//	minimise   f(x)
//	subject to gl <= g(x) <= gu
//	           xl <= x <= xu
//
// Rows with gl == gu are equality constraints. Two backends are provided:
// "auglag", a pure Go augmented Lagrangian method on top of gonum/optimize,
// and "slsqp", NLopt's sequential quadratic programming solver, available
// in builds with the nlopt tag.
package nlp
