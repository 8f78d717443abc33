package nlp

// better reports whether (f, viol) improves on the incumbent: feasible points
// beat infeasible ones, then lower objective or lower violation wins.
func better(f, viol, bestF, bestViol, feasTol float64) bool {
	feasible, bestFeasible := viol <= feasTol, bestViol <= feasTol
	switch {
	case feasible && !bestFeasible:
		return true
	case !feasible && bestFeasible:
		return false
	case feasible:
		return f < bestF
	default:
		return viol < bestViol
	}
}
