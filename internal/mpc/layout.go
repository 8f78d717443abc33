package mpc

// Span is a contiguous run of one variable kind in the decision vector.
type Span struct {
	Start, Len int
}

func (s Span) At(t int) int {
	return s.Start + t
}

func (s Span) Slice(buf []float64) []float64 {
	return buf[s.Start : s.Start+s.Len]
}

const (
	kindX = iota
	kindY
	kindPsi
	kindV
	kindCTE
	kindEPsi
	numStateKinds
)

// Layout indexes a horizon of Steps state tuples and Steps-1 control tuples.
type Layout struct {
	Steps int

	X, Y, Psi, V, CTE, EPsi Span
	Delta, A                Span
}

func NewLayout(steps int) Layout {
	l := Layout{Steps: steps}
	next := 0
	span := func(n int) Span {
		s := Span{Start: next, Len: n}
		next += n
		return s
	}
	l.X = span(steps)
	l.Y = span(steps)
	l.Psi = span(steps)
	l.V = span(steps)
	l.CTE = span(steps)
	l.EPsi = span(steps)
	l.Delta = span(steps - 1)
	l.A = span(steps - 1)
	return l
}

// States returns the state spans in kind order.
func (l Layout) States() [numStateKinds]Span {
	return [numStateKinds]Span{l.X, l.Y, l.Psi, l.V, l.CTE, l.EPsi}
}

func (l Layout) NumVars() int {
	return numStateKinds*l.Steps + 2*(l.Steps-1)
}

func (l Layout) NumConstraints() int {
	return numStateKinds * l.Steps
}

// Row is the constraint row for state kind k at step t: row t=0 pins the
// initial state, row t>0 holds the residual of the transition t-1 -> t.
func (l Layout) Row(kind, t int) int {
	return kind*l.Steps + t
}

// local returns the decision-vector indices of the variables that drive the
// transition out of step t, in the order x, y, psi, v, cte, epsi, delta, a.
func (l Layout) local(t int) [numLocal]int {
	return [numLocal]int{
		l.X.At(t), l.Y.At(t), l.Psi.At(t), l.V.At(t),
		l.CTE.At(t), l.EPsi.At(t), l.Delta.At(t), l.A.At(t),
	}
}

// Vars is a named view over a decision vector. The slices alias the buffer.
type Vars struct {
	X, Y, Psi, V, CTE, EPsi []float64
	Delta, A                []float64
}

func (l Layout) View(buf []float64) Vars {
	return Vars{
		X:     l.X.Slice(buf),
		Y:     l.Y.Slice(buf),
		Psi:   l.Psi.Slice(buf),
		V:     l.V.Slice(buf),
		CTE:   l.CTE.Slice(buf),
		EPsi:  l.EPsi.Slice(buf),
		Delta: l.Delta.Slice(buf),
		A:     l.A.Slice(buf),
	}
}
