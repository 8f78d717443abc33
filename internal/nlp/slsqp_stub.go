//go:build !nlopt

package nlp

import "github.com/pkg/errors"

func newSLSQP(opts Options) (Solver, error) {
	return nil, errors.New("nlp: slsqp backend requires a build with the nlopt tag")
}
