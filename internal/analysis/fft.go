package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/mpcdrive/internal/dynamo"
)

// PowerSpectrum returns the one-sided power of data sampled at rate Hz and
// the frequency of each bin. The mean is removed and a Hann window applied.
func PowerSpectrum(data []float64, rate float64) (freqs, power []float64) {
	n := len(data)
	if n < 2 {
		return nil, nil
	}

	seq := make([]float64, n)
	mean := stat.Mean(data, nil)
	for i, v := range data {
		seq[i] = v - mean
	}
	window.Hann(seq)

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, seq)

	freqs = make([]float64, len(coeff))
	power = make([]float64, len(coeff))
	for i, c := range coeff {
		freqs[i] = fft.Freq(i) * rate
		a := cmplx.Abs(c)
		power[i] = a * a / float64(n)
	}
	return freqs, power
}

// DominantFrequency is the frequency of the strongest bin above DC, and its
// share of the total non-DC power.
func DominantFrequency(data []float64, rate float64) (freq, share float64) {
	freqs, power := PowerSpectrum(data, rate)
	if len(power) < 2 {
		return 0, 0
	}
	best, total := 1, 0.0
	for i := 1; i < len(power); i++ {
		total += power[i]
		if power[i] > power[best] {
			best = i
		}
	}
	if total == 0 {
		return 0, 0
	}
	return freqs[best], power[best] / total
}

// Report summarises the steering commands of a run.
type Report struct {
	DominantHz float64
	// Share is the fraction of steering power in the dominant bin.
	Share         float64
	ZeroCrossings int
	RMS           float64
	Samples       int
}

// Weaving reports a steering signal concentrated in one oscillation above
// 0.2 Hz. Tracking a curving road spreads power over low frequencies.
func (r Report) Weaving() bool {
	return r.Samples >= 16 && r.DominantHz > 0.2 && r.Share > 0.25 && r.RMS > 0.05
}

// Oscillation analyses the steering commands of samples taken every period
// seconds. Skipped ticks hold the previous command.
func Oscillation(samples []dynamo.Sample, period float64) Report {
	steer := make([]float64, 0, len(samples))
	last := 0.0
	for _, s := range samples {
		if !s.Skipped {
			last = s.Command.Steering
		}
		steer = append(steer, last)
	}

	rep := Report{Samples: len(steer)}
	if len(steer) == 0 || period <= 0 {
		return rep
	}

	sq := 0.0
	for i, v := range steer {
		sq += v * v
		if i > 0 && math.Signbit(v) != math.Signbit(steer[i-1]) && v != 0 && steer[i-1] != 0 {
			rep.ZeroCrossings++
		}
	}
	rep.RMS = math.Sqrt(sq / float64(len(steer)))
	rep.DominantHz, rep.Share = DominantFrequency(steer, 1/period)
	return rep
}
