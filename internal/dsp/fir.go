// Package dsp holds the offline filtering used by the analyze tool:
// windowed-sinc FIR design and same-length convolution, enough to
// band-limit raw electrode traces to the EEG band.
package dsp

import "math"

// sinc is the normalized sinc function sin(pi x)/(pi x).
func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// DesignLowpass builds a Hamming-windowed sinc low-pass FIR with unity
// DC gain. fc and fs are in Hz, numTaps should be odd.
func DesignLowpass(fc, fs float64, numTaps int) []float64 {
	fcNorm := fc / fs
	m := float64(numTaps - 1)
	h := make([]float64, numTaps)

	var sum float64
	for i := range h {
		n := float64(i)
		v := 2 * fcNorm * sinc(2*fcNorm*(n-m/2))
		v *= 0.54 - 0.46*math.Cos(2*math.Pi*n/m)
		h[i] = v
		sum += v
	}
	for i := range h {
		h[i] /= sum
	}
	return h
}

// DesignHighpass builds a high-pass FIR by spectral inversion of the
// corresponding low-pass.
func DesignHighpass(fc, fs float64, numTaps int) []float64 {
	h := DesignLowpass(fc, fs, numTaps)
	for i := range h {
		h[i] = -h[i]
	}
	h[numTaps/2] += 1
	return h
}

// Convolve computes the convolution of x with kernel h, trimmed to the
// length of x with the kernel centered ("same" mode).
func Convolve(x, h []float64) []float64 {
	n := len(x)
	k := len(h)
	if n == 0 || k == 0 {
		return nil
	}

	full := make([]float64, n+k-1)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			full[i+j] += x[i] * h[j]
		}
	}

	start := (k - 1) / 2
	out := make([]float64, n)
	copy(out, full[start:start+n])
	return out
}

// Bandpass applies a high-pass at low Hz followed by a low-pass at
// high Hz, both designed for sample rate fs.
func Bandpass(x []float64, low, high, fs float64, hpTaps, lpTaps int) []float64 {
	hp := Convolve(x, DesignHighpass(low, fs, hpTaps))
	return Convolve(hp, DesignLowpass(high, fs, lpTaps))
}

// Stats summarizes one channel of filtered samples.
type Stats struct {
	Mean       float64
	RMS        float64
	PeakToPeak float64
}

// Summarize computes Stats over x. An empty input yields zeros.
func Summarize(x []float64) Stats {
	if len(x) == 0 {
		return Stats{}
	}

	var sum, sumSq float64
	min, max := x[0], x[0]
	for _, v := range x {
		sum += v
		sumSq += v * v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	n := float64(len(x))
	return Stats{
		Mean:       sum / n,
		RMS:        math.Sqrt(sumSq / n),
		PeakToPeak: max - min,
	}
}
