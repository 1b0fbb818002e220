package l4segment

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SavGolCoefficients returns the smoothing weights of a Savitzky–Golay
// filter: the value at the window centre of the least-squares polynomial of
// the given order. window must be odd and larger than order.
func SavGolCoefficients(window, order int) ([]float64, error) {
	if window < 1 || window%2 == 0 {
		return nil, fmt.Errorf("savitzky-golay window must be a positive odd number, got %d", window)
	}
	if order < 0 || order >= window {
		return nil, fmt.Errorf("savitzky-golay order %d must be in [0, %d)", order, window)
	}
	half := window / 2
	if half == 0 {
		return []float64{1}, nil
	}

	// Vandermonde matrix over x in [-1, 1]; scaling x keeps AᵀA well
	// conditioned and does not change the constant term.
	a := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		x := float64(i-half) / float64(half)
		v := 1.0
		for p := 0; p <= order; p++ {
			a.Set(i, p, v)
			v *= x
		}
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	var pinv mat.Dense
	if err := pinv.Solve(&ata, a.T()); err != nil {
		return nil, fmt.Errorf("failed to solve savitzky-golay normal equations: %w", err)
	}
	return mat.Row(nil, 0, &pinv), nil
}

// Smooth applies a Savitzky–Golay filter to x, padding both ends by
// repeating the edge sample.
func Smooth(x []float64, window, order int) ([]float64, error) {
	if len(x) < window {
		return nil, fmt.Errorf("%w: %d samples, smoothing window needs %d", ErrSequenceTooShort, len(x), window)
	}
	coef, err := SavGolCoefficients(window, order)
	if err != nil {
		return nil, err
	}
	half := window / 2
	n := len(x)
	buf := make([]float64, window)
	out := make([]float64, n)
	for i := range x {
		for k := range buf {
			j := i + k - half
			if j < 0 {
				j = 0
			} else if j >= n {
				j = n - 1
			}
			buf[k] = x[j]
		}
		out[i] = floats.Dot(coef, buf)
	}
	return out, nil
}

// LocalMaxima returns indices strictly greater than every sample within
// order positions on either side. Neighbour indices are clipped to the
// signal, so the first and last samples are never extrema.
func LocalMaxima(x []float64, order int) []int {
	return localExtrema(x, order, func(a, b float64) bool { return a > b })
}

// LocalMinima is LocalMaxima with the comparison reversed.
func LocalMinima(x []float64, order int) []int {
	return localExtrema(x, order, func(a, b float64) bool { return a < b })
}

func localExtrema(x []float64, order int, better func(a, b float64) bool) []int {
	var out []int
	n := len(x)
	for i := range x {
		ok := true
		for k := 1; k <= order && ok; k++ {
			lo, hi := i-k, i+k
			if lo < 0 {
				lo = 0
			}
			if hi > n-1 {
				hi = n - 1
			}
			ok = better(x[i], x[lo]) && better(x[i], x[hi])
		}
		if ok && order > 0 {
			out = append(out, i)
		}
	}
	return out
}
