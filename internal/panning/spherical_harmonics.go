package panning

import "math"

// factorial returns n! for small non-negative n (HOA orders used here
// never exceed a few tens).
func factorial(n int) float64 {
	f := 1.0
	for i := 2; i <= n; i++ {
		f *= float64(i)
	}
	return f
}

// associatedLegendre evaluates P_n^m(x) for m >= 0 via the standard
// stable recurrence (Numerical Recipes form).
func associatedLegendre(n, m int, x float64) float64 {
	pmm := 1.0
	if m > 0 {
		somx2 := math.Sqrt((1 - x) * (1 + x))
		fact := 1.0
		for i := 1; i <= m; i++ {
			pmm *= -fact * somx2
			fact += 2
		}
	}
	if n == m {
		return pmm
	}
	pmmp1 := x * float64(2*m+1) * pmm
	if n == m+1 {
		return pmmp1
	}
	var pnn float64
	for l := m + 2; l <= n; l++ {
		pnn = (x*float64(2*l-1)*pmmp1 - float64(l+m-1)*pmm) / float64(l-m)
		pmm = pmmp1
		pmmp1 = pnn
	}
	return pnn
}

// RealSphericalHarmonic evaluates the SN3D-normalised real spherical
// harmonic of degree n and order m (-n <= m <= n) at the given
// azimuth/elevation (radians), in the Ambisonic Channel Number (ACN)
// convention used to order HOA channels elsewhere in this package.
func RealSphericalHarmonic(n, m int, azimuth, elevation float64) float64 {
	absM := m
	if absM < 0 {
		absM = -absM
	}
	norm := math.Sqrt(2 * factorial(n-absM) / factorial(n+absM))
	if m == 0 {
		norm = math.Sqrt(factorial(n-absM) / factorial(n+absM))
	}
	p := associatedLegendre(n, absM, math.Sin(elevation))
	var trig float64
	if m >= 0 {
		trig = math.Cos(float64(absM) * azimuth)
	} else {
		trig = math.Sin(float64(absM) * azimuth)
	}
	return norm * p * trig
}

// ACNToDegreeOrder decodes an Ambisonic Channel Number index into its
// (degree, order) pair: i = n^2 + n + m.
func ACNToDegreeOrder(acn int) (n, m int) {
	n = int(math.Sqrt(float64(acn)))
	m = acn - n*(n+1)
	return n, m
}

// NumHarmonics reports the channel count of a full HOA signal of the
// given order: (order+1)^2.
func NumHarmonics(order int) int {
	return (order + 1) * (order + 1)
}
