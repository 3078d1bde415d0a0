/*
 * Copyright 2025 Ted Dunning
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package support

/*
NearestFraction finds the best approximation c/d ≈ a/b such that d <= maxDenominator.

Returns c, d and the error a/b - c/d as floating point.

A clock generator divider has the form x + y/z with z limited to 20 bits. Just
setting z to 2^20-1 quantizes the ratio badly enough that neighbouring output
frequencies a hertz apart collapse into one. The best rational approximation
of the ratio instead is usually good to well under a millihertz.
*/
func NearestFraction(a, b, maxDenominator uint64) (c, d uint64, eps float64) {
	c, d = convergent(a, b, maxDenominator)
	eps = float64(a)/float64(b) - float64(c)/float64(d)
	return c, d, eps
}

/*
convergent returns the last convergent h/k of the continued fraction of a/b
whose denominator k does not exceed maxDenominator.

Writing a/b = t0 + 1/(t1 + 1/(t2 + ...)), the convergents follow the
recurrence

	h[i] = t[i]*h[i-1] + h[i-2]    with h[-1] = 1, h[-2] = 0
	k[i] = t[i]*k[i-1] + k[i-2]    with k[-1] = 0, k[-2] = 1

and each is the best rational approximation for its denominator size. We walk
the Euclidean algorithm on (a, b) to produce the terms and stop just before the
denominator grows too big or when the expansion ends.

If even the first convergent is too big (maxDenominator == 0) the result is
1/0.
*/
func convergent(a, b, maxDenominator uint64) (h, k uint64) {
	h1, h2 := uint64(1), uint64(0)
	k1, k2 := uint64(0), uint64(1)
	for {
		t := a / b
		h, k = t*h1+h2, t*k1+k2
		if k > maxDenominator {
			if k1 == 0 {
				return 1, 0
			}
			return h1, k1
		}
		rem := a - t*b
		if rem == 0 {
			return h, k
		}
		h1, h2 = h, h1
		k1, k2 = k, k1
		a, b = b, rem
	}
}
