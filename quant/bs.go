package quant

import "math"

// OptionType selects the payoff of a vanilla European option.
type OptionType uint8

const (
	Call OptionType = iota
	Put
)

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func d1(s, k, r, sigma, tau float64) float64 {
	return (math.Log(s/k) + (r+0.5*sigma*sigma)*tau) / (sigma * math.Sqrt(tau))
}

// BSPrice returns the Black–Scholes value of a European option with no
// dividends. tau is in years; r and sigma are annualized. Degenerate
// inputs (non-positive s, k, sigma or tau) fall back to intrinsic value.
func BSPrice(s, k, r, sigma, tau float64, typ OptionType) float64 {
	if s <= 0 || k <= 0 || sigma <= 0 || tau <= 0 {
		if typ == Call {
			return math.Max(0, s-k)
		}
		return math.Max(0, k-s)
	}
	v1 := d1(s, k, r, sigma, tau)
	v2 := v1 - sigma*math.Sqrt(tau)
	if typ == Call {
		return s*normCDF(v1) - k*math.Exp(-r*tau)*normCDF(v2)
	}
	return k*math.Exp(-r*tau)*normCDF(-v2) - s*normCDF(-v1)
}

// BSDelta returns the option delta. Degenerate inputs collapse to the
// boundary deltas: {0, 1} for calls, {-1, 0} for puts by moneyness.
func BSDelta(s, k, r, sigma, tau float64, typ OptionType) float64 {
	if s <= 0 || k <= 0 || sigma <= 0 || tau <= 0 {
		if typ == Call {
			if s > k {
				return 1
			}
			return 0
		}
		if s > k {
			return 0
		}
		return -1
	}
	nd1 := normCDF(d1(s, k, r, sigma, tau))
	if typ == Call {
		return nd1
	}
	return nd1 - 1
}

// BS returns price and delta together.
func BS(s, k, r, sigma, tau float64, typ OptionType) (price, delta float64) {
	return BSPrice(s, k, r, sigma, tau, typ), BSDelta(s, k, r, sigma, tau, typ)
}
