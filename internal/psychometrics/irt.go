package psychometrics

import (
	"math"

	"github.com/metriq-ai/metriq/internal/storage"
)

const (
	irtMaxIterations = 100
	irtTolerance     = 1e-6
	irtCorrectCutoff = 0.5 // normalised item score at or above counts as correct
)

// fit2PL estimates the two-parameter logistic model for one item from
// (normalised item score, overall score) pairs. Ability is the
// standardised overall score; the response is dichotomised at the cutoff.
// Returns ok=false when the estimate does not converge or the data is
// degenerate (all correct, all incorrect, no ability spread).
func fit2PL(pairs []storage.ItemResponsePair) (a, b float64, ok bool) {
	n := len(pairs)
	if n < 10 {
		return 0, 0, false
	}

	theta := make([]float64, n)
	u := make([]float64, n)
	var mean, correct float64
	for i, p := range pairs {
		theta[i] = p.Overall
		mean += p.Overall
		if p.ItemScore >= irtCorrectCutoff {
			u[i] = 1
			correct++
		}
	}
	if correct == 0 || correct == float64(n) {
		return 0, 0, false
	}
	mean /= float64(n)

	var variance float64
	for i := range theta {
		variance += (theta[i] - mean) * (theta[i] - mean)
	}
	variance /= float64(n)
	if variance < 1e-9 {
		return 0, 0, false
	}
	sd := math.Sqrt(variance)
	for i := range theta {
		theta[i] = (theta[i] - mean) / sd
	}

	// Newton-Raphson on the 2PL log-likelihood in (a, b).
	a, b = 1.0, 0.0
	for iter := 0; iter < irtMaxIterations; iter++ {
		var ga, gb, haa, hbb, hab float64
		for i := range theta {
			z := a * (theta[i] - b)
			p := 1 / (1 + math.Exp(-z))
			w := p * (1 - p)
			diff := u[i] - p

			ga += diff * (theta[i] - b)
			gb += diff * -a
			haa -= w * (theta[i] - b) * (theta[i] - b)
			hbb -= w * a * a
			hab -= w * -a * (theta[i] - b)
		}

		det := haa*hbb - hab*hab
		if math.Abs(det) < 1e-12 {
			return 0, 0, false
		}
		da := (hbb*ga - hab*gb) / det
		dbv := (haa*gb - hab*ga) / det
		a -= da
		b -= dbv

		if math.IsNaN(a) || math.IsNaN(b) || math.Abs(a) > 50 || math.Abs(b) > 50 {
			return 0, 0, false
		}
		if math.Abs(da) < irtTolerance && math.Abs(dbv) < irtTolerance {
			return a, b, true
		}
	}
	return 0, 0, false
}

// pointBiserial is the Pearson correlation between the normalised item
// score and the respondent's overall score.
func pointBiserial(pairs []storage.ItemResponsePair) (float64, bool) {
	n := float64(len(pairs))
	if n < 2 {
		return 0, false
	}

	var sumX, sumY, sumXX, sumYY, sumXY float64
	for _, p := range pairs {
		sumX += p.ItemScore
		sumY += p.Overall
		sumXX += p.ItemScore * p.ItemScore
		sumYY += p.Overall * p.Overall
		sumXY += p.ItemScore * p.Overall
	}

	cov := sumXY/n - (sumX/n)*(sumY/n)
	varX := sumXX/n - (sumX/n)*(sumX/n)
	varY := sumYY/n - (sumY/n)*(sumY/n)
	if varX <= 0 || varY <= 0 {
		return 0, false
	}

	r := cov / math.Sqrt(varX*varY)
	return math.Max(-1, math.Min(1, r)), true
}
