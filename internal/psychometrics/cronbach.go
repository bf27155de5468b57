// Package psychometrics maintains item and scale health: classical item
// statistics, IRT fits, validity status transitions, and Cronbach-alpha
// reliability per competency and Big-Five trait. It runs as a scheduled
// job under a named scheduler lock.
package psychometrics

import (
	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/storage"
)

// alphaResult is one Cronbach-alpha computation over a response matrix.
type alphaResult struct {
	Alpha          float64
	SampleSize     int64
	ItemCount      int
	AlphaIfDeleted map[uuid.UUID]float64
	OK             bool
}

// cronbachAlpha computes alpha over the complete-case response matrix:
// only sessions that answered every item of the scale enter the sample.
// Returns OK=false when fewer than two items or two sessions survive.
func cronbachAlpha(cells []storage.ResponseCell) alphaResult {
	itemSet := make(map[uuid.UUID]bool)
	bySession := make(map[uuid.UUID]map[uuid.UUID]float64)
	for _, c := range cells {
		itemSet[c.ItemID] = true
		row, ok := bySession[c.SessionID]
		if !ok {
			row = make(map[uuid.UUID]float64)
			bySession[c.SessionID] = row
		}
		row[c.ItemID] = c.Score
	}
	if len(itemSet) < 2 {
		return alphaResult{}
	}

	items := make([]uuid.UUID, 0, len(itemSet))
	for id := range itemSet {
		items = append(items, id)
	}

	// Complete cases only.
	var rows []map[uuid.UUID]float64
	for _, row := range bySession {
		if len(row) == len(items) {
			rows = append(rows, row)
		}
	}
	if len(rows) < 2 {
		return alphaResult{}
	}

	alpha, ok := alphaOf(items, rows)
	if !ok {
		return alphaResult{}
	}

	res := alphaResult{
		Alpha:      alpha,
		SampleSize: int64(len(rows)),
		ItemCount:  len(items),
		OK:         true,
	}

	if len(items) > 2 {
		res.AlphaIfDeleted = make(map[uuid.UUID]float64, len(items))
		for _, drop := range items {
			reduced := make([]uuid.UUID, 0, len(items)-1)
			for _, id := range items {
				if id != drop {
					reduced = append(reduced, id)
				}
			}
			if a, ok := alphaOf(reduced, rows); ok {
				res.AlphaIfDeleted[drop] = a
			}
		}
	}
	return res
}

// alphaOf is the classical formula: k/(k-1) x (1 - sum(item variances) /
// variance of totals).
func alphaOf(items []uuid.UUID, rows []map[uuid.UUID]float64) (float64, bool) {
	k := float64(len(items))
	n := float64(len(rows))
	if k < 2 || n < 2 {
		return 0, false
	}

	var itemVarSum float64
	for _, id := range items {
		var sum, sumSq float64
		for _, row := range rows {
			v := row[id]
			sum += v
			sumSq += v * v
		}
		mean := sum / n
		itemVarSum += sumSq/n - mean*mean
	}

	var totalSum, totalSumSq float64
	for _, row := range rows {
		var t float64
		for _, id := range items {
			t += row[id]
		}
		totalSum += t
		totalSumSq += t * t
	}
	totalMean := totalSum / n
	totalVar := totalSumSq/n - totalMean*totalMean
	if totalVar <= 0 {
		return 0, false
	}

	return k / (k - 1) * (1 - itemVarSum/totalVar), true
}
