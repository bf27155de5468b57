package psychometrics

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metriq-ai/metriq/internal/storage"
)

// matrix builds response cells from rows of per-item scores. A NaN-free
// shorthand: scores[i] < 0 means the session skipped that item.
func matrix(items []uuid.UUID, rows [][]float64) []storage.ResponseCell {
	var cells []storage.ResponseCell
	for _, row := range rows {
		sessionID := uuid.New()
		for i, score := range row {
			if score < 0 {
				continue
			}
			cells = append(cells, storage.ResponseCell{
				SessionID: sessionID,
				ItemID:    items[i],
				Score:     score,
			})
		}
	}
	return cells
}

func newItems(n int) []uuid.UUID {
	items := make([]uuid.UUID, n)
	for i := range items {
		items[i] = uuid.New()
	}
	return items
}

func TestCronbachAlphaPerfectConsistency(t *testing.T) {
	// Every item tracks the session's level exactly, so the scale is
	// perfectly internally consistent.
	items := newItems(3)
	res := cronbachAlpha(matrix(items, [][]float64{
		{1, 1, 1},
		{0.5, 0.5, 0.5},
		{0, 0, 0},
	}))

	require.True(t, res.OK)
	assert.InDelta(t, 1.0, res.Alpha, 1e-9)
	assert.Equal(t, int64(3), res.SampleSize)
	assert.Equal(t, 3, res.ItemCount)

	// Dropping any of three identical items leaves a perfectly consistent
	// two-item scale.
	require.Len(t, res.AlphaIfDeleted, 3)
	for _, id := range items {
		assert.InDelta(t, 1.0, res.AlphaIfDeleted[id], 1e-9)
	}
}

func TestCronbachAlphaIndependentItems(t *testing.T) {
	// Two uncorrelated items: sum of item variances equals the variance of
	// the totals, so alpha collapses to zero.
	items := newItems(2)
	res := cronbachAlpha(matrix(items, [][]float64{
		{1, 0},
		{0, 1},
		{1, 1},
		{0, 0},
	}))

	require.True(t, res.OK)
	assert.InDelta(t, 0.0, res.Alpha, 1e-9)
	assert.Equal(t, int64(4), res.SampleSize)
	// Two items only, so no leave-one-out table.
	assert.Nil(t, res.AlphaIfDeleted)
}

func TestCronbachAlphaExcludesIncompleteRows(t *testing.T) {
	items := newItems(2)
	rows := [][]float64{
		{1, 1},
		{0, 0},
		{0.5, -1}, // skipped the second item; not a complete case
	}
	res := cronbachAlpha(matrix(items, rows))

	require.True(t, res.OK)
	assert.Equal(t, int64(2), res.SampleSize)
}

func TestCronbachAlphaInsufficientData(t *testing.T) {
	single := newItems(1)
	res := cronbachAlpha(matrix(single, [][]float64{{1}, {0}, {0.5}}))
	assert.False(t, res.OK, "one item is not a scale")

	items := newItems(2)
	res = cronbachAlpha(matrix(items, [][]float64{{1, 1}}))
	assert.False(t, res.OK, "one complete case is not a sample")

	// Identical totals: zero total variance, alpha undefined.
	res = cronbachAlpha(matrix(items, [][]float64{
		{0.5, 0.5},
		{0.5, 0.5},
		{0.5, 0.5},
	}))
	assert.False(t, res.OK)

	res = cronbachAlpha(nil)
	assert.False(t, res.OK)
}
